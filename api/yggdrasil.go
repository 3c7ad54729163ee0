package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
)

// Yggdrasil covers the auth server, the session server and the profile
// services endpoints of a Mojang-compatible authentication provider.
type Yggdrasil struct {
	client   *resty.Client
	auth     string
	session  string
	services string
}

func NewYggdrasil(client *resty.Client, authServer, sessionServer, servicesServer string) *Yggdrasil {
	return &Yggdrasil{client: client, auth: authServer, session: sessionServer, services: servicesServer}
}

type agent struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type authRequest struct {
	Agent       agent  `json:"agent"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken"`
	RequestUser bool   `json:"requestUser"`
}

type refreshRequest struct {
	AccessToken     string            `json:"accessToken"`
	ClientToken     string            `json:"clientToken"`
	SelectedProfile *util.GameProfile `json:"selectedProfile,omitempty"`
	RequestUser     bool              `json:"requestUser"`
}

type tokenPair struct {
	AccessToken string `json:"accessToken"`
	ClientToken string `json:"clientToken"`
}

type authResponse struct {
	AccessToken       string             `json:"accessToken"`
	ClientToken       string             `json:"clientToken"`
	AvailableProfiles []util.GameProfile `json:"availableProfiles"`
	SelectedProfile   *util.GameProfile  `json:"selectedProfile"`
	User              struct {
		Id       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func (r authResponse) account(fallbackUsername string) util.Account {
	account := util.Account{
		Id:              r.User.Id,
		Username:        r.User.Username,
		AccessToken:     r.AccessToken,
		Profiles:        r.AvailableProfiles,
		SelectedProfile: r.SelectedProfile,
		UpdatedAt:       time.Now().UTC(),
	}
	if account.Username == "" {
		account.Username = fallbackUsername
	}
	if account.Id == "" {
		account.Id = account.Username
	}
	if len(account.Profiles) == 0 && account.SelectedProfile != nil {
		account.Profiles = []util.GameProfile{*account.SelectedProfile}
	}
	return account
}

func (y *Yggdrasil) Authenticate(ctx context.Context, username, password, clientToken string) (util.Account, error) {
	var result authResponse
	resp, err := y.client.R().SetContext(ctx).
		SetBody(authRequest{
			Agent:       agent{Name: "Minecraft", Version: 1},
			Username:    username,
			Password:    password,
			ClientToken: clientToken,
			RequestUser: true,
		}).
		SetResult(&result).SetError(&remoteError{}).
		Post(y.auth + "/authenticate")
	if err := classify("authenticate", resp, err, true); err != nil {
		return util.Account{}, err
	}
	return result.account(username), nil
}

// Validate reports whether accessToken is still usable. Rejection is not an
// error; only transport failures are.
func (y *Yggdrasil) Validate(ctx context.Context, accessToken, clientToken string) (bool, error) {
	resp, err := y.client.R().SetContext(ctx).
		SetBody(tokenPair{AccessToken: accessToken, ClientToken: clientToken}).
		SetError(&remoteError{}).
		Post(y.auth + "/validate")
	if err := classify("validate", resp, err, true); err != nil {
		if errs.Is(err, errs.KindAuthRejected) || errs.Is(err, errs.KindInvalidArgument) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (y *Yggdrasil) Refresh(ctx context.Context, accessToken, clientToken string, profile *util.GameProfile) (util.Account, error) {
	var result authResponse
	resp, err := y.client.R().SetContext(ctx).
		SetBody(refreshRequest{AccessToken: accessToken, ClientToken: clientToken, SelectedProfile: profile, RequestUser: true}).
		SetResult(&result).SetError(&remoteError{}).
		Post(y.auth + "/refresh")
	if err := classify("refresh", resp, err, true); err != nil {
		return util.Account{}, err
	}
	if result.AccessToken == "" {
		return util.Account{}, errs.New(errs.KindAuthRejected, "auth_rejected", "refresh returned no access token")
	}
	return result.account(""), nil
}

func (y *Yggdrasil) Invalidate(ctx context.Context, accessToken, clientToken string) error {
	resp, err := y.client.R().SetContext(ctx).
		SetBody(tokenPair{AccessToken: accessToken, ClientToken: clientToken}).
		SetError(&remoteError{}).
		Post(y.auth + "/invalidate")
	return classify("invalidate", resp, err, true)
}

type texturesPayload struct {
	Timestamp int64          `json:"timestamp"`
	Textures  *util.Textures `json:"textures"`
}

// Lookup fetches the public profile of uuid including decoded textures.
func (y *Yggdrasil) Lookup(ctx context.Context, uuid string) (util.PublicProfile, error) {
	var profile util.PublicProfile
	resp, err := y.client.R().SetContext(ctx).
		SetQueryParam("unsigned", "false").
		SetResult(&profile).SetError(&remoteError{}).
		Get(y.session + "/session/minecraft/profile/" + url.PathEscape(strings.ReplaceAll(uuid, "-", "")))
	if err := classify("lookup "+uuid, resp, err, false); err != nil {
		return util.PublicProfile{}, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return util.PublicProfile{}, errs.Newf(errs.KindNotFound, "", "profile %s not found", uuid)
	}
	for _, p := range profile.Properties {
		if p.Name != "textures" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.Value)
		if err != nil {
			return util.PublicProfile{}, errs.Wrap(err, errs.KindParseError, "", "decode textures of "+uuid)
		}
		var payload texturesPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return util.PublicProfile{}, errs.Wrap(err, errs.KindParseError, "", "decode textures of "+uuid)
		}
		if payload.Textures != nil {
			payload.Textures.Timestamp = payload.Timestamp
		}
		profile.Textures = payload.Textures
	}
	return profile, nil
}

// SetTexture changes or resets the skin or cape of the profile owning
// accessToken.
func (y *Yggdrasil) SetTexture(ctx context.Context, accessToken string, option util.TextureOption) error {
	req := y.client.R().SetContext(ctx).SetAuthToken(accessToken).SetError(&remoteError{})
	var (
		resp *resty.Response
		err  error
	)
	switch option.Type {
	case "skin":
		if option.Reset {
			resp, err = req.Delete(y.services + "/minecraft/profile/skins/active")
			break
		}
		if option.Url == "" {
			return errs.New(errs.KindInvalidArgument, "bad_request", "skin url is required")
		}
		variant := option.Variant
		if variant == "" {
			variant = "classic"
		}
		resp, err = req.SetBody(map[string]string{"variant": variant, "url": option.Url}).
			Post(y.services + "/minecraft/profile/skins")
	case "cape":
		if option.Reset {
			resp, err = req.Delete(y.services + "/minecraft/profile/capes/active")
			break
		}
		if option.Id == "" {
			return errs.New(errs.KindInvalidArgument, "bad_request", "cape id is required")
		}
		resp, err = req.SetBody(map[string]string{"capeId": option.Id}).
			Put(y.services + "/minecraft/profile/capes/active")
	default:
		return errs.Newf(errs.KindInvalidArgument, "bad_request", "unsupported texture type %q", option.Type)
	}
	return classify("set "+option.Type, resp, err, true)
}
