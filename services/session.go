package services

import (
	"context"
	"strings"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/gofrs/uuid"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/pterm/pterm"
)

// AuthRemote is the upstream authentication provider.
type AuthRemote interface {
	Authenticate(ctx context.Context, username, password, clientToken string) (util.Account, error)
	Validate(ctx context.Context, accessToken, clientToken string) (bool, error)
	Refresh(ctx context.Context, accessToken, clientToken string, profile *util.GameProfile) (util.Account, error)
	Invalidate(ctx context.Context, accessToken, clientToken string) error
	Lookup(ctx context.Context, uuid string) (util.PublicProfile, error)
	SetTexture(ctx context.Context, accessToken string, option util.TextureOption) error
}

type SessionState string

const (
	StateSignedOut     SessionState = "SignedOut"
	StateValidating    SessionState = "Validating"
	StateSignedIn      SessionState = "SignedIn"
	StateRefreshFailed SessionState = "RefreshFailed"
)

const (
	clientTokenKey  = "clientToken"
	accountsKey     = "accounts"
	selectedUserKey = "selectedUser"
	tokenSecretKey  = "accessToken."
)

// SessionManager owns the authentication state machine. Every operation that
// reads or mutates the session holds mu, so validation always finishes before
// a dependent call observes the session.
type SessionManager struct {
	mu          sync.Mutex
	remote      AuthRemote
	store       *fileutils.Store
	secrets     fileutils.SecretStore
	logger      *pterm.Logger
	clientToken string
	state       SessionState
	account     *util.Account
}

// NewSessionManager loads or creates the client token and validates any
// persisted account before returning.
func NewSessionManager(ctx context.Context, remote AuthRemote, store *fileutils.Store, secrets fileutils.SecretStore, logger *pterm.Logger) (*SessionManager, error) {
	if logger == nil {
		logger = util.NopLogger()
	}
	m := &SessionManager{remote: remote, store: store, secrets: secrets, logger: logger, state: StateSignedOut}

	token, err := store.GetString(clientTokenKey)
	if err != nil {
		return nil, err
	}
	if token == "" {
		generated, err := uuid.NewV4()
		if err != nil {
			return nil, errs.Wrap(err, errs.KindInternal, "", "generate client token")
		}
		token = strings.ReplaceAll(generated.String(), "-", "")
		if err := store.Set(clientTokenKey, token); err != nil {
			return nil, err
		}
	}
	m.clientToken = token

	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateAccount(ctx)
	return m, nil
}

func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) ClientToken() string {
	return m.clientToken
}

// validateAccount never fails: anything that prevents a usable token ends in
// a signed-out state. Callers hold mu.
func (m *SessionManager) validateAccount(ctx context.Context) {
	m.account = nil
	account, ok := m.loadSelectedAccount()
	if !ok {
		m.state = StateSignedOut
		return
	}

	m.state = StateValidating
	valid, err := m.remote.Validate(ctx, account.AccessToken, m.clientToken)
	if err != nil {
		m.logger.Warn("token validation failed, trying refresh", m.logger.Args("account", account.Id, "error", err))
	}
	if err == nil && valid {
		m.account = &account
		m.state = StateSignedIn
		return
	}

	refreshed, err := m.remote.Refresh(ctx, account.AccessToken, m.clientToken, account.SelectedProfile)
	if err != nil {
		m.logger.Warn("token refresh failed, signed out", m.logger.Args("account", account.Id, "error", err))
		m.state = StateRefreshFailed
		return
	}
	merged := mergeRefreshed(account, refreshed)
	if err := m.persistAccount(merged); err != nil {
		m.logger.Warn("persisting refreshed account failed", m.logger.Args("account", account.Id, "error", err))
		m.state = StateRefreshFailed
		return
	}
	m.account = &merged
	m.state = StateSignedIn
}

func mergeRefreshed(previous, refreshed util.Account) util.Account {
	merged := previous
	merged.AccessToken = refreshed.AccessToken
	merged.UpdatedAt = refreshed.UpdatedAt
	if len(refreshed.Profiles) > 0 && len(refreshed.Profiles) >= len(previous.Profiles) {
		merged.Profiles = refreshed.Profiles
	}
	if refreshed.SelectedProfile != nil {
		merged.SelectedProfile = refreshed.SelectedProfile
	}
	return merged
}

func (m *SessionManager) loadSelectedAccount() (util.Account, bool) {
	id, err := m.store.GetString(selectedUserKey)
	if err != nil || id == "" {
		return util.Account{}, false
	}
	var account util.Account
	ok, err := m.store.Get(accountsKey+"."+id, &account)
	if err != nil || !ok {
		return util.Account{}, false
	}
	token, err := m.secrets.Get(tokenSecretKey + id)
	if err != nil || token == "" {
		return util.Account{}, false
	}
	account.AccessToken = token
	return account, true
}

// persistAccount stores the record without its token and the token in the
// secret store, then selects the account.
func (m *SessionManager) persistAccount(account util.Account) error {
	if err := m.secrets.Set(tokenSecretKey+account.Id, account.AccessToken); err != nil {
		return errs.Wrap(err, errs.KindInternal, "", "store access token")
	}
	record := account
	record.AccessToken = ""
	if err := m.store.Set(accountsKey+"."+account.Id, record); err != nil {
		return err
	}
	return m.store.Set(selectedUserKey, account.Id)
}

func (m *SessionManager) Login(ctx context.Context, username, password string) (util.LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return util.LoginResult{}, errs.New(errs.KindInvalidArgument, "", "username and password are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	account, err := m.remote.Authenticate(ctx, username, password, m.clientToken)
	if err != nil {
		if errs.Is(err, errs.KindServiceUnavailable) {
			return util.LoginResult{}, err
		}
		return util.LoginResult{}, errs.WithDetails(
			errs.Wrap(err, errs.KindAuthRejected, "bad_credentials", "login rejected"),
			errs.DetailsOf(err),
		)
	}
	if account.SelectedProfile == nil && len(account.Profiles) > 0 {
		first := account.Profiles[0]
		account.SelectedProfile = &first
	}
	if err := m.persistAccount(account); err != nil {
		return util.LoginResult{}, err
	}
	m.account = &account
	m.state = StateSignedIn
	m.logger.Info("signed in", m.logger.Args("account", account.Id, "profiles", len(account.Profiles)))

	return util.LoginResult{
		User:                account.SelectedProfile,
		HasMultipleProfiles: len(account.Profiles) > 1,
		AvailableProfiles:   account.Profiles,
	}, nil
}

// Session revalidates and returns the derived view. The access token is
// included because the view is consumed in-process by the launcher.
func (m *SessionManager) Session(ctx context.Context) util.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateAccount(ctx)
	return m.view()
}

func (m *SessionManager) view() util.Session {
	session := util.Session{SignedIn: m.state == StateSignedIn, ClientToken: m.clientToken}
	if session.SignedIn && m.account != nil {
		account := *m.account
		account.Profiles = append([]util.GameProfile(nil), m.account.Profiles...)
		session.Account = &account
		if account.SelectedProfile != nil {
			profile := *account.SelectedProfile
			session.Profile = &profile
		}
	}
	return session
}

func (m *SessionManager) Lookup(ctx context.Context, id string) (util.PublicProfile, error) {
	normalized := normalizeUUID(id)
	if !strfmt.IsUUID(normalized) {
		return util.PublicProfile{}, errs.Newf(errs.KindInvalidArgument, "bad_request", "invalid profile uuid %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, err := m.remote.Lookup(ctx, normalized)
	if err != nil {
		return util.PublicProfile{}, errs.WithDetails(
			errs.Wrap(err, errs.KindInvalidArgument, "bad_request", "lookup "+id),
			errs.DetailsOf(err),
		)
	}
	return profile, nil
}

func normalizeUUID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) == 32 && !strings.Contains(id, "-") {
		return id[0:8] + "-" + id[8:12] + "-" + id[12:16] + "-" + id[16:20] + "-" + id[20:]
	}
	return id
}

// Invalidate signs out. Local state is cleared even when the remote call fails.
func (m *SessionManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.loadSelectedAccount()
	if ok {
		if err := m.remote.Invalidate(ctx, account.AccessToken, m.clientToken); err != nil {
			m.logger.Warn("remote invalidate failed, clearing locally", m.logger.Args("account", account.Id, "error", err))
		}
	}
	m.account = nil
	m.state = StateSignedOut

	id, err := m.store.GetString(selectedUserKey)
	if err != nil {
		return err
	}
	if id != "" {
		if err := m.secrets.Delete(tokenSecretKey + id); err != nil {
			m.logger.Warn("deleting access token failed", m.logger.Args("account", id, "error", err))
		}
		if err := m.store.Delete(accountsKey + "." + id); err != nil {
			return err
		}
	}
	return m.store.Delete(selectedUserKey)
}

func (m *SessionManager) SetTexture(ctx context.Context, option util.TextureOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSignedIn || m.account == nil {
		return errs.New(errs.KindAuthRejected, "not_signed_in", "sign in to change textures")
	}
	if err := m.remote.SetTexture(ctx, m.account.AccessToken, option); err != nil {
		return errs.WithDetails(
			errs.Wrap(err, errs.KindInvalidArgument, "bad_request", "set "+option.Type),
			errs.DetailsOf(err),
		)
	}
	return nil
}
