package services

import (
	"crypto/md5"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gofrs/uuid"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
)

const (
	profilesKey        = "profiles"
	selectedProfileKey = "selectedProfile"
	maxProfileName     = 16
)

// OfflineUUID derives the id the game itself uses for an offline player:
// a version 3 UUID over md5("OfflinePlayer:" + name).
func OfflineUUID(name string) string {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	id, err := uuid.FromBytes(sum[:])
	if err != nil {
		// md5 is always 16 bytes
		panic(err)
	}
	id.SetVersion(uuid.V3)
	id.SetVariant(uuid.VariantRFC4122)
	return id.String()
}

// ProfileStore keeps offline profiles and the selected profile pointer.
type ProfileStore struct {
	mu    sync.Mutex
	store *fileutils.Store
}

func NewProfileStore(store *fileutils.Store) *ProfileStore {
	return &ProfileStore{store: store}
}

func (p *ProfileStore) AddProfile(name string) (util.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return util.Profile{}, errs.New(errs.KindInvalidArgument, "", "profile name is required")
	}
	if utf8.RuneCountInString(name) > maxProfileName {
		return util.Profile{}, errs.Newf(errs.KindInvalidArgument, "", "profile name longer than %d characters", maxProfileName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	profiles, err := p.list()
	if err != nil {
		return util.Profile{}, err
	}
	for _, existing := range profiles {
		if strings.EqualFold(existing.Name, name) {
			return util.Profile{}, errs.Newf(errs.KindAlreadyExists, "", "profile %s already exists", existing.Name)
		}
	}
	profile := util.Profile{Id: OfflineUUID(name), Name: name}
	if err := p.store.Set(profilesKey+"."+profile.Id, profile); err != nil {
		return util.Profile{}, err
	}
	return profile, nil
}

// GetProfile looks idOrName up by id first, then by name.
func (p *ProfileStore) GetProfile(idOrName string) (util.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.get(idOrName)
}

func (p *ProfileStore) get(idOrName string) (util.Profile, error) {
	profiles, err := p.list()
	if err != nil {
		return util.Profile{}, err
	}
	for _, profile := range profiles {
		if profile.Id == idOrName {
			return profile, nil
		}
	}
	for _, profile := range profiles {
		if strings.EqualFold(profile.Name, idOrName) {
			return profile, nil
		}
	}
	return util.Profile{}, errs.Newf(errs.KindNotFound, "", "profile %s not found", idOrName)
}

func (p *ProfileStore) GetProfiles() ([]util.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list()
}

func (p *ProfileStore) list() ([]util.Profile, error) {
	var byId map[string]util.Profile
	if _, err := p.store.Get(profilesKey, &byId); err != nil {
		return nil, err
	}
	profiles := make([]util.Profile, 0, len(byId))
	for id, profile := range byId {
		profile.Id = id
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].Name) < strings.ToLower(profiles[j].Name)
	})
	return profiles, nil
}

// DeleteProfile removes a profile and clears the selection if it pointed at it.
func (p *ProfileStore) DeleteProfile(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, err := p.get(id)
	if err != nil {
		return err
	}
	if err := p.store.Delete(profilesKey + "." + profile.Id); err != nil {
		return err
	}
	selected, err := p.store.GetString(selectedProfileKey)
	if err != nil {
		return err
	}
	if selected == profile.Id {
		return p.store.Delete(selectedProfileKey)
	}
	return nil
}

// SetSelectedProfile points the selection at id. An unknown id clears the
// selection instead of failing; nil is returned in that case.
func (p *ProfileStore) SetSelectedProfile(id string) (*util.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, err := p.get(id)
	if err != nil {
		if !errs.Is(err, errs.KindNotFound) {
			return nil, err
		}
		return nil, p.store.Delete(selectedProfileKey)
	}
	if err := p.store.Set(selectedProfileKey, profile.Id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetSelectedProfile returns nil when nothing (or nothing existing) is selected.
func (p *ProfileStore) GetSelectedProfile() (*util.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	selected, err := p.store.GetString(selectedProfileKey)
	if err != nil || selected == "" {
		return nil, err
	}
	profile, err := p.get(selected)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}
