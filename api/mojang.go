package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
)

const manifestCacheKey = "manifest"

type cachedManifest struct {
	FetchedAt time.Time            `json:"fetchedAt"`
	Source    string               `json:"source"`
	Manifest  util.VersionManifest `json:"manifest"`
}

// Mojang serves the version manifest and version JSON documents. A manifest is
// an immutable snapshot, reused until it is older than ttl.
type Mojang struct {
	client      *resty.Client
	manifestURL string
	cache       *fileutils.Store
	ttl         time.Duration
	now         func() time.Time

	mu       sync.Mutex
	snapshot *cachedManifest
}

// NewMojang builds the manifest client. cache may be nil.
func NewMojang(client *resty.Client, manifestURL string, cache *fileutils.Store, ttl time.Duration) *Mojang {
	return &Mojang{
		client:      client,
		manifestURL: manifestURL,
		cache:       cache,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (m *Mojang) Manifest(ctx context.Context) (util.VersionManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fresh(m.snapshot) {
		return m.snapshot.Manifest, nil
	}
	if m.cache != nil {
		var cached cachedManifest
		if ok, err := m.cache.Get(manifestCacheKey, &cached); err == nil && ok && m.fresh(&cached) {
			m.snapshot = &cached
			return cached.Manifest, nil
		}
	}

	var manifest util.VersionManifest
	resp, err := m.client.R().SetContext(ctx).SetResult(&manifest).SetError(&remoteError{}).Get(m.manifestURL)
	if err := classify("fetch version manifest", resp, err, false); err != nil {
		if m.snapshot != nil {
			// stale beats nothing when upstream is down
			return m.snapshot.Manifest, nil
		}
		return util.VersionManifest{}, err
	}

	m.snapshot = &cachedManifest{FetchedAt: m.now().UTC(), Source: m.manifestURL, Manifest: manifest}
	if m.cache != nil {
		_ = m.cache.Set(manifestCacheKey, m.snapshot)
	}
	return manifest, nil
}

func (m *Mojang) fresh(c *cachedManifest) bool {
	if c == nil || c.Source != m.manifestURL {
		return false
	}
	return m.now().Sub(c.FetchedAt) < m.ttl
}

func (m *Mojang) Find(ctx context.Context, id string) (util.ManifestVersion, error) {
	manifest, err := m.Manifest(ctx)
	if err != nil {
		return util.ManifestVersion{}, err
	}
	for _, v := range manifest.Versions {
		if v.Id == id {
			return v, nil
		}
	}
	return util.ManifestVersion{}, errs.Newf(errs.KindNotFound, "", "minecraft version %s not found in manifest", id)
}

// VersionJSON returns the raw upstream descriptor for a manifest entry.
func (m *Mojang) VersionJSON(ctx context.Context, id string) ([]byte, error) {
	entry, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.R().SetContext(ctx).SetError(&remoteError{}).Get(entry.Url)
	if err := classify("fetch version "+id, resp, err, false); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (m *Mojang) GetLatestMcVersion(ctx context.Context) (string, error) {
	manifest, err := m.Manifest(ctx)
	if err != nil {
		return "", err
	}
	return manifest.Latest.Release, nil
}
