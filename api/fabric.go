package api

import (
	"context"
	"net/url"
	"sort"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"golang.org/x/mod/semver"
)

// LoaderMeta talks to a fabric-style meta service. Fabric (v2) and Quilt (v3)
// share the endpoint layout.
type LoaderMeta struct {
	kind   util.LoaderKind
	base   string
	client *resty.Client
}

func NewFabric(client *resty.Client, base string) *LoaderMeta {
	return &LoaderMeta{kind: util.LoaderFabric, base: base, client: client}
}

func (l *LoaderMeta) Kind() util.LoaderKind {
	return l.kind
}

type gameLoaderEntry struct {
	Loader Version `json:"loader"`
}

// Artifacts lists loader versions, newest first. With a game version only the
// loaders the meta service publishes for that version are returned.
func (l *LoaderMeta) Artifacts(ctx context.Context, gameVersion string) ([]util.LoaderArtifact, error) {
	var versions []Version
	if gameVersion == "" {
		resp, err := l.client.R().SetContext(ctx).SetResult(&versions).SetError(&remoteError{}).
			Get(l.base + "/versions/loader")
		if err := classify("list "+string(l.kind)+" loaders", resp, err, false); err != nil {
			return nil, err
		}
	} else {
		var entries []gameLoaderEntry
		resp, err := l.client.R().SetContext(ctx).SetResult(&entries).SetError(&remoteError{}).
			Get(l.base + "/versions/loader/" + url.PathEscape(gameVersion))
		if err := classify("list "+string(l.kind)+" loaders for "+gameVersion, resp, err, false); err != nil {
			return nil, err
		}
		for _, e := range entries {
			versions = append(versions, e.Loader)
		}
		if len(versions) == 0 {
			return nil, errs.Newf(errs.KindNotFound, "", "no %s loader published for %s", l.kind, gameVersion)
		}
	}

	artifacts := make([]util.LoaderArtifact, 0, len(versions))
	for _, v := range versions {
		artifacts = append(artifacts, util.LoaderArtifact{
			Kind:      l.kind,
			Version:   v.Version,
			Stable:    isStable(v),
			Maven:     v.Maven,
			Separator: v.Separator,
		})
	}
	sort.SliceStable(artifacts, func(i, j int) bool {
		return semver.Compare(canonical(artifacts[i].Version), canonical(artifacts[j].Version)) > 0
	})
	return artifacts, nil
}

// LatestStable picks the newest stable loader for gameVersion ("" for any).
func (l *LoaderMeta) LatestStable(ctx context.Context, gameVersion string) (string, error) {
	artifacts, err := l.Artifacts(ctx, gameVersion)
	if err != nil {
		return "", err
	}
	for _, a := range artifacts {
		if a.Stable {
			return a.Version, nil
		}
	}
	return "", errs.Newf(errs.KindNotFound, "", "failed to find a stable %s loader version", l.kind)
}

// ProfileJSON returns the launcher profile descriptor for a loader layered on
// gameVersion.
func (l *LoaderMeta) ProfileJSON(ctx context.Context, gameVersion, loaderVersion string) ([]byte, error) {
	endpoint := l.base + "/versions/loader/" + url.PathEscape(gameVersion) + "/" + url.PathEscape(loaderVersion) + "/profile/json"
	resp, err := l.client.R().SetContext(ctx).SetError(&remoteError{}).Get(endpoint)
	if err := classify("fetch "+string(l.kind)+" profile "+loaderVersion+" for "+gameVersion, resp, err, false); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (l *LoaderMeta) IsGameVersionSupported(ctx context.Context, gameVersion string) (bool, error) {
	var versions []Version
	resp, err := l.client.R().SetContext(ctx).SetResult(&versions).SetError(&remoteError{}).
		Get(l.base + "/versions/game")
	if err := classify("list "+string(l.kind)+" game versions", resp, err, false); err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Version == gameVersion {
			return true, nil
		}
	}
	return false, nil
}

func isStable(v Version) bool {
	if v.Stable != nil {
		return *v.Stable
	}
	return semver.Prerelease(canonical(v.Version)) == ""
}

func canonical(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}
