package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mrnavastar/mclaunch/services"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
)

type ManifestSource interface {
	Manifest(ctx context.Context) (util.VersionManifest, error)
	GetLatestMcVersion(ctx context.Context) (string, error)
}

// LatestVersion is the vanillaVersion alias for the newest release.
const LatestVersion = "latest"

type ArtifactSource interface {
	Artifacts(ctx context.Context, gameVersion string) ([]util.LoaderArtifact, error)
}

type ModSearcher interface {
	Search(ctx context.Context, query, gameVersion string, loader util.LoaderKind, limit int) ([]util.ModHit, error)
}

type InstallStarter interface {
	Start(ctx context.Context, task util.InstallTask) error
}

type GameLauncher interface {
	Launch(ctx context.Context, version string) (services.LaunchResult, error)
}

type SessionService interface {
	Login(ctx context.Context, username, password string) (util.LoginResult, error)
	Lookup(ctx context.Context, id string) (util.PublicProfile, error)
	Session(ctx context.Context) util.Session
	Invalidate(ctx context.Context) error
	SetTexture(ctx context.Context, option util.TextureOption) error
}

// Services holds what the controllers delegate to. Each controller group only
// touches the fields it needs.
type Services struct {
	Root      string
	Resolver  *services.Resolver
	Installer InstallStarter
	Manifest  ManifestSource
	Loaders   map[util.LoaderKind]ArtifactSource
	Mods      ModSearcher
	Sessions  SessionService
	Profiles  *services.ProfileStore
	Launcher  GameLauncher
	Config    *fileutils.Store
}

// InstalledVersion is the listing view of a resolved descriptor.
type InstalledVersion struct {
	Id               string          `json:"id"`
	MinecraftVersion string          `json:"minecraftVersion"`
	Loader           util.LoaderKind `json:"loader"`
	Type             string          `json:"type,omitempty"`
	Inheritances     []string        `json:"inheritances,omitempty"`
}

type versionArgs struct {
	Version string `json:"version"`
}

type manifestArgs struct {
	Type string `json:"type"`
}

type artifactArgs struct {
	Loader      util.LoaderKind `json:"loader"`
	GameVersion string          `json:"gameVersion"`
}

type installArgs struct {
	TargetId       string          `json:"targetId"`
	VanillaVersion string          `json:"vanillaVersion"`
	Loader         util.LoaderKind `json:"loader,omitempty"`
	LoaderVersion  string          `json:"loaderVersion,omitempty"`
}

type searchArgs struct {
	Query       string          `json:"query"`
	GameVersion string          `json:"gameVersion"`
	Loader      util.LoaderKind `json:"loader"`
	Limit       int             `json:"limit"`
}

type loginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type lookupArgs struct {
	UUID string `json:"uuid"`
}

type profileArgs struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type configArgs struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// RegisterControllers binds every client.*, auth.* and config.* channel.
func RegisterControllers(r *Router, s Services) {
	registerClient(r, s)
	registerAuth(r, s)
	registerConfig(r, s)
}

func registerClient(r *Router, s Services) {
	r.Register("client.folder", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Root, nil
	})

	r.Register("client.get-versions", func(ctx context.Context, _ json.RawMessage) (any, error) {
		installed, err := s.Resolver.ListInstalled(s.Root)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(installed))
		for _, desc := range installed {
			ids = append(ids, desc.Id)
		}
		return ids, nil
	})

	r.Register("client.get-installed", func(ctx context.Context, _ json.RawMessage) (any, error) {
		installed, err := s.Resolver.ListInstalled(s.Root)
		if err != nil {
			return nil, err
		}
		versions := make([]InstalledVersion, 0, len(installed))
		for _, desc := range installed {
			versions = append(versions, InstalledVersion{
				Id:               desc.Id,
				MinecraftVersion: desc.MinecraftVersion,
				Loader:           services.ClassifyDescriptor(desc),
				Type:             desc.Type,
				Inheritances:     desc.Inheritances[1:],
			})
		}
		return versions, nil
	})

	r.Register("client.get-version-manifest", Bind(func(ctx context.Context, args manifestArgs) (any, error) {
		manifest, err := s.Manifest.Manifest(ctx)
		if err != nil {
			return nil, err
		}
		if args.Type == "" {
			return manifest, nil
		}
		filtered := manifest
		filtered.Versions = nil
		for _, v := range manifest.Versions {
			if v.Type == args.Type {
				filtered.Versions = append(filtered.Versions, v)
			}
		}
		return filtered, nil
	}))

	artifacts := func(ctx context.Context, args artifactArgs) (any, error) {
		source, ok := s.Loaders[args.Loader]
		if !ok {
			return nil, errs.Newf(errs.KindInvalidArgument, "unsupported_loader", "unsupported loader kind %q", args.Loader)
		}
		if strings.TrimSpace(args.GameVersion) == "" {
			return nil, errs.New(errs.KindInvalidArgument, "", "gameVersion is required")
		}
		return source.Artifacts(ctx, args.GameVersion)
	}
	r.Register("client.get-fabric-artifacts", Bind(func(ctx context.Context, args artifactArgs) (any, error) {
		args.Loader = util.LoaderFabric
		return artifacts(ctx, args)
	}))
	r.Register("client.get-loader-artifacts", Bind(artifacts))

	start := func(ctx context.Context, args installArgs) (any, error) {
		if strings.EqualFold(args.VanillaVersion, LatestVersion) {
			latest, err := s.Manifest.GetLatestMcVersion(ctx)
			if err != nil {
				return nil, err
			}
			args.VanillaVersion = latest
		}
		if args.TargetId == "" {
			args.TargetId = args.VanillaVersion
		}
		task := util.InstallTask{TargetId: args.TargetId, VanillaVersion: args.VanillaVersion}
		if args.Loader != "" && args.Loader != util.LoaderVanilla {
			task.Loader = &util.Loader{Kind: args.Loader, LoaderVersion: args.LoaderVersion}
		}
		if err := s.Installer.Start(ctx, task); err != nil {
			return nil, err
		}
		return task, nil
	}
	r.Register("client.install", Bind(func(ctx context.Context, args installArgs) (any, error) {
		return start(ctx, args)
	}))
	r.Register("client.install-fabric", Bind(func(ctx context.Context, args installArgs) (any, error) {
		args.Loader = util.LoaderFabric
		return start(ctx, args)
	}))

	r.Register("client.launch", Bind(func(ctx context.Context, args versionArgs) (any, error) {
		return s.Launcher.Launch(ctx, args.Version)
	}))

	r.Register("client.search-mods", Bind(func(ctx context.Context, args searchArgs) (any, error) {
		return s.Mods.Search(ctx, args.Query, args.GameVersion, args.Loader, args.Limit)
	}))
}

func registerAuth(r *Router, s Services) {
	r.Register("auth.login", Bind(func(ctx context.Context, args loginArgs) (any, error) {
		return s.Sessions.Login(ctx, args.Username, args.Password)
	}))
	r.Register("auth.lookup", Bind(func(ctx context.Context, args lookupArgs) (any, error) {
		return s.Sessions.Lookup(ctx, args.UUID)
	}))
	r.Register("auth.session", func(ctx context.Context, _ json.RawMessage) (any, error) {
		session := s.Sessions.Session(ctx)
		// the token stays in-process
		if session.Account != nil {
			session.Account.AccessToken = ""
		}
		return session, nil
	})
	r.Register("auth.invalidate", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, s.Sessions.Invalidate(ctx)
	})
	r.Register("auth.set-texture", Bind(func(ctx context.Context, option util.TextureOption) (any, error) {
		if option.Type != "skin" && option.Type != "cape" {
			return nil, errs.Newf(errs.KindInvalidArgument, "bad_request", "texture type must be skin or cape, got %q", option.Type)
		}
		return nil, s.Sessions.SetTexture(ctx, option)
	}))

	r.Register("auth.add-profile", Bind(func(ctx context.Context, args profileArgs) (any, error) {
		return s.Profiles.AddProfile(args.Name)
	}))
	r.Register("auth.get-profile", Bind(func(ctx context.Context, args profileArgs) (any, error) {
		key := args.Id
		if key == "" {
			key = args.Name
		}
		return s.Profiles.GetProfile(key)
	}))
	r.Register("auth.get-profiles", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Profiles.GetProfiles()
	})
	r.Register("auth.get-selected-profile", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Profiles.GetSelectedProfile()
	})
	r.Register("auth.set-selected-profile", Bind(func(ctx context.Context, args profileArgs) (any, error) {
		return s.Profiles.SetSelectedProfile(args.Id)
	}))
	r.Register("auth.del-profile", Bind(func(ctx context.Context, args profileArgs) (any, error) {
		return nil, s.Profiles.DeleteProfile(args.Id)
	}))
}

func registerConfig(r *Router, s Services) {
	r.Register("config.get", Bind(func(ctx context.Context, args configArgs) (any, error) {
		raw, ok, err := s.Config.GetRaw(args.Key)
		if err != nil || !ok {
			return nil, err
		}
		return json.RawMessage(raw), nil
	}))
	r.Register("config.set", Bind(func(ctx context.Context, args configArgs) (any, error) {
		if len(args.Value) == 0 {
			return nil, errs.New(errs.KindInvalidArgument, "", "value is required")
		}
		return nil, s.Config.Set(args.Key, args.Value)
	}))
	r.Register("config.delete", Bind(func(ctx context.Context, args configArgs) (any, error) {
		return nil, s.Config.Delete(args.Key)
	}))
}
