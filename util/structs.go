package util

import "time"

type LoaderKind string

const (
	LoaderVanilla LoaderKind = "vanilla"
	LoaderFabric  LoaderKind = "fabric"
	LoaderQuilt   LoaderKind = "quilt"
	LoaderUnknown LoaderKind = "unknown"
)

type Stage string

const (
	StageDescriptor        Stage = "descriptor"
	StagePrimaryArtifact   Stage = "primary-artifact"
	StageDependencyClosure Stage = "dependency-closure"
)

var Stages = []Stage{StageDescriptor, StagePrimaryArtifact, StageDependencyClosure}

func (s Stage) Label() string {
	switch s {
	case StageDescriptor:
		return "Writing version descriptor"
	case StagePrimaryArtifact:
		return "Downloading game jar"
	case StageDependencyClosure:
		return "Downloading libraries and assets"
	}
	return string(s)
}

type Artifact struct {
	Path string `json:"path,omitempty"`
	Sha1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
	Url  string `json:"url,omitempty"`
}

type Rule struct {
	Action   string            `json:"action"`
	Os       map[string]string `json:"os,omitempty"`
	Features map[string]bool   `json:"features,omitempty"`
}

type Library struct {
	Name      string `json:"name"`
	Url       string `json:"url,omitempty"`
	Downloads struct {
		Artifact    *Artifact           `json:"artifact,omitempty"`
		Classifiers map[string]Artifact `json:"classifiers,omitempty"`
	} `json:"downloads"`
	Natives map[string]string `json:"natives,omitempty"`
	Rules   []Rule            `json:"rules,omitempty"`
}

type AssetIndex struct {
	Id        string `json:"id"`
	Sha1      string `json:"sha1,omitempty"`
	Size      int64  `json:"size,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty"`
	Url       string `json:"url"`
}

// VersionDescriptor is a parsed version JSON. After resolution Raw holds the
// merged document of the whole chain and Inheritances lists the chain ids,
// child first.
type VersionDescriptor struct {
	Id                 string              `json:"id"`
	InheritsFrom       string              `json:"inheritsFrom,omitempty"`
	MainClass          string              `json:"mainClass"`
	MinecraftVersion   string              `json:"minecraftVersion,omitempty"`
	Type               string              `json:"type,omitempty"`
	Assets             string              `json:"assets,omitempty"`
	AssetIndex         *AssetIndex         `json:"assetIndex,omitempty"`
	Downloads          map[string]Artifact `json:"downloads,omitempty"`
	Libraries          []Library           `json:"libraries,omitempty"`
	MinecraftArguments string              `json:"minecraftArguments,omitempty"`
	Arguments          struct {
		Game []any `json:"game,omitempty"`
		Jvm  []any `json:"jvm,omitempty"`
	} `json:"arguments"`
	Inheritances []string       `json:"-"`
	Raw          map[string]any `json:"-"`
}

type Loader struct {
	Kind          LoaderKind `json:"kind"`
	LoaderVersion string     `json:"loaderVersion"`
}

type InstallTask struct {
	TargetId       string  `json:"targetId"`
	VanillaVersion string  `json:"vanillaVersion"`
	Loader         *Loader `json:"loader,omitempty"`
}

type ManifestVersion struct {
	Id          string `json:"id"`
	Type        string `json:"type"`
	Url         string `json:"url"`
	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
	Sha1        string `json:"sha1,omitempty"`
}

type VersionManifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []ManifestVersion `json:"versions"`
}

type LoaderArtifact struct {
	Kind      LoaderKind `json:"kind"`
	Version   string     `json:"version"`
	Stable    bool       `json:"stable"`
	Maven     string     `json:"maven,omitempty"`
	Separator string     `json:"separator,omitempty"`
}

type GameProfile struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type ProfileProperty struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// PublicProfile is the session server view of a profile, textures included.
type PublicProfile struct {
	Id         string            `json:"id"`
	Name       string            `json:"name"`
	Properties []ProfileProperty `json:"properties,omitempty"`
	Textures   *Textures         `json:"textures,omitempty"`
}

type Textures struct {
	Timestamp int64 `json:"timestamp,omitempty"`
	Skin      *struct {
		Url      string `json:"url"`
		Metadata struct {
			Model string `json:"model,omitempty"`
		} `json:"metadata"`
	} `json:"SKIN,omitempty"`
	Cape *struct {
		Url string `json:"url"`
	} `json:"CAPE,omitempty"`
}

type Account struct {
	Id              string        `json:"id"`
	Username        string        `json:"username"`
	AccessToken     string        `json:"accessToken,omitempty"`
	Profiles        []GameProfile `json:"profiles"`
	SelectedProfile *GameProfile  `json:"selectedProfile,omitempty"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type Session struct {
	SignedIn    bool         `json:"signedIn"`
	ClientToken string       `json:"clientToken"`
	Account     *Account     `json:"account,omitempty"`
	Profile     *GameProfile `json:"profile,omitempty"`
}

type LoginResult struct {
	User                *GameProfile  `json:"user"`
	HasMultipleProfiles bool          `json:"hasMultipleProfiles"`
	AvailableProfiles   []GameProfile `json:"availableProfiles"`
}

type TextureOption struct {
	Type    string `json:"type"`
	Id      string `json:"id,omitempty"`
	Url     string `json:"url,omitempty"`
	Variant string `json:"variant,omitempty"`
	Reset   bool   `json:"reset,omitempty"`
}

// Profile is an offline player identity.
type Profile struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type ModHit struct {
	Slug          string   `json:"slug"`
	ProjectId     string   `json:"project_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Categories    []string `json:"categories"`
	Downloads     int64    `json:"downloads"`
	LatestVersion string   `json:"latest_version"`
}
