package services

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/pterm/pterm"
)

// AliasSentinel prefixes ids that embed a base64 vanilla version. Such ids
// name internal loader base layers and never appear in user listings.
const AliasSentinel = "@"

// MaxInheritanceDepth bounds a chain walk; real chains are at most two deep.
const MaxInheritanceDepth = 16

func EncodeAlias(version string) string {
	return AliasSentinel + base64.RawURLEncoding.EncodeToString([]byte(version))
}

// DecodeAlias reverses EncodeAlias. Ids without the sentinel, or whose payload
// is not base64, are returned unchanged.
func DecodeAlias(id string) string {
	if !IsAlias(id) {
		return id
	}
	payload := strings.TrimPrefix(id, AliasSentinel)
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(payload); err == nil {
			return string(decoded)
		}
	}
	return id
}

func IsAlias(id string) bool {
	return strings.HasPrefix(id, AliasSentinel)
}

func DescriptorPath(root, id string) string {
	return filepath.Join(root, "versions", id, id+".json")
}

func JarPath(root, id string) string {
	return filepath.Join(root, "versions", id, id+".jar")
}

func validateVersionId(id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.New(errs.KindInvalidArgument, "", "version id is required")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errs.Newf(errs.KindInvalidArgument, "", "invalid version id %q", id)
	}
	return nil
}

type Resolver struct {
	logger *pterm.Logger
}

func NewResolver(logger *pterm.Logger) *Resolver {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Resolver{logger: logger}
}

// ReadDescriptor parses versions/<id>/<id>.json without following inheritance.
func (r *Resolver) ReadDescriptor(root, id string) (util.VersionDescriptor, error) {
	if err := validateVersionId(id); err != nil {
		return util.VersionDescriptor{}, err
	}
	// #nosec G304 -- path is built from the installation root and a validated id.
	data, err := os.ReadFile(DescriptorPath(root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return util.VersionDescriptor{}, errs.Newf(errs.KindNotFound, "", "version %s is not installed", DecodeAlias(id))
		}
		return util.VersionDescriptor{}, errs.Wrap(err, errs.KindParseError, "", "read version "+id)
	}
	desc, err := ParseDescriptor(data)
	if err != nil {
		return util.VersionDescriptor{}, errs.Wrap(err, errs.KindParseError, "", "parse version "+id)
	}
	return desc, nil
}

// Resolve returns the fully merged descriptor for id or an error; a partially
// merged descriptor is never returned.
func (r *Resolver) Resolve(root, id string) (util.VersionDescriptor, error) {
	var chain []util.VersionDescriptor
	var ids []string
	visited := make(map[string]bool)

	current := id
	for {
		if visited[current] {
			return util.VersionDescriptor{}, errs.WithDetails(
				errs.Newf(errs.KindCycleDetected, "", "inheritance cycle at %s", current),
				append(ids, current),
			)
		}
		if len(ids) >= MaxInheritanceDepth {
			return util.VersionDescriptor{}, errs.WithDetails(
				errs.Newf(errs.KindCycleDetected, "", "inheritance chain of %s deeper than %d", id, MaxInheritanceDepth),
				ids,
			)
		}
		visited[current] = true

		desc, err := r.ReadDescriptor(root, current)
		if err != nil {
			if len(ids) > 0 && errs.Is(err, errs.KindNotFound) {
				return util.VersionDescriptor{}, errs.Newf(errs.KindNotFound, "", "version %s inherits from %s which is not installed", DecodeAlias(id), DecodeAlias(current))
			}
			return util.VersionDescriptor{}, err
		}
		chain = append(chain, desc)
		ids = append(ids, current)
		if desc.InheritsFrom == "" {
			break
		}
		current = desc.InheritsFrom
	}

	merged := chain[len(chain)-1].Raw
	for i := len(chain) - 2; i >= 0; i-- {
		merged = MergeDescriptors(chain[i].Raw, merged)
	}

	resolved, err := fromRaw(merged)
	if err != nil {
		return util.VersionDescriptor{}, err
	}
	resolved.Id = chain[0].Id
	resolved.InheritsFrom = ""
	resolved.Inheritances = ids

	minecraftVersion := resolved.MinecraftVersion
	if minecraftVersion == "" {
		minecraftVersion = ids[len(ids)-1]
	}
	resolved.MinecraftVersion = DecodeAlias(minecraftVersion)
	if _, ok := merged["minecraftVersion"]; ok {
		merged["minecraftVersion"] = resolved.MinecraftVersion
	}
	return resolved, nil
}

// ListInstalled resolves every user-visible version under root. Alias layers
// and versions that fail to resolve are skipped.
func (r *Resolver) ListInstalled(root string) ([]util.VersionDescriptor, error) {
	entries, err := os.ReadDir(filepath.Join(root, "versions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(err, errs.KindInternal, "", "list versions")
	}
	var versions []util.VersionDescriptor
	for _, entry := range entries {
		if !entry.IsDir() || IsAlias(entry.Name()) {
			continue
		}
		desc, err := r.Resolve(root, entry.Name())
		if err != nil {
			r.logger.Debug("skipping unreadable version", r.logger.Args("id", entry.Name(), "error", err))
			continue
		}
		versions = append(versions, desc)
	}
	return versions, nil
}
