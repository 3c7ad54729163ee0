package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
)

const (
	VanillaMainClass = "net.minecraft.client.main.Main"
	FabricMainClass  = "net.fabricmc.loader.impl.launch.knot.KnotClient"
	QuiltMainClass   = "org.quiltmc.loader.impl.launch.knot.KnotClient"
)

const descriptorSchema = `{
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "inheritsFrom": {"type": "string"},
    "mainClass": {"type": "string"},
    "minecraftVersion": {"type": "string"},
    "libraries": {
      "type": "array",
      "items": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}
    },
    "downloads": {"type": "object"},
    "assetIndex": {"type": "object", "properties": {"id": {"type": "string"}, "url": {"type": "string"}}},
    "arguments": {"type": "object"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func descriptorValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaErr = compiler.Compile([]byte(descriptorSchema))
	})
	return compiledSchema, schemaErr
}

// ParseDescriptor validates and decodes a single, unmerged version JSON.
func ParseDescriptor(data []byte) (util.VersionDescriptor, error) {
	schema, err := descriptorValidator()
	if err != nil {
		return util.VersionDescriptor{}, fmt.Errorf("compile descriptor schema: %w", err)
	}
	if !json.Valid(data) {
		return util.VersionDescriptor{}, errs.New(errs.KindParseError, "", "version descriptor is not valid JSON")
	}
	var instance any
	_ = json.Unmarshal(data, &instance)
	if result := schema.Validate(instance); !result.IsValid() {
		return util.VersionDescriptor{}, errs.WithDetails(
			errs.New(errs.KindParseError, "", "version descriptor failed validation"),
			fmt.Sprint(result.Errors),
		)
	}

	raw, err := decodeObject(data)
	if err != nil {
		return util.VersionDescriptor{}, err
	}
	return fromRaw(raw)
}

func decodeObject(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, errs.Wrap(err, errs.KindParseError, "", "decode version descriptor")
	}
	return raw, nil
}

func fromRaw(raw map[string]any) (util.VersionDescriptor, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return util.VersionDescriptor{}, errs.Wrap(err, errs.KindParseError, "", "encode version descriptor")
	}
	var desc util.VersionDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return util.VersionDescriptor{}, errs.Wrap(err, errs.KindParseError, "", "decode version descriptor")
	}
	desc.Raw = raw
	return desc, nil
}

// MergeDescriptors layers child over parent. Scalar and object keys of the
// child win; libraries are unioned child first; argument lists concatenate
// parent then child. inheritsFrom never survives a merge.
func MergeDescriptors(child, parent map[string]any) map[string]any {
	merged := make(map[string]any, len(parent)+len(child))
	for k, v := range parent {
		merged[k] = v
	}
	for k, v := range child {
		switch k {
		case "inheritsFrom":
		case "libraries":
			merged[k] = mergeLibraries(asSlice(v), asSlice(parent[k]))
		case "arguments":
			merged[k] = mergeArguments(asObject(v), asObject(parent[k]))
		default:
			merged[k] = v
		}
	}
	delete(merged, "inheritsFrom")
	return merged
}

func mergeLibraries(child, parent []any) []any {
	out := make([]any, 0, len(child)+len(parent))
	seen := make(map[string]bool, len(child))
	for _, list := range [][]any{child, parent} {
		for _, lib := range list {
			key := libraryKey(lib)
			if key != "" && seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, lib)
		}
	}
	return out
}

// libraryKey identifies a library independent of its version:
// group:artifact[:classifier].
func libraryKey(lib any) string {
	name, _ := asObject(lib)["name"].(string)
	parts := strings.Split(name, ":")
	switch {
	case len(parts) >= 4:
		return parts[0] + ":" + parts[1] + ":" + parts[3]
	case len(parts) >= 2:
		return parts[0] + ":" + parts[1]
	}
	return name
}

func mergeArguments(child, parent map[string]any) map[string]any {
	merged := make(map[string]any, len(parent)+len(child))
	for k, v := range parent {
		merged[k] = v
	}
	for k, v := range child {
		if k == "game" || k == "jvm" {
			merged[k] = append(append([]any{}, asSlice(parent[k])...), asSlice(v)...)
			continue
		}
		merged[k] = v
	}
	return merged
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// ClassifyDescriptor tells vanilla from loader descriptors by entry point.
func ClassifyDescriptor(desc util.VersionDescriptor) util.LoaderKind {
	switch desc.MainClass {
	case VanillaMainClass:
		return util.LoaderVanilla
	case FabricMainClass:
		return util.LoaderFabric
	case QuiltMainClass:
		return util.LoaderQuilt
	}
	return util.LoaderUnknown
}
