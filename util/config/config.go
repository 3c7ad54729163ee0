package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const DefaultPath = "launcher.yaml"

type Config struct {
	Root      string           `yaml:"root"`
	DataDir   string           `yaml:"data_dir"`
	LogLevel  string           `yaml:"log_level"`
	Endpoints EndpointDefaults `yaml:"endpoints"`
	HTTP      HTTPDefaults     `yaml:"http"`
	Download  DownloadDefaults `yaml:"download"`
	Cache     CacheDefaults    `yaml:"cache"`
}

type EndpointDefaults struct {
	ManifestURL    string `yaml:"manifest_url"`
	ResourcesURL   string `yaml:"resources_url"`
	LibrariesURL   string `yaml:"libraries_url"`
	FabricMeta     string `yaml:"fabric_meta"`
	QuiltMeta      string `yaml:"quilt_meta"`
	AuthServer     string `yaml:"auth_server"`
	SessionServer  string `yaml:"session_server"`
	ServicesServer string `yaml:"services_server"`
	ModrinthAPI    string `yaml:"modrinth_api"`
}

type HTTPDefaults struct {
	Timeout string `yaml:"timeout"`
	Retries int    `yaml:"retries"`
}

type DownloadDefaults struct {
	Concurrency int `yaml:"concurrency"`
}

type CacheDefaults struct {
	ManifestTTL string `yaml:"manifest_ttl"`
}

func Default() Config {
	var configuration Config
	configuration.normalize()
	return configuration
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("launcher config path is required")
	}

	// #nosec G304 -- launcher config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read launcher config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Default(), nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse launcher config: %w", err)
	}
	configuration.normalize()
	if _, err := time.ParseDuration(configuration.HTTP.Timeout); err != nil {
		return Config{}, fmt.Errorf("parse launcher config: http.timeout: %w", err)
	}
	if _, err := time.ParseDuration(configuration.Cache.ManifestTTL); err != nil {
		return Config{}, fmt.Errorf("parse launcher config: cache.manifest_ttl: %w", err)
	}
	return configuration, nil
}

func (c Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c Config) ManifestTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.ManifestTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

func (c *Config) normalize() {
	c.Root = strings.TrimSpace(c.Root)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	e := &c.Endpoints
	e.ManifestURL = withDefault(e.ManifestURL, "https://launchermeta.mojang.com/mc/game/version_manifest_v2.json")
	e.ResourcesURL = trimSlash(withDefault(e.ResourcesURL, "https://resources.download.minecraft.net"))
	e.LibrariesURL = trimSlash(withDefault(e.LibrariesURL, "https://libraries.minecraft.net"))
	e.FabricMeta = trimSlash(withDefault(e.FabricMeta, "https://meta.fabricmc.net/v2"))
	e.QuiltMeta = trimSlash(withDefault(e.QuiltMeta, "https://meta.quiltmc.org/v3"))
	e.AuthServer = trimSlash(withDefault(e.AuthServer, "https://authserver.mojang.com"))
	e.SessionServer = trimSlash(withDefault(e.SessionServer, "https://sessionserver.mojang.com"))
	e.ServicesServer = trimSlash(withDefault(e.ServicesServer, "https://api.minecraftservices.com"))
	e.ModrinthAPI = trimSlash(withDefault(e.ModrinthAPI, "https://api.modrinth.com/v2"))

	c.HTTP.Timeout = withDefault(c.HTTP.Timeout, "30s")
	if c.HTTP.Retries < 0 {
		c.HTTP.Retries = 0
	}
	if c.Download.Concurrency <= 0 {
		c.Download.Concurrency = 8
	}
	c.Cache.ManifestTTL = withDefault(c.Cache.ManifestTTL, "1h")
}

func withDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func trimSlash(value string) string {
	return strings.TrimRight(value, "/")
}
