package services

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/pterm/pterm"
)

const (
	LauncherName    = "mclaunch"
	LauncherVersion = "1.0.0"

	// DefaultJavaArgs tunes G1 for a modded client.
	DefaultJavaArgs = "-Xmx2G -XX:+UnlockExperimentalVMOptions -XX:+UseG1GC -XX:G1NewSizePercent=20 -XX:G1ReservePercent=20 -XX:MaxGCPauseMillis=50 -XX:G1HeapRegionSize=32M"

	offlineAccessToken = "0"
)

// Runtime settings read from the config namespace of the store.
const (
	ConfigJavaPath   = "java.path"
	ConfigJavaArgs   = "java.args"
	ConfigGameWidth  = "game.width"
	ConfigGameHeight = "game.height"
)

type LaunchOptions struct {
	Root        string
	JavaPath    string
	JavaArgs    []string
	PlayerName  string
	PlayerUUID  string
	AccessToken string
	UserType    string
	Width       int
	Height      int
	// OS overrides the host platform name used for rule evaluation.
	OS string
}

// LaunchCommand is a fully expanded java invocation.
type LaunchCommand struct {
	Java       string   `json:"java"`
	JvmArgs    []string `json:"jvmArgs"`
	MainClass  string   `json:"mainClass"`
	GameArgs   []string `json:"gameArgs"`
	Classpath  []string `json:"classpath"`
	NativesDir string   `json:"nativesDir"`
}

func (c LaunchCommand) Args() []string {
	args := make([]string, 0, len(c.JvmArgs)+len(c.GameArgs)+1)
	args = append(args, c.JvmArgs...)
	args = append(args, c.MainClass)
	return append(args, c.GameArgs...)
}

var placeholder = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

// BuildLaunchCommand expands a resolved descriptor into a java command line.
// Descriptors with an arguments block use it; older ones fall back to the
// space separated minecraftArguments string.
func BuildLaunchCommand(desc util.VersionDescriptor, opts LaunchOptions) (LaunchCommand, error) {
	if desc.MainClass == "" {
		return LaunchCommand{}, errs.Newf(errs.KindInvalidArgument, "", "version %s has no main class", desc.Id)
	}
	if opts.Root == "" {
		return LaunchCommand{}, errs.New(errs.KindInvalidArgument, "", "installation root is required")
	}
	osName := opts.OS
	if osName == "" {
		osName = mojangOS(runtime.GOOS)
	}
	java := opts.JavaPath
	if java == "" {
		java = "java"
	}

	cmd := LaunchCommand{
		Java:       java,
		MainClass:  desc.MainClass,
		Classpath:  classpath(opts.Root, desc, osName),
		NativesDir: filepath.Join(opts.Root, "versions", desc.Id, "natives"),
	}

	separator := string(os.PathListSeparator)
	if osName == "windows" {
		separator = ";"
	}
	assetsId := desc.Assets
	if assetsId == "" && desc.AssetIndex != nil {
		assetsId = desc.AssetIndex.Id
	}
	userType := opts.UserType
	if userType == "" {
		userType = "mojang"
	}
	values := map[string]string{
		"auth_player_name":    opts.PlayerName,
		"auth_uuid":           strings.ReplaceAll(opts.PlayerUUID, "-", ""),
		"auth_access_token":   opts.AccessToken,
		"auth_session":        opts.AccessToken,
		"auth_xuid":           "0",
		"clientid":            "0",
		"user_type":           userType,
		"user_properties":     "{}",
		"version_name":        desc.Id,
		"version_type":        desc.Type,
		"game_directory":      opts.Root,
		"assets_root":         filepath.Join(opts.Root, "assets"),
		"game_assets":         filepath.Join(opts.Root, "assets"),
		"assets_index_name":   assetsId,
		"library_directory":   filepath.Join(opts.Root, "libraries"),
		"natives_directory":   cmd.NativesDir,
		"classpath":           strings.Join(cmd.Classpath, separator),
		"classpath_separator": separator,
		"launcher_name":       LauncherName,
		"launcher_version":    LauncherVersion,
		"resolution_width":    strconv.Itoa(opts.Width),
		"resolution_height":   strconv.Itoa(opts.Height),
	}
	expand := func(args []string) []string {
		out := make([]string, len(args))
		for i, arg := range args {
			out[i] = placeholder.ReplaceAllStringFunc(arg, func(m string) string {
				if v, ok := values[m[2:len(m)-1]]; ok {
					return v
				}
				return m
			})
		}
		return out
	}

	features := map[string]bool{"has_custom_resolution": opts.Width > 0 && opts.Height > 0}

	jvm := append([]string{}, opts.JavaArgs...)
	var game []string
	if len(desc.Arguments.Jvm) > 0 || len(desc.Arguments.Game) > 0 {
		jvmArgs, err := argumentValues(desc.Arguments.Jvm, osName, features)
		if err != nil {
			return LaunchCommand{}, err
		}
		gameArgs, err := argumentValues(desc.Arguments.Game, osName, features)
		if err != nil {
			return LaunchCommand{}, err
		}
		jvm = append(jvm, jvmArgs...)
		game = gameArgs
	} else {
		jvm = append(jvm, "-Djava.library.path=${natives_directory}", "-cp", "${classpath}")
		game = strings.Fields(desc.MinecraftArguments)
		if features["has_custom_resolution"] {
			game = append(game, "--width", "${resolution_width}", "--height", "${resolution_height}")
		}
	}
	if !hasClasspathArg(jvm) {
		jvm = append(jvm, "-cp", "${classpath}")
	}

	cmd.JvmArgs = expand(jvm)
	cmd.GameArgs = expand(game)
	return cmd, nil
}

func hasClasspathArg(args []string) bool {
	for _, arg := range args {
		if arg == "-cp" || arg == "-classpath" || arg == "--class-path" {
			return true
		}
	}
	return false
}

type conditionalArgument struct {
	Rules []util.Rule `json:"rules"`
	Value any         `json:"value"`
}

// argumentValues flattens a modern argument list. Conditional entries are
// kept when their rules allow the platform and enabled features.
func argumentValues(list []any, osName string, features map[string]bool) ([]string, error) {
	var out []string
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, errs.Wrap(err, errs.KindParseError, "", "encode argument")
			}
			var arg conditionalArgument
			if err := json.Unmarshal(data, &arg); err != nil {
				return nil, errs.Wrap(err, errs.KindParseError, "", "decode argument")
			}
			if !argumentRulesAllow(arg.Rules, osName, features) {
				continue
			}
			switch value := arg.Value.(type) {
			case string:
				out = append(out, value)
			case []any:
				for _, s := range value {
					if str, ok := s.(string); ok {
						out = append(out, str)
					}
				}
			}
		}
	}
	return out, nil
}

// argumentRulesAllow differs from rulesAllow in that features may be enabled.
func argumentRulesAllow(rules []util.Rule, osName string, features map[string]bool) bool {
	if len(rules) == 0 {
		return true
	}
	allowed := false
	for _, rule := range rules {
		if name, ok := rule.Os["name"]; ok && name != osName {
			continue
		}
		if arch, ok := rule.Os["arch"]; ok && arch != runtime.GOARCH && !(arch == "x86" && runtime.GOARCH == "386") {
			continue
		}
		matched := true
		for feature, want := range rule.Features {
			if features[feature] != want {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		allowed = rule.Action == "allow"
	}
	return allowed
}

// classpath lists the library jars allowed on osName followed by the client
// jar. Native-only libraries are extracted instead.
func classpath(root string, desc util.VersionDescriptor, osName string) []string {
	var entries []string
	seen := map[string]bool{}
	for _, lib := range desc.Libraries {
		if !rulesAllow(lib.Rules, osName) {
			continue
		}
		var path string
		switch {
		case lib.Downloads.Artifact != nil && lib.Downloads.Artifact.Path != "":
			path = lib.Downloads.Artifact.Path
		case lib.Downloads.Artifact == nil && len(lib.Natives) > 0:
			continue
		case lib.Name != "":
			path = MavenPath(lib.Name)
		default:
			continue
		}
		full := filepath.Join(root, "libraries", filepath.FromSlash(path))
		if seen[full] {
			continue
		}
		seen[full] = true
		entries = append(entries, full)
	}
	return append(entries, JarPath(root, desc.Id))
}

// SessionSource yields the current authenticated session.
type SessionSource interface {
	Session(ctx context.Context) util.Session
}

// SelectedProfileSource yields the selected offline profile, or nil.
type SelectedProfileSource interface {
	GetSelectedProfile() (*util.Profile, error)
}

type LaunchResult struct {
	Pid     int           `json:"pid"`
	Version string        `json:"version"`
	Player  string        `json:"player"`
	Offline bool          `json:"offline"`
	Command LaunchCommand `json:"command"`
}

// Launcher starts installed versions with the current identity.
type Launcher struct {
	root     string
	resolver *Resolver
	config   *fileutils.Store
	sessions SessionSource
	profiles SelectedProfileSource
	logger   *pterm.Logger

	start func(cmd *exec.Cmd) error
}

func NewLauncher(root string, resolver *Resolver, config *fileutils.Store, sessions SessionSource, profiles SelectedProfileSource, logger *pterm.Logger) *Launcher {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Launcher{
		root:     root,
		resolver: resolver,
		config:   config,
		sessions: sessions,
		profiles: profiles,
		logger:   logger,
		start:    startDetached,
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Prepare resolves version and builds its command line without starting it.
// The signed-in profile wins; otherwise the selected offline profile plays
// with a dummy token.
func (l *Launcher) Prepare(ctx context.Context, version string) (LaunchResult, error) {
	desc, err := l.resolver.Resolve(l.root, version)
	if err != nil {
		return LaunchResult{}, err
	}

	opts := LaunchOptions{Root: l.root}
	result := LaunchResult{Version: desc.Id}
	session := l.sessions.Session(ctx)
	switch {
	case session.SignedIn && session.Profile != nil && session.Account != nil:
		opts.PlayerName = session.Profile.Name
		opts.PlayerUUID = session.Profile.Id
		opts.AccessToken = session.Account.AccessToken
		opts.UserType = "mojang"
	default:
		profile, err := l.profiles.GetSelectedProfile()
		if err != nil {
			return LaunchResult{}, err
		}
		if profile == nil {
			return LaunchResult{}, errs.New(errs.KindAuthRejected, "not_signed_in", "sign in or select an offline profile to play")
		}
		opts.PlayerName = profile.Name
		opts.PlayerUUID = profile.Id
		opts.AccessToken = offlineAccessToken
		opts.UserType = "legacy"
		result.Offline = true
	}
	result.Player = opts.PlayerName

	if opts.JavaPath, err = l.config.GetString(ConfigJavaPath); err != nil {
		return LaunchResult{}, err
	}
	javaArgs, err := l.config.GetString(ConfigJavaArgs)
	if err != nil {
		return LaunchResult{}, err
	}
	if javaArgs == "" {
		javaArgs = DefaultJavaArgs
	}
	opts.JavaArgs = strings.Fields(javaArgs)
	if _, err := l.config.Get(ConfigGameWidth, &opts.Width); err != nil {
		return LaunchResult{}, err
	}
	if _, err := l.config.Get(ConfigGameHeight, &opts.Height); err != nil {
		return LaunchResult{}, err
	}

	result.Command, err = BuildLaunchCommand(desc, opts)
	if err != nil {
		return LaunchResult{}, err
	}
	if err := extractNatives(l.root, desc, result.Command.NativesDir, mojangOS(runtime.GOOS), mojangArch(runtime.GOARCH)); err != nil {
		return LaunchResult{}, err
	}
	return result, nil
}

func (l *Launcher) Launch(ctx context.Context, version string) (LaunchResult, error) {
	result, err := l.Prepare(ctx, version)
	if err != nil {
		return LaunchResult{}, err
	}
	// #nosec G204 -- java path and arguments come from local configuration.
	cmd := exec.Command(result.Command.Java, result.Command.Args()...)
	cmd.Dir = l.root
	if err := l.start(cmd); err != nil {
		return LaunchResult{}, errs.Wrap(err, errs.KindInternal, "launch_failed", "start "+result.Command.Java)
	}
	if cmd.Process != nil {
		result.Pid = cmd.Process.Pid
	}
	l.logger.Info("game started", l.logger.Args("version", result.Version, "player", result.Player, "offline", result.Offline, "pid", result.Pid))
	return result, nil
}

// extractNatives unpacks legacy native classifier jars into dir, skipping
// META-INF. Files already present are left alone.
func extractNatives(root string, desc util.VersionDescriptor, dir, osName, arch string) error {
	for _, lib := range desc.Libraries {
		classifier, ok := lib.Natives[osName]
		if !ok || !rulesAllow(lib.Rules, osName) {
			continue
		}
		classifier = strings.ReplaceAll(classifier, "${arch}", arch)
		artifact, ok := lib.Downloads.Classifiers[classifier]
		if !ok || artifact.Path == "" {
			continue
		}
		jar := filepath.Join(root, "libraries", filepath.FromSlash(artifact.Path))
		if err := unzip(jar, dir); err != nil {
			return errs.Wrap(err, errs.KindInternal, "", "extract natives from "+filepath.Base(jar))
		}
	}
	return nil
}

func unzip(archive, dir string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer reader.Close()
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || strings.HasPrefix(file.Name, "META-INF/") {
			continue
		}
		dest := filepath.Join(dir, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("entry %q escapes the natives directory", file.Name)
		}
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := extractFile(file, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, dest string) error {
	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(io.LimitReader(in, int64(file.UncompressedSize64)))
	if err != nil {
		return err
	}
	return fileutils.WriteFileAtomic(dest, data, 0o755)
}
