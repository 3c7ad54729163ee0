package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/text"
	"github.com/mrnavastar/mclaunch/api"
	"github.com/mrnavastar/mclaunch/rpc"
	"github.com/mrnavastar/mclaunch/services"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/config"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
)

// launcher is the process wiring: stores, remote clients and services are
// built once here and handed down.
type launcher struct {
	root      string
	logger    *pterm.Logger
	router    *rpc.Router
	bus       *rpc.Bus
	installer *services.Installer
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path, path == config.DefaultPath)
	if err != nil {
		return config.Config{}, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func installRoot(cfg config.Config) (string, error) {
	if cfg.Root != "" {
		return cfg.Root, nil
	}
	root, err := fileutils.RememberedRoot()
	if err != nil {
		return "", err
	}
	if root == "" {
		return "", errs.New(errs.KindNotFound, "", "no minecraft root configured, run `mclaunch init <path>` first")
	}
	return root, nil
}

func newLauncher(c *cli.Context) (*launcher, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	root, err := installRoot(cfg)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(root, "mclaunch")
	}
	logger := util.NewLogger(cfg.LogLevel, os.Stderr)

	stores := map[string]*fileutils.Store{}
	for _, name := range []string{fileutils.StoreConfig, fileutils.StoreProfiles, fileutils.StoreCache, fileutils.StoreAuth} {
		store, err := fileutils.OpenStore(dataDir, name)
		if err != nil {
			return nil, err
		}
		stores[name] = store
	}

	client := api.NewClient(cfg)
	mojang := api.NewMojang(client, cfg.Endpoints.ManifestURL, stores[fileutils.StoreCache], cfg.ManifestTTL())
	fabric := api.NewFabric(client, cfg.Endpoints.FabricMeta)
	quilt := api.NewQuilt(client, cfg.Endpoints.QuiltMeta)
	yggdrasil := api.NewYggdrasil(client, cfg.Endpoints.AuthServer, cfg.Endpoints.SessionServer, cfg.Endpoints.ServicesServer)

	bus := rpc.NewBus(logger)
	resolver := services.NewResolver(logger)
	downloader := services.NewDownloader(client, resolver, cfg.Endpoints.LibrariesURL, cfg.Endpoints.ResourcesURL, cfg.Download.Concurrency, logger)
	installer := services.NewInstaller(root, resolver, mojang, downloader, services.NewReporter(bus, logger), logger, fabric, quilt)
	profiles := services.NewProfileStore(stores[fileutils.StoreProfiles])

	sessions := &lazySessions{build: func(ctx context.Context) (*services.SessionManager, error) {
		return services.NewSessionManager(ctx, yggdrasil, stores[fileutils.StoreAuth], fileutils.NewKeyringSecrets(""), logger)
	}}

	router := rpc.NewRouter(logger)
	rpc.RegisterControllers(router, rpc.Services{
		Root:      root,
		Resolver:  resolver,
		Installer: installer,
		Manifest:  mojang,
		Loaders: map[util.LoaderKind]rpc.ArtifactSource{
			util.LoaderFabric: fabric,
			util.LoaderQuilt:  quilt,
		},
		Mods:     api.NewModrinth(client, cfg.Endpoints.ModrinthAPI),
		Sessions: sessions,
		Profiles: profiles,
		Launcher: services.NewLauncher(root, resolver, stores[fileutils.StoreConfig], sessions, profiles, logger),
		Config:   stores[fileutils.StoreConfig],
	})

	return &launcher{root: root, logger: logger, router: router, bus: bus, installer: installer}, nil
}

// lazySessions defers token validation, which talks to the auth server,
// until a command actually needs the session.
type lazySessions struct {
	build func(ctx context.Context) (*services.SessionManager, error)

	once    sync.Once
	manager *services.SessionManager
	err     error
}

func (l *lazySessions) get(ctx context.Context) (*services.SessionManager, error) {
	l.once.Do(func() {
		l.manager, l.err = l.build(ctx)
	})
	return l.manager, l.err
}

func (l *lazySessions) Login(ctx context.Context, username, password string) (util.LoginResult, error) {
	m, err := l.get(ctx)
	if err != nil {
		return util.LoginResult{}, err
	}
	return m.Login(ctx, username, password)
}

func (l *lazySessions) Lookup(ctx context.Context, id string) (util.PublicProfile, error) {
	m, err := l.get(ctx)
	if err != nil {
		return util.PublicProfile{}, err
	}
	return m.Lookup(ctx, id)
}

func (l *lazySessions) Session(ctx context.Context) util.Session {
	m, err := l.get(ctx)
	if err != nil {
		return util.Session{}
	}
	return m.Session(ctx)
}

func (l *lazySessions) Invalidate(ctx context.Context) error {
	m, err := l.get(ctx)
	if err != nil {
		return err
	}
	return m.Invalidate(ctx)
}

func (l *lazySessions) SetTexture(ctx context.Context, option util.TextureOption) error {
	m, err := l.get(ctx)
	if err != nil {
		return err
	}
	return m.SetTexture(ctx, option)
}

// call routes a command through the RPC surface and decodes the data into out.
func (l *launcher) call(ctx context.Context, channel string, args any, out any) error {
	envelope := l.router.Call(ctx, channel, args)
	if !envelope.Success {
		return envelope.Err()
	}
	if out == nil || envelope.Data == nil {
		return nil
	}
	data, err := json.Marshal(envelope.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// action builds the launcher before running fn.
func action(fn func(c *cli.Context, l *launcher) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		l, err := newLauncher(c)
		if err != nil {
			return err
		}
		return fn(c, l)
	}
}

// install starts a task and renders its events until it ends.
func (l *launcher) install(ctx context.Context, args map[string]string) error {
	events, cancel := l.bus.Subscribe(64)
	defer cancel()

	var task util.InstallTask
	if err := l.call(ctx, "client.install", args, &task); err != nil {
		return err
	}
	defer l.installer.Wait()
	l.logger.Debug("install started", l.logger.Args("id", task.TargetId, "version", task.VanillaVersion))

	var bar *pterm.ProgressbarPrinter
	var current string
	stop := func() {
		if bar != nil {
			_, _ = bar.Stop()
			bar = nil
		}
	}
	defer stop()

	for e := range events {
		switch payload := e.Payload.(type) {
		case services.ProgressEvent:
			key := fmt.Sprintf("%d/%s", payload.Cycle, payload.Stage)
			if key != current {
				stop()
				current = key
				title := payload.StageLabel
				if services.IsAlias(payload.Layer) {
					title += " (base " + services.DecodeAlias(payload.Layer) + ")"
				}
				bar, _ = pterm.DefaultProgressbar.WithTotal(100).WithTitle(title).Start()
			}
			if bar != nil && payload.Progress > bar.Current {
				bar.Add(payload.Progress - bar.Current)
			}
		case services.CompleteEvent:
			stop()
			pterm.Success.Printfln("Installed %s (%s)", payload.Id, payload.Version)
			return nil
		case services.FailedEvent:
			stop()
			return errs.Newf(errs.KindStageFailure, string(payload.Stage), "install of %s failed during %s: %s", payload.Id, payload.Stage.Label(), payload.Message)
		}
	}
	return nil
}

func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h) + 1
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	fmt.Println()
	var line strings.Builder
	for i, h := range headers {
		line.WriteString(text.AlignDefault.Apply(h+":", widths[i]+2))
	}
	fmt.Println(line.String())
	for _, row := range rows {
		line.Reset()
		for i, cell := range row {
			if i == 0 {
				cell = text.Bold.Sprint(cell)
			}
			line.WriteString(text.AlignDefault.Apply(cell, widths[i]+2))
		}
		fmt.Println(line.String())
	}
	fmt.Println()
}

// parseValue reads a config value as JSON, falling back to a plain string.
func parseValue(raw string) json.RawMessage {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	encoded, _ := json.Marshal(raw)
	return encoded
}
