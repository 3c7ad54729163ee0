package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/pterm/pterm"
)

// MetadataSource yields upstream vanilla descriptors.
type MetadataSource interface {
	VersionJSON(ctx context.Context, id string) ([]byte, error)
}

// LoaderSource yields loader descriptors layered on a vanilla version.
type LoaderSource interface {
	Kind() util.LoaderKind
	IsGameVersionSupported(ctx context.Context, gameVersion string) (bool, error)
	LatestStable(ctx context.Context, gameVersion string) (string, error)
	ProfileJSON(ctx context.Context, gameVersion, loaderVersion string) ([]byte, error)
}

// StageExecutor performs the transfer work of each stage. The installer only
// sequences the calls.
type StageExecutor interface {
	WriteDescriptor(ctx context.Context, root, id string, descriptor []byte, r StageReporter) error
	DownloadPrimary(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error
	DownloadDependencies(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error
}

// Installer drives one install task at a time through its stage cycles.
type Installer struct {
	root     string
	resolver *Resolver
	metadata MetadataSource
	loaders  map[util.LoaderKind]LoaderSource
	executor StageExecutor
	reporter *Reporter
	logger   *pterm.Logger

	busy atomic.Bool
	wg   sync.WaitGroup
}

func NewInstaller(root string, resolver *Resolver, metadata MetadataSource, executor StageExecutor, reporter *Reporter, logger *pterm.Logger, loaders ...LoaderSource) *Installer {
	if logger == nil {
		logger = util.NopLogger()
	}
	byKind := make(map[util.LoaderKind]LoaderSource, len(loaders))
	for _, l := range loaders {
		byKind[l.Kind()] = l
	}
	return &Installer{
		root:     root,
		resolver: resolver,
		metadata: metadata,
		loaders:  byKind,
		executor: executor,
		reporter: reporter,
		logger:   logger,
	}
}

func (i *Installer) Root() string {
	return i.root
}

func (i *Installer) Busy() bool {
	return i.busy.Load()
}

// Start validates and claims the installer, then runs the task in the
// background. Outcomes arrive only as events.
func (i *Installer) Start(ctx context.Context, task util.InstallTask) error {
	if err := i.acquire(task); err != nil {
		return err
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.busy.Store(false)
		_ = i.run(context.WithoutCancel(ctx), task)
	}()
	return nil
}

// Install runs the task to completion on the caller's goroutine. Events are
// emitted exactly as for Start; the returned error mirrors on-failed.
func (i *Installer) Install(ctx context.Context, task util.InstallTask) error {
	if err := i.acquire(task); err != nil {
		return err
	}
	defer i.busy.Store(false)
	return i.run(ctx, task)
}

// Wait blocks until background tasks started with Start have finished.
func (i *Installer) Wait() {
	i.wg.Wait()
}

func (i *Installer) acquire(task util.InstallTask) error {
	if err := validateVersionId(task.TargetId); err != nil {
		return err
	}
	if IsAlias(task.TargetId) {
		return errs.Newf(errs.KindInvalidArgument, "", "target id may not start with %q", AliasSentinel)
	}
	if strings.TrimSpace(task.VanillaVersion) == "" {
		return errs.New(errs.KindInvalidArgument, "", "vanilla version is required")
	}
	if task.Loader != nil {
		if _, ok := i.loaders[task.Loader.Kind]; !ok {
			return errs.Newf(errs.KindInvalidArgument, "unsupported_loader", "unsupported loader kind %q", task.Loader.Kind)
		}
	}
	if !i.busy.CompareAndSwap(false, true) {
		return errs.New(errs.KindTaskInProgress, "", "an install task is already in progress")
	}
	return nil
}

// layer is one install cycle: a descriptor source and the id it lands under.
type layer struct {
	id               string
	inheritsFrom     string
	minecraftVersion string
	fetch            func(ctx context.Context) ([]byte, error)
}

func (i *Installer) run(ctx context.Context, task util.InstallTask) error {
	i.logger.Info("install started", i.logger.Args("id", task.TargetId, "version", task.VanillaVersion, "loader", task.Loader != nil))
	vanilla := func(ctx context.Context) ([]byte, error) {
		return i.metadata.VersionJSON(ctx, task.VanillaVersion)
	}

	if task.Loader == nil {
		if err := i.cycle(ctx, task, 1, layer{id: task.TargetId, minecraftVersion: task.VanillaVersion, fetch: vanilla}); err != nil {
			return err
		}
		i.reporter.complete(task)
		return nil
	}

	alias := EncodeAlias(task.VanillaVersion)
	if err := i.cycle(ctx, task, 1, layer{id: alias, minecraftVersion: task.VanillaVersion, fetch: vanilla}); err != nil {
		return err
	}

	source := i.loaders[task.Loader.Kind]
	loaderLayer := layer{
		id:           task.TargetId,
		inheritsFrom: alias,
		fetch: func(ctx context.Context) ([]byte, error) {
			supported, err := source.IsGameVersionSupported(ctx, task.VanillaVersion)
			if err != nil {
				return nil, err
			}
			if !supported {
				return nil, errs.Newf(errs.KindNotFound, "unsupported_game_version", "%s does not support minecraft %s", task.Loader.Kind, task.VanillaVersion)
			}
			loaderVersion := task.Loader.LoaderVersion
			if loaderVersion == "" {
				latest, err := source.LatestStable(ctx, task.VanillaVersion)
				if err != nil {
					return nil, err
				}
				loaderVersion = latest
			}
			return source.ProfileJSON(ctx, task.VanillaVersion, loaderVersion)
		},
	}
	if err := i.cycle(ctx, task, 2, loaderLayer); err != nil {
		return err
	}
	i.reporter.complete(task)
	return nil
}

func (i *Installer) cycle(ctx context.Context, task util.InstallTask, n int, l layer) error {
	// descriptor
	sr := i.reporter.stage(task, n, l.id, util.StageDescriptor)
	sr.ReportProgress(0)
	raw, err := l.fetch(ctx)
	if err == nil {
		raw, err = rewriteDescriptor(raw, l.id, l.inheritsFrom, l.minecraftVersion)
	}
	if err == nil {
		err = i.executor.WriteDescriptor(ctx, i.root, l.id, raw, sr)
	}
	if err := i.finish(task, n, sr, err); err != nil {
		return err
	}

	// primary artifact, against a fresh read of what stage A wrote
	sr = i.reporter.stage(task, n, l.id, util.StagePrimaryArtifact)
	sr.ReportProgress(0)
	desc, err := i.resolver.ReadDescriptor(i.root, l.id)
	if err == nil {
		desc.Id = l.id
		desc.Raw["id"] = l.id
		err = i.executor.DownloadPrimary(ctx, i.root, desc, sr)
	}
	if err := i.finish(task, n, sr, err); err != nil {
		return err
	}

	// dependency closure over the merged chain
	sr = i.reporter.stage(task, n, l.id, util.StageDependencyClosure)
	sr.ReportProgress(0)
	wrote, err := fileutils.WriteJSON(DescriptorPath(i.root, l.id), desc.Raw)
	if err == nil {
		i.logger.Debug("descriptor persisted", i.logger.Args("id", l.id, "rewritten", wrote))
		var resolved util.VersionDescriptor
		resolved, err = i.resolver.Resolve(i.root, l.id)
		if err == nil {
			err = i.executor.DownloadDependencies(ctx, i.root, resolved, sr)
		}
	}
	return i.finish(task, n, sr, err)
}

// finish closes a stage: success reports 100, failure emits the one on-failed
// event of the task and returns a StageFailure.
func (i *Installer) finish(task util.InstallTask, n int, sr *stageReporter, err error) error {
	if err == nil && !sr.hasFailed() {
		sr.ReportProgress(100)
		i.logger.Info("stage complete", i.logger.Args("id", task.TargetId, "layer", sr.layer, "stage", sr.stage))
		return nil
	}
	if err == nil {
		err = errs.Newf(errs.KindStageFailure, string(sr.stage), "stage %s reported failure", sr.stage)
	}
	i.reporter.failed(task, n, sr.stage, err)
	return errs.Wrap(err, errs.KindStageFailure, string(sr.stage), "stage "+string(sr.stage)+" failed")
}

// rewriteDescriptor renames an upstream descriptor to id. Vanilla layers get
// minecraftVersion stamped since their id no longer names the game version.
func rewriteDescriptor(raw []byte, id, inheritsFrom, minecraftVersion string) ([]byte, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	doc["id"] = id
	if minecraftVersion != "" {
		doc["minecraftVersion"] = minecraftVersion
	}
	if inheritsFrom != "" {
		doc["inheritsFrom"] = inheritsFrom
	} else {
		delete(doc, "inheritsFrom")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "", "encode descriptor "+id)
	}
	return data, nil
}
