package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
)

type recordedEvent struct {
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, payload: payload})
}

func (r *recordingEmitter) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recordingEmitter) progress() []ProgressEvent {
	var out []ProgressEvent
	for _, p := range r.named(EventProgress) {
		out = append(out, p.(ProgressEvent))
	}
	return out
}

// assertMonotonic checks that progress never decreases within a stage of a
// cycle and that every listed stage reached 100.
func assertMonotonic(t *testing.T, events []ProgressEvent, cycles int) {
	t.Helper()
	type key struct {
		cycle int
		stage util.Stage
	}
	last := map[key]int{}
	for _, e := range events {
		k := key{e.Cycle, e.Stage}
		if prev, ok := last[k]; ok && e.Progress < prev {
			t.Fatalf("progress went backwards in %v: %d after %d", k, e.Progress, prev)
		}
		last[k] = e.Progress
	}
	for c := 1; c <= cycles; c++ {
		for _, stage := range util.Stages {
			if last[key{c, stage}] != 100 {
				t.Fatalf("cycle %d stage %s ended at %d", c, stage, last[key{c, stage}])
			}
		}
	}
}

const vanillaJSON = `{
  "id": "1.20.1",
  "type": "release",
  "mainClass": "net.minecraft.client.main.Main",
  "downloads": {"client": {"url": "http://invalid/client.jar", "sha1": "", "size": 0}},
  "libraries": [{"name": "com.mojang:brigadier:1.1.8"}],
  "arguments": {"game": ["--username", "${auth_player_name}"], "jvm": ["-cp", "${classpath}"]}
}`

const fabricJSON = `{
  "id": "fabric-loader-0.15.0-1.20.1",
  "inheritsFrom": "1.20.1",
  "mainClass": "net.fabricmc.loader.impl.launch.knot.KnotClient",
  "libraries": [{"name": "net.fabricmc:fabric-loader:0.15.0", "url": "https://maven.fabricmc.net/"}],
  "arguments": {"game": [], "jvm": ["-DFabricMcEmu= net.minecraft.client.main.Main "]}
}`

type fakeMetadata struct {
	body  string
	err   error
	calls atomic.Int32
}

func (f *fakeMetadata) VersionJSON(ctx context.Context, id string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type fakeLoader struct {
	kind         util.LoaderKind
	body         string
	latest       string
	requested    string
	latestCalled bool
	unsupported  bool
}

func (f *fakeLoader) Kind() util.LoaderKind { return f.kind }

func (f *fakeLoader) IsGameVersionSupported(ctx context.Context, gameVersion string) (bool, error) {
	return !f.unsupported, nil
}

func (f *fakeLoader) LatestStable(ctx context.Context, gameVersion string) (string, error) {
	f.latestCalled = true
	return f.latest, nil
}

func (f *fakeLoader) ProfileJSON(ctx context.Context, gameVersion, loaderVersion string) ([]byte, error) {
	f.requested = loaderVersion
	return []byte(f.body), nil
}

// fakeExecutor writes descriptors for real so later stages can read them and
// simulates transfers with a few progress steps.
type fakeExecutor struct {
	failStage   util.Stage
	signalStage util.Stage
	block       chan struct{}
	started     chan struct{}
	primaryIds  []string
}

func (f *fakeExecutor) step(stage util.Stage, r StageReporter) error {
	if f.started != nil && stage == util.StageDescriptor {
		f.started <- struct{}{}
	}
	if f.block != nil && stage == util.StageDescriptor {
		<-f.block
	}
	for _, p := range []int{10, 40, 40, 30, 70} {
		r.ReportProgress(p)
	}
	if stage == f.signalStage {
		r.ReportFailure(stage)
		return nil
	}
	if stage == f.failStage {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeExecutor) WriteDescriptor(ctx context.Context, root, id string, descriptor []byte, r StageReporter) error {
	if err := fileutils.WriteFileAtomic(DescriptorPath(root, id), descriptor, 0o644); err != nil {
		return err
	}
	return f.step(util.StageDescriptor, r)
}

func (f *fakeExecutor) DownloadPrimary(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error {
	f.primaryIds = append(f.primaryIds, desc.Id)
	return f.step(util.StagePrimaryArtifact, r)
}

func (f *fakeExecutor) DownloadDependencies(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error {
	return f.step(util.StageDependencyClosure, r)
}

type installFixture struct {
	root     string
	emitter  *recordingEmitter
	metadata *fakeMetadata
	loader   *fakeLoader
	executor *fakeExecutor
	resolver *Resolver
}

func newInstallFixture(t *testing.T) *installFixture {
	t.Helper()
	return &installFixture{
		root:     t.TempDir(),
		emitter:  &recordingEmitter{},
		metadata: &fakeMetadata{body: vanillaJSON},
		loader:   &fakeLoader{kind: util.LoaderFabric, body: fabricJSON, latest: "0.15.0"},
		executor: &fakeExecutor{},
		resolver: NewResolver(nil),
	}
}

func (f *installFixture) installer() *Installer {
	return NewInstaller(f.root, f.resolver, f.metadata, f.executor, NewReporter(f.emitter, nil), nil, f.loader)
}

func TestInstallVanilla(t *testing.T) {
	f := newInstallFixture(t)
	err := f.installer().Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	desc, err := f.resolver.Resolve(f.root, "1.20.1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if desc.MainClass != VanillaMainClass || ClassifyDescriptor(desc) != util.LoaderVanilla {
		t.Fatalf("unexpected descriptor: %#v", desc)
	}
	assertMonotonic(t, f.emitter.progress(), 1)
	if got := len(f.emitter.named(EventComplete)); got != 1 {
		t.Fatalf("expected one on-complete, got=%d", got)
	}
	if got := len(f.emitter.named(EventFailed)); got != 0 {
		t.Fatalf("expected no on-failed, got=%d", got)
	}
	complete := f.emitter.named(EventComplete)[0].(CompleteEvent)
	if complete.Id != "1.20.1" || complete.Version != "1.20.1" {
		t.Fatalf("unexpected completion: %#v", complete)
	}
}

func TestInstallRenamesVanillaTarget(t *testing.T) {
	f := newInstallFixture(t)
	if err := f.installer().Install(context.Background(), util.InstallTask{TargetId: "my-pack", VanillaVersion: "1.20.1"}); err != nil {
		t.Fatalf("install: %v", err)
	}
	desc, err := f.resolver.ReadDescriptor(f.root, "my-pack")
	if err != nil || desc.Id != "my-pack" {
		t.Fatalf("descriptor id not rewritten: %#v err=%v", desc, err)
	}
	if _, err := os.Stat(DescriptorPath(f.root, "1.20.1")); !os.IsNotExist(err) {
		t.Fatalf("unexpected descriptor under upstream id: %v", err)
	}
	resolved, err := f.resolver.Resolve(f.root, "my-pack")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.MinecraftVersion != "1.20.1" {
		t.Fatalf("minecraftVersion got=%q want=%q", resolved.MinecraftVersion, "1.20.1")
	}
}

func TestInstallWithLoaderBuildsTwoLayers(t *testing.T) {
	f := newInstallFixture(t)
	task := util.InstallTask{TargetId: "modded", VanillaVersion: "1.20.1", Loader: &util.Loader{Kind: util.LoaderFabric}}
	if err := f.installer().Install(context.Background(), task); err != nil {
		t.Fatalf("install: %v", err)
	}

	alias := EncodeAlias("1.20.1")
	base, err := f.resolver.ReadDescriptor(f.root, alias)
	if err != nil || base.MainClass != VanillaMainClass || base.InheritsFrom != "" {
		t.Fatalf("hidden base layer: %#v err=%v", base, err)
	}
	top, err := f.resolver.ReadDescriptor(f.root, "modded")
	if err != nil || top.InheritsFrom != alias {
		t.Fatalf("loader layer should inherit from the alias: %#v err=%v", top, err)
	}
	resolved, err := f.resolver.Resolve(f.root, "modded")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.MainClass != FabricMainClass || resolved.MinecraftVersion != "1.20.1" {
		t.Fatalf("unexpected resolved descriptor: main=%s mc=%s", resolved.MainClass, resolved.MinecraftVersion)
	}
	if len(resolved.Libraries) != 2 {
		t.Fatalf("expected merged libraries, got=%d", len(resolved.Libraries))
	}

	if !f.loader.latestCalled || f.loader.requested != "0.15.0" {
		t.Fatalf("expected latest stable loader, called=%v requested=%q", f.loader.latestCalled, f.loader.requested)
	}
	if strings.Join(f.executor.primaryIds, ",") != alias+",modded" {
		t.Fatalf("unexpected layer order: %v", f.executor.primaryIds)
	}
	assertMonotonic(t, f.emitter.progress(), 2)
	for _, e := range f.emitter.progress() {
		if e.Id != "modded" || e.Version != "1.20.1" {
			t.Fatalf("progress must describe the task: %#v", e)
		}
	}
	if got := len(f.emitter.named(EventComplete)); got != 1 {
		t.Fatalf("expected a single on-complete for both cycles, got=%d", got)
	}

	installed, err := f.resolver.ListInstalled(f.root)
	if err != nil || len(installed) != 1 || installed[0].Id != "modded" {
		t.Fatalf("alias layer must be hidden from listings: %#v err=%v", installed, err)
	}
}

func TestInstallExplicitLoaderVersion(t *testing.T) {
	f := newInstallFixture(t)
	task := util.InstallTask{TargetId: "modded", VanillaVersion: "1.20.1", Loader: &util.Loader{Kind: util.LoaderFabric, LoaderVersion: "0.14.21"}}
	if err := f.installer().Install(context.Background(), task); err != nil {
		t.Fatalf("install: %v", err)
	}
	if f.loader.latestCalled || f.loader.requested != "0.14.21" {
		t.Fatalf("explicit loader version not honoured: called=%v requested=%q", f.loader.latestCalled, f.loader.requested)
	}
}

func TestInstallPrimaryFailure(t *testing.T) {
	f := newInstallFixture(t)
	f.executor.failStage = util.StagePrimaryArtifact

	err := f.installer().Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if !errs.Is(err, errs.KindStageFailure) || errs.CodeOf(err) != string(util.StagePrimaryArtifact) {
		t.Fatalf("expected primary-artifact stage failure, got=%v", err)
	}
	failed := f.emitter.named(EventFailed)
	if len(failed) != 1 {
		t.Fatalf("expected exactly one on-failed, got=%d", len(failed))
	}
	if event := failed[0].(FailedEvent); event.Stage != util.StagePrimaryArtifact || event.Cycle != 1 {
		t.Fatalf("unexpected failure event: %#v", event)
	}
	if got := len(f.emitter.named(EventComplete)); got != 0 {
		t.Fatalf("on-complete must not follow a failure, got=%d", got)
	}
	if _, err := os.Stat(DescriptorPath(f.root, "1.20.1")); err != nil {
		t.Fatalf("descriptor written before the failure should remain: %v", err)
	}
	for _, e := range f.emitter.progress() {
		if e.Stage == util.StageDependencyClosure {
			t.Fatalf("stage after the failure ran: %#v", e)
		}
	}
}

func TestInstallReportedFailureStopsPipeline(t *testing.T) {
	f := newInstallFixture(t)
	f.executor.signalStage = util.StageDescriptor

	err := f.installer().Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if !errs.Is(err, errs.KindStageFailure) {
		t.Fatalf("expected stage failure, got=%v", err)
	}
	if got := len(f.emitter.named(EventFailed)); got != 1 {
		t.Fatalf("expected exactly one on-failed, got=%d", got)
	}
	if len(f.executor.primaryIds) != 0 {
		t.Fatal("primary stage must not start after a reported failure")
	}
}

func TestInstallLoaderRejectsUnsupportedGameVersion(t *testing.T) {
	f := newInstallFixture(t)
	f.loader.unsupported = true
	task := util.InstallTask{TargetId: "modded", VanillaVersion: "1.20.1", Loader: &util.Loader{Kind: util.LoaderFabric}}

	err := f.installer().Install(context.Background(), task)
	if !errs.Is(err, errs.KindStageFailure) || errs.CodeOf(err) != string(util.StageDescriptor) {
		t.Fatalf("expected descriptor stage failure, got=%v", err)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound cause, got=%v", err)
	}
	failed := f.emitter.named(EventFailed)
	if len(failed) != 1 {
		t.Fatalf("expected exactly one on-failed, got=%d", len(failed))
	}
	if event := failed[0].(FailedEvent); event.Cycle != 2 || !strings.Contains(event.Message, "does not support") {
		t.Fatalf("unexpected failure event: %#v", event)
	}
	if f.loader.latestCalled || f.loader.requested != "" {
		t.Fatal("loader profile must not be fetched for an unsupported game version")
	}
	if _, err := os.Stat(DescriptorPath(f.root, "modded")); !os.IsNotExist(err) {
		t.Fatalf("loader descriptor must not be written: %v", err)
	}
}

func TestInstallMetadataFailureIsDescriptorStage(t *testing.T) {
	f := newInstallFixture(t)
	f.metadata.err = errs.New(errs.KindServiceUnavailable, "", "manifest unreachable")

	err := f.installer().Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if errs.CodeOf(err) != string(util.StageDescriptor) {
		t.Fatalf("expected descriptor stage failure, got=%v", err)
	}
	event := f.emitter.named(EventFailed)[0].(FailedEvent)
	if event.Stage != util.StageDescriptor || !strings.Contains(event.Message, "manifest unreachable") {
		t.Fatalf("unexpected failure event: %#v", event)
	}
}

func TestInstallRejectsConcurrentTask(t *testing.T) {
	f := newInstallFixture(t)
	f.executor.block = make(chan struct{})
	f.executor.started = make(chan struct{}, 1)
	installer := f.installer()

	if err := installer.Start(context.Background(), util.InstallTask{TargetId: "a", VanillaVersion: "1.20.1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.executor.started
	if !installer.Busy() {
		t.Fatal("expected busy installer")
	}
	err := installer.Start(context.Background(), util.InstallTask{TargetId: "b", VanillaVersion: "1.20.1"})
	if !errs.Is(err, errs.KindTaskInProgress) {
		t.Fatalf("expected task in progress, got=%v", err)
	}
	if err := installer.Install(context.Background(), util.InstallTask{TargetId: "b", VanillaVersion: "1.20.1"}); !errs.Is(err, errs.KindTaskInProgress) {
		t.Fatalf("expected task in progress for sync install, got=%v", err)
	}

	close(f.executor.block)
	installer.Wait()
	if installer.Busy() {
		t.Fatal("installer should be released after the task ends")
	}
	if got := len(f.emitter.named(EventComplete)); got != 1 {
		t.Fatalf("expected only the first task to complete, got=%d", got)
	}
	if _, err := os.Stat(DescriptorPath(f.root, "b")); !os.IsNotExist(err) {
		t.Fatalf("rejected task must not write anything: %v", err)
	}
}

func TestInstallValidatesTask(t *testing.T) {
	f := newInstallFixture(t)
	installer := f.installer()
	cases := []util.InstallTask{
		{TargetId: "", VanillaVersion: "1.20.1"},
		{TargetId: "../escape", VanillaVersion: "1.20.1"},
		{TargetId: EncodeAlias("1.20.1"), VanillaVersion: "1.20.1"},
		{TargetId: "x", VanillaVersion: " "},
	}
	for _, task := range cases {
		if err := installer.Install(context.Background(), task); !errs.Is(err, errs.KindInvalidArgument) {
			t.Fatalf("%#v: expected invalid argument, got=%v", task, err)
		}
	}
	err := installer.Install(context.Background(), util.InstallTask{TargetId: "x", VanillaVersion: "1.20.1", Loader: &util.Loader{Kind: "forge"}})
	if errs.CodeOf(err) != "unsupported_loader" {
		t.Fatalf("expected unsupported loader, got=%v", err)
	}
	if installer.Busy() {
		t.Fatal("validation failures must not hold the installer")
	}
	if len(f.emitter.named(EventProgress)) != 0 {
		t.Fatal("rejected tasks must not emit events")
	}
}

func sha1Of(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// fakeUpstream serves a client jar, one library and a one-object asset index.
type fakeUpstream struct {
	srv   *httptest.Server
	files map[string][]byte
	hits  atomic.Int32
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{files: map[string][]byte{}}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := u.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		u.hits.Add(1)
		_, _ = w.Write(body)
	}))
	t.Cleanup(u.srv.Close)

	jar := []byte("client jar bytes")
	lib := []byte("brigadier bytes")
	loader := []byte("fabric loader bytes")
	asset := []byte("icon bytes")
	assetHash := sha1Of(asset)
	index, _ := json.Marshal(map[string]any{"objects": map[string]any{"icons/icon.png": map[string]any{"hash": assetHash, "size": len(asset)}}})

	u.files["/client.jar"] = jar
	u.files["/libraries/com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar"] = lib
	u.files["/maven/net/fabricmc/fabric-loader/0.15.0/fabric-loader-0.15.0.jar"] = loader
	u.files["/indexes/5.json"] = index
	u.files["/resources/"+assetHash[:2]+"/"+assetHash] = asset

	vanilla := map[string]any{
		"id":        "1.20.1",
		"type":      "release",
		"mainClass": VanillaMainClass,
		"assets":    "5",
		"assetIndex": map[string]any{
			"id": "5", "url": u.srv.URL + "/indexes/5.json", "sha1": sha1Of(index), "size": len(index),
		},
		"downloads": map[string]any{
			"client": map[string]any{"url": u.srv.URL + "/client.jar", "sha1": sha1Of(jar), "size": len(jar)},
		},
		"libraries": []any{map[string]any{
			"name": "com.mojang:brigadier:1.1.8",
			"downloads": map[string]any{"artifact": map[string]any{
				"path": "com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar",
				"url":  u.srv.URL + "/libraries/com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar",
				"sha1": sha1Of(lib), "size": len(lib),
			}},
		}},
	}
	data, _ := json.Marshal(vanilla)
	u.files["/meta/1.20.1.json"] = data
	return u
}

func (u *fakeUpstream) installer(t *testing.T, root string, emitter Emitter, loaders ...LoaderSource) *Installer {
	t.Helper()
	resolver := NewResolver(nil)
	client := resty.New()
	downloader := NewDownloader(client, resolver, u.srv.URL+"/libraries", u.srv.URL+"/resources", 4, nil)
	metadata := &fakeMetadata{body: string(u.files["/meta/1.20.1.json"])}
	return NewInstaller(root, resolver, metadata, downloader, NewReporter(emitter, nil), nil, loaders...)
}

func TestInstallDownloadsEverything(t *testing.T) {
	upstream := newFakeUpstream(t)
	root := t.TempDir()
	emitter := &recordingEmitter{}

	err := upstream.installer(t, root, emitter).Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	desc, err := NewResolver(nil).ReadDescriptor(root, "1.20.1")
	if err != nil || desc.MainClass != VanillaMainClass {
		t.Fatalf("descriptor: %#v err=%v", desc, err)
	}
	for _, path := range []string{
		JarPath(root, "1.20.1"),
		filepath.Join(root, "libraries", "com", "mojang", "brigadier", "1.1.8", "brigadier-1.1.8.jar"),
		filepath.Join(root, "assets", "indexes", "5.json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing %s: %v", path, err)
		}
	}
	objects, _ := filepath.Glob(filepath.Join(root, "assets", "objects", "*", "*"))
	if len(objects) != 1 {
		t.Fatalf("expected one asset object, got=%v", objects)
	}
	assertMonotonic(t, emitter.progress(), 1)

	// a second run finds everything intact and transfers nothing
	before := upstream.hits.Load()
	if err := upstream.installer(t, root, &recordingEmitter{}).Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"}); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if after := upstream.hits.Load(); after != before {
		t.Fatalf("reinstall downloaded %d files", after-before)
	}
}

func TestInstallLoaderReusesBaseJar(t *testing.T) {
	upstream := newFakeUpstream(t)
	root := t.TempDir()
	emitter := &recordingEmitter{}
	profile := strings.Replace(fabricJSON, "https://maven.fabricmc.net/", upstream.srv.URL+"/maven/", 1)
	loader := &fakeLoader{kind: util.LoaderFabric, body: profile, latest: "0.15.0"}

	task := util.InstallTask{TargetId: "modded", VanillaVersion: "1.20.1", Loader: &util.Loader{Kind: util.LoaderFabric}}
	if err := upstream.installer(t, root, emitter, loader).Install(context.Background(), task); err != nil {
		t.Fatalf("install: %v", err)
	}

	baseJar, err := os.ReadFile(JarPath(root, EncodeAlias("1.20.1")))
	if err != nil {
		t.Fatalf("base jar: %v", err)
	}
	moddedJar, err := os.ReadFile(JarPath(root, "modded"))
	if err != nil || string(moddedJar) != string(baseJar) {
		t.Fatalf("loader jar should be a copy of the base jar: err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "libraries", "net", "fabricmc", "fabric-loader", "0.15.0", "fabric-loader-0.15.0.jar")); err != nil {
		t.Fatalf("loader library missing: %v", err)
	}
	if upstream.hits.Load() > 5 {
		t.Fatalf("client jar fetched more than once: %d requests", upstream.hits.Load())
	}
	assertMonotonic(t, emitter.progress(), 2)
}

func TestInstallChecksumMismatchFails(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.files["/client.jar"] = []byte("tampered")
	root := t.TempDir()
	emitter := &recordingEmitter{}

	err := upstream.installer(t, root, emitter).Install(context.Background(), util.InstallTask{TargetId: "1.20.1", VanillaVersion: "1.20.1"})
	if errs.CodeOf(err) != string(util.StagePrimaryArtifact) {
		t.Fatalf("expected primary-artifact failure, got=%v", err)
	}
	if _, statErr := os.Stat(JarPath(root, "1.20.1")); !os.IsNotExist(statErr) {
		t.Fatalf("corrupt jar must not be left in place: %v", statErr)
	}
	if got := len(emitter.named(EventFailed)); got != 1 {
		t.Fatalf("expected one on-failed, got=%d", got)
	}
}
