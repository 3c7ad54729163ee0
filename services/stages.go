package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/pterm/pterm"
)

// Downloader is the default StageExecutor: it writes descriptors and fetches
// jars, libraries and assets over the shared resty client, skipping files that
// are already present and intact.
type Downloader struct {
	client       *resty.Client
	resolver     *Resolver
	librariesURL string
	resourcesURL string
	concurrency  int
	osName       string
	arch         string
	logger       *pterm.Logger
}

func NewDownloader(client *resty.Client, resolver *Resolver, librariesURL, resourcesURL string, concurrency int, logger *pterm.Logger) *Downloader {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Downloader{
		client:       client,
		resolver:     resolver,
		librariesURL: strings.TrimRight(librariesURL, "/"),
		resourcesURL: strings.TrimRight(resourcesURL, "/"),
		concurrency:  concurrency,
		osName:       mojangOS(runtime.GOOS),
		arch:         mojangArch(runtime.GOARCH),
		logger:       logger,
	}
}

func mojangOS(goos string) string {
	if goos == "darwin" {
		return "osx"
	}
	return goos
}

func mojangArch(goarch string) string {
	switch goarch {
	case "386", "arm":
		return "32"
	}
	return "64"
}

func (d *Downloader) WriteDescriptor(ctx context.Context, root, id string, descriptor []byte, r StageReporter) error {
	if _, err := ParseDescriptor(descriptor); err != nil {
		return err
	}
	if err := fileutils.WriteFileAtomic(DescriptorPath(root, id), descriptor, 0o644); err != nil {
		return err
	}
	r.ReportProgress(100)
	return nil
}

func (d *Downloader) DownloadPrimary(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error {
	client, chain := desc.Downloads["client"], []string{desc.Id}
	if client.Url == "" {
		resolved, err := d.resolver.Resolve(root, desc.Id)
		if err != nil {
			return err
		}
		client, chain = resolved.Downloads["client"], resolved.Inheritances
	}
	if client.Url == "" {
		return errs.Newf(errs.KindInvalidArgument, "", "version %s has no client download", desc.Id)
	}

	dest := JarPath(root, desc.Id)
	if fileutils.FileMatches(dest, client.Sha1, client.Size) {
		d.logger.Debug("client jar up to date", d.logger.Args("id", desc.Id))
		r.ReportProgress(100)
		return nil
	}
	for _, ancestor := range chain[1:] {
		if client.Sha1 == "" {
			break
		}
		if src := JarPath(root, ancestor); fileutils.FileMatches(src, client.Sha1, client.Size) {
			d.logger.Debug("reusing ancestor jar", d.logger.Args("id", desc.Id, "from", ancestor))
			if err := fileutils.CopyFile(src, dest); err != nil {
				return err
			}
			r.ReportProgress(100)
			return nil
		}
	}

	counter := &fileutils.WriteCounter{
		Total:    client.Size,
		Progress: func(done, total int64) { r.ReportProgress(Percent(done, total)) },
	}
	return fileutils.DownloadFile(ctx, d.client, client.Url, dest, client.Sha1, counter)
}

type downloadJob struct {
	url  string
	path string
	sha1 string
	size int64
}

type assetObjects struct {
	Objects map[string]struct {
		Hash string `json:"hash"`
		Size int64  `json:"size"`
	} `json:"objects"`
}

func (d *Downloader) DownloadDependencies(ctx context.Context, root string, desc util.VersionDescriptor, r StageReporter) error {
	jobs := d.libraryJobs(root, desc)

	if desc.AssetIndex != nil && desc.AssetIndex.Url != "" {
		indexPath := filepath.Join(root, "assets", "indexes", desc.AssetIndex.Id+".json")
		if !fileutils.FileMatches(indexPath, desc.AssetIndex.Sha1, desc.AssetIndex.Size) {
			if err := fileutils.DownloadFile(ctx, d.client, desc.AssetIndex.Url, indexPath, desc.AssetIndex.Sha1, nil); err != nil {
				return err
			}
		}
		// #nosec G304 -- index path is derived from the installation root.
		data, err := os.ReadFile(indexPath)
		if err != nil {
			return fmt.Errorf("read asset index: %w", err)
		}
		var index assetObjects
		if err := json.Unmarshal(data, &index); err != nil {
			return errs.Wrap(err, errs.KindParseError, "", "parse asset index "+desc.AssetIndex.Id)
		}
		seen := make(map[string]bool, len(index.Objects))
		for _, object := range index.Objects {
			if len(object.Hash) < 2 || seen[object.Hash] {
				continue
			}
			seen[object.Hash] = true
			prefix := object.Hash[:2]
			jobs = append(jobs, downloadJob{
				url:  d.resourcesURL + "/" + prefix + "/" + object.Hash,
				path: filepath.Join(root, "assets", "objects", prefix, object.Hash),
				sha1: object.Hash,
				size: object.Size,
			})
		}
	}

	return d.runJobs(ctx, jobs, r)
}

// runJobs downloads jobs on a bounded pool. Progress counts finished units and
// is reported under the lock so the stream stays ordered.
func (d *Downloader) runJobs(ctx context.Context, jobs []downloadJob, r StageReporter) error {
	total := int64(len(jobs))
	if total == 0 {
		r.ReportProgress(100)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		done     int64
		firstErr error
		wg       sync.WaitGroup
	)
	queue := make(chan downloadJob)
	workers := d.concurrency
	if int64(workers) > total {
		workers = int(total)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				err := d.fetch(ctx, job)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
					cancel()
				}
				done++
				if firstErr == nil {
					r.ReportProgress(Percent(done, total))
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (d *Downloader) fetch(ctx context.Context, job downloadJob) error {
	if fileutils.FileMatches(job.path, job.sha1, job.size) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Debug("downloading", d.logger.Args("url", job.url))
	return fileutils.DownloadFile(ctx, d.client, job.url, job.path, job.sha1, nil)
}

func (d *Downloader) libraryJobs(root string, desc util.VersionDescriptor) []downloadJob {
	var jobs []downloadJob
	for _, lib := range desc.Libraries {
		if !rulesAllow(lib.Rules, d.osName) {
			continue
		}
		if a := lib.Downloads.Artifact; a != nil && a.Url != "" {
			path := a.Path
			if path == "" {
				path = MavenPath(lib.Name)
			}
			jobs = append(jobs, downloadJob{url: a.Url, path: filepath.Join(root, "libraries", filepath.FromSlash(path)), sha1: a.Sha1, size: a.Size})
		} else if lib.Downloads.Artifact == nil && len(lib.Natives) == 0 && lib.Name != "" {
			base := d.librariesURL
			if lib.Url != "" {
				base = strings.TrimRight(lib.Url, "/")
			}
			path := MavenPath(lib.Name)
			jobs = append(jobs, downloadJob{url: base + "/" + path, path: filepath.Join(root, "libraries", filepath.FromSlash(path))})
		}

		if classifier, ok := lib.Natives[d.osName]; ok {
			classifier = strings.ReplaceAll(classifier, "${arch}", d.arch)
			if a, ok := lib.Downloads.Classifiers[classifier]; ok && a.Url != "" {
				jobs = append(jobs, downloadJob{url: a.Url, path: filepath.Join(root, "libraries", filepath.FromSlash(a.Path)), sha1: a.Sha1, size: a.Size})
			}
		}
	}
	return jobs
}

// rulesAllow evaluates library rules for osName. Feature-gated rules never
// match since no optional features are enabled.
func rulesAllow(rules []util.Rule, osName string) bool {
	if len(rules) == 0 {
		return true
	}
	allowed := false
	for _, rule := range rules {
		if len(rule.Features) > 0 {
			continue
		}
		if name, ok := rule.Os["name"]; ok && name != osName {
			continue
		}
		allowed = rule.Action == "allow"
	}
	return allowed
}

// MavenPath maps group:artifact:version[:classifier][@ext] to its repository
// path.
func MavenPath(coordinates string) string {
	ext := "jar"
	if at := strings.LastIndex(coordinates, "@"); at >= 0 {
		ext = coordinates[at+1:]
		coordinates = coordinates[:at]
	}
	parts := strings.Split(coordinates, ":")
	if len(parts) < 3 {
		return coordinates
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	file := artifact + "-" + version
	if len(parts) > 3 && parts[3] != "" {
		file += "-" + parts[3]
	}
	return strings.ReplaceAll(group, ".", "/") + "/" + artifact + "/" + version + "/" + file + "." + ext
}
