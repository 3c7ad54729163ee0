package fileutils

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/gowebpki/jcs"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mclaunch"
	keyringRootKey = "dot_minecraft"
)

// Setup prepares an installation root and remembers it for later runs.
func Setup(dotMinecraft string) error {
	if !filepath.IsAbs(dotMinecraft) {
		return errs.Newf(errs.KindInvalidArgument, "", "minecraft root must be an absolute path: %q", dotMinecraft)
	}
	for _, dir := range []string{"versions", "libraries", "assets/indexes", "assets/objects"} {
		if err := os.MkdirAll(filepath.Join(dotMinecraft, dir), 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return keyring.Set(keyringService, keyringRootKey, dotMinecraft)
}

// RememberedRoot returns the root stored by Setup, or "" when none was stored.
func RememberedRoot() (string, error) {
	root, err := keyring.Get(keyringService, keyringRootKey)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	return root, err
}

// WriteCounter counts bytes flowing through a download and reports them.
type WriteCounter struct {
	Total    int64
	Size     int64
	Progress func(done, total int64)
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Size += int64(n)
	wc.PrintProgress()
	return n, nil
}

func (wc WriteCounter) PrintProgress() {
	if wc.Progress != nil {
		wc.Progress(wc.Size, wc.Total)
	}
}

// DownloadFile streams url into path and verifies the sha1 when one is
// given. counter may be nil. A failed or mismatched download leaves path as it
// was.
func DownloadFile(ctx context.Context, client *resty.Client, url string, path string, sha1sum string, counter *WriteCounter) error {
	resp, err := client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return errs.Wrap(err, errs.KindServiceUnavailable, "download_failed", "download "+url)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() == 404 {
		return errs.Newf(errs.KindNotFound, "", "download %s: not found", url)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return errs.Newf(errs.KindServiceUnavailable, "download_failed", "download %s: HTTP %d", url, resp.StatusCode())
	}

	return streamAtomic(path, 0o644, func(w io.Writer) error {
		hash := sha1.New()
		writers := []io.Writer{w, hash}
		if counter != nil {
			if counter.Total <= 0 {
				counter.Total = resp.RawResponse.ContentLength
			}
			writers = append(writers, counter)
		}
		if _, err := io.Copy(io.MultiWriter(writers...), body); err != nil {
			return errs.Wrap(err, errs.KindServiceUnavailable, "download_failed", "write "+filepath.Base(path))
		}
		if sha1sum == "" {
			return nil
		}
		if got := hex.EncodeToString(hash.Sum(nil)); !strings.EqualFold(got, sha1sum) {
			return errs.Newf(errs.KindServiceUnavailable, "checksum_mismatch", "download %s: sha1 %s, expected %s", url, got, sha1sum)
		}
		return nil
	})
}

// FileMatches reports whether path exists and agrees with the given sha1 and
// size. Empty sha1 and zero size are not checked.
func FileMatches(path string, sha1sum string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if size > 0 && info.Size() != size {
		return false
	}
	if sha1sum == "" {
		return true
	}
	got, err := Sha1File(path)
	if err != nil {
		return false
	}
	return strings.EqualFold(got, sha1sum)
}

func Sha1File(path string) (string, error) {
	// #nosec G304 -- path is derived from the installation root.
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := sha1.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string) error {
	// #nosec G304 -- path is derived from the installation root.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return streamAtomic(dst, 0o644, func(w io.Writer) error {
		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
		}
		return nil
	})
}

// WriteFileAtomic replaces path with content, creating parent directories.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	return streamAtomic(path, mode, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

// streamAtomic fills a temp file next to path and renames it into place once
// fill succeeds and the data is synced. On any error the temp file is removed
// and path is untouched. Errors from fill are returned as is.
func streamAtomic(path string, mode os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	err = fill(tmp)
	if err == nil {
		if syncErr := tmp.Sync(); syncErr != nil {
			err = fmt.Errorf("sync %s: %w", filepath.Base(path), syncErr)
		}
	}
	if err == nil {
		if chmodErr := tmp.Chmod(mode); chmodErr != nil {
			err = fmt.Errorf("chmod %s: %w", filepath.Base(path), chmodErr)
		}
	}
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", filepath.Base(path), closeErr)
	}
	if err == nil {
		err = rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// rename moves from over to. Windows refuses to rename over an existing file,
// so the destination is removed first there.
func rename(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	if removeErr := os.Remove(to); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("replace %s: %w", filepath.Base(to), removeErr)
	}
	return os.Rename(from, to)
}

// WriteJSON writes value indented, skipping the write when the file already
// holds the same document in canonical form. It reports whether it wrote.
func WriteJSON(path string, value any) (bool, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	// #nosec G304 -- path is derived from the installation root.
	if existing, err := os.ReadFile(path); err == nil {
		same, cmpErr := SameJSON(existing, data)
		if cmpErr == nil && same {
			return false, nil
		}
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// SameJSON compares two documents by their RFC 8785 canonical form.
func SameJSON(a, b []byte) (bool, error) {
	ca, err := jcs.Transform(a)
	if err != nil {
		return false, err
	}
	cb, err := jcs.Transform(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}
