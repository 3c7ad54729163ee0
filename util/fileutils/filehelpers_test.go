package fileutils

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/zalando/go-keyring"
)

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestDownloadFileVerifiesChecksum(t *testing.T) {
	payload := []byte("client jar bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	client := resty.New()
	dest := filepath.Join(t.TempDir(), "versions", "1.20.1", "1.20.1.jar")

	var last int64
	counter := &WriteCounter{Progress: func(done, total int64) { last = done }}
	if err := DownloadFile(context.Background(), client, server.URL+"/jar", dest, sha1Hex(payload), counter); err != nil {
		t.Fatalf("download: %v", err)
	}
	if last != int64(len(payload)) {
		t.Fatalf("unexpected progress: %d", last)
	}
	if !FileMatches(dest, sha1Hex(payload), int64(len(payload))) {
		t.Fatal("expected downloaded file to match")
	}

	bad := filepath.Join(t.TempDir(), "bad.jar")
	err := DownloadFile(context.Background(), client, server.URL+"/jar", bad, "0000", nil)
	if errs.CodeOf(err) != "checksum_mismatch" {
		t.Fatalf("expected checksum mismatch, got=%v", err)
	}
	if _, statErr := os.Stat(bad); !os.IsNotExist(statErr) {
		t.Fatal("expected no file after checksum mismatch")
	}

	err = DownloadFile(context.Background(), client, server.URL+"/missing", bad, "", nil)
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got=%v", err)
	}
}

func TestFailedWriteKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libraries", "lib.jar")
	if err := WriteFileAtomic(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer server.Close()
	err := DownloadFile(context.Background(), resty.New(), server.URL+"/lib.jar", path, sha1Hex([]byte("v2")), nil)
	if errs.CodeOf(err) != "checksum_mismatch" {
		t.Fatalf("expected checksum mismatch, got=%v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != "v1" {
		t.Fatalf("got=%q err=%v want=%q", got, err, "v1")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil || len(entries) != 1 {
		t.Fatalf("temp files left behind: %v err=%v", entries, err)
	}
}

func TestWriteJSONSkipsIdenticalDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.json")
	wrote, err := WriteJSON(path, map[string]any{"id": "1.20.1", "mainClass": "net.minecraft.client.main.Main"})
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteJSON(path, map[string]any{"mainClass": "net.minecraft.client.main.Main", "id": "1.20.1"})
	if err != nil || wrote {
		t.Fatalf("second write should be skipped: wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteJSON(path, map[string]any{"id": "other"})
	if err != nil || !wrote {
		t.Fatalf("third write should happen: wrote=%v err=%v", wrote, err)
	}
}

func TestCopyFileAndFileMatches(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jar")
	if err := os.WriteFile(src, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(dir, "nested", "b.jar")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !FileMatches(dst, sha1Hex([]byte("abc")), 3) {
		t.Fatal("copied file does not match")
	}
	if FileMatches(dst, "", 4) {
		t.Fatal("size mismatch should not match")
	}
	if FileMatches(filepath.Join(dir, "nope"), "", 0) {
		t.Fatal("missing file should not match")
	}
}

func TestSetupRemembersRoot(t *testing.T) {
	keyring.MockInit()
	root := t.TempDir()
	if err := Setup(root); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "versions")); err != nil || !info.IsDir() {
		t.Fatalf("expected versions directory: %v", err)
	}
	remembered, err := RememberedRoot()
	if err != nil || remembered != root {
		t.Fatalf("unexpected remembered root: %q err=%v", remembered, err)
	}
	if err := Setup("relative/path"); !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("expected invalid argument for relative root, got=%v", err)
	}
}

func TestKeyringSecrets(t *testing.T) {
	keyring.MockInit()
	secrets := NewKeyringSecrets("mclaunch-test")
	if _, err := secrets.Get("token"); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got=%v", err)
	}
	if err := secrets.Set("token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, err := secrets.Get("token"); err != nil || value != "abc" {
		t.Fatalf("unexpected secret: %q err=%v", value, err)
	}
	if err := secrets.Delete("token"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := secrets.Delete("token"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
