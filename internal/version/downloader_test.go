package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/liangyou/nvs/internal/storage"
	"github.com/liangyou/nvs/pkg/models"
)

type stubResolver struct {
	resolved models.Version
	err      error
	calls    int
}

func (s *stubResolver) Resolve(ctx context.Context, token string) (models.Version, error) {
	s.calls++
	if s.err != nil {
		return models.Version{}, s.err
	}
	return s.resolved, nil
}

func newVersionTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	temp := t.TempDir()
	return storage.NewFileStore(models.Config{
		CacheDir: filepath.Join(temp, "cache"),
		DataDir:  filepath.Join(temp, "data"),
	})
}

func constantBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func TestDownloadFetchesArchive(t *testing.T) {
	t.Parallel()

	payload := []byte("archive-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	store := newVersionTestStore(t)
	resolver := &stubResolver{resolved: models.Version{
		Tag:         "v0.10.4",
		AssetName:   "nvim-linux-x86_64.tar.gz",
		DownloadURL: server.URL + "/v0.10.4/nvim-linux-x86_64.tar.gz",
	}}

	var lastReported int64
	downloader := NewDownloader(resolver, store,
		WithHTTPClient(server.Client()),
		WithProgressFunc(func(downloaded, total int64) { lastReported = downloaded }),
		WithDownloadBackOff(constantBackOff),
	)

	result, err := downloader.Download(context.Background(), "0.10.4")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if result.Cached {
		t.Fatal("fresh download reported as cached")
	}
	if result.Tag != "v0.10.4" {
		t.Fatalf("unexpected tag: %s", result.Tag)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected archive content: %q", data)
	}
	if result.Path != store.ArchivePath("v0.10.4") {
		t.Fatalf("archive stored at wrong path: %s", result.Path)
	}
	if lastReported != int64(len(payload)) {
		t.Fatalf("progress not reported to completion: %d", lastReported)
	}
}

func TestDownloadSkipsWhenCached(t *testing.T) {
	t.Parallel()

	store := newVersionTestStore(t)
	archive := store.ArchivePath("v0.9.5")
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		t.Fatalf("mkdir cache: %v", err)
	}
	if err := os.WriteFile(archive, []byte("cached"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	resolver := &stubResolver{}
	downloader := NewDownloader(resolver, store)

	result, err := downloader.Download(context.Background(), "v0.9.5")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !result.Cached {
		t.Fatal("expected cached result")
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver should not run for cached archive, got %d calls", resolver.calls)
	}
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newVersionTestStore(t)
	resolver := &stubResolver{resolved: models.Version{
		Tag:         "v0.9.5",
		DownloadURL: server.URL + "/missing.tar.gz",
	}}
	downloader := NewDownloader(resolver, store,
		WithHTTPClient(server.Client()),
		WithDownloadBackOff(constantBackOff),
	)

	if _, err := downloader.Download(context.Background(), "v0.9.5"); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected no retries on 404, got %d requests", got)
	}

	entries, err := os.ReadDir(filepath.Dir(store.ArchivePath("v0.9.5")))
	if err != nil {
		t.Fatalf("read cache dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("partial files left behind: %v", entries)
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("archive"))
	}))
	defer server.Close()

	store := newVersionTestStore(t)
	resolver := &stubResolver{resolved: models.Version{
		Tag:         "v0.10.0",
		DownloadURL: server.URL + "/nvim.tar.gz",
	}}
	downloader := NewDownloader(resolver, store,
		WithHTTPClient(server.Client()),
		WithDownloadBackOff(constantBackOff),
	)

	result, err := downloader.Download(context.Background(), "v0.10.0")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("archive missing after retry: %v", err)
	}
}
