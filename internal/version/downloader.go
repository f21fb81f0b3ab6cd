package version

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/liangyou/nvs/internal/storage"
	"github.com/liangyou/nvs/pkg/models"
)

// ProgressFunc 在下载过程中回调当前已完成的字节数以及总字节数。
type ProgressFunc func(downloaded, total int64)

// HTTPClient 定义本包所需的 HTTP 客户端能力。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ArtifactResolver 将版本 token 解析为可下载的发行资产。
type ArtifactResolver interface {
	Resolve(ctx context.Context, token string) (models.Version, error)
}

// DownloadResult 描述一次下载请求的结果。
type DownloadResult struct {
	Tag    string // 规范化后的 tag
	Path   string // 归档的本地路径
	Cached bool   // 归档在请求前已存在
}

// Downloader 负责将发行归档下载到缓存目录。
type Downloader struct {
	resolver     ArtifactResolver
	store        storage.LocalStore
	httpClient   HTTPClient
	progressFunc ProgressFunc
	backOff      func() backoff.BackOff
}

// DownloaderOption 配置 Downloader。
type DownloaderOption func(*Downloader)

// WithHTTPClient 指定自定义 HTTP 客户端。
func WithHTTPClient(client HTTPClient) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithProgressFunc 指定进度回调。
func WithProgressFunc(fn ProgressFunc) DownloaderOption {
	return func(d *Downloader) {
		d.progressFunc = fn
	}
}

// WithDownloadBackOff 指定重试策略工厂，nil 表示不重试。
func WithDownloadBackOff(factory func() backoff.BackOff) DownloaderOption {
	return func(d *Downloader) {
		d.backOff = factory
	}
}

// NewDownloader 创建 Downloader。
func NewDownloader(resolver ArtifactResolver, store storage.LocalStore, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		resolver:   resolver,
		store:      store,
		httpClient: http.DefaultClient,
		backOff:    downloadBackOff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func downloadBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// Download 获取指定版本的归档。归档已缓存时直接返回，不触发网络请求。
func (d *Downloader) Download(ctx context.Context, token string) (DownloadResult, error) {
	if d.resolver == nil || d.store == nil {
		return DownloadResult{}, errors.New("downloader: missing dependencies")
	}

	tag, err := Normalize(token)
	if err != nil {
		return DownloadResult{}, err
	}

	finalPath := d.store.ArchivePath(tag)
	if info, err := os.Stat(finalPath); err == nil && !info.IsDir() {
		return DownloadResult{Tag: tag, Path: finalPath, Cached: true}, nil
	}

	resolved, err := d.resolver.Resolve(ctx, tag)
	if err != nil {
		return DownloadResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("downloader: create cache dir: %w", err)
	}

	fetch := func() error {
		return d.fetchOnce(ctx, resolved.DownloadURL, finalPath)
	}
	if d.backOff != nil {
		err = backoff.RetryNotify(fetch, backoff.WithContext(d.backOff(), ctx), func(err error, duration time.Duration) {
			log.Debugf("downloader: retrying %s in %v due to error: %v", resolved.DownloadURL, duration, err)
		})
	} else {
		err = fetch()
	}
	if err != nil {
		return DownloadResult{}, err
	}

	return DownloadResult{Tag: tag, Path: finalPath}, nil
}

// fetchOnce 将归档写入临时文件再重命名，失败时清理残留。
// 4xx 状态不可重试，包装为 backoff.Permanent。
func (d *Downloader) fetchOnce(ctx context.Context, url, finalPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("downloader: build request: %w", err))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloader: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("downloader: unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	tempFile, err := os.CreateTemp(filepath.Dir(finalPath), "download-*.tmp")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("downloader: temp file: %w", err))
	}
	tempPath := tempFile.Name()
	defer func() {
		tempFile.Close()
		os.Remove(tempPath)
	}()

	total := resp.ContentLength
	reader := d.wrapProgress(resp.Body, total)

	if _, err := io.Copy(tempFile, reader); err != nil {
		return fmt.Errorf("downloader: write file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("downloader: sync file: %w", err)
	}

	if err := os.Remove(finalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return backoff.Permanent(fmt.Errorf("downloader: remove existing: %w", err))
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return backoff.Permanent(fmt.Errorf("downloader: finalize file: %w", err))
	}

	return nil
}

func (d *Downloader) wrapProgress(reader io.Reader, total int64) io.Reader {
	if d.progressFunc == nil {
		return reader
	}

	pr := &progressReader{r: reader, total: total, report: d.progressFunc}
	return pr
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}
