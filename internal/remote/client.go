package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/liangyou/nvs/pkg/models"
)

const (
	defaultAPIBase  = "https://api.github.com"
	defaultCacheTTL = 5 * time.Minute

	acceptHeader = "application/vnd.github+json"
	userAgent    = "nvs"

	errorBodyLimit = 4096

	// GitHub 默认每页只返回 30 条，neovim 的发行数早已超出。
	releasesPerPage = 100
	maxReleasePages = 10
)

// 在远程列表中置顶的频道 tag。
var channelRank = map[string]int{
	"nightly": 2,
	"stable":  1,
}

// RemoteClient 定义远程发行源应具备的能力。
type RemoteClient interface {
	FetchReleases() ([]models.Release, error)
}

// HTTPClient 描述最小化的 HTTP 客户端接口，方便测试时替换。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option 用于配置 Client。
type Option func(*Client)

// WithAPIBase 设置自定义 API 地址。
func WithAPIBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient 设置 HTTP 客户端。
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCacheTTL 设置远程缓存时间。
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithToken 设置 GitHub API 访问令牌。
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBackOff 设置重试策略工厂，nil 表示不重试。
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) {
		c.backOff = factory
	}
}

// Client 实现 RemoteClient 接口，访问 GitHub releases API。
type Client struct {
	apiBase    string
	repo       string
	httpClient HTTPClient
	cacheTTL   time.Duration
	token      string
	backOff    func() backoff.BackOff

	mu       sync.Mutex
	cached   []models.Release
	cachedAt time.Time
}

// NewClient 创建远程发行源客户端。repo 形如 neovim/neovim。
func NewClient(repo string, opts ...Option) *Client {
	c := &Client{
		apiBase:    defaultAPIBase,
		repo:       repo,
		httpClient: http.DefaultClient,
		cacheTTL:   defaultCacheTTL,
		token:      os.Getenv("GITHUB_TOKEN"),
		backOff:    defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultBackOff 返回 CLI 场景下的指数退避策略。
func defaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// FetchReleases 获取远程发行列表并排序，结果在 TTL 内缓存。
// 列表按页抓取，直到返回不满一页为止。
func (c *Client) FetchReleases() ([]models.Release, error) {
	if releases, ok := c.getCached(); ok {
		return releases, nil
	}

	var all []models.Release
	for page := 1; page <= maxReleasePages; page++ {
		url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d&page=%d", c.apiBase, c.repo, releasesPerPage, page)
		body, err := c.fetchPage(url)
		if err != nil {
			return nil, err
		}

		releases, decoded, err := parseReleases(body)
		if err != nil {
			return nil, err
		}
		all = append(all, releases...)
		if decoded < releasesPerPage {
			break
		}
	}

	sortReleases(all)
	c.setCache(all)
	return all, nil
}

// fetchPage 抓取单页，按配置的退避策略重试瞬时失败。
func (c *Client) fetchPage(url string) ([]byte, error) {
	var body []byte
	fetch := func() error {
		data, err := c.fetchOnce(url)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	var err error
	if c.backOff != nil {
		err = backoff.RetryNotify(fetch, c.backOff(), func(err error, duration time.Duration) {
			log.Debugf("remote: retrying release list in %v due to error: %v", duration, err)
		})
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// fetchOnce 执行单次请求。4xx 状态不可重试，包装为 backoff.Permanent。
func (c *Client) fetchOnce(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("remote: build request: %w", err))
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if token := strings.TrimSpace(c.token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		statusErr := fmt.Errorf("remote: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}
	return body, nil
}

// parseReleases 解析单页响应，另返回页内条目数用于翻页判断。
func parseReleases(data []byte) ([]models.Release, int, error) {
	var decoded []releaseResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, 0, fmt.Errorf("remote: decode response: %w", err)
	}

	releases := make([]models.Release, 0, len(decoded))
	for _, rel := range decoded {
		tag := strings.TrimSpace(rel.TagName)
		if tag == "" {
			continue
		}
		assets := make([]string, 0, len(rel.Assets))
		for _, asset := range rel.Assets {
			assets = append(assets, asset.Name)
		}
		releases = append(releases, models.Release{
			Tag:        tag,
			Prerelease: rel.Prerelease,
			Assets:     assets,
		})
	}

	return releases, len(decoded), nil
}

// sortReleases 将频道 tag 置顶，其余按版本号降序。
func sortReleases(releases []models.Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		ri, rj := channelRank[releases[i].Tag], channelRank[releases[j].Tag]
		if ri != rj {
			return ri > rj
		}
		vi, erri := goversion.NewVersion(strings.TrimPrefix(releases[i].Tag, "v"))
		vj, errj := goversion.NewVersion(strings.TrimPrefix(releases[j].Tag, "v"))
		if erri != nil || errj != nil {
			return erri == nil && errj != nil
		}
		return vi.GreaterThan(vj)
	})
}

func (c *Client) getCached() ([]models.Release, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cached) == 0 {
		return nil, false
	}
	if c.cacheTTL > 0 && time.Since(c.cachedAt) > c.cacheTTL {
		c.cached = nil
		return nil, false
	}
	clone := make([]models.Release, len(c.cached))
	copy(clone, c.cached)
	return clone, true
}

func (c *Client) setCache(releases []models.Release) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = make([]models.Release, len(releases))
	copy(c.cached, releases)
	c.cachedAt = time.Now()
}

// releaseResponse 表示 GitHub API 中的发行记录。
type releaseResponse struct {
	TagName    string         `json:"tag_name"`
	Prerelease bool           `json:"prerelease"`
	Assets     []releaseAsset `json:"assets"`
}

// releaseAsset 表示发行下的资产条目。
type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}
