package version

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/liangyou/nvs/internal/remote"
	"github.com/liangyou/nvs/pkg/models"
)

// errTagUnlisted 表示发行列表中找不到目标 tag。列表按页返回，
// 旧版本可能不在页内，此时仍可按地址约定直接探测。
var errTagUnlisted = errors.New("tag not in release list")

const (
	// ChannelStable 是 Neovim 滚动更新的稳定版 tag。
	ChannelStable = "stable"
	// ChannelNightly 是 Neovim 每夜构建的 tag。
	ChannelNightly = "nightly"
)

// Normalize 将用户输入的版本 token 规范化为发行 tag。
// 数字版本补全 v 前缀并经过语义化校验，频道 tag 原样通过。
func Normalize(input string) (string, error) {
	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return "", fmt.Errorf("version: version is required")
	}

	lower := strings.ToLower(cleaned)
	if lower == ChannelStable || lower == ChannelNightly {
		return lower, nil
	}

	trimmed := strings.TrimPrefix(cleaned, "v")
	if _, err := goversion.NewVersion(trimmed); err != nil {
		return "", fmt.Errorf("version: invalid version %q: %w", input, err)
	}
	return "v" + trimmed, nil
}

// assetCandidates 返回指定架构下的资产文件名候选，按优先级排列。
// Neovim 自 v0.10.4 起将 amd64 资产更名为 nvim-linux-x86_64.tar.gz。
func assetCandidates(arch string) []string {
	switch arch {
	case "amd64":
		return []string{"nvim-linux-x86_64.tar.gz", "nvim-linux64.tar.gz"}
	case "arm64":
		return []string{"nvim-linux-arm64.tar.gz"}
	default:
		return nil
	}
}

// BaseFunc 返回当前应使用的下载基础地址。
type BaseFunc func(ctx context.Context) string

// Resolver 将版本 token 解析为可下载的发行资产。
// 优先通过 release API 确认资产名，API 不可达时逐个探测候选地址。
type Resolver struct {
	remote     remote.RemoteClient
	baseFn     BaseFunc
	httpClient HTTPClient
	arch       string
}

// ResolverOption 配置 Resolver。
type ResolverOption func(*Resolver)

// WithResolverHTTPClient 指定探测用 HTTP 客户端。
func WithResolverHTTPClient(client HTTPClient) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithArch 指定目标架构。
func WithArch(arch string) ResolverOption {
	return func(r *Resolver) {
		if arch != "" {
			r.arch = arch
		}
	}
}

// NewResolver 创建 Resolver。
func NewResolver(remoteClient remote.RemoteClient, baseFn BaseFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		remote:     remoteClient,
		baseFn:     baseFn,
		httpClient: http.DefaultClient,
		arch:       runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 解析版本 token，返回带下载地址的版本信息。
func (r *Resolver) Resolve(ctx context.Context, token string) (models.Version, error) {
	tag, err := Normalize(token)
	if err != nil {
		return models.Version{}, err
	}

	candidates := assetCandidates(r.arch)
	if len(candidates) == 0 {
		return models.Version{}, fmt.Errorf("version: unsupported architecture %s", r.arch)
	}
	if r.baseFn == nil {
		return models.Version{}, fmt.Errorf("version: download base is not configured")
	}
	base := r.baseFn(ctx)

	if r.remote != nil {
		releases, err := r.remote.FetchReleases()
		if err == nil {
			resolved, err := r.resolveFromReleases(releases, tag, candidates, base)
			if err == nil {
				return resolved, nil
			}
			if !errors.Is(err, errTagUnlisted) {
				return models.Version{}, err
			}
			log.Debugf("version: %s not in release list, probing asset urls", tag)
		} else {
			log.Debugf("version: release api unreachable, probing asset urls: %v", err)
		}
	}

	for _, asset := range candidates {
		url := assetURL(base, tag, asset)
		if r.probe(ctx, url) {
			return models.Version{Tag: tag, AssetName: asset, DownloadURL: url}, nil
		}
	}
	return models.Version{}, fmt.Errorf("version: cannot resolve %s: no release asset responded", tag)
}

func (r *Resolver) resolveFromReleases(releases []models.Release, tag string, candidates []string, base string) (models.Version, error) {
	var target *models.Release
	for i := range releases {
		if releases[i].Tag == tag {
			target = &releases[i]
			break
		}
	}
	if target == nil {
		return models.Version{}, fmt.Errorf("version: %s: %w", tag, errTagUnlisted)
	}

	available := make(map[string]struct{}, len(target.Assets))
	for _, asset := range target.Assets {
		available[asset] = struct{}{}
	}
	for _, asset := range candidates {
		if _, ok := available[asset]; ok {
			return models.Version{Tag: tag, AssetName: asset, DownloadURL: assetURL(base, tag, asset)}, nil
		}
	}
	return models.Version{}, fmt.Errorf("version: release %s has no asset for %s", tag, r.arch)
}

// probe 以 HEAD 请求确认资产是否可下载。
func (r *Resolver) probe(ctx context.Context, url string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func assetURL(base, tag, asset string) string {
	return strings.TrimRight(base, "/") + "/" + tag + "/" + asset
}
