package region

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	// MirrorAuto 表示根据国家探测自动选择镜像。
	MirrorAuto = "auto"
	// MirrorGitHub 表示直接使用 GitHub 官方下载地址。
	MirrorGitHub = "github"
	// MirrorGhproxy 表示使用 ghproxy 代理下载地址。
	MirrorGhproxy = "ghproxy"

	ghproxyPrefix = "https://ghproxy.net/"
)

// CountryDetector 描述镜像选择所需的国家探测能力。
type CountryDetector interface {
	CountryCode(ctx context.Context) (string, error)
}

// Selector 根据镜像配置与地域探测结果决定下载基础地址。
// 探测只在首次需要联网时发生，结果在进程内缓存。
type Selector struct {
	mirror   string
	repo     string
	detector CountryDetector

	once sync.Once
	base string
}

// NewSelector 创建镜像选择器。mirror 取值 auto、github、ghproxy 或完整地址。
func NewSelector(mirror, repo string, detector CountryDetector) *Selector {
	return &Selector{mirror: mirror, repo: repo, detector: detector}
}

// DownloadBase 返回发行归档的下载基础地址，形如
// https://github.com/neovim/neovim/releases/download。
func (s *Selector) DownloadBase(ctx context.Context) string {
	s.once.Do(func() {
		s.base = s.resolve(ctx)
	})
	return s.base
}

func (s *Selector) resolve(ctx context.Context) string {
	github := githubBase(s.repo)

	switch strings.ToLower(strings.TrimSpace(s.mirror)) {
	case "", MirrorAuto:
		if s.detector == nil {
			return github
		}
		code, err := s.detector.CountryCode(ctx)
		if err != nil {
			log.Debugf("region: country detection failed, using github: %v", err)
			return github
		}
		if strings.EqualFold(code, "CN") {
			return ghproxyPrefix + github
		}
		return github
	case MirrorGitHub:
		return github
	case MirrorGhproxy:
		return ghproxyPrefix + github
	default:
		if strings.Contains(s.mirror, "://") {
			return strings.TrimRight(strings.TrimSpace(s.mirror), "/")
		}
		log.Debugf("region: unknown mirror %q, using github", s.mirror)
		return github
	}
}

func githubBase(repo string) string {
	return "https://github.com/" + repo + "/releases/download"
}
