package version

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/liangyou/nvs/internal/remote"
	"github.com/liangyou/nvs/internal/storage"
	"github.com/liangyou/nvs/pkg/models"
)

// 频道 tag 在列表中置顶，nightly 最新。
var channelRank = map[string]int{
	ChannelNightly: 2,
	ChannelStable:  1,
}

// Lister 聚合远程与本地版本信息。
type Lister struct {
	remote  remote.RemoteClient
	store   storage.LocalStore
	arch    string
	probeFn func(binPath string) (string, error)
}

// ListerOption 配置 Lister。
type ListerOption func(*Lister)

// WithListerArch 指定目标架构。
func WithListerArch(arch string) ListerOption {
	return func(l *Lister) {
		if arch != "" {
			l.arch = arch
		}
	}
}

// WithProbeFunc 指定二进制探测函数。
func WithProbeFunc(fn func(binPath string) (string, error)) ListerOption {
	return func(l *Lister) {
		if fn != nil {
			l.probeFn = fn
		}
	}
}

// NewLister 创建版本列表服务。
func NewLister(remoteClient remote.RemoteClient, store storage.LocalStore, opts ...ListerOption) *Lister {
	l := &Lister{
		remote:  remoteClient,
		store:   store,
		arch:    runtime.GOARCH,
		probeFn: probeBinary,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RemoteReleases 返回远程发行列表。
func (l *Lister) RemoteReleases() ([]models.Release, error) {
	if l.remote == nil {
		return nil, fmt.Errorf("lister: remote client is required")
	}
	return l.remote.FetchReleases()
}

// LocalVersions 返回本地版本，含仅缓存归档的版本，并标记激活版本。
func (l *Lister) LocalVersions() ([]models.Version, error) {
	if l.store == nil {
		return nil, fmt.Errorf("lister: storage is required")
	}

	installed, err := l.store.ListInstalled()
	if err != nil {
		return nil, err
	}
	archived, err := l.store.ListArchives()
	if err != nil {
		return nil, err
	}
	active, err := l.store.ActiveVersion()
	if err != nil {
		return nil, err
	}

	byTag := map[string]*models.Version{}
	for _, tag := range installed {
		byTag[tag] = &models.Version{Tag: tag, InstallPath: l.store.InstallDir(tag)}
	}
	for _, tag := range archived {
		if v, ok := byTag[tag]; ok {
			v.ArchivePath = l.store.ArchivePath(tag)
			continue
		}
		byTag[tag] = &models.Version{Tag: tag, ArchivePath: l.store.ArchivePath(tag)}
	}

	versions := make([]models.Version, 0, len(byTag))
	for tag, v := range byTag {
		v.IsActive = tag == active
		versions = append(versions, *v)
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return compareTags(versions[i].Tag, versions[j].Tag) > 0
	})
	return versions, nil
}

// Active 返回激活版本，没有激活版本时返回 nil。
func (l *Lister) Active() (*models.Version, error) {
	if l.store == nil {
		return nil, fmt.Errorf("lister: storage is required")
	}
	active, err := l.store.ActiveVersion()
	if err != nil {
		return nil, err
	}
	if active == "" {
		return nil, nil
	}
	return &models.Version{
		Tag:         active,
		InstallPath: l.store.InstallDir(active),
		IsActive:    true,
	}, nil
}

// ProbeActive 运行激活版本的 nvim --version 并返回首行，例如 NVIM v0.11.0。
func (l *Lister) ProbeActive() (string, error) {
	active, err := l.Active()
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", fmt.Errorf("lister: no active version")
	}
	return l.probeFn(filepath.Join(active.InstallPath, "bin", "nvim"))
}

func probeBinary(binPath string) (string, error) {
	out, err := exec.Command(binPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("lister: run %s: %w", binPath, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("lister: empty version output from %s", binPath)
	}
	return line, nil
}

// FormatLocalVersion 格式化本地版本输出，标记激活版本与仅缓存状态。
func FormatLocalVersion(v models.Version) string {
	marker := " "
	if v.IsActive {
		marker = "*"
	}
	location := v.InstallPath
	if location == "" {
		location = v.ArchivePath + " (archive only)"
	}
	return fmt.Sprintf("%s %s - %s", marker, v.Tag, location)
}

// FormatRemoteRelease 格式化远程发行输出，标注本平台资产的可用性。
func (l *Lister) FormatRemoteRelease(r models.Release) string {
	for _, candidate := range assetCandidates(l.arch) {
		for _, asset := range r.Assets {
			if asset == candidate {
				return fmt.Sprintf("%s (%s)", r.Tag, asset)
			}
		}
	}
	return fmt.Sprintf("%s (no linux/%s asset)", r.Tag, l.arch)
}

// compareTags 比较两个发行 tag，频道 tag 排在数字版本之前。
func compareTags(a, b string) int {
	ra, rb := channelRank[a], channelRank[b]
	if ra != rb || ra > 0 {
		return ra - rb
	}

	va, errA := goversion.NewVersion(strings.TrimPrefix(a, "v"))
	vb, errB := goversion.NewVersion(strings.TrimPrefix(b, "v"))
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	default:
		return va.Compare(vb)
	}
}
