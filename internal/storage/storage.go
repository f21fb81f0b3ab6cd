package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/liangyou/nvs/pkg/models"
)

const (
	archivePrefix = "nvim-"
	archiveSuffix = ".tar.gz"

	versionsDirName = "versions"
	currentLinkName = "current"
)

// LocalStore 定义本地归档、安装目录与激活指针的读写接口。
// 所有状态都直接来源于文件系统布局，没有额外的元数据文件。
type LocalStore interface {
	ArchivePath(tag string) string
	InstallDir(tag string) string
	ListArchives() ([]string, error)
	ListInstalled() ([]string, error)
	ActiveVersion() (string, error)
	SetActive(tag string) error
	ClearActive() error
	RemoveArchive(tag string) error
	RemoveInstall(tag string) error
}

// FileStore 基于目录布局实现 LocalStore：
//
//	<cache>/nvim-<tag>.tar.gz      归档缓存
//	<data>/versions/<tag>/         解压后的安装目录
//	<data>/current -> versions/<tag>   激活指针（相对符号链接）
type FileStore struct {
	cacheDir    string
	versionsDir string
	currentLink string
	mu          sync.Mutex
}

// NewFileStore 构造文件系统存储实例。
func NewFileStore(cfg models.Config) *FileStore {
	cache := cfg.CacheDir
	data := cfg.DataDir
	if data == "" {
		data = filepath.Join(os.TempDir(), "nvs")
	}
	if cache == "" {
		cache = filepath.Join(data, "cache")
	}
	return &FileStore{
		cacheDir:    cache,
		versionsDir: filepath.Join(data, versionsDirName),
		currentLink: filepath.Join(data, currentLinkName),
	}
}

// ArchiveName 返回指定 tag 的归档文件名。
func ArchiveName(tag string) string {
	return archivePrefix + tag + archiveSuffix
}

// ArchivePath 返回指定 tag 的归档缓存路径。
func (s *FileStore) ArchivePath(tag string) string {
	return filepath.Join(s.cacheDir, ArchiveName(tag))
}

// InstallDir 返回指定 tag 的安装目录。
func (s *FileStore) InstallDir(tag string) string {
	return filepath.Join(s.versionsDir, tag)
}

// ListArchives 返回缓存目录中所有归档对应的 tag。
func (s *FileStore) ListArchives() ([]string, error) {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storage: read cache dir: %w", err)
	}

	tags := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		tag := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// ListInstalled 返回已解压的所有安装版本 tag。
func (s *FileStore) ListInstalled() ([]string, error) {
	entries, err := os.ReadDir(s.versionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storage: read versions dir: %w", err)
	}

	tags := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			tags = append(tags, entry.Name())
		}
	}
	return tags, nil
}

// ActiveVersion 读取激活指针指向的 tag，指针缺失时返回空串。
func (s *FileStore) ActiveVersion() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := os.Readlink(s.currentLink)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("storage: read active pointer: %w", err)
	}
	return filepath.Base(target), nil
}

// SetActive 将激活指针切换到指定 tag。先建临时链接再重命名，切换是原子的。
func (s *FileStore) SetActive(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("storage: tag is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.currentLink), 0o755); err != nil {
		return fmt.Errorf("storage: ensure data dir: %w", err)
	}

	target := filepath.Join(versionsDirName, tag)
	temp := s.currentLink + ".tmp"
	if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: cleanup temp link: %w", err)
	}
	if err := os.Symlink(target, temp); err != nil {
		return fmt.Errorf("storage: create temp link: %w", err)
	}
	if err := os.Rename(temp, s.currentLink); err != nil {
		os.Remove(temp)
		return fmt.Errorf("storage: swap active pointer: %w", err)
	}
	return nil
}

// ClearActive 移除激活指针。指针不存在不算错误。
func (s *FileStore) ClearActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.currentLink); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove active pointer: %w", err)
	}
	return nil
}

// RemoveArchive 删除指定 tag 的缓存归档。
func (s *FileStore) RemoveArchive(tag string) error {
	if err := os.Remove(s.ArchivePath(tag)); err != nil {
		return fmt.Errorf("storage: remove archive: %w", err)
	}
	return nil
}

// RemoveInstall 删除指定 tag 的安装目录。
func (s *FileStore) RemoveInstall(tag string) error {
	if err := os.RemoveAll(s.InstallDir(tag)); err != nil {
		return fmt.Errorf("storage: remove install dir: %w", err)
	}
	return nil
}
