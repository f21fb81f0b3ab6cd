package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liangyou/nvs/pkg/models"
)

const (
	// DefaultRepo 是默认的 Neovim 发行仓库。
	DefaultRepo = "neovim/neovim"

	defaultMirror   = "auto"
	defaultLogLevel = "info"
	defaultLogFile  = "console"
)

// Defaults 返回遵循 XDG 目录约定的默认配置。
func Defaults() models.Config {
	home, _ := os.UserHomeDir()

	cache := os.Getenv("XDG_CACHE_HOME")
	if cache == "" {
		cache = filepath.Join(home, ".cache")
	}
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		data = filepath.Join(home, ".local", "share")
	}

	return models.Config{
		CacheDir: filepath.Join(cache, "nvs"),
		DataDir:  filepath.Join(data, "nvs"),
		LinkRoot: filepath.Join(home, ".local"),
		Repo:     DefaultRepo,
		Mirror:   defaultMirror,
		LogLevel: defaultLogLevel,
		LogFile:  defaultLogFile,
	}
}

// DefaultPath 返回默认配置文件路径。
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "nvs", "config.yaml")
}

// Load 读取配置文件并与默认值合并。path 为空时使用默认路径；文件缺失不算错误。
func Load(path string) (models.Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config: file %s not found: %w", path, err)
		}
		return cfg, fmt.Errorf("config: read file: %w", err)
	}

	var fromFile models.Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	merge(&cfg, fromFile)
	expandPaths(&cfg)
	return cfg, nil
}

// ApplyRoot 将所有数据目录重定向到指定根目录下，用于 --root 覆盖。
func ApplyRoot(cfg *models.Config, root string) {
	if root == "" {
		return
	}
	root = expandHome(root)
	cfg.DataDir = root
	cfg.CacheDir = filepath.Join(root, "cache")
}

func merge(dst *models.Config, src models.Config) {
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LinkRoot != "" {
		dst.LinkRoot = src.LinkRoot
	}
	if src.Repo != "" {
		dst.Repo = src.Repo
	}
	if src.Mirror != "" {
		dst.Mirror = src.Mirror
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
}

func expandPaths(cfg *models.Config) {
	cfg.CacheDir = expandHome(cfg.CacheDir)
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.LinkRoot = expandHome(cfg.LinkRoot)
	if cfg.LogFile != "" && cfg.LogFile != defaultLogFile {
		cfg.LogFile = expandHome(cfg.LogFile)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
