package version

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/liangyou/nvs/internal/env"
	"github.com/liangyou/nvs/internal/storage"
)

// InstallProvider 确保指定版本已解压并返回安装目录。
type InstallProvider interface {
	Install(ctx context.Context, token string) (string, error)
}

// SwitchResult 描述一次切换的结果。
type SwitchResult struct {
	Tag     string // 规范化后的 tag
	Already bool   // 切换前已是激活版本
}

// Switcher 负责切换当前使用的 Neovim 版本。
type Switcher struct {
	store    storage.LocalStore
	installs InstallProvider
	env      env.Linker
}

// NewSwitcher 创建 Switcher。
func NewSwitcher(store storage.LocalStore, installs InstallProvider, linker env.Linker) *Switcher {
	return &Switcher{store: store, installs: installs, env: linker}
}

// Use 将指定版本设置为激活版本。必要时先下载并解压，
// 然后原子切换激活指针并重建符号链接。
func (s *Switcher) Use(ctx context.Context, token string) (SwitchResult, error) {
	if s.store == nil || s.installs == nil || s.env == nil {
		return SwitchResult{}, errors.New("switcher: missing dependencies")
	}

	tag, err := Normalize(token)
	if err != nil {
		return SwitchResult{}, err
	}

	active, err := s.store.ActiveVersion()
	if err != nil {
		return SwitchResult{}, fmt.Errorf("switcher: read active version: %w", err)
	}
	if active == tag {
		return SwitchResult{Tag: tag, Already: true}, nil
	}

	installDir, err := s.installs.Install(ctx, tag)
	if err != nil {
		return SwitchResult{}, err
	}

	if err := ensureExecutable(installDir); err != nil {
		return SwitchResult{}, err
	}

	if active != "" {
		if err := s.env.UnlinkVersion(s.store.InstallDir(active)); err != nil {
			log.Warnf("switcher: pruning links of %s failed: %v", active, err)
		}
	}

	if err := s.store.SetActive(tag); err != nil {
		return SwitchResult{}, fmt.Errorf("switcher: set active version: %w", err)
	}

	if err := s.env.LinkVersion(installDir); err != nil {
		return SwitchResult{}, fmt.Errorf("switcher: link version: %w", err)
	}

	// 切换此时已完成，shell 配置失败不应让整个命令报错
	if err := s.env.EnsurePathBlock(); err != nil {
		log.Warnf("switcher: configure shell failed: %v", err)
	}

	return SwitchResult{Tag: tag}, nil
}

func ensureExecutable(installDir string) error {
	nvimBin := filepath.Join(installDir, "bin", "nvim")
	info, err := os.Stat(nvimBin)
	if err != nil {
		return fmt.Errorf("switcher: nvim binary missing: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("switcher: nvim binary path is directory: %s", nvimBin)
	}
	return nil
}
