package version

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/liangyou/nvs/internal/env"
	"github.com/liangyou/nvs/internal/storage"
)

// PurgeResult 描述一次清除操作实际删除的内容。
type PurgeResult struct {
	Tag            string
	RemovedArchive bool
	RemovedInstall bool
	ClearedActive  bool
}

// Uninstaller 删除本地缓存的归档与已解压的安装目录。
type Uninstaller struct {
	store storage.LocalStore
	env   env.Linker
}

// NewUninstaller 创建卸载器。
func NewUninstaller(store storage.LocalStore, linker env.Linker) *Uninstaller {
	return &Uninstaller{store: store, env: linker}
}

// Purge 删除指定版本的归档与安装目录。删除激活版本需要 force，
// 此时同时清除激活指针与遗留的符号链接。
func (u *Uninstaller) Purge(token string, force bool) (PurgeResult, error) {
	if u.store == nil {
		return PurgeResult{}, errors.New("uninstaller: storage is required")
	}

	tag, err := Normalize(token)
	if err != nil {
		return PurgeResult{}, err
	}

	archivePath := u.store.ArchivePath(tag)
	installDir := u.store.InstallDir(tag)

	hasArchive := fileExists(archivePath)
	hasInstall := dirExists(installDir)
	if !hasArchive && !hasInstall {
		return PurgeResult{}, fmt.Errorf("uninstaller: version %s not found", tag)
	}

	active, err := u.store.ActiveVersion()
	if err != nil {
		return PurgeResult{}, fmt.Errorf("uninstaller: read active version: %w", err)
	}
	if active == tag && !force {
		return PurgeResult{}, fmt.Errorf("uninstaller: version %s is active, pass --force to remove", tag)
	}

	result := PurgeResult{Tag: tag}

	if active == tag {
		if u.env != nil {
			if err := u.env.UnlinkVersion(installDir); err != nil {
				log.Warnf("uninstaller: pruning links of %s failed: %v", tag, err)
			}
		}
		if err := u.store.ClearActive(); err != nil {
			return PurgeResult{}, fmt.Errorf("uninstaller: clear active pointer: %w", err)
		}
		result.ClearedActive = true
	}

	if hasInstall {
		if err := u.store.RemoveInstall(tag); err != nil {
			return PurgeResult{}, err
		}
		result.RemovedInstall = true
	}

	if hasArchive {
		if err := u.store.RemoveArchive(tag); err != nil {
			return PurgeResult{}, err
		}
		result.RemovedArchive = true
	}

	return result, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
