package version

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/liangyou/nvs/internal/storage"
)

const archiveRootPrefix = "nvim-"

// ArchiveProvider 确保指定版本的归档在本地可用。
type ArchiveProvider interface {
	Download(ctx context.Context, token string) (DownloadResult, error)
}

// Installer 负责将发行归档解压为版本目录。
type Installer struct {
	store    storage.LocalStore
	archives ArchiveProvider
}

// NewInstaller 创建 Installer。
func NewInstaller(store storage.LocalStore, archives ArchiveProvider) *Installer {
	return &Installer{store: store, archives: archives}
}

// Install 确保指定版本已解压，返回安装目录。归档缺失时先行下载。
// 解压先进临时目录再整体重命名，版本目录要么完整要么不存在。
func (i *Installer) Install(ctx context.Context, token string) (string, error) {
	if i.store == nil || i.archives == nil {
		return "", errors.New("installer: missing dependencies")
	}

	tag, err := Normalize(token)
	if err != nil {
		return "", err
	}

	installDir := i.store.InstallDir(tag)
	if info, err := os.Stat(installDir); err == nil && info.IsDir() {
		return installDir, nil
	}

	result, err := i.archives.Download(ctx, tag)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(installDir), 0o755); err != nil {
		return "", fmt.Errorf("installer: prepare parent dir: %w", err)
	}

	tempDir, err := os.MkdirTemp(filepath.Dir(installDir), "install-*")
	if err != nil {
		return "", fmt.Errorf("installer: create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	destDir := filepath.Join(tempDir, "root")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("installer: prepare extract dir: %w", err)
	}

	if err := extractTarGz(result.Path, destDir); err != nil {
		return "", err
	}

	if err := os.RemoveAll(installDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("installer: cleanup previous install: %w", err)
	}

	if err := os.Rename(destDir, installDir); err != nil {
		return "", fmt.Errorf("installer: move install directory: %w", err)
	}

	return installDir, nil
}

func extractTarGz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("installer: open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("installer: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("installer: read archive: %w", err)
		}

		relPath, skip := stripArchiveRoot(header.Name)
		if skip {
			continue
		}

		target := filepath.Join(dest, relPath)
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("installer: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("installer: mkdir for file %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("installer: create file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("installer: copy file %s: %w", target, err)
			}
			f.Close()
		case tar.TypeSymlink:
			if err := ensureSafeLinkname(dest, target, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("installer: mkdir for link %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("installer: symlink %s: %w", target, err)
			}
		default:
			return fmt.Errorf("installer: unsupported tar entry %q", header.Name)
		}
	}

	return nil
}

// stripArchiveRoot 去掉归档顶层的 nvim-linux* 包装目录，
// 使版本目录直接包含 bin、lib、share。
func stripArchiveRoot(name string) (string, bool) {
	clean := path.Clean(name)
	clean = strings.TrimPrefix(clean, "./")
	if clean == "." || clean == "" {
		return "", true
	}

	root, rest, found := strings.Cut(clean, "/")
	if !strings.HasPrefix(root, archiveRootPrefix) {
		return "", true
	}
	if !found || rest == "" {
		return "", true
	}
	return rest, false
}

// ensureSafeLinkname 拒绝绝对路径或解析后越出解压根目录的链接目标。
// 后续条目可能经由该链接写入，放行越界链接会绕过路径校验。
func ensureSafeLinkname(root, linkPath, linkname string) error {
	if linkname == "" || filepath.IsAbs(linkname) {
		return fmt.Errorf("installer: unsafe link target %q", linkname)
	}
	resolved := filepath.Join(filepath.Dir(linkPath), linkname)
	if err := ensureWithinRoot(root, resolved); err != nil {
		return fmt.Errorf("installer: unsafe link target %q", linkname)
	}
	return nil
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("installer: illegal path %s", target)
	}
	return nil
}
