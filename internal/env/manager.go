package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	blockStart = "# >>> nvs initialize >>>"
	blockEnd   = "# <<< nvs initialize <<<"
)

// Linker 暴露激活版本的链接与 PATH 配置能力。
type Linker interface {
	LinkVersion(installDir string) error
	UnlinkVersion(installDir string) error
	EnsurePathBlock() error
}

// Manager 实现 Linker，将激活版本的 bin、lib、share 内容
// 以符号链接的形式汇入链接根目录（默认 ~/.local）。
type Manager struct {
	linkRoot string

	homeFn func() (string, error)
	envFn  func(string) string
}

// NewManager 构造环境配置服务。
func NewManager(linkRoot string) *Manager {
	return &Manager{
		linkRoot: linkRoot,
		homeFn:   os.UserHomeDir,
		envFn:    os.Getenv,
	}
}

// LinkVersion 将安装目录的 bin、lib 以及 share 各子目录的内容链接到链接根目录。
// 已存在的同名链接会被替换。
func (m *Manager) LinkVersion(installDir string) error {
	if m.linkRoot == "" {
		return errors.New("env: link root is required")
	}
	if installDir == "" {
		return errors.New("env: install dir is required")
	}

	for _, name := range []string{"bin", "lib"} {
		if err := m.farmDir(filepath.Join(installDir, name), filepath.Join(m.linkRoot, name)); err != nil {
			return err
		}
	}

	shareDir := filepath.Join(installDir, "share")
	entries, err := os.ReadDir(shareDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env: read share dir: %w", err)
	}
	for _, entry := range entries {
		src := filepath.Join(shareDir, entry.Name())
		dst := filepath.Join(m.linkRoot, "share", entry.Name())
		if err := m.farmDir(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkVersion 移除链接根目录中指向该安装目录的所有符号链接。
func (m *Manager) UnlinkVersion(installDir string) error {
	if m.linkRoot == "" || installDir == "" {
		return nil
	}

	dirs := []string{
		filepath.Join(m.linkRoot, "bin"),
		filepath.Join(m.linkRoot, "lib"),
	}
	shareRoot := filepath.Join(m.linkRoot, "share")
	if entries, err := os.ReadDir(shareRoot); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(shareRoot, entry.Name()))
			}
		}
	}

	prefix := filepath.Clean(installDir) + string(os.PathSeparator)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("env: read link dir: %w", err)
		}
		for _, entry := range entries {
			link := filepath.Join(dir, entry.Name())
			target, err := os.Readlink(link)
			if err != nil {
				continue
			}
			if strings.HasPrefix(filepath.Clean(target), prefix) {
				if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("env: remove stale link %s: %w", link, err)
				}
			}
		}
	}
	return nil
}

// farmDir 为 src 下的每个条目在 dst 中建立同名符号链接。
func (m *Manager) farmDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env: read source dir: %w", err)
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("env: ensure link dir: %w", err)
	}

	for _, entry := range entries {
		link := filepath.Join(dst, entry.Name())
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("env: replace link %s: %w", link, err)
		}
		if err := os.Symlink(filepath.Join(src, entry.Name()), link); err != nil {
			return fmt.Errorf("env: symlink %s: %w", link, err)
		}
	}
	return nil
}

// EnsurePathBlock 确保 shell 配置中包含把 <linkRoot>/bin 加入 PATH 的配置块。
// 配置块已存在时不做改动。
func (m *Manager) EnsurePathBlock() error {
	shell, err := m.DetectShell()
	if err != nil {
		return err
	}

	configPath, err := m.configFileForShell(shell)
	if err != nil {
		return err
	}

	var existing []byte
	if data, err := os.ReadFile(configPath); err == nil {
		existing = data
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("env: read config: %w", err)
	}

	if strings.Contains(string(existing), blockStart) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("env: ensure config dir: %w", err)
	}

	block := m.buildPathBlock()
	content := strings.TrimRight(string(existing), "\n")
	if strings.TrimSpace(content) == "" {
		content = block + "\n"
	} else {
		content = content + "\n\n" + block + "\n"
	}

	return os.WriteFile(configPath, []byte(content), 0o644)
}

// DetectShell 根据 SHELL 环境变量推断当前 shell。
func (m *Manager) DetectShell() (string, error) {
	shellPath := m.envFn("SHELL")
	if shellPath == "" {
		shellPath = "bash"
	}
	shell := filepath.Base(shellPath)
	switch shell {
	case "bash", "zsh":
		return shell, nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shell)
	}
}

func (m *Manager) configFileForShell(shellType string) (string, error) {
	home, err := m.homeFn()
	if err != nil {
		return "", fmt.Errorf("env: home dir: %w", err)
	}

	switch shellType {
	case "bash":
		path := filepath.Join(home, ".bashrc")
		if fileExists(path) {
			return path, nil
		}
		return filepath.Join(home, ".bash_profile"), nil
	case "zsh":
		return filepath.Join(home, ".zshrc"), nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shellType)
	}
}

func (m *Manager) buildPathBlock() string {
	lines := []string{
		blockStart,
		fmt.Sprintf("export PATH=\"%s:$PATH\"", filepath.Join(m.linkRoot, "bin")),
		blockEnd,
	}
	return strings.Join(lines, "\n")
}

func fileExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}
