package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newInstallDir 构造带 bin、lib、share 内容的安装目录。
func newInstallDir(t *testing.T, name string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	files := map[string]string{
		"bin/nvim":           "binary",
		"lib/libnvim.so":     "lib",
		"share/nvim/init.vi": "runtime",
		"share/man/nvim.1":   "man",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func TestLinkVersionFarmsBinLibShare(t *testing.T) {
	t.Parallel()

	linkRoot := t.TempDir()
	installDir := newInstallDir(t, "v0.10.4")

	manager := NewManager(linkRoot)
	if err := manager.LinkVersion(installDir); err != nil {
		t.Fatalf("LinkVersion failed: %v", err)
	}

	checks := map[string]string{
		filepath.Join(linkRoot, "bin", "nvim"):              filepath.Join(installDir, "bin", "nvim"),
		filepath.Join(linkRoot, "lib", "libnvim.so"):        filepath.Join(installDir, "lib", "libnvim.so"),
		filepath.Join(linkRoot, "share", "nvim", "init.vi"): filepath.Join(installDir, "share", "nvim", "init.vi"),
		filepath.Join(linkRoot, "share", "man", "nvim.1"):   filepath.Join(installDir, "share", "man", "nvim.1"),
	}
	for link, want := range checks {
		target, err := os.Readlink(link)
		if err != nil {
			t.Fatalf("readlink %s: %v", link, err)
		}
		if target != want {
			t.Fatalf("link %s points to %s, want %s", link, target, want)
		}
	}
}

func TestLinkVersionReplacesExistingLinks(t *testing.T) {
	t.Parallel()

	linkRoot := t.TempDir()
	oldInstall := newInstallDir(t, "v0.9.5")
	newInstall := newInstallDir(t, "v0.10.4")

	manager := NewManager(linkRoot)
	if err := manager.LinkVersion(oldInstall); err != nil {
		t.Fatalf("first LinkVersion failed: %v", err)
	}
	if err := manager.LinkVersion(newInstall); err != nil {
		t.Fatalf("second LinkVersion failed: %v", err)
	}

	target, err := os.Readlink(filepath.Join(linkRoot, "bin", "nvim"))
	if err != nil {
		t.Fatalf("readlink failed: %v", err)
	}
	if target != filepath.Join(newInstall, "bin", "nvim") {
		t.Fatalf("link not replaced, points to %s", target)
	}
}

func TestUnlinkVersionRemovesOnlyOwnLinks(t *testing.T) {
	t.Parallel()

	linkRoot := t.TempDir()
	installDir := newInstallDir(t, "v0.10.4")

	manager := NewManager(linkRoot)
	if err := manager.LinkVersion(installDir); err != nil {
		t.Fatalf("LinkVersion failed: %v", err)
	}

	// 一个不属于该安装的链接应保留
	foreign := filepath.Join(linkRoot, "bin", "other-tool")
	if err := os.Symlink("/usr/bin/true", foreign); err != nil {
		t.Fatalf("create foreign link: %v", err)
	}

	if err := manager.UnlinkVersion(installDir); err != nil {
		t.Fatalf("UnlinkVersion failed: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(linkRoot, "bin", "nvim")); !os.IsNotExist(err) {
		t.Fatalf("own link not removed: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(linkRoot, "share", "nvim", "init.vi")); !os.IsNotExist(err) {
		t.Fatalf("share link not removed: %v", err)
	}
	if _, err := os.Lstat(foreign); err != nil {
		t.Fatalf("foreign link removed: %v", err)
	}
}

func TestEnsurePathBlockWritesOnce(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	linkRoot := filepath.Join(home, ".local")

	manager := NewManager(linkRoot)
	manager.homeFn = func() (string, error) { return home, nil }
	manager.envFn = func(string) string { return "/bin/zsh" }

	if err := manager.EnsurePathBlock(); err != nil {
		t.Fatalf("EnsurePathBlock failed: %v", err)
	}
	if err := manager.EnsurePathBlock(); err != nil {
		t.Fatalf("repeated EnsurePathBlock failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".zshrc"))
	if err != nil {
		t.Fatalf("read zshrc: %v", err)
	}
	content := string(data)

	if strings.Count(content, blockStart) != 1 {
		t.Fatalf("expected exactly one block, got:\n%s", content)
	}
	if !strings.Contains(content, filepath.Join(linkRoot, "bin")) {
		t.Fatalf("PATH entry missing:\n%s", content)
	}
}

func TestEnsurePathBlockPreservesExistingContent(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	rc := filepath.Join(home, ".zshrc")
	if err := os.WriteFile(rc, []byte("alias ll='ls -l'\n"), 0o644); err != nil {
		t.Fatalf("write zshrc: %v", err)
	}

	manager := NewManager(filepath.Join(home, ".local"))
	manager.homeFn = func() (string, error) { return home, nil }
	manager.envFn = func(string) string { return "/bin/zsh" }

	if err := manager.EnsurePathBlock(); err != nil {
		t.Fatalf("EnsurePathBlock failed: %v", err)
	}

	data, err := os.ReadFile(rc)
	if err != nil {
		t.Fatalf("read zshrc: %v", err)
	}
	if !strings.Contains(string(data), "alias ll='ls -l'") {
		t.Fatalf("existing content lost:\n%s", data)
	}
}

func TestDetectShell(t *testing.T) {
	t.Parallel()

	manager := NewManager(t.TempDir())

	manager.envFn = func(string) string { return "/usr/bin/zsh" }
	if shell, err := manager.DetectShell(); err != nil || shell != "zsh" {
		t.Fatalf("unexpected shell: %s %v", shell, err)
	}

	manager.envFn = func(string) string { return "/usr/bin/fish" }
	if _, err := manager.DetectShell(); err == nil {
		t.Fatal("expected error for unsupported shell")
	}
}
