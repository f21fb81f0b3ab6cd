package platform

import (
	"fmt"
	"os"
	"runtime"

	"github.com/liangyou/nvs/pkg/models"
)

var supportedArch = map[string]struct{}{
	"amd64": {},
	"arm64": {},
}

// Checker 校验当前系统是否满足 nvs 的运行要求。
type Checker struct {
	cfg    models.Config
	goos   func() string
	goarch func() string
}

// NewChecker 创建平台检测器。
func NewChecker(cfg models.Config) *Checker {
	return &Checker{
		cfg:    cfg,
		goos:   func() string { return runtime.GOOS },
		goarch: func() string { return runtime.GOARCH },
	}
}

// Validate 校验当前平台与缓存、数据目录权限。
func (c *Checker) Validate() error {
	if c.goos() != "linux" {
		return fmt.Errorf("platform: unsupported operating system %s", c.goos())
	}
	if _, ok := supportedArch[c.goarch()]; !ok {
		return fmt.Errorf("platform: unsupported architecture %s", c.goarch())
	}

	for _, dir := range []string{c.cfg.CacheDir, c.cfg.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("platform: cannot access directory %s: %w", dir, err)
		}
	}
	return nil
}
