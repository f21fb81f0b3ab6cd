package models

// Config 保存 nvs 的全局配置，与 XDG 目录约定保持一致。
type Config struct {
	CacheDir string `yaml:"cache_dir"` // 归档缓存目录，默认 ~/.cache/nvs
	DataDir  string `yaml:"data_dir"`  // 安装数据目录，默认 ~/.local/share/nvs
	LinkRoot string `yaml:"link_root"` // 符号链接根目录，默认 ~/.local
	Repo     string `yaml:"repo"`      // GitHub 仓库，默认 neovim/neovim
	Mirror   string `yaml:"mirror"`    // 下载镜像：auto、github、ghproxy 或自定义地址
	LogLevel string `yaml:"log_level"` // 日志级别
	LogFile  string `yaml:"log_file"`  // 日志输出：console 或文件路径
}
