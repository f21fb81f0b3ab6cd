package models

// Version 描述远程或本地 Neovim 版本的核心元数据。
type Version struct {
	Tag         string // 规范化的发行 tag，例如 v0.10.4、stable、nightly
	DownloadURL string // 归档下载地址
	AssetName   string // 发行资产文件名，例如 nvim-linux-x86_64.tar.gz
	ArchivePath string // 本地缓存归档路径（已下载时）
	InstallPath string // 本地安装目录（已解压时）
	IsActive    bool   // 是否为当前激活版本
}

// Release 表示 GitHub 上的一条发行记录。
type Release struct {
	Tag        string   // 发行 tag
	Prerelease bool     // 是否为预发布
	Assets     []string // 资产文件名列表
}
