package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liangyou/nvs/internal/config"
	"github.com/liangyou/nvs/internal/logging"
	"github.com/liangyou/nvs/internal/version"
	"github.com/liangyou/nvs/pkg/models"
)

// envVarPrefix 是命令行标志对应环境变量的前缀，例如 --log-level 对应 NVS_LOG_LEVEL。
const envVarPrefix = "NVS_"

// DownloadService 描述归档下载能力。
type DownloadService interface {
	Download(ctx context.Context, token string) (version.DownloadResult, error)
}

// SwitchService 描述版本切换能力。
type SwitchService interface {
	Use(ctx context.Context, token string) (version.SwitchResult, error)
}

// PurgeService 描述版本清除能力。
type PurgeService interface {
	Purge(token string, force bool) (version.PurgeResult, error)
}

// ListService 描述版本查询能力。
type ListService interface {
	LocalVersions() ([]models.Version, error)
	RemoteReleases() ([]models.Release, error)
	Active() (*models.Version, error)
	ProbeActive() (string, error)
	FormatRemoteRelease(models.Release) string
}

// PlatformChecker 校验运行环境。
type PlatformChecker interface {
	Validate() error
}

// Services 聚合各命令依赖的服务实例。
type Services struct {
	Downloader DownloadService
	Switcher   SwitchService
	Purger     PurgeService
	Lister     ListService
	Checker    PlatformChecker
}

// Factory 根据最终配置构造服务集合。
type Factory func(cfg models.Config) (*Services, error)

// App 负责 CLI 命令解析与分发。
type App struct {
	out     io.Writer
	version string
	factory Factory

	services *Services

	configPath string
	logLevel   string
	logFile    string
	root       string
	mirror     string
}

// NewApp 创建 CLI 应用实例。
func NewApp(out io.Writer, appVersion string, factory Factory) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{
		out:     out,
		version: appVersion,
		factory: factory,
	}
}

// Run 解析参数并执行命令。
func (a *App) Run(args []string) error {
	cmd := a.Command()
	cmd.SetArgs(args)
	return cmd.Execute()
}

// Command 构建根命令。
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "nvs",
		Short:         "Manage local Neovim release installations",
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to the config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.logFile, "log-file", "", "log destination, console or a file path")
	flags.StringVar(&a.root, "root", "", "override the data root directory")
	flags.StringVar(&a.mirror, "mirror", "", "download mirror: auto, github, ghproxy or a base URL")

	root.AddCommand(a.newDownloadCommand())
	root.AddCommand(a.newSwitchCommand())
	root.AddCommand(a.newCurrentCommand())
	root.AddCommand(a.newPurgeCommand())
	root.AddCommand(a.newListCommand())

	setFlagsFromEnvVars(root)
	return root
}

// initialize 按 标志 > 环境变量 > 配置文件 > 默认值 的优先级合成配置，
// 然后初始化日志、校验平台并构造服务。
func (a *App) initialize(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFile != "" {
		cfg.LogFile = a.logFile
	}
	if a.mirror != "" {
		cfg.Mirror = a.mirror
	}
	config.ApplyRoot(&cfg, a.root)

	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("cli: init logging: %w", err)
	}

	if a.factory == nil {
		return errors.New("cli: service factory is required")
	}
	services, err := a.factory(cfg)
	if err != nil {
		return err
	}
	a.services = services

	if a.services.Checker != nil {
		if err := a.services.Checker.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) newDownloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <version>",
		Short: "Download a release archive without activating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.services.Downloader == nil {
				return errors.New("download command is unavailable")
			}
			result, err := a.services.Downloader.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.Cached {
				fmt.Fprintf(a.out, "Version %s already downloaded.\n", result.Tag)
				return nil
			}
			fmt.Fprintf(a.out, "Downloaded %s to %s\n", result.Tag, result.Path)
			return nil
		},
	}
}

func (a *App) newSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <version>",
		Short: "Activate a version, downloading and extracting it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.services.Switcher == nil {
				return errors.New("switch command is unavailable")
			}
			result, err := a.services.Switcher.Use(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.Already {
				fmt.Fprintf(a.out, "Already using %s.\n", result.Tag)
				return nil
			}
			fmt.Fprintf(a.out, "Now using %s.\n", result.Tag)
			return nil
		},
	}
}

func (a *App) newCurrentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.services.Lister == nil {
				return errors.New("current command is unavailable")
			}
			active, err := a.services.Lister.Active()
			if err != nil {
				return err
			}
			if active == nil {
				fmt.Fprintln(a.out, "No active version.")
				return nil
			}
			fmt.Fprintf(a.out, "Current version: %s\n", active.Tag)
			if line, err := a.services.Lister.ProbeActive(); err == nil {
				fmt.Fprintf(a.out, "nvim reports: %s\n", line)
			} else {
				log.Debugf("cli: binary probe failed: %v", err)
			}
			return nil
		},
	}
}

func (a *App) newPurgeCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge <version>",
		Short: "Delete a downloaded archive and its installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.services.Purger == nil {
				return errors.New("purge command is unavailable")
			}
			result, err := a.services.Purger.Purge(args[0], force)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Purged %s.\n", result.Tag)
			if result.ClearedActive {
				fmt.Fprintln(a.out, "Active version cleared.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "allow purging the active version")
	return cmd
}

func (a *App) newListCommand() *cobra.Command {
	var remoteList bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local versions, or remote releases with --remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.services.Lister == nil {
				return errors.New("list command is unavailable")
			}
			if remoteList {
				return a.printRemote()
			}
			return a.printLocal()
		},
	}

	cmd.Flags().BoolVar(&remoteList, "remote", false, "list releases available on the remote")
	return cmd
}

func (a *App) printRemote() error {
	releases, err := a.services.Lister.RemoteReleases()
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		fmt.Fprintln(a.out, "No remote releases available.")
		return nil
	}
	fmt.Fprintln(a.out, "Remote releases:")
	for _, r := range releases {
		fmt.Fprintf(a.out, "  %s\n", a.services.Lister.FormatRemoteRelease(r))
	}
	return nil
}

func (a *App) printLocal() error {
	versions, err := a.services.Lister.LocalVersions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(a.out, "No versions installed.")
		return nil
	}
	fmt.Fprintln(a.out, "Installed versions:")
	for _, v := range versions {
		fmt.Fprintf(a.out, "  %s\n", version.FormatLocalVersion(v))
	}
	return nil
}

// setFlagsFromEnvVars 用 NVS_ 前缀的环境变量回填未在命令行给出的标志值。
// 命令行解析发生在之后，显式标志仍然优先。
func setFlagsFromEnvVars(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		envVar := flagNameToEnvVar(f.Name)
		if value, present := os.LookupEnv(envVar); present {
			if err := flags.Set(f.Name, value); err != nil {
				log.Debugf("cli: unable to configure flag %s from %s: %v", f.Name, envVar, err)
			}
		}
	})
}

// flagNameToEnvVar 将标志名转换为环境变量名，例如 log-level 转换为 NVS_LOG_LEVEL。
func flagNameToEnvVar(name string) string {
	return envVarPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
