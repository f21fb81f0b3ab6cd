package main

import (
	"fmt"
	"os"

	"github.com/liangyou/nvs/internal/cli"
	"github.com/liangyou/nvs/internal/env"
	"github.com/liangyou/nvs/internal/platform"
	"github.com/liangyou/nvs/internal/region"
	"github.com/liangyou/nvs/internal/remote"
	"github.com/liangyou/nvs/internal/storage"
	"github.com/liangyou/nvs/internal/version"
	"github.com/liangyou/nvs/pkg/models"
)

const appVersion = "0.1.0"

func main() {
	app := cli.NewApp(os.Stdout, appVersion, buildServices)
	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func buildServices(cfg models.Config) (*cli.Services, error) {
	store := storage.NewFileStore(cfg)
	detector := region.NewDetector()
	selector := region.NewSelector(cfg.Mirror, cfg.Repo, detector)
	remoteClient := remote.NewClient(cfg.Repo)

	resolver := version.NewResolver(remoteClient, selector.DownloadBase)
	downloader := version.NewDownloader(resolver, store, version.WithProgressFunc(printProgress))
	installer := version.NewInstaller(store, downloader)
	linker := env.NewManager(cfg.LinkRoot)

	return &cli.Services{
		Downloader: downloader,
		Switcher:   version.NewSwitcher(store, installer, linker),
		Purger:     version.NewUninstaller(store, linker),
		Lister:     version.NewLister(remoteClient, store),
		Checker:    platform.NewChecker(cfg),
	}, nil
}

func printProgress(downloaded, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\rdownloading... %d%% (%d/%d bytes)", downloaded*100/total, downloaded, total)
	} else {
		fmt.Fprintf(os.Stderr, "\rdownloading... %d bytes", downloaded)
	}
	if downloaded == total {
		fmt.Fprintln(os.Stderr)
	}
}
