package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/config"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/remote"
	syncer "github.com/beansync/beansync/internal/sync"
)

// app bundles the wired components a command runs against. The store
// lock is held from open until close so a workflow has the archive to
// itself.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *archive.Store
	orch   *syncer.Orchestrator
	window model.DateWindow
}

func (a *app) close() {
	a.store.Unlock()
	_ = a.logger.Sync()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so a
// workflow interrupted at the terminal still persists completed work.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, usagef("%v", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := cfg.Logging.NewLogger(quiet)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRemoteClient(cfg *config.Config, logger *zap.Logger) (remote.Client, error) {
	if cfg.Remote.APIKey == "" {
		return nil, usagef("no API key configured; set remote.api_key or BEANSYNC_REMOTE_API_KEY")
	}
	cc := cfg.Remote.ClientConfig()
	cc.HTTPClient = &http.Client{Timeout: cfg.Remote.Timeout()}
	cc.Logger = logger.Named("remote")
	return remote.NewHTTPClient(cc)
}

// openApp wires an orchestrator over an existing archive. needRemote
// commands fail fast without an API key; local-only commands get a nil
// client and never touch it.
func openApp(needRemote bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := archive.Open(cfg.Archive.Path, logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	if err := store.Lock(); err != nil {
		return nil, err
	}

	var client remote.Client
	if needRemote {
		client, err = newRemoteClient(cfg, logger)
		if err != nil {
			store.Unlock()
			return nil, err
		}
	}

	orch := syncer.New(client, store, changelog.Open(store.LogPath()), logger, os.Stdout)
	orch.DryRun = dryRun
	orch.Concurrency = cfg.Sync.Concurrency

	window, err := currentWindowSpec().resolveWindow(nowFunc())
	if err != nil {
		store.Unlock()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store, orch: orch, window: window}, nil
}

// createApp wires an orchestrator over a fresh clone destination.
func createApp(dest string) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if dest == "" {
		dest = cfg.Archive.Path
	}

	store, err := archive.Create(dest, cfg.Archive.StoreLayout(), logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	if err := store.Lock(); err != nil {
		return nil, err
	}
	client, err := newRemoteClient(cfg, logger)
	if err != nil {
		store.Unlock()
		return nil, err
	}

	orch := syncer.New(client, store, changelog.Open(store.LogPath()), logger, os.Stdout)
	orch.DryRun = dryRun
	orch.Concurrency = cfg.Sync.Concurrency

	window, err := currentWindowSpec().resolveWindow(nowFunc())
	if err != nil {
		store.Unlock()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store, orch: orch, window: window}, nil
}
