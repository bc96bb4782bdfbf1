package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"vidgen/internal/api"
	"vidgen/internal/config"
	"vidgen/internal/ledger"
	"vidgen/internal/localstore"
	"vidgen/internal/logging"
	"vidgen/internal/media"
	"vidgen/internal/tracker"
)

// globalFlags are accepted by every command and override the environment.
type globalFlags struct {
	apiURL   *string
	dataDir  *string
	store    *string
	logLevel *string
	envFile  *string
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		apiURL:   fs.String("api-url", "", "video service base URL (env VIDGEN_API_URL)"),
		dataDir:  fs.String("data-dir", "", "directory holding the local gallery (env VIDGEN_DATA_DIR)"),
		store:    fs.String("store", "", "gallery store: file|sqlite (env VIDGEN_STORE)"),
		logLevel: fs.String("log-level", "", "log level: debug|info|warn|error (env VIDGEN_LOG_LEVEL)"),
		envFile:  fs.String("env-file", config.DefaultEnvFile, "optional .env file to load"),
	}
}

func (g *globalFlags) resolve() (config.Config, error) {
	cfg, err := config.Load(strings.TrimSpace(*g.envFile))
	if err != nil {
		return config.Config{}, err
	}
	if v := strings.TrimSpace(*g.apiURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(*g.dataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(*g.store); v != "" {
		cfg.Store = v
	}
	if v := strings.TrimSpace(*g.logLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg.Normalize()
}

// app is the wired set of components one command runs against.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	client  *api.Client
	store   localstore.Store
	ledger  *ledger.Ledger
	media   *media.Facade
	closers []io.Closer
}

func newApp(g *globalFlags) (*app, error) {
	cfg, err := g.resolve()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	client, err := api.New(api.Options{
		BaseURL:         cfg.APIURL,
		Timeout:         cfg.HTTPTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: client}
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := localstore.OpenSQLite(filepath.Join(cfg.DataDir, localstore.SQLiteFileName))
		if err != nil {
			return nil, err
		}
		a.store = db
		a.closers = append(a.closers, db)
	default:
		fileStore, err := localstore.NewFile(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		a.store = fileStore
	}
	a.ledger = ledger.New(a.store)
	a.media = media.New(client, media.Options{
		BaseURL: cfg.APIURL,
		Dir:     cfg.DownloadDir,
		Logger:  logger,
	})
	logger.Debug().
		Str("api_url", cfg.APIURL).
		Str("store", cfg.Store).
		Str("data_dir", cfg.DataDir).
		Msg("configuration resolved")
	return a, nil
}

func (a *app) newPoller() *tracker.Poller {
	rec := ledger.Recorder{Ledger: a.ledger, Locate: a.client.MediaURL}
	return tracker.New(a.client, rec, tracker.Options{
		Interval:             a.cfg.PollInterval,
		MaxTransportFailures: a.cfg.MaxTransportFailures,
		Logger:               a.logger,
	})
}

func (a *app) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}
	return firstErr
}
