package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"

	DefaultAPIURL           = "http://localhost:8000"
	DefaultPollInterval     = 2 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultDownloadTimeout  = 10 * time.Minute
	DefaultStore            = StoreFile
	DefaultDownloadDir      = "."
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "console"
	defaultDataDirName      = "vidgen"
	DefaultEnvFile          = ".env"
	MaxTransportFailuresEnv = "VIDGEN_MAX_TRANSPORT_FAILURES"
)

// Config is the resolved runtime configuration. Precedence: flags, then
// process environment, then .env, then defaults.
type Config struct {
	APIURL               string        `json:"api_url"`
	PollInterval         time.Duration `json:"poll_interval"`
	HTTPTimeout          time.Duration `json:"http_timeout"`
	DownloadTimeout      time.Duration `json:"download_timeout"`
	MaxTransportFailures int           `json:"max_transport_failures"`
	Store                string        `json:"store"`
	DataDir              string        `json:"data_dir"`
	DownloadDir          string        `json:"download_dir"`
	LogLevel             string        `json:"log_level"`
	LogFormat            string        `json:"log_format"`
}

// Load reads envFile when it exists (a missing file is not an error) and
// resolves every setting.
func Load(envFile string) (Config, error) {
	if strings.TrimSpace(envFile) == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		APIURL:      getEnv("VIDGEN_API_URL", DefaultAPIURL),
		Store:       getEnv("VIDGEN_STORE", DefaultStore),
		DataDir:     getEnv("VIDGEN_DATA_DIR", ""),
		DownloadDir: getEnv("VIDGEN_DOWNLOAD_DIR", DefaultDownloadDir),
		LogLevel:    getEnv("VIDGEN_LOG_LEVEL", DefaultLogLevel),
		LogFormat:   getEnv("VIDGEN_LOG_FORMAT", DefaultLogFormat),
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("VIDGEN_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("VIDGEN_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DownloadTimeout, err = getEnvDuration("VIDGEN_DOWNLOAD_TIMEOUT", DefaultDownloadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxTransportFailures, err = getEnvInt(MaxTransportFailuresEnv, 0); err != nil {
		return Config{}, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return cfg.Normalize()
}

// Normalize validates cfg and canonicalizes its values. Flag overrides are
// applied by the caller before calling it again.
func (c Config) Normalize() (Config, error) {
	out := c
	out.APIURL = strings.TrimRight(strings.TrimSpace(out.APIURL), "/")
	if out.APIURL == "" {
		return Config{}, errors.New("VIDGEN_API_URL is required")
	}
	u, err := url.Parse(out.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("VIDGEN_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if out.PollInterval <= 0 {
		return Config{}, fmt.Errorf("VIDGEN_POLL_INTERVAL must be > 0, got %s", out.PollInterval)
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = DefaultHTTPTimeout
	}
	if out.DownloadTimeout <= 0 {
		out.DownloadTimeout = DefaultDownloadTimeout
	}
	if out.MaxTransportFailures < 0 {
		return Config{}, fmt.Errorf("%s must be >= 0 (0 = unlimited), got %d", MaxTransportFailuresEnv, out.MaxTransportFailures)
	}

	out.Store = strings.ToLower(strings.TrimSpace(out.Store))
	switch out.Store {
	case "":
		out.Store = DefaultStore
	case StoreFile, StoreSQLite:
	default:
		return Config{}, fmt.Errorf("VIDGEN_STORE must be %s or %s, got %q", StoreFile, StoreSQLite, c.Store)
	}

	out.DataDir = strings.TrimSpace(out.DataDir)
	if out.DataDir == "" {
		out.DataDir = defaultDataDir()
	}
	out.DownloadDir = strings.TrimSpace(out.DownloadDir)
	if out.DownloadDir == "" {
		out.DownloadDir = DefaultDownloadDir
	}
	if strings.TrimSpace(out.LogLevel) == "" {
		out.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(out.LogFormat) == "" {
		out.LogFormat = DefaultLogFormat
	}
	return out, nil
}

func defaultDataDir() string {
	root, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(root) == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return filepath.Join(".", "."+defaultDataDirName)
		}
		root = filepath.Join(home, ".config")
	}
	return filepath.Join(root, defaultDataDirName)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	raw := strings.TrimSpace(v)
	if ms, err := strconv.Atoi(raw); err == nil {
		// bare numbers are milliseconds
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 2s or 1500ms, got %q", key, v)
	}
	return d, nil
}
