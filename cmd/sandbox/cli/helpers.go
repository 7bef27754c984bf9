package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zamadev/sandbox/internal/cipher"
	"github.com/zamadev/sandbox/internal/config"
	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/storage"
	"github.com/zamadev/sandbox/internal/usage"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// storage.data_dir (or SANDBOX_STORAGE_DATA_DIR), or ~/.sandbox as fallback.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if cfg != nil && cfg.Storage.DataDir != "" {
		return cfg.Storage.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sandbox")
}

// loadConfig reads the effective configuration without validating it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	cfg.Storage.DataDir = resolveDataDir(cfg)
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for command output and the MCP stdio transport.
func newLogger(cfg config.LogConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// app bundles the services a command works with.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	kv     storage.KV
	auth   *service.AuthService
	keys   *service.APIKeyService
	usage  *usage.Service
	docs   docs.Config
}

// openApp validates the config, opens the profile storage and wires the
// services. rec may be nil.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, rec metrics.Recorder) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.Debug("profile storage opened", "driver", cfg.Storage.Driver, "data_dir", cfg.Storage.DataDir)

	c, err := cipher.New(cfg.Security.EncryptionSecret)
	if err != nil {
		kv.Close()
		return nil, err
	}
	store := credential.NewStore(kv, logger)

	auth, err := service.NewAuthService(store, service.AuthOptions{
		JWTSecret:      cfg.Security.JWTSecret,
		TokenTTL:       cfg.TokenTTL(),
		LoginLatency:   cfg.LoginLatency(),
		RefreshLatency: cfg.RefreshLatency(),
	}, logger, rec)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	loader := usage.NewLoader(cfg.Usage.Source, &http.Client{Timeout: 10 * time.Second})
	usageSvc := usage.NewService(usage.NewCache(loader, cfg.CacheTTL()), logger, rec)

	return &app{
		cfg:    cfg,
		logger: logger,
		kv:     kv,
		auth:   auth,
		keys:   service.NewAPIKeyService(store, c, logger, rec),
		usage:  usageSvc,
		docs:   docs.DefaultConfig(cfg.Docs.BaseURL),
	}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

// withApp loads the config, opens the app and runs fn against it.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, cfg, newLogger(cfg.Log, false), nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- PID file management ---

func pidFilePath(dir string) string {
	return filepath.Join(dir, "sandbox.pid")
}

func writePID(dir string, pid int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(dir), []byte(strconv.Itoa(pid)), 0644)
}

func readPID(dir string) (int, error) {
	data, err := os.ReadFile(pidFilePath(dir))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID(dir string) {
	os.Remove(pidFilePath(dir))
}

func logFilePath(dir string) string {
	return filepath.Join(dir, "sandbox.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
