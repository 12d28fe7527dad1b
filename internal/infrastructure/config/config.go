// Package config provides configuration loading for pcb-deps.
// Settings come from environment variables through viper; command-line
// flags override them in the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	// EnvCacheDir is the root of the mirror, package and discovery caches.
	EnvCacheDir = "PCB_CACHE_DIR"

	// EnvOffline disables remote discovery.
	EnvOffline = "PCB_OFFLINE"

	// EnvLocked turns manifest drift into a failure.
	EnvLocked = "PCB_LOCKED"

	// EnvWorkers bounds the parallel audit and resolution workers.
	EnvWorkers = "PCB_WORKERS"

	// EnvSourceExt is the extension of source files scanned for references.
	EnvSourceExt = "PCB_SOURCE_EXT"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"
)

// Default values.
const (
	DefaultLogLevel   = "info"
	DefaultLogAppName = "pcb-deps"
	DefaultSourceExt  = ".zen"
)

// viper keys.
const (
	keyCacheDir   = "cache_dir"
	keyOffline    = "offline"
	keyLocked     = "locked"
	keyWorkers    = "workers"
	keySourceExt  = "source_ext"
	keyLogLevel   = "log_level"
	keyLogAppName = "log_app_name"
)

// Configuration errors.
var (
	// ErrInvalidWorkers indicates PCB_WORKERS is not a positive integer.
	ErrInvalidWorkers = errors.New("PCB_WORKERS must be a positive integer")

	// ErrInvalidCacheDir indicates the cache directory could not be determined.
	ErrInvalidCacheDir = errors.New("could not determine cache directory; set PCB_CACHE_DIR")
)

// Config holds all application configuration.
type Config struct {
	// CacheDir holds mirrors/, packages/ and discovery/.
	CacheDir string

	// Offline disables remote discovery.
	Offline bool

	// Locked fails instead of modifying manifests.
	Locked bool

	// Workers is the parallelism of audits and per-manifest resolution.
	Workers int

	// SourceExt is the source file extension, with a leading dot.
	SourceExt string

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()

	defaultCache, err := DefaultCacheDir()
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault(keyCacheDir, defaultCache)
	v.SetDefault(keyOffline, false)
	v.SetDefault(keyLocked, false)
	v.SetDefault(keyWorkers, runtime.NumCPU())
	v.SetDefault(keySourceExt, DefaultSourceExt)
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyLogAppName, DefaultLogAppName)

	bindings := map[string]string{
		keyCacheDir:   EnvCacheDir,
		keyOffline:    EnvOffline,
		keyLocked:     EnvLocked,
		keyWorkers:    EnvWorkers,
		keySourceExt:  EnvSourceExt,
		keyLogLevel:   EnvLogLevel,
		keyLogAppName: EnvLogAppName,
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	workers := v.GetInt(keyWorkers)
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidWorkers, v.GetString(keyWorkers))
	}

	cacheDir, err := expandHome(v.GetString(keyCacheDir))
	if err != nil {
		return nil, err
	}

	ext := strings.TrimSpace(v.GetString(keySourceExt))
	if ext == "" {
		ext = DefaultSourceExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return &Config{
		CacheDir:   cacheDir,
		Offline:    v.GetBool(keyOffline),
		Locked:     v.GetBool(keyLocked),
		Workers:    workers,
		SourceExt:  ext,
		LogLevel:   v.GetString(keyLogLevel),
		LogAppName: v.GetString(keyLogAppName),
	}, nil
}

// DefaultCacheDir returns ~/.pcb/cache.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCacheDir, err)
	}
	return filepath.Join(home, ".pcb", "cache"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCacheDir, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
