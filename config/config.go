// Package config loads the server configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// FileName is the config file looked up in the working directory.
const FileName = "pixeleditor.toml"

// Config is the full server configuration.
type Config struct {
	Addr      string `toml:"addr"`
	LogLevel  string `toml:"log_level"`
	StaticDir string `toml:"static_dir"`

	Canvas Canvas `toml:"canvas"`
	Store  Store  `toml:"store"`
	MDNS   MDNS   `toml:"mdns"`
}

// Canvas holds the defaults for new projects.
type Canvas struct {
	Width    int `toml:"width"`
	Height   int `toml:"height"`
	MaxSteps int `toml:"max_steps"`
}

// Store selects and tunes the project store.
type Store struct {
	Backend          string   `toml:"backend"`
	FirestoreProject string   `toml:"firestore_project"`
	FlushInterval    Duration `toml:"flush_interval"`
}

// MDNS controls LAN advertisement.
type MDNS struct {
	Enabled  bool   `toml:"enabled"`
	Instance string `toml:"instance"`
}

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		StaticDir: "static",
		Canvas: Canvas{
			Width:    canvas.DefaultWidth,
			Height:   canvas.DefaultHeight,
			MaxSteps: pixel.DefaultMaxSteps,
		},
		Store: Store{
			Backend:       BackendMemory,
			FlushInterval: Duration(5 * time.Second),
		},
		MDNS: MDNS{Instance: "pixeleditor"},
	}
}

// SearchPaths returns the candidate config files in lookup order. An explicit
// path, if given, is the only candidate.
func SearchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "pixeleditor", "config.toml"))
	}
	return paths
}

// Load reads the first existing file from SearchPaths(explicit) over the
// defaults. It returns the path it read, or "" when none existed. An explicit
// path that does not exist is an error.
func Load(explicit string) (Config, string, error) {
	cfg := Default()
	for _, path := range SearchPaths(explicit) {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) && explicit == "" {
			continue
		}
		if err != nil {
			return cfg, "", fmt.Errorf("config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, "", fmt.Errorf("config: %s: %w", path, err)
		}
		return cfg, path, nil
	}
	return cfg, "", nil
}

// Parse decodes TOML data into cfg and validates the result. Keys missing
// from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Canvas.Width < 1 || c.Canvas.Height < 1 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Canvas.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be positive, got %d", c.Canvas.MaxSteps)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Store.FirestoreProject == "" {
			return errors.New("firestore backend needs firestore_project")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.FlushInterval <= 0 {
		return errors.New("flush_interval must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel parses debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return l, nil
}
