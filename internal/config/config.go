package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// Config holds all application configuration.
type Config struct {
	// Batch encryption behaviour
	Crypt CryptConfig `mapstructure:"crypt" json:"crypt"`

	// Run history persistence
	History HistoryConfig `mapstructure:"history" json:"history"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// CryptConfig controls how a batch is distributed and where results go.
type CryptConfig struct {
	Workers     int    `mapstructure:"workers" json:"workers"`             // 0 = serial
	Strategy    string `mapstructure:"strategy" json:"strategy"`           // coordination strategy name
	SaveToFile  bool   `mapstructure:"save" json:"save"`                   // write results instead of printing
	OutputDir   string `mapstructure:"output_dir" json:"output_dir"`       // empty = beside the source
	MaxFileSize int64  `mapstructure:"max_file_size" json:"max_file_size"` // bytes, 0 = unlimited
}

// HistoryConfig selects the run history backend.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Backend string `mapstructure:"backend" json:"backend"` // json, sqlite
	Dir     string `mapstructure:"dir" json:"dir"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" json:"color"`   // Enable colored levels on terminals
}

// Strategies lists the accepted coordination strategy names.
var Strategies = []string{"per-task", "atomic", "latch", "barrier", "lock", "pool"}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".jcrypt"

	return &Config{
		Crypt: CryptConfig{
			Workers:     0,
			Strategy:    "pool",
			SaveToFile:  false,
			OutputDir:   "",
			MaxFileSize: 0,
		},
		History: HistoryConfig{
			Enabled: false,
			Backend: "json",
			Dir:     filepath.Join(dataDir, "history"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Crypt.Workers < 0 {
		return fmt.Errorf("crypt.workers must not be negative: %w", models.ErrInvalidConfiguration)
	}

	if !contains(Strategies, c.Crypt.Strategy) {
		return fmt.Errorf("unknown crypt.strategy %q: %w", c.Crypt.Strategy, models.ErrInvalidConfiguration)
	}

	if c.Crypt.MaxFileSize < 0 {
		return fmt.Errorf("crypt.max_file_size must not be negative: %w", models.ErrInvalidConfiguration)
	}

	if c.History.Enabled {
		if c.History.Backend != "json" && c.History.Backend != "sqlite" {
			return fmt.Errorf("invalid history backend: %s: %w", c.History.Backend, models.ErrInvalidConfiguration)
		}
		if c.History.Dir == "" {
			return fmt.Errorf("history.dir is required when history is enabled: %w", models.ErrInvalidConfiguration)
		}
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s: %w", c.Log.Level, models.ErrInvalidConfiguration)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s: %w", c.Log.Format, models.ErrInvalidConfiguration)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.Crypt.SaveToFile && c.Crypt.OutputDir != "" {
		dirs = append(dirs, c.Crypt.OutputDir)
	}

	if c.History.Enabled {
		dirs = append(dirs, c.History.Dir)
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
