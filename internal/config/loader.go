package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JCRYPT_CRYPT_WORKERS=8.
const EnvPrefix = "JCRYPT"

// Loader handles configuration loading from defaults, file, environment and flags.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{
		configPath: configPath,
		v:          v,
	}
	l.setDefaults(DefaultConfig())

	return l
}

// BindFlag makes a command-line flag override the given config key when it is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from file, environment and bound flags.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("jcrypt")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Crypt.Strategy = strings.ToLower(cfg.Crypt.Strategy)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file directories.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "jcrypt"),
			filepath.Join(homeDir, ".jcrypt"),
		)
	}

	return paths
}

// setDefaults registers every key so environment variables can override it.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("crypt.workers", cfg.Crypt.Workers)
	l.v.SetDefault("crypt.strategy", cfg.Crypt.Strategy)
	l.v.SetDefault("crypt.save", cfg.Crypt.SaveToFile)
	l.v.SetDefault("crypt.output_dir", cfg.Crypt.OutputDir)
	l.v.SetDefault("crypt.max_file_size", cfg.Crypt.MaxFileSize)

	l.v.SetDefault("history.enabled", cfg.History.Enabled)
	l.v.SetDefault("history.backend", cfg.History.Backend)
	l.v.SetDefault("history.dir", cfg.History.Dir)

	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
	l.v.SetDefault("log.file", cfg.Log.File)
	l.v.SetDefault("log.color", cfg.Log.Color)
}

// SaveExample writes an example config file in the format implied by its extension.
func SaveExample(path string) error {
	v := viper.New()
	cfg := DefaultConfig()

	v.Set("crypt", map[string]interface{}{
		"workers":       4,
		"strategy":      cfg.Crypt.Strategy,
		"save":          true,
		"output_dir":    "encrypted",
		"max_file_size": cfg.Crypt.MaxFileSize,
	})
	v.Set("history", map[string]interface{}{
		"enabled": true,
		"backend": cfg.History.Backend,
		"dir":     cfg.History.Dir,
	})
	v.Set("log", map[string]interface{}{
		"level":  cfg.Log.Level,
		"format": cfg.Log.Format,
		"color":  cfg.Log.Color,
	})

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
