package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".atlas"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".atlas/atlas.db"
	DefaultBadgerDir  = ".atlas/badger"
)

// Load reads the config file (falling back to defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("atlas")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file exists but is malformed.
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	if configPath == "" {
		p, err := ConfigPath("")
		if err != nil {
			return err
		}
		configPath = p
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Set assigns a dotted key ("gateway.port") from its string form, going
// through viper so types are coerced the same way as when loading.
func Set(cfg *Config, key, value string) error {
	v := viper.New()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return err
	}
	if err := v.MergeConfigMap(asMap); err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	v.Set(key, value)
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	*cfg = out
	return nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.badger_dir", filepath.Join(home, DefaultBadgerDir))
	v.SetDefault("database.in_memory", false)

	v.SetDefault("store.fetch_timeout", "15s")
	v.SetDefault("store.badger_gc_schedule", "@every 10m")
	v.SetDefault("store.badger_gc_ratio", 0.5)

	v.SetDefault("gateway.port", 6090)
	v.SetDefault("gateway.ingest_dir", "")
	v.SetDefault("gateway.ingest_schedule", "@every 1m")

	v.SetDefault("display.page_size", 25)
	v.SetDefault("display.resource_type", "endpoint")
	v.SetDefault("display.output", "table")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Database.BadgerDir = expandHome(cfg.Database.BadgerDir, home)
	cfg.Gateway.IngestDir = expandHome(cfg.Gateway.IngestDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
