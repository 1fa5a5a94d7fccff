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
	DefaultConfigDir    = ".ctrlnotify"
	DefaultConfigFile   = "config.json"
	DefaultTemplatesDir = ".ctrlnotify/templates"
	DefaultOutboxDir    = ".ctrlnotify/outbox"
	DefaultDBFile       = ".ctrlnotify/ctrlnotify.db"
	DefaultGatewayPort  = 6090

	envPrefix = "CTRLNOTIFY"
)

// Load reads the config file and returns a populated Config. A missing file
// is not an error: defaults are used. The configPath flag may override the
// default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
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
	p, err := ConfigPath(configPath)
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(p, data, 0o600)
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

// EnsureDir creates ~/.ctrlnotify if it doesn't exist.
func EnsureDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	d := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(d, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", d, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("templates.dir", filepath.Join(home, DefaultTemplatesDir))

	v.SetDefault("channels.email.output_dir", filepath.Join(home, DefaultOutboxDir))
	v.SetDefault("channels.email.from", "noreply@notification-service.com")
	v.SetDefault("channels.email.subject", "Notification")
	v.SetDefault("channels.slack.username", "Notification Bot")
	v.SetDefault("channels.slack.icon_emoji", ":bell:")
	v.SetDefault("channels.webhook.timeout_seconds", 5)

	v.SetDefault("dedup.window", "1h")
	v.SetDefault("dedup.bucket", "1h")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("kafka.topic", "notifications.events")
	v.SetDefault("kafka.group_id", "ctrlnotify")

	v.SetDefault("gateway.port", DefaultGatewayPort)
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Templates.Dir = expandHome(cfg.Templates.Dir, home)
	cfg.Channels.Email.OutputDir = expandHome(cfg.Channels.Email.OutputDir, home)
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
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
