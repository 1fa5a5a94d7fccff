package config

import "github.com/CosmoTheDev/ctrlnotify/models"

// Config is the root configuration structure for ctrlnotify.
// Serialised to ~/.ctrlnotify/config.json.
type Config struct {
	Templates     TemplatesConfig             `mapstructure:"templates"     json:"templates"`
	Channels      ChannelsConfig              `mapstructure:"channels"      json:"channels"`
	Dedup         DedupConfig                 `mapstructure:"dedup"         json:"dedup"`
	Notifications []models.NotificationConfig `mapstructure:"notifications" json:"notifications"`
	Database      DatabaseConfig              `mapstructure:"database"      json:"database"`
	Scheduled     []ScheduledQueryConfig      `mapstructure:"scheduled"     json:"scheduled"`
	Kafka         KafkaConfig                 `mapstructure:"kafka"         json:"kafka"`
	Gateway       GatewayConfig               `mapstructure:"gateway"       json:"gateway"`
}

// TemplatesConfig controls where message templates are loaded from.
type TemplatesConfig struct {
	// Dir is the user template directory. Bundled templates fill in anything missing.
	Dir string `mapstructure:"dir" json:"dir"`
}

// ChannelsConfig holds per-channel settings.
type ChannelsConfig struct {
	Email   EmailChannelConfig   `mapstructure:"email"   json:"email"`
	Slack   SlackChannelConfig   `mapstructure:"slack"   json:"slack"`
	Webhook WebhookChannelConfig `mapstructure:"webhook" json:"webhook"`
}

// EmailChannelConfig configures the file-backed email channel.
type EmailChannelConfig struct {
	// OutputDir receives one .txt file per delivered email.
	OutputDir string `mapstructure:"output_dir" json:"output_dir"`
	From      string `mapstructure:"from"       json:"from"`
	Subject   string `mapstructure:"subject"    json:"subject"`
}

// SlackChannelConfig configures the console Slack channel.
type SlackChannelConfig struct {
	Username  string `mapstructure:"username"   json:"username"`
	IconEmoji string `mapstructure:"icon_emoji" json:"icon_emoji"`
}

// WebhookChannelConfig configures the generic HTTP webhook channel.
// The channel is only registered when URL is set.
type WebhookChannelConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
	// TimeoutSeconds bounds each POST (default: 5).
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// DedupConfig controls the deduplication policies.
type DedupConfig struct {
	// Window is the content_based look-back window as a Go duration ("1h", "30m").
	Window string `mapstructure:"window" json:"window"`
	// Bucket is the time_bucketed bucket size as a Go duration.
	Bucket string `mapstructure:"bucket" json:"bucket"`
}

// DatabaseConfig controls the storage backend used by scheduled queries.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// ScheduledQueryConfig declares a SQL query whose rows become events.
type ScheduledQueryConfig struct {
	Name      string `mapstructure:"name"       json:"name"`
	Query     string `mapstructure:"query"      json:"query"`
	EventType string `mapstructure:"event_type" json:"event_type"`
	// Schedule is "daily", "hourly", "weekly", "@every 10m" or a 5-field cron expression.
	Schedule string `mapstructure:"schedule" json:"schedule"`
	// Params are bound to the query's ? placeholders in order.
	Params []any `mapstructure:"params" json:"params,omitempty"`
}

// KafkaConfig enables the Kafka event stream in the gateway when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"  json:"brokers"`
	Topic   string   `mapstructure:"topic"    json:"topic"`
	GroupID string   `mapstructure:"group_id" json:"group_id"`
}

// GatewayConfig controls the long-running gateway daemon.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6090).
	Port int `mapstructure:"port" json:"port"`
}
