package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
	Router   RouterConfig `yaml:"router"`
	Database DBConfig     `yaml:"database"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // Per-frame write deadline
	OutboxSize      int           `yaml:"outbox_size"`      // Initial per-connection outbox capacity
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Graceful shutdown budget
}

// LogConfig selects slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RouterConfig holds Message Router settings.
type RouterConfig struct {
	QueueSize int `yaml:"queue_size"` // Initial event queue capacity
}

// DBConfig holds the optional PostgreSQL source of the route history list.
// Either URL or Host must be set to enable it.
type DBConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.URL != "" || db.Host != ""
}

// MQTTConfig holds the optional MQTT mirror settings.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"` // Empty disables the mirror
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            int           `yaml:"qos"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Enabled reports whether the mirror is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}
