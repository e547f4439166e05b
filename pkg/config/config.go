package config

import "time"

// Mode selects which collaborators back the sync core
type Mode string

const (
	// ModeLocal in-memory store with seeded demo messages
	ModeLocal Mode = "local"
	// ModeRemote mongo + redis/websocket + postgres + minio
	ModeRemote Mode = "remote"
)

// RealtimeKind selects the live update channel transport
type RealtimeKind string

const (
	// RealtimeRedis redis pub/sub subscription
	RealtimeRedis RealtimeKind = "redis"
	// RealtimeWebsocket websocket subscription against the chat service
	RealtimeWebsocket RealtimeKind = "websocket"
)

// Client definition chat_client YAML structure
type Client struct {
	Port        string         `mapstructure:"port"`
	MetricsPort string         `mapstructure:"metrics_port"`
	Mode        Mode           `mapstructure:"mode"`
	Sync        SyncConfig     `mapstructure:"sync"`
	Realtime    RealtimeConfig `mapstructure:"realtime"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
}

// SyncConfig tuning of the reconciliation engine and polling fallback
type SyncConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	PollLimit       int           `mapstructure:"poll_limit"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	GracePeriod     time.Duration `mapstructure:"grace_period"`
	PollWhenHealthy bool          `mapstructure:"poll_when_healthy"`
}

// RealtimeConfig definition live channel setting
type RealtimeConfig struct {
	Kind         RealtimeKind  `mapstructure:"kind"`
	WebsocketURL string        `mapstructure:"websocket_url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition attachment bucket setting
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// DefaultSync the tuning used by the original client: 30 per page,
// newest 10 per poll every 2s, polling considered after 5s without channel traffic
func DefaultSync() SyncConfig {
	return SyncConfig{
		PageSize:     30,
		PollLimit:    10,
		PollInterval: 2 * time.Second,
		GracePeriod:  5 * time.Second,
	}
}

// WithDefaults fill zero values
func (s SyncConfig) WithDefaults() SyncConfig {
	d := DefaultSync()
	if s.PageSize <= 0 {
		s.PageSize = d.PageSize
	}
	if s.PollLimit <= 0 {
		s.PollLimit = d.PollLimit
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.GracePeriod <= 0 {
		s.GracePeriod = d.GracePeriod
	}
	return s
}
