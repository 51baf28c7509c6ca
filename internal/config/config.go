package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	LedgerBackendRedis  = "redis"
	LedgerBackendMemory = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Session   SessionConfig   `mapstructure:"session"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LedgerConfig struct {
	Backend   string        `mapstructure:"backend"`
	Retention time.Duration `mapstructure:"retention"`
}

type SessionConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	MessageRate    float64       `mapstructure:"message_rate"`
	MessageBurst   int           `mapstructure:"message_burst"`
}

type SyncConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Spec string `mapstructure:"spec"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "bidding-service-1")
	v.SetDefault("ledger.backend", LedgerBackendRedis)
	v.SetDefault("ledger.retention", time.Hour)
	v.SetDefault("session.send_buffer", 64)
	v.SetDefault("session.write_timeout", 10*time.Second)
	v.SetDefault("session.pong_timeout", 60*time.Second)
	v.SetDefault("session.ping_interval", 54*time.Second)
	v.SetDefault("session.max_message_size", 4096)
	v.SetDefault("session.message_rate", 10.0)
	v.SetDefault("session.message_burst", 20)
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.queue_size", 1024)
	v.SetDefault("sync.timeout", 5*time.Second)
	v.SetDefault("scheduler.spec", "@every 5s")
	v.SetDefault("log.level", "info")

	// Environment variable support
	v.AutomaticEnv()

	// Environment variable mappings
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("leader.ttl", "LEADER_TTL")
	v.BindEnv("instance.id", "INSTANCE_ID")
	v.BindEnv("ledger.backend", "LEDGER_BACKEND")
	v.BindEnv("ledger.retention", "LEDGER_RETENTION")
	v.BindEnv("session.send_buffer", "SESSION_SEND_BUFFER")
	v.BindEnv("sync.workers", "SYNC_WORKERS")
	v.BindEnv("sync.queue_size", "SYNC_QUEUE_SIZE")
	v.BindEnv("sync.timeout", "SYNC_TIMEOUT")
	v.BindEnv("scheduler.spec", "SCHEDULER_SPEC")
	v.BindEnv("log.level", "LOG_LEVEL")

	return v
}

func Load() (*Config, error) {
	v := newViper()

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bidding-core/")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case LedgerBackendRedis, LedgerBackendMemory:
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Session.SendBuffer <= 0 {
		return fmt.Errorf("config: session.send_buffer must be positive, got %d", c.Session.SendBuffer)
	}
	if c.Sync.Workers <= 0 || c.Sync.QueueSize <= 0 {
		return fmt.Errorf("config: sync.workers and sync.queue_size must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	// The lock is renewed at a third of its TTL; below a second it would
	// lapse between renewals.
	if c.Leader.TTL < time.Second {
		return fmt.Errorf("config: leader.ttl must be at least 1s, got %s", c.Leader.TTL)
	}
	if c.Ledger.Retention < 0 {
		return fmt.Errorf("config: ledger.retention must not be negative, got %s", c.Ledger.Retention)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Ledger: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Ledger.Backend,
		c.Instance.ID,
	)
}
