package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Trigger   TriggerConfig
	Worker    WorkerConfig
	Providers ProvidersConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	URL         string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type SchedulerConfig struct {
	RefreshInterval time.Duration
	BatchSize       int
	MinIntervalS    int
	LeaderKey       string
	LeaderTTL       time.Duration
	StaleThreshold  time.Duration
	RetentionDays   int
	MaxQueueDepth   int64
	ShutdownTimeout time.Duration
	MetricsAddr     string
}

type TriggerConfig struct {
	LookbackWindow time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

type WorkerConfig struct {
	Concurrency       int
	LockTTL           time.Duration
	HeartbeatInterval time.Duration
}

type ProvidersConfig struct {
	TikTokBaseURL  string
	KieBaseURL     string
	WhisperBaseURL string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config

	// App
	cfg.App.Name = viper.GetString("app.name")
	cfg.App.Environment = viper.GetString("app.environment")
	cfg.App.Debug = viper.GetBool("app.debug")
	cfg.App.URL = viper.GetString("app.url")

	// Server
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")
	cfg.Server.CORSOrigins = viper.GetString("server.cors_origins")

	// Database
	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.sslmode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")

	// Redis
	cfg.Redis.Host = viper.GetString("redis.host")
	cfg.Redis.Port = viper.GetInt("redis.port")
	cfg.Redis.Password = viper.GetString("redis.password")
	cfg.Redis.DB = viper.GetInt("redis.db")

	// JWT
	cfg.JWT.Secret = viper.GetString("jwt.secret")
	cfg.JWT.AccessExpiry = viper.GetDuration("jwt.access_expiry")
	cfg.JWT.RefreshExpiry = viper.GetDuration("jwt.refresh_expiry")
	cfg.JWT.Issuer = viper.GetString("jwt.issuer")

	// Scheduler
	cfg.Scheduler.RefreshInterval = viper.GetDuration("scheduler.refresh_interval")
	cfg.Scheduler.BatchSize = viper.GetInt("scheduler.batch_size")
	cfg.Scheduler.MinIntervalS = viper.GetInt("scheduler.min_interval_seconds")
	cfg.Scheduler.LeaderKey = viper.GetString("scheduler.leader_key")
	cfg.Scheduler.LeaderTTL = viper.GetDuration("scheduler.leader_ttl")
	cfg.Scheduler.StaleThreshold = viper.GetDuration("scheduler.stale_threshold")
	cfg.Scheduler.RetentionDays = viper.GetInt("scheduler.retention_days")
	cfg.Scheduler.MaxQueueDepth = viper.GetInt64("scheduler.max_queue_depth")
	cfg.Scheduler.ShutdownTimeout = viper.GetDuration("scheduler.shutdown_timeout")
	cfg.Scheduler.MetricsAddr = viper.GetString("scheduler.metrics_addr")

	// Trigger
	cfg.Trigger.LookbackWindow = viper.GetDuration("trigger.lookback_window")
	cfg.Trigger.RateLimit = viper.GetInt("trigger.rate_limit")
	cfg.Trigger.RateWindow = viper.GetDuration("trigger.rate_window")

	// Worker
	cfg.Worker.Concurrency = viper.GetInt("worker.concurrency")
	cfg.Worker.LockTTL = viper.GetDuration("worker.lock_ttl")
	cfg.Worker.HeartbeatInterval = viper.GetDuration("worker.heartbeat_interval")

	// Providers
	cfg.Providers.TikTokBaseURL = viper.GetString("providers.tiktok_base_url")
	cfg.Providers.KieBaseURL = viper.GetString("providers.kie_base_url")
	cfg.Providers.WhisperBaseURL = viper.GetString("providers.whisper_base_url")

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "adsync")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.cors_origins", "http://localhost:3000")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "adsync")
	viper.SetDefault("database.name", "adsync")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.access_expiry", 15*time.Minute)
	viper.SetDefault("jwt.refresh_expiry", 7*24*time.Hour)
	viper.SetDefault("jwt.issuer", "adsync")

	viper.SetDefault("scheduler.refresh_interval", 15*time.Second)
	viper.SetDefault("scheduler.batch_size", 500)
	viper.SetDefault("scheduler.min_interval_seconds", 60)
	viper.SetDefault("scheduler.leader_key", "scheduler:leader")
	viper.SetDefault("scheduler.leader_ttl", 30*time.Second)
	viper.SetDefault("scheduler.stale_threshold", 10*time.Minute)
	viper.SetDefault("scheduler.retention_days", 30)
	viper.SetDefault("scheduler.max_queue_depth", 10000)
	viper.SetDefault("scheduler.shutdown_timeout", 30*time.Second)
	viper.SetDefault("scheduler.metrics_addr", ":9091")

	viper.SetDefault("trigger.lookback_window", 24*time.Hour)
	viper.SetDefault("trigger.rate_limit", 60)
	viper.SetDefault("trigger.rate_window", time.Minute)

	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.lock_ttl", 60*time.Second)
	viper.SetDefault("worker.heartbeat_interval", 20*time.Second)
}
