package scheduler

import "time"

type Config struct {
	// Fire engine
	RefreshInterval time.Duration
	BatchSize       int
	MinIntervalS    int

	// Rate limiting
	GlobalRateLimit int // fires per minute across all workspaces
	WorkspaceLimit  int // fires per minute per workspace

	// Leader election
	LeaderKey string
	LeaderTTL time.Duration

	// Recovery
	StaleThreshold time.Duration
	RetentionDays  int

	// Backpressure
	MaxQueueDepth int64

	// Shutdown
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		RefreshInterval: 15 * time.Second,
		BatchSize:       500,
		MinIntervalS:    60,
		GlobalRateLimit: 1000,
		WorkspaceLimit:  100,
		LeaderKey:       "scheduler:leader",
		LeaderTTL:       30 * time.Second,
		StaleThreshold:  10 * time.Minute,
		RetentionDays:   30,
		MaxQueueDepth:   10000,
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.MinIntervalS <= 0 {
		c.MinIntervalS = 60
	}
	if c.GlobalRateLimit <= 0 {
		c.GlobalRateLimit = 1000
	}
	if c.WorkspaceLimit <= 0 {
		c.WorkspaceLimit = 100
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = 30 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 10 * time.Minute
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = 10000
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return nil
}
