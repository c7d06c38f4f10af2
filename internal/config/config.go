package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Exchanges  ExchangesConfig  `yaml:"exchanges"`
	Dex        DexConfig        `yaml:"dex"`
	Session    SessionConfig    `yaml:"session"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ============================================================================
// CORE CONFIGURATION
// ============================================================================

// ServerConfig represents the listening address and CORS policy.
type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// RedisConfig represents the optional auxiliary cache mirror connection.
// It is never on the core fan-out path: a disabled or unreachable Redis
// never blocks a broadcast tick or a subscribe.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Timeout  string `yaml:"timeout"`
}

// ExchangesConfig enables/disables each centralized-exchange descriptor by
// id. An exchange absent from this map defaults to enabled.
type ExchangesConfig struct {
	Enabled map[string]bool `yaml:"enabled"`
}

// DexConfig points at the GeckoTerminal network catalog file consulted at
// startup.
type DexConfig struct {
	Enabled        bool   `yaml:"enabled"`
	NetworkCatalog string `yaml:"network_catalog"`
}

// SessionConfig tunes the heartbeat eviction sweep. The broadcast cadence
// is fixed to the wall-clock minute and has no setting here.
type SessionConfig struct {
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	HeartbeatTimeout  string `yaml:"heartbeat_timeout"`
}

// MonitoringConfig represents observability endpoint configuration.
type MonitoringConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// ============================================================================
// HELPER METHODS
// ============================================================================

// IsExchangeEnabled reports whether the given exchange id is enabled. An
// exchange not mentioned in the config defaults to enabled, so an empty or
// absent exchanges.enabled map enables the full registry.
func (c *Config) IsExchangeEnabled(id string) bool {
	if c.Exchanges.Enabled == nil {
		return true
	}
	v, ok := c.Exchanges.Enabled[id]
	if !ok {
		return true
	}
	return v
}

// GetHeartbeatInterval parses Session.HeartbeatInterval, defaulting to 30s.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return parseDurationOr(c.Session.HeartbeatInterval, 30*time.Second)
}

// GetHeartbeatTimeout parses Session.HeartbeatTimeout, defaulting to 60s.
func (c *Config) GetHeartbeatTimeout() time.Duration {
	return parseDurationOr(c.Session.HeartbeatTimeout, 60*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks required fields and internally-consistent ranges.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Dex.Enabled && c.Dex.NetworkCatalog == "" {
		return fmt.Errorf("dex.network_catalog is required when dex is enabled")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when redis is enabled")
	}
	return nil
}
