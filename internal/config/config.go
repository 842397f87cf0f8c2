// Package config loads rendcached's process configuration: YAML file,
// environment variable overrides, then defaults for anything still zero —
// the same three-layer scheme the rest of this codebase's services use.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Ring    RingConfig    `yaml:"ring"`
	Stats   StatsConfig   `yaml:"stats"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the ops HTTP API (health, metrics, admin).
type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

// CacheConfig carries the tunables rendcache.spec.md §6 names as
// configuration-supplied constants.
type CacheConfig struct {
	MaxAgeSec           int   `yaml:"max_age_sec"`
	MaxSkewSec          int   `yaml:"max_skew_sec"`
	MaxIntroPoints      int   `yaml:"max_intro_points"`
	SweepIntervalSec    int   `yaml:"sweep_interval_sec"`
	ForceEvictWatermark int64 `yaml:"force_evict_watermark_bytes"`
}

func (c CacheConfig) MaxAge() time.Duration  { return time.Duration(c.MaxAgeSec) * time.Second }
func (c CacheConfig) MaxSkew() time.Duration { return time.Duration(c.MaxSkewSec) * time.Second }
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// RingConfig configures this node's position in the distributed hash ring.
type RingConfig struct {
	SelfNode    string   `yaml:"self_node"`
	Peers       []string `yaml:"peers"`
	IsDirectory bool     `yaml:"is_directory"`
}

// StatsConfig selects the statistics sink backend.
type StatsConfig struct {
	Backend string `yaml:"backend"` // "none" | "prometheus" | "redis"
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("RENDCACHE_PORT", c.Server.Port)
	c.Server.Env = getEnv("RENDCACHE_ENV", c.Server.Env)

	if v := getEnvInt("RENDCACHE_MAX_AGE_SEC", 0); v > 0 {
		c.Cache.MaxAgeSec = v
	}
	if v := getEnvInt("RENDCACHE_MAX_SKEW_SEC", 0); v > 0 {
		c.Cache.MaxSkewSec = v
	}
	if v := getEnvInt("RENDCACHE_MAX_INTRO_POINTS", 0); v > 0 {
		c.Cache.MaxIntroPoints = v
	}
	if v := getEnvInt("RENDCACHE_SWEEP_INTERVAL_SEC", 0); v > 0 {
		c.Cache.SweepIntervalSec = v
	}

	c.Ring.SelfNode = getEnv("RENDCACHE_SELF_NODE", c.Ring.SelfNode)
	c.Ring.IsDirectory = getEnvBool("RENDCACHE_IS_DIRECTORY", c.Ring.IsDirectory)

	c.Stats.Backend = getEnv("RENDCACHE_STATS_BACKEND", c.Stats.Backend)

	c.Redis.Enabled = getEnvBool("RENDCACHE_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("RENDCACHE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("RENDCACHE_REDIS_PASSWORD", c.Redis.Password)

	c.Logging.Level = getEnv("RENDCACHE_LOG_LEVEL", c.Logging.Level)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.ShutdownSec == 0 {
		c.Server.ShutdownSec = 10
	}
	// Tor's real rend-spec uses a 24h staleness bound and a 48h skew
	// tolerance; kept as the defaults here.
	if c.Cache.MaxAgeSec == 0 {
		c.Cache.MaxAgeSec = 24 * 3600
	}
	if c.Cache.MaxSkewSec == 0 {
		c.Cache.MaxSkewSec = 48 * 3600
	}
	if c.Cache.MaxIntroPoints == 0 {
		c.Cache.MaxIntroPoints = 10
	}
	if c.Cache.SweepIntervalSec == 0 {
		c.Cache.SweepIntervalSec = 3600
	}
	if c.Ring.SelfNode == "" {
		c.Ring.SelfNode = "rendcache-local"
	}
	if c.Stats.Backend == "" {
		c.Stats.Backend = "none"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }
