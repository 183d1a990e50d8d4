package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// RoomConfig holds the defaults every room starts with.
type RoomConfig struct {
	DefaultRoom       string
	AdminPassword     string
	MaxMessageHistory int
	WelcomeMessage    string
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level       string
	Development bool
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	Room           RoomConfig
	Store          snapshot.Config
	Log            LogConfig
}

var (
	configMu      sync.RWMutex
	activeConfig  Config
	activeOrigins originAllowList
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		Room: RoomConfig{
			DefaultRoom:       "main",
			MaxMessageHistory: protocol.DefaultMaxMessageHistory,
		},
		Store: snapshot.Config{
			Backend: snapshot.BackendPebble,
			Path:    snapshot.DefaultPebblePath,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if !validRoomName(cfg.Room.DefaultRoom) {
		cfg.Room.DefaultRoom = defaults.Room.DefaultRoom
	}

	if cfg.Room.MaxMessageHistory < 0 {
		cfg.Room.MaxMessageHistory = defaults.Room.MaxMessageHistory
	}

	switch cfg.Store.Backend {
	case snapshot.BackendPebble, snapshot.BackendRedis, snapshot.BackendMemory:
	default:
		cfg.Store.Backend = defaults.Store.Backend
	}
	if cfg.Store.Backend == snapshot.BackendPebble && cfg.Store.Path == "" {
		cfg.Store.Path = defaults.Store.Path
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	normalizedOrigins, origins := newOriginAllowList(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activeOrigins = origins

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	copied := *cfg
	copied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(copied)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Configuration keys and the environment variables bound to them.
var configKeys = map[string]string{
	"server.port":                "SERVER_PORT",
	"server.allowed_origins":     "ALLOWED_ORIGINS",
	"server.max_message_size":    "MAX_MESSAGE_SIZE",
	"rate_limit.burst":           "RATE_LIMIT_BURST",
	"rate_limit.refill_interval": "RATE_LIMIT_REFILL_INTERVAL",
	"room.default":               "DEFAULT_ROOM",
	"room.admin_password":        "ADMIN_PASSWORD",
	"room.max_message_history":   "MAX_MESSAGE_HISTORY",
	"room.welcome_message":       "WELCOME_MESSAGE",
	"store.backend":              "STORE_BACKEND",
	"store.path":                 "STORE_PATH",
	"store.redis.addr":           "REDIS_ADDR",
	"store.redis.password":       "REDIS_PASSWORD",
	"store.redis.db":             "REDIS_DB",
	"store.redis.prefix":         "REDIS_PREFIX",
	"log.level":                  "LOG_LEVEL",
	"log.development":            "LOG_DEVELOPMENT",
}

// LoadConfig reads the optional config file at path and overlays the
// environment. Values that fail to parse keep their defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, env := range configKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := defaultConfig()

	if port := v.GetString("server.port"); port != "" {
		cfg.Port = port
	}
	if origins := originsValue(v.Get("server.allowed_origins")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if maxSize := v.GetString("server.max_message_size"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := v.GetString("rate_limit.burst"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := v.GetString("rate_limit.refill_interval"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if name := v.GetString("room.default"); name != "" {
		cfg.Room.DefaultRoom = name
	}
	cfg.Room.AdminPassword = v.GetString("room.admin_password")
	cfg.Room.WelcomeMessage = v.GetString("room.welcome_message")
	if history := v.GetString("room.max_message_history"); history != "" {
		cfg.Room.MaxMessageHistory = parseHistoryValue(history, cfg.Room.MaxMessageHistory)
	}

	if backend := v.GetString("store.backend"); backend != "" {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(backend))
	}
	if storePath := v.GetString("store.path"); storePath != "" {
		cfg.Store.Path = storePath
	}
	cfg.Store.RedisAddr = v.GetString("store.redis.addr")
	cfg.Store.RedisPassword = v.GetString("store.redis.password")
	if db := v.GetString("store.redis.db"); db != "" {
		cfg.Store.RedisDB = parseHistoryValue(db, 0)
	}
	cfg.Store.RedisPrefix = v.GetString("store.redis.prefix")

	if level := v.GetString("log.level"); level != "" {
		cfg.Log.Level = level
	}
	cfg.Log.Development = v.GetBool("log.development")

	return &cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		return NewConfig()
	}
	return cfg
}

// RoomSettings returns the settings a new room starts with.
func (c Config) RoomSettings() protocol.Settings {
	settings := protocol.DefaultSettings()
	settings.MaxMessageHistory = c.Room.MaxMessageHistory
	settings.WelcomeMessage = c.Room.WelcomeMessage
	return settings
}

func originsValue(raw any) []string {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return parseOrigins(v)
	case []string:
		return v
	case []any:
		origins := make([]string, 0, len(v))
		for _, o := range v {
			origins = append(origins, strings.TrimSpace(fmt.Sprint(o)))
		}
		return origins
	}
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseHistoryValue accepts zero, unlike parseIntValue.
func parseHistoryValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseRefillInterval takes whole seconds or a Go duration string.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
