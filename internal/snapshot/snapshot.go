// Package snapshot persists room state as opaque versioned blobs behind a
// small key/value interface with pebble, redis and in-memory backends.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Version is the schema version written into every snapshot envelope.
const Version = 1

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

var (
	// ErrNotFound is returned by Load when no value is stored under a key.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrVersion is returned by Decode for envelopes of an unknown version.
	ErrVersion = errors.New("snapshot: unsupported version")
)

// Store is a key/value sink for room snapshots.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendPebble:
		return OpenPebble(cfg.Path, log)
	case BackendRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, log)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q", cfg.Backend)
	}
}

// MessagesKey is the key holding a room's ordered message array.
func MessagesKey(room string) string {
	return "room/" + room + "/messages"
}

// SettingsKey is the key holding a room's admin settings.
func SettingsKey(room string) string {
	return "room/" + room + "/settings"
}

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps data in a versioned envelope.
func Encode(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return json.Marshal(envelope{Version: Version, Data: raw})
}

// Decode unwraps a versioned envelope into out.
func Decode(value []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("snapshot: decode envelope: %w", err)
	}
	if env.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("snapshot: decode data: %w", err)
	}
	return nil
}
