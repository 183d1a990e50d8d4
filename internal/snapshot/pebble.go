package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// DefaultPebblePath is used when no database directory is configured.
const DefaultPebblePath = "data/chatroom"

// PebbleStore keeps snapshots in a local pebble database.
type PebbleStore struct {
	db   *pebble.DB
	path string
	log  *zap.Logger
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string, log *zap.Logger) (*PebbleStore, error) {
	if path == "" {
		path = DefaultPebblePath
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("snapshot: open pebble at %s: %w", path, err)
	}
	log.Info("pebble_opened", zap.String("path", path))
	return &PebbleStore{db: db, path: path, log: log}, nil
}

// Load returns a copy of the value stored under key.
func (s *PebbleStore) Load(_ context.Context, key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: pebble get %s: %w", key, err)
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		s.log.Warn("pebble_closer_failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

// Save writes value under key and syncs it to disk.
func (s *PebbleStore) Save(_ context.Context, key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		s.log.Error("pebble_set_failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("snapshot: pebble set %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.log.Info("pebble_closed", zap.String("path", s.path))
	return err
}
