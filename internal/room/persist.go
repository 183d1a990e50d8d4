package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

const saveTimeout = 5 * time.Second

// persister writes snapshots off the event loop. Only the latest value per
// key is kept, so a burst of mutations costs one write.
type persister struct {
	store snapshot.Store
	log   *zap.Logger

	mu      sync.Mutex
	pending map[string][]byte
	wake    chan struct{}
}

func newPersister(store snapshot.Store, log *zap.Logger) *persister {
	return &persister{
		store:   store,
		log:     log,
		pending: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
	}
}

func (p *persister) submit(key string, value []byte) {
	p.mu.Lock()
	p.pending[key] = value
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.flush(ctx)
		}
	}
}

// flush writes every pending snapshot. Failed writes are logged and dropped;
// the next mutation of the same key produces a fresh snapshot.
func (p *persister) flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string][]byte)
	p.mu.Unlock()

	for key, value := range batch {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		err := p.store.Save(saveCtx, key, value)
		cancel()
		if err != nil {
			metrics.SnapshotWrites.WithLabelValues("error").Inc()
			p.log.Error("snapshot_save_failed", zap.String("key", key), zap.Error(err))
			continue
		}
		metrics.SnapshotWrites.WithLabelValues("ok").Inc()
		p.log.Debug("snapshot_saved", zap.String("key", key), zap.String("size", humanize.Bytes(uint64(len(value)))))
	}
}

func (r *Room) persistMessages() {
	value, err := snapshot.Encode(r.copyMessages())
	if err != nil {
		r.log.Error("snapshot_encode_failed", zap.String("key", "messages"), zap.Error(err))
		return
	}
	r.persist.submit(snapshot.MessagesKey(r.name), value)
}

func (r *Room) persistSettings() {
	value, err := snapshot.Encode(r.settings)
	if err != nil {
		r.log.Error("snapshot_encode_failed", zap.String("key", "settings"), zap.Error(err))
		return
	}
	r.persist.submit(snapshot.SettingsKey(r.name), value)
}

func (r *Room) copyMessages() []protocol.Message {
	out := make([]protocol.Message, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, *m.Clone())
	}
	return out
}

// restore loads the room snapshot. A missing or unreadable snapshot leaves
// the defaults in place.
func (r *Room) restore(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	settings := r.settings.Clone()
	if r.load(loadCtx, snapshot.SettingsKey(r.name), &settings) {
		if settings.BannedWords == nil {
			settings.BannedWords = []string{}
		}
		if settings.MaxMessageHistory < 0 {
			settings.MaxMessageHistory = r.settings.MaxMessageHistory
		}
		r.settings = settings
	}

	var messages []protocol.Message
	if r.load(loadCtx, snapshot.MessagesKey(r.name), &messages) {
		r.messages = r.messages[:0]
		clear(r.index)
		for i := range messages {
			m := &messages[i]
			if m.ID == "" {
				continue
			}
			if _, dup := r.index[m.ID]; dup {
				continue
			}
			m.RatingScore = ratingScore(m.Ratings)
			r.messages = append(r.messages, m)
			r.index[m.ID] = m
			if m.Timestamp > r.lastStamp {
				r.lastStamp = m.Timestamp
			}
		}
	}

	now := r.nowMillis()
	for _, m := range r.messages {
		if !m.Ephemeral() || m.IsHidden {
			continue
		}
		switch {
		case m.MaxViews > 0 && m.ViewCount >= m.MaxViews:
			m.IsHidden = true
		case m.ExpiresAt == 0:
		case m.ExpiresAt <= now:
			m.IsHidden = true
		default:
			r.scheduleExpiry(m)
		}
	}
	for _, m := range r.messages {
		r.rankings[m.UserID] += m.RatingScore
	}
	r.prune()
}

func (r *Room) load(ctx context.Context, key string, out any) bool {
	value, err := r.store.Load(ctx, key)
	if errors.Is(err, snapshot.ErrNotFound) {
		return false
	}
	if err != nil {
		r.log.Error("snapshot_load_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := snapshot.Decode(value, out); err != nil {
		r.log.Error("snapshot_decode_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	r.log.Info("snapshot_loaded", zap.String("key", key), zap.String("size", humanize.Bytes(uint64(len(value)))))
	return true
}
