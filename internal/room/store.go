package room

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// append stores m as the newest message, assigning its id and timestamp,
// then prunes history and schedules its expiry.
func (r *Room) append(m *protocol.Message) *protocol.Message {
	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	if _, taken := r.index[m.ID]; taken {
		r.log.Debug("Replacing duplicate message id", zap.String("id", m.ID))
		m.ID = uuid.NewString()
	}
	m.Timestamp = r.nextStamp()

	r.messages = append(r.messages, m)
	r.index[m.ID] = m
	if m.ExpiresAt > 0 {
		r.scheduleExpiry(m)
	}
	r.prune()
	return m
}

// prune drops the oldest messages while history exceeds maxMessageHistory.
func (r *Room) prune() {
	limit := r.settings.MaxMessageHistory
	excess := len(r.messages) - limit
	if excess <= 0 {
		return
	}

	dropped := r.messages[:excess]
	owners := make(map[string]struct{})
	for _, m := range dropped {
		r.forget(m.ID)
		if m.RatingScore != 0 {
			owners[m.UserID] = struct{}{}
		}
	}
	kept := make([]*protocol.Message, len(r.messages)-excess)
	copy(kept, r.messages[excess:])
	r.messages = kept

	r.log.Debug("Pruned message history", zap.Int("dropped", excess), zap.Int("kept", len(kept)))
	for owner := range owners {
		r.refreshRanking(owner)
	}
}

// find returns the stored message with the given id.
func (r *Room) find(id string) (*protocol.Message, bool) {
	m, ok := r.index[id]
	return m, ok
}

// remove deletes one message from history.
func (r *Room) remove(id string) (*protocol.Message, bool) {
	m, ok := r.index[id]
	if !ok {
		return nil, false
	}
	for i, candidate := range r.messages {
		if candidate == m {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			break
		}
	}
	r.forget(id)
	return m, true
}

// forget drops every piece of per-message state kept outside the message.
func (r *Room) forget(id string) {
	delete(r.index, id)
	delete(r.confirmed, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// replay appends the full ordered history to frames. Hidden messages are
// included; clients decide how to render them.
func (r *Room) replay(frames [][]byte) [][]byte {
	for _, m := range r.messages {
		frames = r.appendFrame(frames, m)
	}
	return frames
}
