package room

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// scheduleExpiry arms the deadline timer of m. The timer only posts an
// expire event; the hide itself runs inside the loop.
func (r *Room) scheduleExpiry(m *protocol.Message) {
	if m.ExpiresAt <= 0 || m.IsHidden {
		return
	}
	if t, ok := r.timers[m.ID]; ok {
		t.Stop()
	}
	delay := time.Duration(m.ExpiresAt-r.nowMillis()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	id := m.ID
	r.timers[id] = r.afterFunc(delay, func() {
		r.post(expireEvent{messageID: id})
	})
}

// expire handles a fired deadline. Deleted, pruned or already hidden
// messages are left alone.
func (r *Room) expire(id string) {
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("Expiry fired for a message that is gone", zap.String("message", id))
		return
	}
	delete(r.timers, id)
	if m.ExpiresAt > r.nowMillis() {
		r.scheduleExpiry(m)
		return
	}
	if !hide(m) {
		return
	}
	r.log.Info("Message expired", zap.String("message", id))
	r.broadcast(protocol.ExpiredInfo{
		Info:            r.info(protocol.InfoMessageExpired),
		TargetMessageID: id,
		Reason:          protocol.ExpiredByDeadline,
	})
	r.persistMessages()
}

// hide flips m to its terminal hidden state. It reports false if m was
// already hidden.
func hide(m *protocol.Message) bool {
	if m.IsHidden {
		return false
	}
	m.IsHidden = true
	return true
}

// view runs one view request through the one-time, confirmation and
// view-count gates, in that order.
func (r *Room) view(s *session, id string, confirmed bool) {
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("View of unknown message", zap.String("conn", s.id), zap.String("message", id))
		return
	}

	if m.IsHidden {
		r.unicast(s, protocol.ExpiredInfo{
			Info:            r.info(protocol.InfoMessageExpired),
			TargetMessageID: id,
			Reason:          expiryReason(m),
		})
		return
	}

	if confirmed {
		r.confirm(id, s.id)
	}

	if m.OneTimeView && slices.Contains(m.ViewedBy, s.id) {
		r.unicast(s, protocol.TargetInfo{Info: r.info(protocol.InfoAlreadyViewed), TargetMessageID: id})
		return
	}

	if m.RequireConfirmation && !r.hasConfirmed(id, s.id) {
		r.unicast(s, protocol.TargetInfo{Info: r.info(protocol.InfoConfirmView), TargetMessageID: id})
		return
	}

	if m.OneTimeView {
		m.ViewedBy = append(m.ViewedBy, s.id)
	}
	m.ViewCount++
	r.broadcast(protocol.ViewedInfo{
		Info:            r.info(protocol.InfoMessageViewed),
		TargetMessageID: id,
		UserID:          s.id,
		ViewCount:       m.ViewCount,
		MaxViews:        m.MaxViews,
		ViewedBy:        m.ViewedBy,
	})

	if m.MaxViews > 0 && m.ViewCount >= m.MaxViews && hide(m) {
		r.log.Info("Message reached its view limit", zap.String("message", id), zap.Int("views", m.ViewCount))
		if t, ok := r.timers[id]; ok {
			t.Stop()
			delete(r.timers, id)
		}
		r.broadcast(protocol.ExpiredInfo{
			Info:            r.info(protocol.InfoMessageExpired),
			TargetMessageID: id,
			Reason:          protocol.ExpiredByMaxViews,
		})
	}
	r.persistMessages()
}

func expiryReason(m *protocol.Message) string {
	if m.MaxViews > 0 && m.ViewCount >= m.MaxViews {
		return protocol.ExpiredByMaxViews
	}
	return protocol.ExpiredByDeadline
}

func (r *Room) confirm(messageID, viewerID string) {
	viewers, ok := r.confirmed[messageID]
	if !ok {
		viewers = make(map[string]struct{})
		r.confirmed[messageID] = viewers
	}
	viewers[viewerID] = struct{}{}
}

func (r *Room) hasConfirmed(messageID, viewerID string) bool {
	_, ok := r.confirmed[messageID][viewerID]
	return ok
}
