package room

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// handleFrame decodes one inbound frame and dispatches it. Every failure is
// reported to s alone.
func (r *Room) handleFrame(s *session, frame []byte) {
	s.lastSeen = r.nowMillis()

	in, err := protocol.Decode(frame)
	if err != nil {
		r.fail(s, reject(KindProtocol, err))
		return
	}
	if err := r.dispatch(s, in); err != nil {
		r.fail(s, asRejection(err))
	}
}

// dispatch routes a decoded frame to its component. join, getSettings and
// the privileged frames work before join; everything else needs a name.
func (r *Room) dispatch(s *session, in protocol.Inbound) error {
	switch v := in.(type) {
	case protocol.Join:
		return r.join(s, v.Name)
	case protocol.Typing:
		r.setTyping(s, v.IsTyping)
		return nil
	case protocol.GetSettings:
		r.unicast(s, protocol.NewSettingsUpdate(r.settings))
		return nil
	case protocol.AdminUpdate:
		return r.updateSettings(v.Settings, v.Password)
	case protocol.DeleteMessage:
		return r.deleteMessage(v.TargetMessageID, v.Password)
	case protocol.SubmitMessage:
		return r.submitMessage(s, v.Message)
	}

	if !s.joined {
		return policy(ErrNotJoined)
	}

	switch v := in.(type) {
	case protocol.Read:
		r.markRead(s, v.TargetMessageID)
	case protocol.React:
		return r.react(s, v.TargetMessageID, v.Reaction)
	case protocol.Rate:
		return r.rate(s, v.TargetMessageID, v.Rating)
	case protocol.ViewMessage:
		r.view(s, v.TargetMessageID, v.Confirmed)
	case protocol.CreateThread:
		r.createThread(s, v.TargetMessageID)
	case protocol.ReplyInThread:
		r.replyInThread(v.TargetMessageID, v.ThreadID)
	default:
		return reject(KindProtocol, fmt.Errorf("%w: %T", protocol.ErrUnknownType, in))
	}
	return nil
}

// submitMessage moderates, validates and stores a chat message, then relays
// it to the room.
func (r *Room) submitMessage(s *session, m protocol.Message) error {
	threadID := strings.TrimSpace(m.ThreadID)
	sanitize(&m, s)

	if err := r.acceptMessage(&m, s); err != nil {
		return err
	}
	if err := validateMessage(&m, r.nowMillis()); err != nil {
		return validation(err)
	}

	var starter *protocol.Message
	if threadID != "" {
		if st, ok := r.findStarter(threadID); ok {
			starter = st
			m.ThreadID = threadID
		} else {
			r.log.Debug("Stripping unknown thread from message", zap.String("conn", s.id), zap.String("thread", threadID))
		}
	}

	stored := r.append(&m)
	metrics.MessagesAccepted.Inc()
	r.log.Debug("Message accepted",
		zap.String("conn", s.id),
		zap.String("message", stored.ID),
		zap.String("type", stored.Type))
	r.broadcast(stored)

	if starter != nil {
		if _, live := r.find(starter.ID); live {
			starter.ThreadMessageCount++
			r.broadcastThread(starter)
		}
	}
	r.persistMessages()
	return nil
}

// sanitize overwrites every field the server owns.
func sanitize(m *protocol.Message, s *session) {
	m.Sender = s.name
	m.UserID = s.id
	m.Timestamp = 0
	m.Reactions = nil
	m.ReadBy = nil
	m.Ratings = nil
	m.RatingScore = 0
	m.ViewCount = 0
	m.ViewedBy = nil
	m.IsHidden = false
	m.ThreadID = ""
	m.IsThreadStarter = false
	m.ThreadMessageCount = 0
}

func validateMessage(m *protocol.Message, now int64) error {
	switch m.Type {
	case protocol.TypeText:
		if strings.TrimSpace(m.Text) == "" {
			return fmt.Errorf("%w: text is required", ErrInvalidMessage)
		}
		m.MediaType, m.URL, m.Caption, m.Duration = "", "", "", 0
	case protocol.TypeMedia:
		if !m.MediaType.Valid() {
			return fmt.Errorf("%w: unsupported mediaType %q", ErrInvalidMessage, m.MediaType)
		}
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("%w: url is required", ErrInvalidMessage)
		}
		if m.Duration < 0 {
			return fmt.Errorf("%w: duration must not be negative", ErrInvalidMessage)
		}
		if !m.MediaType.HasDuration() {
			m.Duration = 0
		}
		m.Text, m.FormattedText = "", false
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}

	if m.MaxViews < 0 {
		return fmt.Errorf("%w: maxViews must not be negative", ErrInvalidMessage)
	}
	if m.ExpiresAt < 0 {
		return fmt.Errorf("%w: expiresAt must not be negative", ErrInvalidMessage)
	}
	if m.ExpiresAt > 0 && m.ExpiresAt <= now {
		return ErrExpiryNotInFuture
	}
	return nil
}

// deleteMessage is the admin removal of one message.
func (r *Room) deleteMessage(id, password string) error {
	if !r.authorized(password) {
		r.log.Warn("Rejected unauthorized delete", zap.String("message", id))
		return policy(ErrUnauthorized)
	}
	m, ok := r.remove(id)
	if !ok {
		r.log.Info("Delete of unknown message", zap.String("message", id))
		return reject(KindNotFound, fmt.Errorf("%w: %s", ErrNotFound, id))
	}

	r.log.Info("Message deleted", zap.String("message", id))
	r.broadcast(protocol.TargetInfo{Info: r.info(protocol.InfoMessageDeleted), TargetMessageID: id})
	if m.RatingScore != 0 {
		r.refreshRanking(m.UserID)
	}
	r.persistMessages()
	return nil
}

func (r *Room) info(action protocol.Action) protocol.Info {
	return protocol.NewInfo(action, r.nowMillis())
}

// broadcast sends o to every connection of the room.
func (r *Room) broadcast(o protocol.Outbound) {
	frame, err := protocol.Encode(o)
	if err != nil {
		r.log.Error("Failed to encode broadcast frame", zap.Error(err))
		return
	}
	for _, s := range r.sessions {
		r.deliver(s, frame)
	}
}

func (r *Room) unicast(s *session, o protocol.Outbound) {
	frame, err := protocol.Encode(o)
	if err != nil {
		r.log.Error("Failed to encode frame", zap.String("conn", s.id), zap.Error(err))
		return
	}
	r.deliver(s, frame)
}

// appendFrame encodes o onto frames. A frame that cannot be encoded is
// logged and skipped.
func (r *Room) appendFrame(frames [][]byte, o protocol.Outbound) [][]byte {
	frame, err := protocol.Encode(o)
	if err != nil {
		r.log.Error("Failed to encode frame", zap.Error(err))
		return frames
	}
	return append(frames, frame)
}

// deliverBatch hands frames to s in order, as one unit when the connection
// supports it.
func (r *Room) deliverBatch(s *session, frames [][]byte) {
	bc, ok := s.conn.(BatchConn)
	if !ok {
		for _, frame := range frames {
			r.deliver(s, frame)
		}
		return
	}
	if !bc.SendBatch(frames) {
		metrics.FramesDropped.Add(float64(len(frames)))
		r.log.Debug("Dropped connect sequence for closed connection", zap.String("conn", s.id), zap.Int("frames", len(frames)))
	}
}

func (r *Room) deliver(s *session, frame []byte) {
	if !s.conn.Send(frame) {
		metrics.FramesDropped.Inc()
		r.log.Debug("Dropped frame for slow connection", zap.String("conn", s.id))
	}
}

// fail records and reports a rejected frame.
func (r *Room) fail(s *session, rej *Rejection) {
	metrics.MessagesRejected.WithLabelValues(string(rej.Kind)).Inc()
	switch rej.Kind {
	case KindInternal:
		r.log.Error("Frame failed", zap.String("conn", s.id), zap.Error(rej))
	case KindProtocol:
		r.log.Debug("Rejected malformed frame", zap.String("conn", s.id), zap.Error(rej))
	default:
		r.log.Info("Rejected frame", zap.String("conn", s.id), zap.Error(rej))
	}
	r.sendError(s, rej)
}

func (r *Room) sendError(s *session, rej *Rejection) {
	r.unicast(s, protocol.ErrorInfo{
		Info:    r.info(protocol.InfoError),
		Code:    string(rej.Kind),
		Message: rej.Err.Error(),
		Fields:  rej.Fields,
	})
}
