package room

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// createThread promotes a message to a thread starter. A message that is
// already a starter keeps its thread and the current count is broadcast again.
func (r *Room) createThread(s *session, id string) {
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("createThread on unknown message", zap.String("conn", s.id), zap.String("message", id))
		return
	}
	if m.IsThreadStarter {
		r.broadcastThread(m)
		return
	}
	if m.ThreadID != "" {
		r.log.Debug("createThread on a thread reply", zap.String("message", id), zap.String("thread", m.ThreadID))
		return
	}

	m.ThreadID = uuid.NewString()
	m.IsThreadStarter = true
	m.ThreadMessageCount = 1
	r.log.Info("Thread created", zap.String("conn", s.id), zap.String("message", id), zap.String("thread", m.ThreadID))
	r.broadcastThread(m)
	r.persistMessages()
}

// replyInThread tags an existing message as a reply in threadID and bumps
// the starter's count. Unknown targets and unknown threads are dropped.
func (r *Room) replyInThread(id, threadID string) bool {
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("replyInThread on unknown message", zap.String("message", id))
		return false
	}
	starter, ok := r.findStarter(threadID)
	if !ok {
		r.log.Debug("replyInThread to unknown thread", zap.String("message", id), zap.String("thread", threadID))
		return false
	}
	if m == starter || m.IsThreadStarter || m.ThreadID != "" {
		return false
	}

	m.ThreadID = threadID
	starter.ThreadMessageCount++
	r.broadcast(m)
	r.broadcastThread(starter)
	r.persistMessages()
	return true
}

// findStarter returns the starter message of threadID.
func (r *Room) findStarter(threadID string) (*protocol.Message, bool) {
	if threadID == "" {
		return nil, false
	}
	for _, m := range r.messages {
		if m.IsThreadStarter && m.ThreadID == threadID {
			return m, true
		}
	}
	return nil, false
}

func (r *Room) broadcastThread(starter *protocol.Message) {
	r.broadcast(protocol.ThreadInfo{
		Info:               r.info(protocol.InfoThreadUpdate),
		TargetMessageID:    starter.ID,
		ThreadID:           starter.ThreadID,
		ThreadMessageCount: starter.ThreadMessageCount,
	})
}
