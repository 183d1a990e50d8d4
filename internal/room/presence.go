package room

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

const maxNameLength = 64

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidIdentity reports whether id may be used as a connection identity.
func ValidIdentity(id string) bool {
	return identityPattern.MatchString(id)
}

// session is the per-connection state. A session is a named user once
// joined is set.
type session struct {
	conn     Conn
	id       string
	name     string
	joined   bool
	isTyping bool
	lastSeen int64
}

func (r *Room) handleConnect(c Conn, requestedID string) {
	if _, exists := r.sessions[c]; exists {
		return
	}
	id := requestedID
	if !ValidIdentity(id) {
		id = uuid.NewString()
	} else if _, live := r.byID[id]; live {
		r.log.Info("Identity already connected; assigning a fresh one", zap.String("requested", requestedID))
		id = uuid.NewString()
	}

	s := &session{conn: c, id: id, lastSeen: r.nowMillis()}
	r.sessions[c] = s
	r.byID[id] = s
	r.log.Info("Connection opened", zap.String("conn", id), zap.Int("connections", len(r.sessions)))

	frames := make([][]byte, 0, len(r.messages)+3)
	frames = r.appendFrame(frames, protocol.IdentityInfo{Info: r.info(protocol.InfoIdentity), UserID: id})
	frames = r.replay(frames)
	frames = r.appendFrame(frames, protocol.UserListInfo{Info: r.info(protocol.InfoUserList), Users: r.userList()})
	frames = r.appendFrame(frames, protocol.NewSettingsUpdate(r.settings))
	r.deliverBatch(s, frames)
}

func (r *Room) handleDisconnect(c Conn) {
	s, ok := r.sessions[c]
	if !ok {
		return
	}
	delete(r.sessions, c)
	if r.byID[s.id] == s {
		delete(r.byID, s.id)
	}
	r.log.Info("Connection closed", zap.String("conn", s.id), zap.Int("connections", len(r.sessions)))
	r.leave(s)
}

// join names the session and announces it. Joining again renames.
func (r *Room) join(s *session, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validation(ErrNameRequired)
	}
	if len([]rune(name)) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}

	first := !s.joined
	s.name = name
	s.joined = true
	s.isTyping = false
	s.lastSeen = r.nowMillis()

	r.log.Info("User joined", zap.String("conn", s.id), zap.String("name", name), zap.Bool("rename", !first))
	r.broadcastUserList()
	if first && r.settings.WelcomeMessage != "" {
		r.unicast(s, protocol.WelcomeInfo{Info: r.info(protocol.InfoWelcome), Message: r.settings.WelcomeMessage})
	}
	return nil
}

// setTyping updates the typing flag, broadcasting only on change.
func (r *Room) setTyping(s *session, isTyping bool) {
	if !s.joined || s.isTyping == isTyping {
		return
	}
	s.isTyping = isTyping
	r.broadcastUserList()
}

// leave removes a joined user from presence and announces it.
func (r *Room) leave(s *session) {
	if !s.joined {
		return
	}
	s.joined = false
	r.broadcastUserList()
}

// userList derives the presence snapshot, sorted by id so every observer
// sees the same order.
func (r *Room) userList() []protocol.User {
	users := make([]protocol.User, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.joined {
			continue
		}
		users = append(users, protocol.User{
			ID:           s.id,
			Name:         s.name,
			IsTyping:     s.isTyping,
			RankingScore: rankingScore(s.id, r.messages),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Room) broadcastUserList() {
	r.broadcast(protocol.UserListInfo{Info: r.info(protocol.InfoUserList), Users: r.userList()})
}
