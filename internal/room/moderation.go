package room

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// Settings patch field names.
const (
	fieldWelcomeMessage    = "welcomeMessage"
	fieldAllowMediaUploads = "allowMediaUploads"
	fieldAllowReactions    = "allowReactions"
	fieldBannedWords       = "bannedWords"
	fieldMaxMessageHistory = "maxMessageHistory"
)

// acceptMessage applies room policy to a submission. Checks run in order:
// sender joined, media allowed, banned words.
func (r *Room) acceptMessage(m *protocol.Message, s *session) error {
	if s == nil || !s.joined {
		return policy(ErrNotJoined)
	}
	if m.IsMedia() && !r.settings.AllowMediaUploads {
		return policy(ErrMediaDisabled)
	}
	if word, found := containsBannedWord(m.Content(), r.settings.BannedWords); found {
		r.log.Info("Rejected message with banned word", zap.String("conn", s.id), zap.String("word", word))
		return policy(ErrBannedWord)
	}
	return nil
}

// containsBannedWord reports the first banned word found in text as a
// case-insensitive substring.
func containsBannedWord(text string, banned []string) (string, bool) {
	if text == "" || len(banned) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, word := range banned {
		w := strings.ToLower(strings.TrimSpace(word))
		if w != "" && strings.Contains(lower, w) {
			return word, true
		}
	}
	return "", false
}

// authorized compares the supplied password with the configured admin
// credential. An empty credential authorizes nobody.
func (r *Room) authorized(password string) bool {
	if r.adminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(r.adminPassword)) == 1
}

// updateSettings validates and merges a partial settings patch. Invalid
// fields are dropped and reported in the returned rejection while valid
// fields are applied, persisted and broadcast.
func (r *Room) updateSettings(patch map[string]json.RawMessage, password string) error {
	if !r.authorized(password) {
		r.log.Warn("Rejected unauthorized settings update")
		return policy(ErrUnauthorized)
	}

	next := r.settings.Clone()
	var dropped []string
	applied := 0

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := applySetting(&next, key, patch[key]); err != nil {
			r.log.Info("Dropped settings field", zap.String("field", key), zap.Error(err))
			dropped = append(dropped, key)
			continue
		}
		applied++
	}

	if applied > 0 {
		shrunk := next.MaxMessageHistory < r.settings.MaxMessageHistory
		r.settings = next
		r.persistSettings()
		if shrunk {
			before := len(r.messages)
			r.prune()
			if len(r.messages) != before {
				r.persistMessages()
			}
		}
		r.log.Info("Settings updated", zap.Int("fields", applied))
		r.broadcast(protocol.NewSettingsUpdate(r.settings))
	}

	if len(dropped) > 0 {
		return &Rejection{
			Kind:   KindValidation,
			Err:    fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(dropped, ", ")),
			Fields: dropped,
		}
	}
	return nil
}

func applySetting(s *protocol.Settings, key string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%s must not be null", key)
	}

	switch key {
	case fieldWelcomeMessage:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s must be a string", key)
		}
		s.WelcomeMessage = v

	case fieldAllowMediaUploads, fieldAllowReactions:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s must be a boolean", key)
		}
		if key == fieldAllowMediaUploads {
			s.AllowMediaUploads = v
		} else {
			s.AllowReactions = v
		}

	case fieldBannedWords:
		var words []string
		if err := json.Unmarshal(raw, &words); err != nil {
			return fmt.Errorf("%s must be a list of strings", key)
		}
		s.BannedWords = normalizeBannedWords(words)

	case fieldMaxMessageHistory:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
		s.MaxMessageHistory = int(v)

	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// normalizeBannedWords lower-cases and trims entries, dropping blanks and
// duplicates while keeping the first-seen order.
func normalizeBannedWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}
