package room

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// ratingScore is the sum of all rating values.
func ratingScore(ratings map[string]int) int {
	score := 0
	for _, v := range ratings {
		score += v
	}
	return score
}

// rankingScore is the sum of ratingScore over every message owned by userID.
func rankingScore(userID string, messages []*protocol.Message) int {
	score := 0
	for _, m := range messages {
		if m.UserID == userID {
			score += ratingScore(m.Ratings)
		}
	}
	return score
}

// toggleReaction adds userID under emoji, or removes it if already present.
// An emoji whose set becomes empty is deleted.
func toggleReaction(m *protocol.Message, userID, emoji string) (added bool) {
	users := m.Reactions[emoji]
	if i := slices.Index(users, userID); i >= 0 {
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(m.Reactions, emoji)
			if len(m.Reactions) == 0 {
				m.Reactions = nil
			}
		} else {
			m.Reactions[emoji] = users
		}
		return false
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = append(users, userID)
	return true
}

func (r *Room) react(s *session, id, emoji string) error {
	if !r.settings.AllowReactions {
		return policy(ErrReactionsDisabled)
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return validation(ErrInvalidReaction)
	}
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("Reaction to unknown message", zap.String("conn", s.id), zap.String("message", id))
		return nil
	}

	added := toggleReaction(m, s.id, emoji)
	r.log.Debug("Reaction toggled", zap.String("conn", s.id), zap.String("message", id), zap.Bool("added", added))
	r.broadcast(protocol.ReactionInfo{
		Info:            r.info(protocol.InfoReactionUpdate),
		TargetMessageID: id,
		Reactions:       reactionsOrEmpty(m.Reactions),
	})
	r.persistMessages()
	return nil
}

func reactionsOrEmpty(reactions map[string][]string) map[string][]string {
	if reactions == nil {
		return map[string][]string{}
	}
	return reactions
}

// rate records rater's +1 or -1 on a message. Unknown messages and
// self-ratings are ignored.
func (r *Room) rate(s *session, id string, value float64) error {
	if value != 1 && value != -1 {
		return validation(ErrInvalidRating)
	}
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("Rating of unknown message", zap.String("conn", s.id), zap.String("message", id))
		return nil
	}
	if m.UserID == s.id {
		r.log.Debug("Ignoring self-rating", zap.String("conn", s.id), zap.String("message", id))
		return nil
	}

	before := m.RatingScore
	if m.Ratings == nil {
		m.Ratings = make(map[string]int)
	}
	m.Ratings[s.id] = int(value)
	m.RatingScore = ratingScore(m.Ratings)

	r.broadcast(protocol.RatingInfo{
		Info:            r.info(protocol.InfoMessageRatingUpdate),
		TargetMessageID: id,
		Ratings:         m.Ratings,
		RatingScore:     m.RatingScore,
	})
	if m.RatingScore != before {
		r.refreshRanking(m.UserID)
	}
	r.persistMessages()
	return nil
}

// refreshRanking recomputes userID's ranking and broadcasts it when it
// differs from the last value broadcast for that user.
func (r *Room) refreshRanking(userID string) {
	score := rankingScore(userID, r.messages)
	if prev := r.rankings[userID]; prev == score {
		return
	}
	r.rankings[userID] = score
	r.broadcast(protocol.RankingInfo{
		Info:         r.info(protocol.InfoUserRankingUpdate),
		UserID:       userID,
		RankingScore: score,
	})
}

// markRead records a read receipt. Owners reading their own message and
// repeated reads are ignored.
func (r *Room) markRead(s *session, id string) {
	m, ok := r.find(id)
	if !ok {
		r.log.Debug("Read receipt for unknown message", zap.String("conn", s.id), zap.String("message", id))
		return
	}
	if m.UserID == s.id || slices.Contains(m.ReadBy, s.id) {
		return
	}
	m.ReadBy = append(m.ReadBy, s.id)
	r.broadcast(protocol.ReadInfo{
		Info:            r.info(protocol.InfoRead),
		TargetMessageID: id,
		UserID:          s.id,
	})
	r.persistMessages()
}
