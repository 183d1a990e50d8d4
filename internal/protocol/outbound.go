package protocol

import "encoding/json"

// Outbound frame discriminants.
const (
	TypeSystemInfo     = "systemInfo"
	TypeSettingsUpdate = "settingsUpdate"
)

// Action is the sub-action of a systemInfo frame.
type Action string

// systemInfo actions.
const (
	InfoIdentity            Action = "identity"
	InfoWelcome             Action = "welcome"
	InfoUserList            Action = "userList"
	InfoRead                Action = "read"
	InfoReactionUpdate      Action = "reactionUpdate"
	InfoMessageRatingUpdate Action = "messageRatingUpdate"
	InfoUserRankingUpdate   Action = "userRankingUpdate"
	InfoMessageDeleted      Action = "messageDeleted"
	InfoMessageExpired      Action = "messageExpired"
	InfoMessageViewed       Action = "messageViewed"
	InfoConfirmView         Action = "confirmView"
	InfoAlreadyViewed       Action = "messageAlreadyViewed"
	InfoThreadUpdate        Action = "threadUpdate"
	InfoError               Action = "error"
)

// Expiry reasons carried by messageExpired.
const (
	ExpiredByDeadline = "expired"
	ExpiredByMaxViews = "maxViews"
)

// Outbound is a frame the room sends to clients: a Message, a SettingsUpdate,
// or one of the systemInfo frames below.
type Outbound interface {
	outbound()
}

// Encode serializes o into one text frame.
func Encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

// User is one entry of the derived user list.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsTyping     bool   `json:"isTyping"`
	RankingScore int    `json:"rankingScore"`
}

// Info is the header shared by every systemInfo frame.
type Info struct {
	Type      string `json:"type"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

func (Info) outbound() {}

// NewInfo returns a systemInfo header for action stamped with ts.
func NewInfo(action Action, ts int64) Info {
	return Info{Type: TypeSystemInfo, Action: action, Timestamp: ts}
}

// IdentityInfo tells a connection which user id the room assigned to it.
type IdentityInfo struct {
	Info
	UserID string `json:"userId"`
}

// WelcomeInfo delivers the room's welcome message to a joining user.
type WelcomeInfo struct {
	Info
	Message string `json:"message"`
}

// UserListInfo is the full presence snapshot.
type UserListInfo struct {
	Info
	Users []User `json:"users"`
}

// ReadInfo announces a read receipt.
type ReadInfo struct {
	Info
	TargetMessageID string `json:"targetMessageId"`
	UserID          string `json:"userId"`
}

// ReactionInfo carries the reaction sets of a message after a toggle.
type ReactionInfo struct {
	Info
	TargetMessageID string              `json:"targetMessageId"`
	Reactions       map[string][]string `json:"reactions"`
}

// RatingInfo carries the ratings of a message and its derived score.
type RatingInfo struct {
	Info
	TargetMessageID string         `json:"targetMessageId"`
	Ratings         map[string]int `json:"ratings"`
	RatingScore     int            `json:"ratingScore"`
}

// RankingInfo carries a user's recomputed ranking score.
type RankingInfo struct {
	Info
	UserID       string `json:"userId"`
	RankingScore int    `json:"rankingScore"`
}

// TargetInfo is a systemInfo frame that only names a message: it is used for
// messageDeleted, confirmView and messageAlreadyViewed.
type TargetInfo struct {
	Info
	TargetMessageID string `json:"targetMessageId"`
}

// ExpiredInfo announces that a message became hidden.
type ExpiredInfo struct {
	Info
	TargetMessageID string `json:"targetMessageId"`
	Reason          string `json:"reason"`
}

// ViewedInfo announces a counted view.
type ViewedInfo struct {
	Info
	TargetMessageID string   `json:"targetMessageId"`
	UserID          string   `json:"userId"`
	ViewCount       int      `json:"viewCount"`
	MaxViews        int      `json:"maxViews,omitempty"`
	ViewedBy        []string `json:"viewedBy,omitempty"`
}

// ThreadInfo carries a thread starter's reply count.
type ThreadInfo struct {
	Info
	TargetMessageID    string `json:"targetMessageId"`
	ThreadID           string `json:"threadId"`
	ThreadMessageCount int    `json:"threadMessageCount"`
}

// ErrorInfo is a unicast error reply. Code names the error category and
// Fields lists dropped settings fields when relevant.
type ErrorInfo struct {
	Info
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}
