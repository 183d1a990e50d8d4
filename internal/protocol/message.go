// Package protocol defines the JSON wire format exchanged between chat room
// clients and the room coordinator: the stored message model, admin settings,
// the closed set of inbound frames and the outbound frames.
package protocol

import "slices"

// Message kinds carried in the "type" field of a chat message.
const (
	TypeText  = "text"
	TypeMedia = "media"
)

// MediaType identifies the payload of a media message.
type MediaType string

// Supported media types.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaVoice MediaType = "voice"
)

// Valid reports whether t is one of the supported media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaVideo, MediaAudio, MediaVoice:
		return true
	}
	return false
}

// HasDuration reports whether messages of this media type carry a duration.
func (t MediaType) HasDuration() bool {
	return t == MediaAudio || t == MediaVoice
}

// Message is a chat message as stored in room history and relayed to clients.
// Type selects the variant: text messages use Text and FormattedText, media
// messages use MediaType, URL, Caption and Duration.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`

	Text          string `json:"text,omitempty"`
	FormattedText bool   `json:"formattedText,omitempty"`

	MediaType MediaType `json:"mediaType,omitempty"`
	URL       string    `json:"url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Duration  float64   `json:"duration,omitempty"`

	ReplyTo     string              `json:"replyTo,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	ReadBy      []string            `json:"readBy,omitempty"`
	Ratings     map[string]int      `json:"ratings,omitempty"`
	RatingScore int                 `json:"ratingScore"`

	ExpiresAt           int64    `json:"expiresAt,omitempty"`
	MaxViews            int      `json:"maxViews,omitempty"`
	ViewCount           int      `json:"viewCount,omitempty"`
	RequireConfirmation bool     `json:"requireConfirmation,omitempty"`
	OneTimeView         bool     `json:"oneTimeView,omitempty"`
	ViewedBy            []string `json:"viewedBy,omitempty"`
	IsHidden            bool     `json:"isHidden,omitempty"`

	ThreadID           string `json:"threadId,omitempty"`
	IsThreadStarter    bool   `json:"isThreadStarter,omitempty"`
	ThreadMessageCount int    `json:"threadMessageCount,omitempty"`
}

func (Message) outbound() {}

// IsMedia reports whether m is the media variant.
func (m *Message) IsMedia() bool {
	return m.Type == TypeMedia
}

// Content returns the text subject to moderation: the body of a text message
// or the caption of a media message.
func (m *Message) Content() string {
	if m.IsMedia() {
		return m.Caption
	}
	return m.Text
}

// Ephemeral reports whether m is a self-destructing message.
func (m *Message) Ephemeral() bool {
	return m.ExpiresAt > 0 || m.MaxViews > 0 || m.OneTimeView
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	if m.Reactions != nil {
		c.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			c.Reactions[emoji] = slices.Clone(users)
		}
	}
	if m.Ratings != nil {
		c.Ratings = make(map[string]int, len(m.Ratings))
		for rater, v := range m.Ratings {
			c.Ratings[rater] = v
		}
	}
	c.ReadBy = slices.Clone(m.ReadBy)
	c.ViewedBy = slices.Clone(m.ViewedBy)
	return &c
}
