package protocol

import "slices"

// DefaultMaxMessageHistory is the history size used when no configuration
// overrides it.
const DefaultMaxMessageHistory = 100

// Settings is the room-wide policy mutated through admin updates.
type Settings struct {
	WelcomeMessage    string   `json:"welcomeMessage"`
	AllowMediaUploads bool     `json:"allowMediaUploads"`
	AllowReactions    bool     `json:"allowReactions"`
	BannedWords       []string `json:"bannedWords"`
	MaxMessageHistory int      `json:"maxMessageHistory"`
}

// DefaultSettings returns the settings a room starts with before any
// snapshot or admin update is applied.
func DefaultSettings() Settings {
	return Settings{
		AllowMediaUploads: true,
		AllowReactions:    true,
		BannedWords:       []string{},
		MaxMessageHistory: DefaultMaxMessageHistory,
	}
}

// Clone returns a copy of s that shares no slices with it.
func (s Settings) Clone() Settings {
	s.BannedWords = slices.Clone(s.BannedWords)
	if s.BannedWords == nil {
		s.BannedWords = []string{}
	}
	return s
}

// SettingsUpdate carries the full current settings snapshot.
type SettingsUpdate struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

func (SettingsUpdate) outbound() {}

// NewSettingsUpdate wraps s in a settingsUpdate frame.
func NewSettingsUpdate(s Settings) SettingsUpdate {
	return SettingsUpdate{Type: TypeSettingsUpdate, Settings: s.Clone()}
}
