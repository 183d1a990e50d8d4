package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound frame discriminants.
const (
	TypeClientAction = "clientAction"
	TypeGetSettings  = "getSettings"
	TypeAdminUpdate  = "adminUpdate"
)

// Client action names carried in the "action" field of a clientAction frame.
const (
	ActionJoin          = "join"
	ActionTyping        = "typing"
	ActionRead          = "read"
	ActionReact         = "react"
	ActionRateMessage   = "rateMessage"
	ActionDeleteMessage = "deleteMessage"
	ActionViewMessage   = "viewMessage"
	ActionConfirmView   = "confirmView"
	ActionCreateThread  = "createThread"
	ActionReplyInThread = "replyInThread"
)

// Decode errors.
var (
	ErrMalformed     = errors.New("malformed frame")
	ErrUnknownType   = errors.New("unknown message type")
	ErrUnknownAction = errors.New("unknown client action")
)

// Inbound is one decoded client frame. The set of implementations is closed:
// only the types in this file satisfy it.
type Inbound interface {
	inbound()
}

// SubmitMessage is a text or media message submission.
type SubmitMessage struct {
	Message Message
}

// Join names the connection and enters the joined state.
type Join struct {
	Name string
}

// Typing reports a change in the user's typing indicator.
type Typing struct {
	IsTyping bool
}

// Read marks a message as read by the sender.
type Read struct {
	TargetMessageID string
}

// React toggles the sender's reaction on a message.
type React struct {
	TargetMessageID string
	Reaction        string
}

// Rate records the sender's rating of a message. Rating is kept as sent so
// out-of-range values can be reported rather than rejected as malformed.
type Rate struct {
	TargetMessageID string
	Rating          float64
}

// DeleteMessage is the admin-only removal of a message.
type DeleteMessage struct {
	TargetMessageID string
	Password        string
}

// ViewMessage requests a view of a message. Confirmed is set for confirmView
// frames, which answer an earlier confirmation prompt.
type ViewMessage struct {
	TargetMessageID string
	Confirmed       bool
}

// CreateThread promotes a message to a thread starter.
type CreateThread struct {
	TargetMessageID string
}

// ReplyInThread attaches an existing message to a thread.
type ReplyInThread struct {
	TargetMessageID string
	ThreadID        string
}

// GetSettings asks for the current settings snapshot.
type GetSettings struct{}

// AdminUpdate is a privileged partial settings update. Settings keeps each
// field undecoded so invalid fields can be dropped one by one.
type AdminUpdate struct {
	Password string
	Settings map[string]json.RawMessage
}

func (SubmitMessage) inbound() {}
func (Join) inbound()          {}
func (Typing) inbound()        {}
func (Read) inbound()          {}
func (React) inbound()         {}
func (Rate) inbound()          {}
func (DeleteMessage) inbound() {}
func (ViewMessage) inbound()   {}
func (CreateThread) inbound()  {}
func (ReplyInThread) inbound() {}
func (GetSettings) inbound()   {}
func (AdminUpdate) inbound()   {}

type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

type clientActionFrame struct {
	Action          string   `json:"action"`
	Name            string   `json:"name"`
	Sender          string   `json:"sender"`
	IsTyping        bool     `json:"isTyping"`
	TargetMessageID string   `json:"targetMessageId"`
	Reaction        string   `json:"reaction"`
	Rating          *float64 `json:"rating"`
	Password        string   `json:"password"`
	ThreadID        string   `json:"threadId"`
}

type adminUpdateFrame struct {
	Password string                     `json:"password"`
	Settings map[string]json.RawMessage `json:"settings"`
}

// Decode parses one client frame into its Inbound variant. Errors wrap
// ErrMalformed, ErrUnknownType or ErrUnknownAction.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeText, TypeMedia:
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return SubmitMessage{Message: m}, nil

	case TypeClientAction:
		return decodeClientAction(raw)

	case TypeGetSettings:
		return GetSettings{}, nil

	case TypeAdminUpdate:
		var f adminUpdateFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if f.Settings == nil {
			return nil, fmt.Errorf("%w: settings object is required", ErrMalformed)
		}
		return AdminUpdate{Password: f.Password, Settings: f.Settings}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeClientAction(raw []byte) (Inbound, error) {
	var f clientActionFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Action {
	case ActionJoin:
		name := f.Name
		if strings.TrimSpace(name) == "" {
			name = f.Sender
		}
		return Join{Name: name}, nil
	case ActionTyping:
		return Typing{IsTyping: f.IsTyping}, nil
	case ActionRead:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		return Read{TargetMessageID: f.TargetMessageID}, nil
	case ActionReact:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		return React{TargetMessageID: f.TargetMessageID, Reaction: f.Reaction}, nil
	case ActionRateMessage:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		if f.Rating == nil {
			return nil, fmt.Errorf("%w: rating is required", ErrMalformed)
		}
		return Rate{TargetMessageID: f.TargetMessageID, Rating: *f.Rating}, nil
	case ActionDeleteMessage:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		return DeleteMessage{TargetMessageID: f.TargetMessageID, Password: f.Password}, nil
	case ActionViewMessage, ActionConfirmView:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		return ViewMessage{TargetMessageID: f.TargetMessageID, Confirmed: f.Action == ActionConfirmView}, nil
	case ActionCreateThread:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		return CreateThread{TargetMessageID: f.TargetMessageID}, nil
	case ActionReplyInThread:
		if err := requireTarget(f); err != nil {
			return nil, err
		}
		if strings.TrimSpace(f.ThreadID) == "" {
			return nil, fmt.Errorf("%w: threadId is required", ErrMalformed)
		}
		return ReplyInThread{TargetMessageID: f.TargetMessageID, ThreadID: f.ThreadID}, nil
	case "":
		return nil, fmt.Errorf("%w: missing action", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, f.Action)
	}
}

func requireTarget(f clientActionFrame) error {
	if strings.TrimSpace(f.TargetMessageID) == "" {
		return fmt.Errorf("%w: targetMessageId is required for %s", ErrMalformed, f.Action)
	}
	return nil
}
