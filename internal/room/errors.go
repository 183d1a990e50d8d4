package room

import (
	"errors"
	"fmt"
)

// Errors surfaced to clients as unicast systemInfo/error frames.
var (
	ErrNotJoined         = errors.New("must join first")
	ErrNameRequired      = errors.New("name is required")
	ErrMediaDisabled     = errors.New("media uploads are disabled")
	ErrBannedWord        = errors.New("message contains a banned word")
	ErrReactionsDisabled = errors.New("reactions are disabled")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("message not found")
	ErrInvalidRating     = errors.New("rating must be 1 or -1")
	ErrInvalidReaction   = errors.New("reaction is required")
	ErrExpiryNotInFuture = errors.New("expiresAt must be in the future")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidSettings   = errors.New("invalid settings fields dropped")
	ErrInternal          = errors.New("internal error")
)

// Kind is the error category reported as the code of an error frame.
type Kind string

// Error categories.
const (
	KindProtocol   Kind = "protocol"
	KindPolicy     Kind = "policy"
	KindNotFound   Kind = "notFound"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// Rejection is a handler failure that is reported to the originating
// connection only.
type Rejection struct {
	Kind   Kind
	Err    error
	Fields []string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Kind, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(kind Kind, err error) *Rejection {
	return &Rejection{Kind: kind, Err: err}
}

func policy(err error) *Rejection     { return reject(KindPolicy, err) }
func validation(err error) *Rejection { return reject(KindValidation, err) }

// asRejection classifies err, defaulting to an internal error.
func asRejection(err error) *Rejection {
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	return reject(KindInternal, err)
}
