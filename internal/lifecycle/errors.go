package lifecycle

import "errors"

// Kind classifies a rejected call so transports can map it to a status.
type Kind int

const (
	KindInternal Kind = iota
	// KindPhase: the caller must wait or has mis-sequenced calls.
	KindPhase
	// KindInput: caller error, not retryable without correction.
	KindInput
	// KindAuth: the caller is not allowed to make this call.
	KindAuth
	// KindIdempotency: double-submission guard.
	KindIdempotency
	// KindNotFound: the addressed pool does not exist.
	KindNotFound
)

// Error is a rejection with a stable message and a kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NewError creates a classified sentinel error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Classify returns the kind of the first classified error in err's chain.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
