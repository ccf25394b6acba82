package chat

import "errors"

// ErrInvalidSession reports an activation path that does not encode a
// session identity.
var ErrInvalidSession = errors.New("chat: location does not identify a session")

// ValidationError reports a file rejected before any request is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// BackendError carries a backend rejection: a non-2xx response, or an
// error field inside an otherwise successful body. Message is surfaced
// to the visitor verbatim.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}
