package state

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a state store failure
type ErrorKind string

const (
	// KindNotFound means the token is unknown to the store
	KindNotFound ErrorKind = "NotFound"
	// KindStageMismatch means the token exists but was saved under a
	// different stage than the caller expected
	KindStageMismatch ErrorKind = "StageMismatch"
	// KindExpired means the token exists but its TTL has passed
	KindExpired ErrorKind = "Expired"
)

// Error is a state store failure. Stage mismatches and unknown tokens are
// fatal to the current step: they indicate an expired or tampered flow and
// must not be retried.
type Error struct {
	Kind  ErrorKind
	Token string
}

func (e *Error) Error() string {
	return fmt.Sprintf("state %s: token %q", e.Kind, e.Token)
}

// IsKind reports whether err is a state error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
