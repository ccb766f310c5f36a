package config

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a configuration error. The set is closed so callers
// can switch exhaustively instead of matching strings.
type ErrorKind string

const (
	// KindMissingAuthsource means a referenced authentication source is not configured
	KindMissingAuthsource ErrorKind = "MissingAuthsource"
	// KindWrongAuthsourceType means a referenced source exists but has an incompatible type
	KindWrongAuthsourceType ErrorKind = "WrongAuthsourceType"
	// KindMissingOption means a required configuration option is absent
	KindMissingOption ErrorKind = "MissingOption"
	// KindUnbindable means no configured directory server accepted a bind
	KindUnbindable ErrorKind = "Unbindable"
)

// Error is a configuration error. Configuration errors are fatal: a
// misconfigured deployment must not silently degrade.
type Error struct {
	Kind    ErrorKind
	Subject string // source name or option key
	Detail  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingAuthsource:
		return fmt.Sprintf("authentication source %q is not configured", e.Subject)
	case KindWrongAuthsourceType:
		return fmt.Sprintf("authentication source %q has incompatible type %q", e.Subject, e.Detail)
	case KindMissingOption:
		return fmt.Sprintf("required option %q is not set", e.Subject)
	case KindUnbindable:
		return fmt.Sprintf("unable to bind to any configured directory server: %s", e.Detail)
	}
	return fmt.Sprintf("configuration error %s: %s", e.Kind, e.Subject)
}

// IsKind reports whether err is a configuration error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}
