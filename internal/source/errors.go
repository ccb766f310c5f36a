package source

import (
	"errors"
)

// LoginCode is a stable login failure code. The core only ever emits codes;
// the catalog below maps them to user-displayable messages, so raw error
// text never reaches the end user.
type LoginCode string

const (
	CodeInvalidCredentials LoginCode = "InvalidCredentials"
	CodeUserUnknown        LoginCode = "UserUnknown"
	CodePasswordExpired    LoginCode = "PasswordExpired"
	CodeAccountLocked      LoginCode = "AccountLocked"
	CodeTooManyAttempts    LoginCode = "TooManyAttempts"
)

// catalog maps every login code to its display message
var catalog = map[LoginCode]string{
	CodeInvalidCredentials: "Incorrect username or password.",
	CodeUserUnknown:        "Incorrect username or password.",
	CodePasswordExpired:    "Your password has expired.",
	CodeAccountLocked:      "This account is locked.",
	CodeTooManyAttempts:    "Too many failed attempts. Try again later.",
}

// Message returns the displayable message for a login code
func Message(code LoginCode) string {
	if msg, ok := catalog[code]; ok {
		return msg
	}
	return "Login failed."
}

// LoginError is a recoverable authentication failure. Unlike state and
// protocol errors it does not abort the flow: the owning source re-renders
// the login prompt with the code and display parameters attached.
type LoginError struct {
	Code LoginCode
	// Params are display parameters, e.g. the previously entered username
	// so the re-rendered form can retain it. Never secrets.
	Params map[string]string
}

func (e *LoginError) Error() string {
	return "login failed: " + string(e.Code)
}

// ErrorCode returns the stable code for flow exception recording
func (e *LoginError) ErrorCode() string {
	return string(e.Code)
}

// AsLoginError returns the LoginError wrapped in err, if any
func AsLoginError(err error) (*LoginError, bool) {
	var le *LoginError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
