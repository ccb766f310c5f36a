package state

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Coder is implemented by errors that carry a stable code safe to show to
// the exception continuation. Errors without one are recorded under a
// generic code; their text never reaches the end user.
type Coder interface {
	ErrorCode() string
}

// ThrowException records cause into st, re-saves the state under the
// exception stage, and returns the URL of the exception continuation that
// was registered when the flow began. A sub-flow several redirects away
// signals its failure to the step that started it this way instead of
// unwinding a call stack that no longer exists.
func ThrowException(ctx context.Context, s Store, st *AuthState, cause error) (string, error) {
	if st.ExceptionURL == "" {
		return "", fmt.Errorf("no exception continuation registered: %w", cause)
	}

	code := "InternalError"
	var c Coder
	if errors.As(cause, &c) {
		code = c.ErrorCode()
	}
	st.Exception = &FlowException{
		Code:    code,
		Message: cause.Error(),
	}

	token, err := s.Save(ctx, st, StageException)
	if err != nil {
		return "", fmt.Errorf("failed to save exception state: %w", err)
	}
	return AppendToken(st.ExceptionURL, token), nil
}

// AppendToken adds the state token to a continuation URL as the single
// request parameter every resumption point reads it from.
func AppendToken(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Continuation URLs come from configuration, not user input; an
		// unparseable one still gets the token appended textually.
		return rawURL + "?state=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("state", token)
	u.RawQuery = q.Encode()
	return u.String()
}
