package state

import (
	"context"
)

// Stage tags a saved state with the resumption point it belongs to. A state
// saved under one stage must never be loaded under another; a mismatch means
// a token was replayed into the wrong continuation.
type Stage string

// StageException is the stage under which a failed flow's state is re-saved
// so the exception continuation can pick it up.
const StageException Stage = "core:exception"

// AuthState is the opaque blob persisted across the HTTP round-trips of one
// authentication flow.
type AuthState struct {
	// SourceID names the authentication source that owns the flow
	SourceID string `json:"source_id"`

	// Cursor is the index of the next processing filter to run. A filter
	// that suspends saves its own index so resumption re-enters it.
	Cursor int `json:"cursor"`

	// Attributes accumulated so far; a name may carry several ordered values
	Attributes map[string][]string `json:"attributes,omitempty"`

	// ForcedIdentity overrides the identity derived from attributes
	ForcedIdentity string `json:"forced_identity,omitempty"`

	// RememberMe carries the user's remember-me choice through the flow
	RememberMe bool `json:"remember_me,omitempty"`

	// ReturnURL is where the relying application wants the user back
	ReturnURL string `json:"return_url,omitempty"`

	// ExceptionURL is the continuation that learns about sub-flow failures
	ExceptionURL string `json:"exception_url,omitempty"`

	// Exception holds the replayed error once ThrowException has run
	Exception *FlowException `json:"exception,omitempty"`

	// Logout holds the data needed to replay a logout to the identity provider
	Logout *LogoutReplay `json:"logout,omitempty"`

	// Scratch lets a suspended filter track its own sub-stage across resumption
	Scratch map[string]string `json:"scratch,omitempty"`
}

// FlowException is a failure recorded into a suspended flow's state
type FlowException struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LogoutReplay identifies the upstream session to terminate on logout
type LogoutReplay struct {
	Issuer       string `json:"issuer"`
	NameID       string `json:"name_id"`
	SessionIndex string `json:"session_index"`
}

// Store persists authentication state between the independent HTTP requests
// of one flow. Tokens are lookup keys only; they carry no data. A token may
// be loaded more than once (browser back button), so loads are idempotent
// reads. Last write wins on save.
type Store interface {
	// Save serializes state under a freshly generated token tagged with stage
	Save(ctx context.Context, st *AuthState, stage Stage) (string, error)

	// Load retrieves the state saved under token. It fails with a
	// StageMismatch error if the stored tag differs from expected, and with
	// NotFound or Expired if the token is unknown or past its TTL.
	Load(ctx context.Context, token string, expected Stage) (*AuthState, error)

	// Delete destroys the state once the owning flow completes or aborts
	Delete(ctx context.Context, token string) error
}

// Clone returns a deep copy of st, suitable for re-saving under a fresh token
func Clone(st *AuthState) *AuthState {
	if st == nil {
		return nil
	}
	out := *st
	if st.Attributes != nil {
		out.Attributes = make(map[string][]string, len(st.Attributes))
		for k, v := range st.Attributes {
			out.Attributes[k] = append([]string(nil), v...)
		}
	}
	if st.Scratch != nil {
		out.Scratch = make(map[string]string, len(st.Scratch))
		for k, v := range st.Scratch {
			out.Scratch[k] = v
		}
	}
	if st.Exception != nil {
		e := *st.Exception
		out.Exception = &e
	}
	if st.Logout != nil {
		l := *st.Logout
		out.Logout = &l
	}
	return &out
}
