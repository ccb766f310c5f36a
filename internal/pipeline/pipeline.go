// Package pipeline drives the ordered chain of attribute-processing filters
// that runs between a successful authentication and session finalization. A
// filter either completes synchronously or suspends the whole chain: state
// is saved, the browser is redirected to an external interaction, and a
// later request resumes the chain at the same filter.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidcohan/identity-broker/internal/state"
)

// Context is the mutable attribute/identity context a filter operates on.
// Filters may add, remove, or rewrite attributes.
type Context struct {
	// SourceID names the authentication source that owns the flow
	SourceID string

	// Identity is the resolved principal
	Identity string

	// Attributes are ordered, multi-valued
	Attributes map[string][]string

	// Scratch lets a filter that suspends track its own sub-stage, since
	// resumption re-enters the same filter from the top
	Scratch map[string]string
}

// FromState rebuilds a processing context from persisted flow state
func FromState(st *state.AuthState) *Context {
	c := &Context{
		SourceID:   st.SourceID,
		Identity:   st.ForcedIdentity,
		Attributes: st.Attributes,
		Scratch:    st.Scratch,
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string][]string)
	}
	if c.Scratch == nil {
		c.Scratch = make(map[string]string)
	}
	return c
}

// apply writes the context back into the flow state before it is persisted
func (c *Context) apply(st *state.AuthState) {
	st.ForcedIdentity = c.Identity
	st.Attributes = c.Attributes
	st.Scratch = c.Scratch
}

// Result is a filter's outcome: synchronous completion, or suspension with
// the URL of the external interaction to send the browser to. The runner
// appends the state token to that URL.
type Result struct {
	Suspended   bool
	RedirectURL string
}

// Completed reports synchronous completion
func Completed() *Result {
	return &Result{}
}

// Suspend reports that the chain must pause for an external interaction
func Suspend(redirectURL string) *Result {
	return &Result{Suspended: true, RedirectURL: redirectURL}
}

// Filter is the single capability a processing plugin implements. An error
// aborts the remaining chain and propagates to the owning authentication
// source, never to later filters.
type Filter interface {
	Process(ctx context.Context, pc *Context) (*Result, error)
}

// FilterError wraps a failure from the filter at a given chain position
type FilterError struct {
	Index int
	Name  string
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the stable code recorded into a thrown flow exception
func (e *FilterError) ErrorCode() string {
	var c state.Coder
	if errors.As(e.Err, &c) {
		return c.ErrorCode()
	}
	return "FilterFailed"
}
