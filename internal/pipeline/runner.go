package pipeline

import (
	"context"
	"fmt"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/state"
)

// Stage tags state saved by a suspended pipeline; resumption loads under the
// same tag, so a token from any other point in a flow cannot re-enter here.
const Stage = state.Stage("filters:resume")

// Outcome is the result of driving the pipeline as far as it will go in one
// request: either the chain completed, or it suspended and the browser must
// be redirected.
type Outcome struct {
	Completed   bool
	RedirectURL string
	Token       string
	Context     *Context
}

// Runner executes a source's configured filters, in order, against a
// processing context. Suspension is not a blocking wait: the runner saves
// the flow state with the cursor pointing at the suspending filter and
// returns control to the HTTP layer entirely.
type Runner struct {
	Store    state.Store
	Registry *Registry

	// Specs resolves the ordered filter list for a source, so a resumed
	// flow rebuilds its pipeline from static configuration
	Specs func(sourceID string) ([]config.FilterSpec, error)
}

// Run drives the chain starting at the cursor persisted in st. With zero
// filters the pipeline completes immediately.
func (r *Runner) Run(ctx context.Context, pc *Context, st *state.AuthState) (*Outcome, error) {
	specs, err := r.Specs(st.SourceID)
	if err != nil {
		return nil, err
	}

	for i := st.Cursor; i < len(specs); i++ {
		filter, err := r.Registry.New(specs[i])
		if err != nil {
			// Construction failure is a deployment error; abort the chain
			return nil, err
		}

		res, err := filter.Process(ctx, pc)
		if err != nil {
			return nil, &FilterError{Index: i, Name: specs[i].Type, Err: err}
		}

		if res != nil && res.Suspended {
			// Cursor stays at i: resumption re-enters this filter, which
			// tracks its own sub-stage in the context scratch space.
			st.Cursor = i
			pc.apply(st)
			token, err := r.Store.Save(ctx, st, Stage)
			if err != nil {
				return nil, fmt.Errorf("failed to suspend pipeline: %w", err)
			}
			return &Outcome{
				RedirectURL: state.AppendToken(res.RedirectURL, token),
				Token:       token,
				Context:     pc,
			}, nil
		}
	}

	st.Cursor = len(specs)
	pc.apply(st)
	return &Outcome{Completed: true, Context: pc}, nil
}

// Resume loads a suspended flow by token and continues it at the persisted
// cursor. The returned state belongs to the owning source, which finalizes
// the flow once the outcome reports completion.
func (r *Runner) Resume(ctx context.Context, token string) (*Outcome, *state.AuthState, error) {
	st, err := r.Store.Load(ctx, token, Stage)
	if err != nil {
		return nil, nil, err
	}

	pc := FromState(st)
	out, err := r.Run(ctx, pc, st)
	if err != nil {
		return nil, st, err
	}
	return out, st, nil
}
