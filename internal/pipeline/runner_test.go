package pipeline

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/state"
)

// recordingFilter notes every invocation and plays back scripted results
type recordingFilter struct {
	name    string
	calls   *[]string
	results []*Result
	errs    []error
	seen    int
}

func (f *recordingFilter) Process(ctx context.Context, pc *Context) (*Result, error) {
	*f.calls = append(*f.calls, f.name)
	i := f.seen
	f.seen++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) && f.results[i] != nil {
		return f.results[i], nil
	}
	return Completed(), nil
}

// harness wires a runner over the memory store with scripted filters keyed
// by type name
type harness struct {
	runner  *Runner
	store   *state.MemoryStore
	calls   []string
	filters map[string]*recordingFilter
	specs   []config.FilterSpec
}

func newHarness(t *testing.T, types ...string) *harness {
	t.Helper()
	h := &harness{
		store:   state.NewMemoryStore(time.Minute),
		filters: make(map[string]*recordingFilter),
	}
	registry := NewRegistry()
	for _, name := range types {
		f := &recordingFilter{name: name, calls: &h.calls}
		h.filters[name] = f
		h.specs = append(h.specs, config.FilterSpec{Type: name})
		captured := f
		registry.Register(name, func(options map[string]string) (Filter, error) {
			return captured, nil
		})
	}
	h.runner = &Runner{
		Store:    h.store,
		Registry: registry,
		Specs: func(sourceID string) ([]config.FilterSpec, error) {
			return h.specs, nil
		},
	}
	return h
}

func newFlowState() *state.AuthState {
	return &state.AuthState{
		SourceID:   "local",
		Attributes: map[string][]string{"uid": {"alice"}},
	}
}

func TestRunAllComplete(t *testing.T) {
	h := newHarness(t, "first", "second", "third")

	st := newFlowState()
	out, err := h.runner.Run(context.Background(), FromState(st), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !out.Completed {
		t.Error("Run() should complete with all-synchronous filters")
	}
	if len(h.calls) != 3 || h.calls[0] != "first" || h.calls[1] != "second" || h.calls[2] != "third" {
		t.Errorf("calls = %v, want [first second third]", h.calls)
	}
	if st.Cursor != 3 {
		t.Errorf("Cursor = %d, want 3", st.Cursor)
	}
}

func TestRunZeroFilters(t *testing.T) {
	h := newHarness(t)

	st := newFlowState()
	out, err := h.runner.Run(context.Background(), FromState(st), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Completed {
		t.Error("Run() with zero filters should complete immediately")
	}
}

func TestRunSuspendAndResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "first", "waiter", "third")
	h.filters["waiter"].results = []*Result{Suspend("https://mfa.example.com/check")}

	st := newFlowState()
	out, err := h.runner.Run(ctx, FromState(st), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.Completed {
		t.Fatal("Run() should suspend at the waiter filter")
	}
	if len(h.calls) != 2 {
		t.Fatalf("calls before resume = %v, want [first waiter]", h.calls)
	}

	u, err := url.Parse(out.RedirectURL)
	if err != nil {
		t.Fatalf("redirect unparseable: %v", err)
	}
	if u.Host != "mfa.example.com" {
		t.Errorf("redirect host = %s, want mfa.example.com", u.Host)
	}
	token := u.Query().Get("state")
	if token == "" || token != out.Token {
		t.Fatalf("redirect token = %q, outcome token = %q", token, out.Token)
	}

	// The saved state points at the suspending filter, not past it
	saved, err := h.store.Load(ctx, token, Stage)
	if err != nil {
		t.Fatalf("Load() suspended state error = %v", err)
	}
	if saved.Cursor != 1 {
		t.Errorf("saved Cursor = %d, want 1", saved.Cursor)
	}

	// Resumption re-enters the waiter, then finishes the chain
	out2, st2, err := h.runner.Resume(ctx, token)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !out2.Completed {
		t.Error("Resume() should complete")
	}
	if st2.Cursor != 3 {
		t.Errorf("resumed Cursor = %d, want 3", st2.Cursor)
	}
	want := []string{"first", "waiter", "waiter", "third"}
	if len(h.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", h.calls, want)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", h.calls, want)
		}
	}
}

func TestRunSuspendPersistsContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "waiter")
	h.filters["waiter"].results = []*Result{Suspend("https://consent.example.com")}

	st := newFlowState()
	pc := FromState(st)
	pc.Identity = "alice"
	pc.Attributes["mail"] = []string{"alice@example.com"}
	pc.Scratch["waiter"] = "sent"

	out, err := h.runner.Run(ctx, pc, st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	saved, err := h.store.Load(ctx, out.Token, Stage)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.ForcedIdentity != "alice" {
		t.Errorf("ForcedIdentity = %s, want alice", saved.ForcedIdentity)
	}
	if got := saved.Attributes["mail"]; len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("mail = %v, want [alice@example.com]", got)
	}
	if saved.Scratch["waiter"] != "sent" {
		t.Errorf("Scratch = %v, want waiter=sent", saved.Scratch)
	}
}

func TestRunFilterErrorAborts(t *testing.T) {
	h := newHarness(t, "first", "broken", "never")
	h.filters["broken"].errs = []error{errors.New("directory offline")}

	st := newFlowState()
	_, err := h.runner.Run(context.Background(), FromState(st), st)

	var fe *FilterError
	if !errors.As(err, &fe) {
		t.Fatalf("Run() error = %v, want FilterError", err)
	}
	if fe.Index != 1 || fe.Name != "broken" {
		t.Errorf("FilterError = %d/%s, want 1/broken", fe.Index, fe.Name)
	}
	if fe.ErrorCode() != "FilterFailed" {
		t.Errorf("ErrorCode() = %s, want FilterFailed", fe.ErrorCode())
	}

	for _, call := range h.calls {
		if call == "never" {
			t.Error("filter after the failing one must not run")
		}
	}
}

func TestRunUnknownFilterType(t *testing.T) {
	h := newHarness(t, "first")
	h.specs = append(h.specs, config.FilterSpec{Type: "ghost"})

	st := newFlowState()
	_, err := h.runner.Run(context.Background(), FromState(st), st)
	if !config.IsKind(err, config.KindMissingOption) {
		t.Errorf("Run() unknown type error = %v, want config error", err)
	}
}

func TestResumeWrongStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "first")

	token, err := h.store.Save(ctx, newFlowState(), state.Stage("core:login"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, _, err = h.runner.Resume(ctx, token)
	if !state.IsKind(err, state.KindStageMismatch) {
		t.Errorf("Resume() wrong-stage error = %v, want StageMismatch", err)
	}
}
