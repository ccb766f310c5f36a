package source

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/state"
)

func testDeps(t *testing.T, cfg *config.Config) Deps {
	t.Helper()
	store := state.NewMemoryStore(time.Minute)
	registry := pipeline.NewRegistry()
	pipeline.RegisterBuiltins(registry)

	return Deps{
		Config: cfg,
		Store:  store,
		Runner: &pipeline.Runner{
			Store:    store,
			Registry: registry,
			Specs: func(sourceID string) ([]config.FilterSpec, error) {
				src, err := cfg.Source(sourceID)
				if err != nil {
					return nil, err
				}
				return src.Filters, nil
			},
		},
		BaseURL: "https://sso.example.com",
	}
}

func passwordConfig() *config.Config {
	return &config.Config{
		Sources: []config.AuthSourceConfig{{
			Name:    "local",
			Type:    "password",
			Enabled: true,
			Users: []config.User{
				{Username: "alice", Password: "wonderland", Email: "alice@example.com", Roles: []string{"admin", "staff"}},
				{Username: "bob", Password: "builder"},
			},
			Filters: []config.FilterSpec{
				{Type: "attribute-add", Config: map[string]string{"name": "org", "values": "example"}},
			},
		}},
	}
}

func newPasswordSource(t *testing.T) (*PasswordSource, Deps) {
	t.Helper()
	cfg := passwordConfig()
	deps := testDeps(t, cfg)
	src, err := NewPasswordSource(cfg.Sources[0], deps)
	if err != nil {
		t.Fatalf("NewPasswordSource() error = %v", err)
	}
	return src, deps
}

func beginFlow(t *testing.T, src Source) string {
	t.Helper()
	begin, err := src.BeginAuth(context.Background(), "https://app.example.com/after")
	if err != nil {
		t.Fatalf("BeginAuth() error = %v", err)
	}
	u, err := url.Parse(begin.RedirectURL)
	if err != nil {
		t.Fatalf("redirect unparseable: %v", err)
	}
	token := u.Query().Get("state")
	if token == "" {
		t.Fatal("begin redirect carries no state token")
	}
	return token
}

func TestPasswordLoginSuccess(t *testing.T) {
	ctx := context.Background()
	src, _ := newPasswordSource(t)
	token := beginFlow(t, src)

	out, st, err := src.HandleLogin(ctx, token, "alice", "wonderland")
	if err != nil {
		t.Fatalf("HandleLogin() error = %v", err)
	}
	if !out.Completed {
		t.Fatal("flow should complete with synchronous filters")
	}
	if st.ReturnURL != "https://app.example.com/after" {
		t.Errorf("ReturnURL = %s", st.ReturnURL)
	}

	identity, err := src.Finalize(ctx, out.Context)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if identity.Username != "alice" || identity.Source != "local" {
		t.Errorf("identity = %s/%s, want alice/local", identity.Username, identity.Source)
	}
	if got := identity.Attributes["email"]; len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("email = %v", got)
	}
	if got := identity.Attributes["roles"]; len(got) != 2 || got[0] != "admin" {
		t.Errorf("roles = %v, want [admin staff]", got)
	}
	// The configured pipeline ran
	if got := identity.Attributes["org"]; len(got) != 1 || got[0] != "example" {
		t.Errorf("org = %v, want pipeline-stamped [example]", got)
	}
}

func TestPasswordLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	src, _ := newPasswordSource(t)
	token := beginFlow(t, src)

	_, st, err := src.HandleLogin(ctx, token, "alice", "queenofhearts")
	loginErr, ok := AsLoginError(err)
	if !ok {
		t.Fatalf("HandleLogin() error = %v, want LoginError", err)
	}
	if loginErr.Code != CodeInvalidCredentials {
		t.Errorf("Code = %s, want InvalidCredentials", loginErr.Code)
	}
	// The re-rendered form keeps the entered username
	if loginErr.Params["username"] != "alice" {
		t.Errorf("username param = %s, want alice", loginErr.Params["username"])
	}
	if st == nil {
		t.Error("recoverable failure must hand the state back for retry")
	}
	if strings.Contains(loginErr.Error(), "queenofhearts") {
		t.Error("error text must not leak the password")
	}

	// The same token still works for the retry
	if _, _, err := src.HandleLogin(ctx, token, "alice", "wonderland"); err != nil {
		t.Errorf("retry HandleLogin() error = %v", err)
	}
}

func TestPasswordLoginUnknownUser(t *testing.T) {
	ctx := context.Background()
	src, _ := newPasswordSource(t)
	token := beginFlow(t, src)

	_, _, err := src.HandleLogin(ctx, token, "mallory", "whatever")
	loginErr, ok := AsLoginError(err)
	if !ok {
		t.Fatalf("HandleLogin() error = %v, want LoginError", err)
	}
	// Unknown user and wrong password are indistinguishable
	if loginErr.Code != CodeInvalidCredentials {
		t.Errorf("Code = %s, want InvalidCredentials", loginErr.Code)
	}
}

func TestPasswordLoginStageMismatch(t *testing.T) {
	ctx := context.Background()
	src, deps := newPasswordSource(t)

	// A token saved for the SAML response endpoint must not open the login
	// stage
	st := newFlowState("local", "", deps.BaseURL)
	token, err := deps.Store.Save(ctx, st, StageSPSent)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, _, err = src.HandleLogin(ctx, token, "alice", "wonderland")
	if !state.IsKind(err, state.KindStageMismatch) {
		t.Errorf("HandleLogin() error = %v, want StageMismatch", err)
	}
}

func TestPasswordLoginUnknownToken(t *testing.T) {
	src, _ := newPasswordSource(t)

	_, _, err := src.HandleLogin(context.Background(), "11111111-2222-3333-4444-555555555555", "alice", "wonderland")
	if !state.IsKind(err, state.KindNotFound) {
		t.Errorf("HandleLogin() error = %v, want NotFound", err)
	}
}

func TestNewPasswordSourceNoUsers(t *testing.T) {
	cfg := passwordConfig()
	cfg.Sources[0].Users = nil
	if _, err := NewPasswordSource(cfg.Sources[0], testDeps(t, cfg)); err == nil {
		t.Error("NewPasswordSource() without users should fail")
	}
}

func TestBeginAuthRegistersContinuations(t *testing.T) {
	ctx := context.Background()
	src, deps := newPasswordSource(t)
	token := beginFlow(t, src)

	st, err := deps.Store.Load(ctx, token, StageLogin)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.ExceptionURL != "https://sso.example.com/auth/error" {
		t.Errorf("ExceptionURL = %s", st.ExceptionURL)
	}
	if st.SourceID != "local" {
		t.Errorf("SourceID = %s, want local", st.SourceID)
	}
}

func TestLoginMessageCatalog(t *testing.T) {
	codes := []LoginCode{
		CodeInvalidCredentials,
		CodeUserUnknown,
		CodePasswordExpired,
		CodeAccountLocked,
		CodeTooManyAttempts,
	}
	for _, code := range codes {
		if Message(code) == "Login failed." {
			t.Errorf("Message(%s) fell through to the generic fallback", code)
		}
	}
	if Message(LoginCode("Exotic")) != "Login failed." {
		t.Error("unknown code should use the generic fallback")
	}

	// Unknown user must not be distinguishable through the message either
	if Message(CodeUserUnknown) != Message(CodeInvalidCredentials) {
		t.Error("UserUnknown and InvalidCredentials must share a message")
	}
}
