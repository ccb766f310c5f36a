package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/davidcohan/identity-broker/internal/audit"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/source"
	"github.com/davidcohan/identity-broker/internal/state"
)

// LoginRequest is the credential submission for password and ldap sources
type LoginRequest struct {
	State    string `json:"state"`
	Source   string `json:"source"`
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// LoginResponse carries the minted session token back to the client
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Source    string    `json:"source"`
	ExpiresAt time.Time `json:"expires_at"`
}

// loginHandler is implemented by sources that consume a credential form
type loginHandler interface {
	HandleLogin(ctx context.Context, token, username, password string) (*pipeline.Outcome, *state.AuthState, error)
}

// handleBeginAuth starts a flow against the named source
func (s *Server) handleBeginAuth(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		respondError(w, http.StatusBadRequest, "source parameter required")
		return
	}

	src, err := s.sources.Lookup(sourceID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	begin, err := src.BeginAuth(r.Context(), r.URL.Query().Get("return"))
	if err != nil {
		log.Printf("begin auth failed for source %s: %v", sourceID, err)
		respondError(w, http.StatusBadGateway, "failed to start authentication")
		return
	}

	http.Redirect(w, r, begin.RedirectURL, http.StatusFound)
}

// handleLoginForm exposes what a credential prompt needs: the flow token and
// the username remembered on a previous visit. Rendering is left to clients.
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	rc := NewRequestContext(w, r)
	respondJSON(w, http.StatusOK, map[string]string{
		"state":    r.URL.Query().Get("state"),
		"source":   r.URL.Query().Get("source"),
		"username": rc.Cookie(rememberCookie),
	})
}

// handleLogin consumes a credential submission and advances the flow
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.State == "" || req.Source == "" {
		respondError(w, http.StatusBadRequest, "state and source are required")
		return
	}

	src, err := s.sources.Lookup(req.Source)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	handler, ok := src.(loginHandler)
	if !ok {
		respondError(w, http.StatusBadRequest, "source does not accept credentials")
		return
	}

	out, st, err := handler.HandleLogin(r.Context(), req.State, req.Username, req.Password)
	if err != nil {
		if loginErr, ok := source.AsLoginError(err); ok {
			s.auditEvent("login_failed", req.Username, req.Source, string(loginErr.Code), nil)
			respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":   string(loginErr.Code),
				"message": source.Message(loginErr.Code),
				"params":  loginErr.Params,
			})
			return
		}
		s.flowFailure(w, r, st, err)
		return
	}

	if req.Remember {
		NewRequestContext(w, r).SetCookie(rememberCookie, req.Username, 30*24*time.Hour)
	}
	s.advance(w, r, src, out, st, req.State)
}

// handleSAMLResponse is the assertion consumer endpoint
func (s *Server) handleSAMLResponse(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["source"]

	src, err := s.sources.LookupTyped(sourceID, "saml")
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	samlSrc := src.(*source.SAMLSource)

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	token := r.PostFormValue("RelayState")
	encoded := r.PostFormValue("SAMLResponse")
	if token == "" || encoded == "" {
		respondError(w, http.StatusBadRequest, "SAMLResponse and RelayState are required")
		return
	}

	raw, err := decodeSAMLResponse(encoded)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed SAMLResponse encoding")
		return
	}

	out, st, err := samlSrc.HandleResponse(r.Context(), token, raw)
	if err != nil {
		s.flowFailure(w, r, st, err)
		return
	}
	s.advance(w, r, src, out, st, token)
}

// handleOIDCCallback finishes the authorization-code exchange
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["source"]

	src, err := s.sources.LookupTyped(sourceID, "oidc")
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	oidcSrc := src.(*source.OIDCSource)

	token := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if token == "" || code == "" {
		respondError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	out, st, err := oidcSrc.HandleCallback(r.Context(), token, code)
	if err != nil {
		s.flowFailure(w, r, st, err)
		return
	}
	s.advance(w, r, src, out, st, token)
}

// handleResume re-enters a suspended filter pipeline
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("state")
	if token == "" {
		respondError(w, http.StatusBadRequest, "state parameter required")
		return
	}

	out, st, err := s.runner.Resume(r.Context(), token)
	if err != nil {
		s.flowFailure(w, r, st, err)
		return
	}
	s.auditEvent("flow_resumed", "", st.SourceID, "", nil)

	src, err := s.sources.Lookup(st.SourceID)
	if err != nil {
		s.flowFailure(w, r, st, err)
		return
	}
	s.advance(w, r, src, out, st, token)
}

// handleFlowError surfaces a recorded flow exception to the client
func (s *Server) handleFlowError(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("state")
	if token == "" {
		respondError(w, http.StatusBadRequest, "state parameter required")
		return
	}

	st, err := s.store.Load(r.Context(), token, state.StageException)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown error reference")
		return
	}
	if st.Exception == nil {
		respondError(w, http.StatusNotFound, "no error recorded")
		return
	}

	respondJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":   st.Exception.Code,
		"message": st.Exception.Message,
		"source":  st.SourceID,
	})
}

// handleSession echoes the validated session claims
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"username": r.Header.Get("X-Username"),
		"source":   r.Header.Get("X-Auth-Source"),
	})
}

// advance either follows a pipeline suspension or finalizes the flow into
// a session token
func (s *Server) advance(w http.ResponseWriter, r *http.Request, src source.Source, out *pipeline.Outcome, st *state.AuthState, token string) {
	if !out.Completed {
		s.auditEvent("flow_suspended", "", st.SourceID, "", nil)
		http.Redirect(w, r, out.RedirectURL, http.StatusFound)
		return
	}

	identity, err := src.Finalize(r.Context(), out.Context)
	if err != nil {
		s.flowFailure(w, r, st, err)
		return
	}

	// The flow token is single-use; drop it once the session exists
	if err := s.store.Delete(r.Context(), token); err != nil {
		log.Printf("failed to delete flow state %s: %v", token, err)
	}

	signed, expiresAt, err := s.sessions.GenerateToken(identity)
	if err != nil {
		log.Printf("failed to generate session token: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.auditEvent("login_success", identity.Username, identity.Source, "", map[string]interface{}{
		"attributes": len(identity.Attributes),
	})

	if st != nil && st.ReturnURL != "" {
		http.Redirect(w, r, state.AppendToken(st.ReturnURL, signed), http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     signed,
		Username:  identity.Username,
		Source:    identity.Source,
		ExpiresAt: expiresAt,
	})
}

// flowFailure records a fatal flow error and redirects to the error page
// when the flow state is still in hand, otherwise answers directly
func (s *Server) flowFailure(w http.ResponseWriter, r *http.Request, st *state.AuthState, cause error) {
	log.Printf("authentication flow failed: %v", cause)

	username, sourceID := "", ""
	if st != nil {
		sourceID = st.SourceID
	}
	code := "InternalError"
	var coder state.Coder
	if errors.As(cause, &coder) {
		code = coder.ErrorCode()
	}
	s.auditEvent("flow_error", username, sourceID, code, nil)

	if st != nil && st.ExceptionURL != "" {
		redirect, err := state.ThrowException(r.Context(), s.store, st, cause)
		if err == nil {
			http.Redirect(w, r, redirect, http.StatusFound)
			return
		}
		log.Printf("failed to record flow exception: %v", err)
	}

	if state.IsKind(cause, state.KindNotFound) || state.IsKind(cause, state.KindExpired) ||
		state.IsKind(cause, state.KindStageMismatch) {
		respondError(w, http.StatusBadRequest, "invalid or expired flow state")
		return
	}
	respondError(w, http.StatusBadGateway, "authentication failed")
}

func (s *Server) auditEvent(action, username, sourceID, code string, metadata map[string]interface{}) {
	if err := s.audit.Log(audit.Event{
		Action:   action,
		Username: username,
		Source:   sourceID,
		Code:     code,
		Metadata: metadata,
	}); err != nil {
		log.Printf("failed to write audit log: %v", err)
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeSAMLResponse undoes the base64 wrapping of the POST binding
func decodeSAMLResponse(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
