package api

import (
	"net/http"
	"time"
)

const rememberCookie = "broker_username"

// RequestContext carries the transport capabilities a flow step may need
// beyond its inputs. Anything a step wants to persist on the client goes
// through here explicitly instead of reaching for globals.
type RequestContext struct {
	w http.ResponseWriter
	r *http.Request
}

func NewRequestContext(w http.ResponseWriter, r *http.Request) *RequestContext {
	return &RequestContext{w: w, r: r}
}

// Cookie returns the named cookie value, or "" when absent
func (rc *RequestContext) Cookie(name string) string {
	c, err := rc.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetCookie persists a value on the client for maxAge
func (rc *RequestContext) SetCookie(name, value string, maxAge time.Duration) {
	http.SetCookie(rc.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes a persisted value
func (rc *RequestContext) ClearCookie(name string) {
	http.SetCookie(rc.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
