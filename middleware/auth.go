package middleware

import (
	"context"
	"net/http"
	"strings"

	"lagat/auth"
	"lagat/globals"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
)

type Auth struct {
	tokens *auth.Tokens
}

func NewAuth(tokens *auth.Tokens) *Auth {
	return &Auth{tokens: tokens}
}

// bearer reads the token from the Authorization header, falling back to the
// token query parameter for websocket clients that cannot set headers.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (a *Auth) identify(r *http.Request) (*http.Request, bool) {
	raw := bearer(r)
	if raw == "" {
		return r, false
	}
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return r, false
	}
	ctx := context.WithValue(r.Context(), globals.UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, globals.TokenKey, raw)
	return r.WithContext(ctx), true
}

// Authenticate rejects requests without a valid bearer token.
func (a *Auth) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		r, ok := a.identify(r)
		if !ok {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, ps)
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// serves anonymous requests otherwise.
func (a *Auth) OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		r, _ = a.identify(r)
		next(w, r, ps)
	}
}
