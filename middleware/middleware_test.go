package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lagat/auth"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

func whoami(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("X-User", utils.GetUserIDFromContext(r.Context()))
	w.Header().Set("X-Token", utils.GetTokenFromContext(r.Context()))
	w.WriteHeader(http.StatusOK)
}

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	valid, err := tokens.Issue("u42")
	if err != nil {
		t.Fatal(err)
	}
	a := NewAuth(tokens)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantUser   string
	}{
		{"header", "Bearer " + valid, "", http.StatusOK, "u42"},
		{"query for websockets", "", "?token=" + valid, http.StatusOK, "u42"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, "", http.StatusUnauthorized, ""},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			a.Authenticate(whoami)(rec, req, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-User"); got != tt.wantUser {
				t.Errorf("user = %q, want %q", got, tt.wantUser)
			}
			if tt.wantUser != "" && rec.Header().Get("X-Token") != valid {
				t.Error("token not stored in context")
			}
		})
	}
}

func TestOptionalAuthServesAnonymous(t *testing.T) {
	a := NewAuth(auth.NewTokens("secret", time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	a.OptionalAuth(whoami)(rec, req, nil)

	if rec.Code != http.StatusOK || rec.Header().Get("X-User") != "" {
		t.Errorf("status = %d user = %q", rec.Code, rec.Header().Get("X-User"))
	}
}

func TestRecoverAndLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.Out = &buf
	log.Formatter = &logrus.JSONFormatter{}

	h := Logging(log)(RecoverMiddleware(log)(SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"panic recovered"`)) || !bytes.Contains(buf.Bytes(), []byte(`"status":500`)) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestLoggingKeepsCallerRequestID(t *testing.T) {
	log := logrus.New()
	log.Out = &bytes.Buffer{}
	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
	if !bytes.Contains(log.Out.(*bytes.Buffer).Bytes(), []byte("request_id=abc")) {
		t.Errorf("log output = %s", log.Out)
	}
}
