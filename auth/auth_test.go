package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lagat/commands"
	"lagat/globals"
	"lagat/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[primitive.ObjectID]models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = normalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = primitive.NewObjectID()
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) ByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == normalizeEmail(email) {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (m *memUsers) ByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	u, ok := m.users[oid]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) SetPreferredStore(_ context.Context, id, store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oid, _ := primitive.ObjectIDFromHex(id)
	u, ok := m.users[oid]
	if !ok {
		return ErrUserNotFound
	}
	u.PreferredStore = store
	m.users[oid] = u
	return nil
}

func newService() *Service {
	log := logrus.New()
	log.Out = io.Discard
	return &Service{Users: newMemUsers(), Tokens: NewTokens("test-secret", time.Hour), Log: log}
}

func call(h httprouter.Handle, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	h(rec, req, nil)
	return rec
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	raw, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q", claims.UserID)
	}
}

func TestTokensRejects(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	valid, _ := tokens.Issue("user-1")

	expired := NewTokens("s3cret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue("user-1")

	other, _ := NewTokens("different", time.Hour).Issue("user-1")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":      old,
		"wrong secret": other,
		"alg none":     none,
		"garbage":      "not.a.token",
		"tampered":     valid + "x",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := tokens.Parse(raw); err != ErrInvalidToken {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestRegisterLoginMe(t *testing.T) {
	s := newService()

	rec := call(Register(s), "", `{"email":"Ada@Example.com","password":"correct horse","name":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body)
	}

	if rec := call(Register(s), "", `{"email":"ada@example.com","password":"another pass"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}
	if rec := call(Login(s), "", `{"email":"ada@example.com","password":"wrong password"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}
	if rec := call(Login(s), "", `{"email":"nobody@example.com","password":"whatever1"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rec.Code)
	}

	rec = call(Login(s), "", `{"email":" ADA@example.com ","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var sess struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks the password hash")
	}
	claims, err := s.Tokens.Parse(sess.Token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	rec = call(Me(s), claims.UserID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	var me struct {
		User models.User `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me.User.Email != "ada@example.com" || me.User.Name != "Ada" {
		t.Errorf("me = %+v", me.User)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newService()
	for _, body := range []string{
		`{"email":"no-at-sign","password":"longenough"}`,
		`{"email":"a@b.se","password":"short"}`,
		`not json`,
	} {
		if rec := call(Register(s), "", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestUpdatePreferredStore(t *testing.T) {
	s := newService()
	u := models.User{Email: "b@example.com"}
	if err := s.Users.Create(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	id := u.ID.Hex()

	if rec := call(UpdatePreferredStore(s), id, `{"store_id":"atlantis"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown store status = %d, want 400", rec.Code)
	}
	if rec := call(UpdatePreferredStore(s), id, `{"store_id":"coop"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	store, err := s.PreferredStore(context.Background(), id)
	if err != nil || store != "coop" {
		t.Errorf("PreferredStore = %q, %v; want coop", store, err)
	}

	if rec := call(UpdatePreferredStore(s), id, `{"store_id":""}`); rec.Code != http.StatusOK {
		t.Errorf("clearing the store: status = %d, want 200", rec.Code)
	}
}

func TestPreferencesForLocal(t *testing.T) {
	s := newService()
	u := models.User{Email: "a@example.com"}
	if err := s.Users.Create(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	prefs := s.PreferencesFor(context.Background(), u.ID.Hex())

	if err := prefs.SetPreferredStore(context.Background(), "atlantis"); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("unknown store: err = %v, want ErrUnknownStore", err)
	}
	if err := prefs.SetPreferredStore(context.Background(), "lidl"); err != nil {
		t.Fatalf("SetPreferredStore: %v", err)
	}
	if got, _ := s.PreferredStore(context.Background(), u.ID.Hex()); got != "lidl" {
		t.Errorf("preferred store = %q, want lidl", got)
	}
}

func TestPreferencesForRemote(t *testing.T) {
	var gotAuth, gotPath string
	var body commands.PreferredStoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth, gotPath = r.Header.Get("Authorization"), r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(commands.Response{Success: true})
	}))
	defer srv.Close()

	s := newService()
	s.CommandsURL = srv.URL
	ctx := context.WithValue(context.Background(), globals.TokenKey, "tok")
	if err := s.PreferencesFor(ctx, "u1").SetPreferredStore(ctx, "coop"); err != nil {
		t.Fatalf("SetPreferredStore: %v", err)
	}
	if gotAuth != "Bearer tok" || gotPath != commands.UpdatePreferredStorePath || body.StoreID != "coop" {
		t.Errorf("request = %q %q %+v", gotAuth, gotPath, body)
	}
}
