package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type recorded struct {
	Path   string
	Auth   string
	Body   map[string]string
	Method string
}

func newServer(t *testing.T, status int, resp Response) (*httptest.Server, *[]recorded) {
	t.Helper()
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got = append(got, recorded{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body, Method: r.Method})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClientSendsBearerAndBody(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, Response{Success: true})
	c := New(srv.URL+"/", "tok-123", srv.Client())
	ctx := context.Background()

	if err := c.AddIngredient(ctx, "milk"); err != nil {
		t.Fatalf("AddIngredient: %v", err)
	}
	if err := c.RemoveIngredient(ctx, "abc"); err != nil {
		t.Fatalf("RemoveIngredient: %v", err)
	}
	if err := c.SetPreferredStore(ctx, "coop"); err != nil {
		t.Fatalf("SetPreferredStore: %v", err)
	}

	want := []recorded{
		{Path: "/add_ingredient", Auth: "Bearer tok-123", Body: map[string]string{"ingredient": "milk"}, Method: http.MethodPost},
		{Path: "/remove_ingredient", Auth: "Bearer tok-123", Body: map[string]string{"id": "abc"}, Method: http.MethodPost},
		{Path: "/update_preferred_store", Auth: "Bearer tok-123", Body: map[string]string{"store_id": "coop"}, Method: http.MethodPost},
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		resp    Response
		wantMsg string
	}{
		{"rejected", http.StatusOK, Response{Success: false, Message: "Ingredient already exists"}, "Ingredient already exists"},
		{"unauthorized", http.StatusUnauthorized, Response{Message: "Unauthorized"}, "Unauthorized"},
		{"server error without message", http.StatusInternalServerError, Response{}, "request failed with status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.resp)
			c := New(srv.URL, "tok", srv.Client())

			err := c.AddIngredient(context.Background(), "eggs")
			var cmdErr *Error
			if !errors.As(err, &cmdErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if cmdErr.Status != tt.status || cmdErr.Message != tt.wantMsg {
				t.Errorf("got %d %q, want %d %q", cmdErr.Status, cmdErr.Message, tt.status, tt.wantMsg)
			}
		})
	}
}

type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestClientTransportError(t *testing.T) {
	c := New("http://commands.invalid", "tok", failingClient{})
	err := c.RemoveIngredient(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		t.Errorf("transport failure should not be a command rejection: %v", err)
	}
}
