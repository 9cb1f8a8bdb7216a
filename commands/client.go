// Package commands is the write side of the pantry API: the request and
// response bodies shared with the server handlers, and a client that sends
// them with the user's bearer token.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const (
	AddIngredientPath        = "/add_ingredient"
	RemoveIngredientPath     = "/remove_ingredient"
	UpdatePreferredStorePath = "/update_preferred_store"
)

type AddIngredientRequest struct {
	Ingredient string `json:"ingredient"`
}

type RemoveIngredientRequest struct {
	ID string `json:"id"`
}

type PreferredStoreRequest struct {
	StoreID string `json:"store_id"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Error is a rejected command. Message is meant for the user.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	BaseURL string
	HTTP    HTTPClient
	Token   string
}

func New(baseURL, token string, client HTTPClient) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), HTTP: client, Token: token}
}

func (c *Client) AddIngredient(ctx context.Context, name string) error {
	return c.post(ctx, AddIngredientPath, AddIngredientRequest{Ingredient: name})
}

func (c *Client) RemoveIngredient(ctx context.Context, id string) error {
	return c.post(ctx, RemoveIngredientPath, RemoveIngredientRequest{ID: id})
}

func (c *Client) SetPreferredStore(ctx context.Context, storeID string) error {
	return c.post(ctx, UpdatePreferredStorePath, PreferredStoreRequest{StoreID: storeID})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode command")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "build command request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return errors.Wrapf(decodeErr, "decode %s response", path)
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "request was rejected"
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	return nil
}
