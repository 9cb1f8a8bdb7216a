package pantry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"lagat/models"

	"github.com/sirupsen/logrus"
)

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// memStore is an in-memory Store. Items are kept newest first.
type memStore struct {
	mu    sync.Mutex
	seq   int
	items map[string][]models.PantryItem
	lists int
}

func newMemStore() *memStore {
	return &memStore{items: map[string][]models.PantryItem{}}
}

func (m *memStore) seed(userID string, names ...string) []models.PantryItem {
	for _, n := range names {
		if _, err := m.Add(context.Background(), userID, n); err != nil {
			panic(err)
		}
	}
	items, _ := m.List(context.Background(), userID)
	return items
}

func (m *memStore) List(_ context.Context, userID string) ([]models.PantryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	return append([]models.PantryItem{}, m.items[userID]...), nil
}

func (m *memStore) Add(_ context.Context, userID, name string) (models.PantryItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.PantryItem{}, ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items[userID] {
		if it.Name == name {
			return it, nil
		}
	}
	m.seq++
	it := models.PantryItem{ID: fmt.Sprintf("p%d", m.seq), UserID: userID, Name: name}
	m.items[userID] = append([]models.PantryItem{it}, m.items[userID]...)
	return it, nil
}

func (m *memStore) Remove(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items[userID] {
		if it.ID == id {
			m.items[userID] = append(m.items[userID][:i:i], m.items[userID][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// gatedCommands records calls and, when gated, holds each one until release
// is called. A non-nil fail makes every call return it.
type gatedCommands struct {
	next Commands

	mu      sync.Mutex
	calls   []string
	fail    error
	gate    chan struct{}
	entered chan string
}

func newGatedCommands(next Commands) *gatedCommands {
	return &gatedCommands{next: next, entered: make(chan string, 16)}
}

func (g *gatedCommands) hold() (release func()) {
	gate := make(chan struct{})
	g.mu.Lock()
	g.gate = gate
	g.mu.Unlock()
	return func() { close(gate) }
}

func (g *gatedCommands) do(ctx context.Context, call string, fn func(Commands) error) error {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	gate, fail := g.gate, g.fail
	g.mu.Unlock()

	if gate != nil {
		g.entered <- call
		<-gate
	}
	if fail != nil {
		return fail
	}
	if g.next == nil {
		return nil
	}
	return fn(g.next)
}

func (g *gatedCommands) AddIngredient(ctx context.Context, name string) error {
	return g.do(ctx, "add:"+name, func(c Commands) error { return c.AddIngredient(ctx, name) })
}

func (g *gatedCommands) RemoveIngredient(ctx context.Context, id string) error {
	return g.do(ctx, "remove:"+id, func(c Commands) error { return c.RemoveIngredient(ctx, id) })
}

func (g *gatedCommands) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func names(items []Item) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}
