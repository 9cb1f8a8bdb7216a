package pantry

import (
	"context"
	"sync"
	"time"

	"lagat/models"
	"lagat/mq"

	"github.com/sirupsen/logrus"
)

// EntityType tags pantry events on the event bus.
const EntityType = "pantry"

// Lister reads a user's confirmed pantry.
type Lister interface {
	List(ctx context.Context, userID string) ([]models.PantryItem, error)
}

// Source delivers live pantry snapshots for one user. fn is called with the
// current snapshot before Subscribe returns and again after every change.
type Source interface {
	Subscribe(ctx context.Context, userID string, fn func([]models.PantryItem)) (func(), error)
}

// Hub fans pantry snapshots out to every subscriber of a user.
type Hub struct {
	store Lister
	log   logrus.FieldLogger

	// deliver serialises snapshot reads and deliveries per user so a
	// subscriber never sees an older snapshot after a newer one.
	deliver struct {
		sync.Mutex
		m map[string]*userLock
	}

	subs struct {
		sync.RWMutex
		next uint64
		m    map[string]map[uint64]func([]models.PantryItem)
	}
}

func NewHub(store Lister, log logrus.FieldLogger) *Hub {
	h := &Hub{store: store, log: log}
	h.subs.m = make(map[string]map[uint64]func([]models.PantryItem))
	h.deliver.m = make(map[string]*userLock)
	return h
}

type userLock struct {
	sync.Mutex
	refs int
}

// lockUser takes userID's delivery lock and returns its release.
func (h *Hub) lockUser(userID string) func() {
	h.deliver.Lock()
	l := h.deliver.m[userID]
	if l == nil {
		l = &userLock{}
		h.deliver.m[userID] = l
	}
	l.refs++
	h.deliver.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		h.deliver.Lock()
		if l.refs--; l.refs == 0 {
			delete(h.deliver.m, userID)
		}
		h.deliver.Unlock()
	}
}

func (h *Hub) Subscribe(ctx context.Context, userID string, fn func([]models.PantryItem)) (func(), error) {
	defer h.lockUser(userID)()

	items, err := h.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	h.subs.Lock()
	h.subs.next++
	id := h.subs.next
	if h.subs.m[userID] == nil {
		h.subs.m[userID] = make(map[uint64]func([]models.PantryItem))
	}
	h.subs.m[userID][id] = fn
	h.subs.Unlock()

	fn(items)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subs.Lock()
			delete(h.subs.m[userID], id)
			if len(h.subs.m[userID]) == 0 {
				delete(h.subs.m, userID)
			}
			h.subs.Unlock()
		})
	}, nil
}

// Subscribers reports how many live subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.subs.RLock()
	defer h.subs.RUnlock()
	return len(h.subs.m[userID])
}

// Publish reads the user's pantry and pushes it to every subscriber.
func (h *Hub) Publish(ctx context.Context, userID string) error {
	defer h.lockUser(userID)()

	if h.Subscribers(userID) == 0 {
		return nil
	}
	items, err := h.store.List(ctx, userID)
	if err != nil {
		return err
	}

	h.subs.RLock()
	fns := make([]func([]models.PantryItem), 0, len(h.subs.m[userID]))
	for _, fn := range h.subs.m[userID] {
		fns = append(fns, fn)
	}
	h.subs.RUnlock()

	for _, fn := range fns {
		fn(append([]models.PantryItem(nil), items...))
	}
	return nil
}

// HandleEvent is an mq.Handler that republishes on pantry changes.
func (h *Hub) HandleEvent(eventName string, content mq.Index) {
	if content.EntityType != EntityType {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Publish(ctx, content.EntityId); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"event":   eventName,
			"user_id": content.EntityId,
		}).Error("publish pantry snapshot")
	}
}
