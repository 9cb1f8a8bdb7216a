package pantry

import (
	"context"
	"strings"
	"sync"
	"time"

	"lagat/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Commands performs pantry mutations against the backend.
type Commands interface {
	AddIngredient(ctx context.Context, name string) error
	RemoveIngredient(ctx context.Context, id string) error
}

type ListOption func(*List)

func WithCommandTimeout(d time.Duration) ListOption {
	return func(l *List) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithListLogger(log logrus.FieldLogger) ListOption {
	return func(l *List) { l.log = log }
}

// OnListChange registers a callback run with a fresh State after every
// change. It runs without the list lock held.
func OnListChange(fn func(State)) ListOption {
	return func(l *List) { l.onChange = fn }
}

// List is a user's pantry with optimistic adds and removes layered over live
// snapshots. Mutations return immediately; commands run in the background.
type List struct {
	userID   string
	cmds     Commands
	timeout  time.Duration
	log      logrus.FieldLogger
	onChange func(State)
	newID    func() string

	mu    sync.Mutex
	state State

	// notifyMu orders onChange calls so the last one always carries the
	// latest state.
	notifyMu sync.Mutex

	unsubscribe func()
	inflight    sync.WaitGroup
}

// NewList subscribes to src. The initial snapshot is applied before NewList
// returns.
func NewList(ctx context.Context, userID string, cmds Commands, src Source, opts ...ListOption) (*List, error) {
	l := &List{
		userID:  userID,
		cmds:    cmds,
		timeout: 10 * time.Second,
		log:     logrus.StandardLogger(),
		newID:   func() string { return "temp-" + uuid.NewString() },
		state:   State{Items: []Item{}},
	}
	for _, opt := range opts {
		opt(l)
	}

	unsubscribe, err := src.Subscribe(ctx, userID, func(items []models.PantryItem) {
		l.dispatch(Snapshot{Items: items})
	})
	if err != nil {
		return nil, err
	}
	l.unsubscribe = unsubscribe
	return l, nil
}

func (l *List) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// Add shows name at the head immediately and sends the add command. Blank
// names are ignored.
func (l *List) Add(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	tempID := l.newID()
	l.dispatch(Added{TempID: tempID, Name: name})

	l.run(ctx, func(ctx context.Context) {
		if err := l.cmds.AddIngredient(ctx, name); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{"user_id": l.userID, "name": name}).Warn("add ingredient failed")
			l.dispatch(AddFailed{TempID: tempID, Err: err.Error()})
		}
	})
}

// Remove hides item immediately. Items that were never confirmed are dropped
// locally without a command.
func (l *List) Remove(ctx context.Context, item Item) {
	l.dispatch(Removed{Item: item})
	if item.Optimistic {
		return
	}

	l.run(ctx, func(ctx context.Context) {
		if err := l.cmds.RemoveIngredient(ctx, item.ID); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{"user_id": l.userID, "id": item.ID}).Warn("remove ingredient failed")
			l.dispatch(RemoveFailed{Item: item, Err: err.Error()})
			return
		}
		l.dispatch(RemoveConfirmed{ID: item.ID})
	})
}

// RemoveByID removes the displayed item with id. It reports false when no
// such item is shown.
func (l *List) RemoveByID(ctx context.Context, id string) bool {
	l.mu.Lock()
	var (
		item  Item
		found bool
	)
	for _, it := range l.state.Items {
		if it.ID == id {
			item, found = it, true
			break
		}
	}
	l.mu.Unlock()

	if found {
		l.Remove(ctx, item)
	}
	return found
}

// Close stops receiving snapshots. In-flight commands still complete.
func (l *List) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}

// Wait blocks until in-flight commands have finished.
func (l *List) Wait() {
	l.inflight.Wait()
}

// run executes fn detached from the caller's cancellation but bounded by the
// command timeout.
func (l *List) run(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (l *List) dispatch(ev Event) {
	l.mu.Lock()
	l.state = Reduce(l.state, ev)
	l.mu.Unlock()

	if l.onChange == nil {
		return
	}
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	l.onChange(l.State())
}
