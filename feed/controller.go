// Package feed keeps a store-filtered, paginated recipe list with a
// one-page-ahead prefetch buffer.
package feed

import (
	"context"
	"sync"
	"time"

	"lagat/gateway"
	"lagat/models"

	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 10

// State is a copy of the controller's visible state.
type State struct {
	Filter         string          `json:"filter"`
	Items          []models.Recipe `json:"items"`
	HasMore        bool            `json:"hasMore"`
	LoadingInitial bool            `json:"loadingInitial"`
	LoadingMore    bool            `json:"loadingMore"`
	Prefetched     int             `json:"prefetched"`
	Empty          bool            `json:"empty"`
	Err            string          `json:"error,omitempty"`
}

type Option func(*Controller)

func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// OnChange registers a callback invoked with a fresh State after every
// visible change. It runs without the controller lock held.
func OnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller is safe for concurrent use. Results that resolve after the
// filter changed belong to an old epoch and are dropped.
type Controller struct {
	gw       gateway.Gateway
	userID   string
	pageSize int
	timeout  time.Duration
	log      logrus.FieldLogger
	onChange func(State)

	mu             sync.Mutex
	epoch          uint64
	filter         string
	items          []models.Recipe
	cursor         gateway.Cursor
	hasMore        bool
	loadingInitial bool
	loadingMore    bool
	err            error

	// Prefetch buffer for the page after cursor. prefetchReady distinguishes
	// a finished prefetch that found nothing from one still in flight.
	prefetched     []models.Recipe
	prefetchCursor gateway.Cursor
	prefetchFull   bool
	prefetchReady  bool

	background sync.WaitGroup
	notifyMu   sync.Mutex
}

func New(gw gateway.Gateway, userID string, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		userID:   userID,
		pageSize: DefaultPageSize,
		timeout:  10 * time.Second,
		log:      logrus.StandardLogger(),
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		Filter:         c.filter,
		Items:          append([]models.Recipe{}, c.items...),
		HasMore:        c.hasMore,
		LoadingInitial: c.loadingInitial,
		LoadingMore:    c.loadingMore,
		Prefetched:     len(c.prefetched),
	}
	s.Empty = len(c.items) == 0 && !c.hasMore && !c.loadingInitial && c.err == nil
	if c.err != nil {
		s.Err = c.err.Error()
	}
	return s
}

// SetFilter switches the store filter. Everything tied to the previous
// filter is discarded before the first page of the new one is loaded.
func (c *Controller) SetFilter(ctx context.Context, store string) error {
	return c.loadInitial(ctx, c.reset(store))
}

// LoadInitial replaces the list with the first page for the current filter
// and starts prefetching the second one in the background. Anything still in
// flight for the old list is discarded.
func (c *Controller) LoadInitial(ctx context.Context) error {
	return c.loadInitial(ctx, c.restart())
}

// restart starts a new epoch for the current filter.
func (c *Controller) restart() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(c.filter)
}

// reset starts a new epoch for store and returns it. The new epoch counts as
// loading from the start so LoadMore cannot slip in before the first page.
func (c *Controller) reset(store string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(store)
}

func (c *Controller) resetLocked(store string) uint64 {
	c.epoch++
	c.filter = store
	c.items = nil
	c.cursor = ""
	c.clearPrefetchLocked()
	c.hasMore = true
	c.loadingInitial = true
	c.loadingMore = false
	c.err = nil
	return c.epoch
}

func (c *Controller) loadInitial(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	store := c.filter
	c.mu.Unlock()
	c.notify()

	recipes, page, err := c.fetch(ctx, store, "")

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.log.WithField("filter", store).Debug("dropping stale initial page")
		return nil
	}
	c.loadingInitial = false
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.items = recipes
	c.cursor = page.Next
	c.hasMore = len(page.Entries) == c.pageSize
	if c.hasMore {
		c.prefetchLocked(epoch, store, c.cursor)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// LoadMore appends the next page. A ready prefetch buffer is used without
// any network wait; otherwise the page is fetched directly. Calls made while
// a load is in flight or after the end was reached do nothing.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.loadingInitial || c.loadingMore || !c.hasMore {
		c.mu.Unlock()
		return nil
	}

	if c.prefetchReady {
		c.items = append(c.items, c.prefetched...)
		c.cursor = c.prefetchCursor
		c.hasMore = c.prefetchFull
		c.clearPrefetchLocked()
		if c.hasMore {
			c.prefetchLocked(c.epoch, c.filter, c.cursor)
		}
		c.mu.Unlock()
		c.notify()
		return nil
	}

	epoch, store, cursor := c.epoch, c.filter, c.cursor
	c.loadingMore = true
	c.err = nil
	c.mu.Unlock()
	c.notify()

	recipes, page, err := c.fetch(ctx, store, cursor)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = false
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.items = append(c.items, recipes...)
	if page.Next != "" {
		c.cursor = page.Next
	}
	c.hasMore = len(page.Entries) == c.pageSize
	// An in-flight prefetch for the old cursor will be rejected on arrival.
	c.clearPrefetchLocked()
	if c.hasMore {
		c.prefetchLocked(epoch, store, c.cursor)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Wait blocks until background prefetches have finished.
func (c *Controller) Wait() {
	c.background.Wait()
}

func (c *Controller) clearPrefetchLocked() {
	c.prefetched = nil
	c.prefetchCursor = ""
	c.prefetchFull = false
	c.prefetchReady = false
}

// prefetchLocked starts fetching the page after cursor. The result is kept
// only if, on arrival, the epoch and cursor are still the ones it was
// requested for.
func (c *Controller) prefetchLocked(epoch uint64, store string, cursor gateway.Cursor) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()

		recipes, page, err := c.fetch(context.Background(), store, cursor)

		c.mu.Lock()
		if epoch != c.epoch || cursor != c.cursor || c.prefetchReady {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.mu.Unlock()
			// Not surfaced: LoadMore falls back to a direct fetch.
			c.log.WithError(err).WithField("filter", store).Warn("prefetch failed")
			return
		}
		c.prefetched = recipes
		c.prefetchCursor = page.Next
		if c.prefetchCursor == "" {
			c.prefetchCursor = cursor
		}
		c.prefetchFull = len(page.Entries) == c.pageSize
		c.prefetchReady = true
		c.mu.Unlock()
		c.notify()
	}()
}

func (c *Controller) fetch(ctx context.Context, store string, after gateway.Cursor) ([]models.Recipe, gateway.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	page, err := c.gw.ListRecommended(ctx, gateway.Query{
		UserID: c.userID,
		Store:  store,
		After:  after,
		Limit:  c.pageSize,
	})
	if err != nil {
		return nil, gateway.Page{}, err
	}
	recipes, err := gateway.Resolve(ctx, c.gw, c.userID, store, page.Entries)
	if err != nil {
		return nil, gateway.Page{}, err
	}
	return recipes, page, nil
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.onChange(c.State())
}
