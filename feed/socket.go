package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lagat/commands"
	"lagat/gateway"
	"lagat/live"
	"lagat/models"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sessions serves live feed sockets.
type Sessions struct {
	Gateway  gateway.Gateway
	Upgrader *live.Upgrader
	Log      logrus.FieldLogger
	PageSize int
	Timeout  time.Duration

	// PreferredStore supplies the initial filter when the client names none.
	PreferredStore func(ctx context.Context, userID string) (string, error)

	// Preferences saves a "prefer" message. Nil disables the message.
	Preferences func(ctx context.Context, userID string) Preferences
}

// Preferences stores the user's preferred store.
type Preferences interface {
	SetPreferredStore(ctx context.Context, storeID string) error
}

type inbound struct {
	Type  string `json:"type"`
	Store string `json:"store,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	State   *State `json:"state,omitempty"`
	Store   string `json:"store,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Sessions) initialStore(r *http.Request, userID string) string {
	if store, ok := r.URL.Query()["store"]; ok {
		return store[0]
	}
	if s.PreferredStore == nil {
		return ""
	}
	store, err := s.PreferredStore(r.Context(), userID)
	if err != nil {
		s.Log.WithError(err).WithField("user_id", userID).Warn("load preferred store")
		return ""
	}
	return store
}

// ServeSocket runs one feed session. The client sends filter, prefer, more
// and reload messages and receives the feed state after every change.
func ServeSocket(s *Sessions) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		store := s.initialStore(r, userID)
		if !models.KnownStore(store) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown store")
			return
		}

		conn, err := s.Upgrader.Upgrade(w, r)
		if err != nil {
			s.Log.WithError(err).Warn("feed socket upgrade")
			return
		}
		defer conn.Close()

		log := s.Log.WithField("user_id", userID)
		ctx, cancel := context.WithCancel(r.Context())
		var running sync.WaitGroup

		c := New(s.Gateway, userID,
			WithPageSize(s.PageSize),
			WithTimeout(s.Timeout),
			WithLogger(log),
			OnChange(func(st State) {
				if err := conn.WriteJSON(outbound{Type: "state", State: &st}); err != nil {
					log.WithError(err).Debug("feed socket write")
				}
			}),
		)
		defer func() {
			cancel()
			running.Wait()
			c.Wait()
		}()

		// Loads run off the read loop so a filter change can overtake a slow
		// page. Whatever resolves for an old epoch is dropped.
		do := func(fn func(context.Context) error) {
			running.Add(1)
			go func() {
				defer running.Done()
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					_ = conn.WriteJSON(outbound{Type: "error", Message: "Failed to load recipes"})
				}
			}()
		}
		// Epochs are taken on the read loop so messages apply in the order
		// they arrived even though the loads run concurrently.
		epoch := c.reset(store)
		do(func(ctx context.Context) error { return c.loadInitial(ctx, epoch) })

		for {
			var msg inbound
			if err := conn.ReadJSON(&msg); err != nil {
				if !live.IsClosed(err) {
					log.WithError(err).Debug("feed socket read")
				}
				return
			}
			switch msg.Type {
			case "filter":
				if !models.KnownStore(msg.Store) {
					_ = conn.WriteJSON(outbound{Type: "error", Message: "Unknown store"})
					continue
				}
				epoch := c.reset(msg.Store)
				do(func(ctx context.Context) error { return c.loadInitial(ctx, epoch) })
			case "more":
				do(c.LoadMore)
			case "prefer":
				// Switch the feed at once and save the choice alongside.
				if !models.KnownStore(msg.Store) {
					_ = conn.WriteJSON(outbound{Type: "error", Message: "Unknown store"})
					continue
				}
				if s.Preferences == nil {
					_ = conn.WriteJSON(outbound{Type: "error", Message: "Preferred store cannot be changed"})
					continue
				}
				epoch := c.reset(msg.Store)
				do(func(ctx context.Context) error { return c.loadInitial(ctx, epoch) })
				s.savePreference(r.Context(), s.Preferences(r.Context(), userID), msg.Store, conn, log, &running)
			case "reload":
				epoch := c.restart()
				do(func(ctx context.Context) error { return c.loadInitial(ctx, epoch) })
			default:
				_ = conn.WriteJSON(outbound{Type: "error", Message: "Unknown message type"})
			}
		}
	}
}

// savePreference runs the command off the read loop. It outlives the socket
// so a preference sent just before closing still lands.
func (s *Sessions) savePreference(ctx context.Context, prefs Preferences, store string, conn *live.Conn, log logrus.FieldLogger, running *sync.WaitGroup) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	running.Add(1)
	go func() {
		defer running.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := prefs.SetPreferredStore(ctx, store); err != nil {
			log.WithError(err).WithField("store", store).Warn("save preferred store")
			msg := "Failed to save preferred store"
			var cmdErr *commands.Error
			if errors.As(err, &cmdErr) {
				msg = cmdErr.Message
			}
			_ = conn.WriteJSON(outbound{Type: "error", Message: msg})
			return
		}
		_ = conn.WriteJSON(outbound{Type: "preferred", Store: store})
	}()
}
