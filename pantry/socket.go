package pantry

import (
	"net/http"

	"lagat/live"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

type inbound struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	State   *State `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServeSocket runs a live pantry session: the client receives the
// optimistic list after every change and sends add and remove intents.
func ServeSocket(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		conn, err := s.Upgrader.Upgrade(w, r)
		if err != nil {
			s.Log.WithError(err).Warn("pantry socket upgrade")
			return
		}
		defer conn.Close()

		log := s.Log.WithField("user_id", userID)
		ctx := r.Context()
		push := func(st State) {
			if err := conn.WriteJSON(outbound{Type: "state", State: &st}); err != nil {
				log.WithError(err).Debug("pantry socket write")
			}
		}

		list, err := NewList(ctx, userID, s.commandsFor(ctx, userID), s.Hub,
			WithCommandTimeout(s.Timeout),
			WithListLogger(log),
			OnListChange(push),
		)
		if err != nil {
			log.WithError(err).Error("open pantry list")
			_ = conn.WriteJSON(outbound{Type: "error", Message: "Failed to load pantry"})
			return
		}
		defer list.Close()

		for {
			var msg inbound
			if err := conn.ReadJSON(&msg); err != nil {
				if !live.IsClosed(err) {
					log.WithError(err).Debug("pantry socket read")
				}
				return
			}
			switch msg.Type {
			case "add":
				list.Add(ctx, msg.Name)
			case "remove":
				if !list.RemoveByID(ctx, msg.ID) {
					_ = conn.WriteJSON(outbound{Type: "error", Message: "Ingredient not found"})
				}
			default:
				log.WithFields(logrus.Fields{"type": msg.Type}).Debug("unknown pantry message")
				_ = conn.WriteJSON(outbound{Type: "error", Message: "Unknown message type"})
			}
		}
	}
}
