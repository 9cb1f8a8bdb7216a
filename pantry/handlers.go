package pantry

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lagat/commands"
	"lagat/live"
	"lagat/mq"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service bundles what the pantry handlers and sockets need.
type Service struct {
	Store    Store
	Hub      *Hub
	Events   mq.Emitter
	Upgrader *live.Upgrader
	Log      logrus.FieldLogger

	// CommandsURL, when set, sends socket mutations to a remote command
	// endpoint with the caller's token instead of applying them locally.
	CommandsURL string
	HTTP        commands.HTTPClient
	Timeout     time.Duration
}

// LocalCommands applies commands to the store and announces every change on
// the event bus.
type LocalCommands struct {
	Store  Store
	Events mq.Emitter
	UserID string
	Log    logrus.FieldLogger
}

func (c LocalCommands) AddIngredient(ctx context.Context, name string) error {
	item, err := c.Store.Add(ctx, c.UserID, name)
	if err != nil {
		return err
	}
	c.announce(ctx, "add", item.ID)
	return nil
}

func (c LocalCommands) RemoveIngredient(ctx context.Context, id string) error {
	if err := c.Store.Remove(ctx, c.UserID, id); err != nil {
		return err
	}
	c.announce(ctx, "remove", id)
	return nil
}

func (c LocalCommands) announce(ctx context.Context, method, itemID string) {
	if c.Events == nil {
		return
	}
	err := c.Events.Emit(ctx, "pantry."+method, mq.Index{
		EntityType: EntityType,
		Method:     method,
		EntityId:   c.UserID,
		ItemId:     itemID,
		ItemType:   "ingredient",
	})
	if err != nil && c.Log != nil {
		c.Log.WithError(err).WithField("user_id", c.UserID).Warn("emit pantry event")
	}
}

func (s *Service) local(userID string) LocalCommands {
	return LocalCommands{Store: s.Store, Events: s.Events, UserID: userID, Log: s.Log}
}

// commandsFor picks the command backend for a socket session.
func (s *Service) commandsFor(ctx context.Context, userID string) Commands {
	if s.CommandsURL == "" {
		return s.local(userID)
	}
	return commands.New(s.CommandsURL, utils.GetTokenFromContext(ctx), s.HTTP)
}

// GetPantry lists the caller's pantry, newest first. page and limit are
// optional; without limit the whole pantry is returned.
func GetPantry(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		items, err := s.Store.List(r.Context(), userID)
		if err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Error("list pantry")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch pantry")
			return
		}
		total := len(items)

		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
			page, err := strconv.Atoi(r.URL.Query().Get("page"))
			if err != nil || page < 1 {
				page = 1
			}
			skip := (page - 1) * limit
			if skip > total {
				skip = total
			}
			end := skip + limit
			if end > total {
				end = total
			}
			items = items[skip:end]
		}

		utils.RespondWithJSON(w, http.StatusOK, utils.M{
			"success": true,
			"items":   items,
			"total":   total,
		})
	}
}

func AddIngredient(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req commands.AddIngredientRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		name := strings.TrimSpace(req.Ingredient)
		if name == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Ingredient name is required")
			return
		}

		if err := s.local(userID).AddIngredient(r.Context(), name); err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Error("add ingredient")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to add ingredient")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, commands.Response{Success: true, Message: "Ingredient added"})
	}
}

func RemoveIngredient(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		if userID == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req commands.RemoveIngredientRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil || req.ID == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Ingredient id is required")
			return
		}

		err := s.local(userID).RemoveIngredient(r.Context(), req.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Ingredient not found")
		case err != nil:
			s.Log.WithError(err).WithField("user_id", userID).Error("remove ingredient")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove ingredient")
		default:
			utils.RespondWithJSON(w, http.StatusOK, commands.Response{Success: true, Message: "Ingredient removed"})
		}
	}
}
