package home

import (
	"context"
	"net/http"
	"strings"

	"lagat/models"
	"lagat/pantry"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Service backs the landing screen endpoints.
type Service struct {
	Pantry         pantry.Lister
	PreferredStore func(ctx context.Context, userID string) (string, error)
	Log            logrus.FieldLogger
}

type summary struct {
	PreferredStore string `json:"preferredStore"`
	PantryCount    int    `json:"pantryCount"`
}

// GetHomeContent handles the dashboard endpoints under /home/:apiRoute.
func GetHomeContent(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		apiRoute := strings.ToLower(ps.ByName("apiRoute"))

		var (
			data interface{}
			err  error
		)

		switch apiRoute {
		case "stores":
			data = utils.M{"success": true, "stores": models.Stores}
		case "summary":
			userID := utils.GetUserIDFromContext(r.Context())
			if userID == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			data, err = s.summary(r.Context(), userID)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Invalid API route")
			return
		}

		if err != nil {
			s.Log.WithError(err).WithField("route", apiRoute).Error("home content")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch data")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, data)
	}
}

func (s *Service) summary(ctx context.Context, userID string) (summary, error) {
	var out summary
	items, err := s.Pantry.List(ctx, userID)
	if err != nil {
		return out, err
	}
	out.PantryCount = len(items)
	if s.PreferredStore != nil {
		if out.PreferredStore, err = s.PreferredStore(ctx, userID); err != nil {
			return out, err
		}
	}
	return out, nil
}
