package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lagat/commands"
	"lagat/models"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type Service struct {
	Users  Users
	Tokens *Tokens
	Log    logrus.FieldLogger

	// CommandsURL, when set, sends preference changes made over a socket to
	// the remote command endpoint with the caller's token.
	CommandsURL string
	HTTP        commands.HTTPClient
}

// ErrUnknownStore is returned when a preferred store is not in models.Stores.
var ErrUnknownStore = errors.New("unknown store")

// Preferences saves the caller's preferred store.
type Preferences interface {
	SetPreferredStore(ctx context.Context, storeID string) error
}

// LocalPreferences writes the preference straight to the user store.
type LocalPreferences struct {
	Users  Users
	UserID string
}

func (p LocalPreferences) SetPreferredStore(ctx context.Context, storeID string) error {
	if !models.KnownStore(storeID) {
		return ErrUnknownStore
	}
	return p.Users.SetPreferredStore(ctx, p.UserID, storeID)
}

// PreferencesFor picks the preference backend for a socket session, the
// same way pantry sessions pick their command backend.
func (s *Service) PreferencesFor(ctx context.Context, userID string) Preferences {
	if s.CommandsURL == "" {
		return LocalPreferences{Users: s.Users, UserID: userID}
	}
	return commands.New(s.CommandsURL, utils.GetTokenFromContext(ctx), s.HTTP)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type session struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

// PreferredStore returns the user's saved store filter, "" when none is set.
func (s *Service) PreferredStore(ctx context.Context, userID string) (string, error) {
	u, err := s.Users.ByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.PreferredStore, nil
}

func Register(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req credentials
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !strings.Contains(req.Email, "@") {
			utils.RespondWithError(w, http.StatusBadRequest, "A valid email is required")
			return
		}
		if len(req.Password) < minPasswordLength {
			utils.RespondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.Log.WithError(err).Error("hash password")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}
		u := models.User{
			Email:        req.Email,
			Name:         strings.TrimSpace(req.Name),
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		err = s.Users.Create(r.Context(), &u)
		if errors.Is(err, ErrEmailTaken) {
			utils.RespondWithError(w, http.StatusConflict, "Email is already registered")
			return
		}
		if err != nil {
			s.Log.WithError(err).Error("create user")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}
		s.respondWithSession(w, http.StatusCreated, u)
	}
}

func Login(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req credentials
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		u, err := s.Users.ByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			s.Log.WithError(err).Error("find user")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to sign in")
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.respondWithSession(w, http.StatusOK, u)
	}
}

func (s *Service) respondWithSession(w http.ResponseWriter, code int, u models.User) {
	token, err := s.Tokens.Issue(u.ID.Hex())
	if err != nil {
		s.Log.WithError(err).Error("issue token")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}
	utils.RespondWithJSON(w, code, session{Success: true, Token: token, User: u})
}

// Me returns the signed-in user's profile.
func Me(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		u, err := s.Users.ByID(r.Context(), userID)
		if errors.Is(err, ErrUserNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Error("load profile")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load profile")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "user": u})
	}
}

func UpdatePreferredStore(s *Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		var req commands.PreferredStoreRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !models.KnownStore(req.StoreID) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown store")
			return
		}

		err := s.Users.SetPreferredStore(r.Context(), userID, req.StoreID)
		if errors.Is(err, ErrUserNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Error("update preferred store")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update preferred store")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, commands.Response{Success: true, Message: "Preferred store updated"})
	}
}
