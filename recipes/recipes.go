package recipes

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"lagat/gateway"
	"lagat/imageproxy"
	"lagat/models"
	"lagat/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxPageSize = 50

type Handlers struct {
	Gateway  gateway.Gateway
	PageSize int
	Log      logrus.FieldLogger
}

type feedPage struct {
	Recipes []models.Recipe `json:"recipes"`
	Cursor  gateway.Cursor  `json:"cursor,omitempty"`
	HasMore bool            `json:"hasMore"`
}

// GetFeed returns one page of the caller's recommended recipes for store.
// Pass the returned cursor back to get the next page.
func GetFeed(h *Handlers) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromContext(r.Context())
		q := r.URL.Query()
		store := q.Get("store")
		if !models.KnownStore(store) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown store")
			return
		}
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit <= 0 {
			limit = h.PageSize
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		page, err := h.Gateway.ListRecommended(r.Context(), gateway.Query{
			UserID: userID,
			Store:  store,
			After:  gateway.Cursor(q.Get("cursor")),
			Limit:  limit,
		})
		if errors.Is(err, gateway.ErrStaleCursor) {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		if err != nil {
			h.Log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "store": store}).Error("list recommended")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch recipes")
			return
		}
		recipes, err := gateway.Resolve(r.Context(), h.Gateway, userID, store, page.Entries)
		if err != nil {
			h.Log.WithError(err).WithField("user_id", userID).Error("resolve recipes")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch recipes")
			return
		}

		utils.RespondWithJSON(w, http.StatusOK, feedPage{
			Recipes: recipes,
			Cursor:  page.Next,
			HasMore: len(page.Entries) == limit,
		})
	}
}

// Ingredient is a recipe ingredient annotated with the store offer that
// covers it and the pantry item the user already has for it.
type Ingredient struct {
	Name        string        `json:"name"`
	Offer       *models.Offer `json:"offer,omitempty"`
	PantryMatch string        `json:"pantryMatch,omitempty"`
}

type Detail struct {
	*models.Recipe
	Store     string       `json:"store"`
	Annotated []Ingredient `json:"annotatedIngredients"`
}

// GetRecipe returns a recipe with its ingredients, the store's offers and,
// for signed-in users, their pantry matches.
func GetRecipe(h *Handlers) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		store := r.URL.Query().Get("store")
		if !models.KnownStore(store) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown store")
			return
		}
		userID := utils.GetUserIDFromContext(r.Context())

		detail, err := h.load(r.Context(), id, store, userID)
		if errors.Is(err, gateway.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Recipe not found")
			return
		}
		if err != nil {
			h.Log.WithError(err).WithField("recipe_id", id).Error("load recipe")
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch recipe")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, detail)
	}
}

func (h *Handlers) load(ctx context.Context, id, store, userID string) (*Detail, error) {
	recipe, err := h.Gateway.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		wg          sync.WaitGroup
		ingredients []models.RecipeIngredient
		offers      []models.Offer
		matches     = []models.Match{}
		errs        [3]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ingredients, errs[0] = h.Gateway.ListIngredients(ctx, id)
	}()
	go func() {
		defer wg.Done()
		offers, errs[1] = h.Gateway.ListOffers(ctx, id, store)
	}()
	if userID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, errs[2] = h.Gateway.ListMatches(ctx, userID, id)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if ingredients == nil {
		ingredients = []models.RecipeIngredient{}
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	if matches == nil {
		matches = []models.Match{}
	}
	recipe.Image = imageproxy.URL(recipe.ImgURL)
	recipe.Ingredients = ingredients
	recipe.Offers = offers
	recipe.MatchingIngredients = matches
	return &Detail{Recipe: recipe, Store: store, Annotated: annotate(ingredients, offers, matches)}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// annotate pairs every ingredient with the first offer and the first pantry
// match naming it, comparing trimmed lower-case names.
func annotate(ingredients []models.RecipeIngredient, offers []models.Offer, matches []models.Match) []Ingredient {
	out := make([]Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		key := normalize(ing.Name)
		view := Ingredient{Name: ing.Name}
		for i := range offers {
			if normalize(offers[i].Ingredient) == key {
				view.Offer = &offers[i]
				break
			}
		}
		for _, m := range matches {
			if normalize(m.Match) == key {
				view.PantryMatch = m.Name
				break
			}
		}
		out = append(out, view)
	}
	return out
}
