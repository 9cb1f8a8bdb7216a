// Package gateway reads recipes, offers, matches and per-user recommendation
// rankings from the document store.
package gateway

import (
	"context"
	"sync"

	"lagat/imageproxy"
	"lagat/models"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrStaleCursor = errors.New("cursor does not belong to this query")
)

// Gateway is the read side of the document store.
type Gateway interface {
	ListRecommended(ctx context.Context, q Query) (Page, error)
	GetRecipe(ctx context.Context, id string) (*models.Recipe, error)
	ListOffers(ctx context.Context, recipeID, store string) ([]models.Offer, error)
	ListMatches(ctx context.Context, userID, recipeID string) ([]models.Match, error)
	ListIngredients(ctx context.Context, recipeID string) ([]models.RecipeIngredient, error)
}

// Query selects one page of a user's recommendations for a store filter.
type Query struct {
	UserID string
	Store  string
	After  Cursor
	Limit  int
}

// Page is one ordered slice of recommendations. Next resumes after the last
// entry and is empty when Entries is empty.
type Page struct {
	Entries []models.Recommendation
	Next    Cursor
}

// Resolve turns recommendation entries into render-ready recipes carrying
// the store's offers and the user's matches. Entries whose recipe no longer
// exists are skipped; the order of the rest is preserved.
func Resolve(ctx context.Context, gw Gateway, userID, store string, entries []models.Recommendation) ([]models.Recipe, error) {
	type result struct {
		recipe *models.Recipe
		err    error
	}
	results := make([]result, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, recipeID string) {
			defer wg.Done()
			recipe, err := resolveOne(ctx, gw, userID, store, recipeID)
			results[i] = result{recipe: recipe, err: err}
		}(i, entry.RecipeID)
	}
	wg.Wait()

	recipes := make([]models.Recipe, 0, len(entries))
	for _, res := range results {
		if errors.Is(res.err, ErrNotFound) {
			continue
		}
		if res.err != nil {
			return nil, res.err
		}
		recipes = append(recipes, *res.recipe)
	}
	return recipes, nil
}

func resolveOne(ctx context.Context, gw Gateway, userID, store, recipeID string) (*models.Recipe, error) {
	recipe, err := gw.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	offers, err := gw.ListOffers(ctx, recipeID, store)
	if err != nil {
		return nil, errors.Wrapf(err, "offers for %s", recipeID)
	}
	matches, err := gw.ListMatches(ctx, userID, recipeID)
	if err != nil {
		return nil, errors.Wrapf(err, "matches for %s", recipeID)
	}

	recipe.Image = imageproxy.URL(recipe.ImgURL)
	recipe.Ingredients = []models.RecipeIngredient{}
	recipe.Offers = offers
	recipe.MatchingIngredients = matches
	return recipe, nil
}
