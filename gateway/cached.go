package gateway

import (
	"context"
	"time"

	"lagat/models"
	"lagat/rdx"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Cached is a read-through cache over another Gateway. Recipe documents,
// ingredient lists and offer lists are cached; recommendations and matches
// are per-user rankings that change whenever the pantry does, so they always
// go to the backing gateway.
type Cached struct {
	Next  Gateway
	Cache rdx.Cache
	TTL   time.Duration
	Log   logrus.FieldLogger
}

func NewCached(next Gateway, cache rdx.Cache, ttl time.Duration, log logrus.FieldLogger) *Cached {
	return &Cached{Next: next, Cache: cache, TTL: ttl, Log: log}
}

func (c *Cached) ListRecommended(ctx context.Context, q Query) (Page, error) {
	return c.Next.ListRecommended(ctx, q)
}

func (c *Cached) ListMatches(ctx context.Context, userID, recipeID string) ([]models.Match, error) {
	return c.Next.ListMatches(ctx, userID, recipeID)
}

func (c *Cached) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	err := c.through(ctx, "recipe:"+id, &recipe, func() (any, error) {
		return c.Next.GetRecipe(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (c *Cached) ListOffers(ctx context.Context, recipeID, store string) ([]models.Offer, error) {
	var offers []models.Offer
	err := c.through(ctx, "offers:"+recipeID+":"+store, &offers, func() (any, error) {
		return c.Next.ListOffers(ctx, recipeID, store)
	})
	return offers, err
}

func (c *Cached) ListIngredients(ctx context.Context, recipeID string) ([]models.RecipeIngredient, error) {
	var ingredients []models.RecipeIngredient
	err := c.through(ctx, "ingredients:"+recipeID, &ingredients, func() (any, error) {
		return c.Next.ListIngredients(ctx, recipeID)
	})
	return ingredients, err
}

// through serves key from the cache into dst, or calls load, stores its
// result and copies it into dst. Cache failures are logged and bypassed.
func (c *Cached) through(ctx context.Context, key string, dst any, load func() (any, error)) error {
	err := c.Cache.GetJSON(ctx, key, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, rdx.ErrMiss) {
		c.Log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	v, err := load()
	if err != nil {
		return err
	}
	if err := c.Cache.SetJSON(ctx, key, v, c.TTL); err != nil {
		c.Log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return copyInto(v, dst)
}

func copyInto(v, dst any) error {
	switch d := dst.(type) {
	case *models.Recipe:
		*d = *v.(*models.Recipe)
	case *[]models.Offer:
		*d = v.([]models.Offer)
	case *[]models.RecipeIngredient:
		*d = v.([]models.RecipeIngredient)
	default:
		return errors.Errorf("unsupported cache target %T", dst)
	}
	return nil
}
