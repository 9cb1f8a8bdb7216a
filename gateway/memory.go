package gateway

import (
	"context"
	"sort"
	"sync"

	"lagat/models"
)

// Memory is an in-process Gateway. It applies the same ordering and cursor
// rules as Mongo and is safe for concurrent use.
type Memory struct {
	mu              sync.RWMutex
	recipes         map[string]models.Recipe
	ingredients     map[string][]models.RecipeIngredient
	offers          map[string][]models.Offer
	matches         map[string][]models.Match
	recommendations map[string][]models.Recommendation
}

func NewMemory() *Memory {
	return &Memory{
		recipes:         make(map[string]models.Recipe),
		ingredients:     make(map[string][]models.RecipeIngredient),
		offers:          make(map[string][]models.Offer),
		matches:         make(map[string][]models.Match),
		recommendations: make(map[string][]models.Recommendation),
	}
}

func (m *Memory) PutRecipe(r models.Recipe, ingredients ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipes[r.ID] = r
	list := make([]models.RecipeIngredient, 0, len(ingredients))
	for _, name := range ingredients {
		list = append(list, models.RecipeIngredient{RecipeID: r.ID, Name: name})
	}
	m.ingredients[r.ID] = list
}

func (m *Memory) DeleteRecipe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recipes, id)
}

func (m *Memory) PutOffer(o models.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := o.RecipeID + "/" + o.StoreID
	m.offers[k] = append(m.offers[k], o)
}

func (m *Memory) PutMatch(mt models.Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mt.UserID + "/" + mt.RecipeID
	m.matches[k] = append(m.matches[k], mt)
}

func (m *Memory) PutRecommendation(r models.Recommendation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.recommendations[r.UserID]
	for i := range recs {
		if recs[i].RecipeID == r.RecipeID {
			recs[i] = r
			return
		}
	}
	m.recommendations[r.UserID] = append(recs, r)
}

func (m *Memory) ListRecommended(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	var pos *position
	if q.After != "" {
		p, err := q.After.decode(q.Store)
		if err != nil {
			return Page{}, err
		}
		pos = &p
	}

	m.mu.RLock()
	var candidates []models.Recommendation
	for _, r := range m.recommendations[q.UserID] {
		key, ok := r.Relevance(q.Store)
		if !ok {
			continue
		}
		if pos != nil && !pos.after(key, r.RecipeID) {
			continue
		}
		candidates = append(candidates, r)
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		ki, _ := candidates[i].Relevance(q.Store)
		kj, _ := candidates[j].Relevance(q.Store)
		if ki != kj {
			return ki > kj
		}
		return candidates[i].RecipeID < candidates[j].RecipeID
	})
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return pageOf(q.Store, candidates), nil
}

func (m *Memory) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListOffers(ctx context.Context, recipeID, store string) ([]models.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Offer{}, m.offers[recipeID+"/"+store]...), nil
}

func (m *Memory) ListMatches(ctx context.Context, userID, recipeID string) ([]models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Match{}, m.matches[userID+"/"+recipeID]...), nil
}

func (m *Memory) ListIngredients(ctx context.Context, recipeID string) ([]models.RecipeIngredient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RecipeIngredient{}, m.ingredients[recipeID]...), nil
}
