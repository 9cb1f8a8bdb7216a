package gateway

import (
	"encoding/base64"
	"encoding/json"

	"lagat/models"
)

// Cursor is an opaque resume token. Callers only store it and hand it back.
type Cursor string

type position struct {
	Store    string `json:"s"`
	Key      int    `json:"k"`
	RecipeID string `json:"i"`
}

func cursorAt(store string, r models.Recommendation) Cursor {
	key, _ := r.Relevance(store)
	b, _ := json.Marshal(position{Store: store, Key: key, RecipeID: r.RecipeID})
	return Cursor(base64.RawURLEncoding.EncodeToString(b))
}

func (c Cursor) decode(store string) (position, error) {
	var pos position
	b, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return pos, ErrStaleCursor
	}
	if err := json.Unmarshal(b, &pos); err != nil {
		return pos, ErrStaleCursor
	}
	if pos.Store != store {
		return pos, ErrStaleCursor
	}
	return pos, nil
}

// after reports whether an entry with the given key and id sorts strictly
// after pos in (key desc, recipe id asc) order.
func (pos position) after(key int, recipeID string) bool {
	if key != pos.Key {
		return key < pos.Key
	}
	return recipeID > pos.RecipeID
}

func pageOf(store string, entries []models.Recommendation) Page {
	page := Page{Entries: entries}
	if n := len(entries); n > 0 {
		page.Next = cursorAt(store, entries[n-1])
	}
	return page
}
