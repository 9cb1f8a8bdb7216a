// Package pantry owns a user's pantry ingredients: the authoritative store,
// the live snapshot hub and the optimistic list shown to the user.
package pantry

import "lagat/models"

// Item is a displayed pantry entry. Optimistic items have a temporary id and
// have not been confirmed by a snapshot yet.
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Optimistic bool   `json:"isOptimistic,omitempty"`
}

// State is the optimistic list. Items are ordered newest first.
type State struct {
	Items []Item `json:"items"`
	Err   string `json:"error,omitempty"`

	// pending hides removed server items from snapshots taken before the
	// delete landed. true while the remove is in flight; false once it was
	// confirmed, until a snapshot without the id shows the delete.
	pending map[string]bool
}

// Event is one input to Reduce.
type Event interface {
	apply(State) State
}

// Added is a local add intent.
type Added struct {
	TempID string
	Name   string
}

// Removed is a local remove intent.
type Removed struct {
	Item Item
}

// Snapshot is a fresh server view of the pantry.
type Snapshot struct {
	Items []models.PantryItem
}

// AddFailed rolls back the optimistic item with TempID.
type AddFailed struct {
	TempID string
	Err    string
}

// RemoveFailed re-inserts Item at the head.
type RemoveFailed struct {
	Item Item
	Err  string
}

// RemoveConfirmed marks the removal of ID as done. The id stays hidden
// until a snapshot that lacks it arrives.
type RemoveConfirmed struct {
	ID string
}

// Reduce returns the state after ev. The input state is not modified.
func Reduce(s State, ev Event) State {
	return ev.apply(s.clone())
}

func (s State) clone() State {
	out := State{Items: append([]Item{}, s.Items...), Err: s.Err}
	if len(s.pending) > 0 {
		out.pending = make(map[string]bool, len(s.pending))
		for id, inFlight := range s.pending {
			out.pending[id] = inFlight
		}
	}
	return out
}

// PendingRemoval reports whether the removal of id is still in flight.
func (s State) PendingRemoval(id string) bool {
	return s.pending[id]
}

func (e Added) apply(s State) State {
	s.Items = append([]Item{{ID: e.TempID, Name: e.Name, Optimistic: true}}, s.Items...)
	s.Err = ""
	return s
}

func (e Removed) apply(s State) State {
	s.Items = without(s.Items, e.Item.ID)
	if !e.Item.Optimistic {
		if s.pending == nil {
			s.pending = make(map[string]bool)
		}
		s.pending[e.Item.ID] = true
	}
	return s
}

func (e Snapshot) apply(s State) State {
	serverNames := make(map[string]bool, len(e.Items))
	seen := make(map[string]bool, len(e.Items))
	confirmed := make([]Item, 0, len(e.Items))
	for _, it := range e.Items {
		seen[it.ID] = true
		if _, hidden := s.pending[it.ID]; hidden || serverNames[it.Name] {
			continue
		}
		serverNames[it.Name] = true
		confirmed = append(confirmed, Item{ID: it.ID, Name: it.Name})
	}

	var items []Item
	for _, it := range s.Items {
		if it.Optimistic && !serverNames[it.Name] {
			items = append(items, it)
		}
	}
	s.Items = append(items, confirmed...)

	for id, inFlight := range s.pending {
		if !inFlight && !seen[id] {
			delete(s.pending, id)
		}
	}
	return s
}

func (e AddFailed) apply(s State) State {
	s.Items = without(s.Items, e.TempID)
	s.Err = e.Err
	return s
}

func (e RemoveFailed) apply(s State) State {
	delete(s.pending, e.Item.ID)
	s.Items = append([]Item{e.Item}, without(s.Items, e.Item.ID)...)
	s.Err = e.Err
	return s
}

func (e RemoveConfirmed) apply(s State) State {
	if _, ok := s.pending[e.ID]; ok {
		s.pending[e.ID] = false
	}
	return s
}

func without(items []Item, id string) []Item {
	out := items[:0:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
