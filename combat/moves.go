// Package combat holds the move catalog and the pure move resolver used by battles.
package combat

import (
	"strings"

	"github.com/gosimple/slug"
)

// Move is a static combat move.
type Move struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Damage      int    `json:"damage"`
	Accuracy    int    `json:"accuracy"` // percent
	Description string `json:"description"`
}

var catalog = []Move{
	{ID: "strike", Name: "Strike", Damage: 25, Accuracy: 90, Description: "A reliable physical attack"},
	{ID: "power_attack", Name: "Power Attack", Damage: 40, Accuracy: 70, Description: "High damage but less accurate"},
	{ID: "quick_strike", Name: "Quick Strike", Damage: 15, Accuracy: 95, Description: "Fast and accurate but weak"},
	{ID: "critical_hit", Name: "Critical Hit", Damage: 35, Accuracy: 75, Description: "Aims for weak points"},
}

var byKey = func() map[string]Move {
	m := make(map[string]Move, len(catalog)*2)
	for _, mv := range catalog {
		m[moveKey(mv.ID)] = mv
		m[moveKey(mv.Name)] = mv
	}
	return m
}()

// moveKey folds ids and display names onto one form: "Power Attack",
// "power-attack" and "power_attack" all become "power_attack".
func moveKey(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "_")
}

// Moves returns a copy of the catalog in display order.
func Moves() []Move {
	out := make([]Move, len(catalog))
	copy(out, catalog)
	return out
}

// LookupMove resolves a move by id or display name.
func LookupMove(idOrName string) (Move, bool) {
	if strings.TrimSpace(idOrName) == "" {
		return Move{}, false
	}
	mv, ok := byKey[moveKey(idOrName)]
	return mv, ok
}
