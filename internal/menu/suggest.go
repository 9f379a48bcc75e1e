package menu

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score for a deal to be offered
// as a correction of a misheard name.
const suggestThreshold = 0.85

// Suggest returns the deal name closest to name when it is similar enough to
// be worth offering as "did you mean". It never affects FindByName.
func (c *Catalog) Suggest(name string) (string, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return "", false
	}

	best, bestScore := "", 0.0
	for _, item := range c.items {
		score := matchr.JaroWinkler(query, strings.ToLower(item.Name), false)
		if score > bestScore {
			best, bestScore = item.Name, score
		}
	}

	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}
