package domain

import "time"

// Ticket is the immutable record of an order handed to the kitchen once a
// session ends.
type Ticket struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Items     []MenuItem `json:"items"`
	Total     int        `json:"total"`
	PlacedAt  time.Time  `json:"placed_at"`
}

func (t Ticket) ItemNames() []string {
	names := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		names = append(names, it.Name)
	}
	return names
}
