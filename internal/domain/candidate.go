package domain

import "time"

// Candidate is the image chosen for a region, together with the catalog entry
// that supplied it. It lives for a single request, or in a selection cache.
type Candidate struct {
	EntryIndex int       `json:"entry_index"`
	EntryName  string    `json:"entry_name"`
	Collection string    `json:"collection"`
	ImageID    string    `json:"image_id"`
	Cloud      float64   `json:"cloud"`
	StartTime  time.Time `json:"start_time"`
	// Bands is empty when the listing did not report them.
	Bands []string `json:"bands,omitempty"`
}
