package models

import (
	"time"

	"github.com/google/uuid"
)

type WatchlistAction string

const (
	WatchlistActionAdded         WatchlistAction = "added"
	WatchlistActionRated         WatchlistAction = "rated"
	WatchlistActionStatusChanged WatchlistAction = "status_changed"
	WatchlistActionRemoved       WatchlistAction = "removed"
)

// WatchlistEvent is published by the app backend whenever a watchlist row changes.
type WatchlistEvent struct {
	EventID   uuid.UUID       `json:"event_id"`
	UserID    uuid.UUID       `json:"user_id"`
	TMDbID    int             `json:"tmdb_id"`
	MediaType MediaType       `json:"media_type"`
	Action    WatchlistAction `json:"action"`
	Status    WatchStatus     `json:"status,omitempty"`
	Rating    *int            `json:"rating,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DNAComputedEvent announces a freshly persisted content DNA record.
type DNAComputedEvent struct {
	DNA       ContentDNA `json:"dna"`
	Attempts  int        `json:"attempts"`
	Timestamp time.Time  `json:"timestamp"`
}
