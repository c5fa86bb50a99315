package models

import "time"

// QueueItem is one pending content-DNA computation.
type QueueItem struct {
	TMDbID     int       `json:"tmdb_id"`
	MediaType  MediaType `json:"media_type"`
	RetryCount int       `json:"retry_count"`
	AddedAt    time.Time `json:"added_at"`
}

func (q QueueItem) Key() string {
	return ContentKey(q.MediaType, q.TMDbID)
}

// QueueStatus is a point-in-time snapshot of the DNA queue.
type QueueStatus struct {
	Queued     int  `json:"queued"`
	Processing int  `json:"processing"`
	Retrying   int  `json:"retrying"`
	Completed  int  `json:"completed"`
	Abandoned  int  `json:"abandoned"`
	Running    bool `json:"running"`
}

// Pending counts items that still have work ahead of them.
func (s QueueStatus) Pending() int {
	return s.Queued + s.Processing + s.Retrying
}
