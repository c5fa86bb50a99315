package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/pkg/models"
)

// InteractionProcessor reacts to watchlist changes made elsewhere: it queues
// DNA for new titles and folds watched or rated titles into the taste profile.
type InteractionProcessor struct {
	queue    DNAQueueInterface
	profiles TasteProfileServiceInterface
	logger   *logrus.Logger
}

func NewInteractionProcessor(queue DNAQueueInterface, profiles TasteProfileServiceInterface, logger *logrus.Logger) *InteractionProcessor {
	return &InteractionProcessor{queue: queue, profiles: profiles, logger: logger}
}

// Handle applies one watchlist event. Removal forces a full rebuild since a
// title cannot be subtracted from decayed vectors.
func (p *InteractionProcessor) Handle(ctx context.Context, event models.WatchlistEvent) error {
	if event.TMDbID <= 0 || !event.MediaType.Valid() {
		return fmt.Errorf("invalid content reference %s-%d", event.MediaType, event.TMDbID)
	}
	ref := models.ContentRef{TMDbID: event.TMDbID, MediaType: event.MediaType}

	log := p.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"user_id":  event.UserID,
		"content":  ref.Key(),
		"action":   event.Action,
	})

	switch event.Action {
	case models.WatchlistActionAdded, models.WatchlistActionStatusChanged, models.WatchlistActionRated:
		if p.queue.Enqueue(ctx, ref.TMDbID, ref.MediaType) {
			log.Debug("Queued content DNA for watchlist title")
		}
		if !affectsTaste(event) {
			return nil
		}
		if _, err := p.profiles.ApplyInteraction(ctx, event.UserID, ref, event.Rating); err != nil {
			return fmt.Errorf("failed to apply interaction: %w", err)
		}
		log.Debug("Applied interaction to taste profile")

	case models.WatchlistActionRemoved:
		if _, err := p.profiles.Refresh(ctx, event.UserID); err != nil && !errors.Is(err, ErrRebuildInProgress) {
			return fmt.Errorf("failed to rebuild taste profile: %w", err)
		}
		log.Debug("Rebuilt taste profile after removal")

	default:
		return fmt.Errorf("unknown watchlist action %q", event.Action)
	}
	return nil
}

// affectsTaste reports whether the event says the user has actually seen or rated the title.
func affectsTaste(event models.WatchlistEvent) bool {
	if event.Action == models.WatchlistActionRated && event.Rating != nil {
		return true
	}
	return event.Status == models.WatchStatusWatched
}
