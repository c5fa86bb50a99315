package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamsense/recengine/pkg/models"
)

type WatchlistRepository struct {
	db Querier
}

func NewWatchlistRepository(db Querier) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// ListByUser loads the user's full watchlist history, newest first.
func (r *WatchlistRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WatchlistItem, error) {
	query := `
		SELECT id, user_id, tmdb_id, media_type, status, rating, title,
			COALESCE(genre_ids, '{}'), created_at, updated_at
		FROM watchlist_items
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		if IsMissingTable(err) {
			return []models.WatchlistItem{}, nil
		}
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	items := []models.WatchlistItem{}
	for rows.Next() {
		var item models.WatchlistItem
		var mediaType, status string
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.TMDbID, &mediaType, &status, &item.Rating,
			&item.Title, &item.GenreIDs, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		item.MediaType = models.MediaType(mediaType)
		item.Status = models.WatchStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read watchlist rows: %w", err)
	}
	return items, nil
}
