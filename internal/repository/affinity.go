package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamsense/recengine/pkg/models"
)

type AffinityRepository struct {
	db Querier
}

func NewAffinityRepository(db Querier) *AffinityRepository {
	return &AffinityRepository{db: db}
}

// ListByUser returns every affinity row for the user in stored order.
func (r *AffinityRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GenreAffinity, error) {
	query := `
		SELECT user_id, genre_id, genre_name, affinity_score, interaction_count, last_interaction_at
		FROM user_genre_affinity
		WHERE user_id = $1
		ORDER BY affinity_score DESC, genre_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		if IsMissingTable(err) {
			return []models.GenreAffinity{}, nil
		}
		return nil, fmt.Errorf("failed to query genre affinity: %w", err)
	}
	defer rows.Close()

	out := []models.GenreAffinity{}
	for rows.Next() {
		var a models.GenreAffinity
		if err := rows.Scan(&a.UserID, &a.GenreID, &a.GenreName, &a.AffinityScore, &a.InteractionCount, &a.LastInteractionAt); err != nil {
			return nil, fmt.Errorf("failed to scan genre affinity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read genre affinity rows: %w", err)
	}
	return out, nil
}
