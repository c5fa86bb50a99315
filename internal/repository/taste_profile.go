package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/streamsense/recengine/pkg/models"
)

type TasteProfileRepository struct {
	db Querier
}

func NewTasteProfileRepository(db Querier) *TasteProfileRepository {
	return &TasteProfileRepository{db: db}
}

// Get returns ErrNotFound when the user has no profile or the table is missing.
func (r *TasteProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*models.UserTasteProfile, error) {
	query := `
		SELECT user_id, tone, theme, setting, pacing, complexity,
			top_genres, top_directors, top_actors, top_keywords,
			watched_count, avg_rating, taste_signature, confidence,
			discovery_opportunities, updated_at
		FROM user_taste_profiles
		WHERE user_id = $1`

	var p models.UserTasteProfile
	var tone, theme, setting, pacing, complexity []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &tone, &theme, &setting, &pacing, &complexity,
		&p.TopGenres, &p.TopDirectors, &p.TopActors, &p.TopKeywords,
		&p.WatchedCount, &p.AvgRating, &p.TasteSignature, &p.Confidence,
		&p.DiscoveryOpportunities, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || IsMissingTable(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get taste profile: %w", err)
	}

	if err := decodeVectors(&p.TasteVectors, tone, theme, setting, pacing, complexity); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert overwrites the user's profile wholesale.
func (r *TasteProfileRepository) Upsert(ctx context.Context, p *models.UserTasteProfile) error {
	vectors, err := encodeVectors(&p.TasteVectors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_taste_profiles (
			user_id, tone, theme, setting, pacing, complexity,
			top_genres, top_directors, top_actors, top_keywords,
			watched_count, avg_rating, taste_signature, confidence,
			discovery_opportunities, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			tone = EXCLUDED.tone,
			theme = EXCLUDED.theme,
			setting = EXCLUDED.setting,
			pacing = EXCLUDED.pacing,
			complexity = EXCLUDED.complexity,
			top_genres = EXCLUDED.top_genres,
			top_directors = EXCLUDED.top_directors,
			top_actors = EXCLUDED.top_actors,
			top_keywords = EXCLUDED.top_keywords,
			watched_count = EXCLUDED.watched_count,
			avg_rating = EXCLUDED.avg_rating,
			taste_signature = EXCLUDED.taste_signature,
			confidence = EXCLUDED.confidence,
			discovery_opportunities = EXCLUDED.discovery_opportunities,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		p.UserID, vectors[0], vectors[1], vectors[2], vectors[3], vectors[4],
		p.TopGenres, p.TopDirectors, p.TopActors, p.TopKeywords,
		p.WatchedCount, p.AvgRating, p.TasteSignature, p.Confidence,
		p.DiscoveryOpportunities, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert taste profile: %w", err)
	}
	return nil
}

// encodeVectors returns the five vectors as JSON in tone, theme, setting,
// pacing, complexity order.
func encodeVectors(v *models.TasteVectors) ([][]byte, error) {
	dims := v.Dimensions()
	out := make([][]byte, 0, len(dims))
	for _, d := range dims {
		b, err := json.Marshal(*d.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to encode taste vector: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeVectors(v *models.TasteVectors, raw ...[]byte) error {
	*v = models.NewTasteVectors()
	for i, d := range v.Dimensions() {
		if len(raw[i]) == 0 {
			continue
		}
		var decoded models.WeightVector
		if err := json.Unmarshal(raw[i], &decoded); err != nil {
			return fmt.Errorf("failed to decode taste vector: %w", err)
		}
		// Unknown keys are dropped so vectors stay on the fixed taxonomy.
		for _, k := range d.Keys {
			(*d.Vector)[k] = decoded[k]
		}
	}
	return nil
}
