package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/streamsense/recengine/pkg/models"
)

type DNARepository struct {
	db Querier
}

func NewDNARepository(db Querier) *DNARepository {
	return &DNARepository{db: db}
}

const dnaColumns = `tmdb_id, media_type, tone, theme, setting, pacing, complexity,
			COALESCE(genre_ids, '{}'), directors, actors, keywords, computed_at`

// Exists is the point lookup used before enqueueing a computation. A missing
// table counts as not found.
func (r *DNARepository) Exists(ctx context.Context, ref models.ContentRef) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_dna WHERE media_type = $1 AND tmdb_id = $2)`,
		string(ref.MediaType), ref.TMDbID,
	).Scan(&exists)
	if err != nil {
		if IsMissingTable(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check content dna: %w", err)
	}
	return exists, nil
}

// ExistingKeys bulk-checks which refs already have DNA and returns their keys.
func (r *DNARepository) ExistingKeys(ctx context.Context, refs []models.ContentRef) (models.KeySet, error) {
	found := models.KeySet{}
	if len(refs) == 0 {
		return found, nil
	}

	types := make([]string, len(refs))
	ids := make([]int, len(refs))
	for i, ref := range refs {
		types[i] = string(ref.MediaType)
		ids[i] = ref.TMDbID
	}

	rows, err := r.db.Query(ctx, `
		SELECT d.media_type, d.tmdb_id
		FROM content_dna d
		JOIN unnest($1::text[], $2::int[]) AS k(media_type, tmdb_id)
			ON d.media_type = k.media_type AND d.tmdb_id = k.tmdb_id`,
		types, ids,
	)
	if err != nil {
		if IsMissingTable(err) {
			return found, nil
		}
		return nil, fmt.Errorf("failed to check content dna: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mediaType string
		var id int
		if err := rows.Scan(&mediaType, &id); err != nil {
			return nil, fmt.Errorf("failed to scan content dna key: %w", err)
		}
		found.Add(models.ContentKey(models.MediaType(mediaType), id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content dna keys: %w", err)
	}
	return found, nil
}

func (r *DNARepository) Get(ctx context.Context, ref models.ContentRef) (*models.ContentDNA, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+dnaColumns+` FROM content_dna WHERE media_type = $1 AND tmdb_id = $2`,
		string(ref.MediaType), ref.TMDbID,
	)
	dna, err := scanDNA(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || IsMissingTable(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get content dna: %w", err)
	}
	return dna, nil
}

// GetMany returns the DNA records that exist for refs, keyed by content key.
func (r *DNARepository) GetMany(ctx context.Context, refs []models.ContentRef) (map[string]*models.ContentDNA, error) {
	out := make(map[string]*models.ContentDNA)
	if len(refs) == 0 {
		return out, nil
	}

	types := make([]string, len(refs))
	ids := make([]int, len(refs))
	for i, ref := range refs {
		types[i] = string(ref.MediaType)
		ids[i] = ref.TMDbID
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+dnaColumns+`
		FROM content_dna
		WHERE (media_type, tmdb_id) IN (SELECT * FROM unnest($1::text[], $2::int[]))`,
		types, ids,
	)
	if err != nil {
		if IsMissingTable(err) {
			return out, nil
		}
		return nil, fmt.Errorf("failed to query content dna: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		dna, err := scanDNA(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content dna: %w", err)
		}
		out[dna.Ref().Key()] = dna
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content dna rows: %w", err)
	}
	return out, nil
}

func (r *DNARepository) Upsert(ctx context.Context, dna *models.ContentDNA) error {
	vectors, err := encodeVectors(&dna.TasteVectors)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO content_dna (
			tmdb_id, media_type, tone, theme, setting, pacing, complexity,
			genre_ids, directors, actors, keywords, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (media_type, tmdb_id) DO UPDATE SET
			tone = EXCLUDED.tone,
			theme = EXCLUDED.theme,
			setting = EXCLUDED.setting,
			pacing = EXCLUDED.pacing,
			complexity = EXCLUDED.complexity,
			genre_ids = EXCLUDED.genre_ids,
			directors = EXCLUDED.directors,
			actors = EXCLUDED.actors,
			keywords = EXCLUDED.keywords,
			computed_at = EXCLUDED.computed_at`,
		dna.TMDbID, string(dna.MediaType), vectors[0], vectors[1], vectors[2], vectors[3], vectors[4],
		dna.GenreIDs, dna.Directors, dna.Actors, dna.Keywords, dna.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content dna: %w", err)
	}
	return nil
}

func scanDNA(row pgx.Row) (*models.ContentDNA, error) {
	var dna models.ContentDNA
	var mediaType string
	var tone, theme, setting, pacing, complexity []byte
	if err := row.Scan(
		&dna.TMDbID, &mediaType, &tone, &theme, &setting, &pacing, &complexity,
		&dna.GenreIDs, &dna.Directors, &dna.Actors, &dna.Keywords, &dna.ComputedAt,
	); err != nil {
		return nil, err
	}
	dna.MediaType = models.MediaType(mediaType)
	if err := decodeVectors(&dna.TasteVectors, tone, theme, setting, pacing, complexity); err != nil {
		return nil, err
	}
	return &dna, nil
}
