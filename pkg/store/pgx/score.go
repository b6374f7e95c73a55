package pgx

import (
	"context"
	"errors"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// UpsertScore overwrites the artifact's score row atomically.
// Recomputation replaces, never accumulates.
func (s *Store) UpsertScore(ctx context.Context, score common.Score) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO artifact_scores
			(artifact_id, novelty, emergence, obscurity, discovery, notified, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (artifact_id) DO UPDATE SET
			novelty   = EXCLUDED.novelty,
			emergence = EXCLUDED.emergence,
			obscurity = EXCLUDED.obscurity,
			discovery = EXCLUDED.discovery,
			scored_at = now();
	`, score.ArtifactID, score.Novelty, score.Emergence, score.Obscurity, score.Discovery, score.Notified)
	return mapError(err)
}

// GetScore returns nil without error when the artifact has no score.
func (s *Store) GetScore(ctx context.Context, artifactID string) (*common.Score, error) {
	var score common.Score
	err := s.conn.QueryRow(ctx, `
		SELECT artifact_id, novelty, emergence, obscurity, discovery, notified
		FROM artifact_scores
		WHERE artifact_id = $1;
	`, artifactID).Scan(
		&score.ArtifactID, &score.Novelty, &score.Emergence,
		&score.Obscurity, &score.Discovery, &score.Notified,
	)
	if err != nil {
		if errors.Is(mapError(err), store.ErrNotFound) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &score, nil
}
