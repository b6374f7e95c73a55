package pgx

import (
	"context"
	"encoding/json"

	"github.com/lodestar-hq/lodestar/pkg/common"
)

// InsertRelationships writes edges, silently ignoring duplicates on
// (source, target, type), and reports how many rows actually landed.
func (s *Store) InsertRelationships(ctx context.Context, rels []common.Relationship) (int, error) {
	inserted := 0
	for _, rel := range rels {
		metadata, err := json.Marshal(rel.Metadata)
		if err != nil {
			return inserted, err
		}
		tag, err := s.conn.Exec(ctx, `
			INSERT INTO relationships
				(source_id, target_id, type, confidence, method, metadata, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (source_id, target_id, type) DO NOTHING;
		`, rel.SourceID, rel.TargetID, rel.Type, rel.Confidence, rel.Method, metadata)
		if err != nil {
			return inserted, mapError(err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// RelationshipsForArtifact returns edges touching the artifact in
// either direction, at or above minConfidence.
func (s *Store) RelationshipsForArtifact(ctx context.Context, artifactID string, minConfidence float64) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, target_id, type, confidence, method, metadata
		FROM relationships
		WHERE (source_id = $1 OR target_id = $1) AND confidence >= $2
		ORDER BY confidence DESC;
	`, artifactID, minConfidence)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []common.Relationship
	for rows.Next() {
		var rel common.Relationship
		var metadata []byte
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Type, &rel.Confidence, &rel.Method, &metadata); err != nil {
			return nil, mapError(err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rel.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, rel)
	}
	return out, mapError(rows.Err())
}
