package pgx

import (
	"context"
	"encoding/json"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// artifactColumns is the shared select list; author ids come from a
// scalar subquery so callers never need a GROUP BY.
const artifactColumns = `
	a.id, a.type, a.source, a.source_id, a.title, a.body, a.url,
	a.published_at, a.metadata,
	(SELECT coalesce(array_agg(aa.entity_id), '{}')
	 FROM artifact_authors aa WHERE aa.artifact_id = a.id)
`

func scanArtifact(row pgxv5.Row) (common.Artifact, error) {
	var a common.Artifact
	var metadata []byte
	err := row.Scan(
		&a.ID, &a.Type, &a.Source, &a.SourceID, &a.Title, &a.Text,
		&a.URL, &a.PublishedAt, &metadata, &a.AuthorIDs,
	)
	if err != nil {
		return common.Artifact{}, mapError(err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return common.Artifact{}, err
		}
	}
	return a, nil
}

func (s *Store) queryArtifacts(ctx context.Context, sql string, args ...any) ([]common.Artifact, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []common.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err())
}

func (s *Store) GetArtifact(ctx context.Context, id string) (common.Artifact, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts a
		WHERE a.id = $1;
	`, id)
	return scanArtifact(row)
}

func (s *Store) GetArtifactsByIDs(ctx context.Context, ids []string) ([]common.Artifact, error) {
	var out []common.Artifact
	// Large id lists are chunked to keep the bind array bounded.
	err := store.ChunkRange(len(ids), idChunkSize, func(start, end int) error {
		batch, err := s.queryArtifacts(ctx, `
			SELECT `+artifactColumns+`
			FROM artifacts a
			WHERE a.id = ANY($1);
		`, ids[start:end])
		if err != nil {
			return err
		}
		out = append(out, batch...)
		return nil
	})
	return out, err
}

func (s *Store) ArtifactsNeedingScoring(ctx context.Context, limit int) ([]common.Artifact, error) {
	return s.queryArtifacts(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts a
		LEFT JOIN artifact_scores sc ON sc.artifact_id = a.id
		WHERE sc.artifact_id IS NULL
		ORDER BY a.published_at DESC
		LIMIT $1;
	`, limit)
}

func (s *Store) ArtifactsNeedingLinking(ctx context.Context, limit int) ([]common.Artifact, error) {
	return s.queryArtifacts(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts a
		WHERE a.linked_at IS NULL
		ORDER BY a.published_at DESC
		LIMIT $1;
	`, limit)
}

func (s *Store) MarkArtifactLinked(ctx context.Context, id string, at time.Time) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE artifacts SET linked_at = $2 WHERE id = $1;
	`, id, at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetArtifactEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE artifacts SET embedding = $2 WHERE id = $1;
	`, id, pgvector.NewVector(embedding))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindArtifactsByIdentifier(ctx context.Context, identifier string) ([]common.Artifact, error) {
	return s.queryArtifacts(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts a
		WHERE a.source_id = $1 OR a.url ILIKE '%' || $1 || '%';
	`, identifier)
}

func (s *Store) FindSimilarArtifacts(ctx context.Context, embedding []float32, excludeSource string, limit int) ([]store.SimilarArtifact, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+artifactColumns+`,
			1 - (a.embedding <=> $1) AS similarity
		FROM artifacts a
		WHERE a.embedding IS NOT NULL AND a.source <> $2
		ORDER BY a.embedding <=> $1
		LIMIT $3;
	`, pgvector.NewVector(embedding), excludeSource, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []store.SimilarArtifact
	for rows.Next() {
		var a common.Artifact
		var metadata []byte
		var similarity float64
		err := rows.Scan(
			&a.ID, &a.Type, &a.Source, &a.SourceID, &a.Title, &a.Text,
			&a.URL, &a.PublishedAt, &metadata, &a.AuthorIDs, &similarity,
		)
		if err != nil {
			return nil, mapError(err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, store.SimilarArtifact{Artifact: a, Similarity: similarity})
	}
	return out, mapError(rows.Err())
}
