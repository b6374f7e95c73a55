package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

func (s *Store) AllEntities(ctx context.Context) ([]common.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT id, name, type, description, homepage, influence_score, expertise
		FROM entities
		ORDER BY id;
	`)
}

func (s *Store) GetEntitiesByIDs(ctx context.Context, ids []string) ([]common.Entity, error) {
	var out []common.Entity
	err := store.ChunkRange(len(ids), idChunkSize, func(start, end int) error {
		batch, err := s.queryEntities(ctx, `
			SELECT id, name, type, description, homepage, influence_score, expertise
			FROM entities
			WHERE id = ANY($1)
			ORDER BY id;
		`, ids[start:end])
		if err != nil {
			return err
		}
		out = append(out, batch...)
		return nil
	})
	return out, err
}

func (s *Store) queryEntities(ctx context.Context, sql string, args ...any) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entities []common.Entity
	index := make(map[string]int)
	for rows.Next() {
		var e common.Entity
		err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Homepage, &e.InfluenceScore, &e.Expertise)
		if err != nil {
			return nil, mapError(err)
		}
		index[e.ID] = len(entities)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}

	accountRows, err := s.conn.Query(ctx, `
		SELECT entity_id, platform, handle, confidence, profile
		FROM entity_accounts
		WHERE entity_id = ANY($1);
	`, ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer accountRows.Close()

	for accountRows.Next() {
		var entityID string
		var account common.Account
		var profile []byte
		if err := accountRows.Scan(&entityID, &account.Platform, &account.Handle, &account.Confidence, &profile); err != nil {
			return nil, mapError(err)
		}
		if len(profile) > 0 {
			if err := json.Unmarshal(profile, &account.Profile); err != nil {
				return nil, err
			}
		}
		if i, ok := index[entityID]; ok {
			entities[i].Accounts = append(entities[i].Accounts, account)
		}
	}
	return entities, mapError(accountRows.Err())
}

// MergeEntities re-points accounts and artifact author-links from the
// duplicate to the primary, then deletes the duplicate, in one
// transaction. Rows that would collide with existing primary rows are
// dropped instead of moved.
func (s *Store) MergeEntities(ctx context.Context, primaryID, duplicateID string) error {
	if primaryID == duplicateID {
		return fmt.Errorf("merge entities: primary and duplicate are the same id %s", primaryID)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		UPDATE entity_accounts ea SET entity_id = $1
		WHERE ea.entity_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM entity_accounts p
			WHERE p.entity_id = $1 AND p.platform = ea.platform AND p.handle = ea.handle
		  );
	`, primaryID, duplicateID)
	if err != nil {
		return mapError(err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM entity_accounts WHERE entity_id = $1;`, duplicateID); err != nil {
		return mapError(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE artifact_authors aa SET entity_id = $1
		WHERE aa.entity_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM artifact_authors p
			WHERE p.entity_id = $1 AND p.artifact_id = aa.artifact_id
		  );
	`, primaryID, duplicateID)
	if err != nil {
		return mapError(err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM artifact_authors WHERE entity_id = $1;`, duplicateID); err != nil {
		return mapError(err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1;`, duplicateID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return mapError(tx.Commit(ctx))
}
