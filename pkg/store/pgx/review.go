package pgx

import (
	"context"

	"github.com/lodestar-hq/lodestar/pkg/common"
)

// SaveReviewItems appends items to the review queue. This core only
// creates items; an external reviewer process consumes them.
func (s *Store) SaveReviewItems(ctx context.Context, items []common.ReviewItem) error {
	for _, item := range items {
		var secondary *string
		if item.SecondaryID != "" {
			secondary = &item.SecondaryID
		}
		_, err := s.conn.Exec(ctx, `
			INSERT INTO review_items
				(id, kind, primary_id, secondary_id, similarity, reasoning, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING;
		`, item.ID, item.Kind, item.PrimaryID, secondary, item.Similarity, item.Reasoning, item.CreatedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}
