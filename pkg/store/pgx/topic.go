package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

func (s *Store) AllTopics(ctx context.Context) ([]common.Topic, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT t.id, t.name, t.path, t.description,
			(SELECT count(*) FROM topic_artifacts ta WHERE ta.topic_id = t.id)
		FROM topics t
		ORDER BY t.id;
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []common.Topic
	for rows.Next() {
		var t common.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Path, &t.Description, &t.ArtifactCount); err != nil {
			return nil, mapError(err)
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

// TopicForArtifact returns nil without error when the artifact has no
// topic assignment.
func (s *Store) TopicForArtifact(ctx context.Context, artifactID string) (*common.Topic, error) {
	var t common.Topic
	err := s.conn.QueryRow(ctx, `
		SELECT t.id, t.name, t.path, t.description,
			(SELECT count(*) FROM topic_artifacts x WHERE x.topic_id = t.id)
		FROM topics t
		JOIN topic_artifacts ta ON ta.topic_id = t.id
		WHERE ta.artifact_id = $1
		LIMIT 1;
	`, artifactID).Scan(&t.ID, &t.Name, &t.Path, &t.Description, &t.ArtifactCount)
	if err != nil {
		if errors.Is(mapError(err), store.ErrNotFound) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &t, nil
}

// TopicMembers returns the topic's most recent member artifacts with
// their scores where present.
func (s *Store) TopicMembers(ctx context.Context, topicID string, limit int) ([]store.MemberArtifact, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+artifactColumns+`,
			sc.artifact_id, sc.novelty, sc.emergence, sc.obscurity, sc.discovery, sc.notified
		FROM topic_artifacts ta
		JOIN artifacts a ON a.id = ta.artifact_id
		LEFT JOIN artifact_scores sc ON sc.artifact_id = a.id
		WHERE ta.topic_id = $1
		ORDER BY a.published_at DESC
		LIMIT $2;
	`, topicID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []store.MemberArtifact
	for rows.Next() {
		var a common.Artifact
		var metadata []byte
		var scoreID *string
		var novelty, emergence, obscurity, discovery *float64
		var notified *bool
		err := rows.Scan(
			&a.ID, &a.Type, &a.Source, &a.SourceID, &a.Title, &a.Text,
			&a.URL, &a.PublishedAt, &metadata, &a.AuthorIDs,
			&scoreID, &novelty, &emergence, &obscurity, &discovery, &notified,
		)
		if err != nil {
			return nil, mapError(err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, err
			}
		}
		member := store.MemberArtifact{Artifact: a}
		if scoreID != nil {
			member.Score = &common.Score{
				ArtifactID: *scoreID,
				Novelty:    *novelty,
				Emergence:  *emergence,
				Obscurity:  *obscurity,
				Discovery:  *discovery,
				Notified:   *notified,
			}
		}
		out = append(out, member)
	}
	return out, mapError(rows.Err())
}

// TopicDailyCounts returns per-day artifact counts over the window,
// oldest day first. Bucketing happens here rather than in SQL so empty
// days appear as zeros. The series starts at the topic's first active
// day, so young or empty topics report short series instead of a long
// flat one.
func (s *Store) TopicDailyCounts(ctx context.Context, topicID string, windowDays int) ([]int, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a.published_at
		FROM topic_artifacts ta
		JOIN artifacts a ON a.id = ta.artifact_id
		WHERE ta.topic_id = $1
		  AND a.published_at >= now() - ($2::int * interval '1 day');
	`, topicID, windowDays)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	times, err := scanTimes(rows)
	if err != nil {
		return nil, err
	}
	return trimLeadingEmptyDays(bucketDaily(times, windowDays, time.Now())), nil
}

// SharedArtifactDailyCounts returns the cumulative count of artifacts
// present in both topics, per day over the window, oldest day first.
func (s *Store) SharedArtifactDailyCounts(ctx context.Context, topicIDA, topicIDB string, windowDays int) ([]int, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a.published_at
		FROM topic_artifacts ta
		JOIN topic_artifacts tb ON tb.artifact_id = ta.artifact_id
		JOIN artifacts a ON a.id = ta.artifact_id
		WHERE ta.topic_id = $1 AND tb.topic_id = $2
		  AND a.published_at >= now() - ($3::int * interval '1 day');
	`, topicIDA, topicIDB, windowDays)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	times, err := scanTimes(rows)
	if err != nil {
		return nil, err
	}

	daily := bucketDaily(times, windowDays, time.Now())
	running := 0
	for i, n := range daily {
		running += n
		daily[i] = running
	}
	return daily, nil
}

func scanTimes(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]time.Time, error) {
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, mapError(err)
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

// bucketDaily distributes timestamps into windowDays buckets ending at
// now, oldest first. Out-of-window timestamps are dropped.
// trimLeadingEmptyDays drops the zero days before the first count, so
// the series covers only the span the topic has been active.
func trimLeadingEmptyDays(counts []int) []int {
	for i, c := range counts {
		if c > 0 {
			return counts[i:]
		}
	}
	return nil
}

func bucketDaily(times []time.Time, windowDays int, now time.Time) []int {
	counts := make([]int, windowDays)
	for _, t := range times {
		ago := int(now.Sub(t).Hours() / 24)
		if ago < 0 || ago >= windowDays {
			continue
		}
		counts[windowDays-1-ago]++
	}
	return counts
}

func (s *Store) SaveTopicEvents(ctx context.Context, events []common.TopicEvent) error {
	for _, event := range events {
		details, err := json.Marshal(event.Details)
		if err != nil {
			return err
		}
		var related *string
		if event.RelatedTopicID != "" {
			related = &event.RelatedTopicID
		}
		_, err = s.conn.Exec(ctx, `
			INSERT INTO topic_events
				(id, kind, topic_id, related_topic_id, confidence, details, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING;
		`, event.ID, event.Kind, event.TopicID, related, event.Confidence, details, event.DetectedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}
