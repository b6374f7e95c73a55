package common

import "time"

// ArtifactType classifies an ingested item by its content form.
type ArtifactType string

const (
	ArtifactPreprint ArtifactType = "preprint"
	ArtifactRepo     ArtifactType = "repo"
	ArtifactRelease  ArtifactType = "release"
	ArtifactPost     ArtifactType = "post"
	ArtifactTweet    ArtifactType = "tweet"
)

// Artifact is one ingested content item (paper, repo, release, post).
// Identity fields (ID, Type, Source, SourceID) are immutable after
// ingestion; score and relationship state is maintained by the engines.
type Artifact struct {
	ID          string         `json:"id"`
	Type        ArtifactType   `json:"type"`
	Source      string         `json:"source"`
	SourceID    string         `json:"source_id"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	URL         string         `json:"url"`
	PublishedAt time.Time      `json:"published_at"`
	AuthorIDs   []string       `json:"author_ids"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Score holds the discovery signals for one artifact. All four values
// are kept in [0,100]; recomputation overwrites, never accumulates.
type Score struct {
	ArtifactID string  `json:"artifact_id"`
	Novelty    float64 `json:"novelty"`
	Emergence  float64 `json:"emergence"`
	Obscurity  float64 `json:"obscurity"`
	Discovery  float64 `json:"discovery_score"`
	Notified   bool    `json:"notified"`
}

// Account links an entity to a platform identity.
type Account struct {
	Platform   string         `json:"platform"`
	Handle     string         `json:"handle"`
	Confidence float64        `json:"confidence"`
	Profile    map[string]any `json:"profile,omitempty"`
}

// Entity is a person, lab, or organization identity record. Entities are
// never partially deleted: a duplicate is absorbed into a primary, which
// takes over its accounts and artifact author-links.
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Homepage    string    `json:"homepage"`
	Accounts    []Account `json:"accounts"`

	// Derived profile aggregates. Maintained elsewhere; a merge keeps
	// the richer record so these survive.
	InfluenceScore float64  `json:"influence_score"`
	Expertise      []string `json:"expertise"`
}

// Topic is a named taxonomy node aggregating related artifacts. The
// centroid embedding is derived and recomputable, not persisted verbatim.
type Topic struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	Description   string `json:"description"`
	ArtifactCount int    `json:"artifact_count"`
}

// RelationType describes how a source artifact relates to a target.
type RelationType string

const (
	RelationCite      RelationType = "cite"
	RelationReference RelationType = "reference"
	RelationDiscuss   RelationType = "discuss"
	RelationImplement RelationType = "implement"
	RelationMention   RelationType = "mention"
	RelationRelated   RelationType = "related"
)

// DetectionMethod records which detector produced a relationship.
type DetectionMethod string

const (
	MethodIDMatch  DetectionMethod = "id-match"
	MethodURLMatch DetectionMethod = "url-match"
	MethodSemantic DetectionMethod = "semantic-similarity"
)

// Relationship is a directed, typed, confidence-scored edge between two
// artifacts. (SourceID, TargetID, Type) is unique; self-edges are
// forbidden. Edges are never mutated, only superseded by later runs.
type Relationship struct {
	SourceID   string          `json:"source_id"`
	TargetID   string          `json:"target_id"`
	Type       RelationType    `json:"type"`
	Confidence float64         `json:"confidence"`
	Method     DetectionMethod `json:"method"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// TopicEventKind labels a detected topic-evolution signal.
type TopicEventKind string

const (
	TopicMergeCandidate TopicEventKind = "merge-candidate"
	TopicSplitCandidate TopicEventKind = "split-candidate"
)

// TopicEvent is an evolution signal emitted by the topic engine. Events
// are advisory: applying a structural merge or split is an operator
// decision, never automatic.
type TopicEvent struct {
	ID             string         `json:"id"`
	Kind           TopicEventKind `json:"kind"`
	TopicID        string         `json:"topic_id"`
	RelatedTopicID string         `json:"related_topic_id,omitempty"`
	Confidence     float64        `json:"confidence"`
	Details        map[string]any `json:"details,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
}

// ReviewItem is a request for human review. This core only creates
// review items; an external reviewer process consumes them.
type ReviewItem struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	PrimaryID   string    `json:"primary_id"`
	SecondaryID string    `json:"secondary_id,omitempty"`
	Similarity  float64   `json:"similarity"`
	Reasoning   string    `json:"reasoning,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunStats summarizes one engine invocation. Per-item failures increment
// Errors and never abort the run, so silent data loss stays observable.
type RunStats struct {
	Processed       int `json:"processed"`
	Scored          int `json:"scored,omitempty"`
	Linked          int `json:"linked,omitempty"`
	Merged          int `json:"merged,omitempty"`
	CandidatesFound int `json:"candidates_found,omitempty"`
	ReviewsCreated  int `json:"reviews_created,omitempty"`
	EventsEmitted   int `json:"events_emitted,omitempty"`
	Errors          int `json:"errors"`
}

// Add accumulates another stats value into s.
func (s *RunStats) Add(other RunStats) {
	s.Processed += other.Processed
	s.Scored += other.Scored
	s.Linked += other.Linked
	s.Merged += other.Merged
	s.CandidatesFound += other.CandidatesFound
	s.ReviewsCreated += other.ReviewsCreated
	s.EventsEmitted += other.EventsEmitted
	s.Errors += other.Errors
}
