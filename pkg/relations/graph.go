package relations

import (
	"context"
	"fmt"
	"sort"

	"github.com/lodestar-hq/lodestar/pkg/common"
)

// Graph is a node/edge set around a root artifact, for visualization.
type Graph struct {
	RootID string                `json:"root_id"`
	Nodes  []common.Artifact     `json:"nodes"`
	Edges  []common.Relationship `json:"edges"`
}

// CitationGraph walks relationships breadth-first from the root in both
// directions, up to depth hops (clamped to 1..3), keeping edges at or
// above minConfidence. Visited tracking terminates cyclic graphs.
func (e *Engine) CitationGraph(ctx context.Context, rootID string, depth int, minConfidence float64) (Graph, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	if _, err := e.store.GetArtifact(ctx, rootID); err != nil {
		return Graph{}, fmt.Errorf("root artifact: %w", err)
	}

	visited := map[string]bool{rootID: true}
	edgeSeen := make(map[string]bool)
	var edges []common.Relationship

	frontier := []string{rootID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			rels, err := e.store.RelationshipsForArtifact(ctx, id, minConfidence)
			if err != nil {
				return Graph{}, fmt.Errorf("relationships for %s: %w", id, err)
			}
			for _, rel := range rels {
				key := rel.SourceID + "\x00" + rel.TargetID + "\x00" + string(rel.Type)
				if !edgeSeen[key] {
					edgeSeen[key] = true
					edges = append(edges, rel)
				}

				for _, neighbor := range []string{rel.SourceID, rel.TargetID} {
					if !visited[neighbor] {
						visited[neighbor] = true
						next = append(next, neighbor)
					}
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes, err := e.store.GetArtifactsByIDs(ctx, ids)
	if err != nil {
		return Graph{}, fmt.Errorf("load graph nodes: %w", err)
	}

	return Graph{RootID: rootID, Nodes: nodes, Edges: edges}, nil
}
