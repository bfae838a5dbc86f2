// Package routing derives the feasible graph for a query and runs the
// shortest-path search over it. Everything here is query-local: graphs,
// frontiers, and edges are built per call and discarded, never shared.
package routing

import (
	"fmt"
	"sort"
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/geo"
)

// Query is one best-path request against a snapshot.
type Query struct {
	StartID   string
	StartType airspace.NodeType
	EndID     string // always a vertiport
	Window    airspace.TimeWindow
}

// edge is a feasible straight-line connection to a node handle.
type edge struct {
	to     int
	meters float64
}

// graph is the feasible routing graph for one query, indexed by integer
// node handles.
type graph struct {
	nodes []airspace.Node
	adj   [][]edge
	start int
	end   int
}

// buildGraph derives the feasible graph from the snapshot: every vertiport
// and waypoint, plus the resolved aircraft when the query starts airborne.
// Edges are all pairwise connections not blocked by a time-overlapping
// no-fly zone, pruned so the start node has only outgoing edges and the end
// node only incoming ones. Read-only over the snapshot.
func buildGraph(snap *airspace.Snapshot, q Query, aircraftMaxAge time.Duration, now time.Time) (*graph, error) {
	startNode, err := snap.ResolveNode(q.StartID, q.StartType, aircraftMaxAge, now)
	if err != nil {
		return nil, err
	}
	endNode, err := snap.ResolveNode(q.EndID, airspace.NodeVertiport, 0, now)
	if err != nil {
		return nil, err
	}

	// Deterministic node ordering: sorted vertiports, then sorted waypoints,
	// then the aircraft start node if any.
	nodes := make([]airspace.Node, 0, len(snap.Vertiports)+len(snap.Waypoints)+1)

	ids := make([]string, 0, len(snap.Vertiports))
	for id := range snap.Vertiports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := snap.Vertiports[id]
		nodes = append(nodes, airspace.Node{ID: v.ID, Type: airspace.NodeVertiport, Position: v.Centroid()})
	}

	labels := make([]string, 0, len(snap.Waypoints))
	for label := range snap.Waypoints {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		w := snap.Waypoints[label]
		nodes = append(nodes, airspace.Node{ID: w.Label, Type: airspace.NodeWaypoint, Position: w.Position})
	}

	if q.StartType == airspace.NodeAircraft {
		nodes = append(nodes, startNode)
	}

	g := &graph{
		nodes: nodes,
		adj:   make([][]edge, len(nodes)),
		start: -1,
		end:   -1,
	}
	for i, n := range nodes {
		if n.Type == startNode.Type && n.ID == startNode.ID {
			g.start = i
		}
		if n.Type == airspace.NodeVertiport && n.ID == endNode.ID {
			g.end = i
		}
	}
	if g.start == -1 || g.end == -1 {
		// Resolution succeeded above, so the handles must exist.
		return nil, fmt.Errorf("resolved query nodes missing from node set: %w", airspace.ErrStateCorrupted)
	}

	for i := range nodes {
		if i == g.end {
			continue // end node only needs incoming edges
		}
		if nodes[i].Type == airspace.NodeAircraft && i != g.start {
			continue
		}
		for j := range nodes {
			if i == j || j == g.start {
				continue // start node only needs outgoing edges
			}
			if nodes[j].Type == airspace.NodeAircraft {
				continue // aircraft are valid only as a path start
			}
			blocked, err := edgeBlocked(snap, nodes[i].Position, nodes[j].Position, q.Window)
			if err != nil {
				return nil, err
			}
			if blocked {
				continue
			}
			g.adj[i] = append(g.adj[i], edge{
				to:     j,
				meters: geo.Haversine(nodes[i].Position, nodes[j].Position),
			})
		}
	}

	return g, nil
}

// edgeBlocked narrows the zone set through the spatial index before running
// the exact segment test.
func edgeBlocked(snap *airspace.Snapshot, a, b geo.Point, window airspace.TimeWindow) (bool, error) {
	zones, err := snap.ZonesIntersecting(geo.SegmentBBox(a, b))
	if err != nil {
		return false, err
	}
	return airspace.EdgeBlocked(a, b, zones, window), nil
}
