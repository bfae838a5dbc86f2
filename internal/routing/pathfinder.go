package routing

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/geo"
	"github.com/aviaro/skygraph/pkg/logger"
)

// Finder answers best-path queries against airspace snapshots. It holds no
// mutable state of its own; every search runs on query-local structures.
type Finder struct {
	corridorAltitudeMeters float64
	aircraftMaxAge         time.Duration
	logger                 *logger.Logger
}

// NewFinder creates a path finder. corridorAltitudeMeters is the altitude
// annotated on segments between ground nodes; aircraftMaxAge (0 disables)
// bounds how stale an aircraft observation may be to serve as a start node.
func NewFinder(corridorAltitudeMeters float64, aircraftMaxAge time.Duration, log *logger.Logger) *Finder {
	return &Finder{
		corridorAltitudeMeters: corridorAltitudeMeters,
		aircraftMaxAge:         aircraftMaxAge,
		logger:                 log.Named("pathfinder"),
	}
}

// BestPath finds the minimal geodesic-distance path from the query start
// node to the end vertiport, considering only edges feasible during the
// query window. Ties break by fewer hops, then by smaller node identifier,
// so repeated queries against the same snapshot return identical results.
//
// Errors: airspace.ErrNodeNotFound for unresolvable identities,
// airspace.ErrNoPath when the nodes are disconnected in the feasible graph
// (a confirmed negative, not a failure), airspace.ErrTimeout when ctx
// expires mid-search.
func (f *Finder) BestPath(ctx context.Context, snap *airspace.Snapshot, q Query) ([]airspace.PathSegment, error) {
	started := time.Now()

	g, err := buildGraph(snap, q, f.aircraftMaxAge, started.UTC())
	if err != nil {
		return nil, err
	}

	prev, err := dijkstra(ctx, g)
	if err != nil {
		return nil, err
	}

	// Walk predecessors back from the end node.
	var order []int
	for at := g.end; at != -1; at = prev[at] {
		order = append(order, at)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	segments := f.segments(g, order)

	f.logger.Debug("Best path computed",
		logger.String("start", q.StartID),
		logger.String("end", q.EndID),
		logger.Int("nodes", len(g.nodes)),
		logger.Int("segments", len(segments)),
		logger.Duration("took", time.Since(started)))

	return segments, nil
}

// segments converts a node order into annotated path segments. Segments
// between ground nodes carry the corridor altitude; a segment leaving an
// aircraft inherits the aircraft's reported altitude.
func (f *Finder) segments(g *graph, order []int) []airspace.PathSegment {
	segments := make([]airspace.PathSegment, 0, len(order)-1)
	for i := 0; i+1 < len(order); i++ {
		from := g.nodes[order[i]]
		to := g.nodes[order[i+1]]

		altitude := f.corridorAltitudeMeters
		if from.Type == airspace.NodeAircraft {
			altitude = from.AltitudeMeters
		}

		segments = append(segments, airspace.PathSegment{
			Index:          i,
			StartType:      from.Type,
			StartPosition:  from.Position,
			EndType:        to.Type,
			EndPosition:    to.Position,
			DistanceMeters: geo.Haversine(from.Position, to.Position),
			AltitudeMeters: altitude,
		})
	}
	return segments
}

// dijkstra runs single-source shortest path from g.start and returns the
// predecessor array, or ErrNoPath / ErrTimeout.
func dijkstra(ctx context.Context, g *graph) ([]int, error) {
	n := len(g.nodes)
	dist := make([]float64, n)
	hops := make([]int, n)
	prev := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[g.start] = 0

	pq := &frontier{nodes: g.nodes}
	heap.Push(pq, frontierItem{node: g.start, dist: 0, hops: 0})

	for pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search abandoned (%v): %w", err, airspace.ErrTimeout)
		}

		item := heap.Pop(pq).(frontierItem)
		u := item.node
		if done[u] {
			continue // stale frontier entry
		}
		done[u] = true

		if u == g.end {
			return prev, nil
		}

		for _, e := range g.adj[u] {
			if done[e.to] {
				continue
			}
			nd := dist[u] + e.meters
			nh := hops[u] + 1
			if better(g, nd, nh, u, dist[e.to], hops[e.to], prev[e.to]) {
				dist[e.to] = nd
				hops[e.to] = nh
				prev[e.to] = u
				heap.Push(pq, frontierItem{node: e.to, dist: nd, hops: nh})
			}
		}
	}

	return nil, airspace.ErrNoPath
}

// better decides whether a candidate relaxation (distance, hops,
// predecessor) beats the incumbent. Distance first, then hop count, then the
// smaller predecessor identifier, making the search deterministic.
func better(g *graph, dist float64, hops int, prev int, curDist float64, curHops int, curPrev int) bool {
	if dist != curDist {
		return dist < curDist
	}
	if hops != curHops {
		return hops < curHops
	}
	if curPrev == -1 {
		return true
	}
	return g.nodes[prev].ID < g.nodes[curPrev].ID
}

// frontierItem is one priority-queue entry. Stale entries are skipped on pop
// rather than updated in place.
type frontierItem struct {
	node int
	dist float64
	hops int
}

// frontier orders the search by distance, then hops, then node identifier.
type frontier struct {
	items []frontierItem
	nodes []airspace.Node
}

func (f *frontier) Len() int { return len(f.items) }

func (f *frontier) Less(i, j int) bool {
	a, b := f.items[i], f.items[j]
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return f.nodes[a.node].ID < f.nodes[b.node].ID
}

func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

func (f *frontier) Push(x any) {
	f.items = append(f.items, x.(frontierItem))
}

func (f *frontier) Pop() any {
	old := f.items
	item := old[len(old)-1]
	f.items = old[:len(old)-1]
	return item
}
