package airspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/aviaro/skygraph/internal/geo"
)

// Snapshot is an immutable, point-in-time view of the entity model. A query
// resolves everything against one snapshot, so it can never observe a
// half-applied update. Entities reachable from a snapshot must not be
// mutated; updates build a new snapshot and swap the pointer.
type Snapshot struct {
	Version uint64
	TakenAt time.Time

	Vertiports map[string]*Vertiport       // by ID
	Waypoints  map[string]*Waypoint        // by label
	Zones      map[string]*NoFlyZone       // by label
	Aircraft   map[string]*AircraftPosition // by identity key

	Flights        map[string]*FlightPath     // by flight ID
	FlightSegments map[string][]FlightSegment // segmentized on commit, same keys

	Index *GridIndex
}

func newSnapshot(gridCellDeg float64) *Snapshot {
	return &Snapshot{
		TakenAt:        time.Now().UTC(),
		Vertiports:     make(map[string]*Vertiport),
		Waypoints:      make(map[string]*Waypoint),
		Zones:          make(map[string]*NoFlyZone),
		Aircraft:       make(map[string]*AircraftPosition),
		Flights:        make(map[string]*FlightPath),
		FlightSegments: make(map[string][]FlightSegment),
		Index:          NewGridIndex(gridCellDeg),
	}
}

// clone copies the snapshot for the writer to mutate before publishing.
// Entity pointers are shared; entities themselves are never mutated.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Version:        s.Version,
		TakenAt:        s.TakenAt,
		Vertiports:     make(map[string]*Vertiport, len(s.Vertiports)),
		Waypoints:      make(map[string]*Waypoint, len(s.Waypoints)),
		Zones:          make(map[string]*NoFlyZone, len(s.Zones)),
		Aircraft:       make(map[string]*AircraftPosition, len(s.Aircraft)),
		Flights:        make(map[string]*FlightPath, len(s.Flights)),
		FlightSegments: make(map[string][]FlightSegment, len(s.FlightSegments)),
		Index:          s.Index.Clone(),
	}
	for k, v := range s.Vertiports {
		c.Vertiports[k] = v
	}
	for k, v := range s.Waypoints {
		c.Waypoints[k] = v
	}
	for k, v := range s.Zones {
		c.Zones[k] = v
	}
	for k, v := range s.Aircraft {
		c.Aircraft[k] = v
	}
	for k, v := range s.Flights {
		c.Flights[k] = v
	}
	for k, v := range s.FlightSegments {
		c.FlightSegments[k] = v
	}
	return c
}

// nodeKey namespaces index node keys by kind so a vertiport ID can never
// collide with a waypoint label or a callsign.
func nodeKey(typ NodeType, id string) string {
	return string(typ) + ":" + id
}

func splitNodeKey(key string) (NodeType, string, bool) {
	typ, id, ok := strings.Cut(key, ":")
	if !ok {
		return "", "", false
	}
	return NodeType(typ), id, true
}

// ZonesIntersecting resolves the index candidates for a bounding box into
// zone entities. A candidate label missing from the model is an internal
// invariant break and surfaces as ErrStateCorrupted.
func (s *Snapshot) ZonesIntersecting(box geo.BBox) ([]*NoFlyZone, error) {
	labels := s.Index.ZoneCandidates(box)
	zones := make([]*NoFlyZone, 0, len(labels))
	for _, label := range labels {
		z, ok := s.Zones[label]
		if !ok {
			return nil, fmt.Errorf("zone %q indexed but missing from model: %w", label, ErrStateCorrupted)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// ResolveNode resolves an identity of the expected type to a routable node.
// Aircraft resolve to their latest observation; observations older than
// maxAge (when maxAge > 0) are treated as unknown. Returns ErrNodeNotFound
// when the identity does not resolve to the expected kind.
func (s *Snapshot) ResolveNode(id string, typ NodeType, maxAge time.Duration, now time.Time) (Node, error) {
	switch typ {
	case NodeVertiport:
		v, ok := s.Vertiports[id]
		if !ok {
			return Node{}, fmt.Errorf("vertiport %q: %w", id, ErrNodeNotFound)
		}
		return Node{ID: v.ID, Type: NodeVertiport, Position: v.Centroid()}, nil

	case NodeWaypoint:
		w, ok := s.Waypoints[id]
		if !ok {
			return Node{}, fmt.Errorf("waypoint %q: %w", id, ErrNodeNotFound)
		}
		return Node{ID: w.Label, Type: NodeWaypoint, Position: w.Position}, nil

	case NodeAircraft:
		a := s.latestAircraft(id)
		if a == nil {
			return Node{}, fmt.Errorf("aircraft %q: %w", id, ErrNodeNotFound)
		}
		if maxAge > 0 && now.Sub(a.ObservedAt) > maxAge {
			return Node{}, fmt.Errorf("aircraft %q: last observation too old: %w", id, ErrNodeNotFound)
		}
		return Node{
			ID:             a.Key(),
			Type:           NodeAircraft,
			Position:       a.Position,
			AltitudeMeters: a.AltitudeMeters,
		}, nil
	}

	return Node{}, fmt.Errorf("node type %q: %w", typ, ErrNodeNotFound)
}

// latestAircraft looks an aircraft up by identity key first, then falls back
// to the most recent observation matching the callsign. Ties break toward
// the smaller key for determinism.
func (s *Snapshot) latestAircraft(id string) *AircraftPosition {
	if a, ok := s.Aircraft[id]; ok {
		return a
	}
	var best *AircraftPosition
	for _, a := range s.Aircraft {
		if a.Callsign != id {
			continue
		}
		if best == nil ||
			a.ObservedAt.After(best.ObservedAt) ||
			(a.ObservedAt.Equal(best.ObservedAt) && a.Key() < best.Key()) {
			best = a
		}
	}
	return best
}

// LatestAircraft resolves an aircraft identity (persistent ID or callsign) to
// its most recent observation.
func (s *Snapshot) LatestAircraft(id string) (*AircraftPosition, bool) {
	a := s.latestAircraft(id)
	return a, a != nil
}

// NearestNode returns the routable node closest to the given point, or false
// when the model is empty.
func (s *Snapshot) NearestNode(pt geo.Point) (Node, bool) {
	key, ok := s.Index.NearestNode(pt)
	if !ok {
		return Node{}, false
	}
	typ, id, ok := splitNodeKey(key)
	if !ok {
		return Node{}, false
	}
	node, err := s.ResolveNode(id, typ, 0, time.Time{})
	if err != nil {
		return Node{}, false
	}
	return node, true
}
