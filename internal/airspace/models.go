// Package airspace holds the entity model of the routing engine and the
// update coordinator that keeps it consistent under concurrent traffic.
package airspace

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aviaro/skygraph/internal/geo"
)

// Identifier and callsign character sets. Identifiers name vertiports,
// waypoints, and no-fly zones; callsigns name aircraft.
var (
	identRegexp    = regexp.MustCompile(`^[-0-9A-Za-z_.]{1,255}$`)
	callsignRegexp = regexp.MustCompile(`^[a-zA-Z0-9_ -]{1,100}$`)
)

// NodeType discriminates the kinds of routable nodes.
type NodeType string

// Node kinds. Vertiports and waypoints are persistent routable nodes;
// aircraft are ephemeral and valid only as a path start.
const (
	NodeVertiport NodeType = "vertiport"
	NodeWaypoint  NodeType = "waypoint"
	NodeAircraft  NodeType = "aircraft"
)

// ParseNodeType parses a wire-level node type string.
func ParseNodeType(s string) (NodeType, error) {
	switch NodeType(s) {
	case NodeVertiport, NodeWaypoint, NodeAircraft:
		return NodeType(s), nil
	}
	return "", fmt.Errorf("unknown node type %q", s)
}

// TimeWindow is a closed time interval [Start, End].
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two closed intervals share at least one instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !w.Start.After(o.End) && !w.End.Before(o.Start)
}

// Vertiport is a polygon-bounded takeoff/landing facility and a permanent
// routable node. Routing uses the polygon centroid as its position.
type Vertiport struct {
	ID      string      `json:"id"`
	Label   string      `json:"label,omitempty"`
	Polygon geo.Polygon `json:"polygon"`
}

// Centroid returns the representative routing point of the vertiport.
func (v *Vertiport) Centroid() geo.Point {
	return v.Polygon.Centroid()
}

// Validate checks the vertiport invariants: identifier charset, closed
// polygon with at least 3 distinct in-range vertices.
func (v *Vertiport) Validate() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.ID, validation.Required, validation.Match(identRegexp)),
		validation.Field(&v.Label, validation.Match(callsignRegexp)),
		validation.Field(&v.Polygon, validation.Required, validation.By(closedPolygon)),
	)
}

// Waypoint is a fixed point-only routable node.
type Waypoint struct {
	Label    string    `json:"label"`
	Position geo.Point `json:"position"`
}

// Validate checks the waypoint invariants.
func (w *Waypoint) Validate() error {
	if err := validation.ValidateStruct(w,
		validation.Field(&w.Label, validation.Required, validation.Match(identRegexp)),
	); err != nil {
		return err
	}
	if !w.Position.Valid() {
		return fmt.Errorf("position: coordinate (%v, %v) out of range", w.Position.Lat, w.Position.Lon)
	}
	return nil
}

// NoFlyZone is a temporary polygon exclusion active during a closed time
// window. Zones are constraints on edges, never routable nodes.
type NoFlyZone struct {
	Label     string      `json:"label"`
	Polygon   geo.Polygon `json:"polygon"`
	TimeStart time.Time   `json:"time_start"`
	TimeEnd   time.Time   `json:"time_end"`
}

// Window returns the zone validity interval. TimeStart == TimeEnd is an
// instantaneous zone and is permitted.
func (z *NoFlyZone) Window() TimeWindow {
	return TimeWindow{Start: z.TimeStart, End: z.TimeEnd}
}

// ActiveDuring reports whether the zone validity overlaps the query window.
func (z *NoFlyZone) ActiveDuring(w TimeWindow) bool {
	return z.Window().Overlaps(w)
}

// Validate checks the zone invariants, including time ordering.
func (z *NoFlyZone) Validate() error {
	if err := validation.ValidateStruct(z,
		validation.Field(&z.Label, validation.Required, validation.Match(identRegexp)),
		validation.Field(&z.Polygon, validation.Required, validation.By(closedPolygon)),
		validation.Field(&z.TimeStart, validation.Required),
		validation.Field(&z.TimeEnd, validation.Required),
	); err != nil {
		return err
	}
	if z.TimeEnd.Before(z.TimeStart) {
		return errors.New("time_end: must not be before time_start")
	}
	return nil
}

// AircraftPosition is one telemetry observation of an airborne aircraft.
// The persistent ID is optional; callsigns are not guaranteed unique across
// time, so the latest observation per identity supersedes earlier ones.
type AircraftPosition struct {
	Callsign       string    `json:"callsign"`
	ID             string    `json:"id,omitempty"`
	Position       geo.Point `json:"position"`
	AltitudeMeters float64   `json:"altitude_meters"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Key returns the identity the observation is tracked under: the persistent
// ID when present, otherwise the callsign.
func (a *AircraftPosition) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Callsign
}

// Validate checks the observation invariants.
func (a *AircraftPosition) Validate() error {
	if err := validation.ValidateStruct(a,
		validation.Field(&a.Callsign, validation.Required, validation.Match(callsignRegexp)),
		validation.Field(&a.ID, validation.Match(identRegexp)),
		validation.Field(&a.ObservedAt, validation.Required),
	); err != nil {
		return err
	}
	if !a.Position.Valid() {
		return fmt.Errorf("position: coordinate (%v, %v) out of range", a.Position.Lat, a.Position.Lon)
	}
	if math.IsNaN(a.AltitudeMeters) || math.IsInf(a.AltitudeMeters, 0) {
		return errors.New("altitude_meters: must be finite")
	}
	return nil
}

// Node is a routable point derived from a vertiport, waypoint, or aircraft.
type Node struct {
	ID             string    `json:"id"`
	Type           NodeType  `json:"type"`
	Position       geo.Point `json:"position"`
	AltitudeMeters float64   `json:"altitude_meters"`
}

// PathSegment is one leg of a best-path result.
type PathSegment struct {
	Index          int       `json:"index"`
	StartType      NodeType  `json:"start_type"`
	StartPosition  geo.Point `json:"start_position"`
	EndType        NodeType  `json:"end_type"`
	EndPosition    geo.Point `json:"end_position"`
	DistanceMeters float64   `json:"distance_meters"`
	AltitudeMeters float64   `json:"altitude_meters"`
}

// closedPolygon is the shared polygon rule: closed ring, at least 3 distinct
// vertices, all coordinates finite and in range.
func closedPolygon(value interface{}) error {
	poly, ok := value.(geo.Polygon)
	if !ok {
		return errors.New("must be a polygon")
	}
	if !poly.Closed() {
		return errors.New("must be closed (first and last vertex equal)")
	}
	if poly.DistinctVertices() < 3 {
		return errors.New("must have at least 3 distinct vertices")
	}
	for _, v := range poly {
		if !v.Valid() {
			return fmt.Errorf("vertex (%v, %v) out of range", v.Lat, v.Lon)
		}
	}
	return nil
}
