package airspace

import "github.com/aviaro/skygraph/internal/geo"

// EdgeBlocked reports whether the straight segment from a to b is infeasible
// for the given query window: some zone's polygon intersects the segment
// (boundary crossing or containment, planar math) AND the zone's closed
// validity interval overlaps the closed query window. Zones with no temporal
// overlap never block, regardless of geometry.
//
// The function is pure; callers pass the candidate zones, typically narrowed
// by the spatial index first.
func EdgeBlocked(a, b geo.Point, zones []*NoFlyZone, window TimeWindow) bool {
	for _, z := range zones {
		if !z.ActiveDuring(window) {
			continue
		}
		if z.Polygon.IntersectsSegment(a, b) {
			return true
		}
	}
	return false
}
