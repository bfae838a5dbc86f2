// Package geo provides the geometric primitives used by the airspace model:
// geographic points, polygons and bounding boxes, planar intersection tests,
// and geodesic distance.
//
// Intersection tests treat coordinates as planar (longitude as X, latitude as
// Y), which is adequate at local routing scale. Distances are geodesic
// (haversine) so path costs reflect real-world meters. The two deliberately
// use different math.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point has finite, in-range coordinates.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Haversine calculates the geodesic distance in meters between two points.
func Haversine(a, b Point) float64 {
	rad := math.Pi / 180.0

	lat1 := a.Lat * rad
	lat2 := b.Lat * rad
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// SegmentBBox returns the bounding box of the segment between a and b.
func SegmentBBox(a, b Point) BBox {
	return BBox{
		MinLat: math.Min(a.Lat, b.Lat),
		MinLon: math.Min(a.Lon, b.Lon),
		MaxLat: math.Max(a.Lat, b.Lat),
		MaxLon: math.Max(a.Lon, b.Lon),
	}
}

// Intersects reports whether two boxes overlap, boundary touches included.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Contains reports whether the point lies inside or on the box boundary.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// IntersectsSegment reports whether the segment from a to b touches the box:
// an endpoint inside, or a crossing of any box edge.
func (b BBox) IntersectsSegment(p, q Point) bool {
	if b.Contains(p) || b.Contains(q) {
		return true
	}
	corners := [4]Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
	}
	for i := 0; i < 4; i++ {
		if SegmentsIntersect(p, q, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

// Polygon is an ordered ring of vertices. A well-formed polygon is closed:
// its last vertex repeats the first.
type Polygon []Point

// Closed reports whether the polygon repeats its first vertex at the end.
func (p Polygon) Closed() bool {
	return len(p) >= 2 && p[0] == p[len(p)-1]
}

// Ring returns the polygon vertices without the closing duplicate.
func (p Polygon) Ring() []Point {
	if p.Closed() {
		return p[:len(p)-1]
	}
	return p
}

// DistinctVertices counts the distinct vertices of the ring.
func (p Polygon) DistinctVertices() int {
	seen := make(map[Point]struct{}, len(p))
	for _, v := range p.Ring() {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// BoundingBox returns the bounding box of all vertices.
func (p Polygon) BoundingBox() BBox {
	box := BBox{MinLat: math.MaxFloat64, MinLon: math.MaxFloat64,
		MaxLat: -math.MaxFloat64, MaxLon: -math.MaxFloat64}
	for _, v := range p {
		box.MinLat = math.Min(box.MinLat, v.Lat)
		box.MinLon = math.Min(box.MinLon, v.Lon)
		box.MaxLat = math.Max(box.MaxLat, v.Lat)
		box.MaxLon = math.Max(box.MaxLon, v.Lon)
	}
	return box
}

// Centroid returns the mean of the distinct ring vertices. Used as the
// representative routing point for area entities.
func (p Polygon) Centroid() Point {
	ring := p.Ring()
	if len(ring) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, v := range ring {
		lat += v.Lat
		lon += v.Lon
	}
	n := float64(len(ring))
	return Point{Lat: lat / n, Lon: lon / n}
}

// ContainsPoint reports whether the point lies inside the polygon, using
// planar ray casting.
func (p Polygon) ContainsPoint(pt Point) bool {
	ring := p.Ring()
	n := len(ring)
	if n < 3 {
		return false
	}

	count := 0
	for i := 0; i < n; i++ {
		v1 := ring[i]
		v2 := ring[(i+1)%n]

		// Does the rightward ray from pt cross this edge?
		if (v1.Lat > pt.Lat) != (v2.Lat > pt.Lat) {
			slope := (pt.Lon-v1.Lon)*(v2.Lat-v1.Lat) - (v2.Lon-v1.Lon)*(pt.Lat-v1.Lat)
			if v2.Lat > v1.Lat {
				if slope > 0 {
					count++
				}
			} else {
				if slope < 0 {
					count++
				}
			}
		}
	}

	return count%2 == 1
}

// IntersectsSegment reports whether the segment from a to b crosses the
// polygon boundary or lies inside it. Either condition makes the segment
// infeasible as a flight edge through this polygon.
func (p Polygon) IntersectsSegment(a, b Point) bool {
	ring := p.Ring()
	n := len(ring)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		if SegmentsIntersect(a, b, ring[i], ring[(i+1)%n]) {
			return true
		}
	}

	// No boundary crossing: the segment is either fully outside or fully
	// inside. Endpoints and midpoint decide which.
	if p.ContainsPoint(a) || p.ContainsPoint(b) {
		return true
	}
	mid := Point{Lat: (a.Lat + b.Lat) / 2, Lon: (a.Lon + b.Lon) / 2}
	return p.ContainsPoint(mid)
}

// SegmentsIntersect reports whether segments p1-p2 and p3-p4 intersect,
// including collinear touches.
func SegmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := direction(p3, p4, p1)
	d2 := direction(p3, p4, p2)
	d3 := direction(p1, p2, p3)
	d4 := direction(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}

	return false
}

// direction is the cross product of (p2-p1) and (p3-p1) in planar
// lon/lat coordinates.
func direction(p1, p2, p3 Point) float64 {
	return (p3.Lon-p1.Lon)*(p2.Lat-p1.Lat) - (p2.Lon-p1.Lon)*(p3.Lat-p1.Lat)
}

// onSegment checks whether collinear point q lies within the bounds of
// segment p-r.
func onSegment(p, r, q Point) bool {
	return q.Lon <= math.Max(p.Lon, r.Lon) && q.Lon >= math.Min(p.Lon, r.Lon) &&
		q.Lat <= math.Max(p.Lat, r.Lat) && q.Lat >= math.Min(p.Lat, r.Lat)
}
