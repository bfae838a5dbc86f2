package airspace

import (
	"math"
	"sort"

	"github.com/aviaro/skygraph/internal/geo"
)

// DefaultGridCellDegrees is the index cell size used when the configuration
// does not override it. 0.05 degrees is roughly 5.5km of latitude.
const DefaultGridCellDegrees = 0.05

// maxBucketCells caps how many cells a single bounding box may be fanned out
// into. A box spanning more cells than this (a continent-scale zone at the
// default cell size) is kept in a flat overflow list instead, so one huge
// zone cannot balloon the index and every snapshot clone of it.
const maxBucketCells = 4096

type cellKey struct {
	row, col int
}

// GridIndex buckets entities into fixed-size lat/lon cells so that edge
// feasibility checks only test the no-fly zones whose bounding boxes could
// touch the edge, instead of every zone in the model.
//
// The index supports incremental insert/replace/remove; snapshots clone it
// rather than rebuilding from scratch. A GridIndex inside a published
// snapshot is immutable; mutation happens only on clones held by the single
// writer.
type GridIndex struct {
	cellDeg float64

	zoneCells map[cellKey][]string // zone labels per cell, sorted
	zoneBoxes map[string]geo.BBox
	zoneWide  []string // zones too large to bucket, sorted

	nodeCells  map[cellKey][]string // node keys per cell, sorted
	nodePoints map[string]geo.Point
}

// NewGridIndex creates an empty index with the given cell size in degrees.
func NewGridIndex(cellDeg float64) *GridIndex {
	if cellDeg <= 0 {
		cellDeg = DefaultGridCellDegrees
	}
	return &GridIndex{
		cellDeg:    cellDeg,
		zoneCells:  make(map[cellKey][]string),
		zoneBoxes:  make(map[string]geo.BBox),
		nodeCells:  make(map[cellKey][]string),
		nodePoints: make(map[string]geo.Point),
	}
}

// Clone returns a deep copy safe to mutate while the original keeps serving
// readers.
func (g *GridIndex) Clone() *GridIndex {
	c := &GridIndex{
		cellDeg:    g.cellDeg,
		zoneCells:  make(map[cellKey][]string, len(g.zoneCells)),
		zoneBoxes:  make(map[string]geo.BBox, len(g.zoneBoxes)),
		nodeCells:  make(map[cellKey][]string, len(g.nodeCells)),
		nodePoints: make(map[string]geo.Point, len(g.nodePoints)),
	}
	for k, v := range g.zoneCells {
		c.zoneCells[k] = append([]string(nil), v...)
	}
	for k, v := range g.zoneBoxes {
		c.zoneBoxes[k] = v
	}
	c.zoneWide = append([]string(nil), g.zoneWide...)
	for k, v := range g.nodeCells {
		c.nodeCells[k] = append([]string(nil), v...)
	}
	for k, v := range g.nodePoints {
		c.nodePoints[k] = v
	}
	return c
}

func (g *GridIndex) cellOf(p geo.Point) cellKey {
	return cellKey{
		row: int(math.Floor(p.Lat / g.cellDeg)),
		col: int(math.Floor(p.Lon / g.cellDeg)),
	}
}

// cellsFor enumerates the cells covering the box. ok is false when the box
// spans more than maxBucketCells cells; such boxes are never bucketed.
func (g *GridIndex) cellsFor(box geo.BBox) (cells []cellKey, ok bool) {
	lo := g.cellOf(geo.Point{Lat: box.MinLat, Lon: box.MinLon})
	hi := g.cellOf(geo.Point{Lat: box.MaxLat, Lon: box.MaxLon})
	n := (hi.row - lo.row + 1) * (hi.col - lo.col + 1)
	if n > maxBucketCells {
		return nil, false
	}
	cells = make([]cellKey, 0, n)
	for r := lo.row; r <= hi.row; r++ {
		for c := lo.col; c <= hi.col; c++ {
			cells = append(cells, cellKey{row: r, col: c})
		}
	}
	return cells, true
}

// insertSorted keeps cell membership sorted so candidate ordering is
// deterministic across identical snapshots.
func insertSorted(list []string, key string) []string {
	i := sort.SearchStrings(list, key)
	if i < len(list) && list[i] == key {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = key
	return list
}

func removeKey(list []string, key string) []string {
	i := sort.SearchStrings(list, key)
	if i < len(list) && list[i] == key {
		return append(list[:i], list[i+1:]...)
	}
	return list
}

// InsertZone adds (or replaces) a zone's bounding box in the index.
func (g *GridIndex) InsertZone(label string, box geo.BBox) {
	g.RemoveZone(label)
	g.zoneBoxes[label] = box
	cells, ok := g.cellsFor(box)
	if !ok {
		g.zoneWide = insertSorted(g.zoneWide, label)
		return
	}
	for _, cell := range cells {
		g.zoneCells[cell] = insertSorted(g.zoneCells[cell], label)
	}
}

// RemoveZone drops a zone from the index. Unknown labels are a no-op.
func (g *GridIndex) RemoveZone(label string) {
	box, ok := g.zoneBoxes[label]
	if !ok {
		return
	}
	delete(g.zoneBoxes, label)
	cells, ok := g.cellsFor(box)
	if !ok {
		g.zoneWide = removeKey(g.zoneWide, label)
		return
	}
	for _, cell := range cells {
		if list := removeKey(g.zoneCells[cell], label); len(list) > 0 {
			g.zoneCells[cell] = list
		} else {
			delete(g.zoneCells, cell)
		}
	}
}

// InsertNode adds (or replaces) a routable node position in the index.
func (g *GridIndex) InsertNode(key string, pt geo.Point) {
	g.RemoveNode(key)
	g.nodePoints[key] = pt
	cell := g.cellOf(pt)
	g.nodeCells[cell] = insertSorted(g.nodeCells[cell], key)
}

// RemoveNode drops a node from the index. Unknown keys are a no-op.
func (g *GridIndex) RemoveNode(key string) {
	pt, ok := g.nodePoints[key]
	if !ok {
		return
	}
	delete(g.nodePoints, key)
	cell := g.cellOf(pt)
	if list := removeKey(g.nodeCells[cell], key); len(list) > 0 {
		g.nodeCells[cell] = list
	} else {
		delete(g.nodeCells, cell)
	}
}

// ZoneCandidates returns the labels of zones whose bounding boxes intersect
// the query box, in sorted order.
func (g *GridIndex) ZoneCandidates(box geo.BBox) []string {
	var out []string

	cells, ok := g.cellsFor(box)
	if !ok {
		// Query box too large to enumerate; test every zone directly.
		for label, zoneBox := range g.zoneBoxes {
			if zoneBox.Intersects(box) {
				out = append(out, label)
			}
		}
		sort.Strings(out)
		return out
	}

	seen := make(map[string]struct{})
	for _, cell := range cells {
		for _, label := range g.zoneCells[cell] {
			if _, dup := seen[label]; dup {
				continue
			}
			seen[label] = struct{}{}
			if g.zoneBoxes[label].Intersects(box) {
				out = append(out, label)
			}
		}
	}
	for _, label := range g.zoneWide {
		if g.zoneBoxes[label].Intersects(box) {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// NearestNode returns the key of the node geodesically closest to pt,
// searching outward ring by ring. Ties break toward the smaller key.
//
// Cell rings do not bound geodesic distance directly: longitude cells shrink
// by cos(lat), so a geodesically closer node can sit many cells east or west
// of the first hit. The search keeps expanding until no unscanned ring can
// hold a node closer than the best found so far.
func (g *GridIndex) NearestNode(pt geo.Point) (string, bool) {
	if len(g.nodePoints) == 0 {
		return "", false
	}

	center := g.cellOf(pt)
	worldCells := int(math.Ceil(360/g.cellDeg)) + 1

	best := ""
	bestDist := math.MaxFloat64

	for r := 0; r <= worldCells; r++ {
		if best != "" && g.minUnscannedDistance(pt, r) > bestDist {
			break
		}
		for _, cell := range ringCells(center, r) {
			for _, key := range g.nodeCells[cell] {
				d := geo.Haversine(pt, g.nodePoints[key])
				if d < bestDist || (d == bestDist && key < best) {
					best = key
					bestDist = d
				}
			}
		}
	}

	return best, best != ""
}

// minUnscannedDistance lower-bounds the geodesic distance from pt to any node
// in ring r or beyond. Such a node is separated from pt by at least r-1 whole
// cells of latitude, or by at least r-1 whole cells of longitude while its
// latitude stays within the scanned band; the band's extreme latitude bounds
// the longitude case since longitude degrees shrink toward the poles.
func (g *GridIndex) minUnscannedDistance(pt geo.Point, r int) float64 {
	sepDeg := float64(r-1) * g.cellDeg
	if sepDeg <= 0 {
		return 0
	}

	latBound := geo.Haversine(geo.Point{}, geo.Point{Lat: math.Min(sepDeg, 90)})

	bandLat := math.Abs(pt.Lat) + float64(r+1)*g.cellDeg
	if bandLat >= 90 {
		// The band reaches a pole, where longitude separates nothing.
		return 0
	}
	if sepDeg >= 180 {
		return latBound
	}
	lonBound := geo.Haversine(
		geo.Point{Lat: bandLat, Lon: 0},
		geo.Point{Lat: bandLat, Lon: sepDeg},
	)
	return math.Min(latBound, lonBound)
}

// ringCells enumerates the cells at Chebyshev distance r from the center.
func ringCells(center cellKey, r int) []cellKey {
	if r == 0 {
		return []cellKey{center}
	}
	cells := make([]cellKey, 0, 8*r)
	for c := center.col - r; c <= center.col+r; c++ {
		cells = append(cells, cellKey{row: center.row - r, col: c})
		cells = append(cells, cellKey{row: center.row + r, col: c})
	}
	for row := center.row - r + 1; row <= center.row+r-1; row++ {
		cells = append(cells, cellKey{row: row, col: center.col - r})
		cells = append(cells, cellKey{row: row, col: center.col + r})
	}
	return cells
}
