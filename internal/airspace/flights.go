package airspace

import (
	"errors"
	"fmt"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aviaro/skygraph/internal/geo"
)

// maxFlightSegmentMeters caps the length of one flight path segment. Shorter
// segments carry tighter interpolated time windows, so an intersection query
// only matches the part of the flight that is actually nearby at the time.
const maxFlightSegmentMeters = 40.0

// FlightPath is a scheduled or in-progress flight's planned track through the
// airspace. Paths are upserted by flight identifier: a scheduler pushes the
// plan once and replaces it on re-route.
type FlightPath struct {
	FlightID   string      `json:"flight_id"`
	AircraftID string      `json:"aircraft_id,omitempty"`
	Simulated  bool        `json:"simulated,omitempty"`
	Path       []geo.Point `json:"path"`
	TimeStart  time.Time   `json:"time_start"`
	TimeEnd    time.Time   `json:"time_end"`
}

// Window returns the flight validity interval.
func (f *FlightPath) Window() TimeWindow {
	return TimeWindow{Start: f.TimeStart, End: f.TimeEnd}
}

// Validate checks the flight path invariants: identifier charsets, at least
// two in-range path points, ordered time window.
func (f *FlightPath) Validate() error {
	if err := validation.ValidateStruct(f,
		validation.Field(&f.FlightID, validation.Required, validation.Match(identRegexp)),
		validation.Field(&f.AircraftID, validation.Match(identRegexp)),
		validation.Field(&f.TimeStart, validation.Required),
		validation.Field(&f.TimeEnd, validation.Required),
	); err != nil {
		return err
	}
	if len(f.Path) < 2 {
		return errors.New("path: must have at least 2 points")
	}
	for _, p := range f.Path {
		if !p.Valid() {
			return fmt.Errorf("path: coordinate (%v, %v) out of range", p.Lat, p.Lon)
		}
	}
	if f.TimeEnd.Before(f.TimeStart) {
		return errors.New("time_end: must not be before time_start")
	}
	return nil
}

// FlightSegment is one leg of a segmentized flight path, annotated with the
// time sub-window the aircraft occupies it, interpolated linearly over the
// path's cumulative geodesic distance.
type FlightSegment struct {
	Start  geo.Point
	End    geo.Point
	Window TimeWindow
}

// segmentizePath subdivides the path into segments no longer than maxLen
// meters and apportions the flight window across them by distance. A path
// with zero total length collapses to single point-segments spanning the
// whole window.
func segmentizePath(path []geo.Point, window TimeWindow, maxLen float64) []FlightSegment {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += geo.Haversine(path[i-1], path[i])
	}
	duration := window.End.Sub(window.Start)

	var segments []FlightSegment
	covered := 0.0
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		legLen := geo.Haversine(a, b)

		pieces := 1
		if legLen > maxLen {
			pieces = int(legLen/maxLen) + 1
		}
		for p := 0; p < pieces; p++ {
			f0 := float64(p) / float64(pieces)
			f1 := float64(p+1) / float64(pieces)
			start := geo.Point{Lat: a.Lat + (b.Lat-a.Lat)*f0, Lon: a.Lon + (b.Lon-a.Lon)*f0}
			end := geo.Point{Lat: a.Lat + (b.Lat-a.Lat)*f1, Lon: a.Lon + (b.Lon-a.Lon)*f1}

			segWindow := window
			if total > 0 {
				segWindow = TimeWindow{
					Start: window.Start.Add(time.Duration(float64(duration) * (covered + legLen*f0) / total)),
					End:   window.Start.Add(time.Duration(float64(duration) * (covered + legLen*f1) / total)),
				}
			}
			segments = append(segments, FlightSegment{Start: start, End: end, Window: segWindow})
		}
		covered += legLen
	}
	return segments
}

// FlightsIntersecting returns the flights whose segmentized paths touch the
// query box during a time sub-window overlapping the query window. Simulated
// flights are excluded. Results are ordered by flight identifier.
func (s *Snapshot) FlightsIntersecting(box geo.BBox, w TimeWindow) []*FlightPath {
	ids := make([]string, 0, len(s.Flights))
	for id := range s.Flights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*FlightPath
	for _, id := range ids {
		f := s.Flights[id]
		if f.Simulated || !f.Window().Overlaps(w) {
			continue
		}
		for _, seg := range s.FlightSegments[id] {
			if seg.Window.Overlaps(w) && box.IntersectsSegment(seg.Start, seg.End) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
