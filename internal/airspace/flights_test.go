package airspace

import (
	"context"
	"testing"
	"time"

	"github.com/aviaro/skygraph/internal/geo"
)

func testFlight(id string, window TimeWindow) *FlightPath {
	return &FlightPath{
		FlightID:   id,
		AircraftID: "a1b2c3",
		Path: []geo.Point{
			{Lat: 52.0, Lon: 4.0},
			{Lat: 52.0, Lon: 4.01},
		},
		TimeStart: window.Start,
		TimeEnd:   window.End,
	}
}

func TestFlightPathValidate(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := TimeWindow{Start: base, End: base.Add(time.Hour)}

	tests := []struct {
		name    string
		mutate  func(*FlightPath)
		wantErr bool
	}{
		{name: "valid", mutate: func(*FlightPath) {}},
		{name: "missing flight id", mutate: func(f *FlightPath) { f.FlightID = "" }, wantErr: true},
		{name: "bad flight id charset", mutate: func(f *FlightPath) { f.FlightID = "no spaces!" }, wantErr: true},
		{name: "single point path", mutate: func(f *FlightPath) { f.Path = f.Path[:1] }, wantErr: true},
		{name: "out of range vertex", mutate: func(f *FlightPath) { f.Path[1].Lat = 91 }, wantErr: true},
		{name: "inverted window", mutate: func(f *FlightPath) { f.TimeEnd = f.TimeStart.Add(-time.Second) }, wantErr: true},
		{name: "missing start time", mutate: func(f *FlightPath) { f.TimeStart = time.Time{} }, wantErr: true},
		{name: "no aircraft id is fine", mutate: func(f *FlightPath) { f.AircraftID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFlight("FL-001", window)
			tt.mutate(f)
			err := f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSegmentizePath(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := TimeWindow{Start: base, End: base.Add(time.Hour)}

	// Two equal legs of ~1112m due north each; maxLen large enough to keep
	// one segment per leg, so the window splits exactly in half.
	path := []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0.01, Lon: 0}, {Lat: 0.02, Lon: 0}}
	segments := segmentizePath(path, window, 2000)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	mid := base.Add(30 * time.Minute)
	if !segments[0].Window.Start.Equal(base) || !segments[0].Window.End.Equal(mid) {
		t.Errorf("first segment window = %v..%v, want %v..%v",
			segments[0].Window.Start, segments[0].Window.End, base, mid)
	}
	if !segments[1].Window.Start.Equal(mid) || !segments[1].Window.End.Equal(window.End) {
		t.Errorf("second segment window = %v..%v, want %v..%v",
			segments[1].Window.Start, segments[1].Window.End, mid, window.End)
	}

	// A tight cap subdivides each leg and every piece stays under it.
	segments = segmentizePath(path[:2], window, 40)
	if len(segments) < 2 {
		t.Fatalf("got %d segments, want a subdivided leg", len(segments))
	}
	for i, seg := range segments {
		if d := geo.Haversine(seg.Start, seg.End); d > 40.0001 {
			t.Errorf("segment %d is %vm long, want <= 40m", i, d)
		}
	}
	if !segments[0].Window.Start.Equal(base) {
		t.Errorf("first piece starts at %v, want %v", segments[0].Window.Start, base)
	}
	if !segments[len(segments)-1].Window.End.Equal(window.End) {
		t.Errorf("last piece ends at %v, want %v", segments[len(segments)-1].Window.End, window.End)
	}

	// A zero-length path spans the whole window on every segment.
	still := []geo.Point{{Lat: 52, Lon: 4}, {Lat: 52, Lon: 4}}
	segments = segmentizePath(still, window, 40)
	if len(segments) != 1 || !segments[0].Window.Start.Equal(base) || !segments[0].Window.End.Equal(window.End) {
		t.Errorf("zero-length path segments = %+v, want one spanning the window", segments)
	}
}

func TestFlightsIntersecting(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := TimeWindow{Start: base, End: base.Add(time.Hour)}

	svc := NewService(nil, 0.05, testLogger(t))
	ctx := context.Background()
	if err := svc.UpdateFlightPath(ctx, testFlight("FL-001", window)); err != nil {
		t.Fatalf("UpdateFlightPath() error: %v", err)
	}
	sim := testFlight("SIM-001", window)
	sim.Simulated = true
	if err := svc.UpdateFlightPath(ctx, sim); err != nil {
		t.Fatalf("UpdateFlightPath() simulated error: %v", err)
	}

	snap, _ := svc.Snapshot()
	onPath := geo.BBox{MinLat: 51.99, MinLon: 4.004, MaxLat: 52.01, MaxLon: 4.006}

	// Simulated flights never match; the real one does.
	got := snap.FlightsIntersecting(onPath, window)
	if len(got) != 1 || got[0].FlightID != "FL-001" {
		t.Fatalf("FlightsIntersecting() = %+v, want [FL-001]", got)
	}

	// Disjoint time window.
	later := TimeWindow{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)}
	if got := snap.FlightsIntersecting(onPath, later); len(got) != 0 {
		t.Errorf("FlightsIntersecting() outside window = %+v, want empty", got)
	}

	// Disjoint geometry.
	far := geo.BBox{MinLat: 53, MinLon: 5, MaxLat: 53.1, MaxLon: 5.1}
	if got := snap.FlightsIntersecting(far, window); len(got) != 0 {
		t.Errorf("FlightsIntersecting() far away = %+v, want empty", got)
	}

	// Per-segment windows: the box covers only the first ~40m of the path,
	// which the flight occupies at the very start of its window. A query for
	// the final minutes overlaps the flight window but not that segment's.
	firstLeg := geo.BBox{MinLat: 51.999, MinLon: 3.999, MaxLat: 52.001, MaxLon: 4.0005}
	lastMinutes := TimeWindow{Start: base.Add(50 * time.Minute), End: window.End}
	if got := snap.FlightsIntersecting(firstLeg, lastMinutes); len(got) != 0 {
		t.Errorf("FlightsIntersecting() stale segment = %+v, want empty", got)
	}
	firstMinutes := TimeWindow{Start: base, End: base.Add(5 * time.Minute)}
	if got := snap.FlightsIntersecting(firstLeg, firstMinutes); len(got) != 1 {
		t.Errorf("FlightsIntersecting() fresh segment = %+v, want [FL-001]", got)
	}
}

func TestUpdateFlightPath(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := TimeWindow{Start: base, End: base.Add(time.Hour)}

	store := &memStore{}
	svc := NewService(store, 0.05, testLogger(t))
	ctx := context.Background()

	if err := svc.UpdateFlightPath(ctx, testFlight("FL-001", window)); err != nil {
		t.Fatalf("UpdateFlightPath() error: %v", err)
	}
	snap, _ := svc.Snapshot()
	if _, ok := snap.Flights["FL-001"]; !ok {
		t.Fatal("flight missing from snapshot")
	}
	if len(snap.FlightSegments["FL-001"]) == 0 {
		t.Fatal("flight was not segmentized on commit")
	}
	if _, ok := store.flights["FL-001"]; !ok {
		t.Error("flight was not persisted")
	}

	// Upsert: a re-route replaces the stored path under the same identifier.
	rerouted := testFlight("FL-001", window)
	rerouted.Path = []geo.Point{{Lat: 52.0, Lon: 4.0}, {Lat: 52.01, Lon: 4.0}}
	if err := svc.UpdateFlightPath(ctx, rerouted); err != nil {
		t.Fatalf("UpdateFlightPath() reroute error: %v", err)
	}
	snap2, _ := svc.Snapshot()
	if len(snap2.Flights) != 1 {
		t.Errorf("got %d flights after reroute, want 1", len(snap2.Flights))
	}
	if got := snap2.Flights["FL-001"].Path[1]; got != (geo.Point{Lat: 52.01, Lon: 4.0}) {
		t.Errorf("reroute not applied: path[1] = %+v", got)
	}

	// Earlier snapshots keep the old path.
	if got := snap.Flights["FL-001"].Path[1]; got != (geo.Point{Lat: 52.0, Lon: 4.01}) {
		t.Error("previously taken snapshot was mutated by a reroute")
	}

	// Invalid flights are rejected without touching state.
	bad := testFlight("FL-002", window)
	bad.Path = bad.Path[:1]
	if err := svc.UpdateFlightPath(ctx, bad); !IsValidationError(err) {
		t.Fatalf("UpdateFlightPath() error = %v, want ValidationError", err)
	}
	snap3, _ := svc.Snapshot()
	if _, ok := snap3.Flights["FL-002"]; ok {
		t.Error("rejected flight was applied")
	}
}
