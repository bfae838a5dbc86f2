package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/geo"
	"github.com/aviaro/skygraph/pkg/logger"
)

func testStore(t *testing.T) *AirspaceStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := NewAirspaceStore(db, log)
	if err != nil {
		t.Fatalf("NewAirspaceStore() error: %v", err)
	}
	return store
}

func testPolygon() geo.Polygon {
	return geo.Polygon{
		{Lat: 52.0, Lon: 4.0},
		{Lat: 52.0, Lon: 4.01},
		{Lat: 52.01, Lon: 4.01},
		{Lat: 52.01, Lon: 4.0},
		{Lat: 52.0, Lon: 4.0},
	}
}

func TestVertiportsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	in := []*airspace.Vertiport{
		{ID: "VP-1", Label: "Alpha", Polygon: testPolygon()},
		{ID: "VP-2", Polygon: testPolygon()},
	}
	if err := store.SaveVertiports(ctx, in); err != nil {
		t.Fatalf("SaveVertiports() error: %v", err)
	}

	out, err := store.LoadVertiports(ctx)
	if err != nil {
		t.Fatalf("LoadVertiports() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d vertiports, want 2", len(out))
	}
	if out[0].ID != "VP-1" || out[0].Label != "Alpha" {
		t.Errorf("first vertiport = %+v", out[0])
	}
	if len(out[0].Polygon) != 5 {
		t.Errorf("polygon lost vertices: %d, want 5", len(out[0].Polygon))
	}

	// Save is a full replace.
	if err := store.SaveVertiports(ctx, []*airspace.Vertiport{{ID: "VP-3", Polygon: testPolygon()}}); err != nil {
		t.Fatalf("SaveVertiports() replace error: %v", err)
	}
	out, err = store.LoadVertiports(ctx)
	if err != nil {
		t.Fatalf("LoadVertiports() error: %v", err)
	}
	if len(out) != 1 || out[0].ID != "VP-3" {
		t.Errorf("after replace got %+v, want only VP-3", out)
	}
}

func TestNoFlyZonesRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	in := []*airspace.NoFlyZone{{
		Label:     "TFR-1",
		Polygon:   testPolygon(),
		TimeStart: start,
		TimeEnd:   start.Add(2 * time.Hour),
	}}
	if err := store.SaveNoFlyZones(ctx, in); err != nil {
		t.Fatalf("SaveNoFlyZones() error: %v", err)
	}

	out, err := store.LoadNoFlyZones(ctx)
	if err != nil {
		t.Fatalf("LoadNoFlyZones() error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d zones, want 1", len(out))
	}
	if !out[0].TimeStart.Equal(start) || !out[0].TimeEnd.Equal(start.Add(2*time.Hour)) {
		t.Errorf("window round-trip mismatch: %v - %v", out[0].TimeStart, out[0].TimeEnd)
	}
}

func TestWaypointsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	in := []*airspace.Waypoint{
		{Label: "WP-B", Position: geo.Point{Lat: 52.1, Lon: 4.1}},
		{Label: "WP-A", Position: geo.Point{Lat: 52.0, Lon: 4.0}},
	}
	if err := store.SaveWaypoints(ctx, in); err != nil {
		t.Fatalf("SaveWaypoints() error: %v", err)
	}

	out, err := store.LoadWaypoints(ctx)
	if err != nil {
		t.Fatalf("LoadWaypoints() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d waypoints, want 2", len(out))
	}
	// Loads are ordered by label.
	if out[0].Label != "WP-A" || out[1].Label != "WP-B" {
		t.Errorf("load order = %s, %s; want WP-A, WP-B", out[0].Label, out[1].Label)
	}
}

func TestAircraftUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := &airspace.AircraftPosition{
		Callsign:       "KLM 123",
		ID:             "a1b2c3",
		Position:       geo.Point{Lat: 52.0, Lon: 4.0},
		AltitudeMeters: 300,
		ObservedAt:     base,
	}
	if err := store.SaveAircraftPositions(ctx, []*airspace.AircraftPosition{first}); err != nil {
		t.Fatalf("SaveAircraftPositions() error: %v", err)
	}

	// Same identity again: the row is updated, not duplicated.
	second := &airspace.AircraftPosition{
		Callsign:       "KLM 123",
		ID:             "a1b2c3",
		Position:       geo.Point{Lat: 52.2, Lon: 4.2},
		AltitudeMeters: 500,
		ObservedAt:     base.Add(time.Minute),
	}
	other := &airspace.AircraftPosition{
		Callsign:   "BAW 77",
		Position:   geo.Point{Lat: 51.5, Lon: 0.1},
		ObservedAt: base,
	}
	if err := store.SaveAircraftPositions(ctx, []*airspace.AircraftPosition{second, other}); err != nil {
		t.Fatalf("SaveAircraftPositions() upsert error: %v", err)
	}

	out, err := store.LoadAircraftPositions(ctx)
	if err != nil {
		t.Fatalf("LoadAircraftPositions() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d aircraft, want 2", len(out))
	}

	byKey := make(map[string]*airspace.AircraftPosition, len(out))
	for _, a := range out {
		byKey[a.Key()] = a
	}
	got, ok := byKey["a1b2c3"]
	if !ok {
		t.Fatal("aircraft a1b2c3 missing")
	}
	if got.AltitudeMeters != 500 || !got.ObservedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("upsert did not replace the row: %+v", got)
	}
}

func TestPruneAircraftPositions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := store.SaveAircraftPositions(ctx, []*airspace.AircraftPosition{
		{Callsign: "OLD 1", Position: geo.Point{Lat: 52, Lon: 4}, ObservedAt: base.Add(-time.Hour)},
		{Callsign: "NEW 1", Position: geo.Point{Lat: 52, Lon: 4}, ObservedAt: base},
	}); err != nil {
		t.Fatalf("SaveAircraftPositions() error: %v", err)
	}

	n, err := store.PruneAircraftPositions(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("PruneAircraftPositions() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	out, err := store.LoadAircraftPositions(ctx)
	if err != nil {
		t.Fatalf("LoadAircraftPositions() error: %v", err)
	}
	if len(out) != 1 || out[0].Callsign != "NEW 1" {
		t.Errorf("after prune got %+v, want only NEW 1", out)
	}
}

func TestFlightPathUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := &airspace.FlightPath{
		FlightID:   "FL-001",
		AircraftID: "a1b2c3",
		Path:       []geo.Point{{Lat: 52.0, Lon: 4.0}, {Lat: 52.0, Lon: 4.01}},
		TimeStart:  base,
		TimeEnd:    base.Add(time.Hour),
	}
	if err := store.SaveFlightPath(ctx, first); err != nil {
		t.Fatalf("SaveFlightPath() error: %v", err)
	}

	// Same identifier again: the row is updated, not duplicated.
	second := &airspace.FlightPath{
		FlightID:  "FL-001",
		Simulated: true,
		Path:      []geo.Point{{Lat: 52.0, Lon: 4.0}, {Lat: 52.01, Lon: 4.0}, {Lat: 52.02, Lon: 4.0}},
		TimeStart: base.Add(time.Hour),
		TimeEnd:   base.Add(2 * time.Hour),
	}
	if err := store.SaveFlightPath(ctx, second); err != nil {
		t.Fatalf("SaveFlightPath() upsert error: %v", err)
	}
	if err := store.SaveFlightPath(ctx, &airspace.FlightPath{
		FlightID:  "FL-002",
		Path:      []geo.Point{{Lat: 51.5, Lon: 0.1}, {Lat: 51.6, Lon: 0.1}},
		TimeStart: base,
		TimeEnd:   base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveFlightPath() second flight error: %v", err)
	}

	out, err := store.LoadFlightPaths(ctx)
	if err != nil {
		t.Fatalf("LoadFlightPaths() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d flights, want 2", len(out))
	}
	// Loads are ordered by flight identifier.
	if out[0].FlightID != "FL-001" || out[1].FlightID != "FL-002" {
		t.Fatalf("load order = %s, %s; want FL-001, FL-002", out[0].FlightID, out[1].FlightID)
	}
	got := out[0]
	if !got.Simulated || len(got.Path) != 3 || got.AircraftID != "" {
		t.Errorf("upsert did not replace the row: %+v", got)
	}
	if !got.TimeStart.Equal(base.Add(time.Hour)) || !got.TimeEnd.Equal(base.Add(2*time.Hour)) {
		t.Errorf("window round-trip mismatch: %v - %v", got.TimeStart, got.TimeEnd)
	}
	if got.Path[1] != (geo.Point{Lat: 52.01, Lon: 4.0}) {
		t.Errorf("path round-trip mismatch: %+v", got.Path)
	}
}

func TestEmptyLoads(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if out, err := store.LoadVertiports(ctx); err != nil || len(out) != 0 {
		t.Errorf("LoadVertiports() = %v, %v; want empty, nil", out, err)
	}
	if out, err := store.LoadNoFlyZones(ctx); err != nil || len(out) != 0 {
		t.Errorf("LoadNoFlyZones() = %v, %v; want empty, nil", out, err)
	}
}
