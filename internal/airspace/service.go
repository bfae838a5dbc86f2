package airspace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aviaro/skygraph/pkg/logger"
)

// Store persists entity sets in the durable system of record. The engine
// synchronizes with it but never blocks queries on it: store failures after a
// commit are logged and tolerated (serving stale is acceptable, serving a
// mixed state is not).
type Store interface {
	SaveVertiports(ctx context.Context, vertiports []*Vertiport) error
	SaveWaypoints(ctx context.Context, waypoints []*Waypoint) error
	SaveNoFlyZones(ctx context.Context, zones []*NoFlyZone) error
	SaveAircraftPositions(ctx context.Context, positions []*AircraftPosition) error
	SaveFlightPath(ctx context.Context, flight *FlightPath) error

	LoadVertiports(ctx context.Context) ([]*Vertiport, error)
	LoadWaypoints(ctx context.Context) ([]*Waypoint, error)
	LoadNoFlyZones(ctx context.Context) ([]*NoFlyZone, error)
	LoadAircraftPositions(ctx context.Context) ([]*AircraftPosition, error)
	LoadFlightPaths(ctx context.Context) ([]*FlightPath, error)
}

// Service is the update coordinator. It owns the current snapshot behind an
// atomic pointer: readers load it once and run lock-free, writers serialize
// on a mutex, build the next snapshot, and swap. Each update is visible to
// queries in its entirety or not at all.
type Service struct {
	store       Store // optional; nil disables persistence
	gridCellDeg float64
	logger      *logger.Logger

	mu       sync.Mutex // serializes writers only
	snapshot atomic.Pointer[Snapshot]
}

// NewService creates an update coordinator with an empty initial snapshot.
func NewService(store Store, gridCellDeg float64, log *logger.Logger) *Service {
	s := &Service{
		store:       store,
		gridCellDeg: gridCellDeg,
		logger:      log.Named("airspace"),
	}
	s.snapshot.Store(newSnapshot(gridCellDeg))
	return s
}

// Snapshot returns the current immutable view for query execution.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

// Ready reports whether the engine has a snapshot to answer queries from.
func (s *Service) Ready() bool {
	return s.snapshot.Load() != nil
}

// LoadFromStore replaces the current snapshot with the persisted entity
// sets. Called at startup so the engine serves the last-synchronized state
// before the first push arrives.
func (s *Service) LoadFromStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	vertiports, err := s.store.LoadVertiports(ctx)
	if err != nil {
		return err
	}
	waypoints, err := s.store.LoadWaypoints(ctx)
	if err != nil {
		return err
	}
	zones, err := s.store.LoadNoFlyZones(ctx)
	if err != nil {
		return err
	}
	aircraft, err := s.store.LoadAircraftPositions(ctx)
	if err != nil {
		return err
	}
	flights, err := s.store.LoadFlightPaths(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := newSnapshot(s.gridCellDeg)
	next.Version = s.snapshot.Load().Version + 1
	for _, v := range vertiports {
		next.Vertiports[v.ID] = v
		next.Index.InsertNode(nodeKey(NodeVertiport, v.ID), v.Centroid())
	}
	for _, w := range waypoints {
		next.Waypoints[w.Label] = w
		next.Index.InsertNode(nodeKey(NodeWaypoint, w.Label), w.Position)
	}
	for _, z := range zones {
		next.Zones[z.Label] = z
		next.Index.InsertZone(z.Label, z.Polygon.BoundingBox())
	}
	for _, a := range aircraft {
		next.Aircraft[a.Key()] = a
		next.Index.InsertNode(nodeKey(NodeAircraft, a.Key()), a.Position)
	}
	for _, f := range flights {
		next.Flights[f.FlightID] = f
		next.FlightSegments[f.FlightID] = segmentizePath(f.Path, f.Window(), maxFlightSegmentMeters)
	}
	s.snapshot.Store(next)

	s.logger.Info("Loaded airspace from store",
		logger.Int("vertiports", len(vertiports)),
		logger.Int("waypoints", len(waypoints)),
		logger.Int("no_fly_zones", len(zones)),
		logger.Int("aircraft", len(aircraft)),
		logger.Int("flights", len(flights)))

	return nil
}

// ReplaceVertiports atomically replaces the entire vertiport set.
func (s *Service) ReplaceVertiports(ctx context.Context, vertiports []*Vertiport) error {
	seen := make(map[string]struct{}, len(vertiports))
	for _, v := range vertiports {
		if err := v.Validate(); err != nil {
			return &ValidationError{Kind: "vertiport", ID: v.ID, Err: err}
		}
		if _, dup := seen[v.ID]; dup {
			return &ValidationError{Kind: "vertiport", ID: v.ID, Err: errDuplicateID}
		}
		seen[v.ID] = struct{}{}
	}

	s.mu.Lock()
	cur := s.snapshot.Load()
	next := cur.clone()
	next.Vertiports = make(map[string]*Vertiport, len(vertiports))
	for id := range cur.Vertiports {
		next.Index.RemoveNode(nodeKey(NodeVertiport, id))
	}
	for _, v := range vertiports {
		next.Vertiports[v.ID] = v
		next.Index.InsertNode(nodeKey(NodeVertiport, v.ID), v.Centroid())
	}
	s.publishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Replaced vertiport set", logger.Int("count", len(vertiports)))
	s.persist("vertiports", func() error { return s.store.SaveVertiports(ctx, vertiports) })
	return nil
}

// ReplaceWaypoints atomically replaces the entire waypoint set.
func (s *Service) ReplaceWaypoints(ctx context.Context, waypoints []*Waypoint) error {
	seen := make(map[string]struct{}, len(waypoints))
	for _, w := range waypoints {
		if err := w.Validate(); err != nil {
			return &ValidationError{Kind: "waypoint", ID: w.Label, Err: err}
		}
		if _, dup := seen[w.Label]; dup {
			return &ValidationError{Kind: "waypoint", ID: w.Label, Err: errDuplicateID}
		}
		seen[w.Label] = struct{}{}
	}

	s.mu.Lock()
	cur := s.snapshot.Load()
	next := cur.clone()
	next.Waypoints = make(map[string]*Waypoint, len(waypoints))
	for label := range cur.Waypoints {
		next.Index.RemoveNode(nodeKey(NodeWaypoint, label))
	}
	for _, w := range waypoints {
		next.Waypoints[w.Label] = w
		next.Index.InsertNode(nodeKey(NodeWaypoint, w.Label), w.Position)
	}
	s.publishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Replaced waypoint set", logger.Int("count", len(waypoints)))
	s.persist("waypoints", func() error { return s.store.SaveWaypoints(ctx, waypoints) })
	return nil
}

// ReplaceNoFlyZones atomically replaces the entire no-fly zone set.
func (s *Service) ReplaceNoFlyZones(ctx context.Context, zones []*NoFlyZone) error {
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		if err := z.Validate(); err != nil {
			return &ValidationError{Kind: "no_fly_zone", ID: z.Label, Err: err}
		}
		if _, dup := seen[z.Label]; dup {
			return &ValidationError{Kind: "no_fly_zone", ID: z.Label, Err: errDuplicateID}
		}
		seen[z.Label] = struct{}{}
	}

	s.mu.Lock()
	cur := s.snapshot.Load()
	next := cur.clone()
	next.Zones = make(map[string]*NoFlyZone, len(zones))
	for label := range cur.Zones {
		next.Index.RemoveZone(label)
	}
	for _, z := range zones {
		next.Zones[z.Label] = z
		next.Index.InsertZone(z.Label, z.Polygon.BoundingBox())
	}
	s.publishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Replaced no-fly zone set", logger.Int("count", len(zones)))
	s.persist("no-fly zones", func() error { return s.store.SaveNoFlyZones(ctx, zones) })
	return nil
}

// UpdateAircraftPositions ingests telemetry observations, upserting by
// aircraft identity. Unlike the topology sets, aircraft are a continuous
// stream: observations append or replace, never wholesale-replace. An
// observation older than the one already held for the identity is dropped.
func (s *Service) UpdateAircraftPositions(ctx context.Context, positions []*AircraftPosition) error {
	if len(positions) == 0 {
		return ErrEmptyBatch
	}
	for _, a := range positions {
		if err := a.Validate(); err != nil {
			return &ValidationError{Kind: "aircraft_position", ID: a.Callsign, Err: err}
		}
	}

	s.mu.Lock()
	cur := s.snapshot.Load()
	next := cur.clone()
	applied := make([]*AircraftPosition, 0, len(positions))
	for _, a := range positions {
		key := a.Key()
		if existing, ok := next.Aircraft[key]; ok && existing.ObservedAt.After(a.ObservedAt) {
			continue // stale out-of-order observation
		}
		next.Aircraft[key] = a
		next.Index.InsertNode(nodeKey(NodeAircraft, key), a.Position)
		applied = append(applied, a)
	}
	s.publishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Updated aircraft positions",
		logger.Int("received", len(positions)),
		logger.Int("applied", len(applied)))

	if len(applied) > 0 {
		s.persist("aircraft positions", func() error {
			return s.store.SaveAircraftPositions(ctx, applied)
		})
	}
	return nil
}

// UpdateFlightPath upserts one flight's planned path, keyed by flight
// identifier. The path is segmentized on commit so intersection queries test
// short legs with tight interpolated time windows instead of the whole track.
func (s *Service) UpdateFlightPath(ctx context.Context, flight *FlightPath) error {
	if err := flight.Validate(); err != nil {
		return &ValidationError{Kind: "flight_path", ID: flight.FlightID, Err: err}
	}
	segments := segmentizePath(flight.Path, flight.Window(), maxFlightSegmentMeters)

	s.mu.Lock()
	next := s.snapshot.Load().clone()
	next.Flights[flight.FlightID] = flight
	next.FlightSegments[flight.FlightID] = segments
	s.publishLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Updated flight path",
		logger.String("flight_id", flight.FlightID),
		logger.Int("segments", len(segments)))
	s.persist("flight path", func() error { return s.store.SaveFlightPath(ctx, flight) })
	return nil
}

// publishLocked stamps and swaps in the next snapshot. Callers hold s.mu.
func (s *Service) publishLocked(next *Snapshot) {
	next.Version++
	next.TakenAt = time.Now().UTC()
	s.snapshot.Store(next)
}

// persist writes through to the store after a successful commit. A store
// failure leaves the engine serving the committed snapshot; it only costs
// durability, never consistency.
func (s *Service) persist(what string, fn func() error) {
	if s.store == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("Failed to persist "+what+" to store; continuing on in-memory snapshot",
			logger.Error(err))
	}
}

var errDuplicateID = errors.New("duplicate identifier in batch")
