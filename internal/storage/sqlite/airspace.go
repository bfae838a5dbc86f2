// Package sqlite persists airspace entities in a local SQLite database so
// the in-memory state can be rebuilt after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/pkg/logger"
)

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return db, nil
}

// AirspaceStore handles persistence of vertiports, waypoints, no-fly zones,
// and aircraft positions.
type AirspaceStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAirspaceStore creates a new SQLite airspace store and initializes the
// schema.
func NewAirspaceStore(db *sql.DB, log *logger.Logger) (*AirspaceStore, error) {
	store := &AirspaceStore{
		db:     db,
		logger: log.Named("sqlite-airspace"),
	}

	if err := store.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize airspace storage: %w", err)
	}

	return store, nil
}

// initDB initializes the database tables
func (s *AirspaceStore) initDB() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS vertiports (
			id TEXT PRIMARY KEY,
			label TEXT,
			polygon TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS waypoints (
			label TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS no_fly_zones (
			label TEXT PRIMARY KEY,
			polygon TEXT NOT NULL,
			time_start TIMESTAMP NOT NULL,
			time_end TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS aircraft_positions (
			key TEXT PRIMARY KEY,
			callsign TEXT NOT NULL,
			aircraft_id TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			altitude_meters REAL NOT NULL,
			observed_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flight_paths (
			flight_id TEXT PRIMARY KEY,
			aircraft_id TEXT,
			simulated INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL,
			time_start TIMESTAMP NOT NULL,
			time_end TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, tableSQL := range tables {
		if _, err := s.db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_zones_window ON no_fly_zones(time_start, time_end)`,
		`CREATE INDEX IF NOT EXISTS idx_aircraft_observed ON aircraft_positions(observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_window ON flight_paths(time_start, time_end)`,
	}

	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// SaveVertiports replaces the stored vertiport set with the given one.
func (s *AirspaceStore) SaveVertiports(ctx context.Context, vertiports []*airspace.Vertiport) error {
	return s.replaceAll(ctx, "vertiports", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, v := range vertiports {
			poly, err := json.Marshal(v.Polygon)
			if err != nil {
				return fmt.Errorf("failed to encode polygon for %s: %w", v.ID, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO vertiports (id, label, polygon, updated_at) VALUES (?, ?, ?, ?)`,
				v.ID, v.Label, string(poly), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert vertiport %s: %w", v.ID, err)
			}
		}
		return nil
	})
}

// SaveWaypoints replaces the stored waypoint set with the given one.
func (s *AirspaceStore) SaveWaypoints(ctx context.Context, waypoints []*airspace.Waypoint) error {
	return s.replaceAll(ctx, "waypoints", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, w := range waypoints {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO waypoints (label, lat, lon, updated_at) VALUES (?, ?, ?, ?)`,
				w.Label, w.Position.Lat, w.Position.Lon, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert waypoint %s: %w", w.Label, err)
			}
		}
		return nil
	})
}

// SaveNoFlyZones replaces the stored no-fly zone set with the given one.
func (s *AirspaceStore) SaveNoFlyZones(ctx context.Context, zones []*airspace.NoFlyZone) error {
	return s.replaceAll(ctx, "no_fly_zones", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, z := range zones {
			poly, err := json.Marshal(z.Polygon)
			if err != nil {
				return fmt.Errorf("failed to encode polygon for %s: %w", z.Label, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO no_fly_zones (label, polygon, time_start, time_end, updated_at) VALUES (?, ?, ?, ?, ?)`,
				z.Label, string(poly),
				z.TimeStart.UTC().Format(time.RFC3339),
				z.TimeEnd.UTC().Format(time.RFC3339),
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert no-fly zone %s: %w", z.Label, err)
			}
		}
		return nil
	})
}

// SaveAircraftPositions upserts the given aircraft observations, keyed by
// the aircraft identity. Unlike the static entity sets, aircraft rows are
// never dropped wholesale: each call merges into what is already stored.
func (s *AirspaceStore) SaveAircraftPositions(ctx context.Context, positions []*airspace.AircraftPosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range positions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO aircraft_positions (key, callsign, aircraft_id, lat, lon, altitude_meters, observed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				callsign = excluded.callsign,
				aircraft_id = excluded.aircraft_id,
				lat = excluded.lat,
				lon = excluded.lon,
				altitude_meters = excluded.altitude_meters,
				observed_at = excluded.observed_at`,
			p.Key(), p.Callsign, p.ID,
			p.Position.Lat, p.Position.Lon, p.AltitudeMeters,
			p.ObservedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert aircraft %s: %w", p.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveFlightPath upserts one flight path, keyed by the flight identifier.
func (s *AirspaceStore) SaveFlightPath(ctx context.Context, flight *airspace.FlightPath) error {
	path, err := json.Marshal(flight.Path)
	if err != nil {
		return fmt.Errorf("failed to encode path for %s: %w", flight.FlightID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flight_paths (flight_id, aircraft_id, simulated, path, time_start, time_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(flight_id) DO UPDATE SET
			aircraft_id = excluded.aircraft_id,
			simulated = excluded.simulated,
			path = excluded.path,
			time_start = excluded.time_start,
			time_end = excluded.time_end,
			updated_at = excluded.updated_at`,
		flight.FlightID, flight.AircraftID, flight.Simulated, string(path),
		flight.TimeStart.UTC().Format(time.RFC3339),
		flight.TimeEnd.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert flight path %s: %w", flight.FlightID, err)
	}
	return nil
}

// LoadFlightPaths returns all stored flight paths.
func (s *AirspaceStore) LoadFlightPaths(ctx context.Context) ([]*airspace.FlightPath, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flight_id, aircraft_id, simulated, path, time_start, time_end FROM flight_paths ORDER BY flight_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight paths: %w", err)
	}
	defer rows.Close()

	var flights []*airspace.FlightPath
	for rows.Next() {
		var f airspace.FlightPath
		var path, start, end string
		if err := rows.Scan(&f.FlightID, &f.AircraftID, &f.Simulated, &path, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan flight path: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &f.Path); err != nil {
			return nil, fmt.Errorf("failed to decode path for %s: %w", f.FlightID, err)
		}
		if f.TimeStart, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("failed to parse time_start for %s: %w", f.FlightID, err)
		}
		if f.TimeEnd, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("failed to parse time_end for %s: %w", f.FlightID, err)
		}
		flights = append(flights, &f)
	}
	return flights, rows.Err()
}

// LoadVertiports returns all stored vertiports.
func (s *AirspaceStore) LoadVertiports(ctx context.Context) ([]*airspace.Vertiport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, polygon FROM vertiports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertiports: %w", err)
	}
	defer rows.Close()

	var vertiports []*airspace.Vertiport
	for rows.Next() {
		var v airspace.Vertiport
		var poly string
		if err := rows.Scan(&v.ID, &v.Label, &poly); err != nil {
			return nil, fmt.Errorf("failed to scan vertiport: %w", err)
		}
		if err := json.Unmarshal([]byte(poly), &v.Polygon); err != nil {
			return nil, fmt.Errorf("failed to decode polygon for %s: %w", v.ID, err)
		}
		vertiports = append(vertiports, &v)
	}
	return vertiports, rows.Err()
}

// LoadWaypoints returns all stored waypoints.
func (s *AirspaceStore) LoadWaypoints(ctx context.Context) ([]*airspace.Waypoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, lat, lon FROM waypoints ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query waypoints: %w", err)
	}
	defer rows.Close()

	var waypoints []*airspace.Waypoint
	for rows.Next() {
		var w airspace.Waypoint
		if err := rows.Scan(&w.Label, &w.Position.Lat, &w.Position.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan waypoint: %w", err)
		}
		waypoints = append(waypoints, &w)
	}
	return waypoints, rows.Err()
}

// LoadNoFlyZones returns all stored no-fly zones.
func (s *AirspaceStore) LoadNoFlyZones(ctx context.Context) ([]*airspace.NoFlyZone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, polygon, time_start, time_end FROM no_fly_zones ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query no-fly zones: %w", err)
	}
	defer rows.Close()

	var zones []*airspace.NoFlyZone
	for rows.Next() {
		var z airspace.NoFlyZone
		var poly, start, end string
		if err := rows.Scan(&z.Label, &poly, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan no-fly zone: %w", err)
		}
		if err := json.Unmarshal([]byte(poly), &z.Polygon); err != nil {
			return nil, fmt.Errorf("failed to decode polygon for %s: %w", z.Label, err)
		}
		if z.TimeStart, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("failed to parse time_start for %s: %w", z.Label, err)
		}
		if z.TimeEnd, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("failed to parse time_end for %s: %w", z.Label, err)
		}
		zones = append(zones, &z)
	}
	return zones, rows.Err()
}

// LoadAircraftPositions returns all stored aircraft observations.
func (s *AirspaceStore) LoadAircraftPositions(ctx context.Context) ([]*airspace.AircraftPosition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT callsign, aircraft_id, lat, lon, altitude_meters, observed_at FROM aircraft_positions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft positions: %w", err)
	}
	defer rows.Close()

	var positions []*airspace.AircraftPosition
	for rows.Next() {
		var p airspace.AircraftPosition
		var observed string
		if err := rows.Scan(&p.Callsign, &p.ID, &p.Position.Lat, &p.Position.Lon, &p.AltitudeMeters, &observed); err != nil {
			return nil, fmt.Errorf("failed to scan aircraft position: %w", err)
		}
		if p.ObservedAt, err = time.Parse(time.RFC3339, observed); err != nil {
			return nil, fmt.Errorf("failed to parse observed_at for %s: %w", p.Key(), err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// PruneAircraftPositions deletes aircraft rows older than the cutoff and
// returns the number removed.
func (s *AirspaceStore) PruneAircraftPositions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM aircraft_positions WHERE observed_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune aircraft positions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// replaceAll runs delete-then-insert for a full-replace table inside a
// single transaction.
func (s *AirspaceStore) replaceAll(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// interface guard
var _ airspace.Store = (*AirspaceStore)(nil)
