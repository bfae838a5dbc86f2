package api

import (
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/geo"
)

// updateResponse acknowledges an accepted airspace update batch.
type updateResponse struct {
	Updated int `json:"updated"`
}

// bestPathRequest is the body of a best-path query. TimeStart and TimeEnd
// bound the travel window; both are optional and sanitized server-side.
type bestPathRequest struct {
	StartID   string     `json:"start_id"`
	StartType string     `json:"start_type"`
	EndID     string     `json:"end_id"`
	TimeStart *time.Time `json:"time_start,omitempty"`
	TimeEnd   *time.Time `json:"time_end,omitempty"`
}

// bestPathResponse carries the path segments, or no_path=true when start and
// end are confirmed disconnected for the window.
type bestPathResponse struct {
	NoPath   bool                   `json:"no_path"`
	Segments []airspace.PathSegment `json:"segments"`
}

// nearestNodeResponse identifies the routable node closest to a query point.
type nearestNodeResponse struct {
	Node airspace.Node `json:"node"`
}

// flightPathRequest is the body of a flight path upsert. The flight
// identifier comes from the URL.
type flightPathRequest struct {
	AircraftID string      `json:"aircraft_id,omitempty"`
	Simulated  bool        `json:"simulated,omitempty"`
	Path       []geo.Point `json:"path"`
	TimeStart  time.Time   `json:"time_start"`
	TimeEnd    time.Time   `json:"time_end"`
}

// flightSearchRequest asks for flights whose paths cross a bounding box
// during a time window. Both times are required.
type flightSearchRequest struct {
	MinLat    float64    `json:"min_lat"`
	MinLon    float64    `json:"min_lon"`
	MaxLat    float64    `json:"max_lat"`
	MaxLon    float64    `json:"max_lon"`
	TimeStart *time.Time `json:"time_start"`
	TimeEnd   *time.Time `json:"time_end"`
}

// flightResponse is one matching flight, with the latest telemetry for its
// aircraft when the engine has seen any.
type flightResponse struct {
	FlightID     string                     `json:"flight_id"`
	AircraftID   string                     `json:"aircraft_id,omitempty"`
	TimeStart    time.Time                  `json:"time_start"`
	TimeEnd      time.Time                  `json:"time_end"`
	LastPosition *airspace.AircraftPosition `json:"last_position,omitempty"`
}

// flightSearchResponse lists the flights intersecting the search window.
type flightSearchResponse struct {
	Flights []flightResponse `json:"flights"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}
