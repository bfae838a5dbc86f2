package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/config"
	"github.com/aviaro/skygraph/internal/geo"
	"github.com/aviaro/skygraph/internal/routing"
	"github.com/aviaro/skygraph/pkg/logger"
)

// Handler holds the services the API endpoints dispatch to.
type Handler struct {
	airspace *airspace.Service
	finder   *routing.Finder
	routing  config.RoutingConfig
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(as *airspace.Service, finder *routing.Finder, routingCfg config.RoutingConfig, log *logger.Logger) *Handler {
	return &Handler{
		airspace: as,
		finder:   finder,
		routing:  routingCfg,
		logger:   log.Named("api-handler"),
	}
}

// ReplaceVertiports handles PUT /api/v1/airspace/vertiports
func (h *Handler) ReplaceVertiports(w http.ResponseWriter, r *http.Request) {
	var vertiports []*airspace.Vertiport
	if err := json.NewDecoder(r.Body).Decode(&vertiports); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.airspace.ReplaceVertiports(r.Context(), vertiports); err != nil {
		h.writeUpdateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateResponse{Updated: len(vertiports)})
}

// ReplaceWaypoints handles PUT /api/v1/airspace/waypoints
func (h *Handler) ReplaceWaypoints(w http.ResponseWriter, r *http.Request) {
	var waypoints []*airspace.Waypoint
	if err := json.NewDecoder(r.Body).Decode(&waypoints); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.airspace.ReplaceWaypoints(r.Context(), waypoints); err != nil {
		h.writeUpdateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateResponse{Updated: len(waypoints)})
}

// ReplaceNoFlyZones handles PUT /api/v1/airspace/no-fly-zones
func (h *Handler) ReplaceNoFlyZones(w http.ResponseWriter, r *http.Request) {
	var zones []*airspace.NoFlyZone
	if err := json.NewDecoder(r.Body).Decode(&zones); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.airspace.ReplaceNoFlyZones(r.Context(), zones); err != nil {
		h.writeUpdateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateResponse{Updated: len(zones)})
}

// UpdateAircraftPositions handles POST /api/v1/airspace/aircraft
func (h *Handler) UpdateAircraftPositions(w http.ResponseWriter, r *http.Request) {
	var positions []*airspace.AircraftPosition
	if err := json.NewDecoder(r.Body).Decode(&positions); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.airspace.UpdateAircraftPositions(r.Context(), positions); err != nil {
		h.writeUpdateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateResponse{Updated: len(positions)})
}

// BestPath handles POST /api/v1/routes/best-path
func (h *Handler) BestPath(w http.ResponseWriter, r *http.Request) {
	var req bestPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	startType, err := airspace.ParseNodeType(req.StartType)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if startType == airspace.NodeWaypoint {
		h.writeError(w, http.StatusBadRequest, "start must be a vertiport or an aircraft")
		return
	}

	window, err := h.sanitizeWindow(req.TimeStart, req.TimeEnd)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.airspace.Snapshot()
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.routing.QueryTimeout())
	defer cancel()

	segments, err := h.finder.BestPath(ctx, snap, routing.Query{
		StartID:   req.StartID,
		StartType: startType,
		EndID:     req.EndID,
		Window:    window,
	})
	if err != nil {
		switch {
		case errors.Is(err, airspace.ErrNoPath):
			h.writeJSON(w, http.StatusOK, bestPathResponse{NoPath: true, Segments: []airspace.PathSegment{}})
		case errors.Is(err, airspace.ErrNodeNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, airspace.ErrTimeout):
			h.writeError(w, http.StatusGatewayTimeout, err.Error())
		default:
			h.logger.Error("Best-path query failed", logger.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, bestPathResponse{NoPath: false, Segments: segments})
}

// UpdateFlightPath handles PUT /api/v1/flights/{flightID}/path
func (h *Handler) UpdateFlightPath(w http.ResponseWriter, r *http.Request) {
	var req flightPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	flight := &airspace.FlightPath{
		FlightID:   chi.URLParam(r, "flightID"),
		AircraftID: req.AircraftID,
		Simulated:  req.Simulated,
		Path:       req.Path,
		TimeStart:  req.TimeStart,
		TimeEnd:    req.TimeEnd,
	}
	if err := h.airspace.UpdateFlightPath(r.Context(), flight); err != nil {
		h.writeUpdateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateResponse{Updated: 1})
}

// SearchFlights handles POST /api/v1/flights/search
func (h *Handler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	var req flightSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TimeStart == nil || req.TimeEnd == nil {
		h.writeError(w, http.StatusBadRequest, "time_start and time_end are required")
		return
	}
	window := airspace.TimeWindow{Start: req.TimeStart.UTC(), End: req.TimeEnd.UTC()}
	if window.End.Before(window.Start) {
		h.writeError(w, http.StatusBadRequest, "time_end is before time_start")
		return
	}
	box := geo.BBox{MinLat: req.MinLat, MinLon: req.MinLon, MaxLat: req.MaxLat, MaxLon: req.MaxLon}
	if !(geo.Point{Lat: req.MinLat, Lon: req.MinLon}).Valid() ||
		!(geo.Point{Lat: req.MaxLat, Lon: req.MaxLon}).Valid() ||
		req.MinLat > req.MaxLat || req.MinLon > req.MaxLon {
		h.writeError(w, http.StatusBadRequest, "search window out of range")
		return
	}

	snap, err := h.airspace.Snapshot()
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	matches := snap.FlightsIntersecting(box, window)
	flights := make([]flightResponse, 0, len(matches))
	for _, f := range matches {
		fr := flightResponse{
			FlightID:   f.FlightID,
			AircraftID: f.AircraftID,
			TimeStart:  f.TimeStart,
			TimeEnd:    f.TimeEnd,
		}
		id := f.AircraftID
		if id == "" {
			id = f.FlightID
		}
		if pos, ok := snap.LatestAircraft(id); ok {
			fr.LastPosition = pos
		}
		flights = append(flights, fr)
	}

	h.writeJSON(w, http.StatusOK, flightSearchResponse{Flights: flights})
}

// NearestNode handles GET /api/v1/airspace/nodes/nearest
func (h *Handler) NearestNode(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		h.writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}
	pt := geo.Point{Lat: lat, Lon: lon}
	if !pt.Valid() {
		h.writeError(w, http.StatusBadRequest, "lat/lon out of range")
		return
	}

	snap, err := h.airspace.Snapshot()
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	node, ok := snap.NearestNode(pt)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no routable nodes")
		return
	}

	h.writeJSON(w, http.StatusOK, nearestNodeResponse{Node: node})
}

// GetReady handles GET /ready: 200 once a snapshot is available.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	if !h.airspace.Ready() {
		h.writeError(w, http.StatusServiceUnavailable, airspace.ErrNotReady.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// sanitizeWindow fills in missing query times and rejects inverted or
// entirely past windows. A missing start means "now"; a missing end means
// now plus the configured default window, regardless of the start.
func (h *Handler) sanitizeWindow(start, end *time.Time) (airspace.TimeWindow, error) {
	now := time.Now().UTC()

	w := airspace.TimeWindow{Start: now, End: now.Add(h.routing.DefaultWindow())}
	if start != nil {
		w.Start = start.UTC()
	}
	if end != nil {
		w.End = end.UTC()
	}

	if w.End.Before(w.Start) {
		return airspace.TimeWindow{}, errors.New("time_end is before time_start")
	}
	if w.End.Before(now) {
		return airspace.TimeWindow{}, errors.New("time window is entirely in the past")
	}
	return w, nil
}

// writeUpdateError maps an update failure onto an HTTP status.
func (h *Handler) writeUpdateError(w http.ResponseWriter, err error) {
	switch {
	case airspace.IsValidationError(err), errors.Is(err, airspace.ErrEmptyBatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Airspace update failed", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
