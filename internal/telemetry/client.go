// Package telemetry ingests live aircraft positions from an external ADS-B
// feed and pushes them into the airspace state.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/geo"
	"github.com/aviaro/skygraph/pkg/logger"
)

const feetToMeters = 1.0 / 3.28084

// feedResponse is the tar1090-style aircraft.json payload.
type feedResponse struct {
	Now      float64      `json:"now"`
	Aircraft []feedTarget `json:"aircraft"`
}

// feedTarget is a single aircraft entry in the feed.
type feedTarget struct {
	Hex     string       `json:"hex"`
	Flight  string       `json:"flight"`
	Lat     float64      `json:"lat"`
	Lon     float64      `json:"lon"`
	AltBaro feedAltitude `json:"alt_baro"`
	Seen    float64      `json:"seen_pos"`
}

// feedAltitude decodes alt_baro, which the feed reports either as feet or as
// the string "ground" for aircraft on the surface. A non-numeric value must
// not fail the whole payload.
type feedAltitude struct {
	value interface{}
}

func (a *feedAltitude) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	a.value = v
	return nil
}

// Feet returns the altitude in feet, or 0 for grounded or missing values.
func (a feedAltitude) Feet() float64 {
	f, ok := a.value.(float64)
	if !ok {
		return 0
	}
	return f
}

// Client fetches aircraft positions from the feed URL.
type Client struct {
	httpClient *http.Client
	feedURL    string
	logger     *logger.Logger
}

// NewClient creates a new telemetry feed client.
func NewClient(feedURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		feedURL: feedURL,
		logger:  log.Named("telemetry-cli"),
	}
}

// FetchPositions fetches the current aircraft positions from the feed and
// converts them to airspace observations. Targets without a usable position
// or identity are skipped.
func (c *Client) FetchPositions(ctx context.Context) ([]*airspace.AircraftPosition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var data feedResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	feedTime := time.Unix(int64(data.Now), 0).UTC()
	if data.Now == 0 {
		feedTime = time.Now().UTC()
	}

	positions := make([]*airspace.AircraftPosition, 0, len(data.Aircraft))
	skipped := 0
	for _, t := range data.Aircraft {
		p := convertTarget(t, feedTime)
		if p == nil || p.Validate() != nil {
			skipped++
			continue
		}
		positions = append(positions, p)
	}

	c.logger.Debug("Fetched telemetry feed",
		logger.Int("aircraft_count", len(positions)),
		logger.Int("skipped", skipped),
	)

	return positions, nil
}

// convertTarget maps one feed entry to an airspace observation, or nil when
// the entry cannot be tracked.
func convertTarget(t feedTarget, feedTime time.Time) *airspace.AircraftPosition {
	callsign := strings.TrimSpace(t.Flight)
	if callsign == "" {
		callsign = strings.TrimSpace(t.Hex)
	}
	if callsign == "" {
		return nil
	}

	pos := geo.Point{Lat: t.Lat, Lon: t.Lon}
	if !pos.Valid() || (t.Lat == 0 && t.Lon == 0) {
		return nil
	}

	observed := feedTime
	if t.Seen > 0 {
		observed = feedTime.Add(-time.Duration(t.Seen * float64(time.Second)))
	}

	return &airspace.AircraftPosition{
		Callsign:       callsign,
		ID:             strings.TrimSpace(t.Hex),
		Position:       pos,
		AltitudeMeters: t.AltBaro.Feet() * feetToMeters,
		ObservedAt:     observed,
	}
}
