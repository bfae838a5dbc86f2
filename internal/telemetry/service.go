package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/pkg/logger"
)

// Service polls the telemetry feed and applies the observations to the
// airspace state.
type Service struct {
	client       *Client
	airspace     *airspace.Service
	pollInterval time.Duration
	logger       *logger.Logger
}

// NewService creates a new telemetry polling service.
func NewService(client *Client, as *airspace.Service, pollInterval time.Duration, log *logger.Logger) *Service {
	return &Service{
		client:       client,
		airspace:     as,
		pollInterval: pollInterval,
		logger:       log.Named("telemetry"),
	}
}

// Run polls the feed until the context is cancelled. Feed failures are
// logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting telemetry polling",
		logger.Duration("interval", s.pollInterval),
	)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Telemetry polling stopped")
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	positions, err := s.client.FetchPositions(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch telemetry feed", logger.Error(err))
		return
	}
	if len(positions) == 0 {
		return
	}

	if err := s.airspace.UpdateAircraftPositions(ctx, positions); err != nil {
		if errors.Is(err, airspace.ErrEmptyBatch) {
			return
		}
		s.logger.Warn("Failed to apply telemetry batch",
			logger.Int("aircraft_count", len(positions)),
			logger.Error(err),
		)
		return
	}

	s.logger.Debug("Applied telemetry batch",
		logger.Int("aircraft_count", len(positions)),
	)
}
