package sundaews

import (
	"context"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/rs/zerolog"
)

const defaultSweepBatch = 500

// Sweeper removes connections whose ttl has passed but which DynamoDB has not
// yet expired, hanging up their transport connection first.
type Sweeper struct {
	Registry  Registry
	Transport Transport
	Metrics   sundaecli.Metrics
	Logger    zerolog.Logger
	BatchSize int
	Dry       bool
}

// Sweep runs one pass and returns the number of connections removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	expired, err := s.Registry.Expired(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("listing expired connections: %w", err)
	}

	var swept int
	for _, conn := range expired {
		logger := s.Logger.With().
			Str("connection_id", conn.ConnectionID).
			Time("expired_at", conn.ExpiresAt()).
			Logger()

		if s.Dry {
			logger.Info().Msg("would sweep expired connection")
			continue
		}

		if err := s.Transport.Close(ctx, conn.ConnectionID); err != nil {
			logger.Warn().Err(err).Msg("failed to close expired connection")
		}
		if err := s.Registry.Remove(ctx, conn.ConnectionID); err != nil {
			return swept, fmt.Errorf("removing expired connection %v: %w", conn.ConnectionID, err)
		}
		swept++
		logger.Debug().Msg("swept expired connection")
	}

	s.Metrics.Gauge(ctx, sundaecli.SweptMetric, float64(swept))
	s.Logger.Info().Int("found", len(expired)).Int("swept", swept).Msg("sweep complete")
	return swept, nil
}

// Run adapts Sweep to a scheduled callback.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
