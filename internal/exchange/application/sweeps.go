package application

import (
	"context"
	"time"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
)

const sweepBatch = 100

// Sweeper is the backstop behind the synchronous paths: it periodically
// picks up requests whose inline quote, match or advance attempt failed
// and pushes them forward. Each request is processed in its own
// transaction; one bad request never blocks the batch.
type Sweeper struct {
	requests domain.RequestRepository
	engine   *Engine
	yield    time.Duration
}

func NewSweeper(requests domain.RequestRepository, engine *Engine, yield time.Duration) *Sweeper {
	return &Sweeper{requests: requests, engine: engine, yield: yield}
}

func (s *Sweeper) each(ctx context.Context, states []string, fn func(ctx context.Context, requestID string) error) error {
	requests, err := s.requests.ListByState(ctx, states, sweepBatch)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(ctx, req.RequestID); err != nil {
			logger.Warn(ctx, "sweep item failed",
				"request_id", req.RequestID, "state", req.State, "error", err)
		}
		if s.yield > 0 {
			time.Sleep(s.yield)
		}
	}
	return nil
}

// SweepLoading prices requests stuck in LOADING.
func (s *Sweeper) SweepLoading(ctx context.Context) error {
	return s.each(ctx, []string{domain.RequestStateLoading}, s.engine.Quote)
}

// SweepWaiting refreshes expired quotes and cancels requests never
// activated.
func (s *Sweeper) SweepWaiting(ctx context.Context) error {
	return s.each(ctx, []string{domain.RequestStateWaiting}, func(ctx context.Context, requestID string) error {
		if err := s.engine.CancelStale(ctx, requestID); err != nil {
			return err
		}
		return s.engine.ExpireQuote(ctx, requestID)
	})
}

// SweepReservation retries matching for both reservation states.
func (s *Sweeper) SweepReservation(ctx context.Context) error {
	return s.each(ctx, []string{
		domain.RequestStateInputReservation,
		domain.RequestStateOutputReservation,
	}, s.engine.MatchLeg)
}

// SweepActive re-evaluates active legs in case a synchronous advance was
// lost.
func (s *Sweeper) SweepActive(ctx context.Context) error {
	return s.each(ctx, []string{
		domain.RequestStateInput,
		domain.RequestStateOutput,
	}, s.engine.ReevaluateLeg)
}
