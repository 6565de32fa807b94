package application

import (
	"context"
	"time"

	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
)

// Job periodically runs one sweep function until its context is canceled.
type Job struct {
	name     string
	interval time.Duration
	metrics  *metrics.Metrics
	run      func(ctx context.Context) error
}

func NewJob(name string, interval time.Duration, m *metrics.Metrics, run func(ctx context.Context) error) *Job {
	return &Job{name: name, interval: interval, metrics: m, run: run}
}

// Start blocks until the context is canceled. A panicking sweep is logged
// and the ticker keeps going.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	logger.Info(ctx, "job started", "job", j.name, "interval", j.interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "job stopped", "job", j.name)
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "job panicked", "job", j.name, "panic", r)
			if j.metrics != nil {
				j.metrics.SweepErrorsTotal.WithLabelValues(j.name).Inc()
			}
		}
	}()
	if j.metrics != nil {
		j.metrics.SweepsTotal.WithLabelValues(j.name).Inc()
	}
	if err := j.run(ctx); err != nil {
		logger.Error(ctx, "job run failed", "job", j.name, "error", err)
		if j.metrics != nil {
			j.metrics.SweepErrorsTotal.WithLabelValues(j.name).Inc()
		}
	}
}
