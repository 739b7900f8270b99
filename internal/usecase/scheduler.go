package usecase

import (
	"context"
	"time"

	"SignalFusion/internal/domain/models"
	applogger "SignalFusion/pkg/logger"
)

// Decider is the part of DecisionEngine the scheduler needs.
type Decider interface {
	Decide(ctx context.Context, pair, timeframe string, bars int) (models.FusedDecision, error)
}

// Scheduler runs a cycle for every configured pair on a fixed interval.
type Scheduler struct {
	engine    Decider
	pairs     []string
	timeframe string
	bars      int
	interval  time.Duration
	log       *applogger.Logger
}

func NewScheduler(engine Decider, pairs []string, timeframe string, bars int, interval time.Duration, log *applogger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{engine: engine, pairs: pairs, timeframe: timeframe, bars: bars, interval: interval, log: log}
}

// Run blocks until ctx is done. Pairs are analysed one after another so a slow
// pair delays, but never overlaps, the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.pairs) == 0 {
		s.log.Info("scheduler disabled: no pairs configured")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, pair := range s.pairs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.engine.Decide(ctx, pair, s.timeframe, s.bars); err != nil {
			s.log.Error("scheduled decision failed",
				applogger.String("pair", pair),
				applogger.String("timeframe", s.timeframe),
				applogger.Error(err),
			)
		}
	}
}
