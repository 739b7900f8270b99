package producers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	domsvc "SignalFusion/internal/domain/service"
	"SignalFusion/internal/services/diagnostics"
	"SignalFusion/pkg/config"
	applogger "SignalFusion/pkg/logger"
)

var errBudgetExceeded = errors.New("cycle budget exceeded")

// BreakerSettings configures the per-producer circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// Batch is what one fan-out returned, sorted by module id.
type Batch struct {
	Signals []models.StandardSignal
	Reports []models.ProducerReport
}

// Runner fans a cycle out to every registered producer. A producer that fails,
// panics, times out or sits behind an open breaker is reported and replaced by a
// low-confidence fallback; it never fails the cycle.
type Runner struct {
	producers []domsvc.Producer
	breakers  map[string]*gobreaker.CircuitBreaker
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

func NewRunner(producers []domsvc.Producer, bs BreakerSettings, metrics domrepo.Metrics, log *applogger.Logger) *Runner {
	sorted := append([]domsvc.Producer(nil), producers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	r := &Runner{
		producers: sorted,
		breakers:  make(map[string]*gobreaker.CircuitBreaker, len(sorted)),
		metrics:   metrics,
		log:       log,
	}
	for _, p := range sorted {
		r.breakers[p.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.ID(),
			MaxRequests: bs.MaxRequests,
			Interval:    bs.Interval,
			Timeout:     bs.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < bs.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= bs.FailureRatio
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domsvc.ErrInsufficientData)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("producer breaker state change",
					applogger.String("module", name),
					applogger.String("from", from.String()),
					applogger.String("to", to.String()),
				)
			},
		})
	}
	return r
}

// Count is the number of registered producers.
func (r *Runner) Count() int { return len(r.producers) }

type slot struct {
	signals []models.StandardSignal
	report  models.ProducerReport
	done    bool
}

// Run invokes every producer in parallel. Stragglers past the budget are reported
// as errors; the call returns once all producers finished or the budget elapsed.
func (r *Runner) Run(ctx context.Context, candles []models.Candle, pair, timeframe string, regime models.RegimeState, cfg config.RunnerConfig) Batch {
	var mu sync.Mutex
	slots := make([]slot, len(r.producers))

	budget := cfg.Budget
	if budget <= 0 {
		budget = 8 * time.Second
	}
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var g errgroup.Group
	for i, p := range r.producers {
		i, p := i, p
		g.Go(func() error {
			sigs, rep := r.call(budgetCtx, p, candles, pair, timeframe, cfg.ProducerTimeout)
			mu.Lock()
			slots[i] = slot{signals: sigs, report: rep, done: true}
			mu.Unlock()
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-budgetCtx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	var batch Batch
	for i, p := range r.producers {
		s := slots[i]
		if !s.done {
			s.report = models.ProducerReport{
				ModuleID:   p.ID(),
				ModuleType: p.Type(),
				Status:     models.StatusError,
				Latency:    budget,
				Error:      errBudgetExceeded.Error(),
			}
			r.metrics.RecordProducer(p.ID(), string(models.StatusError), budget.Seconds())
		}
		if s.report.Status == models.StatusError {
			s.signals = []models.StandardSignal{Fallback(p, pair, timeframe, regime, cfg)}
			s.report.Fallback = true
		}
		batch.Signals = append(batch.Signals, s.signals...)
		batch.Reports = append(batch.Reports, s.report)
	}
	sort.SliceStable(batch.Signals, func(i, j int) bool { return batch.Signals[i].ModuleID < batch.Signals[j].ModuleID })
	return batch
}

func (r *Runner) call(ctx context.Context, p domsvc.Producer, candles []models.Candle, pair, timeframe string, timeout time.Duration) ([]models.StandardSignal, models.ProducerReport) {
	start := time.Now()
	rep := models.ProducerReport{ModuleID: p.ID(), ModuleType: p.Type()}

	out, err := r.breakers[p.ID()].Execute(func() (interface{}, error) {
		return invoke(ctx, p, candles, pair, timeframe, timeout)
	})
	rep.Latency = time.Since(start)

	var sigs []models.StandardSignal
	switch {
	case err == nil:
		returned, _ := out.([]models.StandardSignal)
		// the producer owns its slice; stamp a copy
		sigs = append([]models.StandardSignal(nil), returned...)
		for i := range sigs {
			sigs[i].ModuleID = p.ID()
			sigs[i].ModuleType = p.Type()
		}
		rep.SignalCount = len(sigs)
		rep.Status = models.StatusActive
		if len(sigs) == 0 {
			rep.Status = models.StatusInactive
		}
		rep.Quality = diagnostics.ModuleQuality(rep.Status, sigs)
	case errors.Is(err, domsvc.ErrInsufficientData):
		rep.Status = models.StatusInsufficientData
		rep.Error = err.Error()
	default:
		rep.Status = models.StatusError
		rep.Error = err.Error()
		r.log.Warn("producer failed",
			applogger.String("module", p.ID()),
			applogger.String("pair", pair),
			applogger.Duration("latency_ms", rep.Latency),
			applogger.Error(err),
		)
	}
	r.metrics.RecordProducer(p.ID(), string(rep.Status), rep.Latency.Seconds())
	return sigs, rep
}

// invoke runs one Analyze call under its own timeout, converting a panic into an error.
// The producer keeps running in the background if it ignores ctx; its result is discarded.
func invoke(ctx context.Context, p domsvc.Producer, candles []models.Candle, pair, timeframe string, timeout time.Duration) ([]models.StandardSignal, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		sigs []models.StandardSignal
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("producer %s panicked: %v", p.ID(), rec)}
			}
		}()
		sigs, err := p.Analyze(ctx, candles, pair, timeframe)
		ch <- result{sigs: sigs, err: err}
	}()

	select {
	case res := <-ch:
		return res.sigs, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("producer %s: %w", p.ID(), ctx.Err())
	}
}

// Fallback is the stand-in signal for a failed producer: low confidence, minimum
// strength, leaning with the regime. Without a regime bias it is a hold, which
// fusion ignores.
func Fallback(p domsvc.Producer, pair, timeframe string, regime models.RegimeState, cfg config.RunnerConfig) models.StandardSignal {
	dir := regime.Bias()
	prob := 0.5
	switch dir {
	case models.DirectionBuy:
		prob = 0.55
	case models.DirectionSell:
		prob = 0.45
	}
	strength := cfg.FallbackStrength
	if strength <= 0 {
		strength = 1
	}
	return models.StandardSignal{
		ModuleID:        p.ID(),
		ModuleType:      p.Type(),
		Pair:            pair,
		Timeframe:       timeframe,
		Direction:       dir,
		Probability:     prob,
		Confidence:      cfg.FallbackConfidence,
		Strength:        strength,
		Factors:         []string{"fallback: producer unavailable"},
		ValidityMinutes: 15,
		Timestamp:       time.Now().UTC(),
		Fallback:        true,
	}
}
