package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Engine holds the tuning surface of the decision engine. It is re-read at the
// start of every cycle so edits take effect without a restart.
type Engine struct {
	Regime     RegimeConfig     `yaml:"regime"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Gate       GateConfig       `yaml:"gate"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Runner     RunnerConfig     `yaml:"runner"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
}

type RegimeConfig struct {
	MinBars          int     `yaml:"min_bars" default:"20" validate:"gte=20"`
	Lookback         int     `yaml:"lookback" default:"10" validate:"gte=2"`
	ShockVolatility  float64 `yaml:"shock_volatility" default:"0.02"`
	ShockMomentum    float64 `yaml:"shock_momentum" default:"0.8"`
	BreakoutMomentum float64 `yaml:"breakout_momentum" default:"0.5"`
	TrendStrength    float64 `yaml:"trend_strength" default:"0.6"`
	TrendVolatility  float64 `yaml:"trend_volatility" default:"0.015"`
	RangeTrend       float64 `yaml:"range_trend" default:"0.3"`
	RangeVolatility  float64 `yaml:"range_volatility" default:"0.01"`
}

type Correlation struct {
	A           string  `yaml:"a" validate:"required"`
	B           string  `yaml:"b" validate:"required"`
	Coefficient float64 `yaml:"coefficient" validate:"gte=-1,lte=1"`
}

type FusionConfig struct {
	Pooling              string  `yaml:"pooling" default:"kish" validate:"oneof=kish mean sum"`
	ProbabilityEpsilon   float64 `yaml:"probability_epsilon" default:"0.000001" validate:"gt=0,lt=0.1"`
	CorrelationThreshold float64 `yaml:"correlation_threshold" default:"0.3"`
	CorrelationPenalty   float64 `yaml:"correlation_penalty" default:"0.3"`
	BaseWeight           float64 `yaml:"base_weight" default:"0.10" validate:"gt=0"`
	MTFBaseWeight        float64 `yaml:"mtf_base_weight" default:"0.15" validate:"gt=0"`
	MinObservations      int     `yaml:"min_observations" default:"10"`
	WinRateCoef          float64 `yaml:"win_rate_coef" default:"0.4"`
	SharpeCoef           float64 `yaml:"sharpe_coef" default:"0.4"`
	ReliabilityCoef      float64 `yaml:"reliability_coef" default:"0.2"`
	SharpeFloor          float64 `yaml:"sharpe_floor" default:"0.1"`
	SharpeCap            float64 `yaml:"sharpe_cap" default:"2.0"`
	TotalModules         int     `yaml:"total_modules" default:"7" validate:"gte=1"`
	MTFBonusPerfect      float64 `yaml:"mtf_bonus_perfect" default:"0.10"`
	MTFBonusStrong       float64 `yaml:"mtf_bonus_strong" default:"0.05"`
	MTFPenaltyConflict   float64 `yaml:"mtf_penalty_conflict" default:"0.20"`

	// RegimeWeights maps module type to regime label to multiplier.
	RegimeWeights map[string]map[string]float64 `yaml:"regime_weights"`
	Correlations  []Correlation                 `yaml:"correlations" validate:"dive"`
}

type GateConfig struct {
	ExpectedReturn  float64 `yaml:"expected_return" default:"0.02"`
	ExpectedLoss    float64 `yaml:"expected_loss" default:"0.01"`
	TransactionCost float64 `yaml:"transaction_cost" default:"0.0001"`
	ForceAccept     bool    `yaml:"force_accept"`
	// MinConsensus is the regime floor on the confluence score.
	MinConsensus map[string]float64 `yaml:"min_consensus"`
}

type SizingConfig struct {
	KellyFraction     float64 `yaml:"kelly_fraction" default:"0.25" validate:"gt=0,lte=1"`
	KellyCeiling      float64 `yaml:"kelly_ceiling" default:"0.25" validate:"gt=0,lte=1"`
	DefaultRewardRisk float64 `yaml:"default_reward_risk" default:"2.0" validate:"gt=0"`
}

type FeedbackConfig struct {
	RetuneInterval time.Duration `yaml:"retune_interval" default:"1h"`
	Window         int           `yaml:"window" default:"50" validate:"gte=1"`
	MinSamples     int           `yaml:"min_samples" default:"10" validate:"gte=1"`
	LowQuality     float64       `yaml:"low_quality" default:"0.25"`
	HighQuality    float64       `yaml:"high_quality" default:"0.6"`
	EntropyStep    float64       `yaml:"entropy_step" default:"0.02" validate:"gte=0,lte=0.2"`
	ConfluenceStep float64       `yaml:"confluence_step" default:"0.02" validate:"gte=0,lte=0.2"`
	EdgeStep       float64       `yaml:"edge_step" default:"0.00001" validate:"gte=0"`
	MaxRetries     int           `yaml:"max_retries" default:"5" validate:"gte=1"`
	LockTTL        time.Duration `yaml:"lock_ttl" default:"30s"`
}

type RunnerConfig struct {
	ProducerTimeout    time.Duration `yaml:"producer_timeout" default:"3s"`
	Budget             time.Duration `yaml:"budget" default:"8s"`
	FallbackConfidence float64       `yaml:"fallback_confidence" default:"0.35" validate:"gte=0.3,lte=0.4"`
	FallbackStrength   float64       `yaml:"fallback_strength" default:"1"`
}

// ThresholdsConfig seeds the adaptive thresholds when the store is empty or unreachable.
type ThresholdsConfig struct {
	EntropyMin             float64 `yaml:"entropy_min" default:"0.5"`
	EntropyMax             float64 `yaml:"entropy_max" default:"0.9"`
	EntropyCurrent         float64 `yaml:"entropy_current" default:"0.75"`
	ProbabilityBuyFloor    float64 `yaml:"probability_buy_floor" default:"0.55"`
	ProbabilitySellCeiling float64 `yaml:"probability_sell_ceiling" default:"0.45"`
	ConfluenceMin          float64 `yaml:"confluence_min" default:"0.40"`
	ConfluenceMax          float64 `yaml:"confluence_max" default:"0.80"`
	ConfluenceAdaptive     float64 `yaml:"confluence_adaptive" default:"0.55"`
	EdgeMin                float64 `yaml:"edge_min" default:"0.00005"`
	EdgeMax                float64 `yaml:"edge_max" default:"0.005"`
	EdgeAdaptive           float64 `yaml:"edge_adaptive" default:"0.00005"`
}

// DefaultRegimeWeights is the module x regime multiplier table. Trending rows favour
// trend-following modules and damp the slow sentiment and fundamental ones.
func DefaultRegimeWeights() map[string]map[string]float64 {
	row := func(tb, tbe, rt, rv, su, sd, bo, co float64) map[string]float64 {
		return map[string]float64{
			"trending_bullish": tb, "trending_bearish": tbe, "ranging_tight": rt, "ranging_volatile": rv,
			"shock_up": su, "shock_down": sd, "breakout": bo, "consolidation": co,
		}
	}
	return map[string]map[string]float64{
		"technical":       row(1.4, 1.4, 0.8, 0.7, 0.6, 0.6, 1.3, 0.9),
		"fundamental":     row(0.7, 0.7, 1.0, 0.9, 0.5, 0.5, 0.9, 1.1),
		"sentiment":       row(0.7, 0.7, 0.8, 1.0, 1.4, 1.4, 1.1, 0.8),
		"multi_timeframe": row(1.3, 1.3, 0.8, 0.7, 0.6, 0.6, 1.2, 0.9),
		"pattern":         row(1.2, 1.2, 1.5, 0.8, 0.4, 0.4, 1.2, 1.3),
		"strategy":        row(1.4, 1.4, 0.9, 0.8, 0.6, 0.6, 1.1, 1.0),
		"intermarket":     row(1.0, 1.0, 0.9, 1.1, 1.2, 1.2, 1.0, 0.9),
		"news":            row(0.8, 0.8, 0.6, 1.2, 2.0, 2.0, 1.3, 0.6),
		"volume":          row(1.0, 1.0, 0.7, 1.2, 1.8, 1.8, 1.6, 0.8),
		"fibonacci":       row(0.9, 0.9, 1.6, 0.8, 0.3, 0.3, 0.8, 1.4),
	}
}

func DefaultCorrelations() []Correlation {
	return []Correlation{
		{A: "technical", B: "pattern", Coefficient: 0.4},
		{A: "technical", B: "strategy", Coefficient: 0.35},
		{A: "pattern", B: "strategy", Coefficient: 0.25},
		{A: "sentiment", B: "news", Coefficient: 0.7},
		{A: "technical", B: "multi_timeframe", Coefficient: 0.4},
		{A: "fundamental", B: "intermarket", Coefficient: 0.35},
		{A: "volume", B: "technical", Coefficient: 0.35},
		{A: "pattern", B: "fibonacci", Coefficient: 0.5},
		{A: "sentiment", B: "fundamental", Coefficient: 0.2},
	}
}

func DefaultMinConsensus() map[string]float64 {
	return map[string]float64{
		"trending_bullish": 0.55,
		"trending_bearish": 0.55,
		"ranging_tight":    0.60,
		"ranging_volatile": 0.65,
		"shock_up":         0.70,
		"shock_down":       0.70,
		"breakout":         0.60,
		"consolidation":    0.60,
	}
}

// DefaultEngine returns the built-in tuning.
func DefaultEngine() *Engine {
	var e Engine
	_ = defaults.Set(&e)
	e.fillTables()
	return &e
}

func (e *Engine) fillTables() {
	if e.Fusion.RegimeWeights == nil {
		e.Fusion.RegimeWeights = DefaultRegimeWeights()
	}
	if e.Fusion.Correlations == nil {
		e.Fusion.Correlations = DefaultCorrelations()
	}
	if e.Gate.MinConsensus == nil {
		e.Gate.MinConsensus = DefaultMinConsensus()
	}
}

// ParseEngine decodes an engine file. Tables left out of the file keep their defaults;
// an explicit empty table (`{}` or `[]`) disables it.
func ParseEngine(b []byte) (*Engine, error) {
	var e Engine
	if err := yaml.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := defaults.Set(&e); err != nil {
		return nil, fmt.Errorf("engine config defaults: %w", err)
	}
	e.fillTables()
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate engine config: %w", err)
	}
	return &e, nil
}

func (e *Engine) Validate() error {
	if err := validate.Struct(e); err != nil {
		return err
	}
	for module, row := range e.Fusion.RegimeWeights {
		for regime, m := range row {
			if m < 0 || m > 5 {
				return fmt.Errorf("regime weight %s/%s out of range: %v", module, regime, m)
			}
		}
	}
	if e.Feedback.LowQuality >= e.Feedback.HighQuality {
		return fmt.Errorf("feedback.low_quality must be below feedback.high_quality")
	}
	return nil
}

// EngineSource reloads the engine file on every call and keeps the last good copy.
type EngineSource struct {
	path string

	mu       sync.Mutex
	lastGood *Engine
}

func NewEngineSource(path string) *EngineSource {
	return &EngineSource{path: path, lastGood: DefaultEngine()}
}

// Load returns the current tuning. On a read or parse failure it returns the last good
// copy together with the error so the caller can log it and carry on.
func (s *EngineSource) Load() (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return s.lastGood, nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return s.lastGood, fmt.Errorf("read engine config: %w", err)
	}
	e, err := ParseEngine(b)
	if err != nil {
		return s.lastGood, err
	}
	s.lastGood = e
	return e, nil
}
