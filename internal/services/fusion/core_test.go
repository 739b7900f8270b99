package fusion

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	"SignalFusion/pkg/config"
)

func signal(id string, typ models.ModuleType, dir models.Direction, p, strength, conf float64) models.StandardSignal {
	return models.StandardSignal{
		ModuleID:    id,
		ModuleType:  typ,
		Pair:        "EURUSD",
		Timeframe:   "1h",
		Direction:   dir,
		Probability: p,
		Strength:    strength,
		Confidence:  conf,
	}
}

// scenarioA gives every signal the same weight so only probabilities, correlations
// and the regime table decide the outcome.
func scenarioA() []models.StandardSignal {
	return []models.StandardSignal{
		signal("technical", models.ModuleTechnical, models.DirectionBuy, 0.72, 5, 0.6),
		signal("pattern", models.ModulePattern, models.DirectionBuy, 0.68, 5, 0.6),
		signal("strategy", models.ModuleStrategy, models.DirectionBuy, 0.75, 5, 0.6),
		signal("sentiment", models.ModuleSentiment, models.DirectionSell, 0.35, 5, 0.6),
		signal("fundamental", models.ModuleFundamental, models.DirectionSell, 0.30, 5, 0.6),
	}
}

func TestFuseScenarioA(t *testing.T) {
	core := NewCore(config.DefaultEngine().Fusion)

	res := core.Fuse(Input{
		Signals: scenarioA(),
		Regime:  models.RegimeState{Type: models.RegimeTrendingBullish},
	})

	assert.Equal(t, models.DirectionBuy, res.Direction)
	assert.Less(t, res.Entropy, 0.6)
	assert.InDelta(t, 2.1875, res.LogOdds, 1e-3)
	assert.InDelta(t, 0.8991, res.Probability, 1e-3)
	assert.InDelta(t, 0.6, res.Quality.ConsensusLevel, 1e-9)
	assert.InDelta(t, 5.0/7.0, res.Quality.DiversityIndex, 1e-9)
	assert.Equal(t, res.Quality.ConsensusLevel, res.ConfluenceScore)
	assert.InDelta(t, 1-res.Entropy, res.Confidence, 1e-12)
	assert.Equal(t, 5.0, res.Strength)
	assert.Len(t, res.Contributions, 5)
	assert.False(t, res.Degenerate)

	var share float64
	for _, c := range res.Contributions {
		share += c.Share
	}
	assert.InDelta(t, 1.0, share, 1e-9)
	assert.Equal(t, 1.4, res.Contributions["technical"].RegimeMultiplier)
	assert.Equal(t, 0.7, res.Contributions["sentiment"].RegimeMultiplier)
}

func TestFuseScenarioBIsUncertain(t *testing.T) {
	core := NewCore(config.DefaultEngine().Fusion)
	res := core.Fuse(Input{
		Signals: []models.StandardSignal{
			signal("a", models.ModuleTechnical, models.DirectionBuy, 0.501, 5, 0.6),
			signal("b", models.ModulePattern, models.DirectionSell, 0.499, 5, 0.6),
			signal("c", models.ModuleStrategy, models.DirectionBuy, 0.50, 5, 0.6),
			signal("d", models.ModuleSentiment, models.DirectionSell, 0.50, 5, 0.6),
			signal("e", models.ModuleFundamental, models.DirectionBuy, 0.502, 5, 0.6),
		},
		Regime: models.RegimeState{Type: models.RegimeRangingTight},
	})
	assert.InDelta(t, 0.5, res.Probability, 0.01)
	assert.InDelta(t, 1.0, res.Entropy, 0.001)
}

func TestFuseDegenerate(t *testing.T) {
	core := NewCore(config.DefaultEngine().Fusion)

	tests := []struct {
		name    string
		signals []models.StandardSignal
		dropped int
	}{
		{name: "no signals"},
		{name: "only holds", signals: []models.StandardSignal{signal("a", models.ModuleTechnical, models.DirectionHold, 0.5, 5, 0.5)}},
		{
			name: "all invalid",
			signals: []models.StandardSignal{
				signal("a", models.ModuleTechnical, models.DirectionBuy, 0.7, 0, 0.5),
				signal("b", models.ModuleTechnical, models.DirectionBuy, math.NaN(), 5, 0.5),
				signal("c", models.ModuleTechnical, models.DirectionSell, 0.3, 5, math.Inf(1)),
				signal("d", models.ModuleTechnical, models.DirectionSell, 1.3, 5, 0.5),
			},
			dropped: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := core.Fuse(Input{Signals: tt.signals})
			assert.True(t, res.Degenerate)
			assert.Equal(t, models.DirectionHold, res.Direction)
			assert.Equal(t, 1.0, res.Entropy)
			assert.Equal(t, 0.5, res.Probability)
			assert.Equal(t, tt.dropped, res.Dropped)
		})
	}
}

func TestFuseDropsExpiredSignals(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := signal("a", models.ModuleTechnical, models.DirectionBuy, 0.7, 5, 0.6)
	stale.Timestamp = now.Add(-2 * time.Hour)
	stale.ValidityMinutes = 60
	fresh := signal("b", models.ModulePattern, models.DirectionBuy, 0.7, 5, 0.6)

	res := NewCore(config.DefaultEngine().Fusion).Fuse(Input{Signals: []models.StandardSignal{stale, fresh}, Now: now})
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Used, 1)
	assert.Equal(t, "b", res.Used[0].ModuleID)
}

func TestFuseMirrorsInconsistentProbability(t *testing.T) {
	res := NewCore(config.DefaultEngine().Fusion).Fuse(Input{
		Signals: []models.StandardSignal{signal("a", models.ModuleTechnical, models.DirectionSell, 0.7, 5, 0.6)},
	})
	assert.Equal(t, 1, res.Mirrored)
	assert.Equal(t, models.DirectionSell, res.Direction)
	assert.Less(t, res.Probability, 0.5)
	assert.InDelta(t, 1-res.Probability, res.DirectionalProbability(), 1e-12)
}

func TestFuseIsOrderIndependent(t *testing.T) {
	core := NewCore(config.DefaultEngine().Fusion)
	in := scenarioA()
	want := core.Fuse(Input{Signals: in, Regime: models.RegimeState{Type: models.RegimeBreakout}})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.StandardSignal(nil), in...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := core.Fuse(Input{Signals: shuffled, Regime: models.RegimeState{Type: models.RegimeBreakout}})
		assert.Equal(t, want, got)
	}
}

func TestDuplicatedModuleCountsLessThanIndependentModules(t *testing.T) {
	independent := []models.ModuleType{models.ModuleTechnical, models.ModuleFundamental, models.ModuleSentiment, models.ModulePattern}

	for _, pooling := range []string{"kish", "mean", "sum"} {
		cfg := config.DefaultEngine().Fusion
		cfg.Pooling = pooling
		cfg.RegimeWeights = map[string]map[string]float64{}
		cfg.Correlations = nil
		core := NewCore(cfg)

		for k := 2; k <= 4; k++ {
			var dup, indep []models.StandardSignal
			for i := 0; i < k; i++ {
				dup = append(dup, signal("technical", models.ModuleTechnical, models.DirectionBuy, 0.7, 6, 0.7))
				indep = append(indep, signal(string(independent[i]), independent[i], models.DirectionBuy, 0.7, 6, 0.7))
			}
			d := core.Fuse(Input{Signals: dup}).Probability - 0.5
			n := core.Fuse(Input{Signals: indep}).Probability - 0.5
			assert.Less(t, math.Abs(d), math.Abs(n), "pooling=%s k=%d", pooling, k)
		}
	}
}

func TestCorrelatedModulesArePenalized(t *testing.T) {
	cfg := config.DefaultEngine().Fusion
	cfg.RegimeWeights = map[string]map[string]float64{}
	core := NewCore(cfg)

	correlated := core.Fuse(Input{Signals: []models.StandardSignal{
		signal("t", models.ModuleTechnical, models.DirectionBuy, 0.7, 6, 0.7),
		signal("p", models.ModulePattern, models.DirectionBuy, 0.7, 6, 0.7),
	}})
	uncorrelated := core.Fuse(Input{Signals: []models.StandardSignal{
		signal("n", models.ModuleNews, models.DirectionBuy, 0.7, 6, 0.7),
		signal("p", models.ModulePattern, models.DirectionBuy, 0.7, 6, 0.7),
	}})
	assert.Less(t, correlated.Probability, uncorrelated.Probability)
}

func TestFuseTradeLevelsFromWinningSide(t *testing.T) {
	buy := signal("a", models.ModuleTechnical, models.DirectionBuy, 0.8, 8, 0.8)
	buy.Entry, buy.StopLoss, buy.TakeProfit = 100, 98, 106
	buy2 := signal("b", models.ModuleFundamental, models.DirectionBuy, 0.7, 8, 0.8)
	buy2.Entry, buy2.StopLoss, buy2.TakeProfit, buy2.RiskRewardRatio = 102, 100, 104, 1
	sell := signal("c", models.ModuleNews, models.DirectionSell, 0.4, 2, 0.5)
	sell.Entry, sell.StopLoss, sell.TakeProfit = 200, 210, 150

	res := NewCore(config.DefaultEngine().Fusion).Fuse(Input{Signals: []models.StandardSignal{buy, buy2, sell}})
	require.Equal(t, models.DirectionBuy, res.Direction)
	assert.InDelta(t, 101, res.Entry, 1e-9)
	assert.InDelta(t, 99, res.StopLoss, 1e-9)
	assert.InDelta(t, 105, res.TakeProfit, 1e-9)
	// (3 + 1) / 2
	assert.InDelta(t, 2, res.RiskRewardRatio, 1e-9)
}
