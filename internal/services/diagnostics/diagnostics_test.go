package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	"SignalFusion/internal/services/fusion"
)

func TestSummarize(t *testing.T) {
	reports := []models.ProducerReport{
		{ModuleID: "technical", Status: models.StatusActive, Quality: 0.8},
		{ModuleID: "pattern", Status: models.StatusActive, Quality: 0.6},
		{ModuleID: "news", Status: models.StatusError},
		{ModuleID: "sentiment", Status: models.StatusInactive},
	}
	raw := []models.StandardSignal{
		{Direction: models.DirectionBuy},
		{Direction: models.DirectionBuy},
		{Direction: models.DirectionSell},
		{Direction: models.DirectionHold},
	}

	d := Summarize(reports, raw, 2)
	assert.InDelta(t, 0.35, d.OverallDataQuality, 1e-12)
	assert.InDelta(t, 0.5, d.FactorDiversity, 1e-12)
	assert.InDelta(t, 2.0/3.0, d.SignalConsistency, 1e-12)
	assert.InDelta(t, 0.4*0.35+0.3*0.5+0.3*2.0/3.0, d.ReliabilityIndex, 1e-12)
	assert.Equal(t, 2, d.DroppedSignals)
}

func TestSummarizeEmpty(t *testing.T) {
	d := Summarize(nil, nil, 0)
	assert.Equal(t, 0.0, d.ReliabilityIndex)
}

func TestModuleQuality(t *testing.T) {
	sigs := []models.StandardSignal{{Confidence: 0.6}, {Confidence: 0.8}}
	assert.InDelta(t, 0.7, ModuleQuality(models.StatusActive, sigs), 1e-12)
	assert.Equal(t, 0.0, ModuleQuality(models.StatusError, sigs))
	assert.Equal(t, 0.0, ModuleQuality(models.StatusActive, nil))
}

func TestExplain(t *testing.T) {
	res := fusion.Result{Direction: models.DirectionBuy, Probability: 0.52, Entropy: 0.95}

	tests := []struct {
		name  string
		rej   *models.RejectionInfo
		cause string
	}{
		{"accepted", nil, "all acceptance checks passed"},
		{"entropy", &models.RejectionInfo{Category: models.RejectHighEntropy, RequiredThreshold: 0.75, ActualValue: 0.95}, "entropy 0.950 is above the ceiling 0.750"},
		{"probability", &models.RejectionInfo{Category: models.RejectInsufficientConfluence, Variant: models.VariantProbability, RequiredThreshold: 0.55, ActualValue: 0.52}, "does not clear the buy limit 0.550"},
		{"confluence", &models.RejectionInfo{Category: models.RejectInsufficientConfluence, Variant: models.VariantConfluence, RequiredThreshold: 0.7, ActualValue: 0.6}, "confluence 0.60 is below the required 0.70"},
		{"edge", &models.RejectionInfo{Category: models.RejectPoorEdge, RequiredThreshold: 0.00005, ActualValue: -0.001}, "net edge -0.00100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Explain(tt.rej, res, nil)
			assert.Contains(t, e.Cause, tt.cause)
			if tt.rej != nil {
				assert.NotEmpty(t, e.Suggestions)
				assert.Equal(t, tt.rej.RequiredThreshold, e.Threshold)
				assert.Equal(t, tt.rej.ActualValue, e.Observed)
			}
		})
	}
}

func TestExplainListsFailedProducers(t *testing.T) {
	d := &models.Diagnostics{
		Producers: []models.ProducerReport{
			{ModuleID: "news", Status: models.StatusError},
			{ModuleID: "fib", Status: models.StatusInsufficientData},
			{ModuleID: "technical", Status: models.StatusActive},
		},
		Degraded: true,
	}
	e := Explain(&models.RejectionInfo{Category: models.RejectHighEntropy}, fusion.Result{Degenerate: true}, d)
	assert.Equal(t, "no usable signals reached fusion", e.Cause)
	require.Len(t, e.Suggestions, 3)
	assert.Equal(t, "degraded producers: fib=insufficient_data, news=error", e.Suggestions[1])
}

func TestReasoning(t *testing.T) {
	res := fusion.Result{
		Direction:   models.DirectionBuy,
		Probability: 0.8,
		Entropy:     0.72,
		Used:        make([]models.StandardSignal, 3),
		Contributions: map[string]models.ModuleContribution{
			"technical": {Share: 0.5},
			"pattern":   {Share: 0.3},
			"strategy":  {Share: 0.15},
			"news":      {Share: 0.05},
		},
		Quality: models.QualityMetrics{MTFAlignment: models.AlignmentNone},
	}
	got := Reasoning(res, models.RegimeState{Type: models.RegimeTrendingBullish, Confidence: 0.75}, nil)
	assert.Contains(t, got, "Regime trending_bullish")
	assert.Contains(t, got, "Main drivers: technical 50%, pattern 30%, strategy 15%")
	assert.Contains(t, got, "Accepted buy.")
	assert.NotContains(t, got, "news")

	assert.Contains(t, Reasoning(fusion.Result{Degenerate: true}, models.RegimeState{}, nil), "No usable signals")
}
