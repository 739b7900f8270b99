package fusion

import (
	"math"

	"SignalFusion/internal/domain/models"
	"SignalFusion/pkg/config"
)

type typePair struct{ a, b models.ModuleType }

func key(a, b models.ModuleType) typePair {
	if a > b {
		a, b = b, a
	}
	return typePair{a, b}
}

// CorrelationMatrix is a symmetric lookup of module-type correlation.
type CorrelationMatrix struct {
	m map[typePair]float64
}

func NewCorrelationMatrix(entries []config.Correlation) *CorrelationMatrix {
	cm := &CorrelationMatrix{m: make(map[typePair]float64, len(entries))}
	for _, e := range entries {
		cm.m[key(models.ModuleType(e.A), models.ModuleType(e.B))] = math.Max(-1, math.Min(1, e.Coefficient))
	}
	return cm
}

// Get returns the coefficient for a pair; 1 on the diagonal and 0 when unknown.
func (c *CorrelationMatrix) Get(a, b models.ModuleType) float64 {
	if a == b {
		return 1
	}
	return c.m[key(a, b)]
}

// Penalties returns the multiplicative inter-module penalty per active type.
// Every pair of distinct active types above threshold scales both sides by (1 - corr*penalty).
func (c *CorrelationMatrix) Penalties(active []models.ModuleType, threshold, penalty float64) map[models.ModuleType]float64 {
	out := make(map[models.ModuleType]float64, len(active))
	for _, t := range active {
		out[t] = 1
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			corr := c.Get(active[i], active[j])
			if math.Abs(corr) <= threshold {
				continue
			}
			f := 1 - corr*penalty
			out[active[i]] *= f
			out[active[j]] *= f
		}
	}
	return out
}
