package fusion

import (
	"strings"

	"SignalFusion/internal/domain/models"
)

// HorizonPrefix marks per-horizon votes a producer can put in StandardSignal.Extras,
// e.g. "horizon:4h" = 1 for up, -1 for down, 0 for flat.
const HorizonPrefix = "horizon:"

// Alignment classifies how the tracked horizons agree. Horizons are the signal
// timeframes plus any horizon votes carried in extras.
func Alignment(signals []models.StandardSignal) models.MTFAlignment {
	net := map[string]float64{}
	for _, s := range signals {
		sign := 0.0
		switch s.Direction {
		case models.DirectionBuy:
			sign = 1
		case models.DirectionSell:
			sign = -1
		}
		if s.Timeframe != "" {
			net[s.Timeframe] += sign * s.Weight()
		}
		for k, v := range s.Extras {
			if h, ok := strings.CutPrefix(k, HorizonPrefix); ok {
				net[HorizonPrefix+h] += v
			}
		}
	}
	if len(net) < 2 {
		return models.AlignmentNone
	}

	var up, down int
	for _, v := range net {
		switch {
		case v > 0:
			up++
		case v < 0:
			down++
		}
	}
	n := len(net)
	switch {
	case up == n || down == n:
		return models.AlignmentPerfect
	case 2*up > n || 2*down > n:
		return models.AlignmentStrong
	case up > 0 && down > 0:
		return models.AlignmentConflicting
	default:
		return models.AlignmentMixed
	}
}
