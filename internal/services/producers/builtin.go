package producers

import (
	"context"
	"fmt"
	"math"
	"time"

	"SignalFusion/internal/domain/models"
	domsvc "SignalFusion/internal/domain/service"
)

// Local producers that need no remote service. They keep the engine useful when
// no remote module is configured.

// TrendProducer emits a technical signal from a fast/slow EMA spread.
type TrendProducer struct {
	Fast, Slow int
}

var _ domsvc.Producer = (*TrendProducer)(nil)

func NewTrendProducer() *TrendProducer { return &TrendProducer{Fast: 12, Slow: 26} }

func (p *TrendProducer) ID() string              { return "trend" }
func (p *TrendProducer) Type() models.ModuleType { return models.ModuleTechnical }

func (p *TrendProducer) Analyze(_ context.Context, candles []models.Candle, pair, timeframe string) ([]models.StandardSignal, error) {
	if len(candles) < p.Slow+4 {
		return nil, fmt.Errorf("trend needs %d bars, got %d: %w", p.Slow+4, len(candles), domsvc.ErrInsufficientData)
	}
	closes := models.Closes(candles)
	fast, slow := ema(closes, p.Fast), ema(closes, p.Slow)
	vol := returnStdev(closes)
	if slow == 0 || vol == 0 {
		return []models.StandardSignal{hold(p, pair, timeframe)}, nil
	}
	z := (fast - slow) / slow / vol
	if math.Abs(z) < 0.25 {
		return []models.StandardSignal{hold(p, pair, timeframe)}, nil
	}

	last := closes[len(closes)-1]
	atr := averageRange(candles, 14)
	dir := models.DirectionBuy
	sign := 1.0
	if z < 0 {
		dir, sign = models.DirectionSell, -1
	}
	mag := math.Min(1, math.Abs(z)/4)
	return []models.StandardSignal{{
		ModuleID:        p.ID(),
		ModuleType:      p.Type(),
		Pair:            pair,
		Timeframe:       timeframe,
		Direction:       dir,
		Probability:     0.5 + sign*0.3*mag,
		Confidence:      0.5 + 0.3*mag,
		Strength:        1 + 9*mag,
		Entry:           last,
		StopLoss:        last - sign*2*atr,
		TakeProfit:      last + sign*3*atr,
		RiskRewardRatio: 1.5,
		Factors:         []string{fmt.Sprintf("ema%d/ema%d spread z=%.2f", p.Fast, p.Slow, z)},
		ValidityMinutes: 60,
		Timestamp:       time.Now().UTC(),
		Extras:          map[string]float64{"ema_fast": fast, "ema_slow": slow, "z": z},
	}}, nil
}

// MultiTimeframeProducer resamples the window at several horizons and votes on the slope of each.
type MultiTimeframeProducer struct {
	Factors []int
	Points  int
}

var _ domsvc.Producer = (*MultiTimeframeProducer)(nil)

func NewMultiTimeframeProducer() *MultiTimeframeProducer {
	return &MultiTimeframeProducer{Factors: []int{1, 4, 16}, Points: 10}
}

func (p *MultiTimeframeProducer) ID() string              { return "mtf" }
func (p *MultiTimeframeProducer) Type() models.ModuleType { return models.ModuleMultiTimeframe }

func (p *MultiTimeframeProducer) Analyze(_ context.Context, candles []models.Candle, pair, timeframe string) ([]models.StandardSignal, error) {
	closes := models.Closes(candles)
	extras := map[string]float64{}
	var votes, up, down int
	for _, f := range p.Factors {
		sampled := resample(closes, f)
		if len(sampled) < p.Points {
			continue
		}
		window := sampled[len(sampled)-p.Points:]
		m := meanOf(window)
		if m == 0 {
			continue
		}
		move := slopeOf(window) * float64(p.Points-1) / m
		vote := 0.0
		switch {
		case move > 0.0005:
			vote, up = 1, up+1
		case move < -0.0005:
			vote, down = -1, down+1
		}
		votes++
		extras[fmt.Sprintf("horizon:%s*%d", timeframe, f)] = vote
	}
	if votes < 2 {
		return nil, fmt.Errorf("mtf needs two horizons with %d points: %w", p.Points, domsvc.ErrInsufficientData)
	}
	if up == down {
		s := hold(p, pair, timeframe)
		s.Extras = extras
		return []models.StandardSignal{s}, nil
	}

	dir, sign := models.DirectionBuy, 1.0
	if down > up {
		dir, sign = models.DirectionSell, -1
	}
	agreement := float64(max(up, down)) / float64(votes)
	net := math.Abs(float64(up-down)) / float64(votes)
	return []models.StandardSignal{{
		ModuleID:        p.ID(),
		ModuleType:      p.Type(),
		Pair:            pair,
		Timeframe:       timeframe,
		Direction:       dir,
		Probability:     0.5 + sign*0.25*net,
		Confidence:      0.5 + 0.3*agreement,
		Strength:        1 + 9*net,
		Entry:           closes[len(closes)-1],
		Factors:         []string{fmt.Sprintf("%d of %d horizons agree", max(up, down), votes)},
		ValidityMinutes: 120,
		Timestamp:       time.Now().UTC(),
		Extras:          extras,
	}}, nil
}

// VolumeProducer backs recent price moves that come with a volume surge.
type VolumeProducer struct {
	Recent, Base int
	Surge        float64
}

var _ domsvc.Producer = (*VolumeProducer)(nil)

func NewVolumeProducer() *VolumeProducer { return &VolumeProducer{Recent: 10, Base: 20, Surge: 1.2} }

func (p *VolumeProducer) ID() string              { return "volume" }
func (p *VolumeProducer) Type() models.ModuleType { return models.ModuleVolume }

func (p *VolumeProducer) Analyze(_ context.Context, candles []models.Candle, pair, timeframe string) ([]models.StandardSignal, error) {
	n := len(candles)
	if n < p.Recent+p.Base+1 {
		return nil, fmt.Errorf("volume needs %d bars: %w", p.Recent+p.Base+1, domsvc.ErrInsufficientData)
	}
	var recentVol, baseVol float64
	for _, c := range candles[n-p.Recent:] {
		recentVol += c.Volume
	}
	for _, c := range candles[n-p.Recent-p.Base : n-p.Recent] {
		baseVol += c.Volume
	}
	recentVol /= float64(p.Recent)
	baseVol /= float64(p.Base)
	from := candles[n-p.Recent-1].Close
	if baseVol <= 0 || from == 0 {
		return nil, fmt.Errorf("volume: no traded volume: %w", domsvc.ErrInsufficientData)
	}
	rv := recentVol / baseVol
	move := candles[n-1].Close/from - 1
	if rv < p.Surge || move == 0 {
		return []models.StandardSignal{hold(p, pair, timeframe)}, nil
	}

	dir := models.DirectionBuy
	if move < 0 {
		dir = models.DirectionSell
	}
	mag := math.Min(1, math.Abs(move)*50*math.Min(rv, 3)/3)
	return []models.StandardSignal{{
		ModuleID:        p.ID(),
		ModuleType:      p.Type(),
		Pair:            pair,
		Timeframe:       timeframe,
		Direction:       dir,
		Probability:     0.5 + math.Copysign(0.3*mag, move),
		Confidence:      0.45 + 0.3*mag,
		Strength:        1 + 9*mag,
		Entry:           candles[n-1].Close,
		Factors:         []string{fmt.Sprintf("relative volume %.2f", rv)},
		ValidityMinutes: 30,
		Timestamp:       time.Now().UTC(),
		Extras:          map[string]float64{"relative_volume": rv, "move": move},
	}}, nil
}

func hold(p domsvc.Producer, pair, timeframe string) models.StandardSignal {
	return models.StandardSignal{
		ModuleID:    p.ID(),
		ModuleType:  p.Type(),
		Pair:        pair,
		Timeframe:   timeframe,
		Direction:   models.DirectionHold,
		Probability: 0.5,
		Confidence:  0.5,
		Strength:    1,
		Timestamp:   time.Now().UTC(),
	}
}

func ema(xs []float64, period int) float64 {
	if len(xs) == 0 {
		return 0
	}
	k := 2 / float64(period+1)
	e := xs[0]
	for _, x := range xs[1:] {
		e = x*k + e*(1-k)
	}
	return e
}

func returnStdev(closes []float64) float64 {
	rs := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			rs = append(rs, closes[i]/closes[i-1]-1)
		}
	}
	if len(rs) < 2 {
		return 0
	}
	m := meanOf(rs)
	var ss float64
	for _, r := range rs {
		ss += (r - m) * (r - m)
	}
	return math.Sqrt(ss / float64(len(rs)-1))
}

func averageRange(candles []models.Candle, period int) float64 {
	if len(candles) < period {
		period = len(candles)
	}
	var s float64
	for _, c := range candles[len(candles)-period:] {
		s += c.High - c.Low
	}
	return s / float64(period)
}

// resample keeps every f-th close counting back from the last one.
func resample(closes []float64, f int) []float64 {
	if f <= 1 {
		return closes
	}
	var out []float64
	for i := len(closes) - 1; i >= 0; i -= f {
		out = append(out, closes[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func slopeOf(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	xm, ym := (n-1)/2, meanOf(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xm
		num += dx * (y - ym)
		den += dx * dx
	}
	return num / den
}
