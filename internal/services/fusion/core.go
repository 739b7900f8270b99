// Package fusion combines per-module signals into one calibrated probability.
//
// The steps run in a fixed order: log-odds, intra-module decorrelation,
// inter-module decorrelation, historical weighting, regime adjustment, weighted
// pooling, entropy and quality metrics. Reordering them changes results.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"

	"SignalFusion/internal/domain/models"
	"SignalFusion/pkg/config"
)

// Input is the immutable snapshot one fusion pass works on.
type Input struct {
	Signals     []models.StandardSignal
	Regime      models.RegimeState
	Reliability map[string]models.ModuleReliability // by module id
	// TotalModules overrides the configured diversity denominator when > 0.
	TotalModules int
	Now          time.Time
}

// Result is the fused view of one cycle before gating and sizing.
type Result struct {
	Direction       models.Direction
	Probability     float64 // P(up)
	LogOdds         float64
	Entropy         float64
	Confidence      float64
	Strength        float64
	Entry           float64
	StopLoss        float64
	TakeProfit      float64
	RiskRewardRatio float64
	ConfluenceScore float64
	Quality         models.QualityMetrics
	Contributions   map[string]models.ModuleContribution
	Used            []models.StandardSignal
	Dropped         int
	Mirrored        int
	Degenerate      bool
	Warnings        []string
}

// DirectionalProbability is the probability that the chosen direction is right.
func (r Result) DirectionalProbability() float64 {
	if r.Direction == models.DirectionSell {
		return 1 - r.Probability
	}
	return r.Probability
}

type Core struct {
	cfg  config.FusionConfig
	corr *CorrelationMatrix
}

func NewCore(cfg config.FusionConfig) *Core {
	return &Core{cfg: cfg, corr: NewCorrelationMatrix(cfg.Correlations)}
}

type term struct {
	sig     models.StandardSignal
	logOdds float64
	weight  float64
	hist    float64
	regime  float64
}

// Fuse runs the full pass. It never fails: an empty or all-invalid input yields a
// degenerate hold with entropy 1.
func (c *Core) Fuse(in Input) Result {
	res := Result{Contributions: map[string]models.ModuleContribution{}}

	signals := make([]models.StandardSignal, len(in.Signals))
	copy(signals, in.Signals)
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].ModuleID < signals[j].ModuleID })

	usable := make([]models.StandardSignal, 0, len(signals))
	for _, s := range signals {
		if s.Direction == models.DirectionHold {
			continue
		}
		if !s.Usable() || (!in.Now.IsZero() && s.Expired(in.Now)) {
			res.Dropped++
			continue
		}
		if (s.Direction == models.DirectionBuy && s.Probability < 0.5) ||
			(s.Direction == models.DirectionSell && s.Probability > 0.5) {
			s.Probability = 1 - s.Probability
			res.Mirrored++
		}
		s.Probability = ClampProbability(s.Probability, c.cfg.ProbabilityEpsilon)
		usable = append(usable, s)
	}
	if res.Dropped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropped %d invalid signals", res.Dropped))
	}
	if res.Mirrored > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("mirrored %d direction-inconsistent probabilities", res.Mirrored))
	}
	res.Used = usable

	if len(usable) == 0 {
		return c.degenerate(res)
	}

	// 1. log-odds
	terms := make([]term, len(usable))
	perModule := map[string]int{}
	var activeTypes []models.ModuleType
	seenType := map[models.ModuleType]bool{}
	for i, s := range usable {
		terms[i] = term{sig: s, logOdds: Logit(s.Probability), weight: s.Weight()}
		perModule[s.ModuleID]++
		if !seenType[s.ModuleType] {
			seenType[s.ModuleType] = true
			activeTypes = append(activeTypes, s.ModuleType)
		}
	}

	// 2. intra-module decorrelation
	for i := range terms {
		if k := perModule[terms[i].sig.ModuleID]; k > 1 {
			terms[i].logOdds /= math.Sqrt(float64(k))
		}
	}

	// 3. inter-module decorrelation
	penalties := c.corr.Penalties(activeTypes, c.cfg.CorrelationThreshold, c.cfg.CorrelationPenalty)
	for i := range terms {
		terms[i].logOdds *= penalties[terms[i].sig.ModuleType]
	}

	// 4. historical weighting
	for i := range terms {
		var rel *models.ModuleReliability
		if r, ok := in.Reliability[terms[i].sig.ModuleID]; ok {
			rel = &r
		}
		terms[i].hist = HistoricalMultiplier(c.cfg, terms[i].sig.ModuleType, rel)
		terms[i].logOdds *= terms[i].hist
	}

	// 5. regime adjustment
	for i := range terms {
		terms[i].regime = RegimeMultiplier(c.cfg.RegimeWeights, terms[i].sig.ModuleType, in.Regime.Type)
		terms[i].logOdds *= terms[i].regime
	}

	// 6. weighted fusion
	var sumW, sumW2, sumWL, maxW float64
	for _, t := range terms {
		sumW += t.weight
		sumW2 += t.weight * t.weight
		sumWL += t.weight * t.logOdds
		maxW = math.Max(maxW, t.weight)
	}
	if sumW == 0 || math.IsNaN(sumW) || math.IsInf(sumW, 0) {
		return c.degenerate(res)
	}
	fused := sumWL / sumW
	switch c.cfg.Pooling {
	case "kish":
		fused *= sumW * sumW / sumW2
	case "sum":
		fused = sumWL / maxW
	}
	res.LogOdds = fused
	res.Probability = Sigmoid(fused)

	// 7. entropy
	res.Entropy = Entropy(res.Probability)
	res.Confidence = 1 - res.Entropy

	// 8. quality metrics
	var buyW, sellW float64
	for _, t := range terms {
		if t.sig.Direction == models.DirectionBuy {
			buyW += t.weight
		} else {
			sellW += t.weight
		}
	}
	switch {
	case res.Probability > 0.5:
		res.Direction = models.DirectionBuy
	case res.Probability < 0.5:
		res.Direction = models.DirectionSell
	default:
		res.Direction = models.DirectionHold
	}
	winMass := math.Max(buyW, sellW)
	if res.Direction == models.DirectionBuy {
		winMass = buyW
	} else if res.Direction == models.DirectionSell {
		winMass = sellW
	}
	total := in.TotalModules
	if total <= 0 {
		total = c.cfg.TotalModules
	}
	res.Quality.ConsensusLevel = winMass / sumW
	res.Quality.DiversityIndex = math.Min(1, float64(len(perModule))/float64(total))
	res.Quality.MTFAlignment = Alignment(usable)
	q := res.Confidence * res.Quality.DiversityIndex * res.Quality.ConsensusLevel
	switch res.Quality.MTFAlignment {
	case models.AlignmentPerfect:
		q += c.cfg.MTFBonusPerfect
	case models.AlignmentStrong:
		q += c.cfg.MTFBonusStrong
	case models.AlignmentConflicting:
		q -= c.cfg.MTFPenaltyConflict
	}
	res.Quality.SignalQuality = math.Max(0, math.Min(1, q))
	res.ConfluenceScore = res.Quality.ConsensusLevel

	c.tradeLevels(&res, terms)
	c.contributions(&res, terms)
	return res
}

func (c *Core) degenerate(res Result) Result {
	res.Direction = models.DirectionHold
	res.Probability = 0.5
	res.Entropy = 1
	res.Confidence = 0
	res.Degenerate = true
	res.Quality.MTFAlignment = models.AlignmentNone
	res.Warnings = append(res.Warnings, "no usable signals: zero total weight")
	return res
}

// tradeLevels takes strength, levels and reward/risk from the winning side, weighted.
func (c *Core) tradeLevels(res *Result, terms []term) {
	var w, strength, entry, entryW, sl, slW, tp, tpW, rr, rrW float64
	for _, t := range terms {
		if t.sig.Direction != res.Direction {
			continue
		}
		s := t.sig
		w += t.weight
		strength += t.weight * s.Strength
		if s.Entry > 0 {
			entry += t.weight * s.Entry
			entryW += t.weight
		}
		if s.StopLoss > 0 {
			sl += t.weight * s.StopLoss
			slW += t.weight
		}
		if s.TakeProfit > 0 {
			tp += t.weight * s.TakeProfit
			tpW += t.weight
		}
		ratio := s.RiskRewardRatio
		if ratio <= 0 && s.Entry > 0 && s.StopLoss > 0 && s.TakeProfit > 0 && s.Entry != s.StopLoss {
			ratio = math.Abs(s.TakeProfit-s.Entry) / math.Abs(s.Entry-s.StopLoss)
		}
		if ratio > 0 && !math.IsInf(ratio, 0) {
			rr += t.weight * ratio
			rrW += t.weight
		}
	}
	if w > 0 {
		res.Strength = strength / w
	}
	if entryW > 0 {
		res.Entry = entry / entryW
	}
	if slW > 0 {
		res.StopLoss = sl / slW
	}
	if tpW > 0 {
		res.TakeProfit = tp / tpW
	}
	if rrW > 0 {
		res.RiskRewardRatio = rr / rrW
	}
}

func (c *Core) contributions(res *Result, terms []term) {
	var total float64
	for _, t := range terms {
		total += math.Abs(t.weight * t.logOdds)
	}
	for _, t := range terms {
		k := string(t.sig.ModuleType)
		mc := res.Contributions[k]
		mc.ModuleType = t.sig.ModuleType
		mc.Signals++
		mc.LogOdds += t.logOdds
		mc.Weight += t.weight
		mc.HistoricalWeight = t.hist
		mc.RegimeMultiplier = t.regime
		if total > 0 {
			mc.Share += math.Abs(t.weight*t.logOdds) / total
		}
		res.Contributions[k] = mc
	}
}
