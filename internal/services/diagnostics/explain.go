package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"SignalFusion/internal/domain/models"
	"SignalFusion/internal/services/fusion"
)

// Explain maps the gate outcome to cause, threshold, observed value and remediation.
func Explain(rej *models.RejectionInfo, res fusion.Result, d *models.Diagnostics) models.Explanation {
	if rej == nil {
		return models.Explanation{
			Summary: fmt.Sprintf("%s accepted at p=%.3f (entropy %.3f, confluence %.2f)",
				strings.ToUpper(string(res.Direction)), res.Probability, res.Entropy, res.ConfluenceScore),
			Cause: "all acceptance checks passed",
		}
	}

	e := models.Explanation{
		Threshold: rej.RequiredThreshold,
		Observed:  rej.ActualValue,
	}
	switch rej.Category {
	case models.RejectHighEntropy:
		if res.Degenerate {
			e.Cause = "no usable signals reached fusion"
			e.Suggestions = append(e.Suggestions, "check producer status and data availability for this pair")
		} else {
			e.Cause = fmt.Sprintf("fused entropy %.3f is above the ceiling %.3f: the modules do not agree enough", rej.ActualValue, rej.RequiredThreshold)
			e.Suggestions = append(e.Suggestions,
				"wait for more modules to align",
				"review modules voting against the majority")
		}
	case models.RejectInsufficientConfluence:
		if rej.Variant == models.VariantProbability {
			e.Cause = fmt.Sprintf("fused probability %.3f does not clear the %s limit %.3f",
				rej.ActualValue, string(res.Direction), rej.RequiredThreshold)
			e.Suggestions = append(e.Suggestions, "the direction is right but conviction is too weak; wait for confirmation")
		} else {
			e.Cause = fmt.Sprintf("confluence %.2f is below the required %.2f", rej.ActualValue, rej.RequiredThreshold)
			e.Suggestions = append(e.Suggestions, "the market regime demands broader agreement; add confirming modules or wait")
		}
	case models.RejectPoorEdge:
		e.Cause = fmt.Sprintf("net edge %.5f after costs does not exceed %.5f", rej.ActualValue, rej.RequiredThreshold)
		e.Suggestions = append(e.Suggestions,
			"expected reward does not cover expected loss and costs",
			"look for a better entry or tighter stop")
	}

	if d != nil {
		if failed := failedModules(d); len(failed) > 0 {
			e.Suggestions = append(e.Suggestions, "degraded producers: "+strings.Join(failed, ", "))
		}
		if d.Degraded {
			e.Suggestions = append(e.Suggestions, "state store unavailable: running on last known thresholds")
		}
	}
	e.Summary = fmt.Sprintf("no trade: %s (%s)", rej.Category, e.Cause)
	return e
}

func failedModules(d *models.Diagnostics) []string {
	var out []string
	for _, r := range d.Producers {
		if r.Status == models.StatusError || r.Status == models.StatusInsufficientData {
			out = append(out, fmt.Sprintf("%s=%s", r.ModuleID, r.Status))
		}
	}
	sort.Strings(out)
	return out
}

// Reasoning is the one-paragraph narrative attached to a decision.
func Reasoning(res fusion.Result, regime models.RegimeState, rej *models.RejectionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Regime %s (confidence %.2f). ", regime.Type, regime.Confidence)
	if res.Degenerate {
		b.WriteString("No usable signals; holding.")
		return b.String()
	}
	fmt.Fprintf(&b, "%d signals fused to p(up)=%.3f, entropy %.3f, consensus %.2f, diversity %.2f",
		len(res.Used), res.Probability, res.Entropy, res.Quality.ConsensusLevel, res.Quality.DiversityIndex)
	if res.Quality.MTFAlignment != models.AlignmentNone {
		fmt.Fprintf(&b, ", timeframes %s", res.Quality.MTFAlignment)
	}
	b.WriteString(". ")

	if top := topContributors(res.Contributions, 3); len(top) > 0 {
		fmt.Fprintf(&b, "Main drivers: %s. ", strings.Join(top, ", "))
	}
	if rej != nil {
		fmt.Fprintf(&b, "Rejected: %s (required %.4g, got %.4g).", rej.Category, rej.RequiredThreshold, rej.ActualValue)
	} else {
		fmt.Fprintf(&b, "Accepted %s.", res.Direction)
	}
	return b.String()
}

func topContributors(c map[string]models.ModuleContribution, n int) []string {
	type kv struct {
		name  string
		share float64
	}
	all := make([]kv, 0, len(c))
	for k, v := range c {
		all = append(all, kv{k, v.Share})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].share != all[j].share {
			return all[i].share > all[j].share
		}
		return all[i].name < all[j].name
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, len(all))
	for i, x := range all {
		out[i] = fmt.Sprintf("%s %.0f%%", x.name, x.share*100)
	}
	return out
}
