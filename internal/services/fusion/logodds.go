package fusion

import "math"

// Logit maps a probability to log-odds.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Sigmoid is the inverse of Logit.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Entropy is the binary Shannon entropy in bits, with 0·log2(0) = 0.
func Entropy(p float64) float64 {
	if math.IsNaN(p) {
		return 1
	}
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// ClampProbability keeps p away from 0 and 1 so Logit stays finite.
func ClampProbability(p, eps float64) float64 {
	return math.Max(eps, math.Min(1-eps, p))
}
