package vae

import "math"

// RegularizerWeight gibt das Gewicht des Regularisierers fuer step zurueck:
//
//	w(step) = 1 / (1 + exp(-k·(step - b)))
//
// The result is kept inside the open interval (0, 1) even when exp overflows.
func RegularizerWeight(step int, k, b float64) float64 {
	w := 1 / (1 + math.Exp(-k*(float64(step)-b)))
	switch {
	case math.IsNaN(w) || w <= 0:
		return math.SmallestNonzeroFloat64
	case w >= 1:
		return math.Nextafter(1, 0)
	}
	return w
}
