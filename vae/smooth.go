package vae

import (
	"math"

	"github.com/7blacky7/transformer-vae/ml"
)

const (
	smoothRampSteps = 100
	smoothMaxBeta   = 0.9
)

// cosineSmoother haelt einen gleitenden Mittelwert des Regularisierer-Losses.
// Der Glaettungsfaktor steigt auf einer Kosinuskurve von 0 auf smoothMaxBeta.
type cosineSmoother struct {
	steps int
	value float64
}

func (s *cosineSmoother) beta() float64 {
	t := float64(min(s.steps, smoothRampSteps)) / smoothRampSteps
	return smoothMaxBeta * (1 - math.Cos(math.Pi*t)) / 2
}

// apply gibt beta·alt + (1-beta)·reg zurueck; nur reg traegt Gradienten
func (s *cosineSmoother) apply(ctx *ml.Context, reg *ml.Tensor) *ml.Tensor {
	beta := s.beta()
	out := reg.Scale(ctx, 1-beta).AddScalar(ctx, beta*s.value)
	s.value = out.Scalar()
	s.steps++
	return out
}

func (s *cosineSmoother) reset() {
	*s = cosineSmoother{}
}
