// optimizer.go - AdamW-Optimierer ueber eine Parameter-Gruppe
//
// Dieses Modul enthaelt:
// - AdamWConfig: Hyperparameter mit Defaults
// - AdamW: Optimierer ueber ein gradient.Set, Momente in V.States, globales Clipping
// - SharedParameters: Prueft, ob zwei Gruppen Parameter teilen
package ml

import (
	"math"

	"github.com/pointlander/gradient"
)

// AdamWConfig holds optimizer hyperparameters.
type AdamWConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	// GradClip is the maximum global L2 norm, 0 disables clipping.
	GradClip float64
}

// DefaultAdamWConfig gibt Standard-Hyperparameter zurueck
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{
		LR:          5e-5,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: 0,
		GradClip:    1.0,
	}
}

// AdamW optimizes one parameter group. Two optimizers never step the same
// parameter; see SharedParameters.
type AdamW struct {
	Name string

	params []*Parameter
	set    gradient.Set[float64]
	step   int
	config AdamWConfig
}

// NewAdamW erstellt einen Optimierer und setzt die Momente aller Parameter auf Null
func NewAdamW(name string, params []*Parameter, config AdamWConfig) *AdamW {
	var g gradient.Context[float64]
	set := g.NewSet()
	for _, p := range params {
		p.v.States = make([][]float64, gradient.StateTotal)
		for i := range p.v.States {
			p.v.States[i] = make([]float64, len(p.v.X))
		}
		set.Weights = append(set.Weights, p.v)
	}
	return &AdamW{Name: name, params: params, set: set, config: config}
}

func (o *AdamW) Parameters() []*Parameter {
	return o.params
}

// Steps gibt die Anzahl ausgefuehrter Updates zurueck
func (o *AdamW) Steps() int {
	return o.step
}

func (o *AdamW) ZeroGrad() {
	o.set.Zero()
	for _, p := range o.params {
		p.touched = false
	}
}

// Step applies one AdamW update and returns the global gradient norm before
// clipping.
//
//	m = beta1 * m + (1 - beta1) * g
//	v = beta2 * v + (1 - beta2) * g^2
//	w -= lr * (m_hat / (sqrt(v_hat) + eps) + weight_decay * w)
func (o *AdamW) Step() float64 {
	o.step++

	var normSq float64
	for _, p := range o.params {
		if !p.touched {
			continue
		}
		for _, g := range p.v.D {
			normSq += g * g
		}
	}
	norm := math.Sqrt(normSq)

	clip := 1.0
	if o.config.GradClip > 0 && norm > o.config.GradClip {
		clip = o.config.GradClip / (norm + 1e-12)
	}

	c := o.config
	mCorr := 1 / (1 - math.Pow(c.Beta1, float64(o.step)))
	vCorr := 1 / (1 - math.Pow(c.Beta2, float64(o.step)))
	for _, p := range o.params {
		// parameters outside this step's graph keep their moments untouched
		if !p.touched {
			continue
		}
		w, g := p.v.X, p.v.D
		m, v := p.v.States[gradient.StateM], p.v.States[gradient.StateV]
		for j := range w {
			grad := g[j] * clip
			m[j] = c.Beta1*m[j] + (1-c.Beta1)*grad
			v[j] = c.Beta2*v[j] + (1-c.Beta2)*grad*grad
			w[j] -= c.LR * (m[j]*mCorr/(math.Sqrt(v[j]*vCorr)+c.Eps) + c.WeightDecay*w[j])
		}
	}

	return norm
}

// SharedParameters gibt die Namen der Parameter zurueck, die in beiden Gruppen vorkommen
func SharedParameters(a, b []*Parameter) []string {
	seen := make(map[*value]struct{}, len(a))
	for _, p := range a {
		seen[p.v] = struct{}{}
	}

	var shared []string
	for _, p := range b {
		if _, ok := seen[p.v]; ok {
			shared = append(shared, p.Name)
		}
	}
	return shared
}
