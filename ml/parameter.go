// parameter.go - Trainierbare Parameter
// Dieses Modul definiert Parameter (Blatt-Tensoren ueber gradient.V) und Initialisierer.
package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pointlander/gradient"
)

// Parameter is a leaf tensor. Its gradient lives in the underlying
// gradient.V and accumulates across Backward calls until ZeroGrad.
type Parameter struct {
	*Tensor
	Name string
}

// NewParameter erstellt einen Parameter; values wird kopiert (nil = Nullen)
func NewParameter(name string, rows, cols int, values []float64) *Parameter {
	v := gradient.NewV[float64](cols, rows)
	v.N = name
	switch {
	case values == nil:
		v.X = v.X[:cap(v.X)]
	case len(values) != rows*cols:
		panic(fmt.Errorf("ml: parameter %s: %d values do not fit shape [%d %d]", name, len(values), rows, cols))
	default:
		v.X = append(v.X, values...)
	}

	t := &Tensor{v: v, meta: v.Meta()}
	t.params = []*Tensor{t}
	return &Parameter{Tensor: t, Name: name}
}

// ZeroGrad verwirft den akkumulierten Gradienten
func (p *Parameter) ZeroGrad() {
	p.v.Zero()
	p.touched = false
}

// NumElements gibt die Anzahl der Werte zurueck
func (p *Parameter) NumElements() int {
	return len(p.v.X)
}

// Randn zieht n Werte aus N(0, std²)
func Randn(rng *rand.Rand, n int, std float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = rng.NormFloat64() * std
	}
	return s
}

// KaimingStd gibt sqrt(2/fanIn) zurueck
func KaimingStd(fanIn int) float64 {
	return math.Sqrt(2 / float64(fanIn))
}
