// tensor.go - Tensor-Struktur und Zugriffsfunktionen
// Dieses Modul definiert den zweidimensionalen Tensor ueber gradient.V.
package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a row-major matrix; a batch of vectors is stored one vector per
// row. gradient.V keeps the shape as [cols, rows].
type Tensor struct {
	v *value

	// meta is nil for constants and for everything built in a NoGrad context.
	meta   meta
	params []*Tensor

	// touched is set on parameter leaves once Backward wrote into v.D.
	touched bool
}

func (t *Tensor) Dims() (rows, cols int) {
	return t.v.S[1], t.v.S[0]
}

// Value gibt die Werte zurueck; der Aufrufer darf sie nicht veraendern
func (t *Tensor) Value() *mat.Dense {
	r, c := t.Dims()
	return mat.NewDense(r, c, t.v.X)
}

// Dense gibt eine Kopie der Werte zurueck
func (t *Tensor) Dense() *mat.Dense {
	return mat.DenseCopyOf(t.Value())
}

// Scalar gibt den Wert eines 1x1 Tensors zurueck
func (t *Tensor) Scalar() float64 {
	return t.v.X[0]
}

// Grad returns the accumulated gradient of a parameter, or nil when Backward
// has not reached it since the last ZeroGrad.
func (t *Tensor) Grad() *mat.Dense {
	if !t.touched {
		return nil
	}
	r, c := t.Dims()
	return mat.NewDense(r, c, t.v.D)
}

func (t *Tensor) RequiresGrad() bool {
	return t.meta != nil
}

// HasNaN meldet NaN oder Inf in den Werten
func (t *Tensor) HasNaN() bool {
	for _, v := range t.v.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// ArgmaxRows gibt pro Zeile den Index des groessten Werts zurueck
func ArgmaxRows(m mat.Matrix) []int32 {
	r, c := m.Dims()
	out := make([]int32, r)
	for i := range r {
		best, bestVal := 0, math.Inf(-1)
		for j := range c {
			if v := m.At(i, j); v > bestVal {
				best, bestVal = j, v
			}
		}
		out[i] = int32(best)
	}
	return out
}
