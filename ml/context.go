// context.go - Berechnungskontext ueber dem CPS-Autodiff von pointlander/gradient
//
// Dieses Modul enthaelt:
// - Context: baut Operationen als gradient.Meta-Fortsetzungen zusammen
// - NoGrad: Kontext ohne Graph fuer Evaluation und Probes
// - Konstruktoren fuer Konstanten (FromFloats, FromDense, Zeros)
// - Backward: gradient.Gradient ueber den Loss
package ml

import (
	"errors"
	"fmt"

	"github.com/pointlander/gradient"
	"gonum.org/v1/gonum/mat"
)

var ErrNotScalar = errors.New("backward requires a 1x1 tensor")

type (
	value = gradient.V[float64]
	meta  = gradient.Meta[float64]
)

// Context builds differentiable operations. Every operation is evaluated
// eagerly on constant inputs so values are readable at once; tensors that
// depend on a parameter also keep the composed gradient.Meta, which
// gradient.Gradient re-runs in continuation passing style during Backward.
type Context struct {
	noGrad bool
	g      gradient.Context[float64]

	add, sub, hadamard, mul func(a, b meta, options ...map[string]interface{}) meta
	tanh, exp, sum, avg, t  func(a meta, options ...map[string]interface{}) meta
	slice                   func(a meta, options ...map[string]interface{}) meta
}

// NewContext erstellt einen Kontext mit Gradienten
func NewContext() *Context {
	c := &Context{}
	c.add = c.g.B(c.g.Add)
	c.sub = c.g.B(c.g.Sub)
	c.hadamard = c.g.B(c.g.Hadamard)
	c.mul = c.g.B(c.g.Mul)
	c.tanh = c.g.U(c.g.TanH)
	c.exp = c.g.U(c.g.Exp)
	c.sum = c.g.U(c.g.Sum)
	c.avg = c.g.U(c.g.Avg)
	c.t = c.g.U(c.g.T)
	c.slice = c.g.U(c.g.Slice)
	return c
}

// NoGrad erstellt einen Kontext, der keine Gradienten aufbaut
func NoGrad() *Context {
	c := NewContext()
	c.noGrad = true
	return c
}

// FromFloats creates a constant tensor. s is copied.
func (c *Context) FromFloats(s []float64, rows, cols int) *Tensor {
	if len(s) != rows*cols {
		panic(fmt.Errorf("ml: %d values do not fit shape [%d %d]", len(s), rows, cols))
	}
	v := newValue(rows, cols)
	copy(v.X, s)
	return &Tensor{v: v}
}

// FromDense creates a constant tensor holding a contiguous copy of m.
func (c *Context) FromDense(m mat.Matrix) *Tensor {
	d := mat.DenseCopyOf(m)
	r, cols := d.Dims()
	return &Tensor{v: &value{X: d.RawMatrix().Data, D: make([]float64, r*cols), S: []int{cols, r}}}
}

// Zeros erstellt einen konstanten Null-Tensor
func (c *Context) Zeros(rows, cols int) *Tensor {
	return &Tensor{v: newValue(rows, cols)}
}

// Backward accumulates d(t)/d(p) into every parameter p that t depends on.
func (c *Context) Backward(t *Tensor) error {
	if r, cc := t.Dims(); r != 1 || cc != 1 {
		return fmt.Errorf("%w: got [%d %d]", ErrNotScalar, r, cc)
	}
	if c.noGrad || t.meta == nil {
		return nil
	}

	gradient.Gradient(t.meta)
	for _, p := range t.params {
		p.touched = true
	}
	return nil
}

// apply evaluates build on the operands' current values and, when gradients
// are enabled and an operand depends on a parameter, keeps build applied to
// the operands' metas for Backward.
func (c *Context) apply(build func(m ...meta) meta, operands ...*Tensor) *Tensor {
	leaves := make([]meta, len(operands))
	for i, o := range operands {
		leaves[i] = o.v.Meta()
	}

	var out *value
	build(leaves...)(func(v *value) bool {
		out = v
		return true
	})
	t := &Tensor{v: out}
	if c.noGrad {
		return t
	}

	metas := make([]meta, len(operands))
	tracked := false
	for i, o := range operands {
		if o.meta == nil {
			metas[i] = leaves[i]
			continue
		}
		metas[i] = o.meta
		tracked = true
		t.params = mergeParams(t.params, o.params)
	}
	if tracked {
		t.meta = build(metas...)
	}
	return t
}

func mergeParams(dst, src []*Tensor) []*Tensor {
	for _, p := range src {
		found := false
		for _, q := range dst {
			if p == q {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, p)
		}
	}
	return dst
}

// kernel wraps a forward and backward pass over raw slices into a
// gradient.Operation for ops the library does not provide.
func (c *Context) kernel(rows, cols int, forward func(out []float64, in ...*value), backward func(dout []float64, in ...*value)) func(m ...meta) meta {
	return c.g.Op(func(k gradient.Continuation[float64], node int, in ...*value) bool {
		out := newValue(rows, cols)
		forward(out.X, in...)
		if k(out) {
			return true
		}
		backward(out.D, in...)
		return false
	})
}

func newValue(rows, cols int) *value {
	v := gradient.NewV[float64](cols, rows)
	v.X = v.X[:cap(v.X)]
	return v
}
