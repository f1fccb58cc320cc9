// tensor_ops_test.go - Gradienten-Pruefung der Tensor-Operationen per finiten Differenzen
package ml

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// checkGrad vergleicht analytische und numerische Gradienten fuer alle Parameter
func checkGrad(t *testing.T, params []*Parameter, loss func(ctx *Context) *Tensor) {
	t.Helper()

	ctx := NewContext()
	for _, p := range params {
		p.ZeroGrad()
	}
	if err := ctx.Backward(loss(ctx)); err != nil {
		t.Fatalf("Backward() Fehler: %v", err)
	}

	const eps = 1e-6
	for _, p := range params {
		values := p.v.X
		for i := range values {
			orig := values[i]
			values[i] = orig + eps
			plus := loss(NoGrad()).Scalar()
			values[i] = orig - eps
			minus := loss(NoGrad()).Scalar()
			values[i] = orig

			numeric := (plus - minus) / (2 * eps)
			var analytic float64
			if g := p.Grad(); g != nil {
				analytic = g.RawMatrix().Data[i]
			}
			if diff := math.Abs(numeric - analytic); diff > 1e-5*math.Max(1, math.Abs(numeric)) {
				t.Errorf("%s[%d]: analytisch %g, numerisch %g", p.Name, i, analytic, numeric)
			}
		}
	}
}

func randParam(rng *rand.Rand, name string, r, c int) *Parameter {
	return NewParameter(name, r, c, Randn(rng, r*c, 1))
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	t.Run("matmul tanh sum", func(t *testing.T) {
		a, b := randParam(rng, "a", 3, 4), randParam(rng, "b", 4, 2)
		checkGrad(t, []*Parameter{a, b}, func(ctx *Context) *Tensor {
			return a.Matmul(ctx, b.Tensor).Tanh(ctx).Sum(ctx)
		})
	})

	t.Run("matmulT addTiled", func(t *testing.T) {
		x, w, bias := randParam(rng, "x", 4, 3), randParam(rng, "w", 5, 3), randParam(rng, "bias", 1, 5)
		checkGrad(t, []*Parameter{x, w, bias}, func(ctx *Context) *Tensor {
			return x.MatmulT(ctx, w.Tensor).AddTiled(ctx, bias.Tensor).Sqr(ctx).Mean(ctx)
		})
	})

	t.Run("exp mul sub scale", func(t *testing.T) {
		a, b := randParam(rng, "a", 2, 3), randParam(rng, "b", 2, 3)
		checkGrad(t, []*Parameter{a, b}, func(ctx *Context) *Tensor {
			return a.Scale(ctx, 0.5).Exp(ctx).Mul(ctx, b.Tensor).Sub(ctx, a.Tensor).AddScalar(ctx, 3).Sum(ctx)
		})
	})

	t.Run("reshape slice concat", func(t *testing.T) {
		a, b := randParam(rng, "a", 4, 2), randParam(rng, "b", 1, 4)
		checkGrad(t, []*Parameter{a, b}, func(ctx *Context) *Tensor {
			flat := a.Reshape(ctx, 2, 4)
			return flat.Slice(ctx, 1, 2).Concat(ctx, b.Tensor).Tanh(ctx).Sum(ctx)
		})
	})

	t.Run("addTiled positions", func(t *testing.T) {
		x, pos := randParam(rng, "x", 6, 2), randParam(rng, "pos", 3, 2)
		checkGrad(t, []*Parameter{x, pos}, func(ctx *Context) *Tensor {
			return x.AddTiled(ctx, pos.Tensor).Tanh(ctx).Sum(ctx)
		})
	})

	t.Run("shared operand", func(t *testing.T) {
		a := randParam(rng, "a", 2, 2)
		checkGrad(t, []*Parameter{a}, func(ctx *Context) *Tensor {
			h := a.Tanh(ctx)
			return h.Mul(ctx, h).Add(ctx, h.Matmul(ctx, h)).Sum(ctx)
		})
	})

	t.Run("gather repeatEach", func(t *testing.T) {
		e := randParam(rng, "e", 5, 3)
		checkGrad(t, []*Parameter{e}, func(ctx *Context) *Tensor {
			return e.Gather(ctx, []int32{4, 0, 4}).RepeatEach(ctx, 2).Tanh(ctx).Sum(ctx)
		})
	})

	t.Run("pairwiseSqDist", func(t *testing.T) {
		x, y := randParam(rng, "x", 3, 2), randParam(rng, "y", 4, 2)
		checkGrad(t, []*Parameter{x, y}, func(ctx *Context) *Tensor {
			return x.PairwiseSqDist(ctx, y.Tensor).Scale(ctx, -0.5).Exp(ctx).Sum(ctx)
		})
	})

	t.Run("pairwiseSqDist self", func(t *testing.T) {
		x := randParam(rng, "x", 4, 3)
		checkGrad(t, []*Parameter{x}, func(ctx *Context) *Tensor {
			return x.PairwiseSqDist(ctx, x.Tensor).Scale(ctx, -0.3).Exp(ctx).Sum(ctx)
		})
	})

	t.Run("crossEntropy", func(t *testing.T) {
		logits := randParam(rng, "logits", 4, 5)
		checkGrad(t, []*Parameter{logits}, func(ctx *Context) *Tensor {
			return logits.CrossEntropy(ctx, []int32{1, IgnoreIndex, 4, 0})
		})
	})
}

func TestCrossEntropyValue(t *testing.T) {
	ctx := NoGrad()
	logits := ctx.FromFloats([]float64{0, 0, 0, 0}, 1, 4)
	if got, want := logits.CrossEntropy(ctx, []int32{2}).Scalar(), math.Log(4); math.Abs(got-want) > 1e-12 {
		t.Errorf("CrossEntropy() = %v, erwartet %v", got, want)
	}

	if got := logits.CrossEntropy(ctx, []int32{IgnoreIndex}).Scalar(); got != 0 {
		t.Errorf("CrossEntropy() ohne Ziele = %v, erwartet 0", got)
	}
}

func TestNoGradDoesNotRecord(t *testing.T) {
	p := NewParameter("p", 1, 2, []float64{1, 2})
	ctx := NoGrad()
	out := p.Sqr(ctx).Sum(ctx)
	if out.RequiresGrad() {
		t.Error("NoGrad-Kontext darf keine Gradienten verlangen")
	}
	if err := ctx.Backward(out); err != nil {
		t.Fatalf("Backward() Fehler: %v", err)
	}
	if p.Grad() != nil {
		t.Error("Parameter darf ohne Aufzeichnung keinen Gradienten haben")
	}
}

func TestDetachStopsGradient(t *testing.T) {
	p := NewParameter("p", 1, 2, []float64{1, 2})
	ctx := NewContext()
	out := p.Detach().Sqr(ctx).Add(ctx, p.Tensor).Sum(ctx)
	if err := ctx.Backward(out); err != nil {
		t.Fatalf("Backward() Fehler: %v", err)
	}
	// nur der Add-Zweig traegt bei
	for i, g := range p.Grad().RawMatrix().Data {
		if g != 1 {
			t.Errorf("grad[%d] = %v, erwartet 1", i, g)
		}
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	ctx := NewContext()
	p := NewParameter("p", 2, 2, nil)
	if err := ctx.Backward(p.Tanh(ctx)); err == nil {
		t.Error("Backward() auf [2 2] sollte fehlschlagen")
	}
}

func TestValuesAreEager(t *testing.T) {
	ctx := NewContext()
	a := ctx.FromFloats([]float64{1, 2, 3, 4}, 2, 2)
	b := ctx.FromFloats([]float64{1, 0, 0, 1}, 2, 2)

	tests := []struct {
		name string
		got  *Tensor
		want []float64
	}{
		{"matmul", a.Matmul(ctx, b), []float64{1, 2, 3, 4}},
		{"matmulT", a.MatmulT(ctx, a), []float64{5, 11, 11, 25}},
		{"slice", a.Slice(ctx, 1, 2), []float64{3, 4}},
		{"concat", a.Slice(ctx, 0, 1).Concat(ctx, b.Slice(ctx, 1, 2)), []float64{1, 2, 0, 1}},
		{"addTiled", a.AddTiled(ctx, ctx.FromFloats([]float64{10, 20}, 1, 2)), []float64{11, 22, 13, 24}},
		{"mean", a.Mean(ctx), []float64{2.5}},
		{"pairwise", a.PairwiseSqDist(ctx, b), []float64{4, 2, 20, 18}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, c := tt.got.Dims()
			if !mat.EqualApprox(tt.got.Value(), mat.NewDense(r, c, tt.want), 1e-12) {
				t.Errorf("%s = %v, erwartet %v", tt.name, tt.got.Value().RawMatrix().Data, tt.want)
			}
		})
	}
}

func TestBackwardAccumulates(t *testing.T) {
	p := NewParameter("p", 1, 2, []float64{1, 2})
	for range 2 {
		ctx := NewContext()
		if err := ctx.Backward(p.Sum(ctx)); err != nil {
			t.Fatalf("Backward() Fehler: %v", err)
		}
	}
	for i, g := range p.Grad().RawMatrix().Data {
		if g != 2 {
			t.Errorf("grad[%d] = %v, erwartet 2", i, g)
		}
	}

	p.ZeroGrad()
	if p.Grad() != nil {
		t.Error("nach ZeroGrad darf kein Gradient vorliegen")
	}
}
