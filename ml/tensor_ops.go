// tensor_ops.go - Differenzierbare Tensor-Operationen
//
// Dieses Modul enthaelt:
// - gradient-Operationen: Add, Sub, Mul, Tanh, Exp, Matmul, MatmulT, Sum, Mean, Slice
// - Eigene Kernel: Scale, AddScalar, Sqr, AddTiled, Reshape, Concat, Gather, RepeatEach
// - Fusionierte Kernel: PairwiseSqDist, CrossEntropy
// - Detach
package ml

import (
	"fmt"
	"math"
)

func mustSameDims(op string, a, b *Tensor) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Errorf("ml: %s: shape mismatch [%d %d] vs [%d %d]", op, ar, ac, br, bc))
	}
}

// elementwise baut einen Kernel fuer y = f(x) mit dy/dx = df(x, y)
func (c *Context) elementwise(t *Tensor, f func(x float64) float64, df func(x, y float64) float64) *Tensor {
	r, cols := t.Dims()
	return c.apply(c.kernel(r, cols, func(out []float64, in ...*value) {
		for i, x := range in[0].X {
			out[i] = f(x)
		}
	}, func(dout []float64, in ...*value) {
		a := in[0]
		for i, d := range dout {
			x := a.X[i]
			a.D[i] += d * df(x, f(x))
		}
	}), t)
}

// =============================================================================
// Elementweise Operationen
// =============================================================================

func (t *Tensor) Add(ctx *Context, t2 *Tensor) *Tensor {
	mustSameDims("add", t, t2)
	return ctx.apply(func(m ...meta) meta { return ctx.add(m[0], m[1]) }, t, t2)
}

func (t *Tensor) Sub(ctx *Context, t2 *Tensor) *Tensor {
	mustSameDims("sub", t, t2)
	return ctx.apply(func(m ...meta) meta { return ctx.sub(m[0], m[1]) }, t, t2)
}

// Mul multipliziert elementweise
func (t *Tensor) Mul(ctx *Context, t2 *Tensor) *Tensor {
	mustSameDims("mul", t, t2)
	return ctx.apply(func(m ...meta) meta { return ctx.hadamard(m[0], m[1]) }, t, t2)
}

func (t *Tensor) Scale(ctx *Context, s float64) *Tensor {
	return ctx.elementwise(t,
		func(x float64) float64 { return s * x },
		func(_, _ float64) float64 { return s })
}

func (t *Tensor) AddScalar(ctx *Context, s float64) *Tensor {
	return ctx.elementwise(t,
		func(x float64) float64 { return x + s },
		func(_, _ float64) float64 { return 1 })
}

func (t *Tensor) Tanh(ctx *Context) *Tensor {
	return ctx.apply(func(m ...meta) meta { return ctx.tanh(m[0]) }, t)
}

func (t *Tensor) Exp(ctx *Context) *Tensor {
	return ctx.apply(func(m ...meta) meta { return ctx.exp(m[0]) }, t)
}

// Sqr quadriert elementweise. gradient.Square ist x·xᵀ, daher ein eigener Kernel.
func (t *Tensor) Sqr(ctx *Context) *Tensor {
	return ctx.elementwise(t,
		func(x float64) float64 { return x * x },
		func(x, _ float64) float64 { return 2 * x })
}

// =============================================================================
// Matrix-Operationen
// =============================================================================

// Matmul berechnet t · t2
func (t *Tensor) Matmul(ctx *Context, t2 *Tensor) *Tensor {
	_, k := t.Dims()
	if k2, _ := t2.Dims(); k != k2 {
		panic(fmt.Errorf("ml: matmul: inner dimensions %d and %d differ", k, k2))
	}
	// gradient.Mul(a, b) is b · aᵀ
	return ctx.apply(func(m ...meta) meta { return ctx.mul(ctx.t(m[1]), m[0]) }, t, distinct(ctx, t, t2))
}

// MatmulT berechnet t · t2ᵀ; t2 liegt als [out, in] vor
func (t *Tensor) MatmulT(ctx *Context, t2 *Tensor) *Tensor {
	_, k := t.Dims()
	if _, k2 := t2.Dims(); k != k2 {
		panic(fmt.Errorf("ml: matmulT: inner dimensions %d and %d differ", k, k2))
	}
	return ctx.apply(func(m ...meta) meta { return ctx.mul(m[1], m[0]) }, t, distinct(ctx, t, t2))
}

// distinct kopiert t2, wenn beide Operanden denselben Wert teilen. gradient.Mul
// schreibt die Ableitungen beider Seiten nebenlaeufig.
func distinct(ctx *Context, t, t2 *Tensor) *Tensor {
	if t.v != t2.v {
		return t2
	}
	r, c := t2.Dims()
	return t2.Reshape(ctx, r, c)
}

// AddTiled addiert p zeilenweise zyklisch: Zeile i erhaelt p[i mod P].
// Mit P = 1 ist das ein Bias, mit P = Sequenzlaenge eine Positions-Einbettung.
func (t *Tensor) AddTiled(ctx *Context, p *Tensor) *Tensor {
	r, c := t.Dims()
	pr, pc := p.Dims()
	if pc != c || pr == 0 || r%pr != 0 {
		panic(fmt.Errorf("ml: addTiled: cannot tile [%d %d] over [%d %d]", pr, pc, r, c))
	}
	if pr == 1 || pr == r {
		return ctx.apply(func(m ...meta) meta { return ctx.add(m[0], m[1]) }, t, p)
	}

	// gradient.Add broadcasts only a single row
	n := pr * pc
	return ctx.apply(ctx.kernel(r, c, func(out []float64, in ...*value) {
		for i, x := range in[0].X {
			out[i] = x + in[1].X[i%n]
		}
	}, func(dout []float64, in ...*value) {
		a, b := in[0], in[1]
		for i, d := range dout {
			a.D[i] += d
			b.D[i%n] += d
		}
	}), t, p)
}

// =============================================================================
// Reduktionen
// =============================================================================

// Sum reduziert auf einen 1x1 Tensor
func (t *Tensor) Sum(ctx *Context) *Tensor {
	return ctx.apply(func(m ...meta) meta { return ctx.sum(m[0]) }, t)
}

func (t *Tensor) Mean(ctx *Context) *Tensor {
	return ctx.apply(func(m ...meta) meta { return ctx.avg(m[0]) }, t)
}

// =============================================================================
// Form-Operationen
// =============================================================================

// Reshape interpretiert die Zeilen-Reihenfolge neu
func (t *Tensor) Reshape(ctx *Context, rows, cols int) *Tensor {
	r, c := t.Dims()
	if r*c != rows*cols {
		panic(fmt.Errorf("ml: reshape: [%d %d] to [%d %d]", r, c, rows, cols))
	}
	return ctx.apply(ctx.kernel(rows, cols, func(out []float64, in ...*value) {
		copy(out, in[0].X)
	}, func(dout []float64, in ...*value) {
		a := in[0]
		for i, d := range dout {
			a.D[i] += d
		}
	}), t)
}

// Slice gibt die Zeilen [lo, hi) zurueck
func (t *Tensor) Slice(ctx *Context, lo, hi int) *Tensor {
	r, c := t.Dims()
	if lo < 0 || hi > r || lo >= hi {
		panic(fmt.Errorf("ml: slice: rows [%d, %d) out of %d", lo, hi, r))
	}
	begin, end := lo*c, hi*c
	flat := ctx.apply(func(m ...meta) meta {
		return ctx.slice(m[0], map[string]interface{}{"begin": &begin, "end": &end})
	}, t)
	return flat.Reshape(ctx, hi-lo, c)
}

// Concat haengt die Zeilen von t2 an t an. gradient.Concat verbindet Spalten.
func (t *Tensor) Concat(ctx *Context, t2 *Tensor) *Tensor {
	r1, c := t.Dims()
	r2, c2 := t2.Dims()
	if c != c2 {
		panic(fmt.Errorf("ml: concat: %d vs %d columns", c, c2))
	}
	split := r1 * c
	return ctx.apply(ctx.kernel(r1+r2, c, func(out []float64, in ...*value) {
		copy(out, in[0].X)
		copy(out[split:], in[1].X)
	}, func(dout []float64, in ...*value) {
		a, b := in[0], in[1]
		for i, d := range dout[:split] {
			a.D[i] += d
		}
		for i, d := range dout[split:] {
			b.D[i] += d
		}
	}), t, t2)
}

// Gather waehlt Zeilen nach Index aus (Embedding-Lookup)
func (t *Tensor) Gather(ctx *Context, ids []int32) *Tensor {
	r, c := t.Dims()
	for _, id := range ids {
		if id < 0 || int(id) >= r {
			panic(fmt.Errorf("ml: gather: index %d out of range [0, %d)", id, r))
		}
	}
	return ctx.apply(ctx.kernel(len(ids), c, func(out []float64, in ...*value) {
		for i, id := range ids {
			copy(out[i*c:(i+1)*c], in[0].X[int(id)*c:(int(id)+1)*c])
		}
	}, func(dout []float64, in ...*value) {
		a := in[0]
		for i, id := range ids {
			row := a.D[int(id)*c : (int(id)+1)*c]
			for j, d := range dout[i*c : (i+1)*c] {
				row[j] += d
			}
		}
	}), t)
}

// RepeatEach wiederholt jede Zeile n-mal hintereinander
func (t *Tensor) RepeatEach(ctx *Context, n int) *Tensor {
	r, c := t.Dims()
	return ctx.apply(ctx.kernel(r*n, c, func(out []float64, in ...*value) {
		for i := range r * n {
			copy(out[i*c:(i+1)*c], in[0].X[(i/n)*c:(i/n+1)*c])
		}
	}, func(dout []float64, in ...*value) {
		a := in[0]
		for i := range r * n {
			row := a.D[(i/n)*c : (i/n+1)*c]
			for j, d := range dout[i*c : (i+1)*c] {
				row[j] += d
			}
		}
	}), t)
}

// Detach gibt einen konstanten Tensor mit denselben Werten zurueck
func (t *Tensor) Detach() *Tensor {
	return &Tensor{v: t.v.Copy()}
}

// =============================================================================
// Fusionierte Operationen
// =============================================================================

// PairwiseSqDist berechnet D[i][j] = |t_i - y_j|² fuer Zeilenvektoren.
// gradient.Euclidean verlangt gleich viele Zeilen und zieht die Wurzel.
func (t *Tensor) PairwiseSqDist(ctx *Context, y *Tensor) *Tensor {
	n, d := t.Dims()
	m, d2 := y.Dims()
	if d != d2 {
		panic(fmt.Errorf("ml: pairwiseSqDist: %d vs %d columns", d, d2))
	}
	return ctx.apply(ctx.kernel(n, m, func(out []float64, in ...*value) {
		xd, yd := in[0].X, in[1].X
		for i := range n {
			xi := xd[i*d : (i+1)*d]
			for j := range m {
				yj := yd[j*d : (j+1)*d]
				var s float64
				for k := range d {
					diff := xi[k] - yj[k]
					s += diff * diff
				}
				out[i*m+j] = s
			}
		}
	}, func(dout []float64, in ...*value) {
		x, y := in[0], in[1]
		for i := range n {
			xi := x.X[i*d : (i+1)*d]
			for j := range m {
				w := 2 * dout[i*m+j]
				if w == 0 {
					continue
				}
				yj := y.X[j*d : (j+1)*d]
				for k := range d {
					diff := w * (xi[k] - yj[k])
					x.D[i*d+k] += diff
					y.D[j*d+k] -= diff
				}
			}
		}
	}), t, y)
}

// CrossEntropy berechnet den mittleren Kreuzentropie-Loss ueber alle Zeilen,
// deren Ziel nicht IgnoreIndex ist. Zeile i von t sind die Logits fuer targets[i].
// gradient.CrossEntropy ist binaer auf Wahrscheinlichkeiten, daher ein eigener Kernel.
//
//	L = -(1/N) * sum_i log(softmax(t_i)[targets[i]])
func (t *Tensor) CrossEntropy(ctx *Context, targets []int32) *Tensor {
	r, c := t.Dims()
	if len(targets) != r {
		panic(fmt.Errorf("ml: crossEntropy: %d targets for %d rows", len(targets), r))
	}
	var n int
	for _, target := range targets {
		if target == IgnoreIndex {
			continue
		}
		if target < 0 || int(target) >= c {
			panic(fmt.Errorf("ml: crossEntropy: target %d out of range [0, %d)", target, c))
		}
		n++
	}

	softmax := func(row, p []float64) (logSumExp float64) {
		maxVal := math.Inf(-1)
		for _, v := range row {
			maxVal = max(maxVal, v)
		}
		var sumExp float64
		for j, v := range row {
			p[j] = math.Exp(v - maxVal)
			sumExp += p[j]
		}
		for j := range p {
			p[j] /= sumExp
		}
		return maxVal + math.Log(sumExp)
	}

	return ctx.apply(ctx.kernel(1, 1, func(out []float64, in ...*value) {
		if n == 0 {
			return
		}
		p := make([]float64, c)
		var loss float64
		for i, target := range targets {
			if target == IgnoreIndex {
				continue
			}
			row := in[0].X[i*c : (i+1)*c]
			loss -= row[target] - softmax(row, p)
		}
		out[0] = loss / float64(n)
	}, func(dout []float64, in ...*value) {
		if n == 0 {
			return
		}
		a := in[0]
		scale := dout[0] / float64(n)
		p := make([]float64, c)
		for i, target := range targets {
			if target == IgnoreIndex {
				continue
			}
			softmax(a.X[i*c:(i+1)*c], p)
			for j := range c {
				a.D[i*c+j] += p[j] * scale
			}
			a.D[i*c+int(target)] -= scale
		}
	}), t)
}
