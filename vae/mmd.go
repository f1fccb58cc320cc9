// mmd.go - Maximum Mean Discrepancy gegen die Standardnormalverteilung
//
// Dieses Modul enthaelt:
// - MMD: differenzierbarer Schaetzer mit Referenzstichprobe aus N(0, I)
// - Estimate: dieselbe Statistik auf reinen Matrizen (ohne Graph)
// - bandwidth: Median-Heuristik fuer die RBF-Bandbreite mit Fallback
package vae

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/7blacky7/transformer-vae/ml"
)

// minBandwidth ist die kleinste Bandbreite, die nicht als entartet gilt
const minBandwidth = 1e-12

// MMD vergleicht Latent-Codes mit Stichproben aus N(0, I).
//
// The RBF kernel k(a, b) = exp(-|a-b|²/h) uses the median pairwise squared
// distance of the pooled sample as h. Self pairs are excluded from the
// within-set means and, for sets of equal size, the paired terms k(x_i, y_i)
// from the cross mean. The statistic is unbiased and may be slightly negative.
type MMD struct {
	// BatchSize ist die Mindestanzahl an Referenzstichproben
	BatchSize int

	rng *rand.Rand
}

// NewMMD erstellt einen Schaetzer mit eigener Zufallsquelle
func NewMMD(batchSize int, rng *rand.Rand) *MMD {
	return &MMD{BatchSize: batchSize, rng: rng}
}

// Loss berechnet MMD² zwischen z (mit Gradient) plus previous (konstant, darf
// nil sein) und einer frischen Referenzstichprobe.
func (m *MMD) Loss(ctx *ml.Context, z *ml.Tensor, previous *mat.Dense) *ml.Tensor {
	x := z
	if previous != nil {
		x = z.Concat(ctx, ctx.FromDense(previous))
	}

	n, d := x.Dims()
	count := max(n, m.BatchSize)
	y := ctx.FromFloats(ml.Randn(m.rng, count*d, 1), count, d)

	h := bandwidth(x.Value(), y.Value())
	return statistic(ctx, x, y, h)
}

// Estimate berechnet MMD² zwischen den Zeilen von x und y ohne Gradienten
func Estimate(x, y mat.Matrix) float64 {
	ctx := ml.NoGrad()
	tx, ty := ctx.FromDense(x), ctx.FromDense(y)
	return statistic(ctx, tx, ty, bandwidth(tx.Value(), ty.Value())).Scalar()
}

func statistic(ctx *ml.Context, x, y *ml.Tensor, h float64) *ml.Tensor {
	kxx := selfKernelMean(ctx, x, h)
	kyy := selfKernelMean(ctx, y, h)
	kxy := crossKernelMean(ctx, x, y, h)
	return kxx.Add(ctx, kyy).Sub(ctx, kxy.Scale(ctx, 2))
}

func kernel(ctx *ml.Context, x, y *ml.Tensor, h float64) *ml.Tensor {
	return x.PairwiseSqDist(ctx, y).Scale(ctx, -1/h).Exp(ctx)
}

// selfKernelMean mittelt k(x_i, x_j) ueber i != j. The diagonal of the kernel
// matrix is exactly 1, so it is subtracted from the sum. Sets with a single
// sample fall back to the biased mean.
func selfKernelMean(ctx *ml.Context, x *ml.Tensor, h float64) *ml.Tensor {
	n, _ := x.Dims()
	k := kernel(ctx, x, x, h)
	if n < 2 {
		return k.Mean(ctx)
	}
	return k.Sum(ctx).AddScalar(ctx, -float64(n)).Scale(ctx, 1/float64(n*(n-1)))
}

// crossKernelMean mittelt k(x_i, y_j). Bei gleich grossen Mengen entfallen die
// Paare i == j, sonst ist Estimate(x, x) um 2(1-k̄)/n verschoben.
func crossKernelMean(ctx *ml.Context, x, y *ml.Tensor, h float64) *ml.Tensor {
	n, d := x.Dims()
	m, _ := y.Dims()
	k := kernel(ctx, x, y, h)
	if n != m || n < 2 {
		return k.Mean(ctx)
	}

	ones := make([]float64, d)
	for i := range ones {
		ones[i] = 1
	}
	paired := x.Sub(ctx, y).Sqr(ctx).Matmul(ctx, ctx.FromFloats(ones, d, 1)).Scale(ctx, -1/h).Exp(ctx).Sum(ctx)
	return k.Sum(ctx).Sub(ctx, paired).Scale(ctx, 1/float64(n*(n-1)))
}

// bandwidth gibt den Median der paarweisen quadrierten Abstaende aller Zeilen
// von x und y zurueck. Entartete Werte fallen auf 2·dim zurueck, den
// Erwartungswert fuer zwei unabhaengige Standardnormal-Vektoren.
func bandwidth(x, y *mat.Dense) float64 {
	_, d := x.Dims()
	rows := make([][]float64, 0)
	for _, m := range []*mat.Dense{x, y} {
		r, _ := m.Dims()
		for i := range r {
			rows = append(rows, m.RawRowView(i))
		}
	}

	dists := make([]float64, 0, len(rows)*(len(rows)-1)/2)
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			dist := floats.Distance(rows[i], rows[j], 2)
			dists = append(dists, dist*dist)
		}
	}

	h := math.NaN()
	if len(dists) > 0 {
		sort.Float64s(dists)
		h = stat.Quantile(0.5, stat.Empirical, dists, nil)
	}

	if math.IsNaN(h) || math.IsInf(h, 0) || h <= minBandwidth {
		fallback := 2 * float64(d)
		slog.Warn("degenerate mmd kernel bandwidth, using fallback", "bandwidth", h, "fallback", fallback, "samples", len(rows))
		return fallback
	}
	return h
}
