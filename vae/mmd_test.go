package vae

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
)

func normalSample(rng *rand.Rand, n, d int, shift float64) *mat.Dense {
	s := ml.Randn(rng, n*d, 1)
	for i := range s {
		s[i] += shift
	}
	return mat.NewDense(n, d, s)
}

func TestEstimateSameSetIsZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := normalSample(rng, 400, 2, 0)
	require.InDelta(t, 0, Estimate(x, x), 0.01)
}

func TestEstimateSameSetSmallBatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for _, n := range []int{2, 4, DefaultConfig().MMDBatchSize, 16} {
		x := normalSample(rng, n, 3, 0)
		require.InDelta(t, 0, Estimate(x, x), 1e-12, "n=%d", n)
	}
}

func TestEstimateUnequalSizes(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	x := normalSample(rng, 5, 2, 0)
	y := normalSample(rng, 7, 2, 0)

	h := bandwidth(x, y)
	kernelMean := func(a, b *mat.Dense, skipDiag bool) float64 {
		ra, _ := a.Dims()
		rb, _ := b.Dims()
		var sum float64
		var count int
		for i := range ra {
			for j := range rb {
				if skipDiag && i == j {
					continue
				}
				var d2 float64
				for c := range 2 {
					diff := a.At(i, c) - b.At(j, c)
					d2 += diff * diff
				}
				sum += math.Exp(-d2 / h)
				count++
			}
		}
		return sum / float64(count)
	}

	want := kernelMean(x, x, true) + kernelMean(y, y, true) - 2*kernelMean(x, y, false)
	require.InDelta(t, want, Estimate(x, y), 1e-9)
}

func TestEstimateDetectsShift(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	x := normalSample(rng, 200, 2, 3)
	y := normalSample(rng, 200, 2, 0)
	require.Greater(t, Estimate(x, y), 0.1)

	same := Estimate(normalSample(rng, 200, 2, 0), y)
	require.Less(t, same, Estimate(x, y))
}

func TestBandwidthFallback(t *testing.T) {
	x := mat.NewDense(3, 4, nil)
	require.Equal(t, 8.0, bandwidth(x, x))

	v := Estimate(x, x)
	require.False(t, math.IsNaN(v))
}

func TestMMDLossGradient(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	z := ml.NewParameter("z", 4, 3, ml.Randn(rng, 12, 1))
	m := NewMMD(8, rng)

	ctx := ml.NewContext()

	loss := m.Loss(ctx, z.Tensor, normalSample(rng, 6, 3, 0))
	require.False(t, loss.HasNaN())
	require.NoError(t, ctx.Backward(loss))
	require.NotNil(t, z.Grad())

	r, c := z.Grad().Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)
}

func TestMMDLossSingleSample(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	m := NewMMD(1, rng)
	ctx := ml.NoGrad()

	loss := m.Loss(ctx, ctx.FromFloats([]float64{0.5, -0.5}, 1, 2), nil)
	require.False(t, loss.HasNaN())
}
