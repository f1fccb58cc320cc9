package latentcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
)

func batch(v float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{v, v, v, v})
}

func TestPushEvictsOldest(t *testing.T) {
	c, err := New(3, ml.DTypeF32)
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, c.Push(batch(float64(i))))
	}

	require.Equal(t, 3, c.Len())
	snap := c.Snapshot()
	rows, cols := snap.Dims()
	require.Equal(t, 6, rows)
	require.Equal(t, 2, cols)

	// Batches 2, 3, 4 in Einfuege-Reihenfolge
	for i, want := range []float64{2, 2, 3, 3, 4, 4} {
		require.Equal(t, want, snap.At(i, 0), "Zeile %d", i)
	}
}

func TestPushCopiesBatch(t *testing.T) {
	c, err := New(1, ml.DTypeF32)
	require.NoError(t, err)

	b := batch(1)
	require.NoError(t, c.Push(b))
	b.Set(0, 0, 99)

	require.Equal(t, 1.0, c.Snapshot().At(0, 0))
}

func TestDisabledCache(t *testing.T) {
	c, err := New(0, ml.DTypeF32)
	require.NoError(t, err)

	require.NoError(t, c.Push(batch(1)))
	require.Nil(t, c.Snapshot())
	require.Equal(t, 0, c.Len())
}

func TestWidthMismatch(t *testing.T) {
	c, err := New(2, ml.DTypeF32)
	require.NoError(t, err)

	require.NoError(t, c.Push(batch(1)))
	err = c.Push(mat.NewDense(1, 3, nil))
	require.True(t, errors.Is(err, ErrWidthMismatch))
}

func TestHalfPrecision(t *testing.T) {
	c, err := New(2, ml.DTypeF16)
	require.NoError(t, err)

	require.NoError(t, c.Push(mat.NewDense(1, 2, []float64{0.5, -1.25})))
	snap := c.Snapshot()
	require.Equal(t, 0.5, snap.At(0, 0))
	require.Equal(t, -1.25, snap.At(0, 1))
}

func TestBrainFloat(t *testing.T) {
	c, err := New(2, ml.DTypeBF16)
	require.NoError(t, err)

	require.NoError(t, c.Push(mat.NewDense(2, 2, []float64{0.5, -1.25, 3, 1.0 / 3})))
	snap := c.Snapshot()
	require.Equal(t, 0.5, snap.At(0, 0))
	require.Equal(t, -1.25, snap.At(0, 1))
	require.Equal(t, 3.0, snap.At(1, 0))
	// bf16 hat nur 8 Bit Mantisse
	require.InDelta(t, 1.0/3, snap.At(1, 1), 2e-3, "1/3 sollte auf bf16-Genauigkeit erhalten bleiben")
}

func TestReset(t *testing.T) {
	c, err := New(2, ml.DTypeF16)
	require.NoError(t, err)

	require.NoError(t, c.Push(batch(1)))
	c.Reset()
	require.Nil(t, c.Snapshot())
}

func TestInvalidArguments(t *testing.T) {
	_, err := New(-1, ml.DTypeF32)
	require.Error(t, err)

	_, err = New(1, ml.DTypeOther)
	require.Error(t, err)
}
