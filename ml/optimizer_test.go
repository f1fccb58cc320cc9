package ml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdamWMinimizesQuadratic(t *testing.T) {
	p := NewParameter("w", 1, 3, []float64{3, -2, 1})
	config := DefaultAdamWConfig()
	config.LR = 0.1
	opt := NewAdamW("test", []*Parameter{p}, config)

	loss := func() float64 {
		ctx := NewContext()
		l := p.Sqr(ctx).Sum(ctx)
		opt.ZeroGrad()
		require.NoError(t, ctx.Backward(l))
		return l.Scalar()
	}

	first := loss()
	for range 100 {
		opt.Step()
		loss()
	}
	require.Less(t, loss(), first/10)
	require.Equal(t, 100, opt.Steps())
}

func TestAdamWSkipsParametersWithoutGrad(t *testing.T) {
	p := NewParameter("unbenutzt", 1, 2, []float64{1, 2})
	opt := NewAdamW("test", []*Parameter{p}, DefaultAdamWConfig())
	opt.Step()
	require.Equal(t, []float64{1, 2}, p.Value().RawMatrix().Data)
}

func TestSharedParameters(t *testing.T) {
	a := NewParameter("a", 1, 1, nil)
	b := NewParameter("b", 1, 1, nil)
	c := NewParameter("c", 1, 1, nil)

	require.Empty(t, SharedParameters([]*Parameter{a, b}, []*Parameter{c}))
	require.Equal(t, []string{"b"}, SharedParameters([]*Parameter{a, b}, []*Parameter{c, b}))

	alias := &Parameter{Tensor: a.Tensor, Name: "alias"}
	require.Equal(t, []string{"alias"}, SharedParameters([]*Parameter{a}, []*Parameter{alias}))
}
