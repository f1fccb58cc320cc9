// Package nn - Basis-Layer fuer Encoder, Decoder und Critic
//
// Dieses Modul enthaelt:
// - Linear: y = x · Wᵀ + b mit Kaiming-Initialisierung
// - Embedding: Zeilen-Lookup fuer Token- und Positions-Einbettungen
package nn

import (
	"math/rand/v2"

	"github.com/7blacky7/transformer-vae/ml"
)

// Linear stores its weight as [out, in] so the forward pass is a MatmulT.
type Linear struct {
	Weight *ml.Parameter `param:"weight"`
	Bias   *ml.Parameter `param:"bias"`
}

// NewLinear erstellt einen Linear-Layer mit N(0, 2/in) Gewichten und Null-Bias
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	return &Linear{
		Weight: ml.NewParameter("weight", out, in, ml.Randn(rng, out*in, ml.KaimingStd(in))),
		Bias:   ml.NewParameter("bias", 1, out, nil),
	}
}

func (l *Linear) Forward(ctx *ml.Context, t *ml.Tensor) *ml.Tensor {
	t = t.MatmulT(ctx, l.Weight.Tensor)
	if l.Bias != nil {
		t = t.AddTiled(ctx, l.Bias.Tensor)
	}
	return t
}

// ForwardFrozen rechnet mit abgekoppelten Gewichten; es fliesst kein Gradient in den Layer
func (l *Linear) ForwardFrozen(ctx *ml.Context, t *ml.Tensor) *ml.Tensor {
	t = t.MatmulT(ctx, l.Weight.Detach())
	if l.Bias != nil {
		t = t.AddTiled(ctx, l.Bias.Detach())
	}
	return t
}

// Embedding maps ids to rows of Weight.
type Embedding struct {
	Weight *ml.Parameter `param:"weight"`
}

// NewEmbedding erstellt eine Einbettung mit N(0, 1/dim) Werten
func NewEmbedding(rng *rand.Rand, n, dim int) *Embedding {
	return &Embedding{
		Weight: ml.NewParameter("weight", n, dim, ml.Randn(rng, n*dim, ml.KaimingStd(2*dim))),
	}
}

func (e *Embedding) Forward(ctx *ml.Context, ids []int32) *ml.Tensor {
	return e.Weight.Gather(ctx, ids)
}
