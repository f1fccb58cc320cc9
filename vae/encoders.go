// encoders.go - Varianten fuer Hidden-States -> Latent-Code
//
// Dieses Modul enthaelt:
// - fullFirstTokenEncoder: Projektion des ersten Tokens
// - nTokensEncoder: Projektion der ersten n Tokens, aneinandergehaengt
// - vaeFirstTokenEncoder: Mittelwert und Log-Varianz mit Reparametrisierung
package vae

import (
	"math/rand/v2"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/ml/nn"
)

// encoding ist das Ergebnis eines Encoders. mu und logvar sind nur bei der
// probabilistischen Variante gesetzt.
type encoding struct {
	z      *ml.Tensor
	mu     *ml.Tensor
	logvar *ml.Tensor
}

// mean gibt den deterministischen Teil des Codes zurueck
func (e encoding) mean() *ml.Tensor {
	if e.mu != nil {
		return e.mu
	}
	return e.z
}

type latentEncoder interface {
	// encode bildet (B·S × H) Hidden-States auf (B × n·L) Codes ab
	encode(ctx *ml.Context, hidden *ml.Tensor, batchSize int, sample bool) encoding
}

// tokenRows gibt die Zeilen der ersten n Tokens jeder Sequenz zurueck
func tokenRows(batchSize, seqLen, n int) []int32 {
	ids := make([]int32, 0, batchSize*n)
	for b := range batchSize {
		for j := range n {
			ids = append(ids, int32(b*seqLen+j))
		}
	}
	return ids
}

type fullFirstTokenEncoder struct {
	Proj *nn.Linear `param:"proj"`

	seqLen int
}

func (e *fullFirstTokenEncoder) encode(ctx *ml.Context, hidden *ml.Tensor, batchSize int, _ bool) encoding {
	first := hidden.Gather(ctx, tokenRows(batchSize, e.seqLen, 1))
	return encoding{z: e.Proj.Forward(ctx, first).Tanh(ctx)}
}

type nTokensEncoder struct {
	Proj *nn.Linear `param:"proj"`

	seqLen, n, latentSize int
}

func (e *nTokensEncoder) encode(ctx *ml.Context, hidden *ml.Tensor, batchSize int, _ bool) encoding {
	tokens := hidden.Gather(ctx, tokenRows(batchSize, e.seqLen, e.n))
	z := e.Proj.Forward(ctx, tokens).Tanh(ctx)
	return encoding{z: z.Reshape(ctx, batchSize, e.n*e.latentSize)}
}

type vaeFirstTokenEncoder struct {
	Mean   *nn.Linear `param:"mean"`
	LogVar *nn.Linear `param:"logvar"`

	seqLen, latentSize int
	rng                *rand.Rand
}

// encode zieht z = mu + exp(logvar/2)·eps nur wenn sample gesetzt ist, sonst z = mu
func (e *vaeFirstTokenEncoder) encode(ctx *ml.Context, hidden *ml.Tensor, batchSize int, sample bool) encoding {
	first := hidden.Gather(ctx, tokenRows(batchSize, e.seqLen, 1))
	mu := e.Mean.Forward(ctx, first)
	logvar := e.LogVar.Forward(ctx, first)
	if !sample {
		return encoding{z: mu, mu: mu, logvar: logvar}
	}

	eps := ctx.FromFloats(ml.Randn(e.rng, batchSize*e.latentSize, 1), batchSize, e.latentSize)
	z := mu.Add(ctx, logvar.Scale(ctx, 0.5).Exp(ctx).Mul(ctx, eps))
	return encoding{z: z, mu: mu, logvar: logvar}
}

// klDivergence berechnet KL(N(mu, exp(logvar)) || N(0, I)), gemittelt ueber den Batch:
//
//	0.5 · sum(mu² + exp(logvar) - logvar - 1) / B
func klDivergence(ctx *ml.Context, mu, logvar *ml.Tensor) *ml.Tensor {
	b, l := mu.Dims()
	terms := mu.Sqr(ctx).Add(ctx, logvar.Exp(ctx)).Sub(ctx, logvar)
	return terms.Sum(ctx).AddScalar(ctx, -float64(b*l)).Scale(ctx, 0.5/float64(b))
}
