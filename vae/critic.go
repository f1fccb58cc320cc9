// critic.go - Adversarialer Critic auf interpolierten Latent-Codes
//
// Dieses Modul enthaelt:
// - Critic: MLP, das aus dekodierten Hidden-States den Mischanteil schaetzt
// - interpolate: mischt jeden Code mit dem naechsten im Batch
// - ValidateOptimizers: erzwingt getrennte Parametergruppen fuer Critic und Generator
package vae

import (
	"math/rand/v2"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/ml/nn"
)

// Critic schaetzt fuer jede Sequenz den Interpolations-Anteil alpha
type Critic struct {
	Hidden *nn.Linear `param:"hidden"`
	Output *nn.Linear `param:"output"`

	seqLen, hiddenSize int
}

func newCritic(rng *rand.Rand, c Config) *Critic {
	return &Critic{
		Hidden:     nn.NewLinear(rng, c.SetSeqSize*c.HiddenSize, c.CriticHiddenSize),
		Output:     nn.NewLinear(rng, c.CriticHiddenSize, 1),
		seqLen:     c.SetSeqSize,
		hiddenSize: c.HiddenSize,
	}
}

// Forward gibt (B × 1) Scores fuer (B·S × H) Hidden-States zurueck. With frozen
// set the weights are detached, so only the input receives gradients.
func (c *Critic) Forward(ctx *ml.Context, hidden *ml.Tensor, frozen bool) *ml.Tensor {
	rows, _ := hidden.Dims()
	x := hidden.Reshape(ctx, rows/c.seqLen, c.seqLen*c.hiddenSize)
	if frozen {
		return c.Output.ForwardFrozen(ctx, c.Hidden.ForwardFrozen(ctx, x).Tanh(ctx))
	}
	return c.Output.Forward(ctx, c.Hidden.Forward(ctx, x).Tanh(ctx))
}

// sampleAlphas zieht pro Sequenz alpha ~ U(0, 0.5)
func sampleAlphas(rng *rand.Rand, n int) []float64 {
	alphas := make([]float64, n)
	for i := range alphas {
		alphas[i] = rng.Float64() / 2
	}
	return alphas
}

// interpolate gibt alpha_i·z_i + (1-alpha_i)·z_{i+1 mod B} zurueck
func interpolate(ctx *ml.Context, z *ml.Tensor, alphas []float64) *ml.Tensor {
	b, w := z.Dims()
	next := make([]int32, b)
	weights := make([]float64, 0, b*w)
	rest := make([]float64, 0, b*w)
	for i := range b {
		next[i] = int32((i + 1) % b)
		for range w {
			weights = append(weights, alphas[i])
			rest = append(rest, 1-alphas[i])
		}
	}

	mixed := z.Mul(ctx, ctx.FromFloats(weights, b, w))
	return mixed.Add(ctx, z.Gather(ctx, next).Mul(ctx, ctx.FromFloats(rest, b, w)))
}

// ValidateOptimizers prueft, dass Critic und Generator unabhaengig optimiert werden
func ValidateOptimizers(generator, critic *ml.AdamW) error {
	if generator == nil || critic == nil {
		return configError("optimizers", "critic training needs a generator and a critic optimizer")
	}
	if generator == critic {
		return configError("optimizers", "critic and generator share optimizer %q", generator.Name)
	}
	if shared := ml.SharedParameters(generator.Parameters(), critic.Parameters()); len(shared) > 0 {
		return configError("optimizers", "critic and generator share parameters %v", shared)
	}
	return nil
}
