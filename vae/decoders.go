// decoders.go - Varianten fuer Latent-Code -> Hidden-States
//
// Dieses Modul enthaelt:
// - fullNTokensDecoder: ein Linear-Layer erzeugt alle Positionen auf einmal
// - repeatDecoder: ein Hidden-State pro Sequenz, ueber alle Positionen wiederholt
package vae

import (
	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/ml/nn"
)

type latentDecoder interface {
	// decode bildet (B × n·L) Codes auf (B·S × H) Hidden-States ab
	decode(ctx *ml.Context, z *ml.Tensor) *ml.Tensor
}

type fullNTokensDecoder struct {
	Proj *nn.Linear `param:"proj"`

	seqLen, hiddenSize int
}

func (d *fullNTokensDecoder) decode(ctx *ml.Context, z *ml.Tensor) *ml.Tensor {
	b, _ := z.Dims()
	hidden := d.Proj.Forward(ctx, z).Tanh(ctx)
	return hidden.Reshape(ctx, b*d.seqLen, d.hiddenSize)
}

type repeatDecoder struct {
	Proj *nn.Linear `param:"proj"`

	seqLen int
}

func (d *repeatDecoder) decode(ctx *ml.Context, z *ml.Tensor) *ml.Tensor {
	return d.Proj.Forward(ctx, z).Tanh(ctx).RepeatEach(ctx, d.seqLen)
}
