// generate.go - Gierige Dekodierung aus Latent-Codes
//
// Dieses Modul enthaelt:
// - GenerateOptions: Start-Token, minimale und maximale Laenge
// - Generate: Token-Folgen aus Latent-Codes, Position fuer Position
// - EncodeLatent: Latent-Codes fuer einen Batch ohne Gradienten
package vae

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/model/input"
)

// GenerateOptions steuert Generate
type GenerateOptions struct {
	// BOSTokenID ist die erste Decoder-Eingabe
	BOSTokenID int32
	// MinLength unterdrueckt EOS vor dieser Position
	MinLength int
	// MaxLength begrenzt die Ausgabe; 0 oder mehr als set_seq_size bedeutet set_seq_size
	MaxLength int
}

// Generate dekodiert jede Zeile von latent gierig. Die Ausgabe endet vor dem
// ersten EOS oder nach MaxLength Tokens.
func (m *Model) Generate(latent mat.Matrix, opts GenerateOptions) ([][]int32, error) {
	rows, cols := latent.Dims()
	if cols != m.config.LatentWidth() {
		return nil, fmt.Errorf("%w: latent width %d, want %d", ErrDataShape, cols, m.config.LatentWidth())
	}

	seqLen := m.config.SetSeqSize
	maxLength := opts.MaxLength
	if maxLength <= 0 || maxLength > seqLen {
		maxLength = seqLen
	}

	ctx := ml.NoGrad()
	hidden := m.Decoder.decode(ctx, ctx.FromDense(latent))

	decoderInput := make([][]int32, rows)
	for b := range decoderInput {
		decoderInput[b] = make([]int32, seqLen)
		for s := range decoderInput[b] {
			decoderInput[b][s] = m.config.PadTokenID
		}
		decoderInput[b][0] = opts.BOSTokenID
	}

	out := make([][]int32, rows)
	done := make([]bool, rows)
	eos := int(m.config.EOSTokenID)
	for s := range maxLength {
		logits, err := m.Backbone.Decode(ctx, hidden, decoderInput)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}

		value := logits.Value()
		_, vocab := value.Dims()
		for b := range rows {
			if done[b] {
				continue
			}

			best, bestVal := 0, math.Inf(-1)
			for j := range vocab {
				if j == eos && s < opts.MinLength {
					continue
				}
				if v := value.At(b*seqLen+s, j); v > bestVal {
					best, bestVal = j, v
				}
			}

			if best == eos {
				done[b] = true
				continue
			}
			out[b] = append(out[b], int32(best))
			if s+1 < seqLen {
				decoderInput[b][s+1] = int32(best)
			}
		}
	}
	return out, nil
}

// EncodeLatent gibt die deterministischen Latent-Codes (B × n·L) fuer batch zurueck
func (m *Model) EncodeLatent(batch input.Batch) (*mat.Dense, error) {
	if err := m.checkShape(batch); err != nil {
		return nil, err
	}

	ctx := ml.NoGrad()
	enc, err := m.encode(ctx, batch, false)
	if err != nil {
		return nil, err
	}
	return enc.mean().Dense(), nil
}
