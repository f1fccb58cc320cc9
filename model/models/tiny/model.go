// Modul: model.go
// Beschreibung: Kleiner Referenz-Backbone fuer Training und Tests
// Hauptstrukturen:
//   - Model: Token-Einbettung, Positions-Einbettung, ein Encoder- und ein Decoder-Block
//   - New: Erstellt das Modell aus der Konfiguration
//   - Encode/Decode: Vorwaertsdurchlauf in beide Richtungen

package tiny

import (
	"fmt"
	"math/rand/v2"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/ml/nn"
	"github.com/7blacky7/transformer-vae/model"
	"github.com/7blacky7/transformer-vae/model/input"
)

// Model ist ein positionsweiser Backbone ohne Attention. Encoder-Zeile s sieht
// nur Token s; der Encoder des Autoencoders mischt die Positionen.
type Model struct {
	TokenEmbedding *nn.Embedding `param:"token_embd"`
	EncPositions   *ml.Parameter `param:"enc.position_embd"`
	EncHidden      *nn.Linear    `param:"enc.ffn"`

	DecTokenEmbedding *nn.Embedding `param:"dec.token_embd"`
	DecPositions      *ml.Parameter `param:"dec.position_embd"`
	DecHidden         *nn.Linear    `param:"dec.ffn"`
	Output            *nn.Linear    `param:"output"`

	config model.Config
}

// New erstellt ein neues Tiny-Modell aus der gegebenen Konfiguration
func New(c model.Config) (model.Model, error) {
	rng := rand.New(rand.NewPCG(c.Seed, 0x7e57))
	h := c.HiddenSize

	m := Model{
		TokenEmbedding:    nn.NewEmbedding(rng, c.VocabSize, h),
		EncPositions:      ml.NewParameter("enc.position_embd", c.MaxPositions, h, ml.Randn(rng, c.MaxPositions*h, 0.02)),
		EncHidden:         nn.NewLinear(rng, h, h),
		DecTokenEmbedding: nn.NewEmbedding(rng, c.VocabSize, h),
		DecPositions:      ml.NewParameter("dec.position_embd", c.MaxPositions, h, ml.Randn(rng, c.MaxPositions*h, 0.02)),
		DecHidden:         nn.NewLinear(rng, h, h),
		Output:            nn.NewLinear(rng, h, c.VocabSize),
		config:            c,
	}
	return &m, nil
}

func (m *Model) Config() model.Config {
	return m.config
}

// Validate prueft, ob alle Gewichte zur Konfiguration passen
func (m *Model) Validate() error {
	if r, c := m.TokenEmbedding.Weight.Dims(); r != m.config.VocabSize || c != m.config.HiddenSize {
		return fmt.Errorf("tiny: token embedding has shape [%d %d]", r, c)
	}
	for _, id := range []int32{m.config.PadTokenID, m.config.EOSTokenID, m.config.DecoderStartTokenID} {
		if id < 0 || int(id) >= m.config.VocabSize {
			return fmt.Errorf("tiny: special token %d outside vocabulary of %d", id, m.config.VocabSize)
		}
	}
	return nil
}

// positions gibt die ersten seqLen Zeilen der Positions-Einbettung zurueck
func (m *Model) positions(ctx *ml.Context, p *ml.Parameter, seqLen int) (*ml.Tensor, error) {
	if seqLen <= 0 || seqLen > m.config.MaxPositions {
		return nil, fmt.Errorf("tiny: sequence length %d outside [1, %d]", seqLen, m.config.MaxPositions)
	}
	return p.Slice(ctx, 0, seqLen), nil
}

// Encode bettet die Tokens ein und gibt (B·S × H) Hidden-States zurueck
func (m *Model) Encode(ctx *ml.Context, batch input.Batch) (*ml.Tensor, error) {
	positions, err := m.positions(ctx, m.EncPositions, batch.SeqLen())
	if err != nil {
		return nil, err
	}

	hiddenStates := m.TokenEmbedding.Forward(ctx, batch.Flat())
	hiddenStates = hiddenStates.AddTiled(ctx, positions)
	return m.EncHidden.Forward(ctx, hiddenStates).Tanh(ctx), nil
}

// Decode berechnet Logits (B·S × V) aus Hidden-States und Decoder-Eingaben
func (m *Model) Decode(ctx *ml.Context, hidden *ml.Tensor, decoderInput [][]int32) (*ml.Tensor, error) {
	if len(decoderInput) == 0 {
		return nil, fmt.Errorf("tiny: empty decoder input")
	}
	seqLen := len(decoderInput[0])
	if rows, _ := hidden.Dims(); rows != len(decoderInput)*seqLen {
		return nil, fmt.Errorf("tiny: %d hidden rows for %d decoder positions", rows, len(decoderInput)*seqLen)
	}

	positions, err := m.positions(ctx, m.DecPositions, seqLen)
	if err != nil {
		return nil, err
	}

	ids := make([]int32, 0, len(decoderInput)*seqLen)
	for _, row := range decoderInput {
		ids = append(ids, row...)
	}

	hiddenStates := hidden.Add(ctx, m.DecTokenEmbedding.Forward(ctx, ids))
	hiddenStates = hiddenStates.AddTiled(ctx, positions)
	hiddenStates = m.DecHidden.Forward(ctx, hiddenStates).Tanh(ctx)
	return m.Output.Forward(ctx, hiddenStates), nil
}

func init() {
	model.Register("tiny", New)
}
