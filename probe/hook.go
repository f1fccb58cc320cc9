package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"
)

// Sink speichert Proben-Tabellen, z.B. in der Run-Datenbank
type Sink interface {
	RecordProbe(ctx context.Context, step int, table *Table) error
}

// Hook fuehrt beide Proben nach jeder Evaluation aus
type Hook struct {
	Model    *vae.Model
	Decoder  Decoder
	Sink     Sink
	Ratios   []float64
	Samples  int
	Generate vae.GenerateOptions

	// Out erhaelt gerenderte Tabellen, nil schaltet die Ausgabe ab
	Out   io.Writer
	Plain bool

	rng *rand.Rand
}

// NewHook erstellt einen Hook mit Standard-Ratios und 10 Stichproben. Jede
// dekodierte Folge hat genau length Tokens; length <= 0 bedeutet set_seq_size.
func NewHook(m *vae.Model, dec Decoder, sink Sink, seed uint64, length int) *Hook {
	if length <= 0 || length > m.Config().SetSeqSize {
		length = m.Config().SetSeqSize
	}
	return &Hook{
		Model:   m,
		Decoder: dec,
		Sink:    sink,
		Ratios:  DefaultRatios(),
		Samples: DefaultSamples,
		Generate: vae.GenerateOptions{
			BOSTokenID: m.Config().DecoderStartTokenID,
			MinLength:  length,
			MaxLength:  length,
		},
		rng: rand.New(rand.NewPCG(seed, 0x9e0b)),
	}
}

var _ trainer.EvalHook = (*Hook)(nil)

func (h *Hook) Name() string {
	return "latent-probes"
}

// AfterEvaluate waehlt zwei zufaellige Eval-Beispiele fuer die Interpolation
// und zieht danach die Zufalls-Stichproben. Eine fehlgeschlagene Probe haelt
// die andere nicht auf.
func (h *Hook) AfterEvaluate(ctx context.Context, state trainer.State, eval []input.Sequence) error {
	var errs []error

	if len(eval) < 2 {
		errs = append(errs, fmt.Errorf("%w, eval set has %d", ErrNotEnoughExamples, len(eval)))
	} else {
		perm := h.rng.Perm(len(eval))
		table, err := Interpolate(h.Model, []input.Sequence{eval[perm[0]], eval[perm[1]]}, h.Ratios, h.Decoder, h.Generate)
		if err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, h.emit(ctx, state, table))
		}
	}

	table, err := RandomSamples(h.Model, h.Samples, h.rng, h.Decoder, h.Generate)
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, h.emit(ctx, state, table))
	}

	return errors.Join(errs...)
}

func (h *Hook) emit(ctx context.Context, state trainer.State, table *Table) error {
	slog.Debug("latent probe", "kind", table.Kind, "step", state.GlobalStep, "rows", len(table.Rows))
	if h.Out != nil {
		if err := Render(h.Out, table, h.Plain); err != nil {
			return err
		}
	}
	if h.Sink != nil {
		return h.Sink.RecordProbe(ctx, state.GlobalStep, table)
	}
	return nil
}
