// Package probe - Latent-Space-Proben zur Evaluationszeit
//
// Dieses Modul enthaelt:
// - Table/Row: serialisierbares Ergebnis einer Probe
// - Interpolate: lineare Interpolation zwischen zwei Beispielen, gierig dekodiert
// - RandomSamples: Dekodierung von Stichproben aus N(0, I)
//
// Beide Proben laufen ohne Gradienten im Eval-Modus; der vorherige Modus wird
// auf jedem Ausgangspfad wiederhergestellt.
package probe

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/vae"
)

const (
	KindInterpolate = "interpolate"
	KindRandom      = "random"

	// Anker-Zeilen mit dem Rohtext der beiden Beispiele
	StartAnchor = -10.0
	EndAnchor   = 10.0

	DefaultSamples = 10
)

var ErrNotEnoughExamples = errors.New("interpolation needs two examples")

// Decoder wandelt Token-IDs in Text um
type Decoder interface {
	Decode(ids []int32) string
}

// Row ist eine Zeile einer Probe; Ratio ist nur bei Interpolationen gesetzt
type Row struct {
	Ratio float64 `json:"ratio"`
	Text  string  `json:"text"`
}

// Table ist das Ergebnis einer Probe
type Table struct {
	Kind string `json:"kind"`
	Rows []Row  `json:"rows"`
}

// DefaultRatios gibt 0, 0.1, ..., 1.0 zurueck
func DefaultRatios() []float64 {
	ratios := make([]float64, 11)
	for i := range ratios {
		ratios[i] = float64(i) / 10
	}
	return ratios
}

// Interpolate kodiert die beiden Sequenzen zu z0 und z1 und dekodiert
// (1-r)·z0 + r·z1 fuer jedes r in ratios. Die erste und letzte Zeile sind die
// Rohtexte der Beispiele mit den Ankern -10 und 10.
func Interpolate(m *vae.Model, pair []input.Sequence, ratios []float64, dec Decoder, opts vae.GenerateOptions) (*Table, error) {
	if len(pair) != 2 {
		return nil, fmt.Errorf("%w, got %d", ErrNotEnoughExamples, len(pair))
	}

	restore := m.EvalScope()
	defer restore()

	z, err := m.EncodeLatent(input.Collate(pair))
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	_, width := z.Dims()
	latents := mat.NewDense(len(ratios), width, nil)
	for i, r := range ratios {
		for j := range width {
			z0, z1 := z.At(0, j), z.At(1, j)
			latents.Set(i, j, (1-r)*z0+r*z1)
		}
	}

	generated, err := m.Generate(latents, opts)
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	table := &Table{Kind: KindInterpolate}
	table.Rows = append(table.Rows, Row{Ratio: StartAnchor, Text: dec.Decode(pair[0].InputIDs)})
	for i, ids := range generated {
		table.Rows = append(table.Rows, Row{Ratio: ratios[i], Text: dec.Decode(ids)})
	}
	table.Rows = append(table.Rows, Row{Ratio: EndAnchor, Text: dec.Decode(pair[1].InputIDs)})
	return table, nil
}

// RandomSamples dekodiert k Latent-Codes aus N(0, I)
func RandomSamples(m *vae.Model, k int, rng *rand.Rand, dec Decoder, opts vae.GenerateOptions) (*Table, error) {
	if k <= 0 {
		return nil, fmt.Errorf("random samples: k must be > 0, got %d", k)
	}

	restore := m.EvalScope()
	defer restore()

	width := m.Config().LatentWidth()
	latents := mat.NewDense(k, width, ml.Randn(rng, k*width, 1))
	generated, err := m.Generate(latents, opts)
	if err != nil {
		return nil, fmt.Errorf("random samples: %w", err)
	}

	table := &Table{Kind: KindRandom}
	for _, ids := range generated {
		table.Rows = append(table.Rows, Row{Text: dec.Decode(ids)})
	}
	return table, nil
}
