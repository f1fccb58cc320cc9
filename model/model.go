// Package model - Backbone-Interface und Registry
//
// Dieses Paket definiert das Interface fuer Transformer-Backbones, auf denen
// der latente Autoencoder aufsetzt, und stellt Funktionen zur Registrierung
// und Initialisierung bereit.
//
// Hauptkomponenten:
// - Model: Interface fuer alle Backbone-Architekturen (Encode/Decode)
// - Config: Groessen und Spezial-Token eines Backbones
// - New: Erstellt neue Model-Instanzen ueber die Registry
// - Register: Registriert Modell-Konstruktoren

package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/model/input"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model not supported")
	ErrInvalidConfig    = errors.New("invalid model config")
)

// Config beschreibt Groessen und Spezial-Token eines Backbones
type Config struct {
	VocabSize    int   `json:"vocab_size"`
	HiddenSize   int   `json:"hidden_size"`
	MaxPositions int   `json:"max_positions"`
	PadTokenID   int32 `json:"pad_token_id"`
	EOSTokenID   int32 `json:"eos_token_id"`

	// DecoderStartTokenID is the first decoder input of every sequence.
	DecoderStartTokenID int32 `json:"decoder_start_token_id"`

	Seed uint64 `json:"seed"`
}

// Model definiert das Interface fuer Backbone-Architekturen.
//
// Encode maps a batch of B sequences of length S to hidden states with one
// row per token (B·S × HiddenSize). Decode maps hidden states of the same
// layout plus the decoder input ids to logits (B·S × VocabSize). Position s
// of the decoder only sees decoderInput[b][s], which is the previous target
// token, so generation can run position by position.
type Model interface {
	Encode(ctx *ml.Context, batch input.Batch) (*ml.Tensor, error)
	Decode(ctx *ml.Context, hidden *ml.Tensor, decoderInput [][]int32) (*ml.Tensor, error)

	Config() Config
}

// Validator ist ein optionales Interface fuer Post-Init-Validierung
type Validator interface {
	Validate() error
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(Config) (Model, error))

// Register registriert einen Modell-Konstruktor fuer eine Architektur
func Register(name string, f func(Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// Names gibt die registrierten Architekturen sortiert zurueck
func Names() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registered meldet, ob eine Architektur registriert ist
func Registered(name string) bool {
	return slices.Contains(Names(), name)
}

// New initialisiert eine neue Model-Instanz fuer die Architektur name
func New(name string, c Config) (Model, error) {
	if c.VocabSize <= 0 || c.HiddenSize <= 0 || c.MaxPositions <= 0 {
		return nil, fmt.Errorf("%w: vocab_size=%d hidden_size=%d max_positions=%d", ErrInvalidConfig, c.VocabSize, c.HiddenSize, c.MaxPositions)
	}

	f, ok := models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}

	m, err := f(c)
	if err != nil {
		return nil, err
	}

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ShiftRight baut Decoder-Eingaben: startID gefolgt von ids ohne das letzte Token
func ShiftRight(ids [][]int32, startID int32) [][]int32 {
	out := make([][]int32, len(ids))
	for i, row := range ids {
		shifted := make([]int32, len(row))
		if len(row) > 0 {
			shifted[0] = startID
			copy(shifted[1:], row[:len(row)-1])
		}
		out[i] = shifted
	}
	return out
}
