// Modul: store_types.go
// Beschreibung: Datentypen der Run-Datenbank (Runs, Metriken, Proben)

package store

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/7blacky7/transformer-vae/probe"
)

var ErrRunNotFound = errors.New("run not found")

// Run ist ein Trainingslauf mit Konfiguration und Ergebnis
type Run struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Config     json.RawMessage `json:"config"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Metric ist ein benannter Wert zu einem Schritt
type Metric struct {
	Step  int     `json:"step"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ProbeTable ist eine gespeicherte Proben-Tabelle
type ProbeTable struct {
	Step int `json:"step"`
	probe.Table
}

type metricJSON struct {
	Step  int      `json:"step"`
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// MarshalJSON schreibt nicht-endliche Werte als null
func (m Metric) MarshalJSON() ([]byte, error) {
	out := metricJSON{Step: m.Step, Name: m.Name}
	if !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0) {
		out.Value = &m.Value
	}
	return json.Marshal(out)
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	var in metricJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*m = Metric{Step: in.Step, Name: in.Name, Value: math.NaN()}
	if in.Value != nil {
		m.Value = *in.Value
	}
	return nil
}
