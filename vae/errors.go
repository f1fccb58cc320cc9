// errors.go - Fehlertypen des latenten Autoencoders
//
// Dieses Modul enthaelt:
// - ErrConfiguration / ConfigError: ungueltige Konfiguration, fatal bei Konstruktion
// - ErrDataShape / ShapeError: Eingabe passt nicht zu set_seq_size, fatal fuer den Schritt
package vae

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("vae configuration error")
	ErrDataShape     = errors.New("vae data shape error")
)

// ConfigError beschreibt ein ungueltiges Konfigurationsfeld
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ShapeError beschreibt eine Sequenz mit falscher Laenge
type ShapeError struct {
	Sequence int
	Field    string
	Got      int
	Want     int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: sequence %d: %s has length %d, want %d", ErrDataShape, e.Sequence, e.Field, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error {
	return ErrDataShape
}
