// hooks.go - Erweiterungspunkte des Trainers
//
// Dieses Modul enthaelt:
// - MetricsLogger: empfaengt Trainings- und Eval-Metriken
// - EvalHook: laeuft nach jeder Evaluation (z.B. Latent-Space-Proben)
// - SlogLogger: Standard-Logger ueber log/slog
// - runHook: fuehrt einen Hook aus, Fehler und Panics werden geloggt
package trainer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/vae"
)

// State ist der Fortschritt des Trainings
type State struct {
	GlobalStep int
	Epoch      float64
}

// MetricsLogger empfaengt benannte Metriken fuer einen Schritt
type MetricsLogger interface {
	LogMetrics(ctx context.Context, state State, metrics *vae.Metrics) error
}

// EvalHook wird nach jeder Evaluation mit dem Eval-Datensatz aufgerufen
type EvalHook interface {
	Name() string
	AfterEvaluate(ctx context.Context, state State, eval []input.Sequence) error
}

// SlogLogger schreibt Metriken als Log-Zeile
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) LogMetrics(ctx context.Context, state State, metrics *vae.Metrics) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := []any{"step", state.GlobalStep, "epoch", state.Epoch}
	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		args = append(args, pair.Key, pair.Value)
	}
	logger.InfoContext(ctx, "metrics", args...)
	return nil
}

// runHook fuehrt h aus; ein Fehler oder Panic bricht das Training nicht ab
func runHook(ctx context.Context, h EvalHook, state State, eval []input.Sequence) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			slog.Warn("eval hook failed, skipping", "hook", h.Name(), "step", state.GlobalStep, "error", err)
		}
	}()
	return h.AfterEvaluate(ctx, state, eval)
}

func (t *Trainer) logMetrics(ctx context.Context, metrics *vae.Metrics) {
	for _, l := range t.opts.Loggers {
		if err := l.LogMetrics(ctx, t.state, metrics); err != nil {
			slog.Warn("metrics logger failed", "step", t.state.GlobalStep, "error", err)
		}
	}
}
