package store

import (
	"context"

	"github.com/7blacky7/transformer-vae/probe"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"
)

// RunLogger schreibt Metriken und Proben eines Trainers in einen Run
type RunLogger struct {
	Store *Store
	RunID string
}

var (
	_ trainer.MetricsLogger = RunLogger{}
	_ probe.Sink            = RunLogger{}
)

func (l RunLogger) LogMetrics(ctx context.Context, state trainer.State, metrics *vae.Metrics) error {
	return l.Store.RecordMetrics(ctx, l.RunID, state.GlobalStep, metrics)
}

func (l RunLogger) RecordProbe(ctx context.Context, step int, table *probe.Table) error {
	return l.Store.RecordProbe(ctx, l.RunID, step, table)
}
