package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/transformer-vae/probe"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := &Store{DBPath: filepath.Join(t.TempDir(), "runs", "test.db")}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateRun(ctx, "erster", map[string]int{"latent_size": 32})
	require.NoError(t, err)
	second, err := s.CreateRun(ctx, "zweiter", map[string]int{"latent_size": 64})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// neueste zuerst
	require.Equal(t, second.ID, runs[0].ID, "Neuester Run sollte zuerst kommen")
	require.JSONEq(t, `{"latent_size":64}`, string(runs[0].Config))
	require.Nil(t, runs[0].FinishedAt)

	require.NoError(t, s.FinishRun(ctx, first.ID, map[string]float64{"training_loss": 1.5}))
	got, err := s.Run(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt, "Beendeter Run sollte finished_at haben")
	require.JSONEq(t, `{"training_loss":1.5}`, string(got.Result))
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Run(ctx, "gibt-es-nicht")
	require.True(t, errors.Is(err, ErrRunNotFound), "Erwartet ErrRunNotFound, erhalten %v", err)
	require.ErrorIs(t, s.FinishRun(ctx, "gibt-es-nicht", nil), ErrRunNotFound)
	require.ErrorIs(t, s.DeleteRun(ctx, "gibt-es-nicht"), ErrRunNotFound)
}

func TestRunLoggerMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.CreateRun(ctx, "metriken", nil)
	require.NoError(t, err)
	logger := RunLogger{Store: s, RunID: run.ID}

	m := vae.NewMetrics()
	m.Set("loss", 2.5)
	m.Set("recon_loss", 2.0)
	m.Set("critic_loss", math.NaN())
	require.NoError(t, logger.LogMetrics(ctx, trainer.State{GlobalStep: 1}, m))

	m = vae.NewMetrics()
	m.Set("loss", 1.25)
	require.NoError(t, logger.LogMetrics(ctx, trainer.State{GlobalStep: 2}, m))

	got, err := s.Metrics(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.True(t, math.IsNaN(got[2].Value), "NaN sollte als NaN zurueckkommen")

	got[2].Value = 0
	want := []Metric{
		{Step: 1, Name: "loss", Value: 2.5},
		{Step: 1, Name: "recon_loss", Value: 2.0},
		{Step: 1, Name: "critic_loss", Value: 0},
		{Step: 2, Name: "loss", Value: 1.25},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Metriken stimmen nicht ueberein (-want +got):\n%s", diff)
	}
}

func TestRunLoggerProbes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.CreateRun(ctx, "proben", nil)
	require.NoError(t, err)
	logger := RunLogger{Store: s, RunID: run.ID}

	interp := &probe.Table{Kind: probe.KindInterpolate, Rows: []probe.Row{
		{Ratio: 0, Text: "abc"},
		{Ratio: 0.5, Text: "abd"},
		{Ratio: 1, Text: "xyz"},
	}}
	random := &probe.Table{Kind: probe.KindRandom, Rows: []probe.Row{{Text: "qq"}, {Text: "rr"}}}

	require.NoError(t, logger.RecordProbe(ctx, 10, interp))
	require.NoError(t, logger.RecordProbe(ctx, 10, random))
	require.NoError(t, logger.RecordProbe(ctx, 20, interp))

	got, err := s.Probes(ctx, run.ID)
	require.NoError(t, err)

	want := []ProbeTable{
		{Step: 10, Table: *interp},
		{Step: 10, Table: *random},
		{Step: 20, Table: *interp},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Proben stimmen nicht ueberein (-want +got):\n%s", diff)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run, err := s.CreateRun(ctx, "weg", nil)
	require.NoError(t, err)
	m := vae.NewMetrics()
	m.Set("loss", 1)
	require.NoError(t, s.RecordMetrics(ctx, run.ID, 1, m))

	require.NoError(t, s.DeleteRun(ctx, run.ID))

	got, err := s.Metrics(ctx, run.ID)
	require.NoError(t, err)
	require.Empty(t, got, "Metriken sollten mit dem Run geloescht werden")
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s := &Store{DBPath: path}
	run, err := s.CreateRun(ctx, "bleibt", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = &Store{DBPath: path}
	defer s.Close()
	got, err := s.Run(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "bleibt", got.Name)
	require.True(t, run.CreatedAt.Equal(got.CreatedAt), "created_at sollte erhalten bleiben")
}

func TestMetricJSONNaN(t *testing.T) {
	b, err := json.Marshal([]Metric{{Step: 3, Name: "loss", Value: 1.5}, {Step: 3, Name: "critic_loss", Value: math.NaN()}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"step":3,"name":"loss","value":1.5},{"step":3,"name":"critic_loss","value":null}]`, string(b))

	var back []Metric
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, 1.5, back[0].Value)
	require.True(t, math.IsNaN(back[1].Value), "null sollte als NaN gelesen werden")
}
