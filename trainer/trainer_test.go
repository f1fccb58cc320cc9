package trainer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/vae"
)

func toyConfig() vae.Config {
	c := vae.DefaultConfig()
	c.VocabSize = 10
	c.HiddenSize = 8
	c.LatentSize = 2
	c.SetSeqSize = 4
	c.MMDBatchSize = 4
	c.Seed = 1
	return c
}

func toyData() []input.Sequence {
	rows := [][]int32{{2, 3, 4, 1}, {5, 6, 1, 0}, {7, 8, 9, 1}, {3, 3, 1, 0}}
	seqs := make([]input.Sequence, len(rows))
	for i, row := range rows {
		mask := make([]int32, len(row))
		for j, id := range row {
			if id != 0 {
				mask[j] = 1
			}
		}
		seqs[i] = input.Sequence{InputIDs: row, AttentionMask: mask}
	}
	return seqs
}

type recordingLogger struct {
	steps   []int
	metrics []*vae.Metrics
}

func (r *recordingLogger) LogMetrics(_ context.Context, state State, metrics *vae.Metrics) error {
	r.steps = append(r.steps, state.GlobalStep)
	r.metrics = append(r.metrics, metrics)
	return nil
}

type panickingHook struct{ calls int }

func (h *panickingHook) Name() string { return "panicking" }

func (h *panickingHook) AfterEvaluate(context.Context, State, []input.Sequence) error {
	h.calls++
	panic("decode failed")
}

type failingHook struct{ calls int }

func (h *failingHook) Name() string { return "failing" }

func (h *failingHook) AfterEvaluate(context.Context, State, []input.Sequence) error {
	h.calls++
	return errors.New("no examples")
}

func TestTrainEndToEnd(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*vae.Config)
	}{
		{name: "mmd", modify: func(*vae.Config) {}},
		{name: "kl", modify: func(c *vae.Config) { c.EncoderModel = "vae-1st-token" }},
		{name: "critic", modify: func(c *vae.Config) {
			c.TransformerCriticName = vae.CriticMLP
			c.InterpolateTrainingStepRate = 2
			c.MinCriticSteps = 1
		}},
		{name: "cycle smooth", modify: func(c *vae.Config) {
			c.CycleLoss = true
			c.SmoothCosine = true
			c.UseExtraLogs = true
		}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c := toyConfig()
			tt.modify(&c)
			m, err := vae.New(c)
			require.NoError(t, err)

			logger := &recordingLogger{}
			args := DefaultArgs()
			args.BatchSize = 2
			args.Epochs = 2
			args.LearningRate = 1e-3
			args.CriticLearningRate = 1e-3
			args.LoggingSteps = 1
			args.EvalEachEpoch = true

			tr, err := New(m, args, Options{Loggers: []MetricsLogger{logger}})
			require.NoError(t, err)

			result, err := tr.Train(context.Background(), toyData(), toyData())
			require.NoError(t, err)
			require.Equal(t, 2.0, result.Epoch)
			require.Equal(t, 4, result.GlobalStep)
			require.False(t, math.IsNaN(result.TrainingLoss))
			require.True(t, m.Training(), "Trainings-Modus nach Evaluation wiederhergestellt")

			// 4 Trainingsschritte plus 2 Evaluationen
			require.Equal(t, []int{1, 2, 2, 3, 4, 4}, logger.steps)
			for _, metrics := range logger.metrics {
				for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
					require.False(t, math.IsNaN(pair.Value), "%s ist NaN", pair.Key)
				}
			}
		})
	}
}

func TestTrainCriticPhases(t *testing.T) {
	c := toyConfig()
	c.TransformerCriticName = vae.CriticMLP
	c.InterpolateTrainingStepRate = 2
	c.MinCriticSteps = 1
	m, err := vae.New(c)
	require.NoError(t, err)

	args := DefaultArgs()
	args.BatchSize = 2
	args.Epochs = 3
	logger := &recordingLogger{}
	args.LoggingSteps = 1
	tr, err := New(m, args, Options{Loggers: []MetricsLogger{logger}})
	require.NoError(t, err)

	_, err = tr.Train(context.Background(), toyData(), nil)
	require.NoError(t, err)
	require.Equal(t, 4, tr.generator.Steps())
	require.Equal(t, 2, tr.critic.Steps())

	// Schritte 3 und 5 (1-basiert) sind Critic-Schritte
	for i, metrics := range logger.metrics {
		_, critic := metrics.Get("critic_train_loss")
		require.Equal(t, i == 2 || i == 4, critic, "Schritt %d", i+1)
	}
}

func TestEvaluateSkipsFailingHooks(t *testing.T) {
	m, err := vae.New(toyConfig())
	require.NoError(t, err)

	panics, fails := &panickingHook{}, &failingHook{}
	args := DefaultArgs()
	args.BatchSize = 4
	args.Epochs = 1
	tr, err := New(m, args, Options{Hooks: []EvalHook{panics, fails}})
	require.NoError(t, err)

	metrics, err := tr.Evaluate(context.Background(), toyData())
	require.NoError(t, err)
	require.Equal(t, 1, panics.calls)
	require.Equal(t, 1, fails.calls)
	require.True(t, m.Training())

	var keys []string
	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	require.Equal(t, []string{"eval_loss", "eval_recon_loss", "eval_edit_distance", "eval_generate_time"}, keys)
}

type nanModel struct{}

func (nanModel) Name() string { return "nan" }

func (nanModel) Loss(ctx *ml.Context, _ *ml.Tensor) (*ml.Tensor, error) {
	return ctx.FromFloats([]float64{math.NaN()}, 1, 1), nil
}

func TestTrainStopsOnNaN(t *testing.T) {
	m, err := vae.New(toyConfig(), nanModel{})
	require.NoError(t, err)

	args := DefaultArgs()
	args.BatchSize = 2
	args.Epochs = 1
	tr, err := New(m, args, Options{})
	require.NoError(t, err)

	_, err = tr.Train(context.Background(), toyData(), nil)
	require.True(t, errors.Is(err, ErrNaNLoss))
}

func TestTrainShapeErrorAborts(t *testing.T) {
	m, err := vae.New(toyConfig())
	require.NoError(t, err)

	args := DefaultArgs()
	args.BatchSize = 2
	args.Epochs = 1
	tr, err := New(m, args, Options{})
	require.NoError(t, err)

	data := append(toyData(), input.Sequence{InputIDs: []int32{2, 3}, AttentionMask: []int32{1, 1}})
	_, err = tr.Train(context.Background(), data, nil)
	require.True(t, errors.Is(err, vae.ErrDataShape))
}

func TestTrainCanceled(t *testing.T) {
	m, err := vae.New(toyConfig())
	require.NoError(t, err)

	args := DefaultArgs()
	args.Epochs = 1
	tr, err := New(m, args, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Train(ctx, toyData(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEditDistances(t *testing.T) {
	batch := input.Collate([]input.Sequence{
		{InputIDs: []int32{1, 2, 0}, AttentionMask: []int32{1, 1, 0}},
	})
	// Zeile 0 sagt 1 vorher, Zeile 1 sagt 0 vorher, Zeile 2 ist Padding
	logits := mat.NewDense(3, 3, []float64{
		0, 5, 0,
		5, 0, 0,
		0, 0, 5,
	})
	require.Equal(t, []int{1}, editDistances(batch, logits))
}
