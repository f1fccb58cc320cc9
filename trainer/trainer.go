// Package trainer - Trainingsschleife fuer den latenten Autoencoder
//
// Dieses Modul enthaelt:
// - Args: Batch-Groessen, Epochen, Lernraten, Logging
// - Trainer: Generator- und Critic-Optimierer, Phasensteuerung, Evaluation
// - Train: Epochen ueber den Datensatz, Abbruch bei NaN oder Kontext-Ende
// - Evaluate: Eval-Loss, Edit-Distanz der Rekonstruktion, danach Hooks
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/agnivade/levenshtein"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/vae"
)

var ErrNaNLoss = errors.New("loss is NaN or Inf")

// Args steuert das Training
type Args struct {
	BatchSize          int     `json:"per_device_train_batch_size"`
	EvalBatchSize      int     `json:"per_device_eval_batch_size"`
	Epochs             int     `json:"num_train_epochs"`
	LearningRate       float64 `json:"learning_rate"`
	CriticLearningRate float64 `json:"critic_learning_rate"`
	WeightDecay        float64 `json:"weight_decay"`
	MaxGradNorm        float64 `json:"max_grad_norm"`
	Seed               uint64  `json:"seed"`
	LoggingSteps       int     `json:"logging_steps"`
	GenerateMaxLength  int     `json:"generate_max_len"`
	EvalEachEpoch      bool    `json:"evaluate_during_training"`
}

// DefaultArgs gibt Standardwerte zurueck
func DefaultArgs() Args {
	return Args{
		BatchSize:          8,
		EvalBatchSize:      8,
		Epochs:             3,
		LearningRate:       5e-5,
		CriticLearningRate: 5e-5,
		MaxGradNorm:        1,
		Seed:               42,
		LoggingSteps:       500,
	}
}

// Options enthaelt die Integrationen des Trainers
type Options struct {
	Loggers []MetricsLogger
	Hooks   []EvalHook
}

// Result ist das Ergebnis von Train
type Result struct {
	GlobalStep   int     `json:"global_step"`
	Epoch        float64 `json:"epoch"`
	TrainingLoss float64 `json:"training_loss"`
}

// Trainer treibt Optimierer-Schritte fuer ein vae.Model
type Trainer struct {
	model *vae.Model
	args  Args
	opts  Options

	generator *ml.AdamW
	critic    *ml.AdamW
	loop      *CriticLoop

	rng   *rand.Rand
	state State
}

// New erstellt einen Trainer. Mit Critic werden zwei getrennte Optimierer
// angelegt; teilen sie Parameter, schlaegt die Konstruktion fehl.
func New(m *vae.Model, args Args, opts Options) (*Trainer, error) {
	if args.BatchSize <= 0 || args.Epochs <= 0 {
		return nil, fmt.Errorf("trainer: batch size %d and epochs %d must be > 0", args.BatchSize, args.Epochs)
	}
	if args.EvalBatchSize <= 0 {
		args.EvalBatchSize = args.BatchSize
	}
	if args.GenerateMaxLength <= 0 {
		args.GenerateMaxLength = m.Config().SetSeqSize
	}

	config := ml.DefaultAdamWConfig()
	config.LR = args.LearningRate
	config.WeightDecay = args.WeightDecay
	config.GradClip = args.MaxGradNorm

	t := &Trainer{
		model:     m,
		args:      args,
		opts:      opts,
		generator: ml.NewAdamW("generator", m.GeneratorParameters(), config),
		rng:       rand.New(rand.NewPCG(args.Seed, 0xda7a)),
	}

	if m.Config().HasCritic() {
		criticConfig := config
		criticConfig.LR = args.CriticLearningRate
		t.critic = ml.NewAdamW("critic", m.CriticParameters(), criticConfig)
		if err := vae.ValidateOptimizers(t.generator, t.critic); err != nil {
			return nil, err
		}
		t.loop = NewCriticLoop(m.Config().InterpolateTrainingStepRate, m.Config().MinCriticSteps)
	}

	return t, nil
}

// State gibt den aktuellen Fortschritt zurueck
func (t *Trainer) State() State {
	return t.state
}

func (t *Trainer) Args() Args {
	return t.args
}

// batches teilt seqs in Batches der Groesse size; mit shuffle in zufaelliger Reihenfolge
func (t *Trainer) batches(seqs []input.Sequence, size int, shuffle bool) []input.Batch {
	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}
	if shuffle {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var out []input.Batch
	for lo := 0; lo < len(order); lo += size {
		hi := min(lo+size, len(order))
		chunk := make([]input.Sequence, 0, hi-lo)
		for _, i := range order[lo:hi] {
			chunk = append(chunk, seqs[i])
		}
		out = append(out, input.Collate(chunk))
	}
	return out
}

// Train trainiert args.Epochs Epochen. Epoch im Ergebnis ist der Anteil
// abgeschlossener Schritte pro Epoche, nach vollem Durchlauf also genau Epochs.
func (t *Trainer) Train(ctx context.Context, train, eval []input.Sequence) (*Result, error) {
	if len(train) == 0 {
		return nil, errors.New("trainer: empty training set")
	}

	stepsPerEpoch := (len(train) + t.args.BatchSize - 1) / t.args.BatchSize
	t.state = State{}
	t.model.Reset()
	t.model.SetTraining(true)
	if t.loop != nil {
		t.loop.Reset()
	}

	slog.Info("training started", "examples", len(train), "epochs", t.args.Epochs, "steps_per_epoch", stepsPerEpoch, "critic", t.loop != nil)

	var lossSum float64
	var lossSteps int
	for epoch := range t.args.Epochs {
		for _, batch := range t.batches(train, t.args.BatchSize, true) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			phase := PhaseGenerator
			if t.loop != nil {
				phase = t.loop.Next()
			}

			var metrics *vae.Metrics
			var err error
			if phase == PhaseCritic {
				metrics, err = t.criticStep(batch)
			} else {
				metrics, err = t.generatorStep(batch)
			}
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", t.state.GlobalStep, phase, err)
			}

			if phase == PhaseGenerator {
				loss, _ := metrics.Get("loss")
				lossSum += loss
				lossSteps++
			}

			t.state.GlobalStep++
			t.state.Epoch = float64(t.state.GlobalStep) / float64(stepsPerEpoch)

			if t.args.LoggingSteps > 0 && t.state.GlobalStep%t.args.LoggingSteps == 0 {
				t.logMetrics(ctx, metrics)
			}
		}

		slog.Debug("epoch finished", "epoch", epoch+1, "step", t.state.GlobalStep)
		if t.args.EvalEachEpoch && len(eval) > 0 {
			if _, err := t.Evaluate(ctx, eval); err != nil {
				return nil, err
			}
		}
	}

	result := &Result{GlobalStep: t.state.GlobalStep, Epoch: t.state.Epoch}
	if lossSteps > 0 {
		result.TrainingLoss = lossSum / float64(lossSteps)
	}
	slog.Info("training finished", "step", result.GlobalStep, "epoch", result.Epoch, "training_loss", result.TrainingLoss)
	return result, nil
}

// generatorStep fuehrt Forward, Backward und den Generator-Optimierer aus und
// legt danach die Latent-Codes im Cache ab
func (t *Trainer) generatorStep(batch input.Batch) (*vae.Metrics, error) {
	ctx := ml.NewContext()

	out, err := t.model.Forward(ctx, batch, t.state.GlobalStep)
	if err != nil {
		return nil, err
	}
	if out.Loss.HasNaN() {
		return nil, ErrNaNLoss
	}

	t.generator.ZeroGrad()
	if err := ctx.Backward(out.Loss); err != nil {
		return nil, err
	}
	norm := t.generator.Step()

	if err := t.model.CommitLatents(out); err != nil {
		return nil, err
	}

	out.Metrics.Set("grad_norm", norm)
	out.Metrics.Set("learning_rate", t.args.LearningRate)
	return out.Metrics, nil
}

// criticStep trainiert nur den Critic
func (t *Trainer) criticStep(batch input.Batch) (*vae.Metrics, error) {
	ctx := ml.NewContext()

	loss, metrics, err := t.model.CriticLoss(ctx, batch)
	if err != nil {
		return nil, err
	}
	if loss.HasNaN() {
		return nil, ErrNaNLoss
	}

	t.critic.ZeroGrad()
	if err := ctx.Backward(loss); err != nil {
		return nil, err
	}
	metrics.Set("critic_grad_norm", t.critic.Step())
	return metrics, nil
}

// Evaluate berechnet Eval-Metriken ohne Gradienten und fuehrt danach die Hooks aus
func (t *Trainer) Evaluate(ctx context.Context, eval []input.Sequence) (*vae.Metrics, error) {
	restore := t.model.EvalScope()
	defer restore()

	var loss, recon, distance float64
	var batches, sequences int
	for _, batch := range t.batches(eval, t.args.EvalBatchSize, false) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := t.model.Forward(ml.NoGrad(), batch, t.state.GlobalStep)
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}

		l, _ := out.Metrics.Get("loss")
		r, _ := out.Metrics.Get("recon_loss")
		loss += l
		recon += r
		batches++

		for _, d := range editDistances(batch, out.Logits.Value()) {
			distance += float64(d)
			sequences++
		}
	}

	start := time.Now()
	for _, h := range t.opts.Hooks {
		_ = runHook(ctx, h, t.state, eval)
	}
	generateTime := time.Since(start).Seconds()

	metrics := vae.NewMetrics()
	if batches > 0 {
		metrics.Set("eval_loss", loss/float64(batches))
		metrics.Set("eval_recon_loss", recon/float64(batches))
	}
	if sequences > 0 {
		metrics.Set("eval_edit_distance", distance/float64(sequences))
	}
	metrics.Set("eval_generate_time", generateTime)

	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		if math.IsNaN(pair.Value) {
			slog.Warn("eval metric is NaN", "metric", pair.Key)
		}
	}
	t.logMetrics(ctx, metrics)
	return metrics, nil
}

// editDistances vergleicht die gierige Rekonstruktion jeder Sequenz mit den
// Labels, Padding-Positionen ausgenommen
func editDistances(batch input.Batch, logits mat.Matrix) []int {
	predicted := ml.ArgmaxRows(logits)
	seqLen := batch.SeqLen()

	out := make([]int, batch.Size())
	for b, labels := range batch.Labels {
		var want, got []rune
		for s, label := range labels {
			if label == ml.IgnoreIndex {
				continue
			}
			want = append(want, rune(label))
			got = append(got, rune(predicted[b*seqLen+s]))
		}
		out[b] = levenshtein.ComputeDistance(string(got), string(want))
	}
	return out
}
