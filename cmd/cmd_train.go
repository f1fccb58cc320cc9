// cmd_train.go - Train Command
// Hauptfunktionen: TrainHandler, configFromFlags, loadTexts
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/transformer-vae/envconfig"
	"github.com/7blacky7/transformer-vae/probe"
	"github.com/7blacky7/transformer-vae/store"
	"github.com/7blacky7/transformer-vae/tokenizer"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"

	_ "github.com/7blacky7/transformer-vae/model/models"
)

// RunConfig wird als Konfiguration eines Runs gespeichert
type RunConfig struct {
	Model    vae.Config   `json:"model"`
	Training trainer.Args `json:"training"`
	Train    string       `json:"train_file"`
	Eval     string       `json:"validation_file,omitempty"`
}

// RunResult wird als Ergebnis eines Runs gespeichert
type RunResult struct {
	trainer.Result
	Eval map[string]float64 `json:"eval,omitempty"`
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	defaults := vae.DefaultConfig()
	args := trainer.DefaultArgs()

	cmd := &cobra.Command{
		Use:     "train",
		Short:   "Train a transformer autoencoder on a text file",
		Args:    cobra.NoArgs,
		PreRunE: checkTrainFlags,
		RunE:    TrainHandler,
	}

	flags := cmd.Flags()
	flags.String("train-file", "", "Text file with one training sequence per line")
	flags.String("validation-file", "", "Text file with one evaluation sequence per line")
	flags.String("run-name", "", "Name of the recorded run")
	flags.Bool("no-record", false, "Do not record the run in the run database")
	flags.Bool("truncate", false, "Truncate sequences longer than --set-seq-size instead of failing")

	flags.String("transformer-name", defaults.TransformerName, "Backbone model")
	flags.Int("hidden-size", defaults.HiddenSize, "Backbone hidden size")
	flags.Int("latent-size", defaults.LatentSize, "Width of each latent token")
	flags.String("encoder-model", defaults.EncoderModel, "Latent encoder (full-1st-token, n-tokens, vae-1st-token)")
	flags.String("decoder-model", defaults.DecoderModel, "Latent decoder (full-n-tokens, repeat)")
	flags.Int("set-seq-size", defaults.SetSeqSize, "Fixed sequence length including EOS")
	flags.Int("n-latent-tokens", defaults.NLatentTokens, "Number of latent tokens")
	flags.Int("n-previous-latent-codes", defaults.NPreviousLatentCodes, "Cached latent batches used by the MMD loss (0 disables)")
	flags.String("latent-cache-type", "", "Storage type of cached latent codes (f32, f16, bf16)")
	flags.Float64("reg-schedule-k", defaults.RegScheduleK, "Slope of the regulariser weight schedule")
	flags.Float64("reg-schedule-b", defaults.RegScheduleB, "Offset of the regulariser weight schedule")
	flags.Int("mmd-batch-size", defaults.MMDBatchSize, "Minimum number of reference samples for the MMD loss")
	flags.Bool("dont-use-reg-loss", false, "Train without the regulariser")
	flags.Bool("smooth-cosine", false, "Smooth the regulariser with a cosine warmup")
	flags.Bool("use-extra-logs", false, "Log the regulariser weight")
	flags.Bool("cycle-loss", false, "Add the latent cycle consistency loss")
	flags.Float64("cycle-loss-weight", defaults.CycleLossWeight, "Weight of the cycle loss")
	flags.String("transformer-critic-name", "", "Interpolation critic (mlp), empty disables it")
	flags.Float64("critic-loss-weight", defaults.CriticLossWeight, "Weight of the critic loss")
	flags.Int("interpolate-training-step-rate", defaults.InterpolateTrainingStepRate, "Every n-th step trains the critic")
	flags.Int("min-critic-steps", defaults.MinCriticSteps, "Generator steps before the critic is trained")

	flags.Int("batch-size", args.BatchSize, "Training batch size")
	flags.Int("eval-batch-size", args.EvalBatchSize, "Evaluation batch size")
	flags.Int("epochs", args.Epochs, "Number of training epochs")
	flags.Float64("learning-rate", args.LearningRate, "Generator learning rate")
	flags.Float64("critic-learning-rate", args.CriticLearningRate, "Critic learning rate")
	flags.Float64("weight-decay", args.WeightDecay, "AdamW weight decay")
	flags.Float64("max-grad-norm", args.MaxGradNorm, "Gradient clipping norm")
	flags.Int("logging-steps", args.LoggingSteps, "Log training metrics every n steps")
	flags.Int("generate-max-len", 0, "Exact length of decoded sample sequences (default --set-seq-size)")
	flags.Bool("evaluate-during-training", false, "Evaluate and probe after every epoch")
	flags.Uint64("seed", 0, "Seed for initialisation and sampling (default VAE_SEED)")

	return cmd
}

func checkTrainFlags(cmd *cobra.Command, args []string) error {
	if f, _ := cmd.Flags().GetString("train-file"); f == "" {
		return errors.New("--train-file is required")
	}
	return nil
}

// configFromFlags - Liest Modell- und Trainings-Konfiguration aus den Flags
func configFromFlags(cmd *cobra.Command) (vae.Config, trainer.Args, error) {
	flags := cmd.Flags()
	c := vae.DefaultConfig()
	a := trainer.DefaultArgs()

	var errs []error
	str := func(name string, dst *string) {
		v, err := flags.GetString(name)
		errs = append(errs, err)
		*dst = v
	}
	integer := func(name string, dst *int) {
		v, err := flags.GetInt(name)
		errs = append(errs, err)
		*dst = v
	}
	float := func(name string, dst *float64) {
		v, err := flags.GetFloat64(name)
		errs = append(errs, err)
		*dst = v
	}
	boolean := func(name string, dst *bool) {
		v, err := flags.GetBool(name)
		errs = append(errs, err)
		*dst = v
	}

	str("transformer-name", &c.TransformerName)
	integer("hidden-size", &c.HiddenSize)
	integer("latent-size", &c.LatentSize)
	str("encoder-model", &c.EncoderModel)
	str("decoder-model", &c.DecoderModel)
	integer("set-seq-size", &c.SetSeqSize)
	integer("n-latent-tokens", &c.NLatentTokens)
	integer("n-previous-latent-codes", &c.NPreviousLatentCodes)
	str("latent-cache-type", &c.LatentCacheType)
	float("reg-schedule-k", &c.RegScheduleK)
	float("reg-schedule-b", &c.RegScheduleB)
	integer("mmd-batch-size", &c.MMDBatchSize)
	boolean("dont-use-reg-loss", &c.DontUseRegLoss)
	boolean("smooth-cosine", &c.SmoothCosine)
	boolean("use-extra-logs", &c.UseExtraLogs)
	boolean("cycle-loss", &c.CycleLoss)
	float("cycle-loss-weight", &c.CycleLossWeight)
	str("transformer-critic-name", &c.TransformerCriticName)
	float("critic-loss-weight", &c.CriticLossWeight)
	integer("interpolate-training-step-rate", &c.InterpolateTrainingStepRate)
	integer("min-critic-steps", &c.MinCriticSteps)

	integer("batch-size", &a.BatchSize)
	integer("eval-batch-size", &a.EvalBatchSize)
	integer("epochs", &a.Epochs)
	float("learning-rate", &a.LearningRate)
	float("critic-learning-rate", &a.CriticLearningRate)
	float("weight-decay", &a.WeightDecay)
	float("max-grad-norm", &a.MaxGradNorm)
	integer("logging-steps", &a.LoggingSteps)
	integer("generate-max-len", &a.GenerateMaxLength)
	boolean("evaluate-during-training", &a.EvalEachEpoch)

	seed, err := flags.GetUint64("seed")
	errs = append(errs, err)
	if !flags.Changed("seed") {
		seed = envconfig.Seed()
	}
	c.Seed, a.Seed = seed, seed

	if c.LatentCacheType == "" {
		c.LatentCacheType = envconfig.LatentCacheType()
	}
	if c.LatentCacheType == "" {
		c.LatentCacheType = "f32"
	}

	return c, a, errors.Join(errs...)
}

// readLines - Liest nicht-leere Zeilen einer Textdatei
func readLines(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if line := strings.TrimRight(scanner.Text(), "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// loadTexts - Laedt alle Dateien parallel; leere Pfade ergeben nil
func loadTexts(ctx context.Context, paths ...string) ([][]string, error) {
	texts := make([][]string, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if n := envconfig.NumWorkers(); n > 0 {
		g.SetLimit(int(n))
	}
	for i, path := range paths {
		if path == "" {
			continue
		}
		g.Go(func() error {
			lines, err := readLines(ctx, path)
			if err != nil {
				return err
			}
			texts[i] = lines
			slog.Debug("loaded text file", "path", path, "lines", len(lines))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// TrainHandler - Trainiert ein Modell, druckt Metriken und Proben und speichert den Run
func TrainHandler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, trainArgs, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	trainFile, _ := cmd.Flags().GetString("train-file")
	evalFile, _ := cmd.Flags().GetString("validation-file")
	truncate, _ := cmd.Flags().GetBool("truncate")

	texts, err := loadTexts(ctx, trainFile, evalFile)
	if err != nil {
		return err
	}
	if len(texts[0]) == 0 {
		return fmt.Errorf("%s contains no sequences", trainFile)
	}

	vocab := tokenizer.Build(append(append([]string{}, texts[0]...), texts[1]...))
	config.VocabSize = vocab.Size()
	config.PadTokenID = tokenizer.PadID
	config.EOSTokenID = tokenizer.EOSID
	config.DecoderStartTokenID = tokenizer.PadID

	train, err := vocab.EncodeAll(texts[0], config.SetSeqSize, truncate)
	if err != nil {
		return fmt.Errorf("%s: %w", trainFile, err)
	}

	// Ohne Validierungsdatei wird auf den Trainingsdaten evaluiert
	eval := train
	if evalFile != "" {
		if eval, err = vocab.EncodeAll(texts[1], config.SetSeqSize, truncate); err != nil {
			return fmt.Errorf("%s: %w", evalFile, err)
		}
	}

	m, err := vae.New(config)
	if err != nil {
		return err
	}

	opts := trainer.Options{Loggers: []trainer.MetricsLogger{trainer.SlogLogger{}}}

	var sink probe.Sink
	var st *store.Store
	var run *store.Run
	if noRecord, _ := cmd.Flags().GetBool("no-record"); !noRecord {
		st = &store.Store{}
		defer st.Close()

		name, _ := cmd.Flags().GetString("run-name")
		run, err = st.CreateRun(ctx, name, RunConfig{Model: config, Training: trainArgs, Train: trainFile, Eval: evalFile})
		if err != nil {
			return err
		}

		logger := store.RunLogger{Store: st, RunID: run.ID}
		opts.Loggers = append(opts.Loggers, logger)
		sink = logger
		slog.Info("recording run", "id", run.ID, "db", envconfig.RunsDB())
	}

	hook := probe.NewHook(m, vocab, sink, trainArgs.Seed, trainArgs.GenerateMaxLength)
	hook.Out = cmd.OutOrStdout()
	hook.Plain = !isTerminal()
	opts.Hooks = append(opts.Hooks, hook)

	t, err := trainer.New(m, trainArgs, opts)
	if err != nil {
		return err
	}

	slog.Info("model config", "config", config.String())
	result, err := t.Train(ctx, train, eval)
	if err != nil {
		return err
	}

	metrics, err := t.Evaluate(ctx, eval)
	if err != nil {
		return err
	}

	out := RunResult{Result: *result, Eval: make(map[string]float64, metrics.Len())}
	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		if !math.IsNaN(pair.Value) && !math.IsInf(pair.Value, 0) {
			out.Eval[pair.Key] = pair.Value
		}
	}

	if err := renderResult(cmd.OutOrStdout(), result, metrics, !isTerminal()); err != nil {
		return err
	}

	if run != nil {
		if err := st.FinishRun(ctx, run.ID, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nrun %s recorded\n", run.ID)
	}

	return nil
}

// Sicherstellen, dass der Tokenizer als Proben-Decoder taugt
var _ probe.Decoder = (*tokenizer.Vocabulary)(nil)
