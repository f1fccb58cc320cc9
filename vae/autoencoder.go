// autoencoder.go - Latenter Autoencoder auf einem Transformer-Backbone
//
// Dieses Modul enthaelt:
// - Model: Backbone, Encoder, Decoder, optionaler Critic und Hilfsmodelle
// - New: Konstruktion mit Validierung der Konfiguration
// - Forward: Encode -> (Reparametrisierung | Durchreichen) -> Decode -> Loss
// - CriticLoss: Ziel des Critic-Schritts
// - CommitLatents: legt die Codes eines Schritts im Cache ab
// - EvalScope: schaltet in den Eval-Modus und stellt den alten Modus wieder her
package vae

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/transformer-vae/latentcache"
	"github.com/7blacky7/transformer-vae/ml"
	"github.com/7blacky7/transformer-vae/ml/nn"
	"github.com/7blacky7/transformer-vae/model"
	"github.com/7blacky7/transformer-vae/model/input"
	_ "github.com/7blacky7/transformer-vae/model/models"
)

// LatentModel bekommt den Latent-Code und liefert einen zusaetzlichen Loss,
// der zum Gesamt-Loss addiert wird. Exported *ml.Parameter fields tagged with
// `param` are trained with the generator.
type LatentModel interface {
	Name() string
	Loss(ctx *ml.Context, latent *ml.Tensor) (*ml.Tensor, error)
}

// Metrics sind benannte Skalare in fester Reihenfolge
type Metrics = orderedmap.OrderedMap[string, float64]

// NewMetrics erstellt eine leere Metrik-Map
func NewMetrics() *Metrics {
	return orderedmap.New[string, float64]()
}

// Output ist das Ergebnis eines Forward-Passes
type Output struct {
	Loss *ml.Tensor
	// Logits sind (B·S × V)
	Logits *ml.Tensor
	// Latent ist der Code (B × n·L), bei der probabilistischen Variante die Stichprobe
	Latent  *ml.Tensor
	Metrics *Metrics
}

// Model ist der latente Autoencoder
type Model struct {
	Backbone     model.Model   `param:"transformer"`
	Encoder      latentEncoder `param:"encoder"`
	Decoder      latentDecoder `param:"decoder"`
	Critic       *Critic       `param:"critic"`
	LatentModels []LatentModel `param:"aux"`

	config   Config
	cache    *latentcache.Cache
	mmd      *MMD
	smooth   cosineSmoother
	rng      *rand.Rand
	training bool
}

// New erstellt das Modell; Konfigurationsfehler sind *ConfigError
func New(c Config, latentModels ...LatentModel) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !model.Registered(c.TransformerName) {
		return nil, configError("transformer_name", "unknown backbone %q, known: %v", c.TransformerName, model.Names())
	}

	backbone, err := model.New(c.TransformerName, model.Config{
		VocabSize:           c.VocabSize,
		HiddenSize:          c.HiddenSize,
		MaxPositions:        c.SetSeqSize,
		PadTokenID:          c.PadTokenID,
		EOSTokenID:          c.EOSTokenID,
		DecoderStartTokenID: c.DecoderStartTokenID,
		Seed:                c.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("create backbone: %w", err)
	}

	dtype, _ := ml.ParseDType(c.LatentCacheType)
	cache, err := latentcache.New(c.NPreviousLatentCodes, dtype)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(c.Seed, 0x5eed))
	m := &Model{
		Backbone:     backbone,
		LatentModels: latentModels,
		config:       c,
		cache:        cache,
		mmd:          NewMMD(c.MMDBatchSize, rng),
		rng:          rng,
		training:     true,
	}

	switch c.Encoder() {
	case EncoderFullFirstToken:
		m.Encoder = &fullFirstTokenEncoder{Proj: nn.NewLinear(rng, c.HiddenSize, c.LatentSize), seqLen: c.SetSeqSize}
	case EncoderNTokens:
		m.Encoder = &nTokensEncoder{Proj: nn.NewLinear(rng, c.HiddenSize, c.LatentSize), seqLen: c.SetSeqSize, n: c.NLatentTokens, latentSize: c.LatentSize}
	case EncoderVAEFirstToken:
		m.Encoder = &vaeFirstTokenEncoder{
			Mean:       nn.NewLinear(rng, c.HiddenSize, c.LatentSize),
			LogVar:     nn.NewLinear(rng, c.HiddenSize, c.LatentSize),
			seqLen:     c.SetSeqSize,
			latentSize: c.LatentSize,
			rng:        rng,
		}
	}

	switch c.Decoder() {
	case DecoderFullNTokens:
		m.Decoder = &fullNTokensDecoder{Proj: nn.NewLinear(rng, c.LatentWidth(), c.SetSeqSize*c.HiddenSize), seqLen: c.SetSeqSize, hiddenSize: c.HiddenSize}
	case DecoderRepeat:
		m.Decoder = &repeatDecoder{Proj: nn.NewLinear(rng, c.LatentWidth(), c.HiddenSize), seqLen: c.SetSeqSize}
	}

	if c.HasCritic() {
		m.Critic = newCritic(rng, c)
	}

	slog.Info("vae model initialized", "config", c.String(), "generator_params", len(m.GeneratorParameters()), "critic", c.TransformerCriticName)
	return m, nil
}

func (m *Model) Config() Config {
	return m.config
}

// Cache gibt den Cache vorheriger Latent-Codes zurueck
func (m *Model) Cache() *latentcache.Cache {
	return m.cache
}

// GeneratorParameters gibt Backbone-, Encoder-, Decoder- und Hilfsmodell-Parameter zurueck
func (m *Model) GeneratorParameters() []*ml.Parameter {
	return model.Parameters(&struct {
		Backbone     model.Model   `param:"transformer"`
		Encoder      latentEncoder `param:"encoder"`
		Decoder      latentDecoder `param:"decoder"`
		LatentModels []LatentModel `param:"aux"`
	}{m.Backbone, m.Encoder, m.Decoder, m.LatentModels})
}

// CriticParameters gibt die Critic-Parameter zurueck (leer ohne Critic)
func (m *Model) CriticParameters() []*ml.Parameter {
	return model.Parameters(&struct {
		Critic *Critic `param:"critic"`
	}{m.Critic})
}

// =============================================================================
// Modus
// =============================================================================

// Training meldet, ob das Modell im Trainings-Modus ist
func (m *Model) Training() bool {
	return m.training
}

func (m *Model) SetTraining(training bool) {
	m.training = training
}

// EvalScope schaltet in den Eval-Modus. The returned func restores the previous
// mode and is meant to be deferred.
func (m *Model) EvalScope() (restore func()) {
	prev := m.training
	m.training = false
	return func() {
		m.training = prev
	}
}

// Reset leert Cache und Glaettungszustand zu Beginn eines Trainings
func (m *Model) Reset() {
	m.cache.Reset()
	m.smooth.reset()
}

// =============================================================================
// Forward
// =============================================================================

// checkShape prueft, dass jede Sequenz genau set_seq_size lang ist
func (m *Model) checkShape(batch input.Batch) error {
	if batch.Size() == 0 {
		return &ShapeError{Field: "input_ids", Got: 0, Want: m.config.SetSeqSize}
	}
	fields := []struct {
		name string
		rows [][]int32
	}{
		{"input_ids", batch.InputIDs},
		{"attention_mask", batch.AttentionMask},
		{"labels", batch.Labels},
	}
	for i := range batch.InputIDs {
		for _, f := range fields {
			if i >= len(f.rows) {
				return &ShapeError{Sequence: i, Field: f.name, Got: 0, Want: m.config.SetSeqSize}
			}
			if got := len(f.rows[i]); got != m.config.SetSeqSize {
				return &ShapeError{Sequence: i, Field: f.name, Got: got, Want: m.config.SetSeqSize}
			}
		}
	}
	return nil
}

// encode fuehrt Backbone-Encoder und Latent-Encoder aus
func (m *Model) encode(ctx *ml.Context, batch input.Batch, sample bool) (encoding, error) {
	hidden, err := m.Backbone.Encode(ctx, batch)
	if err != nil {
		return encoding{}, fmt.Errorf("encode: %w", err)
	}
	return m.Encoder.encode(ctx, hidden, batch.Size(), sample), nil
}

// Forward berechnet den Gesamt-Loss fuer batch im Schritt step:
//
//	loss = recon + w(step)·reg + cycle_loss_weight·cycle + critic_loss_weight·adv + Σ aux
func (m *Model) Forward(ctx *ml.Context, batch input.Batch, step int) (*Output, error) {
	if err := m.checkShape(batch); err != nil {
		return nil, err
	}

	enc, err := m.encode(ctx, batch, m.training)
	if err != nil {
		return nil, err
	}

	logits, err := m.Backbone.Decode(ctx, m.Decoder.decode(ctx, enc.z), model.ShiftRight(batch.InputIDs, m.config.DecoderStartTokenID))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	recon := logits.CrossEntropy(ctx, batch.FlatLabels())
	loss := recon

	metrics := NewMetrics()
	metrics.Set("loss", 0)
	metrics.Set("recon_loss", recon.Scalar())

	if !m.config.DontUseRegLoss {
		name, reg := "mmd", (*ml.Tensor)(nil)
		if m.config.Encoder().Probabilistic() {
			name, reg = "kl", klDivergence(ctx, enc.mu, enc.logvar)
		} else {
			reg = m.mmd.Loss(ctx, enc.z, m.cache.Snapshot())
		}
		raw := reg.Scalar()
		if m.config.SmoothCosine && m.training {
			reg = m.smooth.apply(ctx, reg)
		}

		weight := RegularizerWeight(step, m.config.RegScheduleK, m.config.RegScheduleB)
		loss = loss.Add(ctx, reg.Scale(ctx, weight))
		metrics.Set("reg_loss", reg.Scalar())
		if m.config.UseExtraLogs {
			metrics.Set("reg_weight", weight)
		}
		metrics.Set(name, raw)
	}

	if m.config.CycleLoss {
		cycle, err := m.cycleLoss(ctx, batch, logits, enc)
		if err != nil {
			return nil, err
		}
		loss = loss.Add(ctx, cycle.Scale(ctx, m.config.CycleLossWeight))
		metrics.Set("cycle_loss", cycle.Scalar())
	}

	if m.Critic != nil && m.training {
		mixed := interpolate(ctx, enc.z, sampleAlphas(m.rng, batch.Size()))
		adv := m.Critic.Forward(ctx, m.Decoder.decode(ctx, mixed), true).Sqr(ctx).Mean(ctx)
		loss = loss.Add(ctx, adv.Scale(ctx, m.config.CriticLossWeight))
		metrics.Set("critic_loss", adv.Scalar())
	}

	for _, lm := range m.LatentModels {
		aux, err := lm.Loss(ctx, enc.z)
		if err != nil {
			return nil, fmt.Errorf("latent model %s: %w", lm.Name(), err)
		}
		loss = loss.Add(ctx, aux)
		metrics.Set(lm.Name()+"_loss", aux.Scalar())
	}

	metrics.Set("loss", loss.Scalar())
	return &Output{Loss: loss, Logits: logits, Latent: enc.z, Metrics: metrics}, nil
}

// cycleLoss kodiert die gierige Rekonstruktion erneut und vergleicht die Codes
func (m *Model) cycleLoss(ctx *ml.Context, batch input.Batch, logits *ml.Tensor, enc encoding) (*ml.Tensor, error) {
	tokens := ml.ArgmaxRows(logits.Value())
	seqLen := m.config.SetSeqSize
	reconstructed := input.Batch{
		InputIDs:      make([][]int32, batch.Size()),
		AttentionMask: batch.AttentionMask,
		Labels:        batch.Labels,
	}
	for b := range reconstructed.InputIDs {
		reconstructed.InputIDs[b] = tokens[b*seqLen : (b+1)*seqLen]
	}

	again, err := m.encode(ctx, reconstructed, false)
	if err != nil {
		return nil, fmt.Errorf("cycle: %w", err)
	}
	return again.mean().Sub(ctx, enc.mean()).Sqr(ctx).Mean(ctx), nil
}

// CriticLoss berechnet das Ziel des Critic-Schritts. Encoder und Decoder laufen
// ohne Gradienten, nur der Critic wird trainiert:
//
//	mean((c(dec(z_alpha)) - alpha)²) + mean(c(dec(z))²)
func (m *Model) CriticLoss(ctx *ml.Context, batch input.Batch) (*ml.Tensor, *Metrics, error) {
	if m.Critic == nil {
		return nil, nil, configError("transformer_critic_name", "model has no critic")
	}
	if err := m.checkShape(batch); err != nil {
		return nil, nil, err
	}

	frozen := ml.NoGrad()
	enc, err := m.encode(frozen, batch, false)
	if err != nil {
		return nil, nil, err
	}

	alphas := sampleAlphas(m.rng, batch.Size())
	mixed := m.Decoder.decode(frozen, interpolate(frozen, enc.z, alphas))
	plain := m.Decoder.decode(frozen, enc.z)

	target := ctx.FromFloats(alphas, batch.Size(), 1)
	mixLoss := m.Critic.Forward(ctx, mixed, false).Sub(ctx, target).Sqr(ctx).Mean(ctx)
	realLoss := m.Critic.Forward(ctx, plain, false).Sqr(ctx).Mean(ctx)
	loss := mixLoss.Add(ctx, realLoss)

	metrics := NewMetrics()
	metrics.Set("critic_train_loss", loss.Scalar())
	metrics.Set("critic_interp_loss", mixLoss.Scalar())
	metrics.Set("critic_real_loss", realLoss.Scalar())
	return loss, metrics, nil
}

// CommitLatents legt die Codes eines abgeschlossenen Trainingsschritts im
// Cache ab. Sie werden erst ab dem naechsten Schritt fuer die MMD genutzt.
func (m *Model) CommitLatents(out *Output) error {
	if out == nil || out.Latent == nil || !m.training || !m.config.UsesMMD() {
		return nil
	}
	return m.cache.Push(out.Latent.Value())
}
