// config.go - Konfiguration des latenten Autoencoders
//
// Dieses Modul enthaelt:
// - Config: Backbone-Groessen plus VAE-Felder (latent_size, Varianten, Schedule, Critic)
// - EncoderKind / DecoderKind: geschlossene Varianten-Aufzaehlungen
// - DefaultConfig: Standardwerte
// - Validate: Pruefung aller Felder vor der Konstruktion
package vae

import (
	"fmt"
	"math"

	"github.com/7blacky7/transformer-vae/ml"
)

// =============================================================================
// Varianten
// =============================================================================

// EncoderKind waehlt die Abbildung von Hidden-States auf Latent-Codes
type EncoderKind int

const (
	EncoderUnknown EncoderKind = iota
	// EncoderFullFirstToken projects the first token's hidden state.
	EncoderFullFirstToken
	// EncoderNTokens projects the first n_latent_tokens hidden states.
	EncoderNTokens
	// EncoderVAEFirstToken predicts mean and log-variance from the first token
	// and samples during training.
	EncoderVAEFirstToken
)

var encoderNames = map[EncoderKind]string{
	EncoderFullFirstToken: "full-1st-token",
	EncoderNTokens:        "n-tokens",
	EncoderVAEFirstToken:  "vae-1st-token",
}

func (k EncoderKind) String() string {
	if name, ok := encoderNames[k]; ok {
		return name
	}
	return "unknown"
}

// Probabilistic meldet, ob die Variante einen KL-Regularisierer nutzt
func (k EncoderKind) Probabilistic() bool {
	return k == EncoderVAEFirstToken
}

// ParseEncoderKind parst einen Encoder-Namen
func ParseEncoderKind(s string) (EncoderKind, error) {
	for kind, name := range encoderNames {
		if name == s {
			return kind, nil
		}
	}
	return EncoderUnknown, configError("encoder_model", "unknown variant %q", s)
}

// DecoderKind waehlt die Abbildung von Latent-Codes auf Hidden-States
type DecoderKind int

const (
	DecoderUnknown DecoderKind = iota
	// DecoderFullNTokens projects the whole latent code to every position at once.
	DecoderFullNTokens
	// DecoderRepeat projects the latent code to one hidden state and repeats it
	// over all positions.
	DecoderRepeat
)

var decoderNames = map[DecoderKind]string{
	DecoderFullNTokens: "full-n-tokens",
	DecoderRepeat:      "repeat",
}

func (k DecoderKind) String() string {
	if name, ok := decoderNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseDecoderKind parst einen Decoder-Namen
func ParseDecoderKind(s string) (DecoderKind, error) {
	for kind, name := range decoderNames {
		if name == s {
			return kind, nil
		}
	}
	return DecoderUnknown, configError("decoder_model", "unknown variant %q", s)
}

// CriticMLP ist der einzige bekannte Critic
const CriticMLP = "mlp"

// =============================================================================
// Config
// =============================================================================

// Config beschreibt Backbone und latenten Autoencoder
type Config struct {
	// Backbone
	TransformerName     string `json:"transformer_name"`
	VocabSize           int    `json:"vocab_size"`
	HiddenSize          int    `json:"hidden_size"`
	PadTokenID          int32  `json:"pad_token_id"`
	EOSTokenID          int32  `json:"eos_token_id"`
	DecoderStartTokenID int32  `json:"decoder_start_token_id"`

	// Latent
	LatentSize    int    `json:"latent_size"`
	EncoderModel  string `json:"encoder_model"`
	DecoderModel  string `json:"decoder_model"`
	SetSeqSize    int    `json:"set_seq_size"`
	NLatentTokens int    `json:"n_latent_tokens"`

	// Regularisierung
	NPreviousLatentCodes int     `json:"n_previous_latent_codes"`
	LatentCacheType      string  `json:"latent_cache_type"`
	RegScheduleK         float64 `json:"reg_schedule_k"`
	RegScheduleB         float64 `json:"reg_schedule_b"`
	UseExtraLogs         bool    `json:"use_extra_logs"`
	DontUseRegLoss       bool    `json:"dont_use_reg_loss"`
	SmoothCosine         bool    `json:"smooth_cosine"`
	MMDBatchSize         int     `json:"mmd_batch_size"`

	// Hilfs-Losses
	CycleLoss       bool    `json:"cycle_loss"`
	CycleLossWeight float64 `json:"cycle_loss_weight"`

	// Critic
	TransformerCriticName       string  `json:"transformer_critic_name,omitempty"`
	CriticHiddenSize            int     `json:"critic_hidden_size"`
	CriticLossWeight            float64 `json:"critic_loss_weight"`
	InterpolateTrainingStepRate int     `json:"interpolate_training_step_rate"`
	MinCriticSteps              int     `json:"min_critic_steps"`

	Seed uint64 `json:"seed"`
}

// DefaultConfig gibt die Standardwerte zurueck
func DefaultConfig() Config {
	return Config{
		TransformerName:             "tiny",
		VocabSize:                   128,
		HiddenSize:                  32,
		PadTokenID:                  0,
		EOSTokenID:                  1,
		DecoderStartTokenID:         0,
		LatentSize:                  1000,
		EncoderModel:                EncoderFullFirstToken.String(),
		DecoderModel:                DecoderFullNTokens.String(),
		SetSeqSize:                  60,
		NLatentTokens:               1,
		NPreviousLatentCodes:        3,
		LatentCacheType:             "f32",
		RegScheduleK:                0.0025,
		RegScheduleB:                6.25,
		MMDBatchSize:                8,
		CycleLossWeight:             1,
		CriticHiddenSize:            32,
		CriticLossWeight:            1,
		InterpolateTrainingStepRate: 4,
		MinCriticSteps:              0,
		Seed:                        42,
	}
}

// Encoder gibt die geparste Encoder-Variante zurueck (Validate vorher aufrufen)
func (c Config) Encoder() EncoderKind {
	k, _ := ParseEncoderKind(c.EncoderModel)
	return k
}

// Decoder gibt die geparste Decoder-Variante zurueck (Validate vorher aufrufen)
func (c Config) Decoder() DecoderKind {
	k, _ := ParseDecoderKind(c.DecoderModel)
	return k
}

// LatentWidth ist die Breite eines Latent-Codes ueber alle Latent-Tokens
func (c Config) LatentWidth() int {
	return c.NLatentTokens * c.LatentSize
}

// HasCritic meldet, ob adversariales Training aktiv ist
func (c Config) HasCritic() bool {
	return c.TransformerCriticName != ""
}

// UsesMMD meldet, ob der Regularisierer die MMD ist
func (c Config) UsesMMD() bool {
	return !c.DontUseRegLoss && !c.Encoder().Probabilistic()
}

// Validate prueft alle Felder; der erste Fehler ist ein *ConfigError
func (c Config) Validate() error {
	encoder, err := ParseEncoderKind(c.EncoderModel)
	if err != nil {
		return err
	}
	if _, err := ParseDecoderKind(c.DecoderModel); err != nil {
		return err
	}
	if _, err := ml.ParseDType(c.LatentCacheType); err != nil {
		return configError("latent_cache_type", "%v", err)
	}

	positive := []struct {
		field string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"hidden_size", c.HiddenSize},
		{"latent_size", c.LatentSize},
		{"set_seq_size", c.SetSeqSize},
		{"n_latent_tokens", c.NLatentTokens},
		{"mmd_batch_size", c.MMDBatchSize},
		{"interpolate_training_step_rate", c.InterpolateTrainingStepRate},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return configError(p.field, "must be > 0, got %d", p.value)
		}
	}
	if c.NPreviousLatentCodes < 0 {
		return configError("n_previous_latent_codes", "must be >= 0, got %d", c.NPreviousLatentCodes)
	}
	if c.MinCriticSteps < 0 {
		return configError("min_critic_steps", "must be >= 0, got %d", c.MinCriticSteps)
	}

	finite := []struct {
		field string
		value float64
	}{
		{"reg_schedule_k", c.RegScheduleK},
		{"reg_schedule_b", c.RegScheduleB},
		{"cycle_loss_weight", c.CycleLossWeight},
		{"critic_loss_weight", c.CriticLossWeight},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return configError(f.field, "must be finite, got %v", f.value)
		}
	}

	switch encoder {
	case EncoderFullFirstToken, EncoderVAEFirstToken:
		if c.NLatentTokens != 1 {
			return configError("n_latent_tokens", "encoder %s needs exactly 1 latent token, got %d", encoder, c.NLatentTokens)
		}
	case EncoderNTokens:
		if c.NLatentTokens > c.SetSeqSize {
			return configError("n_latent_tokens", "encoder %s needs at most set_seq_size=%d latent tokens, got %d", encoder, c.SetSeqSize, c.NLatentTokens)
		}
	}

	tokens := []struct {
		field string
		id    int32
	}{
		{"pad_token_id", c.PadTokenID},
		{"eos_token_id", c.EOSTokenID},
		{"decoder_start_token_id", c.DecoderStartTokenID},
	}
	for _, tok := range tokens {
		if tok.id < 0 || int(tok.id) >= c.VocabSize {
			return configError(tok.field, "token %d outside vocabulary of %d", tok.id, c.VocabSize)
		}
	}

	if c.HasCritic() {
		if c.TransformerCriticName != CriticMLP {
			return configError("transformer_critic_name", "unknown critic %q", c.TransformerCriticName)
		}
		if c.CriticHiddenSize <= 0 {
			return configError("critic_hidden_size", "must be > 0, got %d", c.CriticHiddenSize)
		}
	}

	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("vae(%s, encoder=%s, decoder=%s, latent=%dx%d, seq=%d)",
		c.TransformerName, c.EncoderModel, c.DecoderModel, c.NLatentTokens, c.LatentSize, c.SetSeqSize)
}
