// critic.go - Phasensteuerung fuer adversariales Training
//
// Dieses Modul enthaelt:
// - Phase: GENERATOR oder CRITIC
// - CriticLoop: entscheidet pro Optimierer-Schritt, welche Gruppe trainiert wird
package trainer

// Phase ist die Art eines Optimierer-Schritts
type Phase int

const (
	PhaseGenerator Phase = iota
	PhaseCritic
)

func (p Phase) String() string {
	if p == PhaseCritic {
		return "CRITIC"
	}
	return "GENERATOR"
}

// CriticLoop zaehlt Optimierer-Schritte. Step s (0-based) is a critic step iff
// at least minCriticSteps generator steps have run and s is a multiple of rate.
type CriticLoop struct {
	rate           int
	minCriticSteps int

	step           int
	generatorSteps int
}

// NewCriticLoop erstellt die Steuerung; rate muss > 0 sein
func NewCriticLoop(rate, minCriticSteps int) *CriticLoop {
	return &CriticLoop{rate: max(rate, 1), minCriticSteps: minCriticSteps}
}

// Next gibt die Phase des aktuellen Schritts zurueck und rueckt weiter
func (c *CriticLoop) Next() Phase {
	phase := PhaseGenerator
	if c.generatorSteps >= c.minCriticSteps && c.step%c.rate == 0 {
		phase = PhaseCritic
	} else {
		c.generatorSteps++
	}
	c.step++
	return phase
}

// Reset setzt die Zaehler zu Beginn eines Trainings zurueck
func (c *CriticLoop) Reset() {
	c.step = 0
	c.generatorSteps = 0
}

func (c *CriticLoop) Steps() int {
	return c.step
}

func (c *CriticLoop) GeneratorSteps() int {
	return c.generatorSteps
}
