package trainer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func phases(loop *CriticLoop, n int) []Phase {
	out := make([]Phase, n)
	for i := range out {
		out[i] = loop.Next()
	}
	return out
}

func TestCriticLoopPhases(t *testing.T) {
	G, C := PhaseGenerator, PhaseCritic
	cases := []struct {
		name      string
		rate, min int
		steps     int
		want      []Phase
	}{
		{name: "rate 2 min 1", rate: 2, min: 1, steps: 6, want: []Phase{G, G, C, G, C, G}},
		{name: "rate 1 min 0", rate: 1, min: 0, steps: 3, want: []Phase{C, C, C}},
		{name: "rate 3 min 0", rate: 3, min: 0, steps: 7, want: []Phase{C, G, G, C, G, G, C}},
		{name: "rate 2 min 3", rate: 2, min: 3, steps: 8, want: []Phase{G, G, G, G, C, G, C, G}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := phases(NewCriticLoop(tt.rate, tt.min), tt.steps)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Phasen Abweichung (-erwartet +ist):\n%s", diff)
			}
		})
	}
}

func TestCriticLoopReset(t *testing.T) {
	loop := NewCriticLoop(2, 1)
	first := phases(loop, 6)
	if loop.Steps() != 6 || loop.GeneratorSteps() != 4 {
		t.Fatalf("Steps/GeneratorSteps = %d/%d, erwartet 6/4", loop.Steps(), loop.GeneratorSteps())
	}

	loop.Reset()
	if diff := cmp.Diff(first, phases(loop, 6)); diff != "" {
		t.Errorf("nach Reset Abweichung:\n%s", diff)
	}
}
