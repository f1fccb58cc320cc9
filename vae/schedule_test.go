package vae

import (
	"fmt"
	"testing"
)

func TestRegularizerWeightBoundedAndMonotone(t *testing.T) {
	cases := []struct {
		k, b float64
	}{
		{0.0025, 6.25},
		{0.1, 500},
		{1, 0},
		{100, 10},
		{1e-6, 1e6},
	}

	for _, tt := range cases {
		t.Run(fmt.Sprintf("k=%v,b=%v", tt.k, tt.b), func(t *testing.T) {
			prev := 0.0
			for step := 0; step <= 20000; step += 7 {
				w := RegularizerWeight(step, tt.k, tt.b)
				if w <= 0 || w >= 1 {
					t.Fatalf("RegularizerWeight(%d) = %v, erwartet in (0, 1)", step, w)
				}
				if w < prev {
					t.Fatalf("RegularizerWeight(%d) = %v < %v, erwartet monoton steigend", step, w, prev)
				}
				prev = w
			}
		})
	}
}

func TestRegularizerWeightSmallAtStart(t *testing.T) {
	if w := RegularizerWeight(0, 0.01, 1000); w > 1e-4 {
		t.Errorf("RegularizerWeight(0) = %v, erwartet kleines Gewicht bei grossem b", w)
	}
	if w := RegularizerWeight(1000, 0.01, 1000); w != 0.5 {
		t.Errorf("RegularizerWeight(b) = %v, erwartet 0.5", w)
	}
}
