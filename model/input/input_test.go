package input

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/transformer-vae/ml"
)

func TestCollate(t *testing.T) {
	b := Collate([]Sequence{
		{InputIDs: []int32{5, 6, 0}, AttentionMask: []int32{1, 1, 0}},
		{InputIDs: []int32{7, 8, 9}, AttentionMask: []int32{1, 1, 1}},
	})

	if b.Size() != 2 || b.SeqLen() != 3 {
		t.Fatalf("Size/SeqLen = %d/%d, erwartet 2/3", b.Size(), b.SeqLen())
	}

	want := []int32{5, 6, ml.IgnoreIndex, 7, 8, 9}
	if diff := cmp.Diff(want, b.FlatLabels()); diff != "" {
		t.Errorf("FlatLabels() Abweichung (-erwartet +ist):\n%s", diff)
	}

	if diff := cmp.Diff([]int32{5, 6, 0, 7, 8, 9}, b.Flat()); diff != "" {
		t.Errorf("Flat() Abweichung (-erwartet +ist):\n%s", diff)
	}
}

func TestFromTokens(t *testing.T) {
	b := FromTokens([][]int32{{1, 2}})
	if diff := cmp.Diff([][]int32{{1, 1}}, b.AttentionMask); diff != "" {
		t.Errorf("AttentionMask Abweichung:\n%s", diff)
	}
}
