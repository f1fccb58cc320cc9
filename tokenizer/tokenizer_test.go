package tokenizer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode(t *testing.T) {
	v := Build([]string{"abc", "cab"})
	if v.Size() != 6 {
		t.Fatalf("Size() = %d, erwartet 6", v.Size())
	}

	seq, err := v.Encode("ba", 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{4, 3, EOSID, PadID}, seq.InputIDs); diff != "" {
		t.Errorf("InputIDs Abweichung (-erwartet +ist):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{1, 1, 1, 0}, seq.AttentionMask); diff != "" {
		t.Errorf("AttentionMask Abweichung (-erwartet +ist):\n%s", diff)
	}

	if got := v.Decode(seq.InputIDs); got != "ba" {
		t.Errorf("Decode() = %q, erwartet %q", got, "ba")
	}
}

func TestEncodeNormalizes(t *testing.T) {
	// "e" + kombinierender Akzent wird zu "é"
	v := Build([]string{"\u00e9"})
	seq, err := v.Encode("e\u0301", 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if seq.InputIDs[0] != 3 {
		t.Errorf("InputIDs[0] = %d, erwartet 3", seq.InputIDs[0])
	}
}

func TestEncodeTooLong(t *testing.T) {
	v := Build([]string{"abcdef"})

	_, err := v.Encode("abcdef", 4, false)
	if !errors.Is(err, ErrSequenceTooLong) {
		t.Fatalf("Encode() Fehler = %v, erwartet ErrSequenceTooLong", err)
	}

	seq, err := v.Encode("abcdef", 4, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Decode(seq.InputIDs); got != "abc" {
		t.Errorf("Decode() = %q, erwartet %q", got, "abc")
	}
}

func TestDecodeUnknown(t *testing.T) {
	v := Build([]string{"a"})
	seq, err := v.Encode("az", 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Decode(seq.InputIDs); got != "a�" {
		t.Errorf("Decode() = %q", got)
	}
	if got := v.Decode([]int32{PadID, 3, 99}); got != "a�" {
		t.Errorf("Decode() = %q", got)
	}
}
