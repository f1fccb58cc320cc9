// Package tokenizer - Zeichen-Vokabular fuer die Kommandozeile
//
// Dieses Modul enthaelt:
// - Vocabulary: Abbildung Zeichen <-> Token-ID mit Spezial-Tokens
// - Build: Vokabular aus Texten (NFC-normalisiert)
// - Encode/Decode: Text <-> gepaddete Sequenz
package tokenizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/7blacky7/transformer-vae/model/input"
)

// Spezial-Tokens
const (
	PadID int32 = iota
	EOSID
	UnknownID

	numSpecial = 3
)

var ErrSequenceTooLong = errors.New("sequence longer than set_seq_size")

// Vocabulary bildet Zeichen auf IDs ab
type Vocabulary struct {
	runes []rune
	ids   map[rune]int32
}

// Build erstellt ein Vokabular aus allen Zeichen in texts, sortiert nach Codepoint
func Build(texts []string) *Vocabulary {
	seen := make(map[rune]bool)
	for _, text := range texts {
		for _, r := range norm.NFC.String(text) {
			seen[r] = true
		}
	}

	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	slices.Sort(runes)

	v := &Vocabulary{runes: runes, ids: make(map[rune]int32, len(runes))}
	for i, r := range runes {
		v.ids[r] = int32(i + numSpecial)
	}
	return v
}

// Size gibt die Anzahl der Token-IDs inklusive Spezial-Tokens zurueck
func (v *Vocabulary) Size() int {
	return len(v.runes) + numSpecial
}

// Encode wandelt text in eine Sequenz der Laenge seqLen um: Zeichen, EOS,
// dann Padding. Ist der Text zu lang, wird er mit truncate gekuerzt, sonst
// ist das ein Fehler.
func (v *Vocabulary) Encode(text string, seqLen int, truncate bool) (input.Sequence, error) {
	ids := make([]int32, 0, seqLen)
	for _, r := range norm.NFC.String(text) {
		id, ok := v.ids[r]
		if !ok {
			id = UnknownID
		}
		ids = append(ids, id)
	}
	ids = append(ids, EOSID)

	if len(ids) > seqLen {
		if !truncate {
			return input.Sequence{}, fmt.Errorf("%w: %q needs %d tokens, have %d", ErrSequenceTooLong, text, len(ids), seqLen)
		}
		ids = append(ids[:seqLen-1], EOSID)
	}

	seq := input.Sequence{InputIDs: make([]int32, seqLen), AttentionMask: make([]int32, seqLen)}
	copy(seq.InputIDs, ids)
	for i := range ids {
		seq.AttentionMask[i] = 1
	}
	return seq, nil
}

// EncodeAll wandelt alle Texte um; der erste Fehler bricht ab
func (v *Vocabulary) EncodeAll(texts []string, seqLen int, truncate bool) ([]input.Sequence, error) {
	seqs := make([]input.Sequence, 0, len(texts))
	for i, text := range texts {
		seq, err := v.Encode(text, seqLen, truncate)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Decode wandelt IDs in Text um; Padding wird uebersprungen, EOS beendet den Text
func (v *Vocabulary) Decode(ids []int32) string {
	var sb strings.Builder
	for _, id := range ids {
		switch {
		case id == EOSID:
			return sb.String()
		case id == PadID:
			continue
		case id == UnknownID || id < numSpecial || int(id-numSpecial) >= len(v.runes):
			sb.WriteRune('�')
		default:
			sb.WriteRune(v.runes[id-numSpecial])
		}
	}
	return sb.String()
}
