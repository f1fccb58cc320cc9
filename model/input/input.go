// Package input - Batch-Strukturen fuer Forward-Paesse
//
// Dieses Modul enthaelt:
// - Sequence: eine tokenisierte, auf feste Laenge gepaddete Eingabe
// - Batch: Eingaben, Attention-Maske und Labels eines Schritts
// - Collate: fasst Sequenzen zu einem Batch zusammen
package input

import "github.com/7blacky7/transformer-vae/ml"

// Sequence is one tokenized example. AttentionMask is 1 for real tokens and 0
// for padding.
type Sequence struct {
	InputIDs      []int32
	AttentionMask []int32
}

// Batch contains the inputs for a model forward pass
type Batch struct {
	// InputIDs is the token ids per sequence, every row has the same length.
	InputIDs [][]int32

	// AttentionMask marks real tokens with 1, padding with 0.
	AttentionMask [][]int32

	// Labels are the reconstruction targets. Padding positions hold
	// ml.IgnoreIndex.
	Labels [][]int32
}

// Collate builds a batch whose labels are the inputs themselves.
func Collate(seqs []Sequence) Batch {
	b := Batch{
		InputIDs:      make([][]int32, len(seqs)),
		AttentionMask: make([][]int32, len(seqs)),
		Labels:        make([][]int32, len(seqs)),
	}
	for i, s := range seqs {
		b.InputIDs[i] = s.InputIDs
		b.AttentionMask[i] = s.AttentionMask
		labels := make([]int32, len(s.InputIDs))
		for j, id := range s.InputIDs {
			labels[j] = id
			if j < len(s.AttentionMask) && s.AttentionMask[j] == 0 {
				labels[j] = ml.IgnoreIndex
			}
		}
		b.Labels[i] = labels
	}
	return b
}

// Size gibt die Anzahl der Sequenzen zurueck
func (b Batch) Size() int {
	return len(b.InputIDs)
}

// SeqLen gibt die Laenge der ersten Sequenz zurueck (0 fuer leere Batches)
func (b Batch) SeqLen() int {
	if len(b.InputIDs) == 0 {
		return 0
	}
	return len(b.InputIDs[0])
}

// Flat gibt alle Input-IDs in Zeilen-Reihenfolge zurueck
func (b Batch) Flat() []int32 {
	return flatten(b.InputIDs)
}

// FlatLabels gibt alle Labels in Zeilen-Reihenfolge zurueck
func (b Batch) FlatLabels() []int32 {
	return flatten(b.Labels)
}

func flatten(rows [][]int32) []int32 {
	var out []int32
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

// FromTokens baut einen Batch aus rohen Token-Zeilen ohne Padding
func FromTokens(rows [][]int32) Batch {
	seqs := make([]Sequence, len(rows))
	for i, row := range rows {
		mask := make([]int32, len(row))
		for j := range mask {
			mask[j] = 1
		}
		seqs[i] = Sequence{InputIDs: row, AttentionMask: mask}
	}
	return Collate(seqs)
}
