// Package latentcache - Ringpuffer vorheriger Latent-Batches
//
// Dieses Modul enthaelt:
// - Cache: FIFO-Puffer der letzten N Batches abgekoppelter Latent-Codes
// - New: Konstruktor mit Grenze und Speicher-Praezision (f32, f16 oder bf16)
// - Push/Snapshot: Einfuegen mit Verdraengung, Lesen in Einfuege-Reihenfolge
package latentcache

import (
	"errors"
	"fmt"
	"log/slog"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/emirpasic/gods/v2/queues/circularbuffer"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/transformer-vae/ml"
)

var ErrWidthMismatch = errors.New("latent batch width does not match cached batches")

// entry ist ein gespeicherter Batch in der gewaehlten Praezision
type entry struct {
	rows, cols int
	f32        []float32
	f16        []float16.Float16
	bf16       []byte
}

func (e *entry) floats(dst []float64) {
	switch {
	case e.f16 != nil:
		for i, v := range e.f16 {
			dst[i] = float64(v.Float32())
		}
	case e.bf16 != nil:
		for i, v := range bfloat16.DecodeFloat32(e.bf16) {
			dst[i] = float64(v)
		}
	default:
		for i, v := range e.f32 {
			dst[i] = float64(v)
		}
	}
}

// Cache holds the most recent batches of latent codes. Eviction follows
// insertion order only. It is not safe for concurrent use.
type Cache struct {
	bound int
	dtype ml.DType
	queue *circularbuffer.Queue[*entry]
}

// New erstellt einen Cache fuer bound Batches; bound 0 deaktiviert den Cache
func New(bound int, dtype ml.DType) (*Cache, error) {
	if bound < 0 {
		return nil, fmt.Errorf("latentcache: negative bound %d", bound)
	}
	switch dtype {
	case ml.DTypeF32, ml.DTypeF16, ml.DTypeBF16:
	default:
		return nil, fmt.Errorf("latentcache: unsupported dtype %v", dtype)
	}

	c := &Cache{bound: bound, dtype: dtype}
	if bound > 0 {
		c.queue = circularbuffer.New[*entry](bound)
	}
	slog.Debug("latent cache initialized", "bound", bound, "dtype", dtype)
	return c, nil
}

// Bound gibt die maximale Anzahl gespeicherter Batches zurueck
func (c *Cache) Bound() int {
	return c.bound
}

// Len gibt die Anzahl gespeicherter Batches zurueck
func (c *Cache) Len() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.Size()
}

// Push kopiert batch in den Cache; ist er voll, wird der aelteste Batch verdraengt
func (c *Cache) Push(batch mat.Matrix) error {
	if c.queue == nil {
		return nil
	}

	rows, cols := batch.Dims()
	if values := c.queue.Values(); len(values) > 0 && values[0].cols != cols {
		return fmt.Errorf("%w: got %d, cached %d", ErrWidthMismatch, cols, values[0].cols)
	}

	values := make([]float32, 0, rows*cols)
	for i := range rows {
		for j := range cols {
			values = append(values, float32(batch.At(i, j)))
		}
	}

	e := &entry{rows: rows, cols: cols}
	switch c.dtype {
	case ml.DTypeF16:
		e.f16 = make([]float16.Float16, len(values))
		for i, v := range values {
			e.f16[i] = float16.Fromfloat32(v)
		}
	case ml.DTypeBF16:
		e.bf16 = bfloat16.EncodeFloat32(values)
	default:
		e.f32 = values
	}

	c.queue.Enqueue(e)
	return nil
}

// Snapshot gibt alle gespeicherten Batches aneinandergehaengt zurueck, aeltester
// zuerst. Leerer Cache ergibt nil.
func (c *Cache) Snapshot() *mat.Dense {
	if c.Len() == 0 {
		return nil
	}

	values := c.queue.Values()
	var rows int
	for _, e := range values {
		rows += e.rows
	}

	cols := values[0].cols
	out := mat.NewDense(rows, cols, nil)
	raw := out.RawMatrix().Data
	var offset int
	for _, e := range values {
		e.floats(raw[offset : offset+e.rows*cols])
		offset += e.rows * cols
	}
	return out
}

// Reset leert den Cache
func (c *Cache) Reset() {
	if c.queue != nil {
		c.queue.Clear()
	}
}
