// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert DType fuer das Speicherformat gecachter Werte.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the storage type of tensor elements outside the graph.
// Graph values are always computed in float64.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// ParseDType parst den Namen eines Speichertyps, leer ergibt DTypeF32
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "fp32", "float32":
		return DTypeF32, nil
	case "f16", "fp16", "float16":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	default:
		return "other"
	}
}

// IgnoreIndex markiert Label-Positionen, die nicht in den Loss eingehen
const IgnoreIndex int32 = -100
