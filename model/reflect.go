// Package model - Reflection-basierte Parameter-Sammlung
//
// Dieses Modul enthaelt die Reflection-Logik zum automatischen Einsammeln
// und Benennen aller trainierbaren Parameter einer Modell-Struktur.
//
// Hauptkomponenten:
// - Parameters: Sammelt Parameter rekursiv und vergibt Punkt-Namen
// - Tag: Tag-Struktur fuer Parameter-Namen
// - parseTag: Parst `param`-Tags aus Struct-Tags

package model

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/7blacky7/transformer-vae/logutil"
	"github.com/7blacky7/transformer-vae/ml"
)

// Tag repraesentiert einen geparsten `param`-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
}

// parseTag parst einen Tag-String in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "pre:"); ok {
				tag.prefix = value
			}
			if value, ok := strings.CutPrefix(part, "suf:"); ok {
				tag.suffix = value
			}
		}
	}

	return
}

var parameterType = reflect.TypeOf((*ml.Parameter)(nil))

// Parameters sammelt alle *ml.Parameter in m (Struct-Pointer, Slices, Interfaces).
// Each parameter is renamed after its tag path, e.g. "enc.proj.weight", and
// returned once even when it is reachable through several fields.
func Parameters(m any) []*ml.Parameter {
	seen := make(map[*ml.Parameter]bool)
	var params []*ml.Parameter
	collect(reflect.ValueOf(m), nil, seen, &params)
	return params
}

func collect(v reflect.Value, tags []Tag, seen map[*ml.Parameter]bool, params *[]*ml.Parameter) {
	if !v.IsValid() {
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			collect(v.Elem(), tags, seen, params)
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if v.Type() == parameterType {
			p := v.Interface().(*ml.Parameter)
			if seen[p] {
				return
			}
			seen[p] = true
			if name := buildName(tags, "", ""); name != "" {
				p.Name = name
			}
			logutil.Trace("found parameter", "name", p.Name, "elements", p.NumElements())
			*params = append(*params, p)
			return
		}
		collect(v.Elem(), tags, seen, params)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}

			// Kopie erstellen
			tagsCopy := tags
			if tag := t.Field(i).Tag.Get("param"); tag != "" {
				if tag == "-" {
					continue
				}
				tagsCopy = append(append([]Tag(nil), tags...), parseTag(tag))
			}
			collect(v.Field(i), tagsCopy, seen, params)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			collect(v.Index(i), append(append([]Tag(nil), tags...), Tag{name: strconv.Itoa(i)}), seen, params)
		}
	}
}

// buildName baut den vollstaendigen Parameter-Namen aus Tags
func buildName(tags []Tag, prefix, suffix string) string {
	if len(tags) == 0 {
		return ""
	}

	name := tags[0].name
	if name != "" {
		name = prefix + name + suffix
	}

	child := buildName(tags[1:], tags[0].prefix, tags[0].suffix)
	switch {
	case name == "":
		// Aktueller Tag hat keinen Namen, nur Kind-Namen verwenden
		return child
	case child == "":
		return name
	default:
		return name + "." + child
	}
}
