package core

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Filter maps dotted field paths (e.g. "experiment_id", "properties.name")
// to the value the field must equal. An empty filter matches everything.
type Filter map[string]any

// Match reports whether doc satisfies every entry of f. Values are compared
// by their JSON representation, so numbers match regardless of Go type.
func Match(doc Document, f Filter) (bool, error) {
	if len(f) == 0 {
		return true, nil
	}
	fields, err := doc.Fields()
	if err != nil {
		return false, err
	}
	for path, want := range f {
		got, ok := lookup(fields, path)
		if !ok {
			return false, nil
		}
		norm, err := normalize(want)
		if err != nil {
			return false, err
		}
		if !reflect.DeepEqual(got, norm) {
			return false, nil
		}
	}
	return true, nil
}

func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
