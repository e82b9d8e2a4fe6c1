package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is a stored document.
type Record map[string]any

// Key is a primary or index key value. Compound keys list one element per
// key path entry. Elements may be strings, integers, floats or booleans.
type Key []any

// K builds a Key.
func K(parts ...any) Key { return Key(parts) }

// EncodeKey renders k in its canonical string form. Integral numbers encode
// identically regardless of their Go type, and the string "5" stays distinct
// from the number 5.
func EncodeKey(k Key) (string, error) {
	if len(k) == 0 {
		return "", fmt.Errorf("empty key")
	}
	parts := make([]any, len(k))
	for i, p := range k {
		n, err := normalizeKeyPart(p)
		if err != nil {
			return "", fmt.Errorf("key part %d: %w", i, err)
		}
		parts[i] = n
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalizeKeyPart(p any) (any, error) {
	switch v := p.(type) {
	case string, bool:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		return int64(v), nil
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return normalizeFloat(f)
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return nil, fmt.Errorf("nil is not a valid key")
	default:
		return nil, fmt.Errorf("unsupported key type %T", p)
	}
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid numeric key %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

// lookup resolves a dotted path inside r.
func lookup(r Record, path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// extractKey evaluates path against r. ok is false when any element is
// missing or not a valid key type, in which case the record is not indexed.
func extractKey(r Record, path KeyPath) (Key, bool) {
	k := make(Key, 0, len(path))
	for _, p := range path {
		v, ok := lookup(r, p)
		if !ok {
			return nil, false
		}
		if _, err := normalizeKeyPart(v); err != nil {
			return nil, false
		}
		k = append(k, v)
	}
	return k, true
}

// encodeRecord serializes r and computes its primary key and index entries.
func encodeRecord(spec CollectionSpec, r Record) (row Row, err error) {
	pk, ok := extractKey(r, spec.KeyPath)
	if !ok {
		return Row{}, fmt.Errorf("%s: record is missing primary key fields %s", spec.Name, spec.KeyPath)
	}
	row.PK, err = EncodeKey(pk)
	if err != nil {
		return Row{}, err
	}
	row.Index, err = indexValues(spec, r)
	if err != nil {
		return Row{}, err
	}
	row.Body, err = json.Marshal(r)
	if err != nil {
		return Row{}, fmt.Errorf("%s: encoding record: %w", spec.Name, err)
	}
	return row, nil
}

func indexValues(spec CollectionSpec, r Record) (map[string]string, error) {
	out := make(map[string]string, len(spec.Indexes))
	for _, ix := range spec.Indexes {
		k, ok := extractKey(r, ix.KeyPath)
		if !ok {
			continue
		}
		enc, err := EncodeKey(k)
		if err != nil {
			return nil, err
		}
		out[ix.Name] = enc
	}
	return out, nil
}

// decodeRecord parses a stored body. Numbers are kept as json.Number so
// integer IDs survive the round trip unchanged.
func decodeRecord(body []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return r, nil
}

// indexBackfill recomputes index entries from a stored body; engines use it
// when an index is added to a collection that already holds data.
func indexBackfill(spec CollectionSpec) func(body []byte) (map[string]string, error) {
	return func(body []byte) (map[string]string, error) {
		r, err := decodeRecord(body)
		if err != nil {
			return nil, err
		}
		return indexValues(spec, r)
	}
}

// FromStruct converts any JSON-serializable value into a Record.
func FromStruct(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// ToStruct decodes r into dest.
func ToStruct(r Record, dest any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// String renders a key for messages.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		switch v := p.(type) {
		case string:
			parts[i] = strconv.Quote(v)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
