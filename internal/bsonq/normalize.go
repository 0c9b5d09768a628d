// Package bsonq normalizes BSON filter expressions and re-applies them to
// documents on the client side.
//
// Normalization produces a canonical bson.D: document keys are sorted
// recursively so that structurally equal filters share one serialized
// form regardless of construction order. Array element order is preserved
// and stays significant. The canonical Extended JSON rendering of that
// form is used both as a cache-key discriminator and as a batch key, and
// it round-trips back into the bson.D the matcher consumes.
package bsonq

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNilFilter reports a nil filter expression. A caller that wants the
// whole collection passes an empty document explicitly.
var ErrNilFilter = errors.New("bsonq: nil filter")

// Normalize converts any document-shaped filter into its canonical bson.D
// form. Accepted inputs: bson.D, bson.M, map[string]any, and structs that
// marshal to a BSON document. Keys are sorted recursively; duplicate keys
// keep their relative order.
func Normalize(filter any) (bson.D, error) {
	if filter == nil {
		return nil, ErrNilFilter
	}

	switch f := filter.(type) {
	case bson.D:
		return normalizeD(f)
	case bson.M:
		return normalizeMap(map[string]any(f))
	case map[string]any:
		return normalizeMap(f)
	default:
		// Structs (and pointer-to-struct) round-trip through BSON so tags
		// and custom marshalers apply.
		data, err := bson.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("bsonq: filter is not a document: %w", err)
		}
		var d bson.D
		if err := bson.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("bsonq: filter is not a document: %w", err)
		}
		return normalizeD(d)
	}
}

// Canonical renders a normalized filter as canonical Extended JSON.
func Canonical(filter bson.D) (string, error) {
	data, err := bson.MarshalExtJSON(filter, true, false)
	if err != nil {
		return "", fmt.Errorf("bsonq: canonical serialization: %w", err)
	}
	return string(data), nil
}

// ParseCanonical is the inverse of Canonical. Key order in the result is
// the serialized (sorted) order.
func ParseCanonical(s string) (bson.D, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), true, &d); err != nil {
		return nil, fmt.Errorf("bsonq: parse canonical filter: %w", err)
	}
	return d, nil
}

// Union combines distinct filters into one store query matching any of
// them. A single filter passes through unwrapped.
func Union(filters []bson.D) bson.D {
	if len(filters) == 1 {
		return filters[0]
	}
	disjuncts := make(bson.A, 0, len(filters))
	for _, f := range filters {
		disjuncts = append(disjuncts, f)
	}
	return bson.D{{Key: "$or", Value: disjuncts}}
}

// RawID extracts the _id of a stored document.
func RawID(raw bson.Raw) (primitive.ObjectID, bool) {
	v, err := raw.LookupErr("_id")
	if err != nil {
		return primitive.NilObjectID, false
	}
	return v.ObjectIDOK()
}

func normalizeD(d bson.D) (bson.D, error) {
	out := make(bson.D, len(d))
	for i, elem := range d {
		v, err := normalizeValue(elem.Value)
		if err != nil {
			return nil, err
		}
		out[i] = primitive.E{Key: elem.Key, Value: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func normalizeMap(m map[string]any) (bson.D, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(m))
	for _, k := range keys {
		v, err := normalizeValue(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, primitive.E{Key: k, Value: v})
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bson.D:
		return normalizeD(t)
	case bson.M:
		return normalizeMap(map[string]any(t))
	case map[string]any:
		return normalizeMap(t)
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case []byte:
		return t, nil
	case primitive.Null:
		// Store-decoded nulls surface as nil interfaces; fold the typed
		// null so both sides agree.
		return nil, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		primitive.ObjectID, primitive.DateTime, primitive.Timestamp,
		primitive.Decimal128, primitive.Binary, primitive.Regex,
		primitive.MinKey, primitive.MaxKey,
		time.Time, time.Duration:
		return t, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return normalizeSlice(items)
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Map, reflect.Struct:
		// Uncommon map key types and arbitrary structs round-trip through
		// BSON to reach a sortable document form.
		data, err := bson.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("bsonq: unsupported filter value %T: %w", v, err)
		}
		var d bson.D
		if err := bson.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("bsonq: unsupported filter value %T: %w", v, err)
		}
		return normalizeD(d)
	default:
		return v, nil
	}
}

func normalizeSlice(items []any) (bson.A, error) {
	out := make(bson.A, len(items))
	for i, it := range items {
		v, err := normalizeValue(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
