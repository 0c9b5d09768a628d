package bsonq

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnsupportedOperator reports a filter operator the matcher does not
// implement. Batches carrying such a filter fail as a whole rather than
// silently dropping records.
var ErrUnsupportedOperator = errors.New("bsonq: unsupported operator")

// Match reports whether doc satisfies filter. The filter must be in
// normalized form. Supported: literal equality (including array-contains
// and embedded documents), $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin,
// $exists, the logical $and/$or/$nor, and dotted paths with array
// traversal. Embedded-document equality is key-order-insensitive, in line
// with the canonicalized filter policy.
func Match(doc bson.D, filter bson.D) (bool, error) {
	for _, cond := range filter {
		ok, err := matchCond(doc, cond.Key, cond.Value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ValidateOperators checks filter against the operator vocabulary Match
// implements. Match fails only on structure, never on document content,
// so a filter that validates here can join a shared batch without failing
// the whole window at partition time. The filter must be in normalized
// form.
func ValidateOperators(filter bson.D) error {
	for _, cond := range filter {
		if err := validateCond(cond.Key, cond.Value); err != nil {
			return err
		}
	}
	return nil
}

func validateCond(key string, v any) error {
	switch key {
	case "$and", "$or", "$nor":
		subs, err := logicalList(key, v)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := ValidateOperators(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if strings.HasPrefix(key, "$") {
		return fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
	}

	ops, ok := operatorDoc(v)
	if !ok {
		return nil
	}
	for _, op := range ops {
		switch op.Key {
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		case "$in", "$nin":
			if _, err := memberList(op.Key, op.Value); err != nil {
				return err
			}
		case "$exists":
			if _, err := truthy(op.Value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedOperator, op.Key)
		}
	}
	return nil
}

func matchCond(doc bson.D, key string, expected any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, err := logicalList(key, expected)
		if err != nil {
			return false, err
		}
		return matchLogical(doc, key, subs)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
	}

	candidates := resolvePath(doc, strings.Split(key, "."))
	if ops, ok := operatorDoc(expected); ok {
		return applyOperators(candidates, ops)
	}
	return literalMatch(candidates, expected), nil
}

func matchLogical(doc bson.D, op string, subs []bson.D) (bool, error) {
	for _, sub := range subs {
		ok, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !ok:
			return false, nil
		case op == "$or" && ok:
			return true, nil
		case op == "$nor" && ok:
			return false, nil
		}
	}
	return op != "$or", nil
}

func logicalList(op string, v any) ([]bson.D, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an array of documents", ErrUnsupportedOperator, op)
	}
	subs := make([]bson.D, 0, len(arr))
	for _, el := range arr {
		d, ok := el.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an array of documents", ErrUnsupportedOperator, op)
		}
		subs = append(subs, d)
	}
	return subs, nil
}

// operatorDoc reports whether a filter value is an operator document
// (its first key starts with "$") rather than a literal embedded document.
func operatorDoc(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	return d, strings.HasPrefix(d[0].Key, "$")
}

func applyOperators(candidates []any, ops bson.D) (bool, error) {
	for _, op := range ops {
		var ok bool
		switch op.Key {
		case "$eq":
			ok = literalMatch(candidates, op.Value)
		case "$ne":
			ok = !literalMatch(candidates, op.Value)
		case "$gt", "$gte", "$lt", "$lte":
			ok = anyCompare(candidates, op.Value, op.Key)
		case "$in":
			members, err := memberList(op.Key, op.Value)
			if err != nil {
				return false, err
			}
			ok = anyMember(candidates, members)
		case "$nin":
			members, err := memberList(op.Key, op.Value)
			if err != nil {
				return false, err
			}
			ok = !anyMember(candidates, members)
		case "$exists":
			want, err := truthy(op.Value)
			if err != nil {
				return false, err
			}
			ok = (len(candidates) > 0) == want
		default:
			return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op.Key)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func memberList(op string, v any) (bson.A, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an array", ErrUnsupportedOperator, op)
	}
	return arr, nil
}

func anyMember(candidates []any, members bson.A) bool {
	for _, m := range members {
		if literalMatch(candidates, m) {
			return true
		}
	}
	return false
}

// literalMatch applies document equality semantics: a candidate matches
// if it equals the expected value, or if it is an array containing an
// equal element. An array operand matches both the whole array and a
// nested equal array element. A nil expected value also matches a
// missing field.
func literalMatch(candidates []any, expected any) bool {
	if expected == nil && len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if eq(c, expected) {
			return true
		}
		if arr, ok := c.(bson.A); ok {
			for _, el := range arr {
				if eq(el, expected) {
					return true
				}
			}
		}
	}
	return false
}

func anyCompare(candidates []any, rhs any, op string) bool {
	for _, c := range expandArrays(candidates) {
		n, ok := compareValues(c, rhs)
		if !ok {
			continue
		}
		switch op {
		case "$gt":
			if n > 0 {
				return true
			}
		case "$gte":
			if n >= 0 {
				return true
			}
		case "$lt":
			if n < 0 {
				return true
			}
		case "$lte":
			if n <= 0 {
				return true
			}
		}
	}
	return false
}

// expandArrays adds the elements of array candidates alongside the
// candidates themselves, matching the store's element-wise comparison
// behavior for array fields.
func expandArrays(candidates []any) []any {
	out := make([]any, 0, len(candidates))
	out = append(out, candidates...)
	for _, c := range candidates {
		if arr, ok := c.(bson.A); ok {
			out = append(out, arr...)
		}
	}
	return out
}

// resolvePath walks a dotted path through documents and arrays. Arrays
// fan out over their elements; a numeric segment indexes instead. The
// result holds every value reachable at the full path; empty means the
// path resolves nowhere (the field does not exist).
func resolvePath(v any, segs []string) []any {
	if len(segs) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case bson.D:
		for _, elem := range t {
			if elem.Key == segs[0] {
				return resolvePath(elem.Value, segs[1:])
			}
		}
		return nil
	case bson.A:
		if idx, err := strconv.Atoi(segs[0]); err == nil {
			if idx >= 0 && idx < len(t) {
				return resolvePath(t[idx], segs[1:])
			}
			return nil
		}
		var out []any
		for _, el := range t {
			out = append(out, resolvePath(el, segs)...)
		}
		return out
	default:
		return nil
	}
}

func eq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if n, ok := compareValues(a, b); ok {
		return n == 0
	}

	switch at := a.(type) {
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case bson.D:
		bd, ok := b.(bson.D)
		return ok && docEq(at, bd)
	case bson.A:
		ba, ok := b.(bson.A)
		return ok && arrEq(at, ba)
	case primitive.Binary:
		bb, ok := b.(primitive.Binary)
		return ok && at.Subtype == bb.Subtype && bytes.Equal(at.Data, bb.Data)
	case []byte:
		switch bt := b.(type) {
		case []byte:
			return bytes.Equal(at, bt)
		case primitive.Binary:
			return bt.Subtype == 0 && bytes.Equal(at, bt.Data)
		}
		return false
	case primitive.Timestamp:
		bt, ok := b.(primitive.Timestamp)
		return ok && at == bt
	case primitive.Decimal128:
		bt, ok := b.(primitive.Decimal128)
		return ok && at == bt
	case primitive.Null:
		_, ok := b.(primitive.Null)
		return ok
	}
	return false
}

// docEq compares embedded documents without regard to key order.
func docEq(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedByKey(a), sortedByKey(b)
	for i := range as {
		if as[i].Key != bs[i].Key || !eq(as[i].Value, bs[i].Value) {
			return false
		}
	}
	return true
}

func sortedByKey(d bson.D) bson.D {
	out := make(bson.D, len(d))
	copy(out, d)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func arrEq(a, b bson.A) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compareValues orders two values when they are of a comparable family:
// numbers (cross-width), strings, ObjectIDs, or timestamps.
func compareValues(a, b any) (int, bool) {
	if ai, aok := toInt(a); aok {
		if bi, bok := toInt(b); bok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			}
			return 0, true
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	if ao, ok := a.(primitive.ObjectID); ok {
		if bo, ok := b.(primitive.ObjectID); ok {
			return bytes.Compare(ao[:], bo[:]), true
		}
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func truthy(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	}
	if i, ok := toInt(v); ok {
		return i != 0, nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0, nil
	}
	return false, fmt.Errorf("%w: $exists requires a boolean", ErrUnsupportedOperator)
}
