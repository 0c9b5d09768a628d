package documentcache

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// canonicalID coerces an identifier candidate into an ObjectID. It accepts
// ObjectIDs, non-nil ObjectID pointers, 24-character hex strings, and
// Stringers whose output parses as one. Everything else is malformed and
// must short-circuit the lookup before any cache or store IO.
func canonicalID(candidate any) (primitive.ObjectID, bool) {
	switch id := candidate.(type) {
	case primitive.ObjectID:
		return id, true
	case *primitive.ObjectID:
		if id == nil {
			return primitive.NilObjectID, false
		}
		return *id, true
	case string:
		return parseHexID(id)
	case fmt.Stringer:
		// A typed nil would panic inside String; it is just malformed.
		if rv := reflect.ValueOf(candidate); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return primitive.NilObjectID, false
		}
		return parseHexID(id.String())
	default:
		return primitive.NilObjectID, false
	}
}

func parseHexID(s string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}
