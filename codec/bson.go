package codec

import "go.mongodb.org/mongo-driver/bson"

// BSON encodes payloads as BSON documents. This is the default codec; it
// preserves every type the store itself can represent.
type BSON struct{}

var _ Codec = BSON{}

func (BSON) Encode(v any) ([]byte, error) {
	return bson.Marshal(v)
}

func (BSON) Decode(data []byte, v any) error {
	return bson.Unmarshal(data, v)
}
