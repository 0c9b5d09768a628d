package codec

import "go.mongodb.org/mongo-driver/bson"

// ExtJSON encodes payloads as canonical Extended JSON. Entries stay
// readable when inspecting the cache backend directly, at the cost of
// size.
type ExtJSON struct{}

var _ Codec = ExtJSON{}

func (ExtJSON) Encode(v any) ([]byte, error) {
	return bson.MarshalExtJSON(v, true, false)
}

func (ExtJSON) Decode(data []byte, v any) error {
	return bson.UnmarshalExtJSON(data, true, v)
}
