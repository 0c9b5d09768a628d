package codec

import "github.com/fxamacker/cbor/v2"

// CBOR encodes payloads as CBOR (RFC 8949).
type CBOR struct{}

var _ Codec = CBOR{}

func (CBOR) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBOR) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
