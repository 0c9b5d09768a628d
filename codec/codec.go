// Package codec defines how decoded records are serialized into cache
// entry payloads.
//
// The store side always speaks BSON; the codec only governs what the
// cache adapter stores. BSON is the default and round-trips every
// mongo-driver type. MessagePack and CBOR trade driver fidelity for
// size and cross-language readability, and ExtJSON keeps entries
// human-readable in debugging setups.
package codec

// Codec encodes one record payload.
type Codec interface {
	// Encode serializes a record.
	Encode(v any) ([]byte, error)
	// Decode deserializes data into v, which must be a pointer.
	Decode(data []byte, v any) error
}
