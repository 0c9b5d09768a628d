package testsupport

import "go.mongodb.org/mongo-driver/bson/primitive"

// OID returns a deterministic ObjectID filled with seed. Deterministic ids
// keep failure output readable and make duplicate-id scenarios explicit.
func OID(seed byte) primitive.ObjectID {
	var id primitive.ObjectID
	for i := range id {
		id[i] = seed
	}
	return id
}

// OIDHex returns the hex form of OID(seed).
func OIDHex(seed byte) string {
	return OID(seed).Hex()
}
