package documentcache

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type hexStringer struct {
	value string
}

func (h *hexStringer) String() string {
	return h.value
}

func TestCanonicalID(t *testing.T) {
	id := primitive.NewObjectID()
	fixed, err := primitive.ObjectIDFromHex("507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("failed to parse fixture id: %v", err)
	}

	tests := []struct {
		name   string
		input  any
		wantOK bool
		want   primitive.ObjectID
	}{
		{
			name:   "object id",
			input:  id,
			wantOK: true,
			want:   id,
		},
		{
			name:   "object id pointer",
			input:  &id,
			wantOK: true,
			want:   id,
		},
		{
			name:   "nil object id pointer",
			input:  (*primitive.ObjectID)(nil),
			wantOK: false,
		},
		{
			name:   "hex string",
			input:  id.Hex(),
			wantOK: true,
			want:   id,
		},
		{
			// hex.Decode accepts both cases, so mixed-case spellings
			// canonicalize to the same id and the same cache key.
			name:   "uppercase hex string",
			input:  "507F1F77BCF86CD799439011",
			wantOK: true,
			want:   fixed,
		},
		{
			name:   "short hex string",
			input:  "abcdef",
			wantOK: false,
		},
		{
			name:   "non-hex string",
			input:  "zzzzzzzzzzzzzzzzzzzzzzzz",
			wantOK: false,
		},
		{
			name:   "empty string",
			input:  "",
			wantOK: false,
		},
		{
			name:   "stringer",
			input:  &hexStringer{value: id.Hex()},
			wantOK: true,
			want:   id,
		},
		{
			name:   "stringer with bad payload",
			input:  &hexStringer{value: "not-an-id"},
			wantOK: false,
		},
		{
			name:   "typed nil stringer",
			input:  (*hexStringer)(nil),
			wantOK: false,
		},
		{
			name:   "nil",
			input:  nil,
			wantOK: false,
		},
		{
			name:   "integer",
			input:  42,
			wantOK: false,
		},
		{
			name:   "byte slice",
			input:  []byte(id.Hex()),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := canonicalID(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got != tt.want {
				t.Errorf("expected %s, got %s", tt.want.Hex(), got.Hex())
			}
		})
	}
}
