// Package wire defines the binary envelope for cache entries.
//
// Every value stored in the cache adapter is framed as:
//
//	[4]byte magic | 1 byte version | 1 byte kind | 8 byte generation |
//	8 byte logical expiry (unix nanos, 0 = none) | body
//
// The body depends on the kind: a record entry carries one codec payload,
// a list entry carries a count followed by length-prefixed payloads, and a
// not-found entry carries nothing. The generation and expiry travel with
// the value so staleness can be decided without a second lookup.
package wire

import (
	"encoding/binary"
	"errors"
)

// Kind discriminates what a cache entry holds.
type Kind byte

const (
	// KindRecord is a single encoded record.
	KindRecord Kind = 0x01
	// KindList is an ordered sequence of encoded records.
	KindList Kind = 0x02
	// KindNotFound is the explicit negative entry: the store confirmed
	// there is no record for this key. Distinct from a cache miss.
	KindNotFound Kind = 0x03
)

const (
	version    = 1
	headerSize = 4 + 1 + 1 + 8 + 8
)

var magic = [4]byte{'D', 'O', 'C', 'C'}

// ErrCorrupt reports an entry that cannot be decoded. Callers treat it as
// a cache miss and delete the entry.
var ErrCorrupt = errors.New("wire: corrupt cache entry")

// Entry is a decoded envelope.
type Entry struct {
	Kind      Kind
	Gen       uint64
	ExpiresAt int64
	Payload   []byte   // set for KindRecord
	Items     [][]byte // set for KindList
}

func putHeader(buf []byte, kind Kind, gen uint64, expiresAt int64) {
	copy(buf[0:4], magic[:])
	buf[4] = version
	buf[5] = byte(kind)
	binary.BigEndian.PutUint64(buf[6:14], gen)
	binary.BigEndian.PutUint64(buf[14:22], uint64(expiresAt))
}

// EncodeRecord frames a single record payload.
func EncodeRecord(gen uint64, expiresAt int64, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	putHeader(buf, KindRecord, gen, expiresAt)
	copy(buf[headerSize:], payload)
	return buf
}

// EncodeNotFound frames the explicit negative entry.
func EncodeNotFound(gen uint64, expiresAt int64) []byte {
	buf := make([]byte, headerSize)
	putHeader(buf, KindNotFound, gen, expiresAt)
	return buf
}

// EncodeList frames an ordered sequence of record payloads.
func EncodeList(gen uint64, expiresAt int64, items [][]byte) []byte {
	size := headerSize + 4
	for _, it := range items {
		size += 4 + len(it)
	}

	buf := make([]byte, size)
	putHeader(buf, KindList, gen, expiresAt)

	off := headerSize
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(items)))
	off += 4
	for _, it := range items {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(it)))
		off += 4
		copy(buf[off:], it)
		off += len(it)
	}
	return buf
}

// Decode parses an envelope produced by one of the Encode functions.
// The returned payload slices alias buf; callers must not retain buf if
// they mutate it.
func Decode(buf []byte) (Entry, error) {
	if len(buf) < headerSize {
		return Entry{}, ErrCorrupt
	}
	if [4]byte(buf[0:4]) != magic {
		return Entry{}, ErrCorrupt
	}
	if buf[4] != version {
		return Entry{}, ErrCorrupt
	}

	e := Entry{
		Kind:      Kind(buf[5]),
		Gen:       binary.BigEndian.Uint64(buf[6:14]),
		ExpiresAt: int64(binary.BigEndian.Uint64(buf[14:22])),
	}
	body := buf[headerSize:]

	switch e.Kind {
	case KindRecord:
		e.Payload = body
		return e, nil

	case KindNotFound:
		if len(body) != 0 {
			return Entry{}, ErrCorrupt
		}
		return e, nil

	case KindList:
		if len(body) < 4 {
			return Entry{}, ErrCorrupt
		}
		count := binary.BigEndian.Uint32(body[0:4])
		body = body[4:]

		// Each item needs at least its length prefix.
		if uint64(count)*4 > uint64(len(body)) {
			return Entry{}, ErrCorrupt
		}

		items := make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			if len(body) < 4 {
				return Entry{}, ErrCorrupt
			}
			n := binary.BigEndian.Uint32(body[0:4])
			body = body[4:]
			if uint64(n) > uint64(len(body)) {
				return Entry{}, ErrCorrupt
			}
			items = append(items, body[:n])
			body = body[n:]
		}
		if len(body) != 0 {
			return Entry{}, ErrCorrupt
		}
		e.Items = items
		return e, nil

	default:
		return Entry{}, ErrCorrupt
	}
}
