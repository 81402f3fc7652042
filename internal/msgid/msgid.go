// Package msgid defines the opaque topic identifier routed by the bus.
package msgid

import "github.com/otus-sbus/sbus/pkg/ccsds"

// ID is the opaque numeric identifier carried in a message's CCSDS
// primary header stream-id. Two IDs are equal iff their underlying
// stream-id bits are equal; callers must not assume any other structure.
type ID uint32

// Invalid is the reserved sentinel value meaning "no message id".
const Invalid ID = 0xFFFFFFFF

// IsValid reports whether id can be used in Subscribe/TransmitMsg.
func IsValid(id ID) bool {
	return id != Invalid
}

// FromHeader derives a MsgId from a decoded primary header's stream-id
// bits (Type, HasSecondary, ApID). Two headers with the same
// Type/HasSecondary/ApID route identically regardless of sequence
// count or size.
func FromHeader(h ccsds.Header) ID {
	id := uint32(h.ApID)
	if h.Type == ccsds.Cmd {
		id |= 1 << 11
	}
	if h.HasSecondary {
		id |= 1 << 12
	}
	return ID(id)
}
