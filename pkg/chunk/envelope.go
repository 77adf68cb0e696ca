// The disk backend stores each chunk as a ChunkEnvelope message (chunk.proto):
// the payload under the "kv_chunk" field plus an xxHash64 digest. The wire
// encoding is plain protobuf, produced and consumed with protowire so the
// single-message schema doesn't need generated code.

package chunk

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// ChunkEnvelope field numbers, per chunk.proto. Stable on-disk contract.
const (
	envelopePayloadField  = protowire.Number(1) // kv_chunk
	envelopeChecksumField = protowire.Number(2) // xxhash64
)

var (
	ErrEnvelopeCorrupt   = errors.New("chunk envelope is corrupt")
	ErrChecksumMismatch  = errors.New("chunk envelope checksum mismatch")
	ErrEnvelopeNoPayload = errors.New("chunk envelope has no kv_chunk field")
)

// EncodeEnvelope serializes the chunk into its on-disk container format.
func EncodeEnvelope(c Chunk) []byte {
	buf := protowire.AppendTag(nil, envelopePayloadField, protowire.BytesType)
	buf = protowire.AppendBytes(buf, c)
	buf = protowire.AppendTag(buf, envelopeChecksumField, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, xxhash.Sum64(c))
	return buf
}

// DecodeEnvelope parses an on-disk container and returns the payload it holds.
// The kv_chunk field is required; the checksum is verified when present.
// Unknown fields are skipped so future writers may extend the envelope.
func DecodeEnvelope(data []byte) (Chunk, error) {
	var payload Chunk
	var checksum uint64
	havePayload, haveChecksum := false, false

	for len(data) > 0 {
		field, fieldType, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, protowire.ParseError(tagLen))
		}
		data = data[tagLen:]

		switch {
		case field == envelopePayloadField && fieldType == protowire.BytesType:
			value, valueLen := protowire.ConsumeBytes(data)
			if valueLen < 0 {
				return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, protowire.ParseError(valueLen))
			}
			payload = Chunk(value).Clone() // Detach from the file buffer.
			havePayload = true
			data = data[valueLen:]
		case field == envelopeChecksumField && fieldType == protowire.Fixed64Type:
			value, valueLen := protowire.ConsumeFixed64(data)
			if valueLen < 0 {
				return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, protowire.ParseError(valueLen))
			}
			checksum = value
			haveChecksum = true
			data = data[valueLen:]
		default: // Skip unknown fields.
			skipLen := protowire.ConsumeFieldValue(field, fieldType, data)
			if skipLen < 0 {
				return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, protowire.ParseError(skipLen))
			}
			data = data[skipLen:]
		}
	}

	if !havePayload {
		return nil, ErrEnvelopeNoPayload
	}
	if haveChecksum && xxhash.Sum64(payload) != checksum {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
