// Package codec encodes and decodes safeguard snapshots as MessagePack.
package codec

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/models"
)

// ContentType is the media type used on the remote safeguard route.
const ContentType = "application/x-msgpack"

var handle = &codec.MsgpackHandle{}

// Encode serializes headers into a HeaderList envelope.
func Encode(headers []models.BlockHeader) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, handle)
	if err := enc.Encode(models.HeaderList{Data: headers}); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return out, nil
}

// Decode parses a HeaderList envelope. Any malformed input is reported as
// apperr.ErrDeserialization.
func Decode(data []byte) (models.HeaderList, error) {
	var list models.HeaderList
	if len(data) == 0 {
		return list, fmt.Errorf("codec: decode: empty payload: %w", apperr.ErrDeserialization)
	}
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(&list); err != nil {
		return models.HeaderList{}, fmt.Errorf("codec: decode: %v: %w", err, apperr.ErrDeserialization)
	}
	return list, nil
}
