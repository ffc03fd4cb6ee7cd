package kv

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Codec encodes values as canonical CBOR and compresses them with zstd.
type Codec struct {
	encoder      cbor.EncMode
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCodec creates a new Codec.
func NewCodec() *Codec {

	// The options are static, so failing here is a programming error.
	encoder, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}

	return &Codec{
		encoder:      encoder,
		compressor:   compressor,
		decompressor: decompressor,
	}
}

// Marshal encodes and compresses value.
func (c *Codec) Marshal(value interface{}) ([]byte, error) {
	data, err := c.encoder.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("could not encode value: %w", err)
	}
	return c.compressor.EncodeAll(data, nil), nil
}

// Unmarshal decompresses and decodes compressed into value.
func (c *Codec) Unmarshal(compressed []byte, value interface{}) error {
	data, err := c.decompressor.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("could not decompress data: %w", err)
	}
	err = cbor.Unmarshal(data, value)
	if err != nil {
		return fmt.Errorf("could not decode value: %w", err)
	}
	return nil
}
