// Package codec encodes credential records for storage. Each record is a
// deterministic CBOR envelope carrying a BLAKE3 digest of its payload, so a
// torn or altered record is rejected on read instead of being handed to the
// transport.
package codec

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/bnema/multisession/internal/domain"
)

const (
	envelopeVersion = 1

	// MaxRecordSize bounds an encoded record.
	MaxRecordSize = 16 << 20
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxNestedLevels:  4,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type envelope struct {
	Version int    `cbor:"1,keyasint"`
	Sealed  bool   `cbor:"2,keyasint,omitempty"`
	Digest  []byte `cbor:"3,keyasint"`
	Payload []byte `cbor:"4,keyasint"`
}

// Encode wraps payload in an envelope. sealed records that payload is
// ciphertext.
func Encode(payload []byte, sealed bool) ([]byte, error) {
	digest := blake3.Sum256(payload)
	data, err := encMode.Marshal(envelope{
		Version: envelopeVersion,
		Sealed:  sealed,
		Digest:  digest[:],
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record envelope: %w", err)
	}

	return data, nil
}

// Decode verifies the envelope and returns its payload and sealed flag.
func Decode(data []byte) ([]byte, bool, error) {
	if len(data) > MaxRecordSize {
		return nil, false, fmt.Errorf("%w: record of %d bytes exceeds %d", domain.ErrCorruptRecord, len(data), MaxRecordSize)
	}

	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("%w: decode envelope: %w", domain.ErrCorruptRecord, err)
	}
	if env.Version == 0 || env.Version > envelopeVersion {
		return nil, false, fmt.Errorf("%w: unsupported envelope version %d", domain.ErrCorruptRecord, env.Version)
	}

	digest := blake3.Sum256(env.Payload)
	if !bytes.Equal(digest[:], env.Digest) {
		return nil, false, fmt.Errorf("%w: digest mismatch", domain.ErrCorruptRecord)
	}

	return env.Payload, env.Sealed, nil
}
