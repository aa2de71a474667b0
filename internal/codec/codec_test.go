package codec

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/multisession/internal/domain"
)

func TestDecodeReturnsEncodedPayload(t *testing.T) {
	data, err := Encode([]byte("noise-key"), true)
	require.NoError(t, err)

	payload, sealed, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("noise-key"), payload)
	assert.True(t, sealed)
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, err := Encode([]byte("creds"), false)
	require.NoError(t, err)
	second, err := Encode([]byte("creds"), false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecodeRejectsTamperedPayload(t *testing.T) {
	digest := make([]byte, 32)
	data, err := cbor.Marshal(envelope{Version: envelopeVersion, Digest: digest, Payload: []byte("creds")})
	require.NoError(t, err)

	_, _, err = Decode(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
	assert.ErrorContains(t, err, "digest mismatch")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: []byte{0xa4, 0x01}},
		{name: "not cbor map", data: []byte("{\"creds\":1}")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrCorruptRecord)
		})
	}
}

func TestDecodeRejectsOversizedRecord(t *testing.T) {
	data, err := Encode(make([]byte, MaxRecordSize), false)
	require.NoError(t, err)

	_, _, err = Decode(data)
	require.ErrorIs(t, err, domain.ErrCorruptRecord)
	assert.ErrorContains(t, err, "exceeds")
}

func TestDecodeRejectsDeeplyNestedInput(t *testing.T) {
	nested := []byte{0xa1, 0x01, 0xa1, 0x01, 0xa1, 0x01, 0xa1, 0x01, 0xa1, 0x01, 0x00}

	_, _, err := Decode(nested)
	require.ErrorIs(t, err, domain.ErrCorruptRecord)
}
