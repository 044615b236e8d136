package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestFieldCodec_RoundTrip(t *testing.T) {
	codec, err := NewFieldCodec(testKey())
	require.NoError(t, err)

	plaintext := []byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`)
	encoded, err := codec.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "stkCallback")

	decoded, err := codec.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestFieldCodec_FreshNoncePerCall(t *testing.T) {
	codec, err := NewFieldCodec(testKey())
	require.NoError(t, err)

	a, err := codec.Encrypt([]byte("12345678"))
	require.NoError(t, err)
	b, err := codec.Encrypt([]byte("12345678"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFieldCodec_RejectsTampering(t *testing.T) {
	codec, err := NewFieldCodec(testKey())
	require.NoError(t, err)

	encoded, err := codec.Encrypt([]byte("secret"))
	require.NoError(t, err)

	other, err := NewFieldCodec(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	_, err = other.Decrypt(encoded)
	assert.ErrorIs(t, err, ErrCiphertext)

	_, err = codec.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrCiphertext)

	_, err = codec.Decrypt("")
	assert.ErrorIs(t, err, ErrCiphertext)
}

func TestNewFieldCodec_KeyLength(t *testing.T) {
	_, err := NewFieldCodec([]byte("short"))
	assert.Error(t, err)
}

func TestHashValue(t *testing.T) {
	a := HashValue("salt", "12345678")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashValue("salt", "12345678"))
	assert.NotEqual(t, a, HashValue("other-salt", "12345678"))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"amount":1000}`)
	signature := SignHMAC("shh", body)

	assert.True(t, VerifyHMAC("shh", body, signature))
	assert.False(t, VerifyHMAC("shh", []byte(`{"amount":9000}`), signature))
	assert.False(t, VerifyHMAC("wrong", body, signature))
	assert.False(t, VerifyHMAC("shh", body, ""))
}
