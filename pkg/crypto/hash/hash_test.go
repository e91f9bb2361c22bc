package hash

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256(t *testing.T) {
	input := []byte("hello")
	data := Sha256(input)

	expected := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	actual := hex.EncodeToString(data[:])

	assert.Equal(t, expected, actual)
}

func TestHashDoubleSha256(t *testing.T) {
	input := []byte("hello")
	data := DoubleSha256(input)

	firstSha := Sha256(input)
	doubleSha := Sha256(firstSha[:])
	expected := hex.EncodeToString(doubleSha[:])

	actual := hex.EncodeToString(data[:])
	assert.Equal(t, expected, actual)
}

func TestHashRipeMD160(t *testing.T) {
	input := []byte("hello")
	data := RipeMD160(input)

	expected := "108f07b8382412612c048d07d13f814118445acd"
	actual := hex.EncodeToString(data[:])
	assert.Equal(t, expected, actual)
}

func TestHash160(t *testing.T) {
	input := []byte("hello")
	data := Hash160(input)
	sha := Sha256(input)

	require.Equal(t, RipeMD160(sha[:]), data)
}

func TestBlake3(t *testing.T) {
	data := Blake3([]byte{})
	expected := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	require.Equal(t, expected, hex.EncodeToString(data[:]))
	require.NotEqual(t, data, Blake3([]byte{0}))
}

func TestChecksum(t *testing.T) {
	input := []byte("hello")
	h := DoubleSha256(input)
	require.Equal(t, h[:4], Checksum(input))
}
