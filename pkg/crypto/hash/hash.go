package hash

import (
	"crypto/sha256"

	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // account ids are RIPEMD160-based.
)

// Sha256 hashes the incoming byte slice
// using the sha256 algorithm.
func Sha256(data []byte) util.Uint256 {
	return sha256.Sum256(data)
}

// DoubleSha256 performs sha256 twice on the given data.
func DoubleSha256(data []byte) util.Uint256 {
	h1 := Sha256(data)
	return Sha256(h1[:])
}

// RipeMD160 performs the RIPEMD160 hash algorithm
// on the given data.
func RipeMD160(data []byte) util.Uint160 {
	var hash util.Uint160
	hasher := ripemd160.New()
	_, _ = hasher.Write(data)

	hasher.Sum(hash[:0])
	return hash
}

// Hash160 performs sha256 and then ripemd160
// on the given data.
func Hash160(data []byte) util.Uint160 {
	h1 := Sha256(data)
	return RipeMD160(h1[:])
}

// Blake3 returns a 32-byte BLAKE3 digest of the given data. It's used for
// commitments to payloads that may be pruned later.
func Blake3(data []byte) util.Uint256 {
	var hash util.Uint256
	hasher := blake3.New()
	_, _ = hasher.Write(data)
	hasher.Sum(hash[:0])
	return hash
}

// Checksum returns the checksum for a given piece of data
// using DoubleSha256 as the hash algorithm.
func Checksum(data []byte) []byte {
	hash := DoubleSha256(data)
	return hash[:4]
}
