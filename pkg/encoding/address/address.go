package address

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Prefix is the byte used to prepend to addresses when encoding them, it can
// be changed and defaults to 0x23 ("F" prefixed addresses).
var Prefix = byte(0x23)

// ErrChecksum is returned for addresses with a broken checksum.
var ErrChecksum = errors.New("address checksum mismatch")

// Uint160ToString returns the base58check address from the given Uint160.
func Uint160ToString(u util.Uint160) string {
	b := append([]byte{Prefix}, u.BytesBE()...)
	return base58.Encode(append(b, hash.Checksum(b)...))
}

// StringToUint160 attempts to decode the given address string
// into a Uint160.
func StringToUint160(s string) (u util.Uint160, err error) {
	b, err := base58.Decode(s)
	if err != nil {
		return u, err
	}
	if len(b) != 1+util.Uint160Size+4 {
		return u, fmt.Errorf("invalid address length %d", len(b))
	}
	if b[0] != Prefix {
		return u, errors.New("wrong address prefix")
	}
	data, sum := b[:len(b)-4], b[len(b)-4:]
	if !bytes.Equal(hash.Checksum(data), sum) {
		return u, ErrChecksum
	}
	return util.Uint160DecodeBytesBE(data[1:])
}
