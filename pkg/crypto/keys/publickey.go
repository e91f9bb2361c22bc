package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/encoding/address"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// PublicKeySize is the length of a compressed public key.
const PublicKeySize = 33

// ErrInvalidKey is returned for byte strings that are not a valid compressed
// Secp256r1 point.
var ErrInvalidKey = errors.New("invalid public key")

// PublicKey represents a public key and provides a high level
// API around the X/Y point.
type PublicKey ecdsa.PublicKey

// NewPublicKeyFromString returns a public key created from the
// given hex string.
func NewPublicKeyFromString(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyFromBytes(b)
}

// NewPublicKeyFromBytes returns a public key created from the compressed
// point bytes.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pubKey := new(PublicKey)
	if err := pubKey.DecodeBytes(b); err != nil {
		return nil, err
	}
	return pubKey, nil
}

// Equal returns true in case public keys are equal.
func (p *PublicKey) Equal(key *PublicKey) bool {
	if p == nil || key == nil {
		return p == key
	}
	return p.X.Cmp(key.X) == 0 && p.Y.Cmp(key.Y) == 0
}

// Bytes returns the compressed byte representation of the public key.
func (p *PublicKey) Bytes() []byte {
	return elliptic.MarshalCompressed(elliptic.P256(), p.X, p.Y)
}

// DecodeBytes decodes a PublicKey from the given slice of bytes.
func (p *PublicKey) DecodeBytes(data []byte) error {
	if len(data) != PublicKeySize || (data[0] != 0x02 && data[0] != 0x03) {
		return fmt.Errorf("%w: invalid key size/prefix", ErrInvalidKey)
	}
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), data)
	if x == nil {
		return fmt.Errorf("%w: point is not on curve", ErrInvalidKey)
	}
	p.Curve = elliptic.P256()
	p.X, p.Y = x, y
	return nil
}

// DecodeBinary decodes a PublicKey from the given BinReader.
func (p *PublicKey) DecodeBinary(r *io.BinReader) {
	var buf [PublicKeySize]byte
	r.ReadBytes(buf[:])
	if r.Err != nil {
		return
	}
	r.Err = p.DecodeBytes(buf[:])
}

// EncodeBinary encodes a PublicKey to the given BinWriter.
func (p *PublicKey) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(p.Bytes())
}

// GetScriptHash returns the account id derived from the public key.
func (p *PublicKey) GetScriptHash() util.Uint160 {
	return hash.Hash160(p.Bytes())
}

// Address returns a base58-encoded account address from the public key.
func (p *PublicKey) Address() string {
	return address.Uint160ToString(p.GetScriptHash())
}

// Verify returns true if the signature is valid for the given hash and
// public key.
func (p *PublicKey) Verify(signature []byte, hash []byte) bool {
	if p.X == nil || p.Y == nil || len(signature) != SignatureLen {
		return false
	}
	rBytes := new(big.Int).SetBytes(signature[0:32])
	sBytes := new(big.Int).SetBytes(signature[32:64])
	pk := ecdsa.PublicKey(*p)
	if pk.Curve == nil {
		pk.Curve = elliptic.P256()
	}
	return ecdsa.Verify(&pk, hash, rBytes, sBytes)
}

// VerifyData hashes data with SHA256 and verifies the signature against it.
func (p *PublicKey) VerifyData(signature []byte, data []byte) bool {
	digest := sha256.Sum256(data)
	return p.Verify(signature, digest[:])
}

// String implements the Stringer interface.
func (p *PublicKey) String() string {
	return hex.EncodeToString(p.Bytes())
}

// MarshalJSON implements the json.Marshaler interface.
func (p PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(p.Bytes()))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	return p.DecodeBytes(b)
}
