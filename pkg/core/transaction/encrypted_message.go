package transaction

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedMessage is a message appendix encrypted with a symmetric key
// derived from a seed. It's created with plain data and must be encrypted
// before the transaction is signed.
type EncryptedMessage struct {
	IsText bool                              `json:"isText"`
	Nonce  [chacha20poly1305.NonceSizeX]byte `json:"nonce"`
	Data   []byte                            `json:"data"`

	encrypted bool
}

// NewEncryptedMessage creates a pending encrypted message with the given
// plain data.
func NewEncryptedMessage(plain []byte, isText bool) *EncryptedMessage {
	return &EncryptedMessage{IsText: isText, Data: plain}
}

// Flag implements the Appendix interface.
func (m *EncryptedMessage) Flag() Flag { return EncryptedMessageFlag }

// Version implements the Body interface.
func (m *EncryptedMessage) Version() uint8 { return bodyVersion }

// Size implements the Body interface. For pending messages it's the size the
// appendix will have once encrypted.
func (m *EncryptedMessage) Size() int {
	l := len(m.Data)
	if !m.encrypted {
		l += chacha20poly1305.Overhead
	}
	return 1 + 1 + chacha20poly1305.NonceSizeX + io.GetVarBytesSize(l)
}

// FullSize implements the Body interface.
func (m *EncryptedMessage) FullSize() int { return m.Size() }

// IsPhasable implements the Body interface.
func (m *EncryptedMessage) IsPhasable() bool { return false }

// IsEncrypted implements the Encryptable interface.
func (m *EncryptedMessage) IsEncrypted() bool { return m.encrypted }

func aeadFromSeed(seed []byte) (cipher.AEAD, error) {
	key := hash.Sha256(seed)
	return chacha20poly1305.NewX(key[:])
}

// Encrypt implements the Encryptable interface. It's a no-op for already
// encrypted messages.
func (m *EncryptedMessage) Encrypt(seed []byte) error {
	if m.encrypted {
		return nil
	}
	if len(seed) == 0 {
		return errors.New("empty encryption seed")
	}
	aead, err := aeadFromSeed(seed)
	if err != nil {
		return err
	}
	if _, err := rand.Read(m.Nonce[:]); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	m.Data = aead.Seal(nil, m.Nonce[:], m.Data, nil)
	m.encrypted = true
	return nil
}

// Decrypt implements the Encryptable interface.
func (m *EncryptedMessage) Decrypt(seed []byte) ([]byte, error) {
	if !m.encrypted {
		return nil, ErrNotEncrypted
	}
	aead, err := aeadFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, m.Nonce[:], m.Data, nil)
}

// EncodeBinary implements the io.Serializable interface.
func (m *EncryptedMessage) EncodeBinary(w *io.BinWriter) {
	if !m.encrypted {
		w.Err = ErrNotEncrypted
		return
	}
	writeVersion(w)
	w.WriteBool(m.IsText)
	w.WriteBytes(m.Nonce[:])
	w.WriteVarBytes(m.Data)
}

// DecodeBinary implements the io.Serializable interface.
func (m *EncryptedMessage) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	m.IsText = r.ReadBool()
	r.ReadBytes(m.Nonce[:])
	m.Data = r.ReadVarBytes(maxFieldSize)
	m.encrypted = r.Err == nil
}

// Verify implements the Body interface.
func (m *EncryptedMessage) Verify(l *limits.Limits) error {
	if !m.encrypted {
		return ErrNotEncrypted
	}
	if len(m.Data) < chacha20poly1305.Overhead {
		return errors.New("encrypted message is too short")
	}
	if len(m.Data)-chacha20poly1305.Overhead > l.MaxEncryptedMessageLength {
		return fmt.Errorf("encrypted message is too long: %d > %d",
			len(m.Data)-chacha20poly1305.Overhead, l.MaxEncryptedMessageLength)
	}
	return nil
}

// MessageLength returns the length of the encrypted payload.
func (m *EncryptedMessage) MessageLength() int { return len(m.Data) }
