package transaction

import (
	"errors"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// PublicKeyAnnouncement publishes the public key of the transaction
// recipient.
type PublicKeyAnnouncement struct {
	PublicKey *keys.PublicKey `json:"publicKey"`
}

// Flag implements the Appendix interface.
func (p *PublicKeyAnnouncement) Flag() Flag { return PublicKeyAnnouncementFlag }

// Version implements the Body interface.
func (p *PublicKeyAnnouncement) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (p *PublicKeyAnnouncement) Size() int { return 1 + keys.PublicKeySize }

// FullSize implements the Body interface.
func (p *PublicKeyAnnouncement) FullSize() int { return p.Size() }

// IsPhasable implements the Body interface.
func (p *PublicKeyAnnouncement) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (p *PublicKeyAnnouncement) EncodeBinary(w *io.BinWriter) {
	if p.PublicKey == nil {
		w.Err = errors.New("no public key to announce")
		return
	}
	writeVersion(w)
	p.PublicKey.EncodeBinary(w)
}

// DecodeBinary implements the io.Serializable interface.
func (p *PublicKeyAnnouncement) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	p.PublicKey = new(keys.PublicKey)
	p.PublicKey.DecodeBinary(r)
}

// Verify implements the Body interface.
func (p *PublicKeyAnnouncement) Verify(*limits.Limits) error {
	if p.PublicKey == nil {
		return errors.New("no public key to announce")
	}
	return nil
}
