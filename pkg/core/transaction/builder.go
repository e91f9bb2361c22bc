package transaction

import (
	"sort"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Builder accumulates transaction fields. It never verifies signatures or
// ledger state, only the shape of the transaction.
type Builder struct {
	tx     Transaction
	limits limits.Limits
	dup    []Flag
}

// NewBuilder creates a builder for the transaction with the given
// attachment.
func NewBuilder(att Attachment) *Builder {
	return &Builder{
		tx: Transaction{
			Version:    CurrentVersion,
			Attachment: att,
		},
		limits: limits.Default(),
	}
}

// Limits sets the limits used to check the payload size.
func (b *Builder) Limits(l limits.Limits) *Builder {
	b.limits = l
	return b
}

// Version sets the transaction version.
func (b *Builder) Version(v uint8) *Builder {
	b.tx.Version = v
	return b
}

// Timestamp sets the transaction timestamp (epoch seconds).
func (b *Builder) Timestamp(ts uint32) *Builder {
	b.tx.Timestamp = ts
	return b
}

// Deadline sets the transaction deadline (minutes).
func (b *Builder) Deadline(d uint16) *Builder {
	b.tx.Deadline = d
	return b
}

// SenderPublicKey sets the sender key.
func (b *Builder) SenderPublicKey(pk *keys.PublicKey) *Builder {
	b.tx.SenderPublicKey = pk
	return b
}

// Recipient sets the recipient account.
func (b *Builder) Recipient(u util.Uint160) *Builder {
	b.tx.Recipient = u
	return b
}

// Amount sets the transferred amount.
func (b *Builder) Amount(a int64) *Builder {
	b.tx.Amount = a
	return b
}

// Fee sets the transaction fee.
func (b *Builder) Fee(f int64) *Builder {
	b.tx.Fee = f
	return b
}

// ECBlock binds the transaction to the block with the given height and id.
func (b *Builder) ECBlock(height uint32, id uint64) *Builder {
	b.tx.ECBlockHeight = height
	b.tx.ECBlockID = id
	return b
}

// Append adds an appendix, the same kind can't be added twice.
func (b *Builder) Append(a Appendix) *Builder {
	if a == nil {
		return b
	}
	if b.tx.GetAppendix(a.Flag()) != nil {
		b.dup = append(b.dup, a.Flag())
		return b
	}
	b.tx.Appendices = append(b.tx.Appendices, a)
	return b
}

func (b *Builder) check() error {
	if b.tx.Attachment == nil {
		return NotValidf("attachment is missing")
	}
	if b.tx.SenderPublicKey == nil {
		return NotValidf("sender public key is missing")
	}
	if len(b.dup) != 0 {
		return NotValidf("duplicate appendix %s", b.dup[0])
	}
	if sz := b.tx.PayloadSize(); sz > b.limits.MaxPayloadSize {
		return NotValidf("payload is too big: %d > %d", sz, b.limits.MaxPayloadSize)
	}
	return nil
}

func (b *Builder) result() *Transaction {
	t := b.tx.copyEnvelope()
	t.Appendices = make([]Appendix, len(b.tx.Appendices))
	copy(t.Appendices, b.tx.Appendices)
	sort.Slice(t.Appendices, func(i, j int) bool {
		return t.Appendices[i].Flag() < t.Appendices[j].Flag()
	})
	return t
}

// Build returns an unsigned transaction. All encryptable appendices must be
// already encrypted.
func (b *Builder) Build() (*Transaction, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	for _, a := range b.tx.Appendices {
		if e, ok := a.(Encryptable); ok && !e.IsEncrypted() {
			return nil, NotValidf("%s is not encrypted", a.Flag())
		}
	}
	return b.result(), nil
}

// BuildSigned encrypts pending appendices with the seed, signs the
// transaction with the signer key and computes its hashes. Sender public key
// is taken from the signer if not set.
func (b *Builder) BuildSigned(signer *keys.PrivateKey, seed []byte) (*Transaction, error) {
	if b.tx.SenderPublicKey == nil && signer != nil {
		b.tx.SenderPublicKey = signer.PublicKey()
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, NotValidf("no signer")
	}
	if !b.tx.SenderPublicKey.Equal(signer.PublicKey()) {
		return nil, NotValidf("signer doesn't match sender public key")
	}
	for _, a := range b.tx.Appendices {
		if e, ok := a.(Encryptable); ok && !e.IsEncrypted() {
			if err := e.Encrypt(seed); err != nil {
				return nil, NotValidf("can't encrypt %s: %w", a.Flag(), err)
			}
		}
	}
	t := b.result()
	if err := t.Sign(signer); err != nil {
		return nil, NotValidf("can't sign: %w", err)
	}
	return t, nil
}
