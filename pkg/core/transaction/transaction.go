package transaction

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

const (
	// CurrentVersion is the only supported transaction version.
	CurrentVersion = 1
	// SignatureSize is the size of the transaction signature.
	SignatureSize = keys.SignatureLen
	// MaxTransactionSize is the upper limit of the serialized transaction
	// size accepted by the decoder.
	MaxTransactionSize = 128 * 1024
)

// Transaction is an immutable signed transaction. The only mutable part is
// its status (confirmation or failure) that can be set once.
type Transaction struct {
	Version uint8
	// Timestamp is the transaction creation time in epoch seconds.
	Timestamp uint32
	// Deadline is the transaction validity period in minutes.
	Deadline        uint16
	SenderPublicKey *keys.PublicKey
	// Recipient is zero for transactions without a recipient.
	Recipient util.Uint160
	Amount    int64
	Fee       int64
	// ECBlockHeight and ECBlockID bind the transaction to a recent block.
	ECBlockHeight uint32
	ECBlockID     uint64

	Attachment Attachment
	// Appendices are sorted by Flag, at most one of each kind.
	Appendices []Appendix

	Signature []byte

	// Hash-related cache, filled when the transaction is signed or decoded.
	hashed   bool
	fullHash util.Uint256
	id       uint64
	size     int
	sender   util.Uint160

	statusLock sync.RWMutex
	status     Status
}

// Status is the volatile part of the transaction.
type Status struct {
	Confirmed    bool
	Height       uint32
	BlockID      uint64
	Index        uint16
	Failed       bool
	ErrorMessage string
}

// ErrStatusSet is returned on attempts to change status twice.
var ErrStatusSet = errors.New("transaction status is already set")

// NewTransactionFromBytes decodes byte array into *Transaction.
func NewTransactionFromBytes(b []byte) (*Transaction, error) {
	if len(b) > MaxTransactionSize {
		return nil, fmt.Errorf("%w: too big (%d bytes)", ErrMalformed, len(b))
	}
	tx := &Transaction{}
	r := io.NewBinReaderFromBuf(b)
	tx.DecodeBinary(r)
	if r.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, r.Err)
	}
	_ = r.ReadB()
	if r.Err == nil {
		return nil, fmt.Errorf("%w: additional data after the transaction", ErrMalformed)
	}
	return tx, nil
}

// Kind returns the transaction kind (taken from its attachment).
func (t *Transaction) Kind() Kind {
	if t.Attachment == nil {
		return Kind{0xff, 0xff}
	}
	return t.Attachment.Kind()
}

// HasRecipient returns true if the transaction has a recipient.
func (t *Transaction) HasRecipient() bool {
	return !t.Recipient.IsZero()
}

// GetAppendix returns the appendix with the given flag or nil.
func (t *Transaction) GetAppendix(f Flag) Appendix {
	for _, a := range t.Appendices {
		if a.Flag() == f {
			return a
		}
	}
	return nil
}

// Phasing returns the Phasing appendix if present.
func (t *Transaction) Phasing() *Phasing {
	p, _ := t.GetAppendix(PhasingFlag).(*Phasing)
	return p
}

// Expiration returns the epoch time after which the transaction is expired.
func (t *Transaction) Expiration() uint32 {
	return t.Timestamp + 60*uint32(t.Deadline)
}

// IsExpired returns true if the transaction expiration is before now.
func (t *Transaction) IsExpired(now uint32) bool {
	return t.Expiration() < now
}

// Cost returns the total amount the sender spends.
func (t *Transaction) Cost() int64 {
	return t.Amount + t.Fee
}

// PayloadSize returns the total size of the attachment and appendices
// including prunable data.
func (t *Transaction) PayloadSize() int {
	var sz int
	if t.Attachment != nil {
		sz = t.Attachment.FullSize()
	}
	for _, a := range t.Appendices {
		sz += a.FullSize()
	}
	return sz
}

// Size returns the size of the signed transaction data.
func (t *Transaction) Size() int {
	if t.size == 0 {
		t.size = io.GetSize(t.hashable())
	}
	return t.size
}

// FullSize returns Size plus the size of prunable payloads.
func (t *Transaction) FullSize() int {
	sz := t.Size()
	for _, a := range t.Appendices {
		sz += a.FullSize() - a.Size()
	}
	return sz
}

// FeePerByte returns the integer fee per byte of the transaction, it's only
// an approximation, exact comparisons should use Fee and Size.
func (t *Transaction) FeePerByte() int64 {
	return t.Fee / int64(t.Size())
}

// Sender returns the account id of the sender.
func (t *Transaction) Sender() util.Uint160 {
	if !t.hashed && t.SenderPublicKey != nil {
		return t.SenderPublicKey.GetScriptHash()
	}
	return t.sender
}

// FullHash returns the full hash of the transaction.
func (t *Transaction) FullHash() util.Uint256 {
	if !t.hashed {
		t.createHash()
	}
	return t.fullHash
}

// ID returns the transaction id derived from the full hash.
func (t *Transaction) ID() uint64 {
	if !t.hashed {
		t.createHash()
	}
	return t.id
}

// IDString returns decimal representation of the id.
func (t *Transaction) IDString() string {
	return strconv.FormatUint(t.ID(), 10)
}

// createHash computes full hash and id: sha256 over the unsigned data
// followed by the sha256 of the signature.
func (t *Transaction) createHash() {
	unsigned, err := t.UnsignedBytes()
	if err != nil {
		return
	}
	sigHash := hash.Sha256(t.Signature)
	buf := make([]byte, 0, len(unsigned)+len(sigHash))
	buf = append(buf, unsigned...)
	buf = append(buf, sigHash[:]...)

	t.fullHash = hash.Sha256(buf)
	t.id = binary.LittleEndian.Uint64(t.fullHash[:8])
	t.size = len(unsigned)
	if t.SenderPublicKey != nil {
		t.sender = t.SenderPublicKey.GetScriptHash()
	}
	t.hashed = true
}

// hashableTx serializes the signed part of the transaction with a zeroed
// signature when unsigned is set.
type hashableTx struct {
	t        *Transaction
	unsigned bool
}

func (t *Transaction) hashable() hashableTx {
	return hashableTx{t: t}
}

// EncodeBinary implements the io.Serializable interface for the signed part.
func (h hashableTx) EncodeBinary(w *io.BinWriter) {
	h.t.encodeHashableFields(w)
	if h.unsigned || len(h.t.Signature) == 0 {
		var zero [SignatureSize]byte
		w.WriteBytes(zero[:])
	} else {
		if len(h.t.Signature) != SignatureSize {
			w.Err = fmt.Errorf("invalid signature length %d", len(h.t.Signature))
			return
		}
		w.WriteBytes(h.t.Signature)
	}
}

// UnsignedBytes returns the data covered by the signature.
func (t *Transaction) UnsignedBytes() ([]byte, error) {
	buf := io.NewBufBinWriter()
	hashableTx{t: t, unsigned: true}.EncodeBinary(buf.BinWriter)
	if buf.Err != nil {
		return nil, buf.Err
	}
	return buf.Bytes(), nil
}

func (t *Transaction) encodeHashableFields(w *io.BinWriter) {
	if t.Attachment == nil {
		w.Err = errors.New("no attachment")
		return
	}
	if t.SenderPublicKey == nil {
		w.Err = errors.New("no sender public key")
		return
	}
	k := t.Attachment.Kind()
	w.WriteB(k.Type)
	w.WriteB(k.Subtype)
	w.WriteB(t.Version)
	w.WriteU32LE(t.Timestamp)
	w.WriteU16LE(t.Deadline)
	t.SenderPublicKey.EncodeBinary(w)
	w.WriteBytes(t.Recipient[:])
	w.WriteU64LE(uint64(t.Amount))
	w.WriteU64LE(uint64(t.Fee))
	w.WriteU32LE(t.ECBlockHeight)
	w.WriteU64LE(t.ECBlockID)
	w.WriteU32LE(uint32(flagsOf(t.Appendices)))
	t.Attachment.EncodeBinary(w)
	for _, a := range t.Appendices {
		a.EncodeBinary(w)
	}
}

func (t *Transaction) decodeHashableFields(r *io.BinReader) {
	var k Kind
	k.Type = r.ReadB()
	k.Subtype = r.ReadB()
	t.Version = r.ReadB()
	t.Timestamp = r.ReadU32LE()
	t.Deadline = r.ReadU16LE()
	t.SenderPublicKey = new(keys.PublicKey)
	t.SenderPublicKey.DecodeBinary(r)
	r.ReadBytes(t.Recipient[:])
	t.Amount = int64(r.ReadU64LE())
	t.Fee = int64(r.ReadU64LE())
	t.ECBlockHeight = r.ReadU32LE()
	t.ECBlockID = r.ReadU64LE()
	flags := Flag(r.ReadU32LE())
	if r.Err != nil {
		return
	}
	att, err := newAttachment(k)
	if err != nil {
		r.Err = err
		return
	}
	att.DecodeBinary(r)
	t.Attachment = att
	if r.Err != nil {
		return
	}
	t.Appendices = decodeAppendices(r, flags)
}

// EncodeBinary implements the io.Serializable interface. Prunable data
// follow the signature.
func (t *Transaction) EncodeBinary(w *io.BinWriter) {
	t.hashable().EncodeBinary(w)
	for _, a := range t.Appendices {
		if p, ok := a.(Prunable); ok {
			p.encodePrunable(w)
		}
	}
}

// DecodeBinary implements the io.Serializable interface.
func (t *Transaction) DecodeBinary(r *io.BinReader) {
	t.decodeHashableFields(r)
	if r.Err != nil {
		return
	}
	t.Signature = make([]byte, SignatureSize)
	r.ReadBytes(t.Signature)
	for _, a := range t.Appendices {
		if p, ok := a.(Prunable); ok {
			p.decodePrunable(r)
		}
	}
	if r.Err == nil {
		t.createHash()
		if !t.hashed {
			r.Err = errors.New("failed to hash transaction")
		}
	}
}

// Bytes converts the transaction to []byte.
func (t *Transaction) Bytes() []byte {
	buf := io.NewBufBinWriter()
	t.EncodeBinary(buf.BinWriter)
	if buf.Err != nil {
		return nil
	}
	return buf.Bytes()
}

// Sign signs the transaction with the given key and fills hashes. The key
// must match SenderPublicKey.
func (t *Transaction) Sign(priv *keys.PrivateKey) error {
	if t.SenderPublicKey == nil {
		t.SenderPublicKey = priv.PublicKey()
	} else if !t.SenderPublicKey.Equal(priv.PublicKey()) {
		return errors.New("private key doesn't match sender public key")
	}
	unsigned, err := t.UnsignedBytes()
	if err != nil {
		return err
	}
	t.Signature = priv.Sign(unsigned)
	t.hashed = false
	t.createHash()
	return nil
}

// VerifySignature checks the signature against the sender public key.
func (t *Transaction) VerifySignature() bool {
	if t.SenderPublicKey == nil || len(t.Signature) != SignatureSize {
		return false
	}
	unsigned, err := t.UnsignedBytes()
	if err != nil {
		return false
	}
	return t.SenderPublicKey.VerifyData(t.Signature, unsigned)
}

// HasPrunedData returns true if any prunable appendix has only a commitment.
func (t *Transaction) HasPrunedData() bool {
	for _, a := range t.Appendices {
		if p, ok := a.(Prunable); ok && !p.HasPrunableData() {
			return true
		}
	}
	return false
}

// Materialize returns the transaction with all prunable payloads restored
// from src. Payloads are available for retention seconds after the
// transaction timestamp, ErrPrunableUnavailable is returned after that.
// The receiver is returned if there is nothing to restore.
func (t *Transaction) Materialize(ctx context.Context, src PrunableSource, retention, now uint32) (*Transaction, error) {
	if !t.HasPrunedData() {
		return t, nil
	}
	apps := make([]Appendix, len(t.Appendices))
	copy(apps, t.Appendices)
	for i, a := range apps {
		m, ok := a.(*PrunablePlainMessage)
		if !ok || m.HasPrunableData() {
			continue
		}
		full, err := m.Materialize(ctx, src, t.Timestamp+retention, now)
		if err != nil {
			return nil, err
		}
		apps[i] = full
	}
	res := t.copyEnvelope()
	res.Appendices = apps
	res.createHash()
	return res, nil
}

// Pruned returns the transaction with all prunable payloads replaced by
// their commitments. Identity of the transaction doesn't change.
func (t *Transaction) Pruned() *Transaction {
	apps := make([]Appendix, len(t.Appendices))
	for i, a := range t.Appendices {
		apps[i] = a
		if m, ok := a.(*PrunablePlainMessage); ok && m.HasPrunableData() {
			c := *m
			c.Payload = HashOnly(m.Commitment())
			apps[i] = &c
		}
	}
	res := t.copyEnvelope()
	res.Appendices = apps
	res.createHash()
	return res
}

func (t *Transaction) copyEnvelope() *Transaction {
	return &Transaction{
		Version:         t.Version,
		Timestamp:       t.Timestamp,
		Deadline:        t.Deadline,
		SenderPublicKey: t.SenderPublicKey,
		Recipient:       t.Recipient,
		Amount:          t.Amount,
		Fee:             t.Fee,
		ECBlockHeight:   t.ECBlockHeight,
		ECBlockID:       t.ECBlockID,
		Attachment:      t.Attachment,
		Appendices:      t.Appendices,
		Signature:       t.Signature,
	}
}

// PrunableData returns commitment-data pairs of all available prunable
// payloads.
func (t *Transaction) PrunableData() map[util.Uint256][]byte {
	var res map[util.Uint256][]byte
	for _, a := range t.Appendices {
		m, ok := a.(*PrunablePlainMessage)
		if !ok {
			continue
		}
		if data, ok := m.Data(); ok {
			if res == nil {
				res = make(map[util.Uint256][]byte)
			}
			res[m.Commitment()] = data
		}
	}
	return res
}

// GetStatus returns a copy of the transaction status.
func (t *Transaction) GetStatus() Status {
	t.statusLock.RLock()
	defer t.statusLock.RUnlock()
	return t.status
}

// SetConfirmed marks the transaction as included into the block.
func (t *Transaction) SetConfirmed(height uint32, blockID uint64, index uint16) error {
	t.statusLock.Lock()
	defer t.statusLock.Unlock()
	if t.status.Confirmed || t.status.Failed {
		return ErrStatusSet
	}
	t.status.Confirmed = true
	t.status.Height = height
	t.status.BlockID = blockID
	t.status.Index = index
	return nil
}

// MarkFailed marks the transaction as failed with the given reason.
func (t *Transaction) MarkFailed(msg string) error {
	t.statusLock.Lock()
	defer t.statusLock.Unlock()
	if t.status.Confirmed || t.status.Failed {
		return ErrStatusSet
	}
	if msg == "" {
		msg = "unknown error"
	}
	t.status.Failed = true
	t.status.ErrorMessage = msg
	return nil
}

// Failed returns true if the transaction was marked as failed.
func (t *Transaction) Failed() bool {
	return t.GetStatus().Failed
}

// ErrorMessage returns the failure reason.
func (t *Transaction) ErrorMessage() string {
	return t.GetStatus().ErrorMessage
}
