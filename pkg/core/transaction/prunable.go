package transaction

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// PrunablePayload is either FullPayload or HashOnly.
type PrunablePayload interface {
	// Commitment returns the hash the transaction signature covers.
	Commitment() util.Uint256
	isPrunablePayload()
}

// FullPayload is a prunable payload with data available.
type FullPayload []byte

// HashOnly is a pruned payload, only the commitment is known.
type HashOnly util.Uint256

// Commitment implements the PrunablePayload interface.
func (p FullPayload) Commitment() util.Uint256 { return hash.Blake3(p) }

// Commitment implements the PrunablePayload interface.
func (h HashOnly) Commitment() util.Uint256 { return util.Uint256(h) }

func (FullPayload) isPrunablePayload() {}
func (HashOnly) isPrunablePayload()    {}

// PrunableSource provides pruned data by its commitment.
type PrunableSource interface {
	GetPrunable(ctx context.Context, commitment util.Uint256) ([]byte, error)
}

// PrunablePlainMessage is a plain message that can be pruned after the
// retention period.
type PrunablePlainMessage struct {
	IsText  bool            `json:"isText"`
	Length  uint32          `json:"length"`
	Payload PrunablePayload `json:"-"`
}

// NewPrunablePlainMessage creates a full prunable message.
func NewPrunablePlainMessage(data []byte, isText bool) *PrunablePlainMessage {
	return &PrunablePlainMessage{
		IsText:  isText,
		Length:  uint32(len(data)),
		Payload: FullPayload(data),
	}
}

// Flag implements the Appendix interface.
func (m *PrunablePlainMessage) Flag() Flag { return PrunablePlainMessageFlag }

// Version implements the Body interface.
func (m *PrunablePlainMessage) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (m *PrunablePlainMessage) Size() int { return 1 + 1 + 4 + util.Uint256Size }

// FullSize implements the Body interface.
func (m *PrunablePlainMessage) FullSize() int { return m.Size() + int(m.Length) }

// IsPhasable implements the Body interface.
func (m *PrunablePlainMessage) IsPhasable() bool { return false }

// Commitment implements the Prunable interface.
func (m *PrunablePlainMessage) Commitment() util.Uint256 {
	if m.Payload == nil {
		return util.Uint256{}
	}
	return m.Payload.Commitment()
}

// HasPrunableData implements the Prunable interface.
func (m *PrunablePlainMessage) HasPrunableData() bool {
	_, ok := m.Payload.(FullPayload)
	return ok
}

// Data returns the message data if it's available.
func (m *PrunablePlainMessage) Data() ([]byte, bool) {
	p, ok := m.Payload.(FullPayload)
	return p, ok
}

// MessageLength returns the declared length of the message payload.
func (m *PrunablePlainMessage) MessageLength() int { return int(m.Length) }

// EncodeBinary implements the io.Serializable interface. Only the commitment
// is written here, the data travel in the prunable section.
func (m *PrunablePlainMessage) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteBool(m.IsText)
	w.WriteU32LE(m.Length)
	c := m.Commitment()
	w.WriteBytes(c[:])
}

// DecodeBinary implements the io.Serializable interface.
func (m *PrunablePlainMessage) DecodeBinary(r *io.BinReader) {
	var c util.Uint256
	readVersion(r)
	m.IsText = r.ReadBool()
	m.Length = r.ReadU32LE()
	r.ReadBytes(c[:])
	m.Payload = HashOnly(c)
}

func (m *PrunablePlainMessage) encodePrunable(w *io.BinWriter) {
	data, ok := m.Data()
	w.WriteBool(ok)
	if ok {
		w.WriteVarBytes(data)
	}
}

func (m *PrunablePlainMessage) decodePrunable(r *io.BinReader) {
	if !r.ReadBool() {
		return
	}
	data := r.ReadVarBytes(maxFieldSize)
	if r.Err != nil {
		return
	}
	r.Err = m.restore(data)
}

func (m *PrunablePlainMessage) restore(data []byte) error {
	if uint32(len(data)) != m.Length {
		return fmt.Errorf("prunable data length mismatch: %d != %d", len(data), m.Length)
	}
	if hash.Blake3(data) != m.Commitment() {
		return errors.New("prunable data doesn't match commitment")
	}
	m.Payload = FullPayload(data)
	return nil
}

// Materialize returns a copy of the message with the full payload restored
// from src. It fails with ErrPrunableUnavailable if now is past
// availableUntil or the source has no matching data.
func (m *PrunablePlainMessage) Materialize(ctx context.Context, src PrunableSource, availableUntil, now uint32) (*PrunablePlainMessage, error) {
	if m.HasPrunableData() {
		return m, nil
	}
	if now > availableUntil {
		return nil, fmt.Errorf("%w: retention window passed", ErrPrunableUnavailable)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrPrunableUnavailable)
	}
	data, err := src.GetPrunable(ctx, m.Commitment())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrunableUnavailable, err)
	}
	res := *m
	if err := res.restore(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrunableUnavailable, err)
	}
	return &res, nil
}

// Verify implements the Body interface.
func (m *PrunablePlainMessage) Verify(l *limits.Limits) error {
	if m.Payload == nil {
		return errors.New("prunable message has no payload")
	}
	if m.Length == 0 {
		return errors.New("empty prunable message")
	}
	if int(m.Length) > l.MaxPrunableMessageLength {
		return fmt.Errorf("prunable message is too long: %d > %d", m.Length, l.MaxPrunableMessageLength)
	}
	if data, ok := m.Data(); ok {
		if uint32(len(data)) != m.Length {
			return fmt.Errorf("prunable data length mismatch: %d != %d", len(data), m.Length)
		}
		if m.IsText && !utf8.Valid(data) {
			return errors.New("text message is not valid UTF-8")
		}
	}
	return nil
}
