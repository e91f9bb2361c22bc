package transaction

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// Message is a plain (text or binary) message appendix.
type Message struct {
	IsText bool   `json:"isText"`
	Data   []byte `json:"data"`
}

// NewTextMessage creates a text message appendix.
func NewTextMessage(s string) *Message {
	return &Message{IsText: true, Data: []byte(s)}
}

// Flag implements the Appendix interface.
func (m *Message) Flag() Flag { return MessageFlag }

// Version implements the Body interface.
func (m *Message) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (m *Message) Size() int { return 1 + 1 + io.GetVarBytesSize(len(m.Data)) }

// FullSize implements the Body interface.
func (m *Message) FullSize() int { return m.Size() }

// IsPhasable implements the Body interface.
func (m *Message) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (m *Message) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteBool(m.IsText)
	w.WriteVarBytes(m.Data)
}

// DecodeBinary implements the io.Serializable interface.
func (m *Message) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	m.IsText = r.ReadBool()
	m.Data = r.ReadVarBytes(maxFieldSize)
}

// Verify implements the Body interface.
func (m *Message) Verify(l *limits.Limits) error {
	if len(m.Data) > l.MaxMessageLength {
		return fmt.Errorf("message is too long: %d > %d", len(m.Data), l.MaxMessageLength)
	}
	if m.IsText && !utf8.Valid(m.Data) {
		return errors.New("text message is not valid UTF-8")
	}
	return nil
}

// MessageLength returns the length of the message payload.
func (m *Message) MessageLength() int { return len(m.Data) }
