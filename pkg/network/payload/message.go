/*
Package payload contains the announcement message exchanged by relaying
nodes.
*/
package payload

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// MaxSize is the maximum size of the message payload.
const MaxSize = 0x02000000

// MessageFlag represents compression level of a message payload.
type MessageFlag byte

// Possible message flags.
const (
	Compressed MessageFlag = 1 << iota
	None       MessageFlag = 0
)

// Message is an announcement of transactions sent to peers.
type Message struct {
	// Magic of the network the sender is a part of.
	Magic netmode.Magic
	Flags MessageFlag
	// Transactions is the decoded payload.
	Transactions *Transactions
}

// NewMessage returns a new announcement of the given transactions.
func NewMessage(magic netmode.Magic, txs []*transaction.Transaction) *Message {
	return &Message{
		Magic:        magic,
		Transactions: &Transactions{Values: txs},
	}
}

// Bytes serializes the message, payloads of at least threshold bytes are
// compressed. Zero threshold disables compression.
func (m *Message) Bytes(threshold int) ([]byte, error) {
	if m.Transactions == nil || len(m.Transactions.Values) == 0 {
		return nil, errors.New("empty announcement")
	}
	if len(m.Transactions.Values) > MaxBatchSize {
		return nil, fmt.Errorf("too many transactions: %d", len(m.Transactions.Values))
	}
	buf := io.NewBufBinWriter()
	m.Transactions.EncodeBinary(buf.BinWriter)
	if buf.Err != nil {
		return nil, buf.Err
	}
	data := buf.Bytes()
	m.Flags = None
	if threshold > 0 && len(data) >= threshold {
		c, err := Compress(data)
		if err == nil && len(c) != 0 && len(c) < len(data) {
			data = c
			m.Flags |= Compressed
		}
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("payload is too big: %d", len(data))
	}
	w := io.NewBufBinWriter()
	w.WriteU32LE(uint32(m.Magic))
	w.WriteB(byte(m.Flags))
	w.WriteVarBytes(data)
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Bytes(), nil
}

// DecodeMessage decodes the message checking it belongs to the given
// network.
func DecodeMessage(b []byte, magic netmode.Magic) (*Message, error) {
	r := io.NewBinReaderFromBuf(b)
	m := &Message{
		Magic: netmode.Magic(r.ReadU32LE()),
		Flags: MessageFlag(r.ReadB()),
	}
	data := r.ReadVarBytes(MaxSize)
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Len() != 0 {
		return nil, errors.New("extra data after the payload")
	}
	if m.Magic != magic {
		return nil, fmt.Errorf("invalid network magic %s", m.Magic)
	}
	if m.Flags&Compressed != 0 {
		var err error
		data, err = Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress: %w", err)
		}
	}
	m.Transactions = new(Transactions)
	pr := io.NewBinReaderFromBuf(data)
	m.Transactions.DecodeBinary(pr)
	if pr.Err != nil {
		return nil, pr.Err
	}
	if pr.Len() != 0 {
		return nil, errors.New("extra data after transactions")
	}
	return m, nil
}
