package payload

import (
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// MaxBatchSize is the maximum number of transactions in a single
// announcement.
const MaxBatchSize = 512

// Transactions is a batch of announced transactions.
type Transactions struct {
	Values []*transaction.Transaction
}

// EncodeBinary implements the io.Serializable interface.
func (t *Transactions) EncodeBinary(w *io.BinWriter) {
	w.WriteVarUint(uint64(len(t.Values)))
	for _, tx := range t.Values {
		tx.EncodeBinary(w)
	}
}

// DecodeBinary implements the io.Serializable interface. Empty and oversized
// batches are rejected.
func (t *Transactions) DecodeBinary(r *io.BinReader) {
	n := r.ReadVarUint()
	switch {
	case r.Err != nil:
		return
	case n == 0:
		r.Err = fmt.Errorf("empty batch")
		return
	case n > MaxBatchSize:
		r.Err = fmt.Errorf("batch is too big: %d > %d", n, MaxBatchSize)
		return
	}
	t.Values = make([]*transaction.Transaction, 0, n)
	for i := uint64(0); i < n && r.Err == nil; i++ {
		tx := new(transaction.Transaction)
		tx.DecodeBinary(r)
		if r.Err != nil {
			r.Err = fmt.Errorf("transaction #%d: %w", i, r.Err)
			return
		}
		t.Values = append(t.Values, tx)
	}
}
