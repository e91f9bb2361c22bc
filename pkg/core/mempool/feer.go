package mempool

import (
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Feer is an interface that abstracts the implementation of the balance
// source used to check that senders can pay for pooled transactions.
type Feer interface {
	GetBalance(util.Uint160) int64
	BlockHeight() uint32
}
