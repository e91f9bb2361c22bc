package blockchainer

import (
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Chain is an interface that abstracts the implementation of the chain
// state as seen by the transaction pool.
type Chain interface {
	// HasTransaction returns true if the transaction is already included
	// into a block.
	HasTransaction(id uint64) bool
	BlockHeight() uint32
	// EpochTime returns current epoch time in seconds.
	EpochTime() uint32
	GetBlockID(height uint32) (uint64, bool)
}

// Ledger is an interface that abstracts the implementation of the account
// state. Getters return nil for missing entities, returned values must not
// be changed by the caller.
type Ledger interface {
	GetBalance(acc util.Uint160) int64
	GetAccount(acc util.Uint160) *state.Account
	GetAssetBalance(acc util.Uint160, asset uint64) int64
	GetAsset(id uint64) *state.Asset
	GetAlias(name string) *state.Alias
	GetPoll(id uint64) *state.Poll
	HasVoted(poll uint64, voter util.Uint160) bool
	GetPhasingControl(acc util.Uint160) *state.PhasingControl
	GetLease(acc util.Uint160) *state.Lease
	// ApplyEffects applies the transaction to the ledger state.
	ApplyEffects(tx *transaction.Transaction, sender, recipient util.Uint160) error
}

// StateWriter is a Ledger that can be changed by transaction kind handlers.
type StateWriter interface {
	Ledger
	AddBalance(acc util.Uint160, delta int64) error
	AddAssetBalance(acc util.Uint160, asset uint64, delta int64) error
	SetPublicKey(acc util.Uint160, pk *keys.PublicKey)
	SetAccountInfo(acc util.Uint160, name, description string)
	PutAsset(a *state.Asset)
	PutAlias(a *state.Alias)
	PutPoll(p *state.Poll)
	AddVote(poll uint64, voter util.Uint160)
	// SetPhasingControl sets the control for the account, nil removes it.
	SetPhasingControl(acc util.Uint160, c *state.PhasingControl)
	PutLease(l *state.Lease)
}

// Blockchainer is a combination of Chain and Ledger provided by the node.
type Blockchainer interface {
	Chain
	Ledger
}

// Broadcaster sends transactions to some peers, it's best-effort and never
// blocks the caller.
type Broadcaster interface {
	SendToSomePeers(txs []*transaction.Transaction)
}
