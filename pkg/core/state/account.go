package state

import (
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Account represents the state of a ledger account.
type Account struct {
	ID util.Uint160
	// PublicKey is nil until the account sends its first transaction or it
	// is announced.
	PublicKey   *keys.PublicKey
	Balance     int64
	Name        string
	Description string
}

// NewAccount returns a new empty account.
func NewAccount(id util.Uint160) *Account {
	return &Account{ID: id}
}

// Copy returns a copy of the account, the public key is shared as it's
// immutable.
func (a *Account) Copy() *Account {
	c := *a
	return &c
}

// PhasingControl is a mandatory phasing set for the account, every
// transaction of the account must be phased with these parameters.
type PhasingControl struct {
	Account     util.Uint160
	VotingModel int8
	Quorum      int64
	MinBalance  int64
	Whitelist   []util.Uint160
	// MaxFees limits the total fees of the account pending phased
	// transactions, 0 means no limit.
	MaxFees     int64
	MinDuration uint16
	MaxDuration uint16
}

// Lease is an effective balance lease.
type Lease struct {
	Lessor     util.Uint160
	Lessee     util.Uint160
	FromHeight uint32
	ToHeight   uint32
}

// IsActive returns true if the lease is in effect at the given height.
func (l *Lease) IsActive(height uint32) bool {
	return height >= l.FromHeight && height < l.ToHeight
}
