package ledger

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// ErrInsufficientBalance is returned when an effect would make a balance
// negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

type (
	assetKey struct {
		acc   util.Uint160
		asset uint64
	}

	voteKey struct {
		poll  uint64
		voter util.Uint160
	}

	// ledgerState is an unlocked account state, it implements
	// blockchainer.StateWriter for transaction kind handlers.
	ledgerState struct {
		registry *txtype.Registry
		// height is the height effects are applied at.
		height uint32

		accounts      map[util.Uint160]*state.Account
		assetBalances map[assetKey]int64
		assets        map[uint64]*state.Asset
		aliases       map[string]*state.Alias
		polls         map[uint64]*state.Poll
		votes         map[voteKey]struct{}
		controls      map[util.Uint160]*state.PhasingControl
		leases        map[util.Uint160]*state.Lease
	}
)

func newLedgerState(reg *txtype.Registry) *ledgerState {
	return &ledgerState{
		registry:      reg,
		accounts:      make(map[util.Uint160]*state.Account),
		assetBalances: make(map[assetKey]int64),
		assets:        make(map[uint64]*state.Asset),
		aliases:       make(map[string]*state.Alias),
		polls:         make(map[uint64]*state.Poll),
		votes:         make(map[voteKey]struct{}),
		controls:      make(map[util.Uint160]*state.PhasingControl),
		leases:        make(map[util.Uint160]*state.Lease),
	}
}

func (s *ledgerState) GetBalance(acc util.Uint160) int64 {
	if a, ok := s.accounts[acc]; ok {
		return a.Balance
	}
	return 0
}

func (s *ledgerState) GetAccount(acc util.Uint160) *state.Account {
	return s.accounts[acc]
}

func (s *ledgerState) GetAssetBalance(acc util.Uint160, asset uint64) int64 {
	return s.assetBalances[assetKey{acc, asset}]
}

func (s *ledgerState) GetAsset(id uint64) *state.Asset {
	return s.assets[id]
}

func (s *ledgerState) GetAlias(name string) *state.Alias {
	return s.aliases[name]
}

func (s *ledgerState) GetPoll(id uint64) *state.Poll {
	return s.polls[id]
}

func (s *ledgerState) HasVoted(poll uint64, voter util.Uint160) bool {
	_, ok := s.votes[voteKey{poll, voter}]
	return ok
}

func (s *ledgerState) GetPhasingControl(acc util.Uint160) *state.PhasingControl {
	return s.controls[acc]
}

func (s *ledgerState) GetLease(acc util.Uint160) *state.Lease {
	return s.leases[acc]
}

func (s *ledgerState) account(acc util.Uint160) *state.Account {
	a, ok := s.accounts[acc]
	if !ok {
		a = state.NewAccount(acc)
		s.accounts[acc] = a
	}
	return a
}

func (s *ledgerState) AddBalance(acc util.Uint160, delta int64) error {
	a := s.account(acc)
	nb := a.Balance + delta
	if nb < 0 {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, acc.StringBE(), a.Balance, -delta)
	}
	if nb > limits.MaxBalance {
		return fmt.Errorf("balance of %s overflows", acc.StringBE())
	}
	a.Balance = nb
	return nil
}

func (s *ledgerState) AddAssetBalance(acc util.Uint160, asset uint64, delta int64) error {
	k := assetKey{acc, asset}
	nb := s.assetBalances[k] + delta
	if nb < 0 {
		return fmt.Errorf("%w: asset %d of %s", ErrInsufficientBalance, asset, acc.StringBE())
	}
	if nb == 0 {
		delete(s.assetBalances, k)
	} else {
		s.assetBalances[k] = nb
	}
	return nil
}

func (s *ledgerState) SetPublicKey(acc util.Uint160, pk *keys.PublicKey) {
	a := s.account(acc)
	if a.PublicKey == nil {
		a.PublicKey = pk
	}
}

func (s *ledgerState) SetAccountInfo(acc util.Uint160, name, description string) {
	a := s.account(acc)
	a.Name = name
	a.Description = description
}

func (s *ledgerState) PutAsset(a *state.Asset) {
	s.assets[a.ID] = a
}

func (s *ledgerState) PutAlias(a *state.Alias) {
	s.aliases[a.Name] = a
}

func (s *ledgerState) PutPoll(p *state.Poll) {
	s.polls[p.ID] = p
}

func (s *ledgerState) AddVote(poll uint64, voter util.Uint160) {
	s.votes[voteKey{poll, voter}] = struct{}{}
}

func (s *ledgerState) SetPhasingControl(acc util.Uint160, c *state.PhasingControl) {
	if c == nil {
		delete(s.controls, acc)
		return
	}
	s.controls[acc] = c
}

func (s *ledgerState) PutLease(l *state.Lease) {
	s.leases[l.Lessor] = l
}

// ApplyEffects moves the amount and the fee, registers public keys and
// applies kind-specific effects. Balances are checked before any change.
func (s *ledgerState) ApplyEffects(tx *transaction.Transaction, sender, recipient util.Uint160) error {
	if b := s.GetBalance(sender); b < tx.Cost() {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, sender.StringBE(), b, tx.Cost())
	}
	if err := s.AddBalance(sender, -tx.Cost()); err != nil {
		return err
	}
	s.SetPublicKey(sender, tx.SenderPublicKey)
	if tx.HasRecipient() {
		if err := s.AddBalance(recipient, tx.Amount); err != nil {
			return err
		}
		if a, ok := tx.GetAppendix(transaction.PublicKeyAnnouncementFlag).(*transaction.PublicKeyAnnouncement); ok {
			s.SetPublicKey(recipient, a.PublicKey)
		}
	}
	return s.registry.Apply(s, s.height, tx, sender, recipient)
}
