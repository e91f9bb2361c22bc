package txtype

import (
	"fmt"
	"sort"

	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/core/blockchainer"
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

type (
	// Behavior is a table entry describing the rules and effects of a single
	// transaction kind. Any of the functions can be nil.
	Behavior struct {
		Kind transaction.Kind
		// CanHaveRecipient allows a non-zero recipient.
		CanHaveRecipient bool
		// MustHaveRecipient requires a non-zero recipient.
		MustHaveRecipient bool
		// ZeroAmount requires Amount to be zero, otherwise it must be
		// positive.
		ZeroAmount bool
		// Check performs kind-specific state-independent checks.
		Check func(tx *transaction.Transaction, l *limits.Limits) error
		// Validate performs kind-specific checks against the ledger at the
		// given height.
		Validate func(l blockchainer.Ledger, height uint32, tx *transaction.Transaction) error
		// Apply applies kind-specific effects, balances are handled by the
		// ledger.
		Apply func(w blockchainer.StateWriter, height uint32, tx *transaction.Transaction, sender, recipient util.Uint160) error
		// DuplicateKeys returns keys that can't be shared by two unconfirmed
		// transactions. control is the sender phasing-only control (if any).
		DuplicateKeys func(tx *transaction.Transaction, control *state.PhasingControl) []string
	}

	// Registry maps transaction kinds to their behaviors.
	Registry struct {
		cfg       config.ProtocolConfiguration
		behaviors map[transaction.Kind]*Behavior
	}
)

// Name returns the kind name used in fee schedules.
func (b *Behavior) Name() string {
	return b.Kind.String()
}

// NewRegistry creates an empty registry using the given protocol
// configuration for fees.
func NewRegistry(cfg config.ProtocolConfiguration) *Registry {
	return &Registry{
		cfg:       cfg,
		behaviors: make(map[transaction.Kind]*Behavior),
	}
}

// DefaultRegistry returns a registry with all known kinds registered.
func DefaultRegistry(cfg config.ProtocolConfiguration) *Registry {
	r := NewRegistry(cfg)
	for _, b := range defaultBehaviors() {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a behavior, every kind can be registered only once.
func (r *Registry) Register(b *Behavior) error {
	if _, ok := r.behaviors[b.Kind]; ok {
		return fmt.Errorf("kind %s is already registered", b.Kind)
	}
	r.behaviors[b.Kind] = b
	return nil
}

// Get returns the behavior of the given kind.
func (r *Registry) Get(k transaction.Kind) (*Behavior, bool) {
	b, ok := r.behaviors[k]
	return b, ok
}

// Kinds returns all registered kinds sorted by type and subtype.
func (r *Registry) Kinds() []transaction.Kind {
	res := make([]transaction.Kind, 0, len(r.behaviors))
	for k := range r.behaviors {
		res = append(res, k)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Type != res[j].Type {
			return res[i].Type < res[j].Type
		}
		return res[i].Subtype < res[j].Subtype
	})
	return res
}

// Config returns the protocol configuration of the registry.
func (r *Registry) Config() config.ProtocolConfiguration {
	return r.cfg
}

func (r *Registry) mustGet(tx *transaction.Transaction) (*Behavior, error) {
	b, ok := r.behaviors[tx.Kind()]
	if !ok {
		return nil, transaction.NotValidf("unknown transaction kind %s", tx.Kind())
	}
	return b, nil
}

// Check performs kind-specific state-independent checks: recipient and
// amount rules, phasing permission and the kind Check function.
func (r *Registry) Check(tx *transaction.Transaction) error {
	b, err := r.mustGet(tx)
	if err != nil {
		return err
	}
	switch {
	case b.MustHaveRecipient && !tx.HasRecipient():
		return transaction.NotValidf("%s requires a recipient", b.Name())
	case !b.CanHaveRecipient && !b.MustHaveRecipient && tx.HasRecipient():
		return transaction.NotValidf("%s can't have a recipient", b.Name())
	case b.ZeroAmount && tx.Amount != 0:
		return transaction.NotValidf("%s must have zero amount", b.Name())
	case !b.ZeroAmount && tx.Amount <= 0:
		return transaction.NotValidf("%s must have positive amount", b.Name())
	case tx.Amount > limits.MaxBalance:
		return transaction.NotValidf("amount %d is too big", tx.Amount)
	case tx.Phasing() != nil && !tx.Attachment.IsPhasable():
		return transaction.NotValidf("%s can't be phased", b.Name())
	}
	if b.Check != nil {
		if err := b.Check(tx, &r.cfg.Limits); err != nil {
			return err
		}
	}
	return nil
}

// Validate performs kind-specific checks against the ledger.
func (r *Registry) Validate(l blockchainer.Ledger, height uint32, tx *transaction.Transaction) error {
	b, err := r.mustGet(tx)
	if err != nil {
		return err
	}
	if b.Validate == nil {
		return nil
	}
	return b.Validate(l, height, tx)
}

// Apply applies kind-specific effects of the transaction.
func (r *Registry) Apply(w blockchainer.StateWriter, height uint32, tx *transaction.Transaction, sender, recipient util.Uint160) error {
	b, err := r.mustGet(tx)
	if err != nil {
		return err
	}
	if b.Apply == nil {
		return nil
	}
	return b.Apply(w, height, tx, sender, recipient)
}

// DuplicateKeys returns duplicate keys of the transaction, it's nil for
// kinds that can be freely mixed.
func (r *Registry) DuplicateKeys(tx *transaction.Transaction, control *state.PhasingControl) []string {
	b, ok := r.behaviors[tx.Kind()]
	if !ok || b.DuplicateKeys == nil {
		return nil
	}
	return b.DuplicateKeys(tx, control)
}

type messageLengther interface {
	MessageLength() int
}

// MinimumFee returns the minimum fee of the transaction under the fee
// schedule active at the given height.
func (r *Registry) MinimumFee(tx *transaction.Transaction, height uint32) int64 {
	sched := r.cfg.FeeScheduleAt(height)
	fee := sched.BaseFee
	if f, ok := sched.KindFees[tx.Kind().String()]; ok {
		fee = f
	}
	for _, a := range tx.Appendices {
		switch a := a.(type) {
		case *transaction.Phasing:
			fee += sched.PhasingFee
		case messageLengther:
			chunks := (int64(a.MessageLength()) + 31) / 32
			fee += chunks * sched.MessageChunkFee
		}
	}
	return fee
}
