/*
Package verifier implements two-phase transaction validation. State
independent checks use only the transaction itself, state dependent ones
need the current chain and ledger state and are re-run while the
transaction stays unconfirmed.
*/
package verifier

import (
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/core/blockchainer"
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
)

// Verifier checks transactions against protocol rules.
type Verifier struct {
	registry *txtype.Registry
	cfg      config.ProtocolConfiguration
}

// New returns a verifier using the given kind registry (and its protocol
// configuration).
func New(reg *txtype.Registry) *Verifier {
	return &Verifier{
		registry: reg,
		cfg:      reg.Config(),
	}
}

// Registry returns the kind registry used.
func (v *Verifier) Registry() *txtype.Registry {
	return v.registry
}

// VerifyStateIndependent performs checks that only depend on the transaction
// bytes. Any failure is permanent.
func (v *Verifier) VerifyStateIndependent(tx *transaction.Transaction) error {
	l := &v.cfg.Limits
	if tx.Version != transaction.CurrentVersion {
		return transaction.NotValidf("unsupported version %d", tx.Version)
	}
	if tx.SenderPublicKey == nil {
		return transaction.NotValidf("no sender public key")
	}
	if err := v.registry.Check(tx); err != nil {
		return err
	}
	if tx.Deadline < 1 || tx.Deadline > l.MaxDeadline {
		return transaction.NotValidf("invalid deadline %d", tx.Deadline)
	}
	if tx.Fee < 0 || tx.Fee > limits.MaxBalance {
		return transaction.NotValidf("invalid fee %d", tx.Fee)
	}
	if sz := tx.PayloadSize(); sz > l.MaxPayloadSize {
		return transaction.NotValidf("payload is too big: %d > %d", sz, l.MaxPayloadSize)
	}
	if err := tx.Attachment.Verify(l); err != nil {
		return transaction.NotValidf("%s: %w", tx.Kind(), err)
	}
	for _, a := range tx.Appendices {
		if e, ok := a.(transaction.Encryptable); ok && !e.IsEncrypted() {
			return transaction.NotValidf("%s is not encrypted", a.Flag())
		}
		if err := a.Verify(l); err != nil {
			return transaction.NotValidf("%s: %w", a.Flag(), err)
		}
	}
	if !tx.VerifySignature() {
		return transaction.NotValidf("invalid signature")
	}
	return nil
}

// VerifyStateDependent performs checks against the current chain and ledger
// state. Timing-related and balance failures are transient, the ones that
// only need time to pass are deferrable (see transaction.IsDeferred).
func (v *Verifier) VerifyStateDependent(chain blockchainer.Chain, ledger blockchainer.Ledger, tx *transaction.Transaction) error {
	now := chain.EpochTime()
	if tx.Timestamp > now+v.cfg.MaxTimestampDrift {
		return transaction.NotYetValidf("timestamp %d is ahead of epoch time %d", tx.Timestamp, now)
	}
	if tx.IsExpired(now) {
		return transaction.NotCurrentlyValidf("expired at %d, now %d", tx.Expiration(), now)
	}

	height := chain.BlockHeight()
	if err := v.verifyECBlock(chain, height, tx); err != nil {
		return err
	}
	if minFee := v.registry.MinimumFee(tx, height); tx.Fee < minFee {
		return transaction.NotValidf("fee %d is less than minimum %d", tx.Fee, minFee)
	}

	sender := tx.Sender()
	if acc := ledger.GetAccount(sender); acc != nil && acc.PublicKey != nil &&
		!acc.PublicKey.Equal(tx.SenderPublicKey) {
		return transaction.NotValidf("sender public key mismatch")
	}
	if b := ledger.GetBalance(sender); b < tx.Cost() {
		return transaction.NotCurrentlyValidf("insufficient balance: %d < %d", b, tx.Cost())
	}
	if p := tx.Phasing(); p != nil {
		if p.FinishHeight <= height || p.FinishHeight > height+v.cfg.Limits.MaxPhasingDuration {
			return transaction.NotCurrentlyValidf("invalid phasing finish height %d at height %d", p.FinishHeight, height)
		}
	}
	if c := ledger.GetPhasingControl(sender); c != nil {
		if err := verifyControl(c, height, tx); err != nil {
			return err
		}
	}
	return v.registry.Validate(ledger, height, tx)
}

// Verify runs both phases.
func (v *Verifier) Verify(chain blockchainer.Chain, ledger blockchainer.Ledger, tx *transaction.Transaction) error {
	if err := v.VerifyStateIndependent(tx); err != nil {
		return err
	}
	return v.VerifyStateDependent(chain, ledger, tx)
}

func (v *Verifier) verifyECBlock(chain blockchainer.Chain, height uint32, tx *transaction.Transaction) error {
	if tx.ECBlockHeight > height {
		return transaction.NotYetValidf("EC block %d is above current height %d", tx.ECBlockHeight, height)
	}
	if height-tx.ECBlockHeight > v.cfg.ECBlockDepth {
		return transaction.NotCurrentlyValidf("EC block %d is too old", tx.ECBlockHeight)
	}
	id, ok := chain.GetBlockID(tx.ECBlockHeight)
	if !ok || id != tx.ECBlockID {
		return transaction.NotYetValidf("EC block id doesn't match block at %d", tx.ECBlockHeight)
	}
	return nil
}

// verifyControl checks the transaction against the sender phasing-only
// control: it must be phased with the same parameters.
func verifyControl(c *state.PhasingControl, height uint32, tx *transaction.Transaction) error {
	p := tx.Phasing()
	if p == nil {
		return transaction.NotCurrentlyValidf("account is phasing-controlled, transaction must be phased")
	}
	if int8(p.Params.VotingModel) != c.VotingModel || p.Params.Quorum != c.Quorum ||
		p.Params.MinBalance != c.MinBalance || len(p.Params.Whitelist) != len(c.Whitelist) {
		return transaction.NotCurrentlyValidf("phasing parameters don't match account control")
	}
	for i := range c.Whitelist {
		if !c.Whitelist[i].Equals(p.Params.Whitelist[i]) {
			return transaction.NotCurrentlyValidf("phasing whitelist doesn't match account control")
		}
	}
	d := p.FinishHeight - height
	if c.MinDuration != 0 && d < uint32(c.MinDuration) || c.MaxDuration != 0 && d > uint32(c.MaxDuration) {
		return transaction.NotCurrentlyValidf("phasing duration %d is out of [%d, %d]", d, c.MinDuration, c.MaxDuration)
	}
	if c.MaxFees != 0 && tx.Fee > c.MaxFees {
		return transaction.NotCurrentlyValidf("fee %d exceeds account control limit %d", tx.Fee, c.MaxFees)
	}
	return nil
}
