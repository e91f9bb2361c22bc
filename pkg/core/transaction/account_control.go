package transaction

import (
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// EffectiveBalanceLeasing leases the sender forging balance to the recipient
// for Period blocks.
type EffectiveBalanceLeasing struct {
	Period uint16 `json:"period"`
}

// Kind implements the Attachment interface.
func (*EffectiveBalanceLeasing) Kind() Kind { return EffectiveBalanceLeasingKind }

// Version implements the Body interface.
func (*EffectiveBalanceLeasing) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (*EffectiveBalanceLeasing) Size() int { return 1 + 2 }

// FullSize implements the Body interface.
func (e *EffectiveBalanceLeasing) FullSize() int { return e.Size() }

// IsPhasable implements the Body interface.
func (*EffectiveBalanceLeasing) IsPhasable() bool { return true }

// EncodeBinary implements the io.Serializable interface.
func (e *EffectiveBalanceLeasing) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteU16LE(e.Period)
}

// DecodeBinary implements the io.Serializable interface.
func (e *EffectiveBalanceLeasing) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	e.Period = r.ReadU16LE()
}

// Verify implements the Body interface.
func (e *EffectiveBalanceLeasing) Verify(l *limits.Limits) error {
	if e.Period < l.MinLeasingPeriod || e.Period > l.MaxLeasingPeriod {
		return fmt.Errorf("invalid leasing period %d", e.Period)
	}
	return nil
}

// SetPhasingOnly sets (or removes with VotingModelNone) mandatory phasing
// for all transactions of the sender account.
type SetPhasingOnly struct {
	Params      PhasingParams `json:"params"`
	MaxFees     int64         `json:"maxFees"`
	MinDuration uint16        `json:"minDuration"`
	MaxDuration uint16        `json:"maxDuration"`
}

// Kind implements the Attachment interface.
func (*SetPhasingOnly) Kind() Kind { return SetPhasingOnlyKind }

// Version implements the Body interface.
func (*SetPhasingOnly) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (s *SetPhasingOnly) Size() int { return 1 + s.Params.size() + 8 + 2 + 2 }

// FullSize implements the Body interface.
func (s *SetPhasingOnly) FullSize() int { return s.Size() }

// IsPhasable implements the Body interface.
func (*SetPhasingOnly) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (s *SetPhasingOnly) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	s.Params.EncodeBinary(w)
	w.WriteU64LE(uint64(s.MaxFees))
	w.WriteU16LE(s.MinDuration)
	w.WriteU16LE(s.MaxDuration)
}

// DecodeBinary implements the io.Serializable interface.
func (s *SetPhasingOnly) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	s.Params.DecodeBinary(r)
	s.MaxFees = int64(r.ReadU64LE())
	s.MinDuration = r.ReadU16LE()
	s.MaxDuration = r.ReadU16LE()
}

// Verify implements the Body interface.
func (s *SetPhasingOnly) Verify(l *limits.Limits) error {
	if err := s.Params.Verify(l, true); err != nil {
		return err
	}
	if s.MaxFees < 0 {
		return fmt.Errorf("invalid max fees %d", s.MaxFees)
	}
	if s.MinDuration > s.MaxDuration && s.MaxDuration != 0 {
		return fmt.Errorf("invalid duration range [%d, %d]", s.MinDuration, s.MaxDuration)
	}
	if uint32(s.MaxDuration) > l.MaxPhasingDuration {
		return fmt.Errorf("max duration %d exceeds %d", s.MaxDuration, l.MaxPhasingDuration)
	}
	return nil
}

// RemovesControl returns true when the attachment lifts the phasing-only
// restriction.
func (s *SetPhasingOnly) RemovesControl() bool {
	return s.Params.VotingModel == VotingModelNone
}
