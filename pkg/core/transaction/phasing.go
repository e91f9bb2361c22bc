package transaction

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// VotingModel defines how votes are weighted in polls and phasing.
type VotingModel int8

// Voting models.
const (
	// VotingModelNone means no control (used to remove phasing-only
	// restrictions).
	VotingModelNone VotingModel = -1
	// VotingModelAccount counts one vote per account.
	VotingModelAccount VotingModel = 0
	// VotingModelBalance weights votes by account balance.
	VotingModelBalance VotingModel = 1
	// VotingModelAsset weights votes by holding of an asset, polls only.
	VotingModelAsset VotingModel = 2
)

// String implements the fmt.Stringer interface.
func (v VotingModel) String() string {
	switch v {
	case VotingModelNone:
		return "none"
	case VotingModelAccount:
		return "account"
	case VotingModelBalance:
		return "balance"
	case VotingModelAsset:
		return "asset"
	default:
		return fmt.Sprintf("unknown(%d)", int8(v))
	}
}

// PhasingParams is a set of approval conditions for phased transactions and
// phasing-only account control.
type PhasingParams struct {
	VotingModel VotingModel    `json:"votingModel"`
	Quorum      int64          `json:"quorum"`
	MinBalance  int64          `json:"minBalance"`
	Whitelist   []util.Uint160 `json:"whitelist"`
}

func (p *PhasingParams) size() int {
	return 1 + 8 + 8 + io.GetVarSize(len(p.Whitelist)) + len(p.Whitelist)*util.Uint160Size
}

// EncodeBinary implements the io.Serializable interface.
func (p *PhasingParams) EncodeBinary(w *io.BinWriter) {
	w.WriteB(byte(p.VotingModel))
	w.WriteU64LE(uint64(p.Quorum))
	w.WriteU64LE(uint64(p.MinBalance))
	w.WriteVarUint(uint64(len(p.Whitelist)))
	for i := range p.Whitelist {
		w.WriteBytes(p.Whitelist[i][:])
	}
}

// DecodeBinary implements the io.Serializable interface.
func (p *PhasingParams) DecodeBinary(r *io.BinReader) {
	p.VotingModel = VotingModel(r.ReadB())
	p.Quorum = int64(r.ReadU64LE())
	p.MinBalance = int64(r.ReadU64LE())
	n := r.ReadVarUint()
	if n > 0xff {
		r.Err = fmt.Errorf("whitelist is too big: %d", n)
		return
	}
	if r.Err != nil || n == 0 {
		p.Whitelist = nil
		return
	}
	p.Whitelist = make([]util.Uint160, n)
	for i := range p.Whitelist {
		r.ReadBytes(p.Whitelist[i][:])
	}
}

// Verify checks structural rules of the parameters. VotingModelNone is only
// accepted when allowNone is set.
func (p *PhasingParams) Verify(l *limits.Limits, allowNone bool) error {
	switch p.VotingModel {
	case VotingModelNone:
		if !allowNone {
			return errors.New("voting model is not set")
		}
		if p.Quorum != 0 || p.MinBalance != 0 || len(p.Whitelist) != 0 {
			return errors.New("no-control parameters must be empty")
		}
		return nil
	case VotingModelAccount, VotingModelBalance:
	default:
		return fmt.Errorf("invalid phasing voting model %s", p.VotingModel)
	}
	if p.Quorum <= 0 {
		return fmt.Errorf("invalid quorum %d", p.Quorum)
	}
	if p.MinBalance < 0 {
		return fmt.Errorf("invalid min balance %d", p.MinBalance)
	}
	if len(p.Whitelist) > l.MaxPhasingWhitelistSize {
		return fmt.Errorf("whitelist is too big: %d > %d", len(p.Whitelist), l.MaxPhasingWhitelistSize)
	}
	seen := make(map[util.Uint160]struct{}, len(p.Whitelist))
	for _, a := range p.Whitelist {
		if a.IsZero() {
			return errors.New("zero account in whitelist")
		}
		if _, ok := seen[a]; ok {
			return fmt.Errorf("duplicate whitelist account %s", a)
		}
		seen[a] = struct{}{}
	}
	if p.VotingModel == VotingModelAccount && len(p.Whitelist) > 0 && p.Quorum > int64(len(p.Whitelist)) {
		return fmt.Errorf("quorum %d can't be reached with %d whitelisted accounts", p.Quorum, len(p.Whitelist))
	}
	return nil
}

// Phasing makes the transaction effect conditional on approval until the
// finish height.
type Phasing struct {
	FinishHeight uint32        `json:"finishHeight"`
	Params       PhasingParams `json:"params"`
}

// Flag implements the Appendix interface.
func (p *Phasing) Flag() Flag { return PhasingFlag }

// Version implements the Body interface.
func (p *Phasing) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (p *Phasing) Size() int { return 1 + 4 + p.Params.size() }

// FullSize implements the Body interface.
func (p *Phasing) FullSize() int { return p.Size() }

// IsPhasable implements the Body interface.
func (p *Phasing) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (p *Phasing) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteU32LE(p.FinishHeight)
	p.Params.EncodeBinary(w)
}

// DecodeBinary implements the io.Serializable interface.
func (p *Phasing) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	p.FinishHeight = r.ReadU32LE()
	p.Params.DecodeBinary(r)
}

// Verify implements the Body interface.
func (p *Phasing) Verify(l *limits.Limits) error {
	if p.FinishHeight == 0 {
		return errors.New("phasing finish height is not set")
	}
	return p.Params.Verify(l, false)
}
