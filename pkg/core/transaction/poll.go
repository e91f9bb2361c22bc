package transaction

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// NoVote marks an option the voter abstains from.
const NoVote int8 = math.MinInt8

// PollCreation creates a new poll, its id is the id of the transaction.
type PollCreation struct {
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	Options            []string    `json:"options"`
	FinishHeight       uint32      `json:"finishHeight"`
	VotingModel        VotingModel `json:"votingModel"`
	MinNumberOfOptions uint8       `json:"minNumberOfOptions"`
	MaxNumberOfOptions uint8       `json:"maxNumberOfOptions"`
	MinRangeValue      int8        `json:"minRangeValue"`
	MaxRangeValue      int8        `json:"maxRangeValue"`
	MinBalance         int64       `json:"minBalance"`
	HoldingAsset       uint64      `json:"holdingAsset"`
}

// Kind implements the Attachment interface.
func (*PollCreation) Kind() Kind { return PollCreationKind }

// Version implements the Body interface.
func (*PollCreation) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (p *PollCreation) Size() int {
	sz := 1 + io.GetVarBytesSize(len(p.Name)) + io.GetVarBytesSize(len(p.Description)) +
		io.GetVarSize(len(p.Options))
	for _, o := range p.Options {
		sz += io.GetVarBytesSize(len(o))
	}
	return sz + 4 + 1 + 1 + 1 + 1 + 1 + 8 + 8
}

// FullSize implements the Body interface.
func (p *PollCreation) FullSize() int { return p.Size() }

// IsPhasable implements the Body interface.
func (*PollCreation) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (p *PollCreation) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteString(p.Name)
	w.WriteString(p.Description)
	w.WriteVarUint(uint64(len(p.Options)))
	for _, o := range p.Options {
		w.WriteString(o)
	}
	w.WriteU32LE(p.FinishHeight)
	w.WriteB(byte(p.VotingModel))
	w.WriteB(p.MinNumberOfOptions)
	w.WriteB(p.MaxNumberOfOptions)
	w.WriteB(byte(p.MinRangeValue))
	w.WriteB(byte(p.MaxRangeValue))
	w.WriteU64LE(uint64(p.MinBalance))
	w.WriteU64LE(p.HoldingAsset)
}

// DecodeBinary implements the io.Serializable interface.
func (p *PollCreation) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	p.Name = r.ReadString(maxFieldSize)
	p.Description = r.ReadString(maxFieldSize)
	n := r.ReadVarUint()
	if n > math.MaxUint8 {
		r.Err = fmt.Errorf("too many poll options: %d", n)
		return
	}
	p.Options = make([]string, 0, n)
	for i := 0; i < int(n) && r.Err == nil; i++ {
		p.Options = append(p.Options, r.ReadString(maxFieldSize))
	}
	p.FinishHeight = r.ReadU32LE()
	p.VotingModel = VotingModel(r.ReadB())
	p.MinNumberOfOptions = r.ReadB()
	p.MaxNumberOfOptions = r.ReadB()
	p.MinRangeValue = int8(r.ReadB())
	p.MaxRangeValue = int8(r.ReadB())
	p.MinBalance = int64(r.ReadU64LE())
	p.HoldingAsset = r.ReadU64LE()
}

// Verify implements the Body interface.
func (p *PollCreation) Verify(l *limits.Limits) error {
	if len(p.Name) == 0 || len(p.Name) > l.MaxPollNameLength {
		return fmt.Errorf("invalid poll name length %d", len(p.Name))
	}
	if len(p.Description) > l.MaxPollDescriptionLength {
		return fmt.Errorf("poll description is too long: %d > %d", len(p.Description), l.MaxPollDescriptionLength)
	}
	if len(p.Options) < l.MinPollOptionCount || len(p.Options) > l.MaxPollOptionCount {
		return fmt.Errorf("invalid number of poll options %d", len(p.Options))
	}
	for i, o := range p.Options {
		if len(o) == 0 || len(o) > l.MaxPollOptionLength {
			return fmt.Errorf("invalid length %d of poll option %d", len(o), i)
		}
		if !utf8.ValidString(o) {
			return fmt.Errorf("poll option %d is not valid UTF-8", i)
		}
	}
	if p.MinNumberOfOptions < 1 || p.MinNumberOfOptions > p.MaxNumberOfOptions ||
		int(p.MaxNumberOfOptions) > len(p.Options) {
		return fmt.Errorf("invalid selectable options range [%d, %d]", p.MinNumberOfOptions, p.MaxNumberOfOptions)
	}
	if p.MinRangeValue < 0 || p.MinRangeValue > p.MaxRangeValue || p.MaxRangeValue > l.MaxVoteValue {
		return fmt.Errorf("invalid vote value range [%d, %d]", p.MinRangeValue, p.MaxRangeValue)
	}
	switch p.VotingModel {
	case VotingModelAccount, VotingModelBalance:
		if p.HoldingAsset != 0 {
			return errors.New("holding asset is only allowed for asset voting model")
		}
	case VotingModelAsset:
		if p.HoldingAsset == 0 {
			return errors.New("asset voting model requires holding asset")
		}
	default:
		return fmt.Errorf("invalid poll voting model %s", p.VotingModel)
	}
	if p.MinBalance < 0 {
		return fmt.Errorf("invalid min balance %d", p.MinBalance)
	}
	if p.FinishHeight == 0 {
		return errors.New("poll finish height is not set")
	}
	return nil
}

// VoteCasting is a vote in a poll, one value per poll option.
type VoteCasting struct {
	PollID uint64 `json:"poll"`
	Votes  []int8 `json:"votes"`
}

// Kind implements the Attachment interface.
func (*VoteCasting) Kind() Kind { return VoteCastingKind }

// Version implements the Body interface.
func (*VoteCasting) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (v *VoteCasting) Size() int { return 1 + 8 + io.GetVarBytesSize(len(v.Votes)) }

// FullSize implements the Body interface.
func (v *VoteCasting) FullSize() int { return v.Size() }

// IsPhasable implements the Body interface.
func (*VoteCasting) IsPhasable() bool { return false }

// EncodeBinary implements the io.Serializable interface.
func (v *VoteCasting) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteU64LE(v.PollID)
	w.WriteVarUint(uint64(len(v.Votes)))
	for _, b := range v.Votes {
		w.WriteB(byte(b))
	}
}

// DecodeBinary implements the io.Serializable interface.
func (v *VoteCasting) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	v.PollID = r.ReadU64LE()
	b := r.ReadVarBytes(math.MaxUint8)
	v.Votes = make([]int8, len(b))
	for i := range b {
		v.Votes[i] = int8(b[i])
	}
}

// Verify implements the Body interface.
func (v *VoteCasting) Verify(l *limits.Limits) error {
	if v.PollID == 0 {
		return errors.New("poll id is not set")
	}
	if len(v.Votes) == 0 || len(v.Votes) > l.MaxPollOptionCount {
		return fmt.Errorf("invalid number of votes %d", len(v.Votes))
	}
	for i, b := range v.Votes {
		if b != NoVote && (b < 0 || b > l.MaxVoteValue) {
			return fmt.Errorf("invalid vote value %d for option %d", b, i)
		}
	}
	return nil
}
