package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
)

// ProtocolConfiguration represents the protocol config.
type (
	ProtocolConfiguration struct {
		Magic netmode.Magic `yaml:"Magic"`
		// MaxTimestampDrift is the number of seconds a transaction timestamp
		// may lead the current epoch time.
		MaxTimestampDrift uint32 `yaml:"MaxTimestampDrift"`
		// ECBlockDepth is the maximum age (in blocks) of the block a
		// transaction is bound to.
		ECBlockDepth uint32 `yaml:"ECBlockDepth"`
		// GenesisTimestamp is the unix time (seconds) of epoch zero.
		GenesisTimestamp int64 `yaml:"GenesisTimestamp"`
		// PrunableRetention is the number of seconds prunable payloads are
		// kept after the transaction timestamp.
		PrunableRetention uint32 `yaml:"PrunableRetention"`
		// FeeSchedules is the list of height-versioned fee schedules.
		FeeSchedules []FeeSchedule `yaml:"FeeSchedules"`
		Limits       limits.Limits `yaml:"Limits"`
	}

	// FeeSchedule describes minimum fees starting from the given height.
	FeeSchedule struct {
		FromHeight uint32 `yaml:"FromHeight"`
		// BaseFee applies to every kind not listed in KindFees.
		BaseFee int64 `yaml:"BaseFee"`
		// KindFees overrides BaseFee per transaction kind name.
		KindFees map[string]int64 `yaml:"KindFees"`
		// MessageChunkFee is charged per started 32-byte chunk of message
		// appendices.
		MessageChunkFee int64 `yaml:"MessageChunkFee"`
		// PhasingFee is a flat fee for a Phasing appendix.
		PhasingFee int64 `yaml:"PhasingFee"`
	}
)

// DefaultFeeSchedule is used when no schedules are configured.
var DefaultFeeSchedule = FeeSchedule{
	BaseFee:         100_000_000,
	MessageChunkFee: 1_000_000,
	PhasingFee:      100_000_000,
}

// FeeScheduleAt returns the schedule active at the given height (the one with
// the highest FromHeight not exceeding it).
func (p ProtocolConfiguration) FeeScheduleAt(height uint32) FeeSchedule {
	res := DefaultFeeSchedule
	for _, s := range p.FeeSchedules {
		if s.FromHeight > height {
			break
		}
		res = s
	}
	return res
}

// Validate checks ProtocolConfiguration for internal consistency and returns
// an error if anything inappropriate found. Other methods can rely on protocol
// validity after this.
func (p *ProtocolConfiguration) Validate() error {
	if p.Limits.MaxPayloadSize <= 0 {
		return errors.New("MaxPayloadSize must be positive")
	}
	if p.Limits.MaxDeadline == 0 {
		return errors.New("MaxDeadline must be positive")
	}
	if !sort.SliceIsSorted(p.FeeSchedules, func(i, j int) bool {
		return p.FeeSchedules[i].FromHeight < p.FeeSchedules[j].FromHeight
	}) {
		return errors.New("FeeSchedules must be sorted by FromHeight")
	}
	for i := 1; i < len(p.FeeSchedules); i++ {
		if p.FeeSchedules[i].FromHeight == p.FeeSchedules[i-1].FromHeight {
			return fmt.Errorf("duplicate fee schedule for height %d", p.FeeSchedules[i].FromHeight)
		}
	}
	for _, s := range p.FeeSchedules {
		if s.BaseFee < 0 || s.MessageChunkFee < 0 || s.PhasingFee < 0 {
			return fmt.Errorf("negative fee in schedule for height %d", s.FromHeight)
		}
		for k, v := range s.KindFees {
			if v < 0 {
				return fmt.Errorf("negative %s fee in schedule for height %d", k, s.FromHeight)
			}
		}
	}
	return nil
}
