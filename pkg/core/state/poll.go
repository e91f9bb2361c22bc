package state

import (
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Poll represents a created poll.
type Poll struct {
	ID                 uint64
	Creator            util.Uint160
	Name               string
	Options            []string
	FinishHeight       uint32
	VotingModel        int8
	MinNumberOfOptions uint8
	MaxNumberOfOptions uint8
	MinRangeValue      int8
	MaxRangeValue      int8
	MinBalance         int64
	HoldingAsset       uint64
}

// IsFinished returns true if no more votes are accepted at the given height.
func (p *Poll) IsFinished(height uint32) bool {
	return height >= p.FinishHeight
}
