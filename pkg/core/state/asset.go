package state

import (
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Asset represents an issued asset.
type Asset struct {
	ID          uint64
	Issuer      util.Uint160
	Name        string
	Description string
	Quantity    int64
	Decimals    uint8
	Height      uint32
}

// Alias maps an alias name to an URI, it's owned by the account that
// assigned it first.
type Alias struct {
	Name  string
	URI   string
	Owner util.Uint160
}
