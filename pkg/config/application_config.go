package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/nspcc-dev/ledgerpool/pkg/core/storage/dbconfig"
	"github.com/nspcc-dev/ledgerpool/pkg/encoding/address"
)

// ApplicationConfiguration config specific to the node.
type ApplicationConfiguration struct {
	LogLevel        string                   `yaml:"LogLevel"`
	LogPath         string                   `yaml:"LogPath"`
	DBConfiguration dbconfig.DBConfiguration `yaml:"DBConfiguration"`
	MemPool         MemPool                  `yaml:"MemPool"`
	Relay           Relay                    `yaml:"Relay"`
	Prometheus      BasicService             `yaml:"Prometheus"`
	Pprof           BasicService             `yaml:"Pprof"`
	// Genesis lists initial balances of the in-memory ledger.
	Genesis []GenesisBalance `yaml:"Genesis"`
}

// MemPool contains unconfirmed pool and maintenance settings.
type MemPool struct {
	Capacity int `yaml:"Capacity"`
	// ExpiryInterval is the period of the expiry sweep.
	ExpiryInterval time.Duration `yaml:"ExpiryInterval"`
	// RevalidateEvery makes every N-th expiry tick run a full
	// re-validation of the pool.
	RevalidateEvery int `yaml:"RevalidateEvery"`
	// RebroadcastInterval is the period of the rebroadcast sweep.
	RebroadcastInterval time.Duration `yaml:"RebroadcastInterval"`
	// RebroadcastMinDwell is the time a transaction should spend in the
	// pool before it's announced again.
	RebroadcastMinDwell time.Duration `yaml:"RebroadcastMinDwell"`
	// BatchSize limits the number of transactions removed under a single
	// pool lock.
	BatchSize int `yaml:"BatchSize"`
	// RejectedCacheSize is the number of failure reasons kept for
	// recently rejected or purged transactions.
	RejectedCacheSize int `yaml:"RejectedCacheSize"`
}

// Relay contains peer relay settings.
type Relay struct {
	// Listen enables incoming announcement websocket endpoint.
	Listen BasicService `yaml:"Listen"`
	// Peers is a list of ws:// endpoints of other nodes.
	Peers []string `yaml:"Peers"`
	// Fanout is the number of peers a batch is sent to.
	Fanout      int           `yaml:"Fanout"`
	SendTimeout time.Duration `yaml:"SendTimeout"`
	DialTimeout time.Duration `yaml:"DialTimeout"`
	// Rate is the per-peer limit of sent messages per second.
	Rate  float64 `yaml:"Rate"`
	Burst int     `yaml:"Burst"`
	// CompressionThreshold is the payload size starting from which
	// announcements are compressed.
	CompressionThreshold int `yaml:"CompressionThreshold"`
}

// GenesisBalance is an initial account balance.
type GenesisBalance struct {
	Address string `yaml:"Address"`
	Amount  int64  `yaml:"Amount"`
}

// Validate checks ApplicationConfiguration for internal consistency.
func (a *ApplicationConfiguration) Validate() error {
	if a.MemPool.Capacity <= 0 {
		return errors.New("MemPool.Capacity must be positive")
	}
	if a.MemPool.ExpiryInterval <= 0 || a.MemPool.RebroadcastInterval <= 0 {
		return errors.New("MemPool intervals must be positive")
	}
	if a.MemPool.BatchSize <= 0 {
		return errors.New("MemPool.BatchSize must be positive")
	}
	for _, g := range a.Genesis {
		if _, err := address.StringToUint160(g.Address); err != nil {
			return fmt.Errorf("invalid genesis address %q: %w", g.Address, err)
		}
		if g.Amount < 0 {
			return fmt.Errorf("negative genesis amount for %s", g.Address)
		}
	}
	return nil
}
