package fakechain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/ledger"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/encoding/address"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	// GenesisTimestamp is the unix time of epoch zero.
	GenesisTimestamp = 1_700_000_000
	// StartEpoch is the epoch time the chain clock starts at.
	StartEpoch = 10_000
	// InitialBalance is the genesis balance of every funded account.
	InitialBalance = 1_000_000_000_000
	// BaseFee is the base fee of the default schedule.
	BaseFee = 100
)

// FakeChain is an in-memory ledger with a fake clock and a set of funded
// accounts, it implements blockchainer.Blockchainer.
type FakeChain struct {
	*ledger.Memory
	Registry *txtype.Registry
	Clock    clockwork.FakeClock
	// Keys are funded with InitialBalance in the genesis block.
	Keys []*keys.PrivateKey
}

// ProtocolConfig returns the protocol configuration used by FakeChain.
func ProtocolConfig() config.ProtocolConfiguration {
	return config.ProtocolConfiguration{
		Magic:             netmode.UnitTestNet,
		MaxTimestampDrift: 15,
		ECBlockDepth:      720,
		GenesisTimestamp:  GenesisTimestamp,
		PrunableRetention: 14 * 24 * 3600,
		FeeSchedules: []config.FeeSchedule{{
			BaseFee: BaseFee,
			KindFees: map[string]int64{
				transaction.PollCreationKind.String(): 10 * BaseFee,
			},
			MessageChunkFee: 1,
			PhasingFee:      BaseFee / 2,
		}},
		Limits: limits.Default(),
	}
}

// NewFakeChain returns a new FakeChain with three funded accounts.
func NewFakeChain(t testing.TB) *FakeChain {
	return NewFakeChainWithCustomCfg(t, nil)
}

// NewFakeChainWithCustomCfg returns a new FakeChain with the protocol
// configuration adjusted by f.
func NewFakeChainWithCustomCfg(t testing.TB, f func(c *config.ProtocolConfiguration)) *FakeChain {
	cfg := ProtocolConfig()
	if f != nil {
		f(&cfg)
	}
	reg := txtype.DefaultRegistry(cfg)
	clock := clockwork.NewFakeClockAt(time.Unix(GenesisTimestamp+StartEpoch, 0))

	privs := make([]*keys.PrivateKey, 3)
	genesis := make([]config.GenesisBalance, len(privs))
	for i := range privs {
		var err error
		privs[i], err = keys.NewPrivateKey()
		require.NoError(t, err)
		genesis[i] = config.GenesisBalance{
			Address: address.Uint160ToString(privs[i].GetScriptHash()),
			Amount:  InitialBalance,
		}
	}
	mem, err := ledger.NewMemory(reg, genesis, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &FakeChain{
		Memory:   mem,
		Registry: reg,
		Clock:    clock,
		Keys:     privs,
	}
}

// Builder returns a transaction builder with the envelope filled for the
// current chain state: timestamp is now, deadline is one hour, the fee is
// the base one and the EC block is the current head.
func (c *FakeChain) Builder(att transaction.Attachment) *transaction.Builder {
	h := c.BlockHeight()
	id, _ := c.GetBlockID(h)
	return transaction.NewBuilder(att).
		Timestamp(c.EpochTime()).
		Deadline(60).
		Fee(BaseFee).
		ECBlock(h, id)
}

// Sign builds and signs the transaction.
func (c *FakeChain) Sign(t testing.TB, b *transaction.Builder, priv *keys.PrivateKey) *transaction.Transaction {
	tx, err := b.BuildSigned(priv, []byte("fakechain"))
	require.NoError(t, err)
	return tx
}

// NewPayment returns a signed payment.
func (c *FakeChain) NewPayment(t testing.TB, from *keys.PrivateKey, to util.Uint160, amount, fee int64) *transaction.Transaction {
	return c.Sign(t, c.Builder(&transaction.OrdinaryPayment{}).
		Recipient(to).
		Amount(amount).
		Fee(fee), from)
}

// AddBlock adds a block with the given transactions and returns ids of
// included ones.
func (c *FakeChain) AddBlock(t testing.TB, txs ...*transaction.Transaction) []uint64 {
	ids, err := c.Memory.AddBlock(txs)
	require.NoError(t, err)
	return ids
}

// Advance moves the chain clock forward.
func (c *FakeChain) Advance(d time.Duration) {
	c.Clock.Advance(d)
}
