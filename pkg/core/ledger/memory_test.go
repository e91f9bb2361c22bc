package ledger_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/core/ledger"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestGenesis(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	require.EqualValues(t, 0, fc.BlockHeight())
	require.EqualValues(t, fakechain.StartEpoch, fc.EpochTime())
	id, ok := fc.GetBlockID(0)
	require.True(t, ok)
	require.NotZero(t, id)
	require.Equal(t, ledger.GenesisBlockID(fc.Registry.Config().Magic), id)
	_, ok = fc.GetBlockID(1)
	require.False(t, ok)
	for _, k := range fc.Keys {
		require.EqualValues(t, fakechain.InitialBalance, fc.GetBalance(k.GetScriptHash()))
		acc := fc.GetAccount(k.GetScriptHash())
		require.NotNil(t, acc)
		require.Nil(t, acc.PublicKey)
	}
	require.Nil(t, fc.GetAccount(util.Uint160{1}))

	fc.Advance(time.Minute)
	require.EqualValues(t, fakechain.StartEpoch+60, fc.EpochTime())

	t.Run("bad genesis", func(t *testing.T) {
		reg := txtype.DefaultRegistry(fakechain.ProtocolConfig())
		_, err := ledger.NewMemory(reg, []config.GenesisBalance{{Address: "bad", Amount: 1}}, nil, nil)
		require.Error(t, err)
	})
	t.Run("before genesis", func(t *testing.T) {
		reg := txtype.DefaultRegistry(fakechain.ProtocolConfig())
		m, err := ledger.NewMemory(reg, nil, clockwork.NewFakeClockAt(time.Unix(0, 0)), nil)
		require.NoError(t, err)
		require.EqualValues(t, 0, m.EpochTime())
	})
}

func TestAddBlock(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	a, b := fc.Keys[0], fc.Keys[1]
	newAcc := util.Uint160{1, 2, 3}

	t1 := fc.NewPayment(t, a, b.GetScriptHash(), 1000, fakechain.BaseFee)
	t2 := fc.NewPayment(t, b, newAcc, 500, fakechain.BaseFee)
	// More than a has after t1.
	t3 := fc.NewPayment(t, a, newAcc, fakechain.InitialBalance, fakechain.BaseFee)

	included := fc.AddBlock(t, t1, t2, t3)
	require.Equal(t, []uint64{t1.ID(), t2.ID()}, included)
	require.EqualValues(t, 1, fc.BlockHeight())

	require.EqualValues(t, fakechain.InitialBalance-1000-fakechain.BaseFee, fc.GetBalance(a.GetScriptHash()))
	require.EqualValues(t, fakechain.InitialBalance+1000-500-fakechain.BaseFee, fc.GetBalance(b.GetScriptHash()))
	require.EqualValues(t, 500, fc.GetBalance(newAcc))

	require.True(t, fc.HasTransaction(t1.ID()))
	require.False(t, fc.HasTransaction(t3.ID()))
	require.True(t, t3.Failed())

	blockID, ok := fc.GetBlockID(1)
	require.True(t, ok)
	st := t2.GetStatus()
	require.True(t, st.Confirmed)
	require.EqualValues(t, 1, st.Height)
	require.Equal(t, blockID, st.BlockID)
	require.EqualValues(t, 1, st.Index)

	// Public keys are registered on the first use.
	acc := fc.GetAccount(a.GetScriptHash())
	require.True(t, acc.PublicKey.Equal(a.PublicKey()))
	require.Nil(t, fc.GetAccount(newAcc).PublicKey)

	// Already included transactions are skipped.
	require.Empty(t, fc.AddBlock(t, t1))
	require.EqualValues(t, 2, fc.BlockHeight())
	id2, _ := fc.GetBlockID(2)
	require.NotEqual(t, blockID, id2)
}

func TestEffects(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	a, b := fc.Keys[0], fc.Keys[1]

	ann := fc.Sign(t, fc.Builder(&transaction.OrdinaryPayment{}).
		Recipient(b.GetScriptHash()).
		Amount(1).
		Append(&transaction.PublicKeyAnnouncement{PublicKey: b.PublicKey()}), a)
	require.NoError(t, fc.ApplyEffects(ann, a.GetScriptHash(), b.GetScriptHash()))
	require.True(t, fc.GetAccount(b.GetScriptHash()).PublicKey.Equal(b.PublicKey()))

	info := fc.Sign(t, fc.Builder(&transaction.AccountInfo{Name: "alice", Description: "d"}), a)
	require.NoError(t, fc.ApplyEffects(info, a.GetScriptHash(), util.Uint160{}))
	acc := fc.GetAccount(a.GetScriptHash())
	require.Equal(t, "alice", acc.Name)
	require.Equal(t, "d", acc.Description)

	// Copies are returned.
	acc.Name = "mallory"
	require.Equal(t, "alice", fc.GetAccount(a.GetScriptHash()).Name)

	poor := util.Uint160{7}
	require.ErrorIs(t, fc.AddBalance(poor, -1), ledger.ErrInsufficientBalance)
	require.NoError(t, fc.AddBalance(poor, 10))
	require.EqualValues(t, 10, fc.GetBalance(poor))

	require.ErrorIs(t, fc.AddAssetBalance(poor, 1, -1), ledger.ErrInsufficientBalance)
	require.NoError(t, fc.AddAssetBalance(poor, 1, 5))
	require.NoError(t, fc.AddAssetBalance(poor, 1, -5))
	require.EqualValues(t, 0, fc.GetAssetBalance(poor, 1))

	huge := fc.NewPayment(t, a, b.GetScriptHash(), fakechain.InitialBalance*2, fakechain.BaseFee)
	require.ErrorIs(t, fc.ApplyEffects(huge, a.GetScriptHash(), b.GetScriptHash()), ledger.ErrInsufficientBalance)
}
