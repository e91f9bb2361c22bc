package dao

import (
	"context"
	"testing"
	"time"

	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/core/storage"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestPutGetAndDecode(t *testing.T) {
	dao := NewSimple(storage.NewMemoryStore())
	serializable := &TestSerializable{field: "abcd"}
	hash := []byte{1}
	require.NoError(t, dao.putWithBuffer(serializable, hash, io.NewBufBinWriter()))

	gotAndDecoded := &TestSerializable{}
	err := dao.GetAndDecode(gotAndDecoded, hash)
	require.NoError(t, err)
	require.Equal(t, serializable, gotAndDecoded)
}

// TestSerializable structure used in testing.
type TestSerializable struct {
	field string
}

func (t *TestSerializable) EncodeBinary(writer *io.BinWriter) {
	writer.WriteString(t.field)
}

func (t *TestSerializable) DecodeBinary(reader *io.BinReader) {
	t.field = reader.ReadString()
}

func TestGetVersion_NoVersion(t *testing.T) {
	dao := NewSimple(storage.NewMemoryStore())
	version, err := dao.GetVersion()
	require.NoError(t, err)
	require.Equal(t, "", version)
}

func TestGetVersion(t *testing.T) {
	dao := NewSimple(storage.NewMemoryStore())
	require.NoError(t, dao.CheckVersion())
	version, err := dao.GetVersion()
	require.NoError(t, err)
	require.Equal(t, Version, version)

	t.Run("invalid", func(t *testing.T) {
		dao := NewSimple(storage.NewMemoryStore())
		require.NoError(t, dao.PutVersion("0.0.1"))
		require.Error(t, dao.CheckVersion())
	})
}

func TestCached(t *testing.T) {
	dao := NewSimple(storage.NewMemoryStore())
	require.NoError(t, dao.Store.PutChangeSet(map[string][]byte{"old": {1}}))

	c := dao.GetWrapped()
	c.Put([]byte("new"), []byte{2})
	c.Delete([]byte("old"))
	require.True(t, c.Has([]byte("new")))
	require.False(t, c.Has([]byte("old")))
	// Nothing is written before Persist.
	_, err := dao.Store.Get([]byte("new"))
	require.True(t, IsNotFound(err))
	_, err = dao.Store.Get([]byte("old"))
	require.NoError(t, err)

	n, err := c.Persist()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	v, err := dao.Store.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, v)
	_, err = dao.Store.Get([]byte("old"))
	require.True(t, IsNotFound(err))

	n, err = c.Persist()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestUnconfirmed(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	u := NewUnconfirmed(NewSimple(storage.NewMemoryStore()))
	to := fc.Keys[1].GetScriptHash()
	t1 := fc.NewPayment(t, fc.Keys[0], to, 1, fakechain.BaseFee)
	t2 := fc.NewPayment(t, fc.Keys[0], to, 2, fakechain.BaseFee)
	t3 := fc.NewPayment(t, fc.Keys[2], to, 3, fakechain.BaseFee)
	arrival := time.Unix(1_700_000_000, 123)

	require.NoError(t, u.Put(t1, arrival, true))
	require.NoError(t, u.Put(t2, arrival.Add(time.Second), false))
	require.NoError(t, u.Put(t3, arrival.Add(2*time.Second), false))

	rec, err := u.Get(t1.ID())
	require.NoError(t, err)
	require.Equal(t, t1.ID(), rec.Tx.ID())
	require.Equal(t, t1.Bytes(), rec.Tx.Bytes())
	require.True(t, rec.Broadcasted)
	require.True(t, arrival.Equal(rec.Arrival))

	seen := make(map[uint64]bool)
	require.NoError(t, u.Iterate(func(r *UnconfirmedRecord) bool {
		seen[r.Tx.ID()] = r.Broadcasted
		return true
	}))
	require.Equal(t, map[uint64]bool{t1.ID(): true, t2.ID(): false, t3.ID(): false}, seen)

	t.Run("early stop", func(t *testing.T) {
		var n int
		require.NoError(t, u.Iterate(func(*UnconfirmedRecord) bool {
			n++
			return false
		}))
		require.Equal(t, 1, n)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, u.Delete())
		require.NoError(t, u.Delete(t1.ID(), t2.ID(), 42))
		_, err := u.Get(t1.ID())
		require.True(t, IsNotFound(err))
		var ids []uint64
		require.NoError(t, u.Iterate(func(r *UnconfirmedRecord) bool {
			ids = append(ids, r.Tx.ID())
			// Changes during the iteration are allowed.
			require.NoError(t, u.Delete(r.Tx.ID()))
			return true
		}))
		require.Equal(t, []uint64{t3.ID()}, ids)
		require.NoError(t, u.Iterate(func(*UnconfirmedRecord) bool {
			t.Fatal("store is not empty")
			return false
		}))
	})

	t.Run("corrupted", func(t *testing.T) {
		require.NoError(t, u.Put(t1, arrival, false))
		require.NoError(t, u.Store.PutChangeSet(map[string][]byte{
			string(makeUnconfirmedKey(7)): {1, 2, 3},
		}))
		var n int
		err := u.Iterate(func(*UnconfirmedRecord) bool {
			n++
			return true
		})
		require.Error(t, err)
		require.Equal(t, 1, n)
		_, err = u.Store.Get(makeUnconfirmedKey(7))
		require.True(t, IsNotFound(err))
	})
}

func TestPrunable(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	p := NewPrunable(NewSimple(storage.NewMemoryStore()), 3600)
	data := []byte("prunable message")
	tx := fc.Sign(t, fc.Builder(&transaction.OrdinaryPayment{}).
		Recipient(fc.Keys[1].GetScriptHash()).
		Amount(1).
		Fee(2*fakechain.BaseFee).
		Append(transaction.NewPrunablePlainMessage(data, true)), fc.Keys[0])
	require.NoError(t, p.PutTransaction(tx))

	// Nothing to store.
	require.NoError(t, p.PutTransaction(fc.NewPayment(t, fc.Keys[0], util.Uint160{1}, 1, fakechain.BaseFee)))

	pruned := tx.Pruned()
	require.True(t, pruned.HasPrunedData())
	require.Equal(t, tx.ID(), pruned.ID())

	now := fc.EpochTime()
	full, err := pruned.Materialize(context.Background(), p, 3600, now)
	require.NoError(t, err)
	require.False(t, full.HasPrunedData())
	require.Equal(t, tx.Bytes(), full.Bytes())

	_, err = pruned.Materialize(context.Background(), p, 3600, tx.Timestamp+3601)
	require.ErrorIs(t, err, transaction.ErrPrunableUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetPrunable(ctx, util.Uint256{})
	require.ErrorIs(t, err, context.Canceled)

	n, err := p.Prune(tx.Timestamp + 3600)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	n, err = p.Prune(tx.Timestamp + 3601)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = pruned.Materialize(context.Background(), p, 3600, now)
	require.ErrorIs(t, err, transaction.ErrPrunableUnavailable)
}
