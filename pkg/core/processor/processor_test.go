package processor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/core/dao"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/storage"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/verifier"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type broadcasterStub struct {
	lock sync.Mutex
	txs  []*transaction.Transaction
}

func (b *broadcasterStub) SendToSomePeers(txs []*transaction.Transaction) {
	b.lock.Lock()
	b.txs = append(b.txs, txs...)
	b.lock.Unlock()
}

func (b *broadcasterStub) sent() []*transaction.Transaction {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]*transaction.Transaction(nil), b.txs...)
}

type testEnv struct {
	fc    *fakechain.FakeChain
	pool  *mempool.Pool
	store *dao.Unconfirmed
	bcast *broadcasterStub
	p     *Processor
}

func newTestEnv(t *testing.T, capacity int, opts ...mempool.Option) *testEnv {
	fc := fakechain.NewFakeChain(t)
	return newTestEnvWithChain(t, fc, dao.NewUnconfirmed(dao.NewSimple(storage.NewMemoryStore())), capacity, opts...)
}

func newTestEnvWithChain(t *testing.T, fc *fakechain.FakeChain, store *dao.Unconfirmed, capacity int, opts ...mempool.Option) *testEnv {
	pool := mempool.New(capacity, append([]mempool.Option{mempool.WithClock(fc.Clock)}, opts...)...)
	bcast := new(broadcasterStub)
	p, err := New(Config{
		Chain:       fc,
		Pool:        pool,
		Verifier:    verifier.New(fc.Registry),
		Store:       store,
		Broadcaster: bcast,
		Log:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return &testEnv{fc: fc, pool: pool, store: store, bcast: bcast, p: p}
}

func (e *testEnv) stored(t *testing.T, id uint64) bool {
	_, err := e.store.Get(id)
	if dao.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	fc := fakechain.NewFakeChain(t)
	p, err := New(Config{Chain: fc, Pool: mempool.New(1), Verifier: verifier.New(fc.Registry)})
	require.NoError(t, err)
	require.NotNil(t, p.Log)
	require.Equal(t, DefaultRejectedCacheSize, p.RejectedCacheSize)
}

func TestSubmit(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	to := fc.Keys[1].GetScriptHash()

	tx := fc.NewPayment(t, fc.Keys[0], to, 10, fakechain.BaseFee)
	id, err := e.p.Submit(tx.Bytes())
	require.NoError(t, err)
	require.Equal(t, tx.ID(), id)

	got, ok := e.p.GetTransaction(id)
	require.True(t, ok)
	require.Equal(t, tx.Bytes(), got.Bytes())
	entry, ok := e.pool.TryGetEntry(id)
	require.True(t, ok)
	require.True(t, entry.Broadcasted)
	require.True(t, e.stored(t, id))
	require.Len(t, e.bcast.sent(), 1)

	rec, err := e.store.Get(id)
	require.NoError(t, err)
	require.True(t, rec.Broadcasted)
	require.True(t, entry.Arrival.Equal(rec.Arrival))

	t.Run("duplicate", func(t *testing.T) {
		_, err := e.p.Submit(tx.Bytes())
		require.ErrorIs(t, err, mempool.ErrDup)
		_, ok := e.p.FailureReason(id)
		require.False(t, ok)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := e.p.Submit([]byte{1, 2, 3})
		require.ErrorIs(t, err, transaction.ErrMalformed)
		require.True(t, transaction.IsPermanent(err))
		require.Equal(t, malformed, admissionResult(err))
	})
	t.Run("permanent", func(t *testing.T) {
		bad := fc.Sign(t, fc.Builder(&transaction.OrdinaryPayment{}).Recipient(to).Amount(1).Deadline(0), fc.Keys[0])
		id, err := e.p.Submit(bad.Bytes())
		require.True(t, transaction.IsPermanent(err), err)
		reason, ok := e.p.FailureReason(id)
		require.True(t, ok)
		require.Equal(t, err.Error(), reason)
		require.False(t, e.pool.ContainsKey(id))
		require.False(t, e.stored(t, id))
	})
	t.Run("transient", func(t *testing.T) {
		poor := fc.NewPayment(t, fc.Keys[2], to, fakechain.InitialBalance, fakechain.BaseFee)
		id, err := e.p.Submit(poor.Bytes())
		require.True(t, transaction.IsTransient(err), err)
		_, ok := e.p.FailureReason(id)
		require.True(t, ok)
	})
	t.Run("pool balance", func(t *testing.T) {
		half := int64(fakechain.InitialBalance/2 - fakechain.BaseFee)
		t1 := fc.NewPayment(t, fc.Keys[2], to, half, fakechain.BaseFee)
		t2 := fc.NewPayment(t, fc.Keys[2], to, half+1, fakechain.BaseFee)
		_, err := e.p.Submit(t1.Bytes())
		require.NoError(t, err)
		_, err = e.p.Submit(t2.Bytes())
		require.ErrorIs(t, err, mempool.ErrConflict)
	})
	require.Len(t, e.bcast.sent(), 2)
}

func TestAdmissionResult(t *testing.T) {
	for err, res := range map[error]string{
		nil:                                 accepted,
		transaction.ErrMalformed:            malformed,
		ErrAlreadyExists:                    duplicate,
		mempool.ErrOOM:                      poolFull,
		mempool.ErrConflict:                 insufficientFunds,
		transaction.NotValidf("bad"):        invalid,
		transaction.NotCurrentlyValidf("x"): notCurrent,
		errors.New("disk failure"):          internalErr,
	} {
		require.Equal(t, res, admissionResult(err), err)
	}
}

func TestAlreadyConfirmed(t *testing.T) {
	e := newTestEnv(t, 10)
	tx := e.fc.NewPayment(t, e.fc.Keys[0], e.fc.Keys[1].GetScriptHash(), 10, fakechain.BaseFee)
	require.Len(t, e.fc.AddBlock(t, tx), 1)
	_, err := e.p.Submit(tx.Bytes())
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.ErrorIs(t, err, mempool.ErrDup)
	require.Equal(t, 0, e.pool.Count())
}

// confirmingChain reports the transaction as included starting from the
// second request, as if the block with it arrived during admission.
type confirmingChain struct {
	*fakechain.FakeChain
	id    uint64
	calls int
}

func (c *confirmingChain) HasTransaction(id uint64) bool {
	if id == c.id {
		c.calls++
		return c.calls > 1
	}
	return c.FakeChain.HasTransaction(id)
}

func TestConfirmedDuringAdmission(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	tx := fc.NewPayment(t, fc.Keys[0], fc.Keys[1].GetScriptHash(), 10, fakechain.BaseFee)
	chain := &confirmingChain{FakeChain: fc, id: tx.ID()}
	pool := mempool.New(10, mempool.WithClock(fc.Clock))
	store := dao.NewUnconfirmed(dao.NewSimple(storage.NewMemoryStore()))
	bcast := new(broadcasterStub)
	p, err := New(Config{
		Chain:       chain,
		Pool:        pool,
		Verifier:    verifier.New(fc.Registry),
		Store:       store,
		Broadcaster: bcast,
		Log:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = p.Submit(tx.Bytes())
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, 2, chain.calls)
	require.False(t, pool.ContainsKey(tx.ID()))
	require.Empty(t, bcast.sent())
	_, err = store.Get(tx.ID())
	require.True(t, dao.IsNotFound(err))
	_, failed := p.FailureReason(tx.ID())
	require.False(t, failed)
}

func TestAddPeerTransaction(t *testing.T) {
	e := newTestEnv(t, 10)
	tx := e.fc.NewPayment(t, e.fc.Keys[0], e.fc.Keys[1].GetScriptHash(), 10, fakechain.BaseFee)
	require.NoError(t, e.p.AddPeerTransaction(tx))
	entry, ok := e.pool.TryGetEntry(tx.ID())
	require.True(t, ok)
	require.False(t, entry.Broadcasted)
	require.Empty(t, e.bcast.sent())
	require.True(t, e.stored(t, tx.ID()))
	require.ErrorIs(t, e.p.AddPeerTransaction(tx), mempool.ErrDup)
}

func TestDuplicateKeys(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	a1 := fc.Sign(t, fc.Builder(&transaction.AliasAssignment{Name: "name"}), fc.Keys[0])
	a2 := fc.Sign(t, fc.Builder(&transaction.AliasAssignment{Name: "name"}), fc.Keys[1])
	_, err := e.p.Submit(a1.Bytes())
	require.NoError(t, err)
	_, err = e.p.Submit(a2.Bytes())
	require.ErrorIs(t, err, mempool.ErrDup)
	require.False(t, e.stored(t, a2.ID()))

	// The key is released with the transaction.
	require.Equal(t, 1, e.p.Purge([]uint64{a1.ID()}, "test"))
	_, err = e.p.Submit(a2.Bytes())
	require.NoError(t, err)
}

func TestOnBlockConfirmed(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	a, b := fc.Keys[0], fc.Keys[1]
	to := fc.Keys[2].GetScriptHash()

	t1 := fc.NewPayment(t, a, to, 1, fakechain.BaseFee)
	t2 := fc.NewPayment(t, a, to, 2, fakechain.BaseFee)
	t3 := fc.NewPayment(t, b, to, 500, fakechain.BaseFee)
	for _, tx := range []*transaction.Transaction{t1, t2, t3} {
		require.NoError(t, e.p.AddPeerTransaction(tx))
	}

	included := fc.AddBlock(t, t1)
	require.NoError(t, e.p.OnBlockConfirmed(included))
	require.False(t, e.pool.ContainsKey(t1.ID()))
	require.False(t, e.stored(t, t1.ID()))
	_, ok := e.p.FailureReason(t1.ID())
	require.False(t, ok)
	require.Equal(t, 2, e.pool.Count())

	t.Run("balance", func(t *testing.T) {
		// b spends almost everything out of the pool.
		spend := fc.NewPayment(t, b, to, fakechain.InitialBalance-300, fakechain.BaseFee)
		included := fc.AddBlock(t, spend)
		require.Len(t, included, 1)
		require.NoError(t, e.p.OnBlockConfirmed(included))
		require.False(t, e.pool.ContainsKey(t3.ID()))
		require.False(t, e.stored(t, t3.ID()))
		reason, ok := e.p.FailureReason(t3.ID())
		require.True(t, ok)
		require.Contains(t, reason, "insufficient balance")
		require.True(t, e.pool.ContainsKey(t2.ID()))
	})
	t.Run("expiry", func(t *testing.T) {
		fc.Advance(time.Hour + time.Second)
		require.NoError(t, e.p.OnBlockConfirmed(fc.AddBlock(t)))
		require.Equal(t, 0, e.pool.Count())
		require.False(t, e.stored(t, t2.ID()))
		reason, ok := e.p.FailureReason(t2.ID())
		require.True(t, ok)
		require.Equal(t, "expired", reason)
	})
}

func TestPurge(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	to := fc.Keys[2].GetScriptHash()
	t1 := fc.NewPayment(t, fc.Keys[0], to, 1, fakechain.BaseFee)
	t2 := fc.NewPayment(t, fc.Keys[1], to, 1, fakechain.BaseFee)
	require.NoError(t, e.p.AddPeerTransaction(t1))
	require.NoError(t, e.p.AddPeerTransaction(t2))

	require.NoError(t, t2.MarkFailed("custom failure"))
	require.Equal(t, 2, e.p.Purge([]uint64{t1.ID(), t2.ID(), 42}, "expired"))
	require.Equal(t, 0, e.p.Purge([]uint64{t1.ID()}, "expired"))

	r1, ok := e.p.FailureReason(t1.ID())
	require.True(t, ok)
	require.Equal(t, "expired", r1)
	r2, ok := e.p.FailureReason(t2.ID())
	require.True(t, ok)
	require.Equal(t, "custom failure", r2)
	require.False(t, e.stored(t, t1.ID()))
	require.False(t, e.stored(t, t2.ID()))
}

func TestSnapshotAndStats(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	to := fc.Keys[2].GetScriptHash()
	low := fc.NewPayment(t, fc.Keys[0], to, 1, fakechain.BaseFee)
	high := fc.NewPayment(t, fc.Keys[1], to, 1, 10*fakechain.BaseFee)
	require.NoError(t, e.p.AddPeerTransaction(low))
	fc.Advance(time.Second)
	require.NoError(t, e.p.AddPeerTransaction(high))

	snap := e.p.SnapshotForBlockBuilding()
	require.Equal(t, []uint64{high.ID(), low.ID()}, []uint64{snap[0].ID(), snap[1].ID()})

	st := e.p.PoolStats()
	require.Equal(t, 2, st.Count)
	require.EqualValues(t, 11*fakechain.BaseFee, st.TotalFee.Int64())
	require.True(t, st.OldestArrival.Equal(fc.Clock.Now().Add(-time.Second)))
}

func TestRestore(t *testing.T) {
	e := newTestEnv(t, 10)
	fc := e.fc
	to := fc.Keys[2].GetScriptHash()
	t1 := fc.NewPayment(t, fc.Keys[0], to, 1, fakechain.BaseFee)
	t2 := fc.NewPayment(t, fc.Keys[1], to, 1, fakechain.BaseFee)
	t3 := fc.NewPayment(t, fc.Keys[1], to, 2, fakechain.BaseFee)
	_, err := e.p.Submit(t1.Bytes())
	require.NoError(t, err)
	require.NoError(t, e.p.AddPeerTransaction(t2))
	require.NoError(t, e.p.AddPeerTransaction(t3))

	// t2 gets confirmed while the node is down.
	require.Len(t, fc.AddBlock(t, t2), 1)

	restarted := newTestEnvWithChain(t, fc, e.store, 10)
	n, err := restarted.p.Restore()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, restarted.pool.ContainsKey(t1.ID()))
	require.True(t, restarted.pool.ContainsKey(t3.ID()))
	require.False(t, restarted.stored(t, t2.ID()))
	entry, ok := restarted.pool.TryGetEntry(t1.ID())
	require.True(t, ok)
	require.True(t, entry.Broadcasted)
	entry, ok = restarted.pool.TryGetEntry(t3.ID())
	require.True(t, ok)
	require.False(t, entry.Broadcasted)

	// Restoring twice doesn't drop pooled transactions.
	n, err = restarted.p.Restore()
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.True(t, restarted.stored(t, t1.ID()))

	t.Run("expired", func(t *testing.T) {
		fc.Advance(2 * time.Hour)
		late := newTestEnvWithChain(t, fc, e.store, 10)
		n, err := late.p.Restore()
		require.NoError(t, err)
		require.Equal(t, 0, n)
		require.False(t, late.stored(t, t1.ID()))
		require.False(t, late.stored(t, t3.ID()))
		_, ok := late.p.FailureReason(t1.ID())
		require.True(t, ok)
	})
	t.Run("no store", func(t *testing.T) {
		p, err := New(Config{Chain: fc, Pool: mempool.New(1), Verifier: verifier.New(fc.Registry)})
		require.NoError(t, err)
		n, err := p.Restore()
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})
}

func TestEviction(t *testing.T) {
	e := newTestEnv(t, 1, mempool.WithSubscriptions())
	e.pool.RunSubscriptions()
	e.p.Start()
	e.p.Start()
	t.Cleanup(func() {
		e.p.Shutdown()
		e.p.Shutdown()
		e.pool.StopSubscriptions()
	})
	fc := e.fc
	to := fc.Keys[2].GetScriptHash()
	low := fc.NewPayment(t, fc.Keys[0], to, 1, fakechain.BaseFee)
	high := fc.NewPayment(t, fc.Keys[1], to, 1, 10*fakechain.BaseFee)

	_, err := e.p.Submit(low.Bytes())
	require.NoError(t, err)
	_, err = e.p.Submit(high.Bytes())
	require.NoError(t, err)
	require.True(t, e.pool.ContainsKey(high.ID()))
	require.False(t, e.pool.ContainsKey(low.ID()))

	require.Eventually(t, func() bool {
		return !e.stored(t, low.ID())
	}, time.Second, 10*time.Millisecond)
	reason, ok := e.p.FailureReason(low.ID())
	require.True(t, ok)
	require.Contains(t, reason, "evicted")
	require.True(t, e.stored(t, high.ID()))

	_, err = e.p.Submit(fc.NewPayment(t, fc.Keys[0], to, 2, fakechain.BaseFee).Bytes())
	require.ErrorIs(t, err, mempool.ErrOOM)
}

func TestPrunable(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	prunable := dao.NewPrunable(dao.NewSimple(storage.NewMemoryStore()), fc.Registry.Config().PrunableRetention)
	tx := fc.Sign(t, fc.Builder(&transaction.OrdinaryPayment{}).
		Recipient(util.Uint160{1}).
		Amount(1).
		Fee(2*fakechain.BaseFee).
		Append(transaction.NewPrunablePlainMessage([]byte("some prunable text"), true)), fc.Keys[0])

	e := newTestEnvWithChain(t, fc, nil, 10)
	e.p.Prunable = prunable
	_, err := e.p.Submit(tx.Bytes())
	require.NoError(t, err)

	t.Run("restored from source", func(t *testing.T) {
		other := newTestEnvWithChain(t, fc, nil, 10)
		other.p.Prunable = prunable
		require.NoError(t, other.p.AddPeerTransaction(tx.Pruned()))
		got, ok := other.p.GetTransaction(tx.ID())
		require.True(t, ok)
		require.False(t, got.HasPrunedData())
	})
	t.Run("no source", func(t *testing.T) {
		other := newTestEnvWithChain(t, fc, nil, 10)
		err := other.p.AddPeerTransaction(tx.Pruned())
		require.ErrorIs(t, err, transaction.ErrPrunableUnavailable)
		require.True(t, transaction.IsTransient(err))
	})
}
