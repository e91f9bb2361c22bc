package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/processor"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/verifier"
	"github.com/nspcc-dev/ledgerpool/pkg/network/payload"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type collector struct {
	lock sync.Mutex
	txs  []*transaction.Transaction
}

func (c *collector) handle(tx *transaction.Transaction) error {
	c.lock.Lock()
	c.txs = append(c.txs, tx)
	c.lock.Unlock()
	return nil
}

func (c *collector) count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.txs)
}

func listenSettings() config.Relay {
	return config.Relay{
		Listen: config.BasicService{
			Enabled:   true,
			Addresses: []string{"127.0.0.1:0"},
		},
		SendTimeout: time.Second,
		DialTimeout: time.Second,
	}
}

func newRelay(t *testing.T, s config.Relay, h TransactionHandler) *Relay {
	r, err := New(Config{
		Settings: s,
		Magic:    netmode.UnitTestNet,
		Handler:  h,
		Log:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return r
}

func endpoint(r *Relay) string {
	return "ws://" + r.Addresses()[0] + Path
}

func testTxs(t *testing.T, fc *fakechain.FakeChain, n int) []*transaction.Transaction {
	txs := make([]*transaction.Transaction, n)
	for i := range txs {
		txs[i] = fc.NewPayment(t, fc.Keys[i%len(fc.Keys)], util.Uint160{1, 2, 3}, int64(i+1), fakechain.BaseFee)
	}
	return txs
}

func TestNew(t *testing.T) {
	_, err := New(Config{Settings: listenSettings()})
	require.Error(t, err)

	r, err := New(Config{Settings: config.Relay{Peers: []string{"ws://a", "ws://b", "ws://a"}}})
	require.NoError(t, err)
	require.Equal(t, "relay", r.Name())
	require.Len(t, r.clients, 2)
	require.Equal(t, defaultSendTimeout, r.Settings.SendTimeout)
	require.Equal(t, defaultDialTimeout, r.Settings.DialTimeout)
	require.Nil(t, r.Addresses())

	other, err := New(Config{})
	require.NoError(t, err)
	require.NotEqual(t, r.ID(), other.ID())
}

func TestRelay(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	txs := testTxs(t, fc, 3)

	recv := new(collector)
	a := newRelay(t, listenSettings(), recv.handle)
	require.NoError(t, a.Start())
	t.Cleanup(a.Shutdown)

	s := listenSettings()
	s.Listen.Enabled = false
	s.Peers = []string{endpoint(a)}
	s.CompressionThreshold = 128
	b := newRelay(t, s, nil)
	require.NoError(t, b.Start())
	require.Error(t, b.Start())
	t.Cleanup(b.Shutdown)

	b.SendToSomePeers(txs)
	require.Eventually(t, func() bool { return recv.count() == len(txs) }, 5*time.Second, 10*time.Millisecond)
	recv.lock.Lock()
	for i := range txs {
		require.Equal(t, txs[i].ID(), recv.txs[i].ID())
	}
	recv.lock.Unlock()

	// Nothing to send.
	b.SendToSomePeers(nil)

	b.Shutdown()
	b.Shutdown()
	require.Error(t, b.Start())
}

func TestRelayToProcessor(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	pool := mempool.New(10)
	proc, err := processor.New(processor.Config{
		Chain:    fc,
		Pool:     pool,
		Verifier: verifier.New(fc.Registry),
	})
	require.NoError(t, err)
	a := newRelay(t, listenSettings(), proc.AddPeerTransaction)
	require.NoError(t, a.Start())
	t.Cleanup(a.Shutdown)

	s := listenSettings()
	s.Listen.Enabled = false
	s.Peers = []string{endpoint(a)}
	b := newRelay(t, s, nil)
	require.NoError(t, b.Start())
	t.Cleanup(b.Shutdown)

	// Announced by two peers, pooled once.
	txs := testTxs(t, fc, 2)
	b.SendToSomePeers(txs)
	b.SendToSomePeers(txs[:1])
	require.Eventually(t, func() bool { return pool.Count() == 2 }, 5*time.Second, 10*time.Millisecond)
	for _, tx := range txs {
		e, ok := pool.TryGetEntry(tx.ID())
		require.True(t, ok)
		require.False(t, e.Broadcasted)
	}
}

func TestSelfConnection(t *testing.T) {
	recv := new(collector)
	r := newRelay(t, listenSettings(), recv.handle)
	require.NoError(t, r.Start())
	t.Cleanup(r.Shutdown)

	c := newClient(endpoint(r), r.Settings, r.ID(), r.Log)
	err := c.connect(context.Background())
	require.ErrorIs(t, err, errSelfConnection)
	require.Nil(t, c.conn)
}

func TestAnnounce(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	recv := new(collector)
	r := newRelay(t, listenSettings(), recv.handle)
	require.NoError(t, r.Start())
	t.Cleanup(r.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Announce(ctx, endpoint(r), netmode.UnitTestNet, testTxs(t, fc, 2), nil))
	require.Eventually(t, func() bool { return recv.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.Error(t, Announce(ctx, endpoint(r), netmode.UnitTestNet, nil, nil))
	require.Error(t, Announce(ctx, "ws://127.0.0.1:1"+Path, netmode.UnitTestNet, testTxs(t, fc, 1), nil))
}

func TestUnreachablePeer(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	s := listenSettings()
	s.Listen.Enabled = false
	s.Peers = []string{"ws://127.0.0.1:1" + Path}
	s.DialTimeout = 100 * time.Millisecond
	r := newRelay(t, s, nil)
	require.NoError(t, r.Start())
	r.SendToSomePeers(testTxs(t, fc, 1))
	// Shutdown interrupts dialing.
	r.Shutdown()
}

func TestPickPeers(t *testing.T) {
	s := config.Relay{Peers: []string{"ws://a", "ws://b", "ws://c"}}
	r := newRelay(t, s, nil)
	require.Len(t, r.pickPeers(), 3)

	r.Settings.Fanout = 2
	for i := 0; i < 10; i++ {
		peers := r.pickPeers()
		require.Len(t, peers, 2)
		require.NotEqual(t, peers[0].addr, peers[1].addr)
	}

	r.Settings.Fanout = 5
	require.Len(t, r.pickPeers(), 3)
}

func TestFullQueue(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	r := newRelay(t, config.Relay{Peers: []string{"ws://a"}}, nil)
	tx := testTxs(t, fc, 1)
	// Not started, so nothing is consumed from the queue.
	for i := 0; i < queueSize+10; i++ {
		r.SendToSomePeers(tx)
	}
	require.Len(t, r.clients[0].queue, queueSize)
	require.False(t, r.clients[0].enqueue([]byte{1}))
}

func TestHandleMessage(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	recv := new(collector)
	r := newRelay(t, listenSettings(), recv.handle)
	log := zaptest.NewLogger(t)

	r.handleMessage(log, []byte{1, 2, 3})
	require.Equal(t, 0, recv.count())

	other, err := payload.NewMessage(netmode.PrivNet, testTxs(t, fc, 1)).Bytes(0)
	require.NoError(t, err)
	r.handleMessage(log, other)
	require.Equal(t, 0, recv.count())

	msg, err := payload.NewMessage(netmode.UnitTestNet, testTxs(t, fc, 2)).Bytes(0)
	require.NoError(t, err)
	r.handleMessage(log, msg)
	require.Equal(t, 2, recv.count())
}
