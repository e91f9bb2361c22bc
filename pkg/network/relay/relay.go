/*
Package relay implements best-effort transaction announcements between
nodes over websocket connections.
*/
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/network/payload"
	"go.uber.org/zap"
)

const (
	// NodeIDHeader carries the node id of the connecting peer.
	NodeIDHeader = "X-Node-Id"
	// Path is the announcement endpoint path.
	Path = "/relay"

	dialAttempts = 3
	dialDelay    = 100 * time.Millisecond

	defaultSendTimeout = 5 * time.Second
	defaultDialTimeout = 5 * time.Second
	wsReadLimit        = payload.MaxSize + 16
)

// TransactionHandler handles transactions received from peers.
type TransactionHandler func(*transaction.Transaction) error

// Config contains relay settings, Handler is mandatory if incoming
// announcements are enabled.
type Config struct {
	Settings config.Relay
	Magic    netmode.Magic
	Handler  TransactionHandler
	Log      *zap.Logger
}

// Relay sends transactions to a random subset of configured peers and
// accepts announcements from other nodes. It implements
// blockchainer.Broadcaster.
type Relay struct {
	Config

	id       uuid.UUID
	clients  []*client
	upgrader websocket.Upgrader

	lock    sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	servers []*http.Server
	addrs   []string
	inbound map[*websocket.Conn]struct{}
	wg      sync.WaitGroup
}

// New creates a relay for the given configuration.
func New(cfg Config) (*Relay, error) {
	if cfg.Settings.Listen.Enabled && cfg.Handler == nil {
		return nil, errors.New("handler is mandatory for the listener")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Settings.SendTimeout <= 0 {
		cfg.Settings.SendTimeout = defaultSendTimeout
	}
	if cfg.Settings.DialTimeout <= 0 {
		cfg.Settings.DialTimeout = defaultDialTimeout
	}
	r := &Relay{
		Config:   cfg,
		id:       uuid.New(),
		upgrader: websocket.Upgrader{},
		inbound:  make(map[*websocket.Conn]struct{}),
	}
	r.Log = r.Log.With(zap.Stringer("node", r.id))
	seen := make(map[string]bool, len(cfg.Settings.Peers))
	for _, addr := range cfg.Settings.Peers {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		r.clients = append(r.clients, newClient(addr, r.Settings, r.id, r.Log))
	}
	return r, nil
}

// Name returns service name.
func (r *Relay) Name() string {
	return "relay"
}

// ID returns the node id sent to peers.
func (r *Relay) ID() uuid.UUID {
	return r.id
}

// Addresses returns the addresses incoming announcements are accepted on,
// it's nil until Start.
func (r *Relay) Addresses() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.addrs...)
}

// Start runs peer clients and the listener if it's enabled.
func (r *Relay) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started || r.stopped {
		return errors.New("relay can't be started twice")
	}
	if r.Settings.Listen.Enabled {
		if err := r.listen(); err != nil {
			return err
		}
	}
	var ctx context.Context
	ctx, r.cancel = context.WithCancel(context.Background())
	for _, c := range r.clients {
		go c.run(ctx)
	}
	r.started = true
	r.Log.Info("relay started",
		zap.Int("peers", len(r.clients)),
		zap.Strings("listen", r.addrs))
	return nil
}

func (r *Relay) listen() error {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, r.handleWS)
	addrs := r.Settings.Listen.GetAddresses()
	lns := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		lns = append(lns, ln)
	}
	for _, ln := range lns {
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: r.Settings.DialTimeout}
		r.servers = append(r.servers, srv)
		r.addrs = append(r.addrs, ln.Addr().String())
		r.wg.Add(1)
		go func(ln net.Listener) {
			defer r.wg.Done()
			err := srv.Serve(ln)
			if !errors.Is(err, http.ErrServerClosed) {
				r.Log.Error("relay listener failed", zap.Error(err))
			}
		}(ln)
	}
	return nil
}

// Shutdown stops clients, the listener and closes incoming connections.
func (r *Relay) Shutdown() {
	r.lock.Lock()
	if !r.started {
		r.lock.Unlock()
		return
	}
	r.started = false
	r.stopped = true
	r.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), r.Settings.SendTimeout)
	defer cancel()
	for _, srv := range r.servers {
		if err := srv.Shutdown(ctx); err != nil {
			r.Log.Warn("failed to shutdown relay listener", zap.Error(err))
		}
	}
	// Hijacked connections are not closed by the server.
	for ws := range r.inbound {
		_ = ws.Close()
	}
	r.servers = nil
	r.addrs = nil
	r.lock.Unlock()

	for _, c := range r.clients {
		<-c.finished
	}
	r.wg.Wait()
	r.Log.Info("relay stopped")
}

// SendToSomePeers implements blockchainer.Broadcaster. Transactions are
// queued for a random subset of Fanout peers, full queues drop the
// announcement.
func (r *Relay) SendToSomePeers(txs []*transaction.Transaction) {
	if len(txs) == 0 || len(r.clients) == 0 {
		return
	}
	for len(txs) > 0 {
		n := len(txs)
		if n > payload.MaxBatchSize {
			n = payload.MaxBatchSize
		}
		msg, err := payload.NewMessage(r.Magic, txs[:n]).Bytes(r.Settings.CompressionThreshold)
		txs = txs[n:]
		if err != nil {
			r.Log.Error("failed to encode announcement", zap.Error(err))
			continue
		}
		for _, c := range r.pickPeers() {
			if !c.enqueue(msg) {
				droppedCount.Inc()
				c.log.Debug("peer queue is full, announcement dropped")
			}
		}
	}
}

// Announce synchronously sends transactions to a single peer endpoint, it's
// used by tools that are not nodes themselves.
func Announce(ctx context.Context, endpoint string, magic netmode.Magic, txs []*transaction.Transaction, log *zap.Logger) error {
	if len(txs) > payload.MaxBatchSize {
		return fmt.Errorf("too many transactions: %d", len(txs))
	}
	msg, err := payload.NewMessage(magic, txs).Bytes(0)
	if err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := newClient(endpoint, config.Relay{
		SendTimeout: defaultSendTimeout,
		DialTimeout: defaultDialTimeout,
	}, uuid.New(), log)
	defer c.disconnect()
	return c.send(ctx, msg)
}

func (r *Relay) pickPeers() []*client {
	n := r.Settings.Fanout
	if n <= 0 || n >= len(r.clients) {
		return r.clients
	}
	res := make([]*client, n)
	for i, j := range rand.Perm(len(r.clients))[:n] {
		res[i] = r.clients[j]
	}
	return res
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	if req.Header.Get(NodeIDHeader) == r.id.String() {
		http.Error(w, errSelfConnection.Error(), http.StatusConflict)
		return
	}
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.Log.Info("websocket connection upgrade failed", zap.Error(err))
		return
	}
	r.lock.Lock()
	if !r.started {
		r.lock.Unlock()
		_ = ws.Close()
		return
	}
	r.inbound[ws] = struct{}{}
	r.wg.Add(1)
	r.lock.Unlock()
	defer r.wg.Done()

	log := r.Log.With(zap.String("peer", req.Header.Get(NodeIDHeader)))
	ws.SetReadLimit(wsReadLimit)
	for {
		typ, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		r.handleMessage(log, data)
	}
	r.lock.Lock()
	delete(r.inbound, ws)
	r.lock.Unlock()
	_ = ws.Close()
}

func (r *Relay) handleMessage(log *zap.Logger, data []byte) {
	m, err := payload.DecodeMessage(data, r.Magic)
	if err != nil {
		receivedCount.WithLabelValues("malformed").Inc()
		log.Debug("malformed announcement", zap.Error(err))
		return
	}
	for _, tx := range m.Transactions.Values {
		if err := r.Handler(tx); err != nil {
			receivedCount.WithLabelValues("rejected").Inc()
			continue
		}
		receivedCount.WithLabelValues("accepted").Inc()
	}
}
