/*
Package processor implements the transaction admission pipeline of the node.
It decodes and validates incoming transactions, keeps the pool and its
persistent copy in sync and reacts on block confirmations.
*/
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/nspcc-dev/ledgerpool/pkg/core/blockchainer"
	"github.com/nspcc-dev/ledgerpool/pkg/core/dao"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempoolevent"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/verifier"
	"go.uber.org/zap"
)

// DefaultRejectedCacheSize is the number of failure reasons kept by default.
const DefaultRejectedCacheSize = 10000

// ErrAlreadyExists is returned for transactions that are already included
// into a block.
var ErrAlreadyExists = fmt.Errorf("%w: already confirmed", mempool.ErrDup)

// Config contains processor dependencies. Store, Prunable and Broadcaster
// are optional.
type Config struct {
	Chain    blockchainer.Blockchainer
	Pool     *mempool.Pool
	Verifier *verifier.Verifier
	// Store keeps a copy of the pool for Restore.
	Store *dao.Unconfirmed
	// Prunable keeps prunable payloads of admitted transactions and
	// restores them for transactions received without.
	Prunable    *dao.Prunable
	Broadcaster blockchainer.Broadcaster
	// RejectedCacheSize is the number of failure reasons kept, zero means
	// DefaultRejectedCacheSize.
	RejectedCacheSize int
	Log               *zap.Logger
}

// Processor is the entry point for transactions coming from local clients,
// peers and the chain.
type Processor struct {
	Config

	failures *lru.Cache

	events  chan mempoolevent.Event
	started bool
	stopCh  chan struct{}
	done    chan struct{}
	lock    sync.Mutex
}

// New creates a processor with the given configuration.
func New(cfg Config) (*Processor, error) {
	if cfg.Chain == nil || cfg.Pool == nil || cfg.Verifier == nil {
		return nil, errors.New("chain, pool and verifier are mandatory")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.RejectedCacheSize <= 0 {
		cfg.RejectedCacheSize = DefaultRejectedCacheSize
	}
	failures, err := lru.New(cfg.RejectedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Processor{
		Config:   cfg,
		failures: failures,
		events:   make(chan mempoolevent.Event),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start subscribes for pool events to drop evicted transactions from the
// store. The pool must have subscriptions running. Without Start evicted
// transactions stay in the store until the next Restore.
func (p *Processor) Start() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.Pool.SubscribeForTransactions(p.events)
	go p.eventLoop()
}

// Shutdown stops the event loop started by Start.
func (p *Processor) Shutdown() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	<-p.done
}

func (p *Processor) eventLoop() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			unsubscribed := make(chan struct{})
			go func() {
				p.Pool.UnsubscribeFromTransactions(p.events)
				close(unsubscribed)
			}()
			for {
				select {
				case <-p.events:
				case <-unsubscribed:
					return
				}
			}
		case e := <-p.events:
			if e.Type != mempoolevent.TransactionRemoved || e.Reason != mempoolevent.Evicted {
				continue
			}
			evictedCount.Inc()
			id := e.Tx.ID()
			p.recordFailure(id, "evicted by a better paying transaction")
			// It could have been resubmitted already.
			if !p.Pool.ContainsKey(id) {
				p.deleteStored(id)
			}
		}
	}
}

// Submit decodes and admits a locally submitted transaction, it's relayed to
// peers and rebroadcasted until confirmed.
func (p *Processor) Submit(b []byte) (uint64, error) {
	tx, err := transaction.NewTransactionFromBytes(b)
	if err != nil {
		updateAdmissionMetrics(sourceLocal, err)
		return 0, err
	}
	err = p.add(tx, true)
	updateAdmissionMetrics(sourceLocal, err)
	if err != nil {
		return tx.ID(), err
	}
	if p.Broadcaster != nil {
		p.Broadcaster.SendToSomePeers([]*transaction.Transaction{tx})
	}
	return tx.ID(), nil
}

// AddPeerTransaction admits a transaction received from a peer.
func (p *Processor) AddPeerTransaction(tx *transaction.Transaction) error {
	err := p.add(tx, false)
	updateAdmissionMetrics(sourcePeer, err)
	if err != nil && !errors.Is(err, mempool.ErrDup) {
		p.Log.Debug("peer transaction rejected",
			zap.String("id", tx.IDString()),
			zap.Error(err))
	}
	return err
}

func (p *Processor) add(tx *transaction.Transaction, broadcasted bool) error {
	id := tx.ID()
	if p.Chain.HasTransaction(id) {
		return ErrAlreadyExists
	}
	if p.Pool.ContainsKey(id) {
		return mempool.ErrDup
	}
	tx, err := p.admit(tx, broadcasted)
	if err != nil {
		if !errors.Is(err, mempool.ErrDup) {
			p.recordFailure(id, err.Error())
		}
		return err
	}
	if err := p.persist(tx, broadcasted); err != nil {
		p.Pool.Remove(id)
		return err
	}
	return nil
}

// admit validates the transaction and adds it to the pool, the transaction
// actually pooled is returned.
func (p *Processor) admit(tx *transaction.Transaction, broadcasted bool) (*transaction.Transaction, error) {
	if err := p.Verifier.VerifyStateIndependent(tx); err != nil {
		return nil, err
	}
	if tx.HasPrunedData() {
		var (
			src transaction.PrunableSource
			err error
		)
		if p.Prunable != nil {
			src = p.Prunable
		}
		cfg := p.Verifier.Registry().Config()
		tx, err = tx.Materialize(context.Background(), src, cfg.PrunableRetention, p.Chain.EpochTime())
		if err != nil {
			return nil, transaction.NotCurrentlyValidf("%w", err)
		}
	}
	if err := p.Verifier.VerifyStateDependent(p.Chain, p.Chain, tx); err != nil {
		return nil, err
	}
	keys := p.Verifier.Registry().DuplicateKeys(tx, p.Chain.GetPhasingControl(tx.Sender()))
	if err := p.Pool.Add(tx, p.Chain, broadcasted, keys...); err != nil {
		return nil, err
	}
	// A block with it could have been confirmed since the first check.
	if p.Chain.HasTransaction(tx.ID()) {
		p.Pool.Remove(tx.ID())
		return nil, ErrAlreadyExists
	}
	return tx, nil
}

func (p *Processor) persist(tx *transaction.Transaction, broadcasted bool) error {
	if p.Prunable != nil {
		if err := p.Prunable.PutTransaction(tx); err != nil {
			return fmt.Errorf("failed to store prunable data: %w", err)
		}
	}
	if p.Store == nil {
		return nil
	}
	e, ok := p.Pool.TryGetEntry(tx.ID())
	if !ok {
		// Already evicted or confirmed.
		return nil
	}
	if err := p.Store.Put(tx, e.Arrival, broadcasted); err != nil {
		return fmt.Errorf("failed to persist transaction: %w", err)
	}
	return nil
}

// OnBlockConfirmed removes included transactions and drops pooled ones that
// became invalid after the block (expired or not affordable anymore).
func (p *Processor) OnBlockConfirmed(ids []uint64) error {
	removed := p.Pool.RemoveBatch(ids)
	now := p.Chain.EpochTime()
	stale := p.Pool.RemoveStale(func(tx *transaction.Transaction) bool {
		return !p.Chain.HasTransaction(tx.ID()) && !tx.IsExpired(now)
	}, p.Chain)

	toDelete := make([]uint64, 0, len(ids)+len(stale))
	toDelete = append(toDelete, ids...)
	for _, tx := range stale {
		id := tx.ID()
		toDelete = append(toDelete, id)
		switch {
		case p.Chain.HasTransaction(id):
		case tx.IsExpired(now):
			p.recordFailure(id, "expired")
		default:
			p.recordFailure(id, "insufficient balance after block")
		}
	}
	p.Log.Debug("block confirmed",
		zap.Uint32("height", p.Chain.BlockHeight()),
		zap.Int("included", len(removed)),
		zap.Int("stale", len(stale)))
	if p.Store == nil {
		return nil
	}
	return p.Store.Delete(toDelete...)
}

// Purge removes the given transactions from the pool and the store. reason
// is recorded as the failure reason, transactions marked failed keep their
// own error message. The number of transactions removed from the pool is
// returned.
func (p *Processor) Purge(ids []uint64, reason string) int {
	removed := p.Pool.RemoveBatch(ids)
	for _, tx := range removed {
		r := reason
		if tx.Failed() {
			r = tx.ErrorMessage()
		}
		if r != "" {
			p.recordFailure(tx.ID(), r)
		}
	}
	p.deleteStored(ids...)
	return len(removed)
}

// SnapshotForBlockBuilding returns pooled transactions in priority order.
func (p *Processor) SnapshotForBlockBuilding() []*transaction.Transaction {
	return p.Pool.GetVerifiedTransactions()
}

// PoolStats returns the pool summary.
func (p *Processor) PoolStats() mempool.Stats {
	return p.Pool.Stats()
}

// GetTransaction returns a pooled transaction.
func (p *Processor) GetTransaction(id uint64) (*transaction.Transaction, bool) {
	return p.Pool.TryGetValue(id)
}

// FailureReason returns the reason a recently rejected or purged
// transaction failed.
func (p *Processor) FailureReason(id uint64) (string, bool) {
	v, ok := p.failures.Get(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Restore re-admits transactions from the store, those that can't be
// admitted anymore are deleted. It returns the number of restored
// transactions.
func (p *Processor) Restore() (int, error) {
	if p.Store == nil {
		return 0, nil
	}
	var (
		restored int
		drop     []uint64
	)
	err := p.Store.Iterate(func(rec *dao.UnconfirmedRecord) bool {
		id := rec.Tx.ID()
		var err error
		if p.Chain.HasTransaction(id) {
			err = ErrAlreadyExists
		} else {
			_, err = p.admit(rec.Tx, rec.Broadcasted)
		}
		updateAdmissionMetrics(sourceRestore, err)
		if err != nil {
			if p.Pool.ContainsKey(id) {
				return true
			}
			if !errors.Is(err, mempool.ErrDup) {
				p.recordFailure(id, err.Error())
			}
			drop = append(drop, id)
			return true
		}
		restored++
		return true
	})
	if len(drop) != 0 {
		if dErr := p.Store.Delete(drop...); dErr != nil {
			err = errors.Join(err, dErr)
		}
	}
	p.Log.Info("unconfirmed transactions restored",
		zap.Int("restored", restored),
		zap.Int("dropped", len(drop)))
	return restored, err
}

func (p *Processor) recordFailure(id uint64, reason string) {
	p.failures.Add(id, reason)
}

func (p *Processor) deleteStored(ids ...uint64) {
	if p.Store == nil {
		return
	}
	if err := p.Store.Delete(ids...); err != nil {
		p.Log.Warn("failed to delete unconfirmed transactions",
			zap.Int("count", len(ids)),
			zap.Error(err))
	}
}
