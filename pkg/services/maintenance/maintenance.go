/*
Package maintenance implements background tasks keeping the pool clean:
expiry sweep, full re-validation and rebroadcasting of local transactions.
*/
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/core/blockchainer"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/verifier"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task names.
const (
	ExpiryTask       = "expiry"
	RevalidationTask = "revalidation"
	RebroadcastTask  = "rebroadcast"
)

// State is a task state.
type State int32

// Task states, every tick goes Idle -> Scanning -> Removing (or Sending) ->
// Idle.
const (
	Idle State = iota
	Scanning
	Removing
	Sending
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Removing:
		return "removing"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Purger removes transactions from the pool and the persistent store
// recording the reason, see processor.Processor.Purge.
type Purger interface {
	Purge(ids []uint64, reason string) int
}

// Pruner drops prunable payloads with passed retention window, see
// dao.Prunable.
type Pruner interface {
	Prune(now uint32) (int, error)
}

// Config contains service dependencies, Broadcaster and Pruner are optional.
type Config struct {
	Chain       blockchainer.Blockchainer
	Pool        *mempool.Pool
	Verifier    *verifier.Verifier
	Purger      Purger
	Broadcaster blockchainer.Broadcaster
	// Pruner is run after every re-validation.
	Pruner Pruner
	Settings    config.MemPool
	// Clock is the real one by default.
	Clock clockwork.Clock
	Log   *zap.Logger
}

type task struct {
	name  string
	state atomic.Int32
	ticks atomic.Uint64
}

func (t *task) set(s State) {
	t.state.Store(int32(s))
}

// Service runs maintenance tasks.
type Service struct {
	Config

	expiry       task
	revalidation task
	rebroadcast  task

	revalidateCh chan struct{}
	started      atomic.Bool
	cancel       context.CancelFunc
	eg           errgroup.Group
}

// New creates a maintenance service.
func New(cfg Config) (*Service, error) {
	if cfg.Chain == nil || cfg.Pool == nil || cfg.Verifier == nil || cfg.Purger == nil {
		return nil, errors.New("chain, pool, verifier and purger are mandatory")
	}
	if cfg.Settings.ExpiryInterval <= 0 || cfg.Settings.RebroadcastInterval <= 0 {
		return nil, errors.New("intervals must be positive")
	}
	if cfg.Settings.BatchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Service{
		Config:       cfg,
		expiry:       task{name: ExpiryTask},
		revalidation: task{name: RevalidationTask},
		rebroadcast:  task{name: RebroadcastTask},
		revalidateCh: make(chan struct{}, 1),
	}, nil
}

// Name returns service name.
func (s *Service) Name() string {
	return "maintenance"
}

// State returns the current state of the named task.
func (s *Service) State(name string) State {
	if t := s.task(name); t != nil {
		return State(t.state.Load())
	}
	return Idle
}

// Ticks returns the number of ticks the named task has run.
func (s *Service) Ticks(name string) uint64 {
	if t := s.task(name); t != nil {
		return t.ticks.Load()
	}
	return 0
}

func (s *Service) task(name string) *task {
	switch name {
	case ExpiryTask:
		return &s.expiry
	case RevalidationTask:
		return &s.revalidation
	case RebroadcastTask:
		return &s.rebroadcast
	}
	return nil
}

// Start runs the tasks until ctx is done or Shutdown is called.
func (s *Service) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.Log.Info("starting maintenance service",
		zap.Duration("expiry", s.Settings.ExpiryInterval),
		zap.Int("revalidateEvery", s.Settings.RevalidateEvery),
		zap.Duration("rebroadcast", s.Settings.RebroadcastInterval))
	s.eg.Go(func() error {
		return s.loop(ctx, s.Settings.ExpiryInterval, &s.expiry, s.expireTick)
	})
	s.eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-s.revalidateCh:
				s.run(ctx, &s.revalidation, s.revalidateTick)
			}
		}
	})
	s.eg.Go(func() error {
		return s.loop(ctx, s.Settings.RebroadcastInterval, &s.rebroadcast, s.rebroadcastTick)
	})
}

// Shutdown stops the tasks and waits for in-flight ticks to complete.
func (s *Service) Shutdown() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	_ = s.eg.Wait()
	s.Log.Info("maintenance service stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration, t *task, f func(context.Context) error) error {
	ticker := s.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.run(ctx, t, f)
		}
	}
}

// run executes a single tick, errors and panics abort only this tick.
func (s *Service) run(ctx context.Context, t *task, f func(context.Context) error) {
	defer t.set(Idle)
	t.ticks.Inc()
	err := safeCall(func() error { return f(ctx) })
	if err != nil && !errors.Is(err, context.Canceled) {
		tickFailures.WithLabelValues(t.name).Inc()
		s.Log.Error("maintenance tick failed",
			zap.String("task", t.name),
			zap.Error(err))
	}
}

// skip records a failure of a single entry, the rest of the batch is
// processed as usual and the entry is retried on the next tick.
func (s *Service) skip(t *task, tx *transaction.Transaction, err error) {
	entryFailures.WithLabelValues(t.name).Inc()
	s.Log.Error("maintenance task skipped transaction",
		zap.String("task", t.name),
		zap.String("id", tx.IDString()),
		zap.Error(err))
}

// confirmed checks whether tx is already in the chain.
func (s *Service) confirmed(tx *transaction.Transaction) (res bool, err error) {
	err = safeCall(func() error {
		res = s.Chain.HasTransaction(tx.ID())
		return nil
	})
	return res, err
}

func safeCall(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

// expireTick removes expired transactions, those already included into a
// block are left to the confirmation path.
func (s *Service) expireTick(ctx context.Context) error {
	s.expiry.set(Scanning)
	now := s.Chain.EpochTime()
	var (
		batch   = make([]uint64, 0, s.Settings.BatchSize)
		removed int
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.expiry.set(Removing)
		removed += s.Purger.Purge(batch, "expired")
		batch = make([]uint64, 0, s.Settings.BatchSize)
		s.expiry.set(Scanning)
	}
	s.Pool.IterateExpired(now, func(e mempool.Entry) bool {
		confirmed, err := s.confirmed(e.Tx)
		if err != nil {
			s.skip(&s.expiry, e.Tx, err)
			return ctx.Err() == nil
		}
		if confirmed {
			return true
		}
		batch = append(batch, e.Tx.ID())
		if len(batch) >= s.Settings.BatchSize {
			flush()
		}
		return ctx.Err() == nil
	})
	flush()
	if removed != 0 {
		removedCount.WithLabelValues("expired").Add(float64(removed))
		s.Log.Debug("expired transactions removed",
			zap.Uint32("epochTime", now),
			zap.Int("removed", removed))
	}
	if n := s.Settings.RevalidateEvery; n > 0 && s.expiry.ticks.Load()%uint64(n) == 0 {
		select {
		case s.revalidateCh <- struct{}{}:
		default:
		}
	}
	return ctx.Err()
}

// revalidateTick re-runs state dependent validation for every pooled
// transaction, failed ones are marked and removed. Transactions that are
// only early (see transaction.IsDeferred) stay in the pool untouched.
func (s *Service) revalidateTick(ctx context.Context) error {
	s.revalidation.set(Scanning)
	var (
		batch    = make([]uint64, 0, s.Settings.BatchSize)
		removed  int
		deferred int
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.revalidation.set(Removing)
		removed += s.Purger.Purge(batch, "")
		batch = make([]uint64, 0, s.Settings.BatchSize)
		s.revalidation.set(Scanning)
	}
	for _, e := range s.Pool.Entries() {
		if ctx.Err() != nil {
			break
		}
		tx := e.Tx
		err := safeCall(func() error {
			if s.Chain.HasTransaction(tx.ID()) {
				return nil
			}
			return s.Verifier.VerifyStateDependent(s.Chain, s.Chain, tx)
		})
		if err == nil {
			continue
		}
		if transaction.IsDeferred(err) {
			deferred++
			s.Log.Debug("transaction re-validation deferred",
				zap.String("id", tx.IDString()),
				zap.Error(err))
			continue
		}
		if !transaction.IsPermanent(err) && !transaction.IsTransient(err) {
			s.skip(&s.revalidation, tx, err)
			continue
		}
		if mErr := tx.MarkFailed(err.Error()); mErr != nil {
			s.Log.Debug("can't mark transaction failed",
				zap.String("id", tx.IDString()),
				zap.Error(mErr))
		}
		batch = append(batch, tx.ID())
		if len(batch) >= s.Settings.BatchSize {
			flush()
		}
	}
	flush()
	if removed != 0 {
		removedCount.WithLabelValues("invalid").Add(float64(removed))
		s.Log.Info("invalid transactions removed", zap.Int("removed", removed))
	}
	if deferred != 0 {
		deferredCount.Add(float64(deferred))
		s.Log.Debug("transactions deferred", zap.Int("deferred", deferred))
	}
	if s.Pruner != nil && ctx.Err() == nil {
		s.revalidation.set(Removing)
		n, err := s.Pruner.Prune(s.Chain.EpochTime())
		if err != nil {
			return fmt.Errorf("failed to prune payloads: %w", err)
		}
		if n != 0 {
			s.Log.Debug("prunable payloads removed", zap.Int("removed", n))
		}
	}
	return ctx.Err()
}

// rebroadcastTick announces local transactions that stay in the pool for
// longer than the minimum dwell time.
func (s *Service) rebroadcastTick(ctx context.Context) error {
	s.rebroadcast.set(Scanning)
	var (
		now     = s.Chain.EpochTime()
		wall    = s.Clock.Now()
		batch   []*transaction.Transaction
		unmark  int
		resent  int
		entries = s.Pool.GetBroadcasted()
	)
	send := func() {
		if len(batch) == 0 {
			return
		}
		s.rebroadcast.set(Sending)
		if s.Broadcaster != nil {
			s.Broadcaster.SendToSomePeers(batch)
		}
		resent += len(batch)
		batch = nil
		s.rebroadcast.set(Scanning)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		confirmed, err := s.confirmed(e.Tx)
		if err != nil {
			s.skip(&s.rebroadcast, e.Tx, err)
			continue
		}
		if confirmed {
			s.Pool.UnmarkBroadcasted(e.Tx.ID())
			unmark++
			continue
		}
		if e.Tx.IsExpired(now) || wall.Sub(e.Arrival) < s.Settings.RebroadcastMinDwell {
			continue
		}
		batch = append(batch, e.Tx)
		if len(batch) >= s.Settings.BatchSize {
			send()
		}
	}
	send()
	rebroadcastCount.Add(float64(resent))
	if resent != 0 || unmark != 0 {
		s.Log.Debug("rebroadcast done",
			zap.Int("resent", resent),
			zap.Int("confirmed", unmark))
	}
	return ctx.Err()
}
