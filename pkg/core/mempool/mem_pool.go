package mempool

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempoolevent"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"go.uber.org/atomic"
)

var (
	// ErrInsufficientFunds is returned when the sender is not able to pay for
	// the transaction being added irrespective of the other contents of the
	// pool.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict is returned when the transaction being added is incompatible
	// with the contents of the memory pool (sender doesn't have enough funds
	// to pay for all transactions in the pool).
	ErrConflict = errors.New("conflicts: insufficient funds for all pooled tx")
	// ErrDup is returned when the transaction being added is already present
	// in the memory pool or holds a duplicate key of a pooled transaction.
	ErrDup = errors.New("already in the memory pool")
	// ErrOOM is returned when the transaction just doesn't fit in the memory
	// pool because of its capacity constraints.
	ErrOOM = errors.New("out of memory")
)

// item represents a transaction in the the Memory pool.
type item struct {
	txn         *transaction.Transaction
	arrival     time.Time
	seq         uint64
	broadcasted bool
	keys        []string
}

// items is a slice of an item.
type items []*item

// Entry is a copy of the pool item given to the callers.
type Entry struct {
	Tx          *transaction.Transaction
	Arrival     time.Time
	Broadcasted bool
}

// Stats is a summary of the pool contents.
type Stats struct {
	Count int
	// OldestArrival is zero for an empty pool.
	OldestArrival time.Time
	TotalFee      *big.Int
}

// utilityBalanceAndFees stores the sender's balance and overall costs of
// the sender's transactions which are currently in the mempool.
type utilityBalanceAndFees struct {
	balance uint256.Int
	feeSum  uint256.Int
}

// Pool stores the unconfirmed transactions.
type Pool struct {
	lock         sync.RWMutex
	verifiedMap  map[uint64]*item
	verifiedTxes items
	bySender     map[util.Uint160]map[uint64]*item
	keys         map[string]uint64
	fees         map[util.Uint160]utilityBalanceAndFees
	totalFee     uint256.Int

	capacity        int
	seq             uint64
	clock           clockwork.Clock
	updateMetricsCb func(int)

	// subscriptions for mempool events
	subscriptionsEnabled bool
	subscriptionsOn      atomic.Bool
	stopCh               chan struct{}
	events               chan mempoolevent.Event
	subCh                chan chan<- mempoolevent.Event
	unsubCh              chan chan<- mempoolevent.Event
}

// Option is a pool constructor option.
type Option func(*Pool)

// WithClock sets the clock used for arrival times.
func WithClock(c clockwork.Clock) Option {
	return func(mp *Pool) {
		mp.clock = c
	}
}

// WithMetricsCallback sets a function called with the pool size on every
// change.
func WithMetricsCallback(f func(int)) Option {
	return func(mp *Pool) {
		mp.updateMetricsCb = f
	}
}

// WithSubscriptions enables event subscriptions, see RunSubscriptions.
func WithSubscriptions() Option {
	return func(mp *Pool) {
		mp.subscriptionsEnabled = true
	}
}

func (p items) Len() int           { return len(p) }
func (p items) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p items) Less(i, j int) bool { return p[i].CompareTo(p[j]) < 0 }

// CompareTo returns the difference between two items in priority.
// difference < 0 implies p < otherP.
// difference = 0 implies p = otherP.
// difference > 0 implies p > otherP.
// Higher fee per byte wins, then earlier arrival, then earlier admission.
func (p *item) CompareTo(otherP *item) int {
	if ret := compareFeePerByte(p.txn, otherP.txn); ret != 0 {
		return ret
	}
	if !p.arrival.Equal(otherP.arrival) {
		if p.arrival.Before(otherP.arrival) {
			return 1
		}
		return -1
	}
	switch {
	case p.seq < otherP.seq:
		return 1
	case p.seq > otherP.seq:
		return -1
	}
	return 0
}

// compareFeePerByte compares a.Fee/a.Size and b.Fee/b.Size exactly.
func compareFeePerByte(a, b *transaction.Transaction) int {
	ah, al := bits.Mul64(uint64(a.Fee), uint64(b.Size()))
	bh, bl := bits.Mul64(uint64(b.Fee), uint64(a.Size()))
	switch {
	case ah > bh || ah == bh && al > bl:
		return 1
	case ah < bh || ah == bh && al < bl:
		return -1
	}
	return 0
}

func (p *item) entry() Entry {
	return Entry{
		Tx:          p.txn,
		Arrival:     p.arrival,
		Broadcasted: p.broadcasted,
	}
}

// New returns a new Pool struct.
func New(capacity int, opts ...Option) *Pool {
	mp := &Pool{
		verifiedMap:  make(map[uint64]*item, capacity),
		verifiedTxes: make(items, 0, capacity),
		bySender:     make(map[util.Uint160]map[uint64]*item),
		keys:         make(map[string]uint64),
		fees:         make(map[util.Uint160]utilityBalanceAndFees),
		capacity:     capacity,
		clock:        clockwork.NewRealClock(),
		stopCh:       make(chan struct{}),
		events:       make(chan mempoolevent.Event),
		subCh:        make(chan chan<- mempoolevent.Event),
		unsubCh:      make(chan chan<- mempoolevent.Event),
	}
	for _, o := range opts {
		o(mp)
	}
	mp.subscriptionsOn.Store(false)
	return mp
}

// Capacity returns the maximum number of transactions in the pool.
func (mp *Pool) Capacity() int {
	return mp.capacity
}

// Count returns the total number of uncofirmed transactions.
func (mp *Pool) Count() int {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	return len(mp.verifiedTxes)
}

// ContainsKey checks if the transaction id is in the Pool.
func (mp *Pool) ContainsKey(id uint64) bool {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	_, ok := mp.verifiedMap[id]
	return ok
}

// HasDuplicateKey returns true if some pooled transaction holds the key.
func (mp *Pool) HasDuplicateKey(key string) bool {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	_, ok := mp.keys[key]
	return ok
}

// checkBalance returns a new cumulative cost for the account or an error in
// case the sender doesn't have enough funds to pay for the transaction.
func checkBalance(tx *transaction.Transaction, balance utilityBalanceAndFees) (uint256.Int, error) {
	var txFee uint256.Int

	txFee.SetUint64(uint64(tx.Cost()))
	if balance.balance.Cmp(&txFee) < 0 {
		return txFee, ErrInsufficientFunds
	}
	txFee.Add(&txFee, &balance.feeSum)
	if balance.balance.Cmp(&txFee) < 0 {
		return txFee, ErrConflict
	}
	return txFee, nil
}

// senderFee returns the cached sender balance and cost sum, the balance is
// taken from feer for senders unknown to the pool.
func (mp *Pool) senderFee(sender util.Uint160, feer Feer) utilityBalanceAndFees {
	senderFee, ok := mp.fees[sender]
	if !ok {
		if b := feer.GetBalance(sender); b > 0 {
			senderFee.balance.SetUint64(uint64(b))
		}
	}
	return senderFee
}

// tryAddSendersFee tries to add the transaction cost to the total sender's
// cost in the mempool and returns false if both balance check is required
// and the sender does not have enough funds to pay.
func (mp *Pool) tryAddSendersFee(tx *transaction.Transaction, feer Feer, needCheck bool) bool {
	sender := tx.Sender()
	senderFee := mp.senderFee(sender, feer)
	if needCheck {
		newFeeSum, err := checkBalance(tx, senderFee)
		if err != nil {
			return false
		}
		senderFee.feeSum = newFeeSum
	} else {
		senderFee.feeSum.AddUint64(&senderFee.feeSum, uint64(tx.Cost()))
	}
	mp.fees[sender] = senderFee
	return true
}

// Add tries to add the given transaction to the Pool. keys are duplicate
// keys of the transaction, no two pooled transactions can share a key. The
// pool isn't changed if an error is returned.
func (mp *Pool) Add(t *transaction.Transaction, feer Feer, broadcasted bool, keys ...string) error {
	mp.lock.Lock()
	pItem, evicted, err := mp.addInternal(t, feer, broadcasted, keys)
	mp.lock.Unlock()
	if err != nil {
		return err
	}
	if mp.subscriptionsOn.Load() {
		if evicted != nil {
			mp.events <- mempoolevent.Event{
				Type:   mempoolevent.TransactionRemoved,
				Tx:     evicted.txn,
				Reason: mempoolevent.Evicted,
			}
		}
		mp.events <- mempoolevent.Event{
			Type: mempoolevent.TransactionAdded,
			Tx:   pItem.txn,
		}
	}
	return nil
}

func (mp *Pool) addInternal(t *transaction.Transaction, feer Feer, broadcasted bool, keys []string) (*item, *item, error) {
	id := t.ID()
	if _, ok := mp.verifiedMap[id]; ok {
		return nil, nil, ErrDup
	}
	for _, k := range keys {
		if _, ok := mp.keys[k]; ok {
			return nil, nil, fmt.Errorf("%w: duplicate key %s", ErrDup, k)
		}
	}
	var pItem = &item{
		txn:         t,
		arrival:     mp.clock.Now(),
		seq:         mp.seq + 1,
		broadcasted: broadcasted,
		keys:        keys,
	}
	n, unlucky, err := mp.place(pItem)
	if err != nil {
		return nil, nil, err
	}
	if err := mp.checkSenderBalance(t, feer, unlucky); err != nil {
		return nil, nil, err
	}
	if unlucky != nil {
		// Ditch the last one.
		mp.verifiedTxes = mp.verifiedTxes[:len(mp.verifiedTxes)-1]
		mp.unindex(unlucky, true)
	}
	mp.seq++
	mp.verifiedTxes = append(mp.verifiedTxes, pItem)
	if n != len(mp.verifiedTxes)-1 {
		copy(mp.verifiedTxes[n+1:], mp.verifiedTxes[n:])
		mp.verifiedTxes[n] = pItem
	}
	mp.verifiedMap[id] = pItem
	sender := t.Sender()
	if mp.bySender[sender] == nil {
		mp.bySender[sender] = make(map[uint64]*item)
	}
	mp.bySender[sender][id] = pItem
	for _, k := range keys {
		mp.keys[k] = id
	}
	mp.totalFee.AddUint64(&mp.totalFee, uint64(t.Fee))
	// we already checked balance above, so don't need to check again
	mp.tryAddSendersFee(t, feer, false)

	if mp.updateMetricsCb != nil {
		mp.updateMetricsCb(len(mp.verifiedTxes))
	}
	return pItem, unlucky, nil
}

// place returns the position of itm in the sorted slice and the item to be
// evicted to make room for it if the pool is full.
func (mp *Pool) place(itm *item) (int, *item, error) {
	// Insert into a sorted array (from max to min). We're searching for a
	// position that is strictly less prioritized than our new item.
	n := sort.Search(len(mp.verifiedTxes), func(n int) bool {
		return itm.CompareTo(mp.verifiedTxes[n]) > 0
	})
	if len(mp.verifiedTxes) < mp.capacity {
		return n, nil, nil
	}
	// Less prioritized than the least prioritized we already have, won't fit.
	if n == len(mp.verifiedTxes) {
		return n, nil, ErrOOM
	}
	return n, mp.verifiedTxes[len(mp.verifiedTxes)-1], nil
}

// checkSenderBalance checks the sender is able to pay for tx and all of its
// pooled transactions except the one to be evicted.
func (mp *Pool) checkSenderBalance(tx *transaction.Transaction, feer Feer, evicted *item) error {
	sender := tx.Sender()
	senderFee := mp.senderFee(sender, feer)
	if evicted != nil && evicted.txn.Sender().Equals(sender) {
		senderFee.feeSum.SubUint64(&senderFee.feeSum, uint64(evicted.txn.Cost()))
	}
	_, err := checkBalance(tx, senderFee)
	return err
}

// unindex removes the item from all indices except the sorted slice. Sender
// costs are only adjusted if adjustFees is set.
func (mp *Pool) unindex(itm *item, adjustFees bool) {
	id := itm.txn.ID()
	delete(mp.verifiedMap, id)
	sender := itm.txn.Sender()
	if m := mp.bySender[sender]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(mp.bySender, sender)
		}
	}
	for _, k := range itm.keys {
		if mp.keys[k] == id {
			delete(mp.keys, k)
		}
	}
	mp.totalFee.SubUint64(&mp.totalFee, uint64(itm.txn.Fee))
	if !adjustFees {
		return
	}
	if senderFee, ok := mp.fees[sender]; ok {
		senderFee.feeSum.SubUint64(&senderFee.feeSum, uint64(itm.txn.Cost()))
		if _, ok := mp.bySender[sender]; !ok {
			delete(mp.fees, sender)
		} else {
			mp.fees[sender] = senderFee
		}
	}
}

// Remove removes an item from the mempool if it exists there (and does
// nothing if it doesn't). It returns true if the transaction was removed.
func (mp *Pool) Remove(id uint64) bool {
	mp.lock.Lock()
	itm := mp.removeInternal(id)
	mp.lock.Unlock()
	if itm != nil {
		mp.notifyRemoved(itm, mempoolevent.Removed)
	}
	return itm != nil
}

// RemoveBatch removes all given transactions under a single lock and returns
// the removed ones.
func (mp *Pool) RemoveBatch(ids []uint64) []*transaction.Transaction {
	var removed []*item
	mp.lock.Lock()
	for _, id := range ids {
		if itm := mp.removeInternal(id); itm != nil {
			removed = append(removed, itm)
		}
	}
	mp.lock.Unlock()
	res := make([]*transaction.Transaction, len(removed))
	for i, itm := range removed {
		mp.notifyRemoved(itm, mempoolevent.Removed)
		res[i] = itm.txn
	}
	return res
}

// removeInternal is an internal unlocked representation of Remove.
func (mp *Pool) removeInternal(id uint64) *item {
	itm, ok := mp.verifiedMap[id]
	if !ok {
		return nil
	}
	num := sort.Search(len(mp.verifiedTxes), func(n int) bool {
		return itm.CompareTo(mp.verifiedTxes[n]) >= 0
	})
	if num == len(mp.verifiedTxes) || mp.verifiedTxes[num] != itm {
		// Priorities are unique (admission sequence), so this can only
		// happen if the ordering is broken, do a full scan then.
		for num = range mp.verifiedTxes {
			if mp.verifiedTxes[num] == itm {
				break
			}
		}
	}
	mp.verifiedTxes = append(mp.verifiedTxes[:num], mp.verifiedTxes[num+1:]...)
	mp.unindex(itm, true)
	if mp.updateMetricsCb != nil {
		mp.updateMetricsCb(len(mp.verifiedTxes))
	}
	return itm
}

func (mp *Pool) notifyRemoved(itm *item, reason mempoolevent.Reason) {
	if mp.subscriptionsOn.Load() {
		mp.events <- mempoolevent.Event{
			Type:   mempoolevent.TransactionRemoved,
			Tx:     itm.txn,
			Reason: reason,
		}
	}
}

// RemoveStale filters verified transactions through the given function keeping
// only the transactions for which it returns true result. Sender balances
// are reloaded from feer and re-checked. It's used to quickly drop a part of
// the mempool that is now invalid after the block acceptance. Removed
// transactions are returned.
func (mp *Pool) RemoveStale(isOK func(*transaction.Transaction) bool, feer Feer) []*transaction.Transaction {
	mp.lock.Lock()
	// We can reuse already allocated slice
	// because items are iterated one-by-one in increasing order.
	newVerifiedTxes := mp.verifiedTxes[:0]
	mp.fees = make(map[util.Uint160]utilityBalanceAndFees) // it'd be nice to reuse existing map, but we can't easily clear it
	var stale []*item
	for _, itm := range mp.verifiedTxes {
		if isOK(itm.txn) && mp.tryAddSendersFee(itm.txn, feer, true) {
			newVerifiedTxes = append(newVerifiedTxes, itm)
		} else {
			stale = append(stale, itm)
		}
	}
	mp.verifiedTxes = newVerifiedTxes
	for _, itm := range stale {
		mp.unindex(itm, false)
	}
	if mp.updateMetricsCb != nil {
		mp.updateMetricsCb(len(mp.verifiedTxes))
	}
	mp.lock.Unlock()

	res := make([]*transaction.Transaction, len(stale))
	for i, itm := range stale {
		mp.notifyRemoved(itm, mempoolevent.Stale)
		res[i] = itm.txn
	}
	return res
}

// TryGetValue returns a transaction if it exists in the memory pool.
func (mp *Pool) TryGetValue(id uint64) (*transaction.Transaction, bool) {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	if itm, ok := mp.verifiedMap[id]; ok {
		return itm.txn, true
	}
	return nil, false
}

// TryGetEntry returns a copy of the pool entry if it exists.
func (mp *Pool) TryGetEntry(id uint64) (Entry, bool) {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	if itm, ok := mp.verifiedMap[id]; ok {
		return itm.entry(), true
	}
	return Entry{}, false
}

// GetAllBySender returns all pooled transactions of the sender in priority
// order.
func (mp *Pool) GetAllBySender(sender util.Uint160) []*transaction.Transaction {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	m := mp.bySender[sender]
	if len(m) == 0 {
		return nil
	}
	res := make(items, 0, len(m))
	for _, itm := range m {
		res = append(res, itm)
	}
	sort.Sort(sort.Reverse(res))
	txs := make([]*transaction.Transaction, len(res))
	for i := range res {
		txs[i] = res[i].txn
	}
	return txs
}

// GetVerifiedTransactions returns a slice of transactions in priority order
// (the best first).
func (mp *Pool) GetVerifiedTransactions() []*transaction.Transaction {
	mp.lock.RLock()
	defer mp.lock.RUnlock()

	var t = make([]*transaction.Transaction, len(mp.verifiedTxes))
	for i := range mp.verifiedTxes {
		t[i] = mp.verifiedTxes[i].txn
	}
	return t
}

// Entries returns copies of all entries in priority order.
func (mp *Pool) Entries() []Entry {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	res := make([]Entry, len(mp.verifiedTxes))
	for i := range mp.verifiedTxes {
		res[i] = mp.verifiedTxes[i].entry()
	}
	return res
}

// IterateExpired calls f for every entry that is expired at now (in epoch
// seconds) until f returns false. It iterates over a point-in-time snapshot
// so that f can freely modify the pool, every call takes a new snapshot.
func (mp *Pool) IterateExpired(now uint32, f func(Entry) bool) {
	mp.lock.RLock()
	var expired []Entry
	for _, itm := range mp.verifiedTxes {
		if itm.txn.IsExpired(now) {
			expired = append(expired, itm.entry())
		}
	}
	mp.lock.RUnlock()
	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].Tx.Expiration() < expired[j].Tx.Expiration()
	})
	for _, e := range expired {
		if !f(e) {
			return
		}
	}
}

// GetBroadcasted returns copies of the entries originated by this node.
func (mp *Pool) GetBroadcasted() []Entry {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	var res []Entry
	for _, itm := range mp.verifiedTxes {
		if itm.broadcasted {
			res = append(res, itm.entry())
		}
	}
	return res
}

// UnmarkBroadcasted removes the transaction from the broadcasted set.
func (mp *Pool) UnmarkBroadcasted(id uint64) {
	mp.lock.Lock()
	defer mp.lock.Unlock()
	if itm, ok := mp.verifiedMap[id]; ok {
		itm.broadcasted = false
	}
}

// Stats returns the pool summary.
func (mp *Pool) Stats() Stats {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	s := Stats{
		Count:    len(mp.verifiedTxes),
		TotalFee: mp.totalFee.ToBig(),
	}
	for _, itm := range mp.verifiedTxes {
		if s.OldestArrival.IsZero() || itm.arrival.Before(s.OldestArrival) {
			s.OldestArrival = itm.arrival
		}
	}
	return s
}

// Verify checks if the sender of the tx is able to pay for it (and all the
// other transactions in the pool) and that it doesn't duplicate pooled ones.
func (mp *Pool) Verify(tx *transaction.Transaction, feer Feer, keys ...string) error {
	mp.lock.RLock()
	defer mp.lock.RUnlock()
	if _, ok := mp.verifiedMap[tx.ID()]; ok {
		return ErrDup
	}
	for _, k := range keys {
		if _, ok := mp.keys[k]; ok {
			return fmt.Errorf("%w: duplicate key %s", ErrDup, k)
		}
	}
	_, unlucky, err := mp.place(&item{txn: tx, arrival: mp.clock.Now(), seq: mp.seq + 1})
	if err != nil {
		return err
	}
	return mp.checkSenderBalance(tx, feer, unlucky)
}
