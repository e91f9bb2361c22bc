package ledger

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/encoding/address"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"go.uber.org/zap"
)

// Memory is a thread-safe in-memory chain and account state. It implements
// blockchainer.Blockchainer and blockchainer.StateWriter.
type Memory struct {
	lock  sync.RWMutex
	st    *ledgerState
	clock clockwork.Clock
	// genesis is the unix time of epoch zero.
	genesis int64
	log     *zap.Logger

	blocks []uint64
	txs    map[uint64]uint32
}

// NewMemory creates a ledger with a genesis block holding the given
// balances.
func NewMemory(reg *txtype.Registry, genesis []config.GenesisBalance, clock clockwork.Clock, log *zap.Logger) (*Memory, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Memory{
		st:      newLedgerState(reg),
		clock:   clock,
		genesis: reg.Config().GenesisTimestamp,
		log:     log,
		txs:     make(map[uint64]uint32),
	}
	for _, g := range genesis {
		acc, err := address.StringToUint160(g.Address)
		if err != nil {
			return nil, fmt.Errorf("bad genesis address %s: %w", g.Address, err)
		}
		if err := m.st.AddBalance(acc, g.Amount); err != nil {
			return nil, fmt.Errorf("bad genesis balance for %s: %w", g.Address, err)
		}
	}
	m.blocks = append(m.blocks, GenesisBlockID(reg.Config().Magic))
	return m, nil
}

// GenesisBlockID returns the id of the genesis block for the network, it
// doesn't depend on genesis balances.
func GenesisBlockID(magic netmode.Magic) uint64 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(magic))
	return blockID(hash.Sha256(b[:]), nil)
}

func blockID(prev util.Uint256, txs []uint64) uint64 {
	buf := make([]byte, util.Uint256Size, util.Uint256Size+8*len(txs))
	copy(buf, prev[:])
	for _, id := range txs {
		buf = binary.LittleEndian.AppendUint64(buf, id)
	}
	h := hash.Sha256(buf)
	return binary.LittleEndian.Uint64(h[:8])
}

// HasTransaction implements the blockchainer.Chain interface.
func (m *Memory) HasTransaction(id uint64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.txs[id]
	return ok
}

// BlockHeight implements the blockchainer.Chain interface.
func (m *Memory) BlockHeight() uint32 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return uint32(len(m.blocks) - 1)
}

// EpochTime implements the blockchainer.Chain interface.
func (m *Memory) EpochTime() uint32 {
	t := m.clock.Now().Unix() - m.genesis
	if t < 0 {
		return 0
	}
	return uint32(t)
}

// GetBlockID implements the blockchainer.Chain interface.
func (m *Memory) GetBlockID(height uint32) (uint64, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if int(height) >= len(m.blocks) {
		return 0, false
	}
	return m.blocks[height], true
}

// AddBlock validates and applies the given transactions in a new block.
// Transactions failing kind checks or balance checks are marked failed and
// skipped. It returns the ids of included transactions.
func (m *Memory) AddBlock(txs []*transaction.Transaction) ([]uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	height := uint32(len(m.blocks))
	m.st.height = height
	var included []uint64
	for _, tx := range txs {
		if _, ok := m.txs[tx.ID()]; ok {
			continue
		}
		err := m.st.registry.Validate(m.st, height, tx)
		if err == nil {
			err = m.st.ApplyEffects(tx, tx.Sender(), tx.Recipient)
		}
		if err != nil {
			m.log.Debug("transaction skipped", zap.String("id", tx.IDString()), zap.Error(err))
			_ = tx.MarkFailed(err.Error())
			continue
		}
		included = append(included, tx.ID())
	}
	var prev util.Uint256
	binary.LittleEndian.PutUint64(prev[:], m.blocks[height-1])
	id := blockID(prev, included)
	m.blocks = append(m.blocks, id)
	for i, txID := range included {
		m.txs[txID] = height
		for _, tx := range txs {
			if tx.ID() == txID {
				_ = tx.SetConfirmed(height, id, uint16(i))
				break
			}
		}
	}
	m.log.Debug("block added", zap.Uint32("height", height), zap.Int("txs", len(included)))
	return included, nil
}

// GetBalance implements the blockchainer.Ledger interface.
func (m *Memory) GetBalance(acc util.Uint160) int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetBalance(acc)
}

// GetAccount implements the blockchainer.Ledger interface. It returns a copy.
func (m *Memory) GetAccount(acc util.Uint160) *state.Account {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if a := m.st.GetAccount(acc); a != nil {
		return a.Copy()
	}
	return nil
}

// GetAssetBalance implements the blockchainer.Ledger interface.
func (m *Memory) GetAssetBalance(acc util.Uint160, asset uint64) int64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetAssetBalance(acc, asset)
}

// GetAsset implements the blockchainer.Ledger interface.
func (m *Memory) GetAsset(id uint64) *state.Asset {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetAsset(id)
}

// GetAlias implements the blockchainer.Ledger interface.
func (m *Memory) GetAlias(name string) *state.Alias {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetAlias(name)
}

// GetPoll implements the blockchainer.Ledger interface.
func (m *Memory) GetPoll(id uint64) *state.Poll {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetPoll(id)
}

// HasVoted implements the blockchainer.Ledger interface.
func (m *Memory) HasVoted(poll uint64, voter util.Uint160) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.HasVoted(poll, voter)
}

// GetPhasingControl implements the blockchainer.Ledger interface.
func (m *Memory) GetPhasingControl(acc util.Uint160) *state.PhasingControl {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetPhasingControl(acc)
}

// GetLease implements the blockchainer.Ledger interface.
func (m *Memory) GetLease(acc util.Uint160) *state.Lease {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.st.GetLease(acc)
}

// ApplyEffects implements the blockchainer.Ledger interface. Effects are
// applied at the height of the next block.
func (m *Memory) ApplyEffects(tx *transaction.Transaction, sender, recipient util.Uint160) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.height = uint32(len(m.blocks))
	return m.st.ApplyEffects(tx, sender, recipient)
}

// AddBalance implements the blockchainer.StateWriter interface.
func (m *Memory) AddBalance(acc util.Uint160, delta int64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.st.AddBalance(acc, delta)
}

// AddAssetBalance implements the blockchainer.StateWriter interface.
func (m *Memory) AddAssetBalance(acc util.Uint160, asset uint64, delta int64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.st.AddAssetBalance(acc, asset, delta)
}

// SetPublicKey implements the blockchainer.StateWriter interface.
func (m *Memory) SetPublicKey(acc util.Uint160, pk *keys.PublicKey) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.SetPublicKey(acc, pk)
}

// SetAccountInfo implements the blockchainer.StateWriter interface.
func (m *Memory) SetAccountInfo(acc util.Uint160, name, description string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.SetAccountInfo(acc, name, description)
}

// PutAsset implements the blockchainer.StateWriter interface.
func (m *Memory) PutAsset(a *state.Asset) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.PutAsset(a)
}

// PutAlias implements the blockchainer.StateWriter interface.
func (m *Memory) PutAlias(a *state.Alias) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.PutAlias(a)
}

// PutPoll implements the blockchainer.StateWriter interface.
func (m *Memory) PutPoll(p *state.Poll) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.PutPoll(p)
}

// AddVote implements the blockchainer.StateWriter interface.
func (m *Memory) AddVote(poll uint64, voter util.Uint160) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.AddVote(poll, voter)
}

// SetPhasingControl implements the blockchainer.StateWriter interface.
func (m *Memory) SetPhasingControl(acc util.Uint160, c *state.PhasingControl) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.SetPhasingControl(acc, c)
}

// PutLease implements the blockchainer.StateWriter interface.
func (m *Memory) PutLease(l *state.Lease) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.st.PutLease(l)
}
