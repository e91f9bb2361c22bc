package dao

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/nspcc-dev/ledgerpool/pkg/core/storage"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Version is the current schema version of the stored data.
const Version = "0.1.0"

// Simple is a data access object over the node store.
type Simple struct {
	Store storage.Store
}

// NewSimple creates new simple dao using provided backend store.
func NewSimple(backend storage.Store) *Simple {
	return &Simple{Store: backend}
}

// GetWrapped returns a write-caching DAO over the current one, changes are
// written with a single changeset on Persist.
func (dao *Simple) GetWrapped() *Cached {
	return NewCached(dao)
}

// GetAndDecode performs get operation and decoding with serializable structures.
func (dao *Simple) GetAndDecode(entity io.Serializable, key []byte) error {
	entityBytes, err := dao.Store.Get(key)
	if err != nil {
		return err
	}
	reader := io.NewBinReaderFromBuf(entityBytes)
	entity.DecodeBinary(reader)
	return reader.Err
}

// Put performs put operation with serializable structures.
func (dao *Simple) Put(entity io.Serializable, key []byte) error {
	return dao.putWithBuffer(entity, key, io.NewBufBinWriter())
}

// putWithBuffer performs put operation using buf as a pre-allocated buffer for serialization.
func (dao *Simple) putWithBuffer(entity io.Serializable, key []byte, buf *io.BufBinWriter) error {
	entity.EncodeBinary(buf.BinWriter)
	if buf.Err != nil {
		return buf.Err
	}
	return dao.Store.PutChangeSet(map[string][]byte{string(key): buf.Bytes()})
}

// GetVersion attempts to get the current version stored in the
// underlying store.
func (dao *Simple) GetVersion() (string, error) {
	return storage.Version(dao.Store)
}

// PutVersion stores the given version in the underlying store.
func (dao *Simple) PutVersion(v string) error {
	return storage.PutVersion(dao.Store, v)
}

// CheckVersion initializes a fresh store with the current schema version
// and rejects a store written by an incompatible one.
func (dao *Simple) CheckVersion() error {
	return storage.CheckVersion(dao.Store, Version)
}

// -- start unconfirmed transactions.

// UnconfirmedRecord is a persisted pool entry.
type UnconfirmedRecord struct {
	Tx          *transaction.Transaction
	Arrival     time.Time
	Broadcasted bool
}

// EncodeBinary implements the io.Serializable interface.
func (u *UnconfirmedRecord) EncodeBinary(w *io.BinWriter) {
	w.WriteU64LE(uint64(u.Arrival.UnixNano()))
	w.WriteBool(u.Broadcasted)
	u.Tx.EncodeBinary(w)
}

// DecodeBinary implements the io.Serializable interface.
func (u *UnconfirmedRecord) DecodeBinary(r *io.BinReader) {
	u.Arrival = time.Unix(0, int64(r.ReadU64LE()))
	u.Broadcasted = r.ReadBool()
	u.Tx = new(transaction.Transaction)
	u.Tx.DecodeBinary(r)
}

func makeUnconfirmedKey(id uint64) []byte {
	key := make([]byte, 9)
	key[0] = byte(storage.UnconfirmedTx)
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

// Unconfirmed is the persistent store of pooled transactions, it allows to
// restore the pool after a restart.
type Unconfirmed struct {
	*Simple
}

// NewUnconfirmed returns a store of pooled transactions over the dao.
func NewUnconfirmed(dao *Simple) *Unconfirmed {
	return &Unconfirmed{Simple: dao}
}

// Put stores the transaction with its pool metadata.
func (u *Unconfirmed) Put(tx *transaction.Transaction, arrival time.Time, broadcasted bool) error {
	return u.Simple.Put(&UnconfirmedRecord{
		Tx:          tx,
		Arrival:     arrival,
		Broadcasted: broadcasted,
	}, makeUnconfirmedKey(tx.ID()))
}

// Get returns the stored record of the transaction.
func (u *Unconfirmed) Get(id uint64) (*UnconfirmedRecord, error) {
	rec := new(UnconfirmedRecord)
	if err := u.GetAndDecode(rec, makeUnconfirmedKey(id)); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the given transactions, missing ones are ignored.
func (u *Unconfirmed) Delete(ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	c := u.GetWrapped()
	for _, id := range ids {
		c.Delete(makeUnconfirmedKey(id))
	}
	_, err := c.Persist()
	return err
}

// Iterate calls f for every stored record in id order until f returns
// false. Records are read before the first call, so f can change the store.
// Records that can't be decoded are deleted and reported in the returned
// error.
func (u *Unconfirmed) Iterate(f func(*UnconfirmedRecord) bool) error {
	var (
		recs []*UnconfirmedRecord
		bad  []uint64
		errs []error
	)
	u.Store.Seek(storage.SeekRange{Prefix: storage.UnconfirmedTx.Bytes()}, func(k, v []byte) bool {
		id := binary.BigEndian.Uint64(k[1:])
		rec := new(UnconfirmedRecord)
		r := io.NewBinReaderFromBuf(v)
		rec.DecodeBinary(r)
		if r.Err != nil {
			bad = append(bad, id)
			errs = append(errs, fmt.Errorf("transaction %d: %w", id, r.Err))
			return true
		}
		recs = append(recs, rec)
		return true
	})
	if len(bad) != 0 {
		if err := u.Delete(bad...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, rec := range recs {
		if !f(rec) {
			break
		}
	}
	return errors.Join(errs...)
}

// -- end unconfirmed transactions.

// -- start prunable data.

// Prunable stores prunable payloads of transactions until the end of their
// retention window. It implements transaction.PrunableSource.
type Prunable struct {
	*Simple
	retention uint32
}

// NewPrunable returns a prunable data store keeping payloads for retention
// seconds after the transaction timestamp.
func NewPrunable(dao *Simple, retention uint32) *Prunable {
	return &Prunable{Simple: dao, retention: retention}
}

func makePrunableKey(c util.Uint256) []byte {
	key := make([]byte, 1+util.Uint256Size)
	key[0] = byte(storage.PrunableData)
	copy(key[1:], c[:])
	return key
}

// PutTransaction stores all available prunable payloads of the transaction.
func (p *Prunable) PutTransaction(tx *transaction.Transaction) error {
	data := tx.PrunableData()
	if len(data) == 0 {
		return nil
	}
	until := tx.Timestamp + p.retention
	c := p.GetWrapped()
	for commitment, d := range data {
		v := make([]byte, 4+len(d))
		binary.LittleEndian.PutUint32(v, until)
		copy(v[4:], d)
		c.Put(makePrunableKey(commitment), v)
	}
	_, err := c.Persist()
	return err
}

// GetPrunable implements the transaction.PrunableSource interface.
func (p *Prunable) GetPrunable(ctx context.Context, commitment util.Uint256) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.Store.Get(makePrunableKey(commitment))
	if err != nil {
		return nil, err
	}
	if len(v) < 4 {
		return nil, errors.New("invalid prunable record")
	}
	return v[4:], nil
}

// Prune removes payloads with retention window passed by now and returns
// the number of removed ones.
func (p *Prunable) Prune(now uint32) (int, error) {
	var n int
	err := p.Store.SeekGC(storage.SeekRange{Prefix: storage.PrunableData.Bytes()}, func(_, v []byte) bool {
		if len(v) < 4 || binary.LittleEndian.Uint32(v) < now {
			n++
			return false
		}
		return true
	})
	return n, err
}

// -- end prunable data.
