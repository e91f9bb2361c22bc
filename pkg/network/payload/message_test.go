package payload_test

import (
	"testing"

	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/network/payload"
	"github.com/stretchr/testify/require"
)

func newTxs(t *testing.T, n int) []*transaction.Transaction {
	fc := fakechain.NewFakeChain(t)
	txs := make([]*transaction.Transaction, n)
	for i := range txs {
		txs[i] = fc.Sign(t, fc.Builder(&transaction.OrdinaryPayment{}).
			Recipient(fc.Keys[1].GetScriptHash()).
			Amount(int64(i+1)).
			Append(&transaction.Message{Data: make([]byte, 900)}), fc.Keys[0])
	}
	return txs
}

func checkDecoded(t *testing.T, expected []*transaction.Transaction, m *payload.Message) {
	require.Len(t, m.Transactions.Values, len(expected))
	for i := range expected {
		require.Equal(t, expected[i].ID(), m.Transactions.Values[i].ID())
		require.Equal(t, expected[i].Bytes(), m.Transactions.Values[i].Bytes())
	}
}

func TestMessage(t *testing.T) {
	txs := newTxs(t, 3)

	t.Run("plain", func(t *testing.T) {
		m := payload.NewMessage(netmode.UnitTestNet, txs)
		b, err := m.Bytes(0)
		require.NoError(t, err)
		require.Equal(t, payload.None, m.Flags)

		res, err := payload.DecodeMessage(b, netmode.UnitTestNet)
		require.NoError(t, err)
		require.Equal(t, payload.None, res.Flags)
		checkDecoded(t, txs, res)
	})
	t.Run("compressed", func(t *testing.T) {
		m := payload.NewMessage(netmode.UnitTestNet, txs)
		plain, err := m.Bytes(0)
		require.NoError(t, err)
		b, err := m.Bytes(1024)
		require.NoError(t, err)
		require.Equal(t, payload.Compressed, m.Flags)
		require.Less(t, len(b), len(plain))

		res, err := payload.DecodeMessage(b, netmode.UnitTestNet)
		require.NoError(t, err)
		require.Equal(t, payload.Compressed, res.Flags)
		checkDecoded(t, txs, res)
	})
	t.Run("below threshold", func(t *testing.T) {
		m := payload.NewMessage(netmode.UnitTestNet, txs[:1])
		_, err := m.Bytes(1 << 20)
		require.NoError(t, err)
		require.Equal(t, payload.None, m.Flags)
	})
	t.Run("wrong magic", func(t *testing.T) {
		b, err := payload.NewMessage(netmode.UnitTestNet, txs).Bytes(0)
		require.NoError(t, err)
		_, err = payload.DecodeMessage(b, netmode.PrivNet)
		require.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := payload.NewMessage(netmode.UnitTestNet, nil).Bytes(0)
		require.Error(t, err)
	})
	t.Run("trailing data", func(t *testing.T) {
		b, err := payload.NewMessage(netmode.UnitTestNet, txs).Bytes(0)
		require.NoError(t, err)
		_, err = payload.DecodeMessage(append(b, 0), netmode.UnitTestNet)
		require.Error(t, err)
	})
	t.Run("truncated", func(t *testing.T) {
		b, err := payload.NewMessage(netmode.UnitTestNet, txs).Bytes(0)
		require.NoError(t, err)
		_, err = payload.DecodeMessage(b[:len(b)-10], netmode.UnitTestNet)
		require.Error(t, err)
	})
	t.Run("bad compressed data", func(t *testing.T) {
		w := io.NewBufBinWriter()
		w.WriteU32LE(uint32(netmode.UnitTestNet))
		w.WriteB(byte(payload.Compressed))
		w.WriteVarBytes([]byte{0xff, 0xff, 0xff, 0xff})
		require.NoError(t, w.Err)
		_, err := payload.DecodeMessage(w.Bytes(), netmode.UnitTestNet)
		require.Error(t, err)
	})
}

func TestTransactions(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		r := io.NewBinReaderFromBuf([]byte{0})
		new(payload.Transactions).DecodeBinary(r)
		require.Error(t, r.Err)
	})
	t.Run("too big batch", func(t *testing.T) {
		w := io.NewBufBinWriter()
		w.WriteVarUint(payload.MaxBatchSize + 1)
		r := io.NewBinReaderFromBuf(w.Bytes())
		new(payload.Transactions).DecodeBinary(r)
		require.Error(t, r.Err)
	})
	t.Run("bad transaction", func(t *testing.T) {
		r := io.NewBinReaderFromBuf([]byte{1, 0xff, 0xff})
		new(payload.Transactions).DecodeBinary(r)
		require.Error(t, r.Err)
	})
}

func TestCompress(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 7)
	}
	c, err := payload.Compress(data)
	require.NoError(t, err)
	require.Less(t, len(c), len(data))
	d, err := payload.Decompress(c)
	require.NoError(t, err)
	require.Equal(t, data, d)
}
