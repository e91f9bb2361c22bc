package cmdargs

import (
	"bytes"
	"encoding/hex"
	"flag"
	"testing"

	"github.com/nspcc-dev/ledgerpool/internal/fakechain"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func newContext(t *testing.T, stdin string, args ...string) *cli.Context {
	set := flag.NewFlagSet("flagSet", flag.ContinueOnError)
	require.NoError(t, set.Parse(args))
	app := cli.NewApp()
	app.Reader = bytes.NewBufferString(stdin)
	return cli.NewContext(app, set, nil)
}

func TestEnsureNone(t *testing.T) {
	require.Nil(t, EnsureNone(newContext(t, "")))
	require.NotNil(t, EnsureNone(newContext(t, "", "arg")))
}

func TestGetTransactionsFromContext(t *testing.T) {
	fc := fakechain.NewFakeChain(t)
	tx1 := fc.NewPayment(t, fc.Keys[0], util.Uint160{1}, 1, fakechain.BaseFee)
	tx2 := fc.NewPayment(t, fc.Keys[1], util.Uint160{1}, 2, fakechain.BaseFee)
	h1 := hex.EncodeToString(tx1.Bytes())
	h2 := hex.EncodeToString(tx2.Bytes())

	t.Run("args", func(t *testing.T) {
		txs, err := GetTransactionsFromContext(newContext(t, "", h1, "0x"+h2))
		require.Nil(t, err)
		require.Len(t, txs, 2)
		require.Equal(t, tx1.ID(), txs[0].ID())
		require.Equal(t, tx2.ID(), txs[1].ID())
	})
	t.Run("stdin", func(t *testing.T) {
		txs, err := GetTransactionsFromContext(newContext(t, h1+"\n"+h2+"\n", "-"))
		require.Nil(t, err)
		require.Len(t, txs, 2)
		require.Equal(t, tx2.ID(), txs[1].ID())
	})
	t.Run("none", func(t *testing.T) {
		_, err := GetTransactionsFromContext(newContext(t, ""))
		require.NotNil(t, err)
	})
	t.Run("bad hex", func(t *testing.T) {
		_, err := GetTransactionsFromContext(newContext(t, "", "zz"))
		require.NotNil(t, err)
	})
	t.Run("bad transaction", func(t *testing.T) {
		_, err := GetTransactionsFromContext(newContext(t, "", "0102"))
		require.NotNil(t, err)
	})
}
