package cmdargs

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/urfave/cli"
)

// EnsureNone returns an error if there are any positional arguments present.
// It can be used to check for them in commands that don't accept arguments.
func EnsureNone(ctx *cli.Context) *cli.ExitError {
	if ctx.Args().Present() {
		return cli.NewExitError("additional arguments given while this command expects none", 1)
	}
	return nil
}

// GetTransactionsFromContext decodes hex-encoded transactions given as
// positional arguments, "-" reads whitespace-separated transactions from
// stdin.
func GetTransactionsFromContext(ctx *cli.Context) ([]*transaction.Transaction, *cli.ExitError) {
	args := ctx.Args()
	if !args.Present() {
		return nil, cli.NewExitError("no transactions given", 1)
	}
	var raw []string
	for _, a := range args {
		if a != "-" {
			raw = append(raw, a)
			continue
		}
		b, err := io.ReadAll(ctx.App.Reader)
		if err != nil {
			return nil, cli.NewExitError(fmt.Errorf("failed to read stdin: %w", err), 1)
		}
		raw = append(raw, strings.Fields(string(b))...)
	}
	txs := make([]*transaction.Transaction, 0, len(raw))
	for i, s := range raw {
		tx, err := DecodeTransaction(s)
		if err != nil {
			return nil, cli.NewExitError(fmt.Errorf("transaction #%d: %w", i, err), 1)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// DecodeTransaction decodes a hex-encoded transaction, 0x prefix is allowed.
func DecodeTransaction(s string) (*transaction.Transaction, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return transaction.NewTransactionFromBytes(b)
}

