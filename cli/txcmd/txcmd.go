/*
Package txcmd contains commands creating, decoding and sending transactions.
*/
package txcmd

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nspcc-dev/ledgerpool/cli/cmdargs"
	"github.com/nspcc-dev/ledgerpool/cli/flags"
	"github.com/nspcc-dev/ledgerpool/cli/input"
	"github.com/nspcc-dev/ledgerpool/cli/options"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/config/netmode"
	"github.com/nspcc-dev/ledgerpool/pkg/core/ledger"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/network/relay"
	"github.com/urfave/cli"
)

// seedSize is the size of the random seed used for appendix encryption.
const seedSize = 32

// NewCommands returns 'tx' command.
func NewCommands() []cli.Command {
	cfgFlags := append([]cli.Flag{options.Config, options.ConfigFile}, options.Network...)
	signFlags := flags.MarkRequired(append([]cli.Flag{
		flags.AddressFlag{
			Name:  "to",
			Usage: "recipient address or BE hex script hash",
		},
		cli.Int64Flag{
			Name:  "amount, a",
			Usage: "amount to transfer",
		},
		cli.Int64Flag{
			Name:  "fee, f",
			Usage: "transaction fee",
		},
		cli.UintFlag{
			Name:  "deadline",
			Value: 60,
			Usage: "transaction lifetime in minutes",
		},
		cli.UintFlag{
			Name:  "timestamp",
			Usage: "transaction timestamp in epoch seconds (current epoch time by default)",
		},
		cli.UintFlag{
			Name:  "ec-height",
			Usage: "height of the block the transaction is bound to",
		},
		cli.Uint64Flag{
			Name:  "ec-id",
			Usage: "id of the block the transaction is bound to (genesis block id by default)",
		},
		cli.StringFlag{
			Name:  "message",
			Usage: "text message to attach",
		},
		cli.StringFlag{
			Name:  "out",
			Usage: "file to put the transaction to (stdout by default)",
		},
	}, cfgFlags...), "to", "amount", "fee")
	sendFlags := append([]cli.Flag{
		cli.StringFlag{
			Name:     "endpoint, e",
			Usage:    "relay endpoint of the node (ws://host:port/relay)",
			Required: true,
		},
		options.Timeout,
	}, cfgFlags...)
	return []cli.Command{{
		Name:  "tx",
		Usage: "create, inspect and send transactions",
		Subcommands: []cli.Command{
			{
				Name:   "keygen",
				Usage:  "generate a new private key",
				Action: keygen,
			},
			{
				Name:      "sign",
				Usage:     "create and sign a payment transaction",
				UsageText: "ledgerpool tx sign --to <addr> --amount <n> --fee <n> [--deadline <min>] [--message <text>] [--out <file>] [--config-path path] [-p/-m/-t]",
				Description: `Creates a payment transaction and signs it with the private key
   read from the terminal (hex-encoded). The result is printed as hex.`,
				Action: signTx,
				Flags:  signFlags,
			},
			{
				Name:      "decode",
				Usage:     "print transactions as JSON",
				UsageText: "ledgerpool tx decode <hex>... | -",
				Action:    decodeTx,
			},
			{
				Name:      "send",
				Usage:     "send transactions to a node",
				UsageText: "ledgerpool tx send --endpoint <url> [--timeout <dur>] [--config-path path] [-p/-m/-t] <hex>... | -",
				Action:    sendTx,
				Flags:     sendFlags,
			},
		},
	}}
}

func keygen(ctx *cli.Context) error {
	if err := cmdargs.EnsureNone(ctx); err != nil {
		return err
	}
	priv, err := keys.NewPrivateKey()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintf(ctx.App.Writer, "Address: %s\nKey: %s\n", priv.Address(), priv.String())
	return nil
}

func signTx(ctx *cli.Context) error {
	if err := cmdargs.EnsureNone(ctx); err != nil {
		return err
	}
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	pc := cfg.ProtocolConfiguration
	to := ctx.Generic("to").(*flags.Address)
	if !to.IsSet {
		return cli.NewExitError("recipient is missing", 1)
	}

	ts := uint32(ctx.Uint("timestamp"))
	if !ctx.IsSet("timestamp") {
		ts = currentEpoch(pc)
	}
	ecHeight := uint32(ctx.Uint("ec-height"))
	ecID := ctx.Uint64("ec-id")
	if !ctx.IsSet("ec-id") {
		if ecHeight != 0 {
			return cli.NewExitError("--ec-id is required for non-genesis block", 1)
		}
		ecID = ledger.GenesisBlockID(pc.Magic)
	}
	deadline := ctx.Uint("deadline")
	if deadline > uint(pc.Limits.MaxDeadline) {
		return cli.NewExitError(fmt.Errorf("deadline is too big: %d > %d", deadline, pc.Limits.MaxDeadline), 1)
	}

	b := transaction.NewBuilder(&transaction.OrdinaryPayment{}).
		Limits(pc.Limits).
		Timestamp(ts).
		Deadline(uint16(deadline)).
		Fee(ctx.Int64("fee")).
		Recipient(to.Uint160()).
		Amount(ctx.Int64("amount")).
		ECBlock(ecHeight, ecID)
	if m := ctx.String("message"); m != "" {
		b.Append(transaction.NewTextMessage(m))
	}

	keyHex, err := input.ReadPassword(ctx.App.Writer, "Enter private key > ")
	if err != nil {
		return cli.NewExitError(fmt.Errorf("failed to read key: %w", err), 1)
	}
	priv, err := keys.NewPrivateKeyFromHex(strings.TrimSpace(keyHex))
	if err != nil {
		return cli.NewExitError(fmt.Errorf("bad private key: %w", err), 1)
	}
	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return cli.NewExitError(err, 1)
	}
	tx, err := b.BuildSigned(priv, seed)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	out := hex.EncodeToString(tx.Bytes())
	path := ctx.String("out")
	if path == "" {
		fmt.Fprintln(ctx.App.Writer, out)
		return nil
	}
	if err := io.MakeDirForFile(path, "transaction"); err != nil {
		return cli.NewExitError(err, 1)
	}
	if err := os.WriteFile(path, []byte(out+"\n"), 0644); err != nil {
		return cli.NewExitError(fmt.Errorf("can't write the transaction: %w", err), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "Transaction %s is written to %s\n", tx.IDString(), path)
	return nil
}

func currentEpoch(pc config.ProtocolConfiguration) uint32 {
	t := time.Now().Unix() - pc.GenesisTimestamp
	if t < 0 {
		return 0
	}
	return uint32(t)
}

func decodeTx(ctx *cli.Context) error {
	txs, exitErr := cmdargs.GetTransactionsFromContext(ctx)
	if exitErr != nil {
		return exitErr
	}
	for _, tx := range txs {
		b, err := json.MarshalIndent(tx, "", "  ")
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		fmt.Fprintln(ctx.App.Writer, string(b))
	}
	return nil
}

func sendTx(ctx *cli.Context) error {
	txs, exitErr := cmdargs.GetTransactionsFromContext(ctx)
	if exitErr != nil {
		return exitErr
	}
	endpoint := ctx.String("endpoint")
	if endpoint == "" {
		return cli.NewExitError(errors.New("endpoint is missing"), 1)
	}
	magic, err := getMagic(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	if err := relay.Announce(gctx, endpoint, magic, txs, nil); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to send transactions: %w", err), 1)
	}
	for _, tx := range txs {
		fmt.Fprintln(ctx.App.Writer, tx.IDString())
	}
	return nil
}

// getMagic returns the network magic from the configuration file if it's
// given and from network flags otherwise.
func getMagic(ctx *cli.Context) (netmode.Magic, error) {
	if ctx.String("config-file") == "" && ctx.String("config-path") == "" {
		return options.GetNetwork(ctx), nil
	}
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.ProtocolConfiguration.Magic, nil
}
