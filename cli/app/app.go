package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/nspcc-dev/ledgerpool/cli/server"
	"github.com/nspcc-dev/ledgerpool/cli/txcmd"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "LedgerPool\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a ledgerpool instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "ledgerpool"
	ctl.Version = config.Version
	ctl.Usage = "Unconfirmed transaction pool node"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, server.NewCommands()...)
	ctl.Commands = append(ctl.Commands, txcmd.NewCommands()...)
	return ctl
}
