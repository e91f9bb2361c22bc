package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/ledgerpool/cli/cmdargs"
	"github.com/nspcc-dev/ledgerpool/cli/options"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"github.com/nspcc-dev/ledgerpool/pkg/core/dao"
	"github.com/nspcc-dev/ledgerpool/pkg/core/ledger"
	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/processor"
	"github.com/nspcc-dev/ledgerpool/pkg/core/storage"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/core/txtype"
	"github.com/nspcc-dev/ledgerpool/pkg/core/verifier"
	"github.com/nspcc-dev/ledgerpool/pkg/network/relay"
	"github.com/nspcc-dev/ledgerpool/pkg/services/maintenance"
	"github.com/nspcc-dev/ledgerpool/pkg/services/metrics"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCommands returns 'node' command.
func NewCommands() []cli.Command {
	cfgFlags := []cli.Flag{options.Config, options.ConfigFile}
	cfgFlags = append(cfgFlags, options.Network...)
	cfgWithDebugFlags := append(cfgFlags, options.Debug)
	return []cli.Command{
		{
			Name:      "node",
			Usage:     "start a transaction pool node",
			UsageText: "ledgerpool node [--config-path path] [-d] [-p/-m/-t] [--config-file file]",
			Action:    startServer,
			Flags:     cfgWithDebugFlags,
		},
	}
}

// node holds all node services.
type node struct {
	log *zap.Logger

	store       storage.Store
	chain       *ledger.Memory
	pool        *mempool.Pool
	proc        *processor.Processor
	relay       *relay.Relay
	maintenance *maintenance.Service
	prometheus  *metrics.Service
	pprof       *metrics.Service

	cancel context.CancelFunc
}

// initNode creates node services for the given configuration, nothing is
// started yet.
func initNode(cfg config.Config, log *zap.Logger) (*node, error) {
	var (
		app = cfg.ApplicationConfiguration
		n   = &node{log: log}
	)
	store, err := storage.NewStore(app.DBConfiguration)
	if err != nil {
		return nil, fmt.Errorf("could not initialize storage: %w", err)
	}
	n.store = store
	d := dao.NewSimple(store)
	if err := d.CheckVersion(); err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := txtype.DefaultRegistry(cfg.ProtocolConfiguration)
	n.chain, err = ledger.NewMemory(reg, app.Genesis, clockwork.NewRealClock(), log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("could not initialize ledger: %w", err)
	}
	n.pool = mempool.New(app.MemPool.Capacity,
		mempool.WithMetricsCallback(processor.UpdatePoolMetrics),
		mempool.WithSubscriptions())
	v := verifier.New(reg)
	prunable := dao.NewPrunable(d, cfg.ProtocolConfiguration.PrunableRetention)

	n.relay, err = relay.New(relay.Config{
		Settings: app.Relay,
		Magic:    cfg.ProtocolConfiguration.Magic,
		Handler: func(tx *transaction.Transaction) error {
			return n.proc.AddPeerTransaction(tx)
		},
		Log: log,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("could not initialize relay: %w", err)
	}
	n.proc, err = processor.New(processor.Config{
		Chain:             n.chain,
		Pool:              n.pool,
		Verifier:          v,
		Store:             dao.NewUnconfirmed(d),
		Prunable:          prunable,
		Broadcaster:       n.relay,
		RejectedCacheSize: app.MemPool.RejectedCacheSize,
		Log:               log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	n.maintenance, err = maintenance.New(maintenance.Config{
		Chain:       n.chain,
		Pool:        n.pool,
		Verifier:    v,
		Purger:      n.proc,
		Broadcaster: n.relay,
		Pruner:      prunable,
		Settings:    app.MemPool,
		Log:         log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	n.prometheus = metrics.NewPrometheusService(app.Prometheus, log)
	n.pprof = metrics.NewPprofService(app.Pprof, log)
	return n, nil
}

// start runs services, persisted transactions are restored before any new
// ones are accepted.
func (n *node) start() error {
	n.pool.RunSubscriptions()
	n.proc.Start()
	restored, err := n.proc.Restore()
	if err != nil {
		n.log.Warn("failed to restore unconfirmed transactions", zap.Error(err))
	}
	if err := n.relay.Start(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	var ctx context.Context
	ctx, n.cancel = context.WithCancel(context.Background())
	n.maintenance.Start(ctx)
	if err := n.prometheus.Start(); err != nil {
		return err
	}
	if err := n.pprof.Start(); err != nil {
		return err
	}
	n.log.Info("node started",
		zap.Uint32("height", n.chain.BlockHeight()),
		zap.Int("restored", restored))
	return nil
}

// shutdown stops everything in the reverse order, it's safe to call it
// after a failed start.
func (n *node) shutdown() {
	n.pprof.Shutdown()
	n.prometheus.Shutdown()
	if n.cancel != nil {
		n.cancel()
	}
	n.maintenance.Shutdown()
	n.relay.Shutdown()
	n.proc.Shutdown()
	n.pool.StopSubscriptions()
	if err := n.store.Close(); err != nil {
		n.log.Warn("failed to close the store", zap.Error(err))
	}
}

func startServer(ctx *cli.Context) error {
	if err := cmdargs.EnsureNone(ctx); err != nil {
		return err
	}

	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, logLevel, logCloser, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if logCloser != nil {
		defer func() { _ = logCloser() }()
	}

	n, err := initNode(cfg, log)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if err := n.start(); err != nil {
		n.shutdown()
		return cli.NewExitError(err, 1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sighup, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig != sighup {
			log.Info("shutting down", zap.Stringer("signal", sig))
			break
		}
		if err := reloadLogLevel(ctx, logLevel); err != nil {
			log.Warn("can't reload configuration", zap.Error(err))
		}
	}
	n.shutdown()
	_ = log.Sync()
	return nil
}

// reloadLogLevel rereads the configuration and applies its log level.
func reloadLogLevel(ctx *cli.Context, level *zap.AtomicLevel) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return err
	}
	if ctx.Bool("debug") {
		return nil
	}
	l := zapcore.InfoLevel
	if s := cfg.ApplicationConfiguration.LogLevel; s != "" {
		l, err = zapcore.ParseLevel(s)
		if err != nil {
			return err
		}
	}
	level.SetLevel(l)
	return nil
}
