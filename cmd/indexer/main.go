// Command indexer runs the beacon-chain validator-performance indexer: it
// walks the consensus layer slot by slot, fetches committees, attestations,
// rewards and balances, rolls them up into hourly/daily summaries, and
// serves the result over Postgres plus a Prometheus /metrics endpoint.
//
// Modeled on the teacher's cmd/beacon-chain/main.go: a urfave/cli app whose
// Action validates configuration, builds an App, starts it, and blocks until
// an OS signal requests a graceful shutdown.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

func main() {
	app := &cli.App{
		Name:  "indexer",
		Usage: "index Ethereum/Gnosis beacon-chain validator performance into Postgres",
		Flags: appFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrusFatal(err)
	}
}

// logrusFatal is split out so a failure before logging is configured (e.g.
// an invalid --log-level) still reaches stderr.
func logrusFatal(err error) {
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	log, err := shared.ConfigureLogging(shared.LogOutput(cfg.logOutput), cfg.logLevel, cfg.logFile)
	if err != nil {
		return errors.Wrap(err, "configuring logging")
	}

	app, err := newApp(cfg, log)
	if err != nil {
		return errors.Wrap(err, "building app")
	}

	app.Start()
	log.Info("indexer started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")

	app.Stop()
	log.Info("indexer stopped")
	return nil
}
