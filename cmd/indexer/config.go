package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

// config holds every validated setting the orchestrator needs to build its
// App. Built once by loadConfig at the start of the cli.App's Action per §6: "invalid or missing
// required values must fail start-up."
type config struct {
	chain *chain.Config

	databaseURL    string
	archiveAPIURL  string
	fullAPIURL     string
	requestsPerSec int
	lookbackSlot   uint64

	metricsAddr string

	logOutput string
	logFile   string
	logLevel  string
}

func loadConfig(ctx *cli.Context) (*config, error) {
	chainCfg, ok := chain.ForName(ctx.String(chainFlag.Name))
	if !ok {
		return nil, errors.Wrapf(shared.ErrConfigInvalid, "unknown CHAIN %q, want ethereum or gnosis", ctx.String(chainFlag.Name))
	}
	chainCfg = chainCfg.Copy()

	if lookback := ctx.Uint64(lookbackSlotFlag.Name); lookback > 0 {
		chainCfg.LookbackSlots = lookback
	}

	rps := ctx.Int(apiRequestsPerSecondFlag.Name)
	if rps <= 0 {
		return nil, errors.Wrap(shared.ErrConfigInvalid, "CONSENSUS_API_REQUEST_PER_SECOND must be positive")
	}

	cfg := &config{
		chain:          chainCfg,
		databaseURL:    ctx.String(databaseURLFlag.Name),
		archiveAPIURL:  ctx.String(archiveAPIURLFlag.Name),
		fullAPIURL:     ctx.String(fullAPIURLFlag.Name),
		requestsPerSec: rps,
		lookbackSlot:   ctx.Uint64(lookbackSlotFlag.Name),
		metricsAddr:    ctx.String(metricsAddrFlag.Name),
		logOutput:      ctx.String(logOutputFlag.Name),
		logFile:        ctx.String(logFileFlag.Name),
		logLevel:       ctx.String(logLevelFlag.Name),
	}
	if cfg.databaseURL == "" {
		return nil, errors.Wrap(shared.ErrConfigInvalid, "DATABASE_URL is required")
	}
	if cfg.archiveAPIURL == "" || cfg.fullAPIURL == "" {
		return nil, errors.Wrap(shared.ErrConfigInvalid, "CONSENSUS_ARCHIVE_API_URL and CONSENSUS_FULL_API_URL are required")
	}
	return cfg, nil
}
