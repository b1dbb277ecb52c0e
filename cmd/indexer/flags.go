package main

import "github.com/urfave/cli/v2"

// Flags mirror spec §6 "Configuration (env)": every setting is
// simultaneously a CLI flag and an env var, validated eagerly before any
// service starts. The execution-layer scraper's EXECUTION_API_* settings
// are out of scope (§1, a separate external collaborator) and are not
// declared here.
var (
	chainFlag = &cli.StringFlag{
		Name:     "chain",
		EnvVars:  []string{"CHAIN"},
		Usage:    "beacon chain profile: ethereum or gnosis",
		Required: true,
	}
	databaseURLFlag = &cli.StringFlag{
		Name:     "database-url",
		EnvVars:  []string{"DATABASE_URL"},
		Usage:    "Postgres connection string",
		Required: true,
	}
	archiveAPIURLFlag = &cli.StringFlag{
		Name:     "consensus-archive-api-url",
		EnvVars:  []string{"CONSENSUS_ARCHIVE_API_URL"},
		Usage:    "archive beacon node REST base URL",
		Required: true,
	}
	fullAPIURLFlag = &cli.StringFlag{
		Name:     "consensus-full-api-url",
		EnvVars:  []string{"CONSENSUS_FULL_API_URL"},
		Usage:    "full beacon node REST base URL",
		Required: true,
	}
	apiRequestsPerSecondFlag = &cli.IntFlag{
		Name:    "consensus-api-request-per-second",
		EnvVars: []string{"CONSENSUS_API_REQUEST_PER_SECOND"},
		Usage:   "shared beacon API rate-limiter budget, points per second",
		Value:   10,
	}
	lookbackSlotFlag = &cli.Uint64Flag{
		Name:    "consensus-lookback-slot",
		EnvVars: []string{"CONSENSUS_LOOKBACK_SLOT"},
		Usage:   "oldest slot behind the current head the indexer will still create state for",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:    "metrics-address",
		EnvVars: []string{"METRICS_ADDRESS"},
		Usage:   "address the /metrics and /healthz HTTP server listens on",
		Value:   ":9090",
	}
	logOutputFlag = &cli.StringFlag{
		Name:    "log-output",
		EnvVars: []string{"LOG_OUTPUT"},
		Usage:   "console or file",
		Value:   "console",
	}
	logFileFlag = &cli.StringFlag{
		Name:    "log-file",
		EnvVars: []string{"LOG_FILE"},
		Usage:   "path to the log file, required when log-output=file",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		EnvVars: []string{"LOG_LEVEL"},
		Usage:   "panic, fatal, error, warn, info, debug or trace",
		Value:   "info",
	}
)

var appFlags = []cli.Flag{
	chainFlag,
	databaseURLFlag,
	archiveAPIURLFlag,
	fullAPIURLFlag,
	apiRequestsPerSecondFlag,
	lookbackSlotFlag,
	metricsAddrFlag,
	logOutputFlag,
	logFileFlag,
	logLevelFlag,
}
