package main

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/metrics"
	"github.com/NodeSentinel/beacon-validator-monitor/scheduler"
	"github.com/NodeSentinel/beacon-validator-monitor/shared"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// App wires every long-lived component into one shared.ServiceRegistry, the
// way the teacher's node.BeaconNode composes its services. Start/Stop fan
// out to the registry; nothing in main.go touches a component directly.
type App struct {
	registry *shared.ServiceRegistry
	log      *logrus.Entry
}

func newApp(cfg *config, log *logrus.Entry) (*App, error) {
	registry := shared.NewServiceRegistry(log)

	st := store.New(cfg.databaseURL, log.WithField("prefix", "store"))
	if err := registry.RegisterService(st); err != nil {
		return nil, err
	}

	rc := client.New(client.Config{
		FullBaseURL:         cfg.fullAPIURL,
		ArchiveBaseURL:      cfg.archiveAPIURL,
		// §4.2: fullNodeLimit is small to protect the real-time node;
		// archiveNodeLimit is larger since the priority heuristics (indexer-
		// delayed, head-proximity) force most historical traffic onto it.
		FullNodeConcurrency: 4,
		ArchiveConcurrency:  10,
		RequestsPerSecond:   cfg.requestsPerSec,
		Retry:               client.DefaultRetryConfig(),
		Log:                 log.WithField("prefix", "client"),
	})

	// The indexer only ever needs "what slot is it right now" to bound how
	// far a fetcher may safely reach, not the beacon node's own view of its
	// head; chain.Config.SlotOf already derives that from genesis + wall
	// clock, so no separate head-polling fetcher is needed.
	headSlot := func() uint64 { return cfg.chain.SlotOf(time.Now()) }
	bc := client.NewBeaconClient(rc, headSlot)

	jobs := buildJobs(cfg, log, st, st, bc)
	sched := scheduler.New(log.WithField("prefix", "scheduler"), jobs)
	if err := registry.RegisterService(sched); err != nil {
		return nil, err
	}

	metricsSvc := metrics.NewService(cfg.metricsAddr, registry, log.WithField("prefix", "metrics"))
	if err := registry.RegisterService(metricsSvc); err != nil {
		return nil, err
	}

	return &App{registry: registry, log: log}, nil
}

// Start launches every registered service and returns immediately; each
// service manages its own background goroutines.
func (a *App) Start() {
	a.registry.StartAll()
}

// Stop drains every registered service in turn, logging (not failing on)
// any individual Stop error so a stuck component never prevents the rest
// from shutting down.
func (a *App) Stop() {
	a.registry.StopAll()
}
