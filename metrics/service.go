package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

// Service serves /metrics and /healthz on its own listener, the same shape
// as the teacher's shared/prometheus.Service.
type Service struct {
	server     *http.Server
	registry   *shared.ServiceRegistry
	log        *logrus.Entry
	failStatus error
}

// NewService constructs the metrics HTTP service bound to addr (e.g.
// ":9090"). registry is consulted on every /healthz request so the
// indexer's operational status reflects every other registered component.
func NewService(addr string, registry *shared.ServiceRegistry, log *logrus.Entry) *Service {
	s := &Service{registry: registry, log: log}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthzHandler)
	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	statuses := s.registry.Statuses()
	hasError := false
	var buf bytes.Buffer
	for name, err := range statuses {
		status := "OK"
		if err != nil {
			hasError = true
			status = "ERROR " + err.Error()
		}
		fmt.Fprintf(&buf, "%s: %s\n", name, status)
	}

	if hasError {
		w.WriteHeader(http.StatusInternalServerError)
		s.log.WithField("statuses", buf.String()).Warn("indexer is unhealthy")
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.WithError(err).Error("could not write healthz body")
	}
}

// Start launches the metrics HTTP server in the background.
func (s *Service) Start() {
	go func() {
		s.log.WithField("address", s.server.Addr).Debug("starting metrics service")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics service stopped unexpectedly")
			s.failStatus = err
		}
	}()
}

// Stop shuts the server down within a bounded grace period.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports the most recent listener failure, if any.
func (s *Service) Status() error {
	return s.failStatus
}
