// Package shared holds the process-wide scaffolding used by cmd/indexer:
// the service registry that replaces the teacher's package-level globals,
// and the logging setup shared by every component.
package shared

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service is implemented by every long-lived component the orchestrator
// manages: the store, the job scheduler, the metrics server.
// Modeled directly on the teacher's beacon-chain/node.go service contract.
type Service interface {
	Start()
	Stop() error
	Status() error
}

// ServiceRegistry tracks the lifecycle of services used by the indexer,
// starting and stopping them in the order they were registered (and the
// reverse order on shutdown), the same shape as the teacher's
// shared.ServiceRegistry referenced from beacon-chain/node.go.
type ServiceRegistry struct {
	lock     sync.RWMutex
	services map[reflect.Type]Service
	order    []reflect.Type
	log      *logrus.Entry
}

// NewServiceRegistry creates a new registry instance.
func NewServiceRegistry(log *logrus.Entry) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[reflect.Type]Service),
		log:      log,
	}
}

// RegisterService appends a service constructed with all its dependencies
// already wired; later FetchService calls by other components can retrieve
// it by concrete type.
func (r *ServiceRegistry) RegisterService(service Service) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	kind := reflect.TypeOf(service)
	if _, exists := r.services[kind]; exists {
		return errors.Errorf("service already registered: %v", kind)
	}
	r.services[kind] = service
	r.order = append(r.order, kind)
	return nil
}

// FetchService retrieves a previously registered service into dest, which
// must be a pointer to an interface or concrete service type.
func (r *ServiceRegistry) FetchService(dest interface{}) error {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if reflect.TypeOf(dest).Kind() != reflect.Ptr {
		return errors.New("dest must be a pointer")
	}
	element := reflect.ValueOf(dest).Elem()
	kind := element.Type()
	if s, ok := r.services[kind]; ok {
		element.Set(reflect.ValueOf(s))
		return nil
	}
	return fmt.Errorf("unknown service: %v", kind)
}

// StartAll starts every registered service in registration order.
func (r *ServiceRegistry) StartAll() {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, kind := range r.order {
		r.log.WithField("service", kind).Info("Starting service")
		r.services[kind].Start()
	}
}

// StopAll stops every registered service in reverse registration order, so
// components stop only after anything depending on them has already stopped.
func (r *ServiceRegistry) StopAll() {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		kind := r.order[i]
		if err := r.services[kind].Stop(); err != nil {
			r.log.WithField("service", kind).WithError(err).Error("Could not stop service")
		}
	}
}

// Statuses returns the current Status() of every registered service, keyed
// by type name, for the snapshot the metrics service serves on /healthz.
func (r *ServiceRegistry) Statuses() map[string]error {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make(map[string]error, len(r.order))
	for _, kind := range r.order {
		out[kind.String()] = r.services[kind].Status()
	}
	return out
}
