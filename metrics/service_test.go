package metrics

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

func testLog(t *testing.T) *logrus.Entry {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

type fakeService struct{ status error }

func (f *fakeService) Start()        {}
func (f *fakeService) Stop() error   { return nil }
func (f *fakeService) Status() error { return f.status }

func TestHealthzReportsOKWhenAllServicesHealthy(t *testing.T) {
	registry := shared.NewServiceRegistry(testLog(t))
	if err := registry.RegisterService(&fakeService{}); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	svc := NewService("127.0.0.1:0", registry, testLog(t))
	rec := httptest.NewRecorder()
	svc.healthzHandler(rec, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthzReportsErrorWhenAServiceIsUnhealthy(t *testing.T) {
	registry := shared.NewServiceRegistry(testLog(t))
	if err := registry.RegisterService(&fakeService{status: errBoom}); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	svc := NewService("127.0.0.1:0", registry, testLog(t))
	rec := httptest.NewRecorder()
	svc.healthzHandler(rec, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartAndStop(t *testing.T) {
	registry := shared.NewServiceRegistry(testLog(t))
	svc := NewService("127.0.0.1:0", registry, testLog(t))
	svc.Start()
	time.Sleep(10 * time.Millisecond)
	if err := svc.Stop(); err != nil {
		t.Fatalf("unexpected error stopping service: %v", err)
	}
}

var errBoom = errString("boom")

type errString string

func (e errString) Error() string { return string(e) }
