package shared

import (
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeService struct {
	started bool
	stopped bool
	failing bool
}

func (f *fakeService) Start()      { f.started = true }
func (f *fakeService) Stop() error { f.stopped = true; return nil }
func (f *fakeService) Status() error {
	return nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func TestRegisterAndFetch(t *testing.T) {
	r := NewServiceRegistry(testLogger())
	svc := &fakeService{}
	if err := r.RegisterService(svc); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	var fetched *fakeService
	if err := r.FetchService(&fetched); err != nil {
		t.Fatalf("FetchService: %v", err)
	}
	if fetched != svc {
		t.Errorf("fetched service does not match registered instance")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewServiceRegistry(testLogger())
	svc := &fakeService{}
	if err := r.RegisterService(svc); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.RegisterService(svc); err == nil {
		t.Errorf("expected error registering duplicate service type")
	}
}

func TestStartAllStopAll(t *testing.T) {
	r := NewServiceRegistry(testLogger())
	a := &fakeService{}
	b := &fakeService{}
	if err := r.RegisterService(a); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterService(b); err != nil {
		t.Fatal(err)
	}
	r.StartAll()
	if !a.started || !b.started {
		t.Errorf("expected both services started")
	}
	r.StopAll()
	if !a.stopped || !b.stopped {
		t.Errorf("expected both services stopped")
	}
}

func TestFetchUnknownServiceErrors(t *testing.T) {
	r := NewServiceRegistry(testLogger())
	var fetched *fakeService
	if err := r.FetchService(&fetched); err == nil {
		t.Errorf("expected error fetching unregistered service")
	}
}
