package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	failOn  string
	events  *[]string
	started bool
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.failOn == "start" {
		return errors.New("boom")
	}
	*s.events = append(*s.events, "start:"+s.name)
	s.started = true
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	if s.failOn == "stop" {
		return errors.New("boom")
	}
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "x"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "x"}); err == nil {
		t.Fatal("duplicate registration must fail")
	}
	if err := m.Register(NoopService{}); err == nil {
		t.Fatal("empty name must fail")
	}
}

func TestManagerStartFailureUnwindsStartedServices(t *testing.T) {
	var events []string
	m := NewManager()
	first := &recordingService{name: "first", events: &events}
	if err := m.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "second", failOn: "start", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("start must propagate the failure")
	}

	want := []string{"start:first", "stop:first"}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestManagerStopReturnsFirstErrorButStopsAll(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "ok", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "bad", failOn: "stop", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err == nil {
		t.Fatal("stop must report the failure")
	}

	// The healthy service still stopped.
	found := false
	for _, e := range events {
		if e == "stop:ok" {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, want stop:ok", events)
	}
}
