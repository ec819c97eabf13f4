package tunerproc

import (
	"errors"
	"syscall"
	"testing"

	"github.com/mirakctl/mirakctl/internal/mirakerr"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

func TestActivate_UnableToParse(t *testing.T) {
	_, err := Activate(0, tunertypes.GR, "27", "cmd '")
	var cmdErr *mirakerr.CommandFailedError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandFailedError, got %v", err)
	}
	if cmdErr.Kind != mirakerr.UnableToParse {
		t.Errorf("expected UnableToParse, got %v", cmdErr.Kind)
	}
}

func TestActivate_UnableToSpawn(t *testing.T) {
	_, err := Activate(0, tunertypes.GR, "27", "no-such-command")
	var cmdErr *mirakerr.CommandFailedError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandFailedError, got %v", err)
	}
	if cmdErr.Kind != mirakerr.UnableToSpawn {
		t.Errorf("expected UnableToSpawn, got %v", cmdErr.Kind)
	}
}

func TestSession_SubscribeSerialsMonotonic(t *testing.T) {
	s, err := Activate(0, tunertypes.GR, "27", "true")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer s.Close()

	user := tunertypes.TunerUser{Priority: 0}
	id1, _ := s.Subscribe(user)
	id2, _ := s.Subscribe(user)
	id3, _ := s.Subscribe(user)

	if id1.SerialNumber != 1 || id2.SerialNumber != 2 || id3.SerialNumber != 3 {
		t.Errorf("expected serials 1,2,3; got %d,%d,%d", id1.SerialNumber, id2.SerialNumber, id3.SerialNumber)
	}
}

func TestSession_CanGrab(t *testing.T) {
	s, err := Activate(0, tunertypes.GR, "27", "true")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer s.Close()

	s.Subscribe(tunertypes.TunerUser{Priority: 0})

	if s.CanGrab(0) {
		t.Error("priority 0 should not grab over an existing priority-0 subscriber")
	}
	if !s.CanGrab(1) {
		t.Error("priority 1 should grab over a priority-0 subscriber")
	}
	if !s.CanGrab(tunertypes.Grab) {
		t.Error("GRAB should always succeed")
	}

	s.Subscribe(tunertypes.TunerUser{Priority: 1})

	if s.CanGrab(0) {
		t.Error("priority 0 should not grab once a priority-1 subscriber exists")
	}
	if s.CanGrab(1) {
		t.Error("priority 1 should not grab a peer at the same priority")
	}
	if !s.CanGrab(2) {
		t.Error("priority 2 should grab over priority 0 and 1")
	}
}

func TestSession_StopStreaming(t *testing.T) {
	s, err := Activate(0, tunertypes.GR, "27", "true")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer s.Close()

	id, _ := s.Subscribe(tunertypes.TunerUser{Priority: 0})

	var zero tunertypes.TunerSubscriptionID
	if _, err := s.StopStreaming(zero); !errors.Is(err, mirakerr.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for zero id, got %v", err)
	}

	remaining, err := s.StopStreaming(id)
	if err != nil {
		t.Fatalf("StopStreaming(real id): %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining subscribers, got %d", remaining)
	}
}

func TestSession_CloseKillsChild(t *testing.T) {
	s, err := Activate(0, tunertypes.GR, "27", "sleep 5")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	pid := s.PID()
	s.Close()

	if err := syscall.Kill(pid, 0); err == nil {
		t.Errorf("expected process %d to be gone after Close", pid)
	}
}
