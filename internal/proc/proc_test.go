package proc

import (
	"errors"
	"testing"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/heap"
)

func newTestManager(t *testing.T, heapSize int) *Manager {
	t.Helper()

	con := console.NewBufferConsole("")
	h := heap.New(heap.NewRegion(heapSize), con)
	h.Init()

	m := New(h, con)
	m.Init()

	return m
}

func TestCreateRegistersAsChildOfParent(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent, err := m.Get(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(parent.Children) != 1 || parent.Children[0] != pid {
		t.Fatalf("expected process 0 to list %d as a child, got %v", pid, parent.Children)
	}

	child, err := m.Get(pid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if child.PPID != 0 {
		t.Fatalf("expected child's ppid to be 0, got %d", child.PPID)
	}

	if child.State != StateCreated {
		t.Fatalf("expected new process to be CREATED, got %v", child.State)
	}
}

func TestCreateFailsOnStackExhaustion(t *testing.T) {
	m := newTestManager(t, ProcStackSize+64)

	if _, err := m.Create(0); err != nil {
		t.Fatalf("first create should succeed: %v", err)
	}

	_, err := m.Create(0)
	if !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot once the heap is exhausted, got %v", err)
	}
}

func TestCreateFailsOnTableExhaustion(t *testing.T) {
	m := newTestManager(t, MaxProcesses*ProcStackSize*4)

	for i := 0; i < MaxProcesses-1; i++ {
		if _, err := m.Create(0); err != nil {
			t.Fatalf("unexpected error creating process %d: %v", i, err)
		}
	}

	if _, err := m.Create(0); !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot once the table is full, got %v", err)
	}
}

func TestExitThenWaitReapsZombie(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Wait(pid); !errors.Is(err, ErrNotZombie) {
		t.Fatalf("expected ErrNotZombie before exit, got %v", err)
	}

	if err := m.SetCurrent(pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Exit(7)

	code, err := m.Wait(pid)
	if err != nil {
		t.Fatalf("unexpected error waiting on a zombie: %v", err)
	}

	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}

	if _, err := m.Get(pid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected the process slot to be freed after Wait, got err=%v", err)
	}
}

func TestSignalRegisterAndSend(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.SetCurrent(pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	received := -1
	if err := m.SignalRegister(5, func(sig int) { received = sig }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.SetCurrent(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.SignalSend(pid, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received != 5 {
		t.Fatalf("expected handler to observe signal 5, got %d", received)
	}
}

func TestSignalSendWithoutHandlerReturnsError(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.SignalSend(pid, 3); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestSignalInvalidNumberReturnsError(t *testing.T) {
	m := newTestManager(t, 1<<16)

	if err := m.SignalRegister(MaxSignals, func(int) {}); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}

	if err := m.SignalSend(0, -1); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestBindTaskAccountsTicksOnlyForBoundProcess(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.BindTask(pid, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.AccountTicks(42, 5)
	m.AccountTicks(99, 3)

	p, err := m.Get(pid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.CPUTicks != 5 {
		t.Fatalf("expected 5 accounted ticks, got %d", p.CPUTicks)
	}
}

func TestGetPIDAndGetParentPIDReflectCurrent(t *testing.T) {
	m := newTestManager(t, 1<<16)

	pid, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.SetCurrent(pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.GetPID(); got != pid {
		t.Fatalf("expected GetPID to return %d, got %d", pid, got)
	}

	if got := m.GetParentPID(); got != 0 {
		t.Fatalf("expected GetParentPID to return 0, got %d", got)
	}
}
