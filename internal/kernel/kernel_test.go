package kernel

import (
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/sched"
)

func TestBootWiresAllThreeSubsystems(t *testing.T) {
	con := console.NewBufferConsole("")

	k, err := Boot(DefaultConfig(), con)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if k.Heap == nil || k.Sched == nil || k.Proc == nil {
		t.Fatal("Boot should populate all three subsystems")
	}

	if con.Output() == "" {
		t.Fatal("Boot should emit [KERNEL] diagnostics")
	}
}

func TestBootRejectsIncompatibleABI(t *testing.T) {
	cfg := DefaultConfig()

	v, err := semver.NewVersion("2.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.ABIVersion = v

	if _, err := Boot(cfg, console.NewBufferConsole("")); err == nil {
		t.Fatal("expected Boot to reject an ABI version outside the compatibility range")
	}
}

// TestEndToEndHeapTaskProcessLifecycle exercises a process's whole
// lifecycle against a booted kernel: its stack comes out of the shared
// heap, its bound task runs cooperatively and exits, the process itself
// then exits, is reaped, and the heap balances back to empty.
func TestEndToEndHeapTaskProcessLifecycle(t *testing.T) {
	con := console.NewBufferConsole("")

	k, err := Boot(DefaultConfig(), con)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statsBefore := k.Heap.Stats()

	pid, err := k.Proc.Create(0)
	if err != nil {
		t.Fatalf("unexpected error creating process: %v", err)
	}

	ran := make(chan struct{})

	taskID, err := k.Sched.CreateTask(func(tk *sched.Task) {
		close(ran)
	}, 1)
	if err != nil {
		t.Fatalf("unexpected error creating task: %v", err)
	}

	if err := k.Proc.BindTask(pid, taskID); err != nil {
		t.Fatalf("unexpected error binding task: %v", err)
	}

	k.Sched.Yield()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("bound task never ran")
	}

	if _, err := k.Proc.Wait(pid); err == nil {
		t.Fatal("did not expect the process to be reapable before it exits")
	}

	if err := k.Proc.SetCurrent(pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	k.Proc.Exit(0)

	code, err := k.Proc.Wait(pid)
	if err != nil {
		t.Fatalf("unexpected error reaping the exited process: %v", err)
	}

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	statsAfter := k.Heap.Stats()
	if statsAfter.Used != statsBefore.Used {
		t.Fatalf("expected the process's stack to be released back to the heap, before=%+v after=%+v", statsBefore, statsAfter)
	}
}
