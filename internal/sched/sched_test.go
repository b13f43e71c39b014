package sched

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kacchi-os/kernel/internal/console"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	s := New(console.NewBufferConsole(""))
	s.Init()

	return s
}

func TestCreateTaskAssignsIncreasingIDs(t *testing.T) {
	s := newTestScheduler(t)

	var wg sync.WaitGroup
	wg.Add(2)

	id1, err := s.CreateTask(func(tk *Task) { wg.Done() }, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id2, err := s.CreateTask(func(tk *Task) { wg.Done() }, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id2 <= id1 {
		t.Fatalf("expected increasing task IDs, got %d then %d", id1, id2)
	}

	for i := 0; i < 4; i++ {
		s.Yield()
	}

	wg.Wait()
}

func TestCreateTaskFullTableReturnsSentinel(t *testing.T) {
	s := newTestScheduler(t)

	for i := 0; i < MaxTasks-1; i++ {
		if _, err := s.CreateTask(func(tk *Task) {}, 0); err != nil {
			t.Fatalf("unexpected error creating task %d: %v", i, err)
		}
	}

	id, err := s.CreateTask(func(tk *Task) {}, 0)
	if !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot, got id=%d err=%v", id, err)
	}

	if id != -1 {
		t.Fatalf("expected sentinel id -1, got %d", id)
	}
}

func TestPriorityTieBreaksToHigherPriority(t *testing.T) {
	s := newTestScheduler(t)

	var order []int
	var mu sync.Mutex
	record := func(id int) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	lowID, _ := s.CreateTask(func(tk *Task) {
		record(tk.ID)
	}, 1)

	highID, _ := s.CreateTask(func(tk *Task) {
		record(tk.ID)
	}, 5)

	// One Yield from the null task is enough: each task records and then
	// returns (an implicit ExitTask), handing control to the next-highest
	// priority task in the same chain of switches, until control returns
	// to the null task.
	s.Yield()

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 2 || order[0] != highID || order[1] != lowID {
		t.Fatalf("expected higher-priority task %d to run before %d, got order %v", highID, lowID, order)
	}
}

func TestSleepDefersUntilWakeTick(t *testing.T) {
	s := newTestScheduler(t)

	woke := make(chan uint64, 1)

	_, err := s.CreateTask(func(tk *Task) {
		s.Sleep(3)
		woke <- s.GetTicks()
	}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Yield()

	select {
	case <-woke:
		t.Fatal("task should not have woken before its sleep expired")
	case <-time.After(10 * time.Millisecond):
	}

	for i := 0; i < 5; i++ {
		s.Yield()
	}

	select {
	case tick := <-woke:
		if tick < 3 {
			t.Fatalf("task woke at tick %d, before its wake_tick", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("task never woke")
	}
}

func TestExitTaskBecomesZombieAndStopsScheduling(t *testing.T) {
	s := newTestScheduler(t)

	ran := make(chan struct{})

	id, err := s.CreateTask(func(tk *Task) {
		close(ran)
	}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Yield()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := s.Get(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if info.State == StateZombie {
			return
		}

		s.Yield()
	}

	t.Fatal("task never became a zombie")
}

func TestGetUnknownTaskReturnsError(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Get(999); err == nil {
		t.Fatal("expected an error for an unknown task id")
	}
}

func TestYieldWithNoReadyTaskIsANoOp(t *testing.T) {
	s := newTestScheduler(t)

	before := s.GetTicks()
	s.Yield()
	after := s.GetTicks()

	if after != before+1 {
		t.Fatalf("expected Yield to advance ticks by 1 even with nothing runnable, got %d -> %d", before, after)
	}
}

func TestInitBeforeUsePanics(t *testing.T) {
	s := New(console.NewBufferConsole(""))

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a panic calling Yield before Init")
		}
	}()

	s.Yield()
}
