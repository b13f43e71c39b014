// Package sched implements the kernel's cooperative round-robin scheduler:
// a fixed table of tasks, priority-tie-broken round-robin selection, and
// tick-based sleeping.
//
// spec.md places the assembly-level context_switch leaf primitive out of
// scope; this hosted realization uses one goroutine per task and a strict
// two-party channel handshake in place of a literal stack/register swap
// (see DESIGN.md). Externally the contract is unchanged: at most one task
// is ever RUNNING, and suspension points never need locking between them.
package sched

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kacchi-os/kernel/internal/console"
)

// MaxTasks and StackSize are the scheduler's fixed parameters (spec design
// values).
const (
	MaxTasks  = 16
	StackSize = 4096
)

// State is a task's position in the scheduler's state machine.
type State int

const (
	StateFree State = iota
	StateRunning
	StateReady
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateRunning:
		return "RUN"
	case StateReady:
		return "READY"
	case StateBlocked:
		return "BLOCK"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// ErrNoFreeSlot is returned by CreateTask when the task table is full.
var ErrNoFreeSlot = errors.New("sched: no free task slot")

// TaskFunc is a task's entry point. It is invoked on its own goroutine and
// runs until it returns or calls ExitTask itself; a return from TaskFunc
// implicitly calls ExitTask on the task's behalf.
type TaskFunc func(t *Task)

// Task is this scheduler's task control block. Stack is retained purely as
// a bookkeeping field sized StackSize, for inspection parity with spec.md's
// data model — the goroutine's real call stack is managed by the Go
// runtime, not by this buffer.
type Task struct {
	ID       int
	State    State
	Priority int
	WakeTick uint64
	Stack    []byte

	resume chan struct{}
	sched  *Scheduler
}

// Scheduler owns the task table and the single handoff baton that encodes
// "which goroutine may currently run".
type Scheduler struct {
	mu          sync.Mutex
	tasks       [MaxTasks]*Task
	current     int
	nextID      int
	ticks       uint64
	initialized bool
	con         console.Console
}

// New constructs a Scheduler. Init must be called before any other
// operation.
func New(con console.Console) *Scheduler {
	return &Scheduler{con: con}
}

// Init installs the null task (index 0, the scheduler's own caller) as the
// initially running task.
func (s *Scheduler) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		s.tasks[i] = nil
	}

	s.tasks[0] = &Task{
		ID:       0,
		State:    StateRunning,
		Priority: 0,
		resume:   make(chan struct{}),
		sched:    s,
	}
	s.current = 0
	s.nextID = 1
	s.ticks = 0
	s.initialized = true

	if s.con != nil {
		console.Diagf(s.con, "SCHED", "initialized, %d task slots", MaxTasks)
	}
}

func (s *Scheduler) mustBeInitialized() {
	if !s.initialized {
		panic("sched: operation on an uninitialized scheduler")
	}
}

// CreateTask installs fn at priority in a free slot and starts its
// goroutine, parked immediately on its resume channel until the scheduler
// selects it. It returns the new task's ID, or (-1, ErrNoFreeSlot) if the
// table is full.
func (s *Scheduler) CreateTask(fn TaskFunc, priority int) (int, error) {
	s.mu.Lock()

	s.mustBeInitialized()

	slot := -1
	for i := 1; i < MaxTasks; i++ {
		if s.tasks[i] == nil {
			slot = i
			break
		}
	}

	if slot == -1 {
		s.mu.Unlock()
		return -1, ErrNoFreeSlot
	}

	t := &Task{
		ID:       s.nextID,
		State:    StateReady,
		Priority: priority,
		Stack:    make([]byte, StackSize),
		resume:   make(chan struct{}),
		sched:    s,
	}
	s.nextID++
	s.tasks[slot] = t
	s.mu.Unlock()

	go func() {
		<-t.resume
		fn(t)

		s.mu.Lock()
		exited := t.State == StateZombie
		s.mu.Unlock()

		if !exited {
			s.ExitTask()
		}
	}()

	return t.ID, nil
}

// pickNext scans the table starting just after current, promoting any
// BLOCKED task whose wake_tick has arrived to READY as it is considered
// (the documented resolution of spec.md's BLOCKED->READY open question),
// and returns the highest-priority READY slot. It returns -1 if none is
// runnable. Caller must hold s.mu.
func (s *Scheduler) pickNext() int {
	best := -1
	bestPrio := -1 << 31

	for i := 0; i < MaxTasks; i++ {
		idx := (s.current + 1 + i) % MaxTasks
		t := s.tasks[idx]

		if t == nil {
			continue
		}

		if t.State == StateBlocked && t.WakeTick <= s.ticks {
			t.State = StateReady
		}

		if t.State == StateReady && t.Priority > bestPrio {
			bestPrio = t.Priority
			best = idx
		}
	}

	return best
}

// switchTo performs the channel-handshake context switch from the slot at
// prev to the slot at next, advancing current and waking the new task.
// Caller must hold s.mu; it releases the lock before blocking.
func (s *Scheduler) switchTo(prevIdx, nextIdx int) {
	prev := s.tasks[prevIdx]
	next := s.tasks[nextIdx]

	s.current = nextIdx
	next.State = StateRunning

	if prevIdx == nextIdx {
		s.mu.Unlock()
		return
	}

	s.mu.Unlock()

	next.resume <- struct{}{}

	if prev.State != StateZombie {
		<-prev.resume
	}
}

// Yield advances the simulated tick, then cooperatively hands control to
// the highest-priority runnable task, round-robining among equal
// priorities. If none is runnable, the caller keeps running.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	s.mustBeInitialized()

	s.ticks++

	prevIdx := s.current
	nextIdx := s.pickNext()

	if nextIdx < 0 {
		s.mu.Unlock()
		return
	}

	prev := s.tasks[prevIdx]
	if prev.State == StateRunning {
		prev.State = StateReady
	}

	s.switchTo(prevIdx, nextIdx)
}

// Sleep blocks the calling task for at least delta ticks, then yields to
// the next runnable task.
func (s *Scheduler) Sleep(delta uint64) {
	s.mu.Lock()
	s.mustBeInitialized()

	prevIdx := s.current
	prev := s.tasks[prevIdx]
	prev.WakeTick = s.ticks + delta
	prev.State = StateBlocked

	nextIdx := s.pickNext()
	if nextIdx < 0 {
		nextIdx = 0
	}

	s.switchTo(prevIdx, nextIdx)
}

// ExitTask marks the calling task a zombie and switches away from it for
// the last time; its goroutine returns immediately afterward.
func (s *Scheduler) ExitTask() {
	s.mu.Lock()
	s.mustBeInitialized()

	prevIdx := s.current
	s.tasks[prevIdx].State = StateZombie

	nextIdx := s.pickNext()
	if nextIdx < 0 {
		nextIdx = 0
	}

	s.switchTo(prevIdx, nextIdx)
}

// GetTicks returns the current simulated tick count.
func (s *Scheduler) GetTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ticks
}

// TaskInfo is a point-in-time snapshot of one task, safe to hold after the
// scheduler table has moved on.
type TaskInfo struct {
	ID       int
	State    State
	Priority int
	WakeTick uint64
}

// List returns a snapshot of every non-FREE task, in table order.
func (s *Scheduler) List() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TaskInfo
	for _, t := range s.tasks {
		if t == nil {
			continue
		}

		out = append(out, TaskInfo{ID: t.ID, State: t.State, Priority: t.Priority, WakeTick: t.WakeTick})
	}

	return out
}

// Get returns a snapshot of the task with the given ID.
func (s *Scheduler) Get(id int) (TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t != nil && t.ID == id {
			return TaskInfo{ID: t.ID, State: t.State, Priority: t.Priority, WakeTick: t.WakeTick}, nil
		}
	}

	return TaskInfo{}, fmt.Errorf("sched: no such task %d", id)
}
