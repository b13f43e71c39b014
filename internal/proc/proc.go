// Package proc implements the kernel's process manager: a fixed process
// table with parent/child tracking, synchronous signal dispatch, and
// zombie reaping via a non-blocking wait.
//
// The process table is independent of the scheduler's task table (spec's
// "process vs. task duality" — see DESIGN.md): a process need not have an
// associated task, and BindTask is the only explicit link between the two.
package proc

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/heap"
)

// Table parameters (spec design values).
const (
	MaxProcesses  = 32
	MaxChildren   = 8
	MaxSignals    = 16
	ProcStackSize = 2048
)

// State is a process's position in the process lifecycle.
type State int

const (
	StateFree State = iota
	StateCreated
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrNoFreeSlot is returned by Create when the process table is full
	// or the process stack cannot be allocated.
	ErrNoFreeSlot = errors.New("proc: no free process slot")
	// ErrInvalidSignal is returned for a signal number outside [0, MaxSignals).
	ErrInvalidSignal = errors.New("proc: invalid signal number")
	// ErrNotZombie is returned by Wait when the target process exists but
	// has not exited yet. ErrNotFound is returned by Wait, SignalSend, Get,
	// SetCurrent and BindTask when the pid is unknown.
	ErrNotZombie   = errors.New("proc: process is not a zombie")
	ErrNotFound    = errors.New("proc: no such process")
	ErrNoHandler   = errors.New("proc: no signal handler registered")
	ErrBadParentID = errors.New("proc: invalid parent pid")
)

// SignalHandler receives a signal number.
type SignalHandler func(sig int)

// Process is this manager's process descriptor.
type Process struct {
	PID      int
	PPID     int
	State    State
	ExitCode int

	Children []int

	handlers [MaxSignals]SignalHandler

	stack unsafe.Pointer

	CPUTicks uint64
	taskID   int
	hasTask  bool
}

// Manager owns the process table.
type Manager struct {
	mu          sync.Mutex
	procs       [MaxProcesses]*Process
	nextPID     int
	current     int
	heap        *heap.Heap
	con         console.Console
	initialized bool
}

// New constructs a Manager. Process stacks are carved out of heap, so the
// same conserved-byte-region the allocator manages backs process memory
// the way it would on real hardware. Init must be called before any other
// operation.
func New(h *heap.Heap, con console.Console) *Manager {
	return &Manager{heap: h, con: con}
}

// Init installs process 0 (kernel/init) as the running process.
func (m *Manager) Init() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.procs {
		m.procs[i] = nil
	}

	m.procs[0] = &Process{PID: 0, PPID: -1, State: StateRunning}
	m.current = 0
	m.nextPID = 1
	m.initialized = true

	if m.con != nil {
		console.Diagf(m.con, "PROC", "manager initialized")
	}
}

func (m *Manager) mustBeInitialized() {
	if !m.initialized {
		panic("proc: operation on an uninitialized process manager")
	}
}

func (m *Manager) findByPID(pid int) (int, *Process) {
	for i, p := range m.procs {
		if p != nil && p.PID == pid {
			return i, p
		}
	}

	return -1, nil
}

// Create allocates a new process as a child of ppid, including a
// heap-backed stack of ProcStackSize bytes. It returns the new pid, or
// (-1, ErrNoFreeSlot) if the table is full or the stack could not be
// allocated.
func (m *Manager) Create(ppid int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mustBeInitialized()

	slot := -1
	for i := 1; i < MaxProcesses; i++ {
		if m.procs[i] == nil {
			slot = i
			break
		}
	}

	if slot == -1 {
		return -1, ErrNoFreeSlot
	}

	stack := m.heap.Allocate(ProcStackSize)
	if stack == nil {
		return -1, ErrNoFreeSlot
	}

	pid := m.nextPID
	m.nextPID++

	p := &Process{
		PID:   pid,
		PPID:  ppid,
		State: StateCreated,
		stack: stack,
	}
	m.procs[slot] = p

	if parentIdx, parent := m.findByPID(ppid); parentIdx >= 0 && len(parent.Children) < MaxChildren {
		parent.Children = append(parent.Children, pid)
	}

	if m.con != nil {
		console.Diagf(m.con, "PROC", "created pid=%d ppid=%d", pid, ppid)
	}

	return pid, nil
}

// Wait is a non-blocking poll (spec's explicit design decision: no
// scheduler-level blocking wait). If pid is a zombie, its exit code is
// returned and the slot is freed. A live process yields ErrNotZombie and an
// unknown pid yields ErrNotFound.
func (m *Manager) Wait(pid int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mustBeInitialized()

	idx, p := m.findByPID(pid)
	if p == nil {
		return -1, ErrNotFound
	}

	if p.State != StateZombie {
		return -1, ErrNotZombie
	}

	code := p.ExitCode
	m.procs[idx] = nil

	return code, nil
}

// SignalRegister installs handler for sig on the calling (current) process.
func (m *Manager) SignalRegister(sig int, handler SignalHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mustBeInitialized()

	if sig < 0 || sig >= MaxSignals {
		return ErrInvalidSignal
	}

	m.procs[m.current].handlers[sig] = handler

	return nil
}

// SignalSend dispatches sig to pid synchronously: the handler, if any, runs
// on the caller's goroutine before SignalSend returns (spec's synchronous,
// non-queued delivery model).
func (m *Manager) SignalSend(pid, sig int) error {
	m.mu.Lock()

	m.mustBeInitialized()

	if sig < 0 || sig >= MaxSignals {
		m.mu.Unlock()
		return ErrInvalidSignal
	}

	_, p := m.findByPID(pid)
	if p == nil {
		m.mu.Unlock()
		return ErrNotFound
	}

	handler := p.handlers[sig]
	m.mu.Unlock()

	if handler == nil {
		return ErrNoHandler
	}

	handler(sig)

	return nil
}

// Exit marks the current process a zombie, releasing its stack back to the
// heap. Reaping (and slot reuse) happens later via Wait.
func (m *Manager) Exit(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mustBeInitialized()

	p := m.procs[m.current]
	p.ExitCode = code
	p.State = StateZombie

	if p.stack != nil {
		m.heap.Free(p.stack)
		p.stack = nil
	}

	if m.con != nil {
		console.Diagf(m.con, "PROC", "pid=%d exited with code %d", p.PID, code)
	}
}

// SetCurrent marks pid as the current process: the process-table analogue
// of a scheduler context switch. Nothing here enforces that this stays in
// sync with which task is actually running — that link is the caller's
// responsibility (see BindTask).
func (m *Manager) SetCurrent(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, p := m.findByPID(pid)
	if p == nil {
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}

	m.current = idx

	return nil
}

// GetPID returns the calling process's pid.
func (m *Manager) GetPID() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.procs[m.current].PID
}

// GetParentPID returns the calling process's parent pid.
func (m *Manager) GetParentPID() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.procs[m.current].PPID
}

// Get returns a copy of the descriptor for pid.
func (m *Manager) Get(pid int) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, p := m.findByPID(pid)
	if p == nil {
		return Process{}, fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}

	return *p, nil
}

// List returns a snapshot of every non-FREE process, in table order.
func (m *Manager) List() []Process {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Process
	for _, p := range m.procs {
		if p != nil {
			out = append(out, *p)
		}
	}

	return out
}

// BindTask associates pid with a scheduler task ID, purely for CPU-tick
// accounting (spec.md names cpu_ticks in the data model with no operation
// updating it; the original process.c increments it but never says from
// where). The process and task tables stay structurally independent: this
// is an optional link the caller opts into, not a requirement for either
// Create or CreateTask.
func (m *Manager) BindTask(pid, taskID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, p := m.findByPID(pid)
	if p == nil {
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}

	p.taskID = taskID
	p.hasTask = true

	return nil
}

// AccountTicks adds delta ticks to the cpu_ticks of whichever bound process
// (if any) is associated with taskID. It is a no-op if no process is bound
// to that task.
func (m *Manager) AccountTicks(taskID int, delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.procs {
		if p != nil && p.hasTask && p.taskID == taskID {
			p.CPUTicks += delta
			return
		}
	}
}
