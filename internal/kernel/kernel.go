// Package kernel wires the heap allocator, scheduler, and process manager
// together into a bootable unit, step-numbered the way a larger
// multi-subsystem kernel init sequence logs its own boot progress. Nothing
// in internal/heap, internal/sched, or internal/proc imports this package,
// and the only import among them is internal/proc's use of internal/heap for
// process stacks; this is the only place that constructs all three together.
package kernel

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/heap"
	"github.com/kacchi-os/kernel/internal/proc"
	"github.com/kacchi-os/kernel/internal/sched"
)

// Kernel bundles the three booted subsystems plus the console they share.
type Kernel struct {
	Console console.Console
	Heap    *heap.Heap
	Sched   *sched.Scheduler
	Proc    *proc.Manager

	region ioCloser
}

// ioCloser is satisfied by heap.MappedRegion without pulling in the full io
// package for one method.
type ioCloser interface {
	Close() error
}

func checkABI(cfg Config) error {
	constraint, err := semver.NewConstraint(abiCompatRange)
	if err != nil {
		return fmt.Errorf("kernel: invalid built-in ABI constraint: %w", err)
	}

	if cfg.ABIVersion == nil {
		return fmt.Errorf("kernel: config has no ABIVersion set")
	}

	if !constraint.Check(cfg.ABIVersion) {
		return fmt.Errorf("kernel: ABI version %s does not satisfy %s", cfg.ABIVersion, abiCompatRange)
	}

	return nil
}

// Boot initializes the heap, scheduler, and process manager in that order
// (leaf-first dependency order: the process manager's per-process stacks
// are carved out of the heap), logging one [KERNEL] line per step.
func Boot(cfg Config, con console.Console) (*Kernel, error) {
	if err := checkABI(cfg); err != nil {
		return nil, err
	}

	if con != nil {
		console.Diagf(con, "KERNEL", "booting, ABI %s", cfg.ABIVersion)
	}

	var region []byte
	var closer ioCloser

	if cfg.UseMmapHeap {
		mapped, err := heap.NewMappedRegion(cfg.HeapSize)
		if err != nil {
			return nil, fmt.Errorf("kernel: mmap heap region: %w", err)
		}

		region = mapped.Bytes()
		closer = mapped
	} else {
		region = heap.NewRegion(cfg.HeapSize)
	}

	if con != nil {
		console.Diagf(con, "KERNEL", "[1/3] heap: %d bytes", cfg.HeapSize)
	}

	h := heap.New(region, con)
	h.Init()

	if con != nil {
		console.Diagf(con, "KERNEL", "[2/3] scheduler: %d task slots", cfg.MaxTasks)
	}

	s := sched.New(con)
	s.Init()

	if con != nil {
		console.Diagf(con, "KERNEL", "[3/3] process manager: %d slots", cfg.MaxProcesses)
	}

	p := proc.New(h, con)
	p.Init()

	if con != nil {
		console.Diagf(con, "KERNEL", "boot complete")
	}

	return &Kernel{
		Console: con,
		Heap:    h,
		Sched:   s,
		Proc:    p,
		region:  closer,
	}, nil
}

// Shutdown releases any OS-backed resources (an mmap'd heap region) the
// kernel acquired during Boot. It is a no-op for the default slice-backed
// heap.
func (k *Kernel) Shutdown() error {
	if k.region == nil {
		return nil
	}

	return k.region.Close()
}
