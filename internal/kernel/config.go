package kernel

import "github.com/Masterminds/semver/v3"

// Config is the kernel's boot-time configuration, scoped to the three
// subsystems this kernel actually has: heap, scheduler, process manager.
type Config struct {
	HeapSize     int
	Alignment    uint32
	UseMmapHeap  bool

	MaxTasks      int
	TaskStackSize int

	MaxProcesses  int
	MaxChildren   int
	MaxSignals    int
	ProcStackSize int

	// ABIVersion declares the scheduler/process ABI this configuration
	// targets. Boot rejects a version outside abiCompatRange.
	ABIVersion *semver.Version
}

// abiCompatRange is the kernel's declared ABI compatibility window, the
// kernel-build-time analogue of a bootloader's "does this kernel image
// match what I was built to load" check.
const abiCompatRange = ">= 1.0.0, < 2.0.0"

// DefaultConfig returns a Config whose values equal the design constants of
// heap, sched, and proc, and the current ABI version (1.0.0).
func DefaultConfig() Config {
	v, err := semver.NewVersion("1.0.0")
	if err != nil {
		panic("kernel: invalid built-in ABI version: " + err.Error())
	}

	return Config{
		HeapSize:    1 << 20,
		Alignment:   8,
		UseMmapHeap: false,

		MaxTasks:      16,
		TaskStackSize: 4096,

		MaxProcesses:  32,
		MaxChildren:   8,
		MaxSignals:    16,
		ProcStackSize: 2048,

		ABIVersion: v,
	}
}
