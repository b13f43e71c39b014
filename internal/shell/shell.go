// Package shell implements the kernel's single command dispatcher: the
// same command set the original kmain's REPL loop hand-rolled
// (strcmp-per-command against a fixed list), shared between the local REPL
// (cmd/kacchi-repl) and the remote console (cmd/kacchi-debugd,
// internal/remoteconsole) so both surfaces see identical kernel behavior.
package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/kernel"
	"github.com/kacchi-os/kernel/internal/sched"
)

// Dispatcher executes one command line against a booted Kernel. Command
// output goes to Out, which defaults to the kernel's own console but can
// be pointed elsewhere (see WithOutput) so a remote console's commands
// answer over their own connection instead of the kernel's boot console.
type Dispatcher struct {
	Kernel *kernel.Kernel
	Out    console.Console

	// RunScript, if set, backs the "script" command. cmd/kacchi-repl wires
	// it to internal/replay; leaving it nil (as cmd/kacchi-debugd does)
	// disables the command over that surface. This package does not import
	// internal/replay itself.
	RunScript func(path string, watch bool) error
}

// New constructs a Dispatcher bound to a booted kernel, writing output to
// the kernel's own console by default.
func New(k *kernel.Kernel) *Dispatcher {
	return &Dispatcher{Kernel: k, Out: k.Console}
}

// WithOutput returns a copy of the Dispatcher writing command output to
// out instead. The RunScript hook is not copied: scripted replay always
// targets the original dispatcher's surface.
func (d *Dispatcher) WithOutput(out console.Console) *Dispatcher {
	return &Dispatcher{Kernel: d.Kernel, Out: out}
}

// Execute parses and runs a single command line. It never returns an
// error: failures are reported to the console the way the original
// kmain's unrecognized-command fallback does ("You typed: ...").
func (d *Dispatcher) Execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "ps":
		d.cmdPS()
	case "plist":
		d.cmdPList()
	case "mem":
		d.cmdMem()
	case "memdump":
		d.cmdMemDump()
	case "clear":
		d.Out.Clear()
	case "yield":
		d.Kernel.Sched.Yield()
	case "sleep":
		d.cmdSleep(fields)
	case "kill":
		d.cmdKill(fields)
	case "script":
		d.cmdScript(fields)
	case "spawn":
		d.cmdSpawn(fields)
	case "help":
		d.cmdHelp()
	default:
		d.Out.Puts("You typed: " + line + "\n")
	}
}

func (d *Dispatcher) cmdPS() {
	d.Out.Puts("PID\tSTATE\tPRIO\tWAKE\n")

	for _, t := range d.Kernel.Sched.List() {
		d.Out.Puts(fmt.Sprintf("%d\t%s\t%d\t%d\n", t.ID, t.State, t.Priority, t.WakeTick))
	}
}

func (d *Dispatcher) cmdPList() {
	d.Out.Puts("PID\tPPID\tSTATE\t\tCPU\n")

	for _, p := range d.Kernel.Proc.List() {
		d.Out.Puts(fmt.Sprintf("%d\t%d\t%s\t\t%d\n", p.PID, p.PPID, p.State, p.CPUTicks))
	}
}

func (d *Dispatcher) cmdMem() {
	s := d.Kernel.Heap.Stats()
	d.Out.Puts(fmt.Sprintf(
		"Heap: %d total, %d used, %d free (%d alloc blocks, %d free blocks)\n",
		s.Total, s.Used, s.Free, s.AllocBlocks, s.FreeBlocks))
}

func (d *Dispatcher) cmdMemDump() {
	for _, b := range d.Kernel.Heap.Dump() {
		state := "USED"
		if b.Free {
			state = "FREE"
		}

		d.Out.Puts(fmt.Sprintf("offset=%d size=%d %s\n", b.Offset, b.Size, state))
	}
}

func (d *Dispatcher) cmdSleep(fields []string) {
	if len(fields) != 2 {
		d.Out.Puts("Usage: sleep <ticks>\n")
		return
	}

	n, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		d.Out.Puts("sleep: invalid tick count: " + fields[1] + "\n")
		return
	}

	d.Kernel.Sched.Sleep(n)
}

func (d *Dispatcher) cmdKill(fields []string) {
	if len(fields) != 3 {
		d.Out.Puts("Usage: kill <pid> <signal>\n")
		return
	}

	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		d.Out.Puts("kill: invalid pid: " + fields[1] + "\n")
		return
	}

	sig, err := strconv.Atoi(fields[2])
	if err != nil {
		d.Out.Puts("kill: invalid signal: " + fields[2] + "\n")
		return
	}

	if err := d.Kernel.Proc.SignalSend(pid, sig); err != nil {
		d.Out.Puts("kill: " + err.Error() + "\n")
	}
}

func (d *Dispatcher) cmdScript(fields []string) {
	if d.RunScript == nil {
		d.Out.Puts("script: not available on this console\n")
		return
	}

	watch := false

	var path string

	for _, f := range fields[1:] {
		if f == "--watch" {
			watch = true
			continue
		}

		path = f
	}

	if path == "" {
		d.Out.Puts("Usage: script <path> [--watch]\n")
		return
	}

	if err := d.RunScript(path, watch); err != nil {
		d.Out.Puts("script: " + err.Error() + "\n")
	}
}

func (d *Dispatcher) cmdHelp() {
	d.Out.Puts("Commands: ps, plist, mem, memdump, clear, yield, sleep <ticks>, kill <pid> <sig>, script <path> [--watch], spawn <task_a|task_b> <priority>, help\n")
}

// demoTaskBody is one iteration of a named demo task's loop body.
type demoTaskBody func(con console.Console, sch *sched.Scheduler)

// demoTasks recovers the original kernel's two always-running demo tasks
// (task_a printing every 2 ticks, task_b every 3) as something a script
// spawns on demand, instead of code baked unconditionally into boot.
var demoTasks = map[string]demoTaskBody{
	"task_a": func(con console.Console, sch *sched.Scheduler) {
		con.Puts(fmt.Sprintf("[task A] running (ticks=%d)\n", sch.GetTicks()))
		sch.Sleep(2)
	},
	"task_b": func(con console.Console, sch *sched.Scheduler) {
		con.Puts("[task B] hello\n")
		sch.Sleep(3)
	},
}

func (d *Dispatcher) cmdSpawn(fields []string) {
	if len(fields) != 3 {
		d.Out.Puts("Usage: spawn <task_a|task_b> <priority>\n")
		return
	}

	body, ok := demoTasks[fields[1]]
	if !ok {
		d.Out.Puts("spawn: unknown demo task " + fields[1] + "\n")
		return
	}

	priority, err := strconv.Atoi(fields[2])
	if err != nil {
		d.Out.Puts("spawn: invalid priority: " + fields[2] + "\n")
		return
	}

	// Spawned tasks outlive this command and the connection that issued
	// it, so their own output always goes to the kernel's ambient
	// console, not to d.Out.
	con := d.Kernel.Console
	sch := d.Kernel.Sched

	id, err := sch.CreateTask(func(tk *sched.Task) {
		for {
			body(con, sch)
		}
	}, priority)
	if err != nil {
		d.Out.Puts("spawn: " + err.Error() + "\n")
		return
	}

	d.Out.Puts(fmt.Sprintf("spawned %s as task %d\n", fields[1], id))
}
