// Command kacchi-repl boots the kernel and drives it from an interactive
// read-eval-print loop over stdin/stdout, the hosted equivalent of the
// original kmain's serial-console CLI.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/kernel"
	"github.com/kacchi-os/kernel/internal/replay"
	"github.com/kacchi-os/kernel/internal/shell"
)

func main() {
	var (
		heapSize   = flag.Int("heap-size", kernel.DefaultConfig().HeapSize, "heap region size in bytes")
		useMmap    = flag.Bool("mmap-heap", false, "back the heap with an anonymous mmap region instead of a plain slice")
		scriptPath = flag.String("script", "", "run a command script before starting the interactive prompt")
		watch      = flag.Bool("watch", false, "re-run -script whenever the file changes")
		noPrompt   = flag.Bool("no-prompt", false, "disable the interactive prompt (useful with -script)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "kacchiOS REPL (Read-Eval-Print Loop) over a hosted cooperative kernel.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCOMMANDS:\n")
		fmt.Fprintf(os.Stderr, "  ps, plist, mem, memdump, clear, yield,\n")
		fmt.Fprintf(os.Stderr, "  sleep <ticks>, kill <pid> <sig>, spawn <task_a|task_b> <priority>,\n")
		fmt.Fprintf(os.Stderr, "  script <path> [--watch], help\n")
	}

	flag.Parse()

	cfg := kernel.DefaultConfig()
	cfg.HeapSize = *heapSize
	cfg.UseMmapHeap = *useMmap

	con := console.NewStdConsole(os.Stdin, os.Stdout)

	k, err := kernel.Boot(cfg, con)
	if err != nil {
		fmt.Fprintln(os.Stderr, "boot failed:", err)
		os.Exit(1)
	}
	defer k.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := shell.New(k)
	d.RunScript = func(path string, watchFlag bool) error {
		if watchFlag {
			return replay.Watch(ctx, path, d, con)
		}

		return replay.Run(path, d)
	}

	con.Puts("\n========================================\n")
	con.Puts("    kacchiOS - Minimal Baremetal OS\n")
	con.Puts("========================================\n")
	con.Puts("Type 'help' for a list of commands.\n\n")

	if *scriptPath != "" {
		if *watch {
			go func() {
				if err := replay.Watch(ctx, *scriptPath, d, con); err != nil {
					console.Diagf(con, "REPLAY", "error: %v", err)
				}
			}()
		} else if err := replay.Run(*scriptPath, d); err != nil {
			console.Diagf(con, "REPLAY", "error: %v", err)
		}
	}

	if *noPrompt {
		<-ctx.Done()
		return
	}

	scanner := bufio.NewScanner(os.Stdin)

	go func() {
		<-ctx.Done()
		con.Puts("\n")
		os.Exit(0)
	}()

	for {
		con.Puts("kacchiOS> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			d.Execute(line)
		}

		k.Sched.Yield()
	}
}
