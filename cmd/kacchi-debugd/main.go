// Command kacchi-debugd boots the kernel and serves its shell over a QUIC
// listener instead of a local terminal: listen, accept-loop, one goroutine
// per connection, signal.NotifyContext for graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kacchi-os/kernel/internal/console"
	"github.com/kacchi-os/kernel/internal/kernel"
	"github.com/kacchi-os/kernel/internal/remoteconsole"
	"github.com/kacchi-os/kernel/internal/shell"
)

func main() {
	addr := flag.String("addr", ":9400", "listen address for the QUIC remote console")
	heapSize := flag.Int("heap-size", kernel.DefaultConfig().HeapSize, "heap region size in bytes")
	flag.Parse()

	cfg := kernel.DefaultConfig()
	cfg.HeapSize = *heapSize

	con := console.NewStdConsole(os.Stdin, os.Stdout)

	k, err := kernel.Boot(cfg, con)
	if err != nil {
		fmt.Fprintln(os.Stderr, "boot failed:", err)
		os.Exit(1)
	}
	defer k.Shutdown()

	// script is intentionally unavailable over the remote surface: wiring
	// internal/replay here would mean every remote client can trigger
	// filesystem reads on the host running kacchi-debugd.
	base := shell.New(k)

	srv := remoteconsole.NewServer(*addr, base, con)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "remote console stopped:", err)
		os.Exit(1)
	}
}
