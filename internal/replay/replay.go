// Package replay executes a file of shell command lines against a
// Dispatcher, and can optionally re-run the file whenever it changes on
// disk. This recovers the original kernel.c's two always-running demo
// tasks (task_a, task_b) as a reusable script (via the shell's spawn
// command) instead of code baked into the boot path.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/kacchi-os/kernel/internal/console"
)

// Executor is the minimal surface replay needs from a command dispatcher.
// internal/shell.Dispatcher satisfies this without either package
// importing the other.
type Executor interface {
	Execute(line string)
}

// Run executes every non-blank, non-comment line of the file at path
// against exec, in order.
func Run(path string, exec Executor) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		exec.Execute(line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay: read %s: %w", path, err)
	}

	return nil
}

// Watch runs the script once, then re-runs it every time the file is
// written, until ctx is cancelled.
func Watch(ctx context.Context, path string, exec Executor, con console.Console) error {
	if err := Run(path, exec); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("replay: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("replay: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if con != nil {
				console.Diagf(con, "REPLAY", "%s changed, re-running", path)
			}

			if err := Run(path, exec); err != nil && con != nil {
				console.Diagf(con, "REPLAY", "error: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			if con != nil {
				console.Diagf(con, "REPLAY", "watch error: %v", err)
			}
		}
	}
}
