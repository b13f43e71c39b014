// Package console provides the serial-console abstraction every core
// subsystem logs its diagnostics through. It is the hosted stand-in for the
// spec's byte in/byte out serial port: a blocking getc, a putc, a bulk puts,
// and clear-screen, nothing more.
package console

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Console is the collaborator every core package depends on for
// human-readable output. None of the core packages import os.Stdout
// directly; they take a Console so tests can assert on emitted lines.
type Console interface {
	Putc(ch byte)
	Puts(s string)
	Getc() (byte, error)
	Clear()
}

// Diagf writes a diagnostic line in the repository-wide "[TAG] message"
// format (spec §6).
func Diagf(c Console, tag, format string, args ...interface{}) {
	c.Puts(fmt.Sprintf("[%s] %s\n", tag, fmt.Sprintf(format, args...)))
}

// stdConsole backs the real REPL: stdout for output, a buffered stdin
// reader for blocking byte input.
type stdConsole struct {
	out io.Writer
	in  *bufio.Reader
	mu  sync.Mutex
}

// NewStdConsole builds a Console over the given reader/writer pair
// (typically os.Stdin / os.Stdout).
func NewStdConsole(in io.Reader, out io.Writer) Console {
	return &stdConsole{out: out, in: bufio.NewReader(in)}
}

func (c *stdConsole) Putc(ch byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.out.Write([]byte{ch})
}

func (c *stdConsole) Puts(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

func (c *stdConsole) Getc() (byte, error) {
	return c.in.ReadByte()
}

func (c *stdConsole) Clear() {
	c.Puts("\x1b[2J\x1b[H")
}

// BufferConsole is an in-memory Console used by tests: it feeds canned input
// and captures output instead of touching a real terminal.
type BufferConsole struct {
	mu      sync.Mutex
	out     []byte
	in      []byte
	inPos   int
	cleared int
}

// NewBufferConsole creates a BufferConsole preloaded with input bytes to be
// consumed by Getc.
func NewBufferConsole(input string) *BufferConsole {
	return &BufferConsole{in: []byte(input)}
}

func (b *BufferConsole) Putc(ch byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = append(b.out, ch)
}

func (b *BufferConsole) Puts(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = append(b.out, s...)
}

func (b *BufferConsole) Getc() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inPos >= len(b.in) {
		return 0, io.EOF
	}
	ch := b.in[b.inPos]
	b.inPos++
	return ch, nil
}

func (b *BufferConsole) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
}

// Output returns everything written so far.
func (b *BufferConsole) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.out)
}

// ClearCount reports how many times Clear was called, for tests.
func (b *BufferConsole) ClearCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleared
}

// Feed appends more bytes for Getc to consume.
func (b *BufferConsole) Feed(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in = append(b.in, s...)
}
