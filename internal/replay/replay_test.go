package replay

import (
	"os"
	"path/filepath"
	"testing"
)

type recordingExecutor struct {
	lines []string
}

func (r *recordingExecutor) Execute(line string) {
	r.lines = append(r.lines, line)
}

func TestRunSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.kcmd")

	content := "# a comment\nps\n\nyield\n   \nplist\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec := &recordingExecutor{}
	if err := Run(path, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"ps", "yield", "plist"}
	if len(exec.lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, exec.lines)
	}

	for i := range want {
		if exec.lines[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, exec.lines)
		}
	}
}

func TestRunMissingFileReturnsError(t *testing.T) {
	exec := &recordingExecutor{}

	if err := Run(filepath.Join(t.TempDir(), "missing.kcmd"), exec); err == nil {
		t.Fatal("expected an error for a missing script file")
	}
}
