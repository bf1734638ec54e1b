package instance

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"
)

// catPath locates a binary that blocks reading stdin without arguments, used
// as a stand-in for the workspace binary so spawn/terminate/kill can be
// exercised without a real workspace process.
func catPath(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not found on PATH, skipping process lifecycle test")
	}
	return path
}

func TestSpawnAndTerminate(t *testing.T) {
	bin := catPath(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	p, err := spawn(context.Background(), bin, os.Environ(), logger, "test-instance")
	if err != nil {
		t.Fatalf("spawn() error = %v", err)
	}
	if p.pid() == 0 {
		t.Fatal("pid() = 0 after a successful spawn")
	}

	if err := p.terminate(); err != nil {
		t.Fatalf("terminate() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after SIGTERM within 2s")
	}
}

func TestKillOnNeverStartedProcess(t *testing.T) {
	p := &process{cmd: exec.Command(catPath(t))}

	if err := p.kill(); err != nil {
		t.Errorf("kill() on a never-started process should be a no-op, got error: %v", err)
	}
	if p.pid() != 0 {
		t.Errorf("pid() = %d, want 0 for a never-started process", p.pid())
	}
}
