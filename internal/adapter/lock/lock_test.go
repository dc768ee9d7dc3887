package lock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Plain())
}

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "portico.lock")
}

func TestAcquireCreatesLockFile(t *testing.T) {
	path := lockPath(t)
	l := New(path, 2333, testLogger())

	holder, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if holder != nil {
		t.Error("expected no holder on fresh acquire")
	}
	defer l.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lock file not created: %v", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("lock file not valid JSON: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("expected own pid %d, got %d", os.Getpid(), info.PID)
	}
	if info.Port != 2333 {
		t.Errorf("expected port 2333, got %d", info.Port)
	}
	if info.Heartbeat.IsZero() {
		t.Error("expected heartbeat set")
	}
}

func TestReleaseRemovesLockFile(t *testing.T) {
	path := lockPath(t)
	l := New(path, 2333, testLogger())

	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Release()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected lock file removed after release")
	}
}

func TestReleaseWithoutAcquireIsNoOp(t *testing.T) {
	l := New(lockPath(t), 2333, testLogger())
	l.Release()
}

func TestAcquireStealsStaleLock(t *testing.T) {
	path := lockPath(t)

	// a dead pid: use one far outside the usual range, then verify it is
	// actually dead before relying on it
	stale := Info{PID: 1 << 22, Port: 65000, Hostname: "old", Heartbeat: time.Now().Add(-time.Hour)}
	if processAlive(stale.PID) {
		t.Skip("improbable: stale pid is alive on this machine")
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}

	l := New(path, 2333, testLogger())
	holder, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected stale lock stolen, got %v", err)
	}
	if holder != nil {
		t.Error("expected no holder after stealing a stale lock")
	}
	defer l.Release()

	info, err := readInfo(path)
	if err != nil {
		t.Fatalf("failed to read stolen lock: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("expected lock rewritten with own pid, got %d", info.PID)
	}
}

func TestAcquireReplacesUnreadableLock(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("failed to plant garbage lock: %v", err)
	}

	l := New(path, 2333, testLogger())
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("expected unreadable lock replaced, got %v", err)
	}
	l.Release()
}

func TestAcquireDetectsLiveInstanceWithOwnPid(t *testing.T) {
	path := lockPath(t)

	// the planted lock uses our own (alive) pid; liveness then depends on
	// the HTTP probe, which has nothing to answer it
	planted := Info{PID: os.Getpid(), Port: 1, Hostname: "here", Heartbeat: time.Now()}
	data, _ := json.Marshal(planted)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to plant lock: %v", err)
	}

	l := New(path, 2333, testLogger())
	holder, err := l.Acquire(context.Background())
	// pid alive but no gateway answering on port 1: treated as stale
	if err != nil {
		t.Fatalf("expected recycled-pid lock stolen, got %v (holder %+v)", err, holder)
	}
	l.Release()
}

func TestProcessAliveSelf(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("expected own process to be alive")
	}
	if processAlive(0) {
		t.Error("pid 0 must not count as alive")
	}
}

func TestDefaultPathHonoursHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTICO_HOME", dir)

	got := DefaultPath()
	want := filepath.Join(dir, DefaultFileName)
	if got != want {
		t.Errorf("expected lock path %q, got %q", want, got)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected lock dir to exist: %v", err)
	}
}
