// Package lock enforces a single gateway instance per machine through a
// lock file recording the owner's pid, port, hostname and heartbeat.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/porticodev/portico/internal/logger"
)

const (
	DefaultFileName   = "portico.lock"
	HeartbeatInterval = 30 * time.Second

	livenessTimeout = 2 * time.Second
)

// ErrAlreadyRunning reports that a live instance holds the lock. The caller
// reuses that instance instead of starting a second one.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Info is the lock file payload.
type Info struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Hostname  string    `json:"hostname"`
	Heartbeat time.Time `json:"heartbeat"`
}

// Lock owns the lock file for the lifetime of the process.
type Lock struct {
	path string
	info Info
	log  *logger.StyledLogger

	acquired bool
	stopCh   chan struct{}
	done     chan struct{}
}

// DefaultPath places the lock file under PORTICO_HOME when set, otherwise
// ~/.portico. Falls back to the OS temp dir when no home dir resolves.
func DefaultPath() string {
	dir := os.Getenv("PORTICO_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), DefaultFileName)
		}
		dir = filepath.Join(home, ".portico")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return filepath.Join(os.TempDir(), DefaultFileName)
	}
	return filepath.Join(dir, DefaultFileName)
}

func New(path string, port int, log *logger.StyledLogger) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{
		path: path,
		info: Info{
			PID:      os.Getpid(),
			Port:     port,
			Hostname: hostname,
		},
		log:    log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Acquire takes the lock, stealing it from a stale holder. When a live
// instance holds it, Acquire returns ErrAlreadyRunning together with the
// holder's Info so the caller can point the user at the running gateway.
func (l *Lock) Acquire(ctx context.Context) (*Info, error) {
	if err := l.tryCreate(); err == nil {
		l.startHeartbeat()
		return nil, nil
	} else if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	existing, err := readInfo(l.path)
	if err != nil {
		// unreadable lock file is treated as stale
		l.log.Warn("replacing unreadable lock file", "path", l.path, "error", err)
		return nil, l.steal()
	}

	if instanceAlive(ctx, existing) {
		return existing, ErrAlreadyRunning
	}

	l.log.Info("replacing stale lock file", "path", l.path, "stale_pid", existing.PID)
	return nil, l.steal()
}

// Release stops the heartbeat and removes the lock file. A no-op when the
// lock was never acquired.
func (l *Lock) Release() {
	if !l.acquired {
		return
	}
	close(l.stopCh)
	<-l.done
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Warn("failed to remove lock file", "path", l.path, "error", err)
	}
}

func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	l.info.Heartbeat = time.Now()
	return json.NewEncoder(f).Encode(l.info)
}

func (l *Lock) steal() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale lock file: %w", err)
	}
	if err := l.tryCreate(); err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}
	l.startHeartbeat()
	return nil
}

func (l *Lock) startHeartbeat() {
	l.acquired = true
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.beat()
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Lock) beat() {
	l.info.Heartbeat = time.Now()
	data, err := json.Marshal(l.info)
	if err != nil {
		return
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		l.log.Warn("failed to refresh lock heartbeat", "path", l.path, "error", err)
	}
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// instanceAlive needs both checks to agree: the pid must exist and the
// holder must answer its liveness endpoint. A recycled pid without a
// gateway behind it counts as dead.
func instanceAlive(ctx context.Context, info *Info) bool {
	if !processAlive(info.PID) {
		return false
	}
	return healthAnswers(ctx, info.Port)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func healthAnswers(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
