// Package lockfile guards a PromptDeck state directory with an exclusive lock.
//
// Two daemons sharing one progress database would interleave their batched
// writes, so the second instance must refuse to start. The lock is an flock on
// a file inside the state directory and is released by the kernel when the
// process exits, gracefully or not.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "promptdeck.lock"

// LockInfo describes the process holding a lock.
type LockInfo struct {
	PID     int
	Host    string
	Started time.Time
}

func (i LockInfo) String() string {
	if i.PID == 0 {
		return "unknown holder"
	}
	s := "PID " + strconv.Itoa(i.PID)
	if i.Host != "" {
		s += " on " + i.Host
	}
	if !i.Started.IsZero() {
		s += " since " + i.Started.Format(time.RFC3339)
	}
	return s
}

func (i LockInfo) encode() string {
	return fmt.Sprintf("pid=%d\nhost=%s\nstarted=%s\n", i.PID, i.Host, i.Started.UTC().Format(time.RFC3339))
}

// parseLockInfo reads the key=value lines written by encode. Unknown or
// malformed lines are skipped.
func parseLockInfo(content string) LockInfo {
	var info LockInfo
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				info.PID = pid
			}
		case "host":
			info.Host = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				info.Started = t
			}
		}
	}
	return info
}

// Lock is an acquired state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the exclusive lock of stateDir, creating the directory if
// needed. If another process holds it a *LockError is returned.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}

	// Open without truncating so a refused attempt keeps the holder's details.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readLockInfo(lockPath)
		slog.Error("AcquireLock: state directory is locked", "lockPath", lockPath, "holder", holder.String())
		return nil, &LockError{
			LockPath: lockPath,
			Holder:   holder,
			Stale:    holder.PID > 0 && !isProcessRunning(holder.PID),
			Cause:    err,
		}
	}

	host, _ := os.Hostname()
	info := LockInfo{PID: os.Getpid(), Host: host, Started: time.Now()}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("write lock information to %s: %w", lockPath, err)
	}

	slog.Info("AcquireLock: state directory locked", "lockPath", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(file *os.File, info LockInfo) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(info.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("AcquireLock: sync failed", "error", err, "lockPath", file.Name())
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so no waiter locks a doomed inode.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: remove failed", "error", err, "lockPath", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "error", err, "lockPath", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "lockPath", l.path)
	return err
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   LockInfo
	Stale    bool
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another PromptDeck instance holds the state directory lock %s (%s)", e.LockPath, e.Holder)
	if e.Stale {
		msg += "; the holder is no longer running, remove the lock file if no other instance uses this directory"
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

func readLockInfo(lockPath string) LockInfo {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return LockInfo{}
	}
	return parseLockInfo(string(data))
}

// isProcessRunning sends signal 0, which only checks the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
