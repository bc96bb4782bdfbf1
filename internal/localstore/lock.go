package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	lockDirName   = ".store.lock"
	lockOwnerFile = "owner.json"
	lockWait      = 2 * time.Second
	lockRetry     = 25 * time.Millisecond

	// A lock without a readable owner older than this is left over from
	// a crash between creating the directory and writing the owner.
	staleOwnerlessAge = time.Minute
)

type DirLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock takes the directory lock for dir. Ledger mutations are short,
// so a busy lock is retried briefly before giving up.
func AcquireLock(dir string) (DirLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return DirLock{}, fmt.Errorf("store directory is required")
	}

	lockDir := filepath.Join(target, lockDirName)
	deadline := time.Now().Add(lockWait)
	for {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return DirLock{}, fmt.Errorf("acquire store lock for %s: %w", target, err)
		}
		if reclaimStaleLock(lockDir) {
			continue
		}
		if time.Now().After(deadline) {
			return DirLock{}, lockedError(target, lockDir)
		}
		time.Sleep(lockRetry)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, err := json.Marshal(owner)
	if err == nil {
		err = WriteBytes(filepath.Join(lockDir, lockOwnerFile), data)
	}
	if err != nil {
		_ = os.Remove(lockDir)
		return DirLock{}, fmt.Errorf("write store lock owner for %s: %w", target, err)
	}

	return DirLock{lockDir: lockDir}, nil
}

func (l DirLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release store lock %s: %w", l.lockDir, err)
	}
	return nil
}

func lockedError(target, lockDir string) error {
	var owner lockOwner
	data, readErr := os.ReadFile(filepath.Join(lockDir, lockOwnerFile))
	if readErr == nil && json.Unmarshal(data, &owner) == nil && owner.PID > 0 && owner.CreatedAt != "" {
		return fmt.Errorf(
			"store directory is locked: %s (pid=%d created_at=%s host=%s); remove %s if that process is gone",
			target, owner.PID, owner.CreatedAt, owner.Hostname, lockDir,
		)
	}
	return fmt.Errorf("store directory is locked: %s; remove %s if no vidgen process is running", target, lockDir)
}

// reclaimStaleLock removes lockDir when its owner is a dead process on this
// host, or when it has no owner and is older than staleOwnerlessAge. It
// reports whether the lock was removed.
func reclaimStaleLock(lockDir string) bool {
	owner, ok := readLockOwner(lockDir)
	switch {
	case ok:
		if owner.Hostname != hostnameOrUnknown() || processAlive(owner.PID) {
			return false
		}
	default:
		info, err := os.Stat(lockDir)
		if err != nil || time.Since(info.ModTime()) < staleOwnerlessAge {
			return false
		}
	}

	// Move the directory aside first so a lock another process has just
	// reclaimed is never deleted under it.
	current, currentOK := readLockOwner(lockDir)
	if currentOK != ok || current != owner {
		return false
	}
	aside := lockDir + ".stale-" + strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Rename(lockDir, aside); err != nil {
		return false
	}
	_ = os.RemoveAll(aside)
	return true
}

func readLockOwner(lockDir string) (lockOwner, bool) {
	var owner lockOwner
	data, err := os.ReadFile(filepath.Join(lockDir, lockOwnerFile))
	if err != nil || json.Unmarshal(data, &owner) != nil || owner.PID <= 0 {
		return lockOwner{}, false
	}
	return owner, true
}

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
