package control

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

var (
	// ErrAlreadyRunning means another live recorder holds the lock.
	ErrAlreadyRunning = errors.New("recorder already running")
	// ErrNotRunning means no live recorder holds the lock.
	ErrNotRunning = errors.New("recorder not running")
)

// Lock is the content of recorder.lock.
type Lock struct {
	SessionID    string
	PID          int
	StartWallMs  int64
	StartWallISO string
}

// Marshal renders the lock as key=value lines.
func (l Lock) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "session_id=%s\n", l.SessionID)
	fmt.Fprintf(&b, "pid=%d\n", l.PID)
	fmt.Fprintf(&b, "start_wall_ms=%d\n", l.StartWallMs)
	fmt.Fprintf(&b, "start_wall_iso=%s\n", l.StartWallISO)
	return b.Bytes()
}

// ParseLock reads key=value lines. Unknown keys are ignored; a missing or
// malformed pid is an error.
func ParseLock(data []byte) (Lock, error) {
	var l Lock
	var havePID bool
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "session_id":
			l.SessionID = value
		case "pid":
			pid, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || pid <= 0 {
				return Lock{}, fmt.Errorf("lock: bad pid %q", value)
			}
			l.PID, havePID = pid, true
		case "start_wall_ms":
			l.StartWallMs, _ = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		case "start_wall_iso":
			l.StartWallISO = value
		}
	}
	if !havePID {
		return Lock{}, errors.New("lock: missing pid")
	}
	return l, nil
}

// pidAlive is replaced in tests.
var pidAlive = func(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// ReadLock parses the current lock file.
func ReadLock(paths Paths) (Lock, error) {
	data, err := os.ReadFile(paths.Lock())
	if err != nil {
		return Lock{}, err
	}
	return ParseLock(data)
}

// lockGrace is how long an unreadable lock is taken to belong to a
// recorder that is still starting.
const lockGrace = 2 * time.Second

// AcquireLock creates the lock file exclusively. A lock left by a dead
// process, or one that has been unreadable for longer than lockGrace, is
// removed together with the pause flag and the create is retried once.
func AcquireLock(paths Paths, lock Lock) error {
	if err := paths.Ensure(); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		err := createLock(paths.Lock(), lock.Marshal())
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) || attempt > 0 {
			return fmt.Errorf("create lock: %w", err)
		}

		held, err := ReadLock(paths)
		if err == nil && held.PID != os.Getpid() && pidAlive(held.PID) {
			return fmt.Errorf("%w (pid %d, session %s)", ErrAlreadyRunning, held.PID, held.SessionID)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) && recent(paths.Lock()) {
			return fmt.Errorf("%w (lock unreadable: %v)", ErrAlreadyRunning, err)
		}
		if err := clearStale(paths); err != nil {
			return err
		}
	}
}

// createLock writes data to a temporary file and hard-links it into
// place, so the lock never exists without its content.
func createLock(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".lock-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	err = os.Link(tmp, path)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}
	// Filesystems without hard links fall back to an exclusive create;
	// the grace period covers the window before the content lands.
	return createExclusive(path, data)
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// recent reports whether path was modified within lockGrace.
func recent(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < lockGrace
}

func clearStale(paths Paths) error {
	if err := removeIfExists(paths.Lock()); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := removeIfExists(paths.Pause()); err != nil {
		return fmt.Errorf("remove stale pause flag: %w", err)
	}
	return nil
}

// ReleaseLock removes the lock only if it still names pid.
func ReleaseLock(paths Paths, pid int) error {
	held, err := ReadLock(paths)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && held.PID != pid {
		return nil
	}
	return removeIfExists(paths.Lock())
}

// Cleanup runs on recorder exit: the pause and stop flags go with the lock.
func Cleanup(paths Paths, pid int) error {
	return errors.Join(
		removeIfExists(paths.Pause()),
		removeIfExists(paths.Stop()),
		ReleaseLock(paths, pid),
	)
}
