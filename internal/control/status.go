package control

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// State is the recorder state visible from outside the process.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Report is the result of Status.
type Report struct {
	State State
	Lock  *Lock
}

func (r Report) String() string {
	return "Recorder status: " + string(r.State)
}

// Status inspects the lock and pause flag. A stale lock is cleared and
// reported as stopped. A freshly written lock that cannot be read yet
// reports running without lock details.
func Status(paths Paths) (Report, error) {
	lock, err := ReadLock(paths)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Report{State: StateStopped}, nil
	case err != nil && recent(paths.Lock()):
		return Report{State: StateRunning}, nil
	case err != nil || !pidAlive(lock.PID):
		if err := clearStale(paths); err != nil {
			return Report{State: StateStopped}, err
		}
		return Report{State: StateStopped}, nil
	}

	state := StateRunning
	if exists(paths.Pause()) {
		state = StatePaused
	}
	return Report{State: state, Lock: &lock}, nil
}

// RequestStop asks the running recorder to stop.
func RequestStop(paths Paths) error {
	return request(paths, paths.Stop())
}

// RequestPause pauses the running recorder until RequestResume.
func RequestPause(paths Paths) error {
	return request(paths, paths.Pause())
}

// RequestReload asks the running recorder to reload its configuration.
func RequestReload(paths Paths) error {
	return request(paths, paths.Reload())
}

// RequestResume removes the pause flag.
func RequestResume(paths Paths) error {
	if _, err := running(paths); err != nil {
		return err
	}
	return removeIfExists(paths.Pause())
}

func request(paths Paths, flag string) error {
	if _, err := running(paths); err != nil {
		return err
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(flag, stamp, 0600); err != nil {
		return fmt.Errorf("write flag: %w", err)
	}
	return nil
}

func running(paths Paths) (Report, error) {
	r, err := Status(paths)
	if err != nil {
		return r, err
	}
	if r.State == StateStopped {
		return r, ErrNotRunning
	}
	return r, nil
}
