//go:build windows
// +build windows

package procexec

import (
	"os"
	"os/exec"
	"sync"
	"time"
)

func setProcessGroup(*exec.Cmd) {}

// killer on Windows has no graceful signal; it kills immediately.
type killer struct {
	mu     sync.Mutex
	grace  time.Duration
	exited bool
	// signalled is set once a stop signal was delivered.
	signalled bool
}

func (k *killer) terminate(p *os.Process) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.exited || p == nil {
		return os.ErrProcessDone
	}
	if err := p.Kill(); err != nil {
		return err
	}
	k.signalled = true
	return nil
}

func (k *killer) wasSignalled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.signalled
}

func (k *killer) reaped() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.exited = true
}
