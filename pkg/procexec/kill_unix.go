//go:build !windows
// +build !windows

package procexec

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// setProcessGroup puts the child in its own process group so signals reach
// everything it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return p.Signal(sig)
	}
	return err
}

// killer sends SIGTERM to the group and escalates to SIGKILL after grace
// unless the process was reaped first.
type killer struct {
	mu     sync.Mutex
	grace  time.Duration
	timer  *time.Timer
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
	if err := signalGroup(p, syscall.SIGTERM); err != nil {
		return err
	}
	k.signalled = true
	k.timer = time.AfterFunc(k.grace, func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		if !k.exited {
			_ = signalGroup(p, syscall.SIGKILL)
		}
	})
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
	if k.timer != nil {
		k.timer.Stop()
	}
}
