package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/serge-chat/stackd/pkg/config"
	"github.com/serge-chat/stackd/pkg/consts"
	stackderr "github.com/serge-chat/stackd/pkg/errors"
	"github.com/serge-chat/stackd/pkg/logger"
)

// ChildState is the liveness state of a supervised child.
type ChildState string

const (
	StateStarting ChildState = "starting"
	StateRunning  ChildState = "running"
	StateExited   ChildState = "exited"
)

// ExitStatus describes how a child left. Code is the process exit code, or
// -1 when the child was terminated by a signal.
type ExitStatus struct {
	Role     consts.ChildRole
	Code     int
	Signaled bool
	Err      error
}

// Child is one supervised service process. It is owned exclusively by the
// engine; at most one live Child exists per role. A reaper goroutine
// collects the exit status and closes Done when the process leaves.
type Child struct {
	role consts.ChildRole
	cmd  *exec.Cmd

	mu     sync.Mutex
	state  ChildState
	status ExitStatus

	done chan struct{}
}

// Start launches a child for the given role from its launch specification.
// The command is an argv vector; stdout and stderr pass through to the
// supervisor's own streams. The child is considered running as soon as
// process creation succeeds; there is no readiness probe.
func Start(role consts.ChildRole, spec config.ChildConfig) (*Child, error) {
	if len(spec.Command) == 0 {
		return nil, stackderr.New(stackderr.ErrCodeLaunchFailed, "StartChild",
			fmt.Sprintf("%s launch spec has no command", role), nil)
	}

	c := &Child{
		role:  role,
		state: StateStarting,
		done:  make(chan struct{}),
	}

	c.cmd = exec.Command(spec.Command[0], spec.Command[1:]...)
	c.cmd.Dir = spec.Dir
	c.cmd.Env = append(os.Environ(), spec.Env...)
	c.cmd.Stdout = os.Stdout
	c.cmd.Stderr = os.Stderr

	logger.Log.Info("Supervisor: Forking child", "role", role, "cmd", spec.Command)
	if err := c.cmd.Start(); err != nil {
		c.mu.Lock()
		c.state = StateExited
		c.mu.Unlock()
		return nil, stackderr.New(stackderr.ErrCodeLaunchFailed, "StartChild",
			fmt.Sprintf("failed to start %s child", role), err)
	}

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()

	go c.reap()
	return c, nil
}

// reap blocks on the process and records its exit status exactly once.
func (c *Child) reap() {
	err := c.cmd.Wait()

	status := ExitStatus{Role: c.role, Code: 0}
	if err != nil {
		status.Err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			status.Code = exitErr.ExitCode()
			if status.Code == -1 {
				status.Signaled = true
			}
		} else {
			status.Code = -1
		}
	}

	c.mu.Lock()
	c.state = StateExited
	c.status = status
	c.mu.Unlock()

	logger.Log.Info("Supervisor: Child exited", "role", c.role, "code", status.Code, "signaled", status.Signaled)
	close(c.done)
}

// Role returns the child's role tag.
func (c *Child) Role() consts.ChildRole {
	return c.role
}

// Pid returns the child's process ID, or 0 if it never started.
func (c *Child) Pid() int {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// State returns the current liveness state.
func (c *Child) State() ChildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the child has exited and its status is recorded.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Exit returns the recorded exit status. Only valid after Done is closed.
func (c *Child) Exit() ExitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Signal sends a SIGTERM to request graceful shutdown. Send-and-forget:
// the caller observes the outcome through Done, never here.
func (c *Child) Signal() error {
	if c.cmd != nil && c.cmd.Process != nil {
		logger.Log.Info("Supervisor: Sending SIGTERM", "role", c.role, "pid", c.cmd.Process.Pid)
		return c.cmd.Process.Signal(syscall.SIGTERM)
	}
	return nil
}

// Kill immediately terminates the child with SIGKILL. Used only when a
// startup-failure cleanup drain expires.
func (c *Child) Kill() error {
	if c.cmd != nil && c.cmd.Process != nil {
		logger.Log.Warn("Supervisor: Sending SIGKILL", "role", c.role, "pid", c.cmd.Process.Pid)
		return c.cmd.Process.Kill()
	}
	return nil
}

// Personal.AI order the ending
