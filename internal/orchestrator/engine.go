package orchestrator

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/serge-chat/stackd/internal/hostinfo"
	"github.com/serge-chat/stackd/internal/installer"
	"github.com/serge-chat/stackd/internal/monitor"
	"github.com/serge-chat/stackd/internal/resource"
	"github.com/serge-chat/stackd/internal/supervisor"
	"github.com/serge-chat/stackd/pkg/config"
	"github.com/serge-chat/stackd/pkg/consts"
	stackderr "github.com/serge-chat/stackd/pkg/errors"
	"github.com/serge-chat/stackd/pkg/fsm"
	"github.com/serge-chat/stackd/pkg/logger"
)

// Engine drives the supervised session: host detection, runtime install,
// ordered child startup, the steady-state joint wait, and coordinated
// teardown. It owns both child role slots exclusively.
type Engine struct {
	cfg     *config.Config
	machine *fsm.StateMachine

	profile hostinfo.Profile

	mu           sync.Mutex
	shuttingDown bool
	cache        *supervisor.Child
	api          *supervisor.Child

	// Seams replaced by tests; production values set in NewEngine.
	detect     func() hostinfo.Profile
	install    func(installer.Command) error
	startChild func(consts.ChildRole, config.ChildConfig) (*supervisor.Child, error)
	probePort  func(int) error
}

func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{
		cfg:        cfg,
		machine:    fsm.New(fsm.State(consts.StateIdle)),
		detect:     hostinfo.Detect,
		install:    installer.Install,
		startChild: supervisor.Start,
		probePort:  resource.ProbePort,
	}
	e.setupFSM()
	return e
}

func (e *Engine) setupFSM() {
	// Ordered startup path
	e.machine.AddTransition(fsm.State(consts.StateIdle), fsm.State(consts.StateDetecting), "detect", e.onDetect)
	e.machine.AddTransition(fsm.State(consts.StateDetecting), fsm.State(consts.StateInstalling), "install", e.onInstall)
	e.machine.AddTransition(fsm.State(consts.StateInstalling), fsm.State(consts.StateStartingCache), "start-cache", e.onStartCache)
	e.machine.AddTransition(fsm.State(consts.StateStartingCache), fsm.State(consts.StateStartingAPI), "start-api", e.onStartAPI)
	e.machine.AddTransition(fsm.State(consts.StateStartingAPI), fsm.State(consts.StateRunning), "run", nil)

	// Any pre-Running step may abort straight to Terminated
	for _, s := range []consts.SupervisorState{
		consts.StateDetecting, consts.StateInstalling,
		consts.StateStartingCache, consts.StateStartingAPI,
	} {
		e.machine.AddTransition(fsm.State(s), fsm.State(consts.StateTerminated), "abort", nil)
	}

	// Steady-state exits
	e.machine.AddTransition(fsm.State(consts.StateRunning), fsm.State(consts.StateShuttingDown), "shutdown", e.onShutdown)
	e.machine.AddTransition(fsm.State(consts.StateRunning), fsm.State(consts.StateTerminated), "crashed", nil)
	e.machine.AddTransition(fsm.State(consts.StateShuttingDown), fsm.State(consts.StateTerminated), "terminated", nil)
}

// State exposes the current supervisor state.
func (e *Engine) State() consts.SupervisorState {
	return consts.SupervisorState(e.machine.Current())
}

// fire drives a transition and records it in the state metric.
func (e *Engine) fire(event fsm.Event) error {
	err := e.machine.Fire(event)
	monitor.StateTransitionsTotal.WithLabelValues(string(e.machine.Current())).Inc()
	return err
}

// Run executes the whole supervised session and returns the process exit
// code: 0 after a signal-initiated shutdown where both children left
// cleanly, 1 for install or launch failures, and a crashed child's own
// exit code otherwise.
func (e *Engine) Run() int {
	// Signals are captured from the start so a TERM delivered during the
	// install is not lost; it is acted on as soon as the handler goroutine
	// starts, before the steady-state wait.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := e.fire("detect"); err != nil {
		return e.abortStartup(err)
	}
	if err := e.fire("install"); err != nil {
		return e.abortStartup(err)
	}
	if err := e.fire("start-cache"); err != nil {
		return e.abortStartup(err)
	}
	if err := e.fire("start-api"); err != nil {
		// The cache child is already live; it must not be leaked.
		e.drainChild(e.cache)
		return e.abortStartup(err)
	}
	e.fire("run")
	logger.Log.Info("Stack running", "cache_pid", e.cache.Pid(), "api_pid", e.api.Pid())

	go func() {
		for range sigCh {
			e.initiateShutdown()
		}
	}()

	return e.awaitChildren()
}

func (e *Engine) onDetect(event fsm.Event, args ...interface{}) error {
	e.profile = e.detect()
	return nil
}

func (e *Engine) onInstall(event fsm.Event, args ...interface{}) error {
	cmd := installer.ResolveCommand(e.profile, e.cfg.Runtime)
	return e.install(cmd)
}

func (e *Engine) onStartCache(event fsm.Event, args ...interface{}) error {
	if err := e.probePort(e.cfg.Cache.Port); err != nil {
		return stackderr.New(stackderr.ErrCodeLaunchFailed, "StartCache", "cache port unavailable", err)
	}
	c, err := e.startChild(consts.RoleCache, e.cfg.Cache)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cache = c
	e.mu.Unlock()
	return nil
}

func (e *Engine) onStartAPI(event fsm.Event, args ...interface{}) error {
	if err := e.probePort(e.cfg.API.Port); err != nil {
		return stackderr.New(stackderr.ErrCodeLaunchFailed, "StartAPI", "api port unavailable", err)
	}
	c, err := e.startChild(consts.RoleInferenceAPI, e.cfg.API)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.api = c
	e.mu.Unlock()
	return nil
}

// onShutdown runs on the first termination request only. It sends SIGTERM
// to both children and returns without waiting; the main wait in Run
// collects the exits. It must never block.
func (e *Engine) onShutdown(event fsm.Event, args ...interface{}) error {
	logger.Log.Info("Shutdown: Signaling children")
	if e.cache != nil {
		e.cache.Signal()
	}
	if e.api != nil {
		e.api.Signal()
	}
	return nil
}

// initiateShutdown is re-entry safe: only the first call flips the guard
// and fires the transition, so each child receives exactly one SIGTERM no
// matter how many signals arrive.
func (e *Engine) initiateShutdown() {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return
	}
	e.shuttingDown = true
	e.mu.Unlock()

	if err := e.fire("shutdown"); err != nil {
		// Signal raced with a crash that already left Running.
		logger.Log.Warn("Shutdown request ignored", "state", e.State(), "err", err)
	}
}

// awaitChildren blocks until both children have exited, in any order, and
// derives the supervisor's exit code.
func (e *Engine) awaitChildren() int {
	var first, other *supervisor.Child
	select {
	case <-e.cache.Done():
		first, other = e.cache, e.api
	case <-e.api.Done():
		first, other = e.api, e.cache
	}
	recordExit(first.Exit())

	e.mu.Lock()
	shutdown := e.shuttingDown
	e.mu.Unlock()

	if !shutdown {
		// Unexpected exit while Running ends the session: terminate the
		// sibling and propagate the crashed child's exit code.
		status := first.Exit()
		logger.Log.Error("Child exited unexpectedly",
			"role", status.Role, "code", status.Code, "signaled", status.Signaled)

		e.mu.Lock()
		e.shuttingDown = true // late signals become no-ops
		e.mu.Unlock()
		e.fire("crashed")

		other.Signal()
		<-other.Done()
		recordExit(other.Exit())

		code := status.Code
		if code < 0 {
			code = 1
		}
		return code
	}

	<-other.Done()
	recordExit(other.Exit())
	e.fire("terminated")
	logger.Log.Info("Shutdown complete")

	if cleanExit(first.Exit()) && cleanExit(other.Exit()) {
		return 0
	}
	return 1
}

// cleanExit treats status 0 and death-by-our-SIGTERM as clean.
func cleanExit(s supervisor.ExitStatus) bool {
	return s.Code == 0 || s.Signaled
}

// drainChild terminates an already-started child during a startup failure.
// SIGTERM first, bounded wait, SIGKILL if it lingers.
func (e *Engine) drainChild(c *supervisor.Child) {
	if c == nil {
		return
	}
	c.Signal()
	select {
	case <-c.Done():
	case <-time.After(consts.DefaultFailureDrain):
		logger.Log.Warn("Startup cleanup: child ignored SIGTERM", "role", c.Role())
		c.Kill()
		<-c.Done()
	}
	recordExit(c.Exit())
}

// abortStartup reports a fatal startup error, moves the machine to
// Terminated, and yields the failure exit code.
func (e *Engine) abortStartup(err error) int {
	logger.Log.Error("Startup aborted", "state", e.State(), "err", err)
	e.fire("abort")
	return 1
}

func recordExit(s supervisor.ExitStatus) {
	outcome := "clean"
	switch {
	case s.Signaled:
		outcome = "signaled"
	case s.Code != 0:
		outcome = "error"
	}
	monitor.ChildExitsTotal.WithLabelValues(string(s.Role), outcome).Inc()
}

// Personal.AI order the ending
