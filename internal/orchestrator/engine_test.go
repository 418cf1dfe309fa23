package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/serge-chat/stackd/internal/hostinfo"
	"github.com/serge-chat/stackd/internal/installer"
	"github.com/serge-chat/stackd/internal/supervisor"
	"github.com/serge-chat/stackd/pkg/config"
	"github.com/serge-chat/stackd/pkg/consts"
	stackderr "github.com/serge-chat/stackd/pkg/errors"
)

// testEngine builds an engine whose detection, install, and port probe are
// stubbed out, with both children running the given commands.
func testEngine(cacheCmd, apiCmd []string) *Engine {
	cfg := config.Default()
	cfg.Runtime.LlamaVersion = "0.2.20"
	cfg.Cache.Command = cacheCmd
	cfg.API.Command = apiCmd
	cfg.API.Dir = ""

	e := NewEngine(&cfg)
	e.detect = func() hostinfo.Profile { return hostinfo.Profile{Arch: "amd64", Tier: consts.TierAVX2} }
	e.install = func(installer.Command) error { return nil }
	e.probePort = func(int) error { return nil }
	return e
}

func waitForState(t *testing.T, e *Engine, want consts.SupervisorState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Engine never reached state %s, stuck at %s", want, e.State())
}

func TestNewEngine_InitialState(t *testing.T) {
	cfg := config.Default()
	e := NewEngine(&cfg)
	if e.State() != consts.StateIdle {
		t.Errorf("Expected IDLE, got %s", e.State())
	}
}

func TestRun_InstallFailureStartsNoChildren(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})
	e.install = func(installer.Command) error {
		return stackderr.New(stackderr.ErrCodeInstallFailed, "Install", "pip exited non-zero", nil)
	}
	started := 0
	e.startChild = func(role consts.ChildRole, spec config.ChildConfig) (*supervisor.Child, error) {
		started++
		return supervisor.Start(role, spec)
	}

	if code := e.Run(); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if started != 0 {
		t.Errorf("Expected no children started after install failure, got %d", started)
	}
	if e.State() != consts.StateTerminated {
		t.Errorf("Expected TERMINATED, got %s", e.State())
	}
}

func TestRun_CacheLaunchFailurePreventsAPI(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})
	apiAttempted := false
	e.startChild = func(role consts.ChildRole, spec config.ChildConfig) (*supervisor.Child, error) {
		if role == consts.RoleCache {
			return nil, stackderr.New(stackderr.ErrCodeLaunchFailed, "StartChild", "cache spawn failed", nil)
		}
		apiAttempted = true
		return supervisor.Start(role, spec)
	}

	if code := e.Run(); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if apiAttempted {
		t.Error("API child must never start after cache launch failure")
	}
}

func TestRun_APILaunchFailureTearsDownCache(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})
	var cache *supervisor.Child
	e.startChild = func(role consts.ChildRole, spec config.ChildConfig) (*supervisor.Child, error) {
		if role == consts.RoleInferenceAPI {
			return nil, stackderr.New(stackderr.ErrCodeLaunchFailed, "StartChild", "api spawn failed", nil)
		}
		c, err := supervisor.Start(role, spec)
		cache = c
		return c, err
	}

	if code := e.Run(); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if cache == nil {
		t.Fatal("Cache child never started")
	}
	if cache.State() != supervisor.StateExited {
		t.Errorf("Cache child must be terminated before abort, state %s", cache.State())
	}
	if !cache.Exit().Signaled {
		t.Errorf("Cache child should have been signaled, got %+v", cache.Exit())
	}
}

func TestRun_CleanShutdownExitsZero(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})

	codeCh := make(chan int, 1)
	go func() { codeCh <- e.Run() }()

	waitForState(t, e, consts.StateRunning)

	// Two rapid termination requests; the guard must collapse them.
	e.initiateShutdown()
	e.initiateShutdown()

	select {
	case code := <-codeCh:
		if code != 0 {
			t.Errorf("Expected exit code 0 after shutdown, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
	if e.State() != consts.StateTerminated {
		t.Errorf("Expected TERMINATED, got %s", e.State())
	}
}

func TestRun_ShutdownIsIdempotent(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})

	// Only the first request may transition the FSM; the rest are no-ops.
	codeCh := make(chan int, 1)
	go func() { codeCh <- e.Run() }()
	waitForState(t, e, consts.StateRunning)

	e.initiateShutdown()
	if s := e.State(); s != consts.StateShuttingDown && s != consts.StateTerminated {
		t.Errorf("Expected SHUTTING_DOWN after first request, got %s", s)
	}
	e.initiateShutdown()
	e.initiateShutdown()

	select {
	case code := <-codeCh:
		if code != 0 {
			t.Errorf("Repeated shutdown requests must still exit 0, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_ChildCrashPropagatesExitCode(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sh", "-c", "sleep 0.2; exit 7"})

	codeCh := make(chan int, 1)
	go func() { codeCh <- e.Run() }()

	select {
	case code := <-codeCh:
		if code != 7 {
			t.Errorf("Expected crashed child's exit code 7, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after child crash")
	}
	if e.State() != consts.StateTerminated {
		t.Errorf("Expected TERMINATED, got %s", e.State())
	}
}

func TestRun_CacheCrashTerminatesAPISibling(t *testing.T) {
	e := testEngine([]string{"sh", "-c", "sleep 0.2; exit 5"}, []string{"sleep", "10"})

	var api *supervisor.Child
	e.startChild = func(role consts.ChildRole, spec config.ChildConfig) (*supervisor.Child, error) {
		c, err := supervisor.Start(role, spec)
		if role == consts.RoleInferenceAPI {
			api = c
		}
		return c, err
	}

	codeCh := make(chan int, 1)
	go func() { codeCh <- e.Run() }()

	select {
	case code := <-codeCh:
		if code != 5 {
			t.Errorf("Expected exit code 5 from crashed cache, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cache crash")
	}
	if api == nil || api.State() != supervisor.StateExited {
		t.Error("API sibling must be terminated after cache crash")
	}
}

func TestRun_PortProbeFailureIsLaunchError(t *testing.T) {
	e := testEngine([]string{"sleep", "10"}, []string{"sleep", "10"})
	e.probePort = func(port int) error { return errors.New("address already in use") }

	started := 0
	e.startChild = func(role consts.ChildRole, spec config.ChildConfig) (*supervisor.Child, error) {
		started++
		return supervisor.Start(role, spec)
	}

	if code := e.Run(); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if started != 0 {
		t.Errorf("Expected no children after failed port probe, got %d", started)
	}
}
