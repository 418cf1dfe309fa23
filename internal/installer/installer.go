package installer

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/serge-chat/stackd/internal/hostinfo"
	"github.com/serge-chat/stackd/internal/monitor"
	"github.com/serge-chat/stackd/pkg/config"
	stackderr "github.com/serge-chat/stackd/pkg/errors"
	"github.com/serge-chat/stackd/pkg/logger"
)

// Command is a resolved install invocation as an argv vector. It is never
// flattened into a shell string; the argv goes straight to exec.
type Command []string

func (c Command) String() string {
	return strings.Join(c, " ")
}

// ResolveCommand builds the pip invocation that installs the llama-cpp-python
// wheel matching the host profile. ARM64 hosts use the dedicated arm64 wheel
// index; everything else uses the x86 index with the SIMD tier as a path
// segment. Resolution cannot fail; errors surface at execution.
func ResolveCommand(profile hostinfo.Profile, rt config.RuntimeConfig) Command {
	pkg := fmt.Sprintf("llama-cpp-python==%s", rt.LlamaVersion)

	if profile.IsARM64() {
		return Command{
			"python", "-m", "pip", "install", pkg,
			"--only-binary=:all:",
			"--extra-index-url=" + rt.ARM64IndexURL,
		}
	}

	index := fmt.Sprintf("%s/%s/cpu", strings.TrimRight(rt.IndexURL, "/"), profile.Tier.String())
	return Command{
		"python", "-m", "pip", "install", pkg,
		"--only-binary=:all:",
		"--extra-index-url=" + index,
	}
}

// Install executes the resolved command and blocks until it finishes. There
// is no cancellation and no retry: a non-zero exit is fatal for startup.
func Install(cmd Command) error {
	logger.Log.Info("Installing inference runtime", "cmd", cmd.String())

	start := time.Now()
	c := exec.Command(cmd[0], cmd[1:]...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	err := c.Run()
	monitor.InstallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return stackderr.New(stackderr.ErrCodeInstallFailed, "Install",
			fmt.Sprintf("dependency install %q failed", cmd.String()), err)
	}

	logger.Log.Info("Inference runtime installed", "elapsed", time.Since(start).String())
	return nil
}

// Personal.AI order the ending
