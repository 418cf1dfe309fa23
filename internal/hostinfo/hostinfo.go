package hostinfo

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"github.com/serge-chat/stackd/pkg/consts"
	"github.com/serge-chat/stackd/pkg/logger"
)

// Profile describes the host the stack will run on: the CPU architecture
// and, for x86 hosts, the best SIMD tier the CPU reports. It is computed
// once at startup and immutable thereafter.
type Profile struct {
	Arch string
	Tier consts.SIMDTier
}

// IsARM64 reports whether the host is in the 64-bit ARM family. ARM hosts
// get a dedicated wheel source; the SIMD tier is not meaningful for them.
func (p Profile) IsARM64() bool {
	return p.Arch == "arm64"
}

// Detect probes the running host. It never fails: a host whose cpuinfo is
// missing or unreadable simply resolves to the basic tier.
func Detect() Profile {
	p := detectFrom(runtime.GOARCH, "/proc/cpuinfo")
	logger.Log.Info("Host profile detected", "arch", p.Arch, "tier", p.Tier.String())
	return p
}

// detectFrom is the testable implementation of Detect. It accepts the
// architecture string and a cpuinfo path so tests can point at synthetic
// files.
func detectFrom(goarch, cpuinfoPath string) Profile {
	p := Profile{Arch: goarch, Tier: consts.TierBasic}
	if p.IsARM64() {
		return p
	}
	p.Tier = detectSIMDTier(cpuinfoPath)
	return p
}

// detectSIMDTier scans the cpuinfo flags line and returns the highest
// extension tier present. Checked in descending priority so a host
// reporting both avx2 and avx resolves to AVX2.
func detectSIMDTier(cpuinfoPath string) consts.SIMDTier {
	flags := readCPUFlags(cpuinfoPath)

	switch {
	case hasFlagPrefix(flags, "avx512"):
		return consts.TierAVX512
	case flags["avx2"]:
		return consts.TierAVX2
	case flags["avx"]:
		return consts.TierAVX
	default:
		return consts.TierBasic
	}
}

// readCPUFlags extracts the tokens of the first "flags" (x86) or
// "Features" (ARM under emulation) line from cpuinfo.
func readCPUFlags(path string) map[string]bool {
	flags := make(map[string]bool)

	file, err := os.Open(path)
	if err != nil {
		return flags
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags") && !strings.HasPrefix(line, "Features") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		for _, token := range strings.Fields(parts[1]) {
			flags[token] = true
		}
		break
	}
	return flags
}

// hasFlagPrefix reports whether any flag token starts with prefix. The
// avx512 family appears as avx512f, avx512bw, etc.; any of them qualifies.
func hasFlagPrefix(flags map[string]bool, prefix string) bool {
	for f := range flags {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// Personal.AI order the ending
