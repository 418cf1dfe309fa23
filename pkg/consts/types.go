package consts

import "time"

// ChildRole identifies one of the two supervised service slots.
type ChildRole string

const (
	RoleCache        ChildRole = "cache"
	RoleInferenceAPI ChildRole = "inference-api"
)

// SupervisorState defines the lifecycle state of the supervisor itself.
type SupervisorState string

const (
	StateIdle          SupervisorState = "IDLE"
	StateDetecting     SupervisorState = "DETECTING"      // Probing host CPU profile
	StateInstalling    SupervisorState = "INSTALLING"     // llama-cpp-python wheel install
	StateStartingCache SupervisorState = "STARTING_CACHE" // Redis child launch
	StateStartingAPI   SupervisorState = "STARTING_API"   // Inference API child launch
	StateRunning       SupervisorState = "RUNNING"        // Stable, both children live
	StateShuttingDown  SupervisorState = "SHUTTING_DOWN"  // Termination signal received
	StateTerminated    SupervisorState = "TERMINATED"
)

// SIMDTier is the detected x86 instruction-set-extension level, ordered
// basic < AVX < AVX2 < AVX512. Resolution always picks the highest tier
// the host reports.
type SIMDTier int

const (
	TierBasic SIMDTier = iota
	TierAVX
	TierAVX2
	TierAVX512
)

func (t SIMDTier) String() string {
	switch t {
	case TierAVX:
		return "AVX"
	case TierAVX2:
		return "AVX2"
	case TierAVX512:
		return "AVX512"
	default:
		return "basic"
	}
}

const (
	// EnvLlamaVersion names the required llama-cpp-python version. It is
	// read exactly once at startup and has no default.
	EnvLlamaVersion = "LLAMA_PYTHON_VERSION"

	DefaultCachePort = 6379
	DefaultAPIPort   = 8008

	// DefaultFailureDrain bounds how long a startup-failure cleanup waits
	// for an already-started sibling to honor SIGTERM before SIGKILL.
	DefaultFailureDrain = 10 * time.Second
)

// Personal.AI order the ending
