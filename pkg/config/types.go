package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/serge-chat/stackd/pkg/consts"
	stackderr "github.com/serge-chat/stackd/pkg/errors"
)

// Config represents the root configuration of the stackd supervisor.
type Config struct {
	Version       string              `yaml:"version"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Cache         ChildConfig         `yaml:"cache"`
	API           ChildConfig         `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RuntimeConfig controls the llama-cpp-python wheel install. The version
// itself comes from the LLAMA_PYTHON_VERSION environment variable, not from
// the file, so image rebuilds can pin it independently of the config.
type RuntimeConfig struct {
	// LlamaVersion is populated from the environment by Load.
	LlamaVersion string `yaml:"-"`

	// IndexURL is the wheel index for x86 hosts. The resolved SIMD tier is
	// appended as a path segment.
	IndexURL string `yaml:"llama_index_url"`

	// ARM64IndexURL is the wheel index for aarch64 hosts.
	ARM64IndexURL string `yaml:"arm64_index_url"`
}

// ChildConfig is the launch specification for one supervised child.
type ChildConfig struct {
	Command []string `yaml:"command"` // argv; never a shell string
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
	Port    int      `yaml:"port"`
}

type ObservabilityConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
}

const (
	defaultIndexURL      = "https://jllllll.github.io/llama-cpp-python-cuBLAS-wheels"
	defaultARM64IndexURL = "https://gaby.github.io/arm64-wheels/"
)

// Default returns the configuration used when fields are omitted: the Redis
// cache on its standard port and the serge inference API served by hypercorn
// on 8008, bound to all interfaces.
func Default() Config {
	return Config{
		Version: "1",
		Runtime: RuntimeConfig{
			IndexURL:      defaultIndexURL,
			ARM64IndexURL: defaultARM64IndexURL,
		},
		Cache: ChildConfig{
			Command: []string{"redis-server", "/etc/redis/redis.conf"},
			Port:    consts.DefaultCachePort,
		},
		API: ChildConfig{
			Command: []string{"hypercorn", "serge.main:app", "--bind", fmt.Sprintf("0.0.0.0:%d", consts.DefaultAPIPort)},
			Dir:     "/usr/src/app/api",
			Port:    consts.DefaultAPIPort,
		},
		Observability: ObservabilityConfig{
			MetricsPort: ":9090",
			LogLevel:    "info",
		},
	}
}

// Load reads the yaml file at path, applies defaults for omitted fields,
// pulls LLAMA_PYTHON_VERSION from the environment, and validates the result.
// A missing file is not an error; the defaults then apply unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, stackderr.New(stackderr.ErrCodeConfigInvalid, "LoadConfig", fmt.Sprintf("parsing %s", path), err)
		}
		cfg.applyDefaults()
	} else if !os.IsNotExist(err) {
		return nil, stackderr.New(stackderr.ErrCodeConfigInvalid, "LoadConfig", fmt.Sprintf("reading %s", path), err)
	}

	cfg.Runtime.LlamaVersion = os.Getenv(consts.EnvLlamaVersion)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in zero-valued fields after unmarshal, so a partial
// yaml file only overrides what it names.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Runtime.IndexURL == "" {
		c.Runtime.IndexURL = def.Runtime.IndexURL
	}
	if c.Runtime.ARM64IndexURL == "" {
		c.Runtime.ARM64IndexURL = def.Runtime.ARM64IndexURL
	}
	if len(c.Cache.Command) == 0 {
		c.Cache.Command = def.Cache.Command
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = def.Cache.Port
	}
	if len(c.API.Command) == 0 {
		c.API.Command = def.API.Command
		if c.API.Dir == "" {
			c.API.Dir = def.API.Dir
		}
	}
	if c.API.Port == 0 {
		c.API.Port = def.API.Port
	}
	if c.Observability.MetricsPort == "" {
		c.Observability.MetricsPort = def.Observability.MetricsPort
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = def.Observability.LogLevel
	}
}

// Validate rejects configurations the engine cannot act on. The llama
// version is mandatory: silently defaulting it would install an arbitrary
// wheel build.
func (c *Config) Validate() error {
	if c.Runtime.LlamaVersion == "" {
		return stackderr.New(stackderr.ErrCodeConfigInvalid, "Validate",
			fmt.Sprintf("%s environment variable is not set", consts.EnvLlamaVersion), nil)
	}
	if len(c.Cache.Command) == 0 {
		return stackderr.New(stackderr.ErrCodeConfigInvalid, "Validate", "cache command is empty", nil)
	}
	if len(c.API.Command) == 0 {
		return stackderr.New(stackderr.ErrCodeConfigInvalid, "Validate", "api command is empty", nil)
	}
	if c.Cache.Port <= 0 || c.Cache.Port > 65535 {
		return stackderr.New(stackderr.ErrCodeConfigInvalid, "Validate",
			fmt.Sprintf("cache port %d out of range", c.Cache.Port), nil)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return stackderr.New(stackderr.ErrCodeConfigInvalid, "Validate",
			fmt.Sprintf("api port %d out of range", c.API.Port), nil)
	}
	return nil
}

// Personal.AI order the ending
