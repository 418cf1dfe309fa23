package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/serge-chat/stackd/internal/monitor"
	"github.com/serge-chat/stackd/internal/orchestrator"
	"github.com/serge-chat/stackd/pkg/config"
	"github.com/serge-chat/stackd/pkg/logger"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stackd",
	Short: "stackd: supervisor for the serge inference stack",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Install the inference runtime and supervise the cache and API services",
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load config (defaults + optional file + LLAMA_PYTHON_VERSION)
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		// 2. Init Logger & Metrics
		logger.InitLogger(cfg.Observability.LogLevel)
		monitor.InitMetrics(cfg.Observability.MetricsPort)

		logger.Log.Info("Booting stackd supervisor...",
			"llama_version", cfg.Runtime.LlamaVersion, "version", Version)

		// 3. Run the engine; its return value is the process exit code
		engine := orchestrator.NewEngine(cfg)
		os.Exit(engine.Run())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stackd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "stackd.yaml", "config file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Personal.AI order the ending
