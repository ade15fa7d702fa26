package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/app"
	"github.com/ternarybob/decoupled/internal/common"
)

var (
	// Global flags
	configFiles []string // Multiple --config flags supported, later files override earlier ones
	logLevel    string

	// Global state, set by loadConfig before any command runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "decoupled",
	Short: "Knowledge-base search and chat over Drupal content",
	Long: `decoupled indexes articles from a headless Drupal site into a Pinecone
vector index and answers questions about them with a tool-calling LLM.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence in order:
// 1. Load config (defaults -> file1 -> file2 -> ... -> .env -> env)
// 2. Apply CLI overrides
// 3. Initialize logger
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		for _, candidate := range []string{"decoupled.toml", "deployments/local/decoupled.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				configFiles = append(configFiles, candidate)
				break
			}
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	common.ApplyFlagOverrides(config, port, host, logLevel)

	// MCP speaks JSON-RPC over stdio, keep the console quiet
	if cmd.Name() == mcpCmd.Name() {
		logger = common.NewQuietLogger()
	} else {
		logger = common.InitLogger(config)
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Str("provider", string(config.LLM.DefaultProvider)).
		Msg("Configuration loaded")

	return nil
}

// newApp builds the application container from the loaded configuration
func newApp(ctx context.Context) (*app.App, error) {
	application, err := app.New(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}
