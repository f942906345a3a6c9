package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/term-chat/internal/config"
	"github.com/samsaffron/term-chat/internal/debuglog"
	"github.com/samsaffron/term-chat/internal/prompt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time.
var Version = "dev"

var (
	debugLog     bool
	modelsFlag   []string
	maxIterFlag  int
	logLevelFlag string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugLog, "debug", "d", false, "Write debug logs to the log directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "debug", "Debug log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVarP(&modelsFlag, "model", "m", nil, "Model(s) to use, in fallback order (repeatable or comma-separated)")
	rootCmd.PersistentFlags().IntVar(&maxIterFlag, "max-iterations", 0, "Override the tool iteration ceiling")
}

var rootCmd = &cobra.Command{
	Use:   "term-chat",
	Short: "Chat with a language model from your terminal",
	Long: `term-chat talks to an OpenAI-compatible chat API (OpenRouter by default)
and lets the model list, read and write files and run shell commands.

Examples:
  term-chat chat                              # interactive session
  term-chat ask "what does main.go do?"       # one-shot question
  term-chat ask --no-tools "explain TCP"      # no local tools
  cat error.log | term-chat ask "what broke?"
  term-chat models                            # show the fallback order
  term-chat config                            # show the effective configuration`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if len(modelsFlag) > 0 {
		cfg.Models = modelsFlag
	}
	if maxIterFlag > 0 {
		cfg.MaxIterations = maxIterFlag
	}
	if debugLog {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger returns the debug logger for cfg and a function that flushes it.
func newLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	dir, err := config.GetLogDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log dir: %w", err)
	}
	logger, err := debuglog.New(debuglog.Options{
		Enabled: cfg.Debug,
		Dir:     dir,
		Level:   logLevelFlag,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// applyDefaultSystemPrompt fills in the built-in system prompt when none is
// configured.
func applyDefaultSystemPrompt(cfg *config.Config) {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompt.SystemPrompt(prompt.CurrentEnvironment(), "")
	}
}
