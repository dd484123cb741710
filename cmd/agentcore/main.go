package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/infrastructure/config"
	"github.com/coderunner/agentcore/internal/infrastructure/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Core agent runtime for a terminal coding assistant",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newRulesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime performs the bootstrap + config-load sequence shared by every
// subcommand: ensure ~/.agentcore exists, build a logger, load the layered
// config.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	bootLogger, _ := zap.NewProduction()
	if err := config.Bootstrap(bootLogger); err != nil {
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	return cfg, log, nil
}
