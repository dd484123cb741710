package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coderunner/agentcore/internal/infrastructure/config"
)

// newRulesCmd inspects the permission rule file without starting a session
// — useful for validating an edited rules.yaml before running the agent
// against it.
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the permission rules currently on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			path := cfg.Agent.PermissionRulesFile
			rules, err := config.LoadRules(expandHome(path))
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}

			fmt.Printf("%s (%d rules)\n", path, len(rules))
			for i, r := range rules {
				fmt.Printf("%3d. %-6s tool=%q path=%q command=%q\n", i+1, r.Type, r.ToolPattern, r.PathPattern, r.CommandPattern)
			}
			return nil
		},
	}
	return cmd
}
