package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coderunner/agentcore/internal/infrastructure/config"
	"github.com/coderunner/agentcore/internal/infrastructure/persistence"
	apperrors "github.com/coderunner/agentcore/pkg/errors"
)

// newReplayCmd prints a recorded session's message history from the
// journal — the append-only NDJSON log is the sole source of truth, so
// replay never touches the derived index.
func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [session-id]",
		Short: "Print a recorded session's conversation from the journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal := persistence.NewJournal(filepath.Join(config.HomeDir(), "sessions.ndjson"))

			var rec *persistence.SessionRecord
			var err error
			if len(args) == 1 {
				rec, err = journal.Get(args[0])
			} else {
				rec, err = journal.Last()
			}
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			if rec == nil {
				if len(args) == 1 {
					return apperrors.NewNotFoundError(fmt.Sprintf("no session with id %q", args[0]))
				}
				fmt.Println("no sessions recorded yet")
				return nil
			}

			fmt.Printf("session %s (%d messages, last updated %s)\n", rec.ID, len(rec.Messages), rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			for _, m := range rec.Messages {
				fmt.Printf("--- %s ---\n%s\n", m.Role, m.Content)
			}
			return nil
		},
	}
	return cmd
}
