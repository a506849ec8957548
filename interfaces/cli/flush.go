package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
)

// newFlushCmd creates the flush command.
func (a *App) newFlushCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Push every queued entry to the remote backend",
		Long: `Push every queued entry and tombstone to the remote backend once.
Entries that fail to push stay queued for the next attempt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), configPath, func(ctx context.Context, m *application.Manager) error {
				queued := len(m.PendingKeys())
				if err := m.Flush(ctx); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Flushed %d queued entries\n", queued)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
