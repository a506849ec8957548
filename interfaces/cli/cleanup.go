package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
)

// newCleanupCmd creates the cleanup command.
func (a *App) newCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries from both tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), configPath, func(ctx context.Context, m *application.Manager) error {
				removed, err := m.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed %d expired entries\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
