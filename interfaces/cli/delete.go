package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
)

// newDeleteCmd creates the delete command.
func (a *App) newDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a session entry from both tiers",
		Long: `Remove a session entry from both tiers. If the entry was already
replicated, its removal is queued for the remote backend as well.`,
		Aliases: []string{"del", "rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), configPath, func(ctx context.Context, m *application.Manager) error {
				found, err := m.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q not found", args[0])
				}
				fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
