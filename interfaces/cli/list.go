package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
)

// listOptions holds options for the list command.
type listOptions struct {
	configPath string
	prefix     string
	limit      int
	jsonOutput bool
}

// newListCmd creates the list command.
func (a *App) newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session entries across both tiers",
		Long: `List session entries from both tiers, merged and ordered by key.

Examples:
  # List every entry
  sessioncache list -c config.yaml

  # List entries for one session namespace
  sessioncache list -c config.yaml --prefix "session:" --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), opts.configPath, func(ctx context.Context, m *application.Manager) error {
				entries, err := m.List(ctx, opts.prefix, opts.limit)
				if err != nil {
					return err
				}

				if opts.jsonOutput {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}

				if len(entries) == 0 {
					fmt.Fprintln(a.stdout, "No entries found.")
					return nil
				}

				w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tTIER\tSYNC\tSIZE\tTITLE")
				for _, entry := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						entry.Key, entry.StorageTier, entry.SyncStatus, entry.Size, entry.Title)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Only keys with this prefix")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of entries (0 = all)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output entries as JSON")

	return cmd
}
