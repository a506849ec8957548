package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// searchOptions holds options for the search command.
type searchOptions struct {
	configPath string
	text       string
	owner      string
	tags       []string
	limit      int
	sortBy     string
	sortOrder  string
	jsonOutput bool
}

// newSearchCmd creates the search command.
func (a *App) newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank session entries across both tiers",
		Long: `Search both tiers and print the merged, ranked results. Text matches
key and title substrings, owner matches exactly, tags match the entry's
tag set.

Examples:
  # Find a user's support chats
  sessioncache search -c config.yaml --owner user-1 --tag support

  # Full-text over keys and titles
  sessioncache search -c config.yaml --text "billing" --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.text == "" && opts.owner == "" && len(opts.tags) == 0 {
				return fmt.Errorf("at least one of --text, --owner, or --tag is required")
			}
			return a.withEngine(cmd.Context(), opts.configPath, func(ctx context.Context, m *application.Manager) error {
				results, err := m.Search(ctx, storage.SearchQuery{
					Text:      opts.text,
					OwnerID:   opts.owner,
					Tags:      opts.tags,
					Limit:     opts.limit,
					SortBy:    storage.SortField(opts.sortBy),
					SortOrder: storage.SortOrder(opts.sortOrder),
				})
				if err != nil {
					return err
				}

				if opts.jsonOutput {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(results)
				}

				if len(results) == 0 {
					fmt.Fprintln(a.stdout, "No matches.")
					return nil
				}

				w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SCORE\tKEY\tTIER\tOWNER\tTITLE")
				for _, r := range results {
					fmt.Fprintf(w, "%.0f\t%s\t%s\t%s\t%s\n",
						r.Score, r.Key, r.Entry.StorageTier, r.Entry.OwnerID, r.Entry.Title)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.text, "text", "", "Substring match against key and title")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Exact owner match")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag match (repeatable)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of results (0 = all)")
	cmd.Flags().StringVar(&opts.sortBy, "sort-by", "", "Secondary sort field (timestamp, lastAccessed, accessCount, size)")
	cmd.Flags().StringVar(&opts.sortOrder, "sort-order", "", "Secondary sort order (asc, desc)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}
