package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// statsOptions holds options for the stats command.
type statsOptions struct {
	configPath string
	jsonOutput bool
}

// newStatsCmd creates the stats command.
func (a *App) newStatsCmd() *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier statistics and engine health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), opts.configPath, func(ctx context.Context, m *application.Manager) error {
				vol, dur := m.TierStats(ctx)
				health := m.Health(ctx)

				if opts.jsonOutput {
					enc := json.NewEncoder(a.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{
						"volatile": vol,
						"durable":  dur,
						"health":   health,
					})
				}

				a.printTierStats("Volatile tier", vol)
				a.printTierStats("Durable tier", dur)
				fmt.Fprintf(a.stdout, "Health\n")
				fmt.Fprintf(a.stdout, "  Volatile: %s\n", availability(health.Volatile))
				fmt.Fprintf(a.stdout, "  Durable: %s\n", availability(health.Durable))
				fmt.Fprintf(a.stdout, "  Connectivity: %s\n", health.Connectivity)
				fmt.Fprintf(a.stdout, "  Pending sync: %d\n", health.PendingCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

func (a *App) printTierStats(name string, s storage.Stats) {
	fmt.Fprintf(a.stdout, "%s\n", name)
	fmt.Fprintf(a.stdout, "  Entries: %d\n", s.TotalEntries)
	fmt.Fprintf(a.stdout, "  Size: %d bytes\n", s.TotalSize)
	fmt.Fprintf(a.stdout, "  Hits: %d, misses: %d (%.1f%% hit rate)\n",
		s.HitCount, s.MissCount, s.HitRate()*100)
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}
