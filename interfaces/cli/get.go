package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// getOptions holds options for the get command.
type getOptions struct {
	configPath string
	jsonOutput bool
	raw        bool
}

// newGetCmd creates the get command.
func (a *App) newGetCmd() *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a session entry",
		Long: `Fetch a session entry by key, reading through the volatile tier into
the durable tier.

Examples:
  # Print the entry with its metadata
  sessioncache get -c config.yaml chat-123

  # Print only the payload
  sessioncache get -c config.yaml --raw chat-123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), opts.configPath, func(ctx context.Context, m *application.Manager) error {
				entry, found, err := m.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q not found", args[0])
				}
				return a.printEntry(entry, opts.jsonOutput, opts.raw)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the entry as JSON")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print only the payload bytes")

	return cmd
}

func (a *App) printEntry(entry *storage.Entry, jsonOutput, raw bool) error {
	if raw {
		_, err := a.stdout.Write(entry.Data)
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}

	fmt.Fprintf(a.stdout, "Key: %s\n", entry.Key)
	if entry.Title != "" {
		fmt.Fprintf(a.stdout, "  Title: %s\n", entry.Title)
	}
	if entry.OwnerID != "" {
		fmt.Fprintf(a.stdout, "  Owner: %s\n", entry.OwnerID)
	}
	if len(entry.Tags) > 0 {
		fmt.Fprintf(a.stdout, "  Tags: %s\n", strings.Join(entry.Tags, ", "))
	}
	fmt.Fprintf(a.stdout, "  Tier: %s\n", entry.StorageTier)
	fmt.Fprintf(a.stdout, "  Sync: %s\n", entry.SyncStatus)
	fmt.Fprintf(a.stdout, "  Size: %d bytes\n", entry.Size)
	fmt.Fprintf(a.stdout, "  Accessed: %d times, last %s\n", entry.AccessCount, entry.LastAccessed.Format("2006-01-02 15:04:05"))
	if !entry.ExpiresAt.IsZero() {
		fmt.Fprintf(a.stdout, "  Expires: %s\n", entry.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(a.stdout, "  Data: %s\n", entry.Data)
	return nil
}
