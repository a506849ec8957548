package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilson323/llmchat-sub005/application"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// setOptions holds options for the set command.
type setOptions struct {
	configPath string
	data       string
	file       string
	ttl        time.Duration
	owner      string
	title      string
	tags       []string
}

// newSetCmd creates the set command.
func (a *App) newSetCmd() *cobra.Command {
	opts := &setOptions{}

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a session entry",
		Long: `Store a session entry under the given key, writing through both tiers.

The payload comes from --data, --file, or stdin, in that order.

Examples:
  # Store an inline payload with metadata
  sessioncache set -c config.yaml chat-123 --data '{"messages":[]}' --owner user-1 --title "Support chat"

  # Store a file with a TTL
  sessioncache set -c config.yaml chat-123 --file session.json --ttl 24h

  # Pipe the payload in
  cat session.json | sessioncache set -c config.yaml chat-123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readPayload(opts)
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), opts.configPath, func(ctx context.Context, m *application.Manager) error {
				err := m.Set(ctx, args[0], data, storage.SetOptions{
					TTL:     opts.ttl,
					OwnerID: opts.owner,
					Title:   opts.title,
					Tags:    opts.tags,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Stored %s (%d bytes)\n", args[0], len(data))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.data, "data", "", "Inline payload")
	cmd.Flags().StringVar(&opts.file, "file", "", "Read the payload from a file")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Time to live (0 = no expiry)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Session owner ID")
	cmd.Flags().StringVar(&opts.title, "title", "", "Human-readable title")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag (repeatable)")

	return cmd
}

func (a *App) readPayload(opts *setOptions) ([]byte, error) {
	if opts.data != "" {
		return []byte(opts.data), nil
	}
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no payload provided (use --data, --file, or stdin)")
	}
	return data, nil
}
