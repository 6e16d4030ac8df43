package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/stats"
)

// NewStatsCommand returns the one-shot unread report command. Folders are
// discovered without subscribing to change notifications.
func NewStatsCommand() *cobra.Command {
	var (
		summary bool
		pretty  bool
		format  string
	)

	statsCmd := &cobra.Command{
		Use:   "stats PATH...",
		Short: "Count unread messages in maildir folders and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			if pretty && f != output.FormatText {
				return fmt.Errorf("--pretty requires --format text")
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

			roots := make([]string, 0, len(args))
			for _, arg := range args {
				roots = append(roots, filepath.Clean(arg))
			}
			reg, err := registry.Discover(nil, logger, roots)
			if err != nil {
				return err
			}

			report := stats.Count(reg, !summary)
			if pretty {
				return stats.WriteTable(cmd.OutOrStdout(), report)
			}
			return output.New(cmd.OutOrStdout(), f, false).Stats(report)
		},
	}

	statsCmd.Flags().BoolVar(&summary, "summary", false, "Print only the total unread count")
	statsCmd.Flags().BoolVar(&pretty, "pretty", false, "Render the per-folder report as a table")
	statsCmd.Flags().StringVar(&format, "format", string(output.FormatText), "Output format: text, json")
	return statsCmd
}
