package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/emersion/go-maildir"
	"github.com/spf13/cobra"
)

// NewDeliverCommand returns a command that delivers one message into a
// maildir through tmp and new, which a running watcher reports.
func NewDeliverCommand() *cobra.Command {
	var initDir bool

	deliverCmd := &cobra.Command{
		Use:   "deliver MAILDIR [FILE]",
		Short: "Deliver a message from FILE or stdin into a maildir",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := maildir.Dir(filepath.Clean(args[0]))

			if initDir {
				if err := os.MkdirAll(string(dir), 0o700); err != nil {
					return fmt.Errorf("create maildir %s: %w", dir, err)
				}
				if err := dir.Init(); err != nil {
					return fmt.Errorf("init maildir %s: %w", dir, err)
				}
			}

			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				file, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open message: %w", err)
				}
				defer file.Close()
				src = file
			}

			return deliver(dir, src)
		},
	}

	deliverCmd.Flags().BoolVar(&initDir, "init", false, "Create the cur, new and tmp directories first")
	return deliverCmd
}

func deliver(dir maildir.Dir, src io.Reader) error {
	delivery, err := maildir.NewDelivery(string(dir))
	if err != nil {
		return fmt.Errorf("start delivery to %s: %w", dir, err)
	}

	if _, err := io.Copy(delivery, src); err != nil {
		_ = delivery.Abort()
		return fmt.Errorf("write message: %w", err)
	}

	if err := delivery.Close(); err != nil {
		return fmt.Errorf("finish delivery: %w", err)
	}
	return nil
}
