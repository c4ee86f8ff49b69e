package cli

import (
	"errors"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/idelchi/dirsize/internal/dirsize"
)

// CLI represents the command-line interface.
type CLI struct {
	version string
}

// New creates a new CLI instance with the given version.
func New(version string) CLI {
	return CLI{version: version}
}

// Execute runs the CLI with the provided arguments.
func (c CLI) Execute() error {
	var options dirsize.Options

	cmd := &cobra.Command{
		Use:   "dirsize [path]",
		Short: "Compute the total byte size of a directory subtree",
		Long: heredoc.Doc(`
			dirsize computes the total byte size of a directory subtree.

			Large trees are scanned in parallel: a coordinator walks directories
			breadth-first and hands whole subtrees to a fixed pool of worker
			threads, each of which scans its subtree depth-first.

			The total counts every regular file's size plus a fixed overhead
			unit per directory. Symlinks are never followed.

			Positional Arguments:
			  path                   Directory to scan. Defaults to current directory if not specified.
		`),
		Version:       c.version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			if options.Threads < 0 {
				return errors.New("threads cannot be negative")
			}

			if len(args) == 0 {
				options.Path = "."
			} else {
				options.Path = args[0]
			}

			return logic(options)
		},
	}

	cmd.Flags().IntVarP(&options.Threads, "threads", "j", 0, "Number of worker threads (0 = detected CPU count)")
	cmd.Flags().BoolVar(&options.Debug, "debug", false, "Enable debug output")
	cmd.Flags().SortFlags = false

	return cmd.Execute()
}
