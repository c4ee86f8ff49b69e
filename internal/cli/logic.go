package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/idelchi/dirsize/internal/dirsize"
)

func logic(options dirsize.Options) error {
	enableProgress := !options.Debug && isatty.IsTerminal(os.Stderr.Fd())

	ctx := context.Background()

	// Simple progress callback that prints directly to stderr
	var progressHook func(files, bytes int64)

	if enableProgress {
		// Hide cursor for in-place updates; restore on exit.
		fmt.Fprint(os.Stderr, "\033[?25l")
		defer fmt.Fprint(os.Stderr, "\033[?25h")

		progressHook = func(files, bytes int64) {
			msg := fmt.Sprintf("Scanning… %d files, %s",
				files, humanize.IBytes(uint64(bytes))) //nolint:gosec // Bytes is always positive
			fmt.Fprintf(os.Stderr, "\r\033[2K%s\r", msg)
		}
	}

	stats, err := dirsize.Run(ctx, options, progressHook)

	// Clear the status line
	if enableProgress {
		fmt.Fprint(os.Stderr, "\r\033[2K\r")
	}

	if err != nil {
		return err
	}

	size, err := FormatSize(stats.TotalBytes)
	if err != nil {
		return fmt.Errorf("formatting total size: %w", err)
	}

	if options.Debug {
		fmt.Fprintf(os.Stderr, "[debug]: %d files, %d directories, %d skipped in %v\n",
			stats.FileCount, stats.DirCount, stats.SkippedFiles, stats.Elapsed)
	}

	//nolint:forbidigo // Result output to console
	fmt.Println(size)

	return nil
}
