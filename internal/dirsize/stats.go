package dirsize

import (
	"sync/atomic"
	"time"
)

// Stats holds the result of a completed scan.
type Stats struct {
	// TotalBytes is the final value of the shared accumulator: every
	// regular file's size plus one overhead unit per directory.
	TotalBytes int64 `json:"total_bytes"`
	// FileCount is the number of regular files summed.
	FileCount int64 `json:"file_count"`
	// DirCount is the number of directories discovered, the scan root
	// included.
	DirCount int64 `json:"dir_count"`
	// SkippedFiles is the number of files skipped after a stat failure on
	// the coordinator's own directories.
	SkippedFiles int64 `json:"skipped_files"`
	// Elapsed is the total scan duration.
	Elapsed time.Duration `json:"elapsed"`
}

// Options configures a scan.
type Options struct {
	// Path is the directory to scan.
	Path string
	// Threads is the worker pool size (0 = detected CPU count).
	Threads int
	// ProgressInterval controls progress callback cadence.
	ProgressInterval time.Duration
	// Debug indicates whether debug output is enabled.
	Debug bool
}

// counters tracks live scan totals for progress reporting and the final
// Stats. Both the coordinator and the workers update it as they go; the
// authoritative byte total remains the shared accumulator, which is only
// complete after the pool has been joined.
type counters struct {
	files   atomic.Int64
	dirs    atomic.Int64
	bytes   atomic.Int64
	skipped atomic.Int64
}

func (c *counters) record(files, dirs, bytes int64) {
	if files != 0 {
		c.files.Add(files)
	}

	if dirs != 0 {
		c.dirs.Add(dirs)
	}

	c.bytes.Add(bytes)
}
