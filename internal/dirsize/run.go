package dirsize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"
)

// DefaultProgressInterval is the default interval for progress updates.
const DefaultProgressInterval = 500 * time.Millisecond

// pendingCapacity bounds the coordinator's list of locally retained
// directories.
const pendingCapacity = 512

// logger provides debug and warning output.
type logger struct {
	debug bool
	out   io.Writer
}

// debugf prints debug output if enabled.
func (l logger) debugf(format string, args ...any) {
	if l.debug {
		fmt.Fprintf(l.out, "[debug]: "+format+"\n", args...)
	}
}

// warnf prints a warning unconditionally. Skipped files and dropped worker
// subtrees are approximations the user should see.
func (l logger) warnf(format string, args ...any) {
	fmt.Fprintf(l.out, "warning: "+format+"\n", args...)
}

// engine is the coordinator's traversal state. It walks directories
// breadth-first, offloading subtrees to the pool when a worker is free and
// retaining the rest as arena handles for later local depth-first
// processing.
//
// pathBuf and scratch are owned exclusively by the coordinator; a worker
// only ever sees pathBuf through the one-shot job handoff.
type engine struct {
	log     logger
	arena   arena
	pool    dispatcher
	pending []handle
	pathBuf []byte
	scratch []byte
	local   int64
	total   atomic.Int64
	counts  counters
}

// startProgressReporter invokes hook(files, bytes) on each tick until ctx is
// done.
func startProgressReporter(ctx context.Context, c *counters, hook func(int64, int64), interval time.Duration) {
	if hook == nil {
		return
	}

	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				hook(c.files.Load(), c.bytes.Load())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Run scans the subtree at opt.Path and returns the total byte size of its
// regular files plus a fixed overhead unit per directory.
//
// The root is resolved to an absolute, symlink-free path before the scan
// starts. Progress updates are sent to progressHook if provided; ctx bounds
// only the progress reporter — the scan itself always runs to completion or
// failure.
func Run(ctx context.Context, opt Options, progressHook func(int64, int64)) (*Stats, error) {
	log := logger{debug: opt.Debug, out: os.Stderr}

	if opt.Path == "" {
		opt.Path = "."
	}

	root, err := filepath.Abs(opt.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing path %q: %w", opt.Path, err)
	}

	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("accessing path %q: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %q is not a directory", root)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if threads < 1 {
		threads = 1
	}

	log.debugf("scanning %s with %d workers", root, threads)

	eng := &engine{
		log:     log,
		pending: make([]handle, 0, pendingCapacity),
		pathBuf: make([]byte, 0, pathBufSize),
		scratch: make([]byte, pathBufSize),
	}
	eng.pool = newPool(threads, eng.scanSubtree, log)

	// Child context so the progress reporter stops with the scan.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startProgressReporter(ctx, &eng.counts, progressHook, opt.ProgressInterval)

	start := time.Now()

	walkErr := eng.walk(root)

	// The local subtotal joins the accumulator before the pool does; the
	// join is the synchronization point that makes every worker's add
	// visible.
	eng.total.Add(eng.local)
	eng.pool.join()

	if walkErr != nil {
		return nil, walkErr
	}

	return &Stats{
		TotalBytes:   eng.total.Load(),
		FileCount:    eng.counts.files.Load(),
		DirCount:     eng.counts.dirs.Load(),
		SkippedFiles: eng.counts.skipped.Load(),
		Elapsed:      time.Since(start),
	}, nil
}

// walk drives the hybrid traversal: breadth-first discovery of the current
// directory, then depth-first among locally retained directories, most
// recent first.
func (e *engine) walk(root string) error {
	current, err := e.arena.addNode(rootHandle, []byte(root))
	if err != nil {
		return fmt.Errorf("recording root %q: %w", root, err)
	}

	e.pathBuf = append(e.pathBuf[:0], root...)

	// One overhead unit for the scan root itself.
	e.local += dirOverhead
	e.counts.record(0, 1, dirOverhead)

	for {
		if err := e.scanDir(current); err != nil {
			return err
		}

		if len(e.pending) == 0 {
			return nil
		}

		current = e.pending[len(e.pending)-1]
		e.pending = e.pending[:len(e.pending)-1]

		path, err := e.arena.fullPathFromHandle(current, e.scratch)
		if err != nil {
			return fmt.Errorf("reconstructing pending path: %w", err)
		}

		e.pathBuf = append(e.pathBuf[:0], path...)
	}
}

// scanDir iterates one directory's entries. Files are stat'd and summed;
// subdirectories are offloaded to the pool when a worker is free, otherwise
// recorded as arena handles on the pending list. The path buffer always
// holds the directory's path in its first dirLen bytes and is re-truncated
// for every entry.
func (e *engine) scanDir(parent handle) error {
	dirLen := len(e.pathBuf)

	iter, err := openIter(string(e.pathBuf))
	if err != nil {
		return fmt.Errorf("opening directory %q: %w", e.pathBuf, err)
	}

	defer func() { _ = iter.close() }()

	for {
		entry, err := iter.nextEntry()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading directory %q: %w", e.pathBuf[:dirLen], err)
		}

		e.pathBuf = appendEntry(e.pathBuf[:dirLen], entry.Name())

		switch {
		case entry.Type().IsRegular():
			info, err := statEntry(entry)
			if err != nil {
				// Lenient on the coordinator path: log and move
				// on, unlike a worker.
				e.log.warnf("skipping %q: %v", e.pathBuf, err)
				e.counts.skipped.Add(1)

				continue
			}

			e.local += info.Size()
			e.counts.record(1, 0, info.Size())
		case entry.IsDir():
			e.local += dirOverhead
			e.counts.record(0, 1, dirOverhead)

			if err := e.dispatchDir(parent, entry.Name()); err != nil {
				return err
			}
		default:
			// Symlinks and special files are ignored.
		}
	}
}

// dispatchDir decides a discovered subdirectory's fate: offload to a free
// worker, or retain its handle for local processing. The free-worker check
// is advisory, so a full queue falls back to the local path rather than
// failing.
func (e *engine) dispatchDir(parent handle, name string) error {
	if e.pool.freeWorkers() > 0 {
		j := &job{path: e.pathBuf, done: make(chan struct{})}

		if err := e.pool.submit(j); err == nil {
			e.log.debugf("offloaded %s", e.pathBuf)

			// The job borrows pathBuf; wait until the worker has
			// copied it out before the buffer is mutated again.
			<-j.done

			return nil
		}
	}

	if len(e.pending) == pendingCapacity {
		return fmt.Errorf("pending directory list full at %q: %w", e.pathBuf, ErrOutOfSpace)
	}

	child, err := e.arena.addNode(parent, []byte(name))
	if err != nil {
		return fmt.Errorf("recording pending directory %q: %w", e.pathBuf, err)
	}

	e.log.debugf("retained %s", e.pathBuf)
	e.pending = append(e.pending, child)

	return nil
}
