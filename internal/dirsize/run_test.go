package dirsize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/charlievieth/fastwalk"
)

// stubDispatcher reports no free workers, forcing every discovered directory
// onto the coordinator's local pending path.
type stubDispatcher struct{}

func (stubDispatcher) submit(*job) error { return errQueueFull }
func (stubDispatcher) freeWorkers() int  { return 0 }
func (stubDispatcher) join()             {}

func newTestEngine() *engine {
	e := &engine{
		log:     logger{out: io.Discard},
		pending: make([]handle, 0, pendingCapacity),
		pathBuf: make([]byte, 0, pathBufSize),
		scratch: make([]byte, pathBufSize),
	}
	e.pool = stubDispatcher{}

	return e
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()

	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()

	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// buildTree creates a deterministic tree with a few levels of nesting and
// returns the expected total: file sizes plus one overhead unit per
// directory, the root included.
func buildTree(t *testing.T) (root string, want int64) {
	t.Helper()

	root = t.TempDir()
	want = dirOverhead

	for i := 0; i < 6; i++ {
		top := filepath.Join(root, fmt.Sprintf("top-%d", i))
		mkdir(t, top)
		want += dirOverhead

		dir := top
		for j := 0; j < 3; j++ {
			dir = filepath.Join(dir, fmt.Sprintf("nested-%d", j))
			mkdir(t, dir)
			want += dirOverhead

			for k := 0; k < 4; k++ {
				size := (i*37 + j*11 + k*5) % 1500
				writeFile(t, filepath.Join(dir, fmt.Sprintf("file-%d", k)), size)
				want += int64(size)
			}
		}
	}

	return root, want
}

func TestRunConcreteScenario(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a"), 100)
	writeFile(t, filepath.Join(root, "b"), 250)
	mkdir(t, filepath.Join(root, "sub"))
	writeFile(t, filepath.Join(root, "sub", "c"), 50)

	stats, err := Run(context.Background(), Options{Path: root, Threads: 4}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := int64(100 + 250 + 50 + 2*dirOverhead)
	if stats.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, want)
	}

	if stats.FileCount != 3 {
		t.Errorf("FileCount = %d, want 3", stats.FileCount)
	}

	if stats.DirCount != 2 {
		t.Errorf("DirCount = %d, want 2", stats.DirCount)
	}
}

// The offload-versus-local decision must never change the final total.
func TestRunThreadCountInvariance(t *testing.T) {
	root, want := buildTree(t)

	for _, threads := range []int{1, 8} {
		stats, err := Run(context.Background(), Options{Path: root, Threads: threads}, nil)
		if err != nil {
			t.Fatalf("Run(threads=%d): %v", threads, err)
		}

		if stats.TotalBytes != want {
			t.Errorf("Run(threads=%d): TotalBytes = %d, want %d", threads, stats.TotalBytes, want)
		}
	}
}

// Cross-check the engine against an independent walker.
func TestRunMatchesFastwalk(t *testing.T) {
	root, _ := buildTree(t)

	var fileBytes, dirs atomic.Int64

	conf := &fastwalk.Config{Follow: false}

	err := fastwalk.Walk(conf, root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			dirs.Add(1)

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		fileBytes.Add(info.Size())

		return nil
	})
	if err != nil {
		t.Fatalf("fastwalk: %v", err)
	}

	want := fileBytes.Load() + dirs.Load()*dirOverhead

	stats, err := Run(context.Background(), Options{Path: root, Threads: 4}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d (fastwalk cross-check)", stats.TotalBytes, want)
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	stats, err := Run(context.Background(), Options{Path: t.TempDir(), Threads: 1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalBytes != dirOverhead {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, dirOverhead)
	}

	if stats.FileCount != 0 || stats.DirCount != 1 {
		t.Errorf("FileCount = %d, DirCount = %d, want 0 and 1", stats.FileCount, stats.DirCount)
	}
}

func TestRunIgnoresSymlinksAndSpecialFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevation on windows")
	}

	root := t.TempDir()

	writeFile(t, filepath.Join(root, "real"), 100)

	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	stats, err := Run(context.Background(), Options{Path: root, Threads: 1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := int64(100 + dirOverhead)
	if stats.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, want)
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("nonexistent path", func(t *testing.T) {
		if _, err := Run(context.Background(), Options{Path: filepath.Join(t.TempDir(), "missing")}, nil); err == nil {
			t.Error("Run on missing path succeeded")
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "f"), 1)

		if _, err := Run(context.Background(), Options{Path: filepath.Join(root, "f")}, nil); err == nil {
			t.Error("Run on a regular file succeeded")
		}
	})
}

// With no workers available, more sibling directories than the pending list
// can hold must surface ErrOutOfSpace rather than silently truncating.
func TestPendingListOverflow(t *testing.T) {
	root := t.TempDir()

	for i := 0; i < pendingCapacity+88; i++ {
		mkdir(t, filepath.Join(root, fmt.Sprintf("dir-%04d", i)))
	}

	eng := newTestEngine()

	if err := eng.walk(root); !errors.Is(err, ErrOutOfSpace) {
		t.Errorf("walk: err = %v, want ErrOutOfSpace", err)
	}
}

// Depth-first among locally retained directories: the engine with no pool
// still visits everything exactly once.
func TestLocalWalkMatchesExpected(t *testing.T) {
	root, want := buildTree(t)

	eng := newTestEngine()

	if err := eng.walk(root); err != nil {
		t.Fatalf("walk: %v", err)
	}

	eng.total.Add(eng.local)

	if got := eng.total.Load(); got != want {
		t.Errorf("total = %d, want %d", got, want)
	}
}

// A stat failure on a coordinator-visited file is logged and skipped; the
// scan still succeeds.
func TestCoordinatorStatFailureSkipped(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "good"), 100)
	writeFile(t, filepath.Join(root, "bad"), 50)

	orig := statEntry
	statEntry = func(entry fs.DirEntry) (fs.FileInfo, error) {
		if entry.Name() == "bad" {
			return nil, errors.New("vanished")
		}

		return entry.Info()
	}

	t.Cleanup(func() { statEntry = orig })

	stats, err := Run(context.Background(), Options{Path: root, Threads: 1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := int64(100 + dirOverhead)
	if stats.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, want)
	}

	if stats.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1", stats.SkippedFiles)
	}
}

// The same failure inside a worker's subtree aborts that job and discards
// its partial subtotal.
func TestWorkerStatFailureAbortsJob(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "good"), 100)
	writeFile(t, filepath.Join(root, "bad"), 50)

	orig := statEntry
	statEntry = func(entry fs.DirEntry) (fs.FileInfo, error) {
		if entry.Name() == "bad" {
			return nil, errors.New("vanished")
		}

		return entry.Info()
	}

	t.Cleanup(func() { statEntry = orig })

	eng := newTestEngine()

	if err := eng.scanSubtree(root); err == nil {
		t.Fatal("scanSubtree succeeded despite stat failure")
	}

	if got := eng.total.Load(); got != 0 {
		t.Errorf("total = %d after aborted job, want 0", got)
	}
}
