package dirsize

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

const (
	// dirOverhead is the fixed size attributed to every discovered
	// directory, independent of its on-disk metadata size.
	dirOverhead = 4096

	// readBatch is how many entries a directory iterator yields per
	// ReadDir call.
	readBatch = 128

	// maxStackDepth bounds a worker's depth-first descent.
	maxStackDepth = 256

	// pathBufSize is the initial capacity of per-thread path buffers and
	// the fixed size of reconstruction buffers.
	pathBufSize = 4096
)

// statEntry resolves a directory entry to its metadata. A package-level
// variable so tests can inject stat failures.
//
//nolint:gochecknoglobals // Test hook
var statEntry = func(entry fs.DirEntry) (fs.FileInfo, error) {
	return entry.Info()
}

// dirIter yields a directory's entries in batches. Symlinks are never
// followed: entry types come from the directory entry itself.
type dirIter struct {
	f     *os.File
	batch []fs.DirEntry
	next  int
}

func openIter(path string) (*dirIter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &dirIter{f: f}, nil
}

// nextEntry returns the next directory entry, or io.EOF when exhausted.
func (it *dirIter) nextEntry() (fs.DirEntry, error) {
	if it.next >= len(it.batch) {
		batch, err := it.f.ReadDir(readBatch)
		if err != nil {
			return nil, err
		}

		it.batch = batch
		it.next = 0
	}

	entry := it.batch[it.next]
	it.next++

	return entry, nil
}

func (it *dirIter) close() error {
	return it.f.Close()
}

// appendEntry extends a directory path with one entry name, inserting a
// separator unless the path already ends with one (a root of "/").
func appendEntry(buf []byte, name string) []byte {
	if len(buf) == 0 || buf[len(buf)-1] != os.PathSeparator {
		buf = append(buf, os.PathSeparator)
	}

	return append(buf, name...)
}

// stackFrame is one level of a worker's depth-first descent: an open
// iterator plus the path-buffer length of its directory. Frames are owned
// exclusively by the worker that pushed them.
type stackFrame struct {
	iter    *dirIter
	pathLen int
}

// closeFrames closes every iterator still open on an abandoned stack.
func closeFrames(stack []stackFrame) {
	for i := range stack {
		_ = stack[i].iter.close()
	}
}

// scanSubtree is the per-job worker scan. It walks the subtree rooted at
// path fully depth-first on an explicit stack, sums regular-file sizes plus
// one overhead unit per subdirectory discovered inside the subtree, and adds
// the subtotal to the shared accumulator. The overhead for path itself was
// already accounted by the coordinator that discovered it.
//
// Unlike the coordinator, a worker treats any stat or open failure as fatal
// for its job: the partial subtotal is discarded and the error propagates to
// the pool.
func (e *engine) scanSubtree(path string) error {
	iter, err := openIter(path)
	if err != nil {
		return fmt.Errorf("opening subtree %q: %w", path, err)
	}

	pathBuf := make([]byte, 0, pathBufSize)
	pathBuf = append(pathBuf, path...)

	stack := make([]stackFrame, 0, maxStackDepth)
	stack = append(stack, stackFrame{iter: iter, pathLen: len(pathBuf)})

	var total int64

	for len(stack) > 0 {
		frame := stack[len(stack)-1]

		entry, err := frame.iter.nextEntry()
		if errors.Is(err, io.EOF) {
			_ = frame.iter.close()
			stack = stack[:len(stack)-1]

			continue
		}

		if err != nil {
			closeFrames(stack)

			return fmt.Errorf("reading directory %q: %w", pathBuf[:frame.pathLen], err)
		}

		pathBuf = appendEntry(pathBuf[:frame.pathLen], entry.Name())

		switch {
		case entry.Type().IsRegular():
			info, err := statEntry(entry)
			if err != nil {
				closeFrames(stack)

				return fmt.Errorf("stat %q: %w", pathBuf, err)
			}

			total += info.Size()
			e.counts.record(1, 0, info.Size())
		case entry.IsDir():
			total += dirOverhead
			e.counts.record(0, 1, dirOverhead)

			if len(stack) == maxStackDepth {
				closeFrames(stack)

				return fmt.Errorf("directory stack full at %q: %w", pathBuf, ErrOutOfSpace)
			}

			child, err := openIter(string(pathBuf))
			if err != nil {
				closeFrames(stack)

				return fmt.Errorf("opening directory %q: %w", pathBuf, err)
			}

			stack = append(stack, stackFrame{iter: child, pathLen: len(pathBuf)})
		default:
			// Symlinks and special files are ignored.
		}
	}

	e.total.Add(total)

	return nil
}
