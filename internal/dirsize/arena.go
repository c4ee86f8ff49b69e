package dirsize

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
)

// ErrOutOfSpace is returned when a fixed-capacity resource is exhausted: the
// arena's heap limit, the pending-directory list, or a reconstruction buffer.
var ErrOutOfSpace = errors.New("out of space")

const (
	// maxHeaps bounds the arena. Each heap is one page, so a full arena
	// holds roughly half a megabyte of path segments.
	maxHeaps = 128

	// heapSize is the capacity of a single heap. Offsets are uint16, so
	// this must stay below 64KiB.
	heapSize = 4096

	// Entry header: segment length, own heap id, parent offset, parent
	// heap id, each a uint16.
	headerSize  = 8
	headerAlign = 2
)

// handle identifies a path segment stored in the arena. It is a location, not
// a pointer: heaps are only ever added, never reallocated in place, so a
// handle stays valid for the arena's whole lifetime.
type handle struct {
	offset uint16
	heap   uint16
}

// rootHandle is the sentinel parent marking the scan root.
//
//nolint:gochecknoglobals // Sentinel value
var rootHandle = handle{offset: math.MaxUint16, heap: math.MaxUint16}

// arena stores directory path segments with parent links in a growable list
// of append-only heaps. Entries are written once and never freed
// individually; the whole arena is dropped when the scan completes.
//
// The arena is owned by the coordinator and needs no locking: workers never
// touch it.
type arena struct {
	heaps [][]byte
}

// pad rounds n up to the header alignment.
func pad(n int) int {
	return (n + headerAlign - 1) &^ (headerAlign - 1)
}

// addNode appends segment as a child of parent and returns its handle. Use
// rootHandle as the parent for the scan root, whose segment is the absolute
// root path itself.
func (a *arena) addNode(parent handle, segment []byte) (handle, error) {
	need := headerSize + pad(len(segment))
	if need > heapSize {
		return handle{}, ErrOutOfSpace
	}

	if len(a.heaps) == 0 || heapSize-len(a.heaps[len(a.heaps)-1]) < need {
		if len(a.heaps) == maxHeaps {
			return handle{}, ErrOutOfSpace
		}

		a.heaps = append(a.heaps, make([]byte, 0, heapSize))
	}

	id := len(a.heaps) - 1
	heap := a.heaps[id]
	offset := len(heap)

	var header [headerSize]byte

	binary.LittleEndian.PutUint16(header[0:], uint16(len(segment))) //nolint:gosec // Bounded by heapSize
	binary.LittleEndian.PutUint16(header[2:], uint16(id))           //nolint:gosec // Bounded by maxHeaps
	binary.LittleEndian.PutUint16(header[4:], parent.offset)
	binary.LittleEndian.PutUint16(header[6:], parent.heap)

	heap = append(heap, header[:]...)
	heap = append(heap, segment...)

	// Pad so the next header stays aligned; padding is not part of the
	// stored length.
	for len(heap)%headerAlign != 0 {
		heap = append(heap, 0)
	}

	a.heaps[id] = heap

	return handle{offset: uint16(offset), heap: uint16(id)}, nil //nolint:gosec // Bounded above
}

// entryAt decodes the entry behind h, returning its segment bytes and parent
// handle. The segment slice aliases the heap and must not be retained across
// arena teardown.
func (a *arena) entryAt(h handle) (segment []byte, parent handle) {
	heap := a.heaps[h.heap]
	length := int(binary.LittleEndian.Uint16(heap[h.offset:]))
	parent = handle{
		offset: binary.LittleEndian.Uint16(heap[h.offset+4:]),
		heap:   binary.LittleEndian.Uint16(heap[h.offset+6:]),
	}
	start := int(h.offset) + headerSize

	return heap[start : start+length], parent
}

// reconstruct writes the full path for h into buf so that it ends at index
// tail, walking the parent chain and writing segments right to left. It
// returns the start index of the written path.
func (a *arena) reconstruct(h handle, buf []byte, tail int) (int, error) {
	pos := tail

	for {
		segment, parent := a.entryAt(h)

		pos -= len(segment)
		if pos < 0 {
			return 0, ErrOutOfSpace
		}

		copy(buf[pos:], segment)

		if parent == rootHandle {
			return pos, nil
		}

		// Separator between parent and child, unless the parent
		// segment already ends with one (a root of "/").
		parentSegment, _ := a.entryAt(parent)
		if len(parentSegment) == 0 || parentSegment[len(parentSegment)-1] != os.PathSeparator {
			pos--
			if pos < 0 {
				return 0, ErrOutOfSpace
			}

			buf[pos] = os.PathSeparator
		}

		h = parent
	}
}

// fullPathFromHandle reconstructs the absolute directory path for h into the
// tail of buf and returns the occupied sub-slice. The total length is unknown
// until the parent chain has been walked, which is why segments are written
// backward from the end of buf.
func (a *arena) fullPathFromHandle(h handle, buf []byte) ([]byte, error) {
	start, err := a.reconstruct(h, buf, len(buf))
	if err != nil {
		return nil, err
	}

	return buf[start:], nil
}

// fullFilePathFromHandle reconstructs the path for h with filename appended
// after a separator, into the tail of buf.
func (a *arena) fullFilePathFromHandle(h handle, filename []byte, buf []byte) ([]byte, error) {
	tail := len(buf) - len(filename)
	if tail < 0 {
		return nil, ErrOutOfSpace
	}

	copy(buf[tail:], filename)

	segment, _ := a.entryAt(h)
	if len(segment) == 0 || segment[len(segment)-1] != os.PathSeparator {
		tail--
		if tail < 0 {
			return nil, ErrOutOfSpace
		}

		buf[tail] = os.PathSeparator
	}

	start, err := a.reconstruct(h, buf, tail)
	if err != nil {
		return nil, err
	}

	return buf[start:], nil
}
