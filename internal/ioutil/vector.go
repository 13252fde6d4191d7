package ioutil

import (
	"unsafe"

	"github.com/yamrom/smash-paper/internal/xerrors"
)

// Uint is the integer-width constraint for index arrays (SA/ISA). The
// original C++ source picks one width at startup by re-executing a wider
// binary (spec.md §9); here the same choice is made at compile time via
// ordinary Go generics instantiation, so both widths are monomorphized into
// a single binary with no runtime dispatch cost.
type Uint interface {
	~uint32 | ~uint64
}

// Vector is a typed append-vector over elements of T, implementing the two
// disjoint lifecycles of spec.md §4.A: Build owns a growable heap buffer;
// Load owns a memory-mapped read-only file. The zero value is not usable;
// construct with NewBuildVector or LoadVector.
type Vector[T Uint] struct {
	buf     []T     // heap-owned, Build mode only
	mapping *Mapping // mmap-owned, Load mode only
	mapped  []T     // mapping.data reinterpreted as []T, Load mode only
}

// NewBuildVector creates a Vector in Build mode with the given initial
// capacity.
func NewBuildVector[T Uint](capacity int) *Vector[T] {
	return &Vector[T]{buf: make([]T, 0, capacity)}
}

// Push appends one element, doubling capacity as needed. Panics if called
// on a Vector in Load mode, since that mode is documented read-only.
func (v *Vector[T]) Push(x T) {
	if v.mapping != nil {
		panic("ioutil: Push on a mapped (read-only) Vector")
	}
	v.buf = append(v.buf, x)
}

// Set assigns buf[i] = x, growing buf to include index i if necessary. Used
// by builders (LCP, ISA) that fill by index rather than strictly appending.
func (v *Vector[T]) Set(i int, x T) {
	if v.mapping != nil {
		panic("ioutil: Set on a mapped (read-only) Vector")
	}
	for len(v.buf) <= i {
		v.buf = append(v.buf, 0)
	}
	v.buf[i] = x
}

// Resize grows (or truncates) the heap buffer to exactly n elements.
func (v *Vector[T]) Resize(n int) {
	if v.mapping != nil {
		panic("ioutil: Resize on a mapped (read-only) Vector")
	}
	if cap(v.buf) < n {
		nb := make([]T, n)
		copy(nb, v.buf)
		v.buf = nb
		return
	}
	v.buf = v.buf[:n]
}

// Len returns the number of elements, whichever mode the Vector is in.
func (v *Vector[T]) Len() int {
	if v.mapping != nil {
		return len(v.mapped)
	}
	return len(v.buf)
}

// At returns the element at index i.
func (v *Vector[T]) At(i int) T {
	if v.mapping != nil {
		return v.mapped[i]
	}
	return v.buf[i]
}

// Slice returns the live backing slice for read access, regardless of mode.
func (v *Vector[T]) Slice() []T {
	if v.mapping != nil {
		return v.mapped
	}
	return v.buf
}

// Save writes exactly Len() elements to path as raw little-endian-native
// binary (the host's native layout — the persisted cache is not intended to
// be portable across architectures, matching the original's raw fwrite of
// in-memory arrays).
func (v *Vector[T]) Save(path string) error {
	if v.mapping != nil {
		panic("ioutil: Save on a mapped (read-only) Vector")
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	n := len(v.buf)
	if n == 0 {
		return WriteFile(path, nil)
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&v.buf[0])), n*elemSize)
	return WriteFile(path, b)
}

// LoadVector maps path read-only and reinterprets its bytes as a []T.
func LoadVector[T Uint](path string, readAhead bool) (*Vector[T], error) {
	m, err := Map(path, readAhead)
	if err != nil {
		return nil, err
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	data := m.Bytes()
	if len(data)%elemSize != 0 {
		m.Close()
		return nil, xerrors.E(xerrors.ParseError, "load vector", path, "size not a multiple of element size")
	}
	n := len(data) / elemSize
	var mapped []T
	if n > 0 {
		mapped = unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
	}
	return &Vector[T]{mapping: m, mapped: mapped}, nil
}

// Close releases whichever resource the Vector acquired. Safe on both modes.
func (v *Vector[T]) Close() error {
	if v.mapping != nil {
		return v.mapping.Close()
	}
	v.buf = nil
	return nil
}
