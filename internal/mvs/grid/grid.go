package grid

import (
	"fmt"
	"unsafe"
)

// rowAlign is the pitch alignment in elements. Rows are padded so their
// start offsets hit this boundary, mirroring device pitched allocations.
const rowAlign = 32

// alignUp rounds n up to the next multiple of rowAlign.
func alignUp(n int) int {
	return (n + rowAlign - 1) / rowAlign * rowAlign
}

// Map2 is a dense 2D buffer of T with a padded row pitch.
type Map2[T any] struct {
	width  int
	height int
	pitch  int // row length in elements, >= width
	data   []T
}

// NewMap2 allocates a width x height buffer. Dimensions must be positive.
func NewMap2[T any](width, height int) (*Map2[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid: invalid map dimensions %dx%d", width, height)
	}
	pitch := alignUp(width)
	return &Map2[T]{
		width:  width,
		height: height,
		pitch:  pitch,
		data:   make([]T, pitch*height),
	}, nil
}

// Width returns the logical width in elements.
func (m *Map2[T]) Width() int { return m.width }

// Height returns the logical height in elements.
func (m *Map2[T]) Height() int { return m.height }

// At returns the element at (x, y).
func (m *Map2[T]) At(x, y int) T { return m.data[y*m.pitch+x] }

// Set stores v at (x, y).
func (m *Map2[T]) Set(x, y int, v T) { m.data[y*m.pitch+x] = v }

// Row returns the logical (unpadded) row y as a slice aliasing the buffer.
func (m *Map2[T]) Row(y int) []T {
	off := y * m.pitch
	return m.data[off : off+m.width : off+m.width]
}

// Fill sets every element, padding included, to v.
func (m *Map2[T]) Fill(v T) {
	for i := range m.data {
		m.data[i] = v
	}
}

// CopyFrom copies the full logical contents of src. Both buffers must
// have identical logical dimensions.
func (m *Map2[T]) CopyFrom(src *Map2[T]) error {
	if src.width != m.width || src.height != m.height {
		return fmt.Errorf("grid: copy dimension mismatch %dx%d -> %dx%d",
			src.width, src.height, m.width, m.height)
	}
	for y := 0; y < m.height; y++ {
		copy(m.Row(y), src.Row(y))
	}
	return nil
}

// BytesPadded returns the physical footprint including row padding.
func (m *Map2[T]) BytesPadded() uint64 {
	var t T
	return uint64(m.pitch) * uint64(m.height) * uint64(unsafe.Sizeof(t))
}

// BytesUnpadded returns the logical footprint without row padding.
func (m *Map2[T]) BytesUnpadded() uint64 {
	var t T
	return uint64(m.width) * uint64(m.height) * uint64(unsafe.Sizeof(t))
}

// Vol3 is a dense 3D buffer of T, laid out as depth-major slabs of
// padded rows: index = (z*height + y)*pitch + x.
type Vol3[T any] struct {
	width  int
	height int
	depths int
	pitch  int
	data   []T
}

// NewVol3 allocates a width x height x depths volume. Dimensions must be
// positive.
func NewVol3[T any](width, height, depths int) (*Vol3[T], error) {
	if width <= 0 || height <= 0 || depths <= 0 {
		return nil, fmt.Errorf("grid: invalid volume dimensions %dx%dx%d", width, height, depths)
	}
	pitch := alignUp(width)
	return &Vol3[T]{
		width:  width,
		height: height,
		depths: depths,
		pitch:  pitch,
		data:   make([]T, pitch*height*depths),
	}, nil
}

// Width returns the logical width in elements.
func (v *Vol3[T]) Width() int { return v.width }

// Height returns the logical height in elements.
func (v *Vol3[T]) Height() int { return v.height }

// Depths returns the depth extent in elements.
func (v *Vol3[T]) Depths() int { return v.depths }

// At returns the element at (x, y, z).
func (v *Vol3[T]) At(x, y, z int) T { return v.data[(z*v.height+y)*v.pitch+x] }

// Set stores val at (x, y, z).
func (v *Vol3[T]) Set(x, y, z int, val T) { v.data[(z*v.height+y)*v.pitch+x] = val }

// Add accumulates val into the element at (x, y, z) for numeric T.
// Accumulation never overwrites: repeated calls sum their contributions.
func Add[T Number](v *Vol3[T], x, y, z int, val T) {
	v.data[(z*v.height+y)*v.pitch+x] += val
}

// Number constrains volume accumulation to additive element types.
type Number interface {
	~float32 | ~float64 | ~int | ~int32 | ~int64
}

// DepthSlice copies the depth axis at (x, y) into dst, which must have
// length >= Depths(). It returns dst[:Depths()].
func (v *Vol3[T]) DepthSlice(x, y int, dst []T) []T {
	dst = dst[:v.depths]
	for z := 0; z < v.depths; z++ {
		dst[z] = v.data[(z*v.height+y)*v.pitch+x]
	}
	return dst
}

// Fill sets every element, padding included, to val.
func (v *Vol3[T]) Fill(val T) {
	for i := range v.data {
		v.data[i] = val
	}
}

// BytesPadded returns the physical footprint including row padding.
func (v *Vol3[T]) BytesPadded() uint64 {
	var t T
	return uint64(v.pitch) * uint64(v.height) * uint64(v.depths) * uint64(unsafe.Sizeof(t))
}

// BytesUnpadded returns the logical footprint without row padding.
func (v *Vol3[T]) BytesUnpadded() uint64 {
	var t T
	return uint64(v.width) * uint64(v.height) * uint64(v.depths) * uint64(unsafe.Sizeof(t))
}
