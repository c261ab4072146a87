// Package grid provides the dense 2D and 3D buffers used by the depth
// refinement engine.
//
// The buffers model device-style memory: rows are padded to an alignment
// boundary, so every buffer reports both a physical (padded) and a logical
// (unpadded) byte footprint. Buffers are allocated once, at worst-case
// size, and later calls address only a leading sub-region; there is no
// per-tile reallocation.
package grid
