// Package mvs holds the shared domain types for the multi-view-stereo
// depth refinement pipeline: view identifiers, tiles, pixel regions and
// the per-pixel depth/similarity and normal records exchanged between
// the camera registry, the refinement engine and the exporters.
//
// The package is deliberately free of I/O and heavy dependencies so the
// layer packages (grid, camera, refine, kernel, export) can all import
// it without cycles.
package mvs
