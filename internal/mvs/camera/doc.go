// Package camera provides the pinhole camera model and the per-scale
// camera registry used by the depth refinement engine.
//
// A Camera bundles scaled intrinsics, a rigid world-to-camera pose and a
// grayscale image at the matching pyramid level. Cameras are built once
// per (view id, scale) pair and cached in a Registry that is safe for
// concurrent lookups; callers treat the returned handles as read-only.
package camera
