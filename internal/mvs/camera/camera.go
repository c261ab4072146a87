package camera

import (
	"fmt"
	"math"

	"github.com/banshee-data/depth.refine/internal/mvs"
)

// Point3 is a 3D point or vector in world coordinates.
type Point3 struct {
	X, Y, Z float64
}

// Add returns p + q.
func (p Point3) Add(q Point3) Point3 { return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }

// Sub returns p - q.
func (p Point3) Sub(q Point3) Point3 { return Point3{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

// Scale returns p scaled by s.
func (p Point3) Scale(s float64) Point3 { return Point3{p.X * s, p.Y * s, p.Z * s} }

// Norm returns the Euclidean length of p.
func (p Point3) Norm() float64 { return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z) }

// Normalize returns p scaled to unit length; the zero vector is returned
// unchanged.
func (p Point3) Normalize() Point3 {
	n := p.Norm()
	if n == 0 {
		return p
	}
	return p.Scale(1 / n)
}

// Point2 is a 2D point in image coordinates ((0,0) is top-left).
type Point2 struct {
	X, Y float64
}

// Intrinsics is a pinhole model with per-axis focal scale and a principal
// point offset from the image center.
type Intrinsics struct {
	Width   int
	Height  int
	ScaleX  float64 // focal length in pixels, x axis
	ScaleY  float64 // focal length in pixels, y axis
	OffsetX float64 // principal point offset from image center, x
	OffsetY float64 // principal point offset from image center, y
}

// Validate checks the intrinsics for degenerate values.
func (in Intrinsics) Validate() error {
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("camera: invalid image dimensions %dx%d", in.Width, in.Height)
	}
	if in.ScaleX <= 0 || in.ScaleY <= 0 {
		return fmt.Errorf("camera: invalid focal scale (%g, %g)", in.ScaleX, in.ScaleY)
	}
	return nil
}

// PrincipalPoint returns the principal point in image coordinates.
func (in Intrinsics) PrincipalPoint() Point2 {
	return Point2{
		X: in.OffsetX + float64(in.Width)*0.5,
		Y: in.OffsetY + float64(in.Height)*0.5,
	}
}

// Downscaled returns the intrinsics of the same view at 1/scale resolution.
func (in Intrinsics) Downscaled(scale int) Intrinsics {
	s := float64(scale)
	return Intrinsics{
		Width:   mvs.DivideRoundUp(in.Width, scale),
		Height:  mvs.DivideRoundUp(in.Height, scale),
		ScaleX:  in.ScaleX / s,
		ScaleY:  in.ScaleY / s,
		OffsetX: in.OffsetX / s,
		OffsetY: in.OffsetY / s,
	}
}

// Pose is a rigid world-to-camera transform: x_cam = R*X + T.
// R is 3x3 row-major.
type Pose struct {
	R [9]float64
	T [3]float64
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{R: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// Apply transforms a world point into camera coordinates.
func (p Pose) Apply(pt Point3) Point3 {
	return Point3{
		X: p.R[0]*pt.X + p.R[1]*pt.Y + p.R[2]*pt.Z + p.T[0],
		Y: p.R[3]*pt.X + p.R[4]*pt.Y + p.R[5]*pt.Z + p.T[1],
		Z: p.R[6]*pt.X + p.R[7]*pt.Y + p.R[8]*pt.Z + p.T[2],
	}
}

// ApplyInverse transforms a camera-space point back to world coordinates.
func (p Pose) ApplyInverse(pt Point3) Point3 {
	x := pt.X - p.T[0]
	y := pt.Y - p.T[1]
	z := pt.Z - p.T[2]
	// R is orthonormal, so the inverse rotation is the transpose.
	return Point3{
		X: p.R[0]*x + p.R[3]*y + p.R[6]*z,
		Y: p.R[1]*x + p.R[4]*y + p.R[7]*z,
		Z: p.R[2]*x + p.R[5]*y + p.R[8]*z,
	}
}

// Center returns the camera center in world coordinates.
func (p Pose) Center() Point3 {
	return p.ApplyInverse(Point3{})
}

// Camera is a read-only handle to one view at one pyramid scale.
type Camera struct {
	ViewID mvs.ViewID
	Scale  int
	Intr   Intrinsics
	Pose   Pose
	Img    *Image
}

// Project maps a world point into this camera's image. It returns the
// pixel position and the z-depth; ok is false when the point is behind
// the camera.
func (c *Camera) Project(pt Point3) (px Point2, depth float64, ok bool) {
	cam := c.Pose.Apply(pt)
	if cam.Z <= 0 {
		return Point2{}, cam.Z, false
	}
	pp := c.Intr.PrincipalPoint()
	return Point2{
		X: pp.X + c.Intr.ScaleX*cam.X/cam.Z,
		Y: pp.Y + c.Intr.ScaleY*cam.Y/cam.Z,
	}, cam.Z, true
}

// BackProject maps a pixel with a z-depth back to a world point.
func (c *Camera) BackProject(px Point2, depth float64) Point3 {
	pp := c.Intr.PrincipalPoint()
	cam := Point3{
		X: (px.X - pp.X) / c.Intr.ScaleX * depth,
		Y: (px.Y - pp.Y) / c.Intr.ScaleY * depth,
		Z: depth,
	}
	return c.Pose.ApplyInverse(cam)
}

// PixSize returns the metric footprint of one pixel at the given world
// point: the 3D distance covered by a one-pixel step at that depth.
func (c *Camera) PixSize(pt Point3) float64 {
	cam := c.Pose.Apply(pt)
	if cam.Z <= 0 {
		return 0
	}
	return cam.Z / c.Intr.ScaleX
}

// InImage reports whether px lies inside the image with the given margin.
func (c *Camera) InImage(px Point2, margin int) bool {
	m := float64(margin)
	return px.X >= m && px.Y >= m &&
		px.X < float64(c.Intr.Width)-m && px.Y < float64(c.Intr.Height)-m
}
