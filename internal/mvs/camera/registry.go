package camera

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/banshee-data/depth.refine/internal/mvs"
)

// cameraKey identifies one cached camera handle.
type cameraKey struct {
	view  mvs.ViewID
	scale int
}

// sourceView holds the full-resolution description a camera is built from.
type sourceView struct {
	intr Intrinsics
	pose Pose
	img  image.Image
}

// Registry resolves (view id, scale) to a read-only camera handle. It
// builds pyramid levels lazily and caches them for the registry's
// lifetime. All methods are safe for concurrent use; multiple refinement
// streams may share one registry.
type Registry struct {
	mu    sync.RWMutex
	views map[mvs.ViewID]sourceView
	cams  map[cameraKey]*Camera
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		views: make(map[mvs.ViewID]sourceView),
		cams:  make(map[cameraKey]*Camera),
	}
}

// AddView registers a full-resolution view. The image bounds must match
// the intrinsics. Registering the same id twice is an error.
func (r *Registry) AddView(id mvs.ViewID, intr Intrinsics, pose Pose, img image.Image) error {
	if err := intr.Validate(); err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("camera: view %q has no image", id)
	}
	b := img.Bounds()
	if b.Dx() != intr.Width || b.Dy() != intr.Height {
		return fmt.Errorf("camera: view %q image %dx%d does not match intrinsics %dx%d",
			id, b.Dx(), b.Dy(), intr.Width, intr.Height)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.views[id]; exists {
		return fmt.Errorf("camera: view %q already registered", id)
	}
	r.views[id] = sourceView{intr: intr, pose: pose, img: img}
	return nil
}

// Request returns the camera handle for (id, scale), building and caching
// the pyramid level on first use. A missing view is an error: camera
// availability is the caller's precondition and lookups are never retried.
func (r *Registry) Request(id mvs.ViewID, scale int) (*Camera, error) {
	if scale < 1 {
		return nil, fmt.Errorf("camera: invalid scale %d for view %q", scale, id)
	}
	key := cameraKey{view: id, scale: scale}

	r.mu.RLock()
	cam, ok := r.cams[key]
	r.mu.RUnlock()
	if ok {
		return cam, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cam, ok := r.cams[key]; ok {
		return cam, nil
	}
	src, ok := r.views[id]
	if !ok {
		return nil, fmt.Errorf("camera: view %q not in registry", id)
	}
	cam = &Camera{
		ViewID: id,
		Scale:  scale,
		Intr:   src.intr.Downscaled(scale),
		Pose:   src.pose,
		Img:    downscaleImage(src.img, scale),
	}
	r.cams[key] = cam
	return cam, nil
}

// Views returns the registered view ids in sorted order.
func (r *Registry) Views() []mvs.ViewID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mvs.ViewID, 0, len(r.views))
	for id := range r.views {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
