package mvs

import "fmt"

// ViewID is a human-readable view name like "cam-03" or "dslr_0021".
type ViewID string

// Tile is the unit of work for the refinement engine: one rectangular
// region of a reference view, plus the ordered list of target views whose
// matching evidence is fused into it.
type Tile struct {
	RefView ViewID   // view being refined
	Targets []ViewID // neighbour views, in fusion order

	// ROI is the tile region at full image resolution.
	ROI ROI

	// Index and Count describe the tile's position when a view is split
	// into several tiles. An untiled view uses Index 0, Count 1.
	Index int
	Count int
}

// IsTiled reports whether the view this tile belongs to was split.
func (t Tile) IsTiled() bool { return t.Count > 1 }

func (t Tile) String() string {
	if t.IsTiled() {
		return fmt.Sprintf("[%s tile %d/%d %s] ", t.RefView, t.Index+1, t.Count, t.ROI)
	}
	return fmt.Sprintf("[%s] ", t.RefView)
}
