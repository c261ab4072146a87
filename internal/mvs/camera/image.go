package camera

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/banshee-data/depth.refine/internal/mvs"
)

// Image is a dense grayscale image with float32 luminance in [0, 1].
// Refinement only matches luminance patches, so color is collapsed at
// load time.
type Image struct {
	W, H int
	Pix  []float32 // len = W*H, row-major
}

// NewImage allocates a zeroed W x H image.
func NewImage(w, h int) (*Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("camera: invalid image dimensions %dx%d", w, h)
	}
	return &Image{W: w, H: h, Pix: make([]float32, w*h)}, nil
}

// At returns the luminance at (x, y) without bounds checking.
func (im *Image) At(x, y int) float32 { return im.Pix[y*im.W+x] }

// Set stores v at (x, y).
func (im *Image) Set(x, y int, v float32) { im.Pix[y*im.W+x] = v }

// AtBilinear samples the image at a continuous position with bilinear
// interpolation, clamping to the image border.
func (im *Image) AtBilinear(x, y float64) float32 {
	x = math.Min(math.Max(x, 0), float64(im.W-1))
	y = math.Min(math.Max(y, 0), float64(im.H-1))
	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= im.W {
		x1 = im.W - 1
	}
	if y1 >= im.H {
		y1 = im.H - 1
	}
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))
	top := im.At(x0, y0)*(1-fx) + im.At(x1, y0)*fx
	bot := im.At(x0, y1)*(1-fx) + im.At(x1, y1)*fx
	return top*(1-fy) + bot*fy
}

// FromImage converts a decoded image to float luminance using the usual
// Rec. 601 weights.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	im := &Image{W: b.Dx(), H: b.Dy(), Pix: make([]float32, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			im.Pix[i] = float32(0.299*float64(r)+0.587*float64(g)+0.114*float64(bl)) / 65535.0
			i++
		}
	}
	return im
}

// downscaleImage builds the pyramid level at 1/scale resolution using
// Catmull-Rom resampling through a 16-bit grayscale intermediate.
func downscaleImage(src image.Image, scale int) *Image {
	if scale <= 1 {
		return FromImage(src)
	}
	b := src.Bounds()
	w := mvs.DivideRoundUp(b.Dx(), scale)
	h := mvs.DivideRoundUp(b.Dy(), scale)
	dst := image.NewGray16(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return FromImage(dst)
}
