/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package resize

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Resizer samples images into a fixed-size target. The target is allocated
// on first use and reused until a different size is requested, so the
// returned image is only valid until the next call. A Resizer is not safe for
// concurrent use.
type Resizer struct {
	Interpolator draw.Interpolator

	target *image.RGBA
}

func NewResizer() *Resizer {
	return &Resizer{Interpolator: draw.BiLinear}
}

// Resize draws src into the target following opts. Target pixels that no
// source pixel maps to are transparent black.
func (r *Resizer) Resize(src image.Image, opts Options) (*image.RGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", opts.Width, opts.Height)
	}
	sr := src.Bounds()
	if sr.Empty() {
		return nil, fmt.Errorf("empty source image")
	}
	m, err := SourceToTarget(sr, opts)
	if err != nil {
		return nil, err
	}

	dst := r.Target(opts.Width, opts.Height)
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	interp := r.Interpolator
	if interp == nil {
		interp = draw.BiLinear
	}
	s2d := f64.Aff3{
		float64(m.XX), float64(m.XY), float64(m.X0),
		float64(m.YX), float64(m.YY), float64(m.Y0),
	}
	interp.Transform(dst, s2d, src, sr, draw.Src, nil)
	return dst, nil
}

// Target returns the cached target, reallocating it when the size differs.
func (r *Resizer) Target(width, height int) *image.RGBA {
	if r.target == nil || r.target.Rect.Dx() != width || r.target.Rect.Dy() != height {
		r.target = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return r.target
}
