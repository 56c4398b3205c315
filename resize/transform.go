/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package resize

import (
	"image"
	"math"

	"cogentcore.org/core/math32"
)

// Options describes one resize request.
type Options struct {
	Width    int
	Height   int
	Rotation float32 // degrees
	FlipX    bool
	FlipY    bool
	Aspect   AspectMode
}

// WithCamera folds the orientation reported by a camera into the options.
// A vertically mirrored feed is compensated by flipping X, the same way the
// frame is displayed after its rotation is applied. rotation is clockwise in
// image space; a counter-clockwise angle from a y-up display must be negated.
func (o Options) WithCamera(rotation float32, verticallyMirrored bool) Options {
	o.Rotation += rotation
	if verticallyMirrored {
		o.FlipX = !o.FlipX
	}
	return o
}

// VertTransform rotates by rotation degrees and optionally mirrors, pivoting
// around the centre of the unit square. Coordinates are y-down, so positive
// angles turn clockwise on screen.
func VertTransform(rotation float32, flipX, flipY bool) math32.Matrix2 {
	sx, sy := float32(1), float32(1)
	if flipX {
		sx = -1
	}
	if flipY {
		sy = -1
	}
	return math32.Translate2D(0.5, 0.5).
		Mul(math32.Rotate2D(math32.DegToRad(rotation))).
		Mul(math32.Scale2D(sx, sy)).
		Mul(math32.Translate2D(-0.5, -0.5))
}

// SourceToTarget returns the affine mapping a pixel of a src-sized image to
// its pixel in the resized output.
func SourceToTarget(src image.Rectangle, opts Options) (math32.Matrix2, error) {
	sw, sh := float32(src.Dx()), float32(src.Dy())
	dw, dh := float32(opts.Width), float32(opts.Height)
	uv, err := UVRect(sw/sh, dw/dh, opts.Aspect)
	if err != nil {
		return math32.Matrix2{}, err
	}
	// target = size · vert · uv⁻¹ · normalize(src)
	return math32.Scale2D(dw, dh).
		Mul(VertTransform(opts.Rotation, opts.FlipX, opts.FlipY)).
		Mul(math32.Scale2D(1/uv.X, 1/uv.Y)).
		Mul(math32.Translate2D(-uv.Z, -uv.W)).
		Mul(math32.Scale2D(1/sw, 1/sh)).
		Mul(math32.Translate2D(-float32(src.Min.X), -float32(src.Min.Y))), nil
}

// MapRect transforms r by m and returns the axis-aligned bounds of the result.
func MapRect(m math32.Matrix2, r image.Rectangle) image.Rectangle {
	corners := [4]math32.Vector2{
		math32.Vec2(float32(r.Min.X), float32(r.Min.Y)),
		math32.Vec2(float32(r.Max.X), float32(r.Min.Y)),
		math32.Vec2(float32(r.Min.X), float32(r.Max.Y)),
		math32.Vec2(float32(r.Max.X), float32(r.Max.Y)),
	}
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := -minX, -minY
	for _, c := range corners {
		p := m.MulVector2AsPoint(c)
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(round(minX), round(minY), round(maxX), round(maxY))
}

func round(f float32) int {
	return int(math.Round(float64(f)))
}
