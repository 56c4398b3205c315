package resize

import (
	"image"
	"image/color"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

// halves returns a w×h image, red on the left half and blue on the right.
func halves(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, red)
			} else {
				img.SetRGBA(x, y, blue)
			}
		}
	}
	return img
}

func assertPoint(t *testing.T, want, got math32.Vector2) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol)
	assert.InDelta(t, want.Y, got.Y, tol)
}

func TestVertTransform(t *testing.T) {
	centre := math32.Vec2(0.5, 0.5)
	origin := math32.Vec2(0, 0)

	assertPoint(t, origin, VertTransform(0, false, false).MulVector2AsPoint(origin))
	assertPoint(t, math32.Vec2(1, 0), VertTransform(90, false, false).MulVector2AsPoint(origin))
	assertPoint(t, math32.Vec2(1, 1), VertTransform(180, false, false).MulVector2AsPoint(origin))
	assertPoint(t, math32.Vec2(1, 0.3), VertTransform(0, true, false).MulVector2AsPoint(math32.Vec2(0, 0.3)))
	assertPoint(t, math32.Vec2(0.2, 1), VertTransform(0, false, true).MulVector2AsPoint(math32.Vec2(0.2, 0)))

	for _, deg := range []float32{0, 33, 90, 270, -45} {
		assertPoint(t, centre, VertTransform(deg, true, true).MulVector2AsPoint(centre))
	}
}

func TestWithCamera(t *testing.T) {
	o := Options{Rotation: 10, FlipX: true}.WithCamera(90, true)
	assert.Equal(t, float32(100), o.Rotation)
	assert.False(t, o.FlipX)

	o = o.WithCamera(0, false)
	assert.False(t, o.FlipX)
}

func TestCameraRotationIsClockwise(t *testing.T) {
	// y grows downwards: a quarter turn carries the top edge to the right
	o := Options{}.WithCamera(90, false)
	top := math32.Vec2(0.5, 0)
	assertPoint(t, math32.Vec2(1, 0.5), VertTransform(o.Rotation, o.FlipX, o.FlipY).MulVector2AsPoint(top))

	// a counter-clockwise angle from a y-up display comes in negated
	o = Options{}.WithCamera(-90, false)
	assertPoint(t, math32.Vec2(0, 0.5), VertTransform(o.Rotation, o.FlipX, o.FlipY).MulVector2AsPoint(top))
}

func TestResizeStretch(t *testing.T) {
	r := NewResizer()
	r.Interpolator = draw.NearestNeighbor

	out, err := r.Resize(halves(4, 2), Options{Width: 2, Height: 2})
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		assert.Equal(t, red, out.RGBAAt(0, y))
		assert.Equal(t, blue, out.RGBAAt(1, y))
	}
}

func TestResizeFitLetterbox(t *testing.T) {
	r := NewResizer()
	r.Interpolator = draw.NearestNeighbor

	out, err := r.Resize(halves(4, 2), Options{Width: 4, Height: 4, Aspect: Fit})
	require.NoError(t, err)
	for x := 0; x < 4; x++ {
		assert.Equal(t, color.RGBA{}, out.RGBAAt(x, 0), "top bar")
		assert.Equal(t, color.RGBA{}, out.RGBAAt(x, 3), "bottom bar")
	}
	assert.Equal(t, red, out.RGBAAt(0, 1))
	assert.Equal(t, blue, out.RGBAAt(3, 2))
}

func TestResizeFillCrops(t *testing.T) {
	r := NewResizer()
	r.Interpolator = draw.NearestNeighbor

	// Only the middle half of the source survives.
	out, err := r.Resize(halves(8, 2), Options{Width: 2, Height: 2, Aspect: Fill})
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		assert.Equal(t, red, out.RGBAAt(0, y))
		assert.Equal(t, blue, out.RGBAAt(1, y))
	}
}

func TestResizeFlipX(t *testing.T) {
	r := NewResizer()
	r.Interpolator = draw.NearestNeighbor

	out, err := r.Resize(halves(4, 4), Options{Width: 4, Height: 4, FlipX: true})
	require.NoError(t, err)
	assert.Equal(t, blue, out.RGBAAt(0, 0))
	assert.Equal(t, red, out.RGBAAt(3, 3))
}

func TestResizeRotate180(t *testing.T) {
	r := NewResizer()
	r.Interpolator = draw.NearestNeighbor

	out, err := r.Resize(halves(4, 4), Options{Width: 4, Height: 4, Rotation: 180})
	require.NoError(t, err)
	assert.Equal(t, blue, out.RGBAAt(0, 1))
	assert.Equal(t, red, out.RGBAAt(3, 2))
}

func TestResizeReusesTarget(t *testing.T) {
	r := NewResizer()
	src := halves(4, 4)

	a, err := r.Resize(src, Options{Width: 2, Height: 2})
	require.NoError(t, err)
	b, err := r.Resize(src, Options{Width: 2, Height: 2, Aspect: Fit})
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := r.Resize(src, Options{Width: 3, Height: 2})
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, image.Rect(0, 0, 3, 2), c.Bounds())
}

func TestResizeErrors(t *testing.T) {
	r := NewResizer()

	_, err := r.Resize(halves(4, 4), Options{Width: 0, Height: 2})
	assert.Error(t, err)

	_, err = r.Resize(image.NewRGBA(image.Rectangle{}), Options{Width: 2, Height: 2})
	assert.Error(t, err)

	_, err = r.Resize(halves(4, 4), Options{Width: 2, Height: 2, Aspect: AspectMode(3)})
	assert.ErrorIs(t, err, ErrUnknownAspectMode)
}

func TestSourceToTargetRoundTrip(t *testing.T) {
	src := image.Rect(10, 20, 1610, 920)
	opts := Options{Width: 320, Height: 320, Aspect: Fit, Rotation: 90}
	m, err := SourceToTarget(src, opts)
	require.NoError(t, err)

	box := image.Rect(400, 300, 600, 500)
	back := MapRect(m.Inverse(), MapRect(m, box))
	assert.InDelta(t, box.Min.X, back.Min.X, 2)
	assert.InDelta(t, box.Min.Y, back.Min.Y, 2)
	assert.InDelta(t, box.Max.X, back.Max.X, 2)
	assert.InDelta(t, box.Max.Y, back.Max.Y, 2)

	// The whole source lands inside the target when fitting.
	whole := MapRect(m, src)
	assert.True(t, whole.In(image.Rect(-1, -1, 321, 321)), whole)
}
