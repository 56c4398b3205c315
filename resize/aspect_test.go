package resize

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-3

func assertVec4(t *testing.T, want, got math32.Vector4) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "scale x")
	assert.InDelta(t, want.Y, got.Y, tol, "scale y")
	assert.InDelta(t, want.Z, got.Z, tol, "offset x")
	assert.InDelta(t, want.W, got.W, tol, "offset y")
}

func TestUVRectNone(t *testing.T) {
	for _, a := range [][2]float32{{1, 1}, {16.0 / 9, 1}, {0.5, 3}, {4, 0.25}} {
		uv, err := UVRect(a[0], a[1], None)
		require.NoError(t, err)
		assert.Equal(t, math32.Vec4(1, 1, 0, 0), uv)
	}
}

func TestUVRectWidescreenToSquare(t *testing.T) {
	src := float32(16.0 / 9.0)

	fit, err := UVRect(src, 1, Fit)
	require.NoError(t, err)
	assertVec4(t, math32.Vec4(1, 1.778, 0, -0.389), fit)

	fill, err := UVRect(src, 1, Fill)
	require.NoError(t, err)
	assertVec4(t, math32.Vec4(0.5625, 1, 0.219, 0), fill)
}

func TestUVRectFitOffsets(t *testing.T) {
	tests := []struct {
		name     string
		src, dst float32
	}{
		{"wider", 2, 1},
		{"taller", 0.5, 1},
		{"portrait to landscape", 0.75, 1.333},
		{"equal", 1.5, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uv, err := UVRect(tt.src, tt.dst, Fit)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, uv.X, float32(1)-tol)
			assert.GreaterOrEqual(t, uv.Y, float32(1)-tol)
			assert.InDelta(t, (1-uv.X)/2, uv.Z, tol)
			assert.InDelta(t, (1-uv.Y)/2, uv.W, tol)
		})
	}
}

func TestUVRectFitMirror(t *testing.T) {
	a, b := float32(2.4), float32(0.8)
	ab, err := UVRect(a, b, Fit)
	require.NoError(t, err)
	ba, err := UVRect(b, a, Fit)
	require.NoError(t, err)
	assertVec4(t, math32.Vec4(ba.Y, ba.X, ba.W, ba.Z), ab)
}

func TestUVRectFitFillCompose(t *testing.T) {
	for _, a := range [][2]float32{{16.0 / 9, 1}, {1, 16.0 / 9}, {3, 0.5}} {
		fit, err := UVRect(a[0], a[1], Fit)
		require.NoError(t, err)
		fill, err := UVRect(a[1], a[0], Fill)
		require.NoError(t, err)

		// uv = (v*fit.s + fit.o)*fill.s + fill.o
		assertVec4(t, math32.Vec4(1, 1, 0, 0), math32.Vec4(
			fit.X*fill.X,
			fit.Y*fill.Y,
			fit.Z*fill.X+fill.Z,
			fit.W*fill.Y+fill.W,
		))
	}
}

func TestUVRectUnknownMode(t *testing.T) {
	_, err := UVRect(1, 2, AspectMode(7))
	assert.ErrorIs(t, err, ErrUnknownAspectMode)
}

func TestParseAspectMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AspectMode
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"FIT", Fit, false},
		{" fill ", Fill, false},
		{"stretch", None, true},
	}
	for _, tt := range tests {
		got, err := ParseAspectMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownAspectMode, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAspectModeText(t *testing.T) {
	var m AspectMode
	require.NoError(t, m.UnmarshalText([]byte("fill")))
	assert.Equal(t, Fill, m)
	b, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "fill", string(b))

	_, err = AspectMode(-1).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "AspectMode(9)", AspectMode(9).String())
}
