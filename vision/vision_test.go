package vision

import (
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels(t *testing.T) {
	labels, err := LoadLabels(strings.NewReader("person\nbicycle\ncar\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, labels)

	assert.Equal(t, "car", Label(labels, 2))
	assert.Equal(t, "unknown", Label(labels, 3))
	assert.Equal(t, "unknown", Label(labels, -1))
}

func TestRectPixels(t *testing.T) {
	r := Rect{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}
	assert.Equal(t, image.Rect(80, 160, 240, 240), r.Pixels(320, 320))
}

func TestDecodeBoxes(t *testing.T) {
	boxes := []float32{
		0.1, 0.2, 0.5, 0.6, // top left bottom right
		0.0, 0.0, 1.0, 1.0,
		0.3, 0.3, 0.4, 0.4,
	}
	classes := []float32{0, 17, 2}
	scores := []float32{0.9, 0.2, 0.6}

	got, err := DecodeBoxes(boxes, classes, scores, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 0, got[0].ClassID)
	assert.Equal(t, float32(0.9), got[0].Score)
	assert.InDelta(t, 0.2, got[0].Rect.X, 1e-6)
	assert.InDelta(t, 0.1, got[0].Rect.Y, 1e-6)
	assert.InDelta(t, 0.4, got[0].Rect.W, 1e-6)
	assert.InDelta(t, 0.4, got[0].Rect.H, 1e-6)
	assert.Equal(t, 2, got[1].ClassID)

	_, err = DecodeBoxes(boxes[:8], classes, scores, 0)
	assert.Error(t, err)
}

func TestDecodeEfficientDetLimit(t *testing.T) {
	n := EfficientDetMaxDetections + 5
	boxes := make([]float32, 4*n)
	classes := make([]float32, n)
	scores := make([]float32, n)
	for i := range scores {
		scores[i] = 1
	}
	got, err := DecodeEfficientDet(boxes, classes, scores, 0.5)
	require.NoError(t, err)
	assert.Len(t, got, EfficientDetMaxDetections)
}

func TestDecodeYoloFlat(t *testing.T) {
	// two candidates, 2 classes
	loc := []float32{
		0.5, 0.5, 0.2, 0.4, 0.9, 0.1, 0.8,
		0.1, 0.1, 0.1, 0.1, 0.1, 0.9, 0.0,
	}
	c, err := DecodeYolo(loc, []int{1, 2, 7}, 0.3, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, image.Rect(40, 30, 60, 70), c.Boxes[0])
	assert.Equal(t, 1, c.Classes[0])
	assert.Equal(t, float32(0.8), c.Scores[0])
}

func TestDecodeYoloGrid(t *testing.T) {
	loc := make([]float32, 2*2*7)
	cell := (1*2 + 0) * 7 // row 1, col 0
	loc[cell+0] = 0.5
	loc[cell+1] = 0.5
	loc[cell+4] = 0.7
	loc[cell+6] = 0.6

	c, err := DecodeYolo(loc, []int{1, 2, 2, 7}, 0.5, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	centre := c.Boxes[0].Min.Add(c.Boxes[0].Max).Div(2)
	assert.InDelta(t, 25, centre.X, 1)
	assert.InDelta(t, 75, centre.Y, 1)
	assert.Equal(t, 1, c.Classes[0])
}

func TestDecodeYoloBadShape(t *testing.T) {
	_, err := DecodeYolo([]float32{1, 2, 3}, []int{1, 3}, 0.5, 10, 10)
	assert.Error(t, err)
	_, err = DecodeYolo([]float32{1, 2, 3, 4, 5, 6}, []int{1, 2, 7}, 0.5, 10, 10)
	assert.Error(t, err)
	_, err = DecodeYolo([]float32{3}, []int{}, 0.5, 10, 10)
	assert.Error(t, err)

	c, err := DecodeYolo(nil, []int{1, 2, 7}, 0.5, 10, 10)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestCandidatesAppend(t *testing.T) {
	var a, b Candidates
	a.Add(image.Rect(0, 0, 1, 1), 0.5, 1)
	b.Add(image.Rect(1, 1, 2, 2), 0.6, 2)
	a.Append(b)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []int{1, 2}, a.Classes)
}

func TestDecodePoseNet(t *testing.T) {
	const rows, cols = 3, 3
	shape := []int{1, rows, cols, NumParts}
	heat := make([]float32, rows*cols*NumParts)
	off := make([]float32, rows*cols*NumParts*2)
	for i := range heat {
		heat[i] = -5
	}
	// nose peaks in the centre cell, shifted by the offsets
	centre := 1*cols + 1
	heat[centre*NumParts+int(Nose)] = 5
	off[centre*NumParts*2+int(Nose)] = 10           // y
	off[centre*NumParts*2+int(Nose)+NumParts] = -20 // x

	kps, err := DecodePoseNet(heat, off, shape, 200, 100)
	require.NoError(t, err)
	require.Len(t, kps, NumParts)

	nose := kps[Nose]
	assert.Equal(t, Nose, nose.Part)
	assert.InDelta(t, (100.0-20)/200, nose.X, 1e-5)
	assert.InDelta(t, (50.0+10)/100, nose.Y, 1e-5)
	assert.Greater(t, nose.Confidence, float32(0.99))
	assert.Less(t, kps[LeftAnkle].Confidence, float32(0.01))
}

func TestDecodePoseNetBadShape(t *testing.T) {
	_, err := DecodePoseNet(nil, nil, []int{1, 9, 9, 5}, 257, 257)
	assert.Error(t, err)
	_, err = DecodePoseNet(make([]float32, 10), nil, []int{1, 9, 9, NumParts}, 257, 257)
	assert.Error(t, err)
}

func TestBones(t *testing.T) {
	kps := make([]Keypoint, NumParts)
	for i := range kps {
		kps[i] = Keypoint{Part: Part(i), Confidence: 0.1}
	}
	kps[LeftWrist].Confidence = 0.9
	kps[LeftElbow].Confidence = 0.8
	kps[LeftShoulder].Confidence = 0.4

	bones := Bones(kps, 0.5)
	require.Len(t, bones, 1)
	assert.Equal(t, LeftWrist, bones[0].From.Part)
	assert.Equal(t, LeftElbow, bones[0].To.Part)

	assert.Len(t, Bones(kps, 0.05), len(Connections))
}

func TestPartString(t *testing.T) {
	assert.Equal(t, "leftShoulder", LeftShoulder.String())
	assert.Equal(t, "Part(42)", Part(42).String())
}
