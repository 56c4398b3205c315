package main

import (
	"context"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpromonet/gin-tflite-vision/config"
	"github.com/mpromonet/gin-tflite-vision/resize"
	"github.com/mpromonet/gin-tflite-vision/vision"
)

func TestMapItemsFitRotated(t *testing.T) {
	// 2:1 source off the origin, letterboxed into a square input turned 90°
	bounds := image.Rect(10, 20, 210, 120)
	opts := resize.Options{Width: 100, Height: 100, Rotation: 90, Aspect: resize.Fit}
	toTarget, err := resize.SourceToTarget(bounds, opts)
	require.NoError(t, err)

	var c vision.Candidates
	c.Add(image.Rect(25, 0, 75, 50), 0.9, 1)
	c.Add(image.Rect(0, 0, 10, 10), 0.6, 5)

	items := mapItems(c, toTarget.Inverse(), bounds, []string{"person", "car"})
	require.Len(t, items, 2)
	assert.Equal(t, image.Rect(10, 20, 110, 120), items[0].Box)
	assert.Equal(t, "car", items[0].ClassName)
	assert.Equal(t, float32(0.9), items[0].Score)
	assert.Equal(t, "unknown", items[1].ClassName)
}

func TestMapItemsFillClipped(t *testing.T) {
	// the sides of the source are cropped away; a box reaching past the
	// input edge is clipped to the image
	bounds := image.Rect(0, 0, 200, 100)
	opts := resize.Options{Width: 100, Height: 100, Aspect: resize.Fill}
	toTarget, err := resize.SourceToTarget(bounds, opts)
	require.NoError(t, err)

	var c vision.Candidates
	c.Add(image.Rect(-70, -10, 40, 50), 0.8, 0)
	c.Add(image.Rect(10, 10, 20, 20), 0.7, 0)

	items := mapItems(c, toTarget.Inverse(), bounds, nil)
	require.Len(t, items, 2)
	assert.Equal(t, image.Rect(0, 0, 90, 50), items[0].Box)
	assert.Equal(t, image.Rect(60, 10, 70, 20), items[1].Box)
}

func TestMapKeypoints(t *testing.T) {
	bounds := image.Rect(10, 20, 210, 120)
	opts := resize.Options{Width: 100, Height: 100, Rotation: 90, Aspect: resize.Fit}
	toTarget, err := resize.SourceToTarget(bounds, opts)
	require.NoError(t, err)

	keypoints := []vision.Keypoint{
		{Part: vision.Nose, X: 0.25, Y: 0.5, Confidence: 0.9},
		{Part: vision.LeftEye, X: 0.75, Y: 0, Confidence: 0.3},
	}
	got := mapKeypoints(keypoints, toTarget.Inverse(), bounds, opts.Width, opts.Height)
	require.Len(t, got, 2)

	assert.Equal(t, vision.Nose, got[0].Part)
	assert.InDelta(t, 0.5, got[0].X, 1e-4)
	assert.InDelta(t, 1.0, got[0].Y, 1e-4)
	assert.Equal(t, float32(0.9), got[0].Confidence)
	assert.InDelta(t, 0, got[1].X, 1e-4)
	assert.InDelta(t, 0, got[1].Y, 1e-4)

	// input keypoints are left untouched
	assert.Equal(t, float32(0.25), keypoints[0].X)
}

func TestDetectionsToCandidates(t *testing.T) {
	c := detectionsToCandidates([]vision.Detection{
		{ClassID: 3, Score: 0.7, Rect: vision.Rect{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}},
	}, 320, 320)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, image.Rect(80, 160, 240, 240), c.Boxes[0])
	assert.Equal(t, 3, c.Classes[0])
	assert.Equal(t, float32(0.7), c.Scores[0])
}

func TestNonMaxSuppression(t *testing.T) {
	var c vision.Candidates
	c.Add(image.Rect(0, 0, 10, 10), 0.9, 0)
	c.Add(image.Rect(1, 1, 11, 11), 0.8, 0)
	c.Add(image.Rect(50, 50, 60, 60), 0.7, 1)

	kept := nonMaxSuppression(c, 0.5, 0.4)
	require.Equal(t, 2, kept.Len())
	assert.ElementsMatch(t, []float32{0.9, 0.7}, kept.Scores)

	assert.Zero(t, nonMaxSuppression(vision.Candidates{}, 0.5, 0.4).Len())
}

func TestDequantize(t *testing.T) {
	assert.InDeltaSlice(t, []float32{-0.5, 0, 1}, dequantize([]uint8{118, 128, 148}, 0.05, 128), 1e-6)
	assert.InDeltaSlice(t, []float32{-1, 0, 0.5}, dequantize([]int8{-20, 0, 10}, 0.05, 0), 1e-6)

	got := dequantize([]uint8{0, 255}, 0, 0)
	assert.InDelta(t, 0, got[0], 1e-6)
	assert.InDelta(t, 1, got[1], 1e-6)
	got = dequantize([]int8{-127, 127}, 0, 0)
	assert.InDelta(t, -1, got[0], 1e-6)
	assert.InDelta(t, 1, got[1], 1e-6)
}

func TestThreshold(t *testing.T) {
	m := &Model{cfg: config.Model{Score: 0.5}}
	assert.Equal(t, float32(0.5), m.threshold(nil))
	zero, high := float32(0), float32(0.8)
	assert.Equal(t, float32(0), m.threshold(&zero))
	assert.Equal(t, float32(0.8), m.threshold(&high))
}

func TestWorkerSurvivesPanic(t *testing.T) {
	// no interpreter behind the model: processing panics on the first tensor
	m := &Model{
		cfg:     config.Model{Name: "broken", Kind: config.KindYolo, Score: 0.5},
		resizer: resize.NewResizer(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		jobs:    make(chan request),
		done:    make(chan struct{}),
	}
	go m.modelWorker()
	defer m.Close()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 2; i++ {
		_, err := m.Run(context.Background(), img, resize.Options{}, nil)
		assert.ErrorIs(t, err, ErrInference)
	}
}
