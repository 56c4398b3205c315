/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

// Package vision decodes the raw output tensors of detection and pose
// models into results.
package vision

import (
	"image"
	"math"
)

// Item is a labelled detection in pixel coordinates.
type Item struct {
	Box       image.Rectangle `json:"box"`
	Score     float32         `json:"score"`
	ClassID   int             `json:"class_id"`
	ClassName string          `json:"class_name"`
}

// Rect is a box in normalized [0,1] image coordinates, y down.
type Rect struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
}

// Pixels scales r to an image of the given size.
func (r Rect) Pixels(width, height int) image.Rectangle {
	w, h := float32(width), float32(height)
	return image.Rect(
		int(math.Round(float64(r.X*w))),
		int(math.Round(float64(r.Y*h))),
		int(math.Round(float64((r.X+r.W)*w))),
		int(math.Round(float64((r.Y+r.H)*h))),
	)
}

// Detection is one decoded box. Score is in [0,1].
type Detection struct {
	ClassID int     `json:"class_id"`
	Score   float32 `json:"score"`
	Rect    Rect    `json:"rect"`
}

// Candidates are boxes waiting for non-maximum suppression, stored as
// parallel slices.
type Candidates struct {
	Boxes   []image.Rectangle
	Scores  []float32
	Classes []int
}

func (c *Candidates) Add(box image.Rectangle, score float32, class int) {
	c.Boxes = append(c.Boxes, box)
	c.Scores = append(c.Scores, score)
	c.Classes = append(c.Classes, class)
}

func (c *Candidates) Append(o Candidates) {
	c.Boxes = append(c.Boxes, o.Boxes...)
	c.Scores = append(c.Scores, o.Scores...)
	c.Classes = append(c.Classes, o.Classes...)
}

func (c *Candidates) Len() int {
	return len(c.Boxes)
}

func argmax(f []float32) (int, float32) {
	r, m := 0, f[0]
	for i, v := range f {
		if v > m {
			m = v
			r = i
		}
	}
	return r, m
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
