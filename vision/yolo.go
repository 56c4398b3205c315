/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package vision

import (
	"fmt"
	"image"
	"math"
)

// YOLO grid anchor, in cells.
const (
	yoloAnchorW = 10.0
	yoloAnchorH = 13.0
)

// DecodeYolo reads one YOLO output tensor. Two layouts are understood:
// [1, N, 5+C] with centre/size relative to the input, and the grid layout
// [1, H, W, 5+C] with cell-relative centres. Boxes are returned in pixels of
// a width×height input.
func DecodeYolo(loc []float32, shape []int, scoreTh float32, width, height float32) (Candidates, error) {
	var c Candidates
	if len(loc) == 0 {
		return c, nil
	}
	if len(shape) == 0 {
		return c, fmt.Errorf("yolo: scalar output of %d values", len(loc))
	}
	stride := shape[len(shape)-1]
	if stride <= 5 {
		return c, fmt.Errorf("yolo: unexpected shape %v", shape)
	}
	total := 1
	for _, d := range shape {
		total *= d
	}
	if len(loc) < total {
		return c, fmt.Errorf("yolo: got %d values for shape %v", len(loc), shape)
	}

	switch len(shape) {
	case 3:
		for idx := 0; idx < total; idx += stride {
			if loc[idx+4] > scoreTh {
				x := int(loc[idx+0] * width)
				y := int(loc[idx+1] * height)
				w := int(loc[idx+2] * width)
				h := int(loc[idx+3] * height)
				classID, score := argmax(loc[idx+5 : idx+stride])
				c.Add(image.Rect(x-w/2, y-h/2, x+w/2, y+h/2), score, classID)
			}
		}
	case 4:
		rows, cols := shape[1], shape[2]
		sx := width / float32(cols)
		sy := height / float32(rows)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				idx := (i*cols + j) * stride
				if loc[idx+4] > scoreTh {
					x := sx*float32(j) + sx*loc[idx+0]
					y := sy*float32(i) + sy*loc[idx+1]
					w := sx * (float32(math.Log(yoloAnchorW)) + loc[idx+2])
					h := sy * (float32(math.Log(yoloAnchorH)) + loc[idx+3])
					classID, score := argmax(loc[idx+5 : idx+stride])
					c.Add(image.Rect(int(x-w/2), int(y-h/2), int(x+w/2), int(y+h/2)), score, classID)
				}
			}
		}
	default:
		return c, fmt.Errorf("yolo: unexpected shape %v", shape)
	}
	return c, nil
}
