/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package vision

import "fmt"

// EfficientDetMaxDetections is the fixed output count of the EfficientDet-Lite
// detection signature.
const EfficientDetMaxDetections = 25

// DecodeBoxes reads the post-processed layout shared by SSD and EfficientDet:
// boxes as [top, left, bottom, right] normalized, then class ids and scores.
// Detections scoring below threshold are dropped.
func DecodeBoxes(boxes, classes, scores []float32, threshold float32) ([]Detection, error) {
	n := len(scores)
	if len(classes) < n {
		n = len(classes)
	}
	if len(boxes) < 4*n {
		return nil, fmt.Errorf("boxes: got %d values for %d detections", len(boxes), n)
	}

	detections := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] < threshold {
			continue
		}
		top := boxes[4*i]
		left := boxes[4*i+1]
		bottom := boxes[4*i+2]
		right := boxes[4*i+3]
		detections = append(detections, Detection{
			ClassID: int(classes[i]),
			Score:   scores[i],
			Rect:    Rect{X: left, Y: top, W: right - left, H: bottom - top},
		})
	}
	return detections, nil
}

// DecodeEfficientDet is DecodeBoxes limited to EfficientDetMaxDetections.
func DecodeEfficientDet(boxes, classes, scores []float32, threshold float32) ([]Detection, error) {
	if len(scores) > EfficientDetMaxDetections {
		scores = scores[:EfficientDetMaxDetections]
	}
	return DecodeBoxes(boxes, classes, scores, threshold)
}
