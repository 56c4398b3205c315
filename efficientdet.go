/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"fmt"

	"github.com/mattn/go-tflite"

	"github.com/mpromonet/gin-tflite-vision/vision"
)

// EfficientDetPostProcessing reads EfficientDet-Lite: boxes, classes and
// scores for a fixed number of detections, already suppressed in-graph.
type EfficientDetPostProcessing struct{}

func (p EfficientDetPostProcessing) suppress() bool { return false }

func (p EfficientDetPostProcessing) extractResult(interp *tflite.Interpreter, scoreTh float32, width float32, height float32) (vision.Candidates, error) {
	out, err := firstOutputs(interp, 3)
	if err != nil {
		return vision.Candidates{}, fmt.Errorf("efficientdet: %w", err)
	}
	detections, err := vision.DecodeEfficientDet(out[0], out[1], out[2], scoreTh)
	if err != nil {
		return vision.Candidates{}, err
	}
	return detectionsToCandidates(detections, width, height), nil
}
