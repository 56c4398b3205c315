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

// SsdPostProcessing reads the TFLite detection post-process outputs:
// locations, classes, scores (and a count, ignored).
type SsdPostProcessing struct{}

func (p SsdPostProcessing) suppress() bool { return true }

func (p SsdPostProcessing) extractResult(interp *tflite.Interpreter, scoreTh float32, width float32, height float32) (vision.Candidates, error) {
	out, err := firstOutputs(interp, 3)
	if err != nil {
		return vision.Candidates{}, fmt.Errorf("ssd: %w", err)
	}
	detections, err := vision.DecodeBoxes(out[0], out[1], out[2], scoreTh)
	if err != nil {
		return vision.Candidates{}, err
	}
	return detectionsToCandidates(detections, width, height), nil
}
