/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"log/slog"

	"github.com/mattn/go-tflite"

	"github.com/mpromonet/gin-tflite-vision/vision"
)

type YoloPostProcessing struct{}

func (p YoloPostProcessing) suppress() bool { return true }

func (p YoloPostProcessing) extractResult(interp *tflite.Interpreter, scoreTh float32, width float32, height float32) (vision.Candidates, error) {
	var c vision.Candidates
	for idx := 0; idx < interp.GetOutputTensorCount(); idx++ {
		output := interp.GetOutputTensor(idx)
		shape := getTensorShape(output)
		slog.Debug("output", "name", output.Name(), "shape", shape, "type", output.Type())
		loc, err := outputFloats(output)
		if err != nil {
			return c, err
		}
		boxes, err := vision.DecodeYolo(loc, shape, scoreTh, width, height)
		if err != nil {
			return c, err
		}
		c.Append(boxes)
	}
	return c, nil
}
