/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"fmt"

	"github.com/mpromonet/gin-tflite-vision/vision"
)

// extractPose decodes the heatmaps and offsets outputs of a PoseNet model.
func (m *Model) extractPose(width, height float32) ([]vision.Keypoint, error) {
	out, err := firstOutputs(m.interp, 2)
	if err != nil {
		return nil, fmt.Errorf("posenet: %w", err)
	}
	return vision.DecodePoseNet(out[0], out[1], getTensorShape(m.interp.GetOutputTensor(0)),
		int(width), int(height))
}
