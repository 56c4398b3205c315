/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package vision

import "fmt"

// Part is a PoseNet body keypoint.
type Part int

const (
	Nose Part = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle

	NumParts = int(RightAnkle) + 1
)

var partNames = [NumParts]string{
	"nose", "leftEye", "rightEye", "leftEar", "rightEar",
	"leftShoulder", "rightShoulder", "leftElbow", "rightElbow",
	"leftWrist", "rightWrist", "leftHip", "rightHip",
	"leftKnee", "rightKnee", "leftAnkle", "rightAnkle",
}

func (p Part) String() string {
	if p < 0 || int(p) >= NumParts {
		return fmt.Sprintf("Part(%d)", int(p))
	}
	return partNames[p]
}

func (p Part) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Connections are the skeleton bones between parts.
var Connections = [][2]Part{
	{LeftWrist, LeftElbow},
	{LeftElbow, LeftShoulder},
	{LeftShoulder, RightShoulder},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{LeftHip, RightHip},
	{RightHip, RightShoulder},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
}

// Keypoint is a part location normalized to the model input, y down.
type Keypoint struct {
	Part       Part    `json:"part"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Confidence float32 `json:"confidence"`
}

// DecodePoseNet finds the single best pose from the heatmaps [1, H, W, 17]
// and offsets [1, H, W, 34] of a PoseNet model whose input is
// inputWidth×inputHeight.
func DecodePoseNet(heatmaps, offsets []float32, shape []int, inputWidth, inputHeight int) ([]Keypoint, error) {
	if len(shape) != 4 || shape[3] != NumParts {
		return nil, fmt.Errorf("posenet: unexpected heatmap shape %v", shape)
	}
	rows, cols := shape[1], shape[2]
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("posenet: heatmap too small %v", shape)
	}
	if len(heatmaps) < rows*cols*NumParts || len(offsets) < rows*cols*NumParts*2 {
		return nil, fmt.Errorf("posenet: got %d heatmap and %d offset values for shape %v",
			len(heatmaps), len(offsets), shape)
	}

	w, h := float32(inputWidth), float32(inputHeight)
	keypoints := make([]Keypoint, NumParts)
	for part := 0; part < NumParts; part++ {
		bestX, bestY := 0, 0
		best := heatmaps[part]
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v := heatmaps[(y*cols+x)*NumParts+part]
				if v > best {
					best = v
					bestX, bestY = x, y
				}
			}
		}

		cell := (bestY*cols + bestX) * NumParts * 2
		offsetY := offsets[cell+part]
		offsetX := offsets[cell+part+NumParts]
		keypoints[part] = Keypoint{
			Part:       Part(part),
			X:          (float32(bestX)/float32(cols-1)*w + offsetX) / w,
			Y:          (float32(bestY)/float32(rows-1)*h + offsetY) / h,
			Confidence: sigmoid(best),
		}
	}
	return keypoints, nil
}

// Bone is a connection whose ends both passed the threshold.
type Bone struct {
	From Keypoint `json:"from"`
	To   Keypoint `json:"to"`
}

// Bones returns the skeleton segments where both keypoints reach threshold.
func Bones(keypoints []Keypoint, threshold float32) []Bone {
	bones := []Bone{}
	for _, c := range Connections {
		if int(c[0]) >= len(keypoints) || int(c[1]) >= len(keypoints) {
			continue
		}
		a, b := keypoints[c[0]], keypoints[c[1]]
		if a.Confidence >= threshold && b.Confidence >= threshold {
			bones = append(bones, Bone{From: a, To: b})
		}
	}
	return bones
}
