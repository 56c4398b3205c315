/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"fmt"
	"image"

	"github.com/mattn/go-tflite"
)

func getTensorShape(tensor *tflite.Tensor) []int {
	shape := []int{}
	for idx := 0; idx < tensor.NumDims(); idx++ {
		shape = append(shape, tensor.Dim(idx))
	}
	return shape
}

// fillInput copies the RGB channels of img into a [1, H, W, 3] input tensor.
// Float inputs go through normalize.
func fillInput(input *tflite.Tensor, img *image.RGBA, normalize func(uint8) float32) error {
	shape := getTensorShape(input)
	if len(shape) != 4 || shape[3] != 3 {
		return fmt.Errorf("unsupported input shape %v", shape)
	}
	height, width := shape[1], shape[2]
	if img.Rect.Dx() != width || img.Rect.Dy() != height {
		return fmt.Errorf("image is %v, input wants %dx%d", img.Rect.Size(), width, height)
	}

	switch input.Type() {
	case tflite.UInt8:
		dst := input.UInt8s()
		if len(dst) != width*height*3 {
			return fmt.Errorf("input holds %d bytes, want %d", len(dst), width*height*3)
		}
		i := 0
		for y := 0; y < height; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+width*4]
			for x := 0; x < len(row); x += 4 {
				dst[i], dst[i+1], dst[i+2] = row[x], row[x+1], row[x+2]
				i += 3
			}
		}
	case tflite.Float32:
		dst := input.Float32s()
		if len(dst) != width*height*3 {
			return fmt.Errorf("input holds %d floats, want %d", len(dst), width*height*3)
		}
		i := 0
		for y := 0; y < height; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+width*4]
			for x := 0; x < len(row); x += 4 {
				dst[i] = normalize(row[x])
				dst[i+1] = normalize(row[x+1])
				dst[i+2] = normalize(row[x+2])
				i += 3
			}
		}
	default:
		return fmt.Errorf("unsupported input type %v", input.Type())
	}
	return nil
}

// outputFloats returns a float copy of an output tensor, dequantizing 8-bit
// data. Other types are an error.
func outputFloats(output *tflite.Tensor) ([]float32, error) {
	switch output.Type() {
	case tflite.UInt8:
		q := output.QuantizationParams()
		return dequantize(output.UInt8s(), float32(q.Scale), q.ZeroPoint), nil
	case tflite.Int8:
		q := output.QuantizationParams()
		return dequantize(output.Int8s(), float32(q.Scale), q.ZeroPoint), nil
	case tflite.Float32:
		f := output.Float32s()
		loc := make([]float32, len(f))
		copy(loc, f)
		return loc, nil
	}
	return nil, fmt.Errorf("output %s: unsupported type %v", output.Name(), output.Type())
}

// dequantize maps quantized values back to floats. Without a scale, uint8
// data is read as [0,1] and int8 data as [-1,1].
func dequantize[T uint8 | int8](data []T, scale float32, zeroPoint int) []float32 {
	var zero T
	unscaled := float32(127)
	if ^zero > 0 {
		unscaled = 255
	}
	loc := make([]float32, len(data))
	for i, v := range data {
		if scale != 0 {
			loc[i] = scale * (float32(v) - float32(zeroPoint))
		} else {
			loc[i] = float32(v) / unscaled
		}
	}
	return loc
}

// firstOutputs returns the first n outputs of interp as floats.
func firstOutputs(interp *tflite.Interpreter, n int) ([][]float32, error) {
	if interp.GetOutputTensorCount() < n {
		return nil, fmt.Errorf("want %d outputs, got %d", n, interp.GetOutputTensorCount())
	}
	outputs := make([][]float32, n)
	for idx := range outputs {
		f, err := outputFloats(interp.GetOutputTensor(idx))
		if err != nil {
			return nil, err
		}
		outputs[idx] = f
	}
	return outputs, nil
}
