/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package signature

/*
#include <tensorflow/lite/c/c_api.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/mattn/go-tflite"
)

var errReadOnly = errors.New("tflite: output tensors are read-only")

// Tensor is a view of a native tensor owned by a Runner. It is valid until the
// runner is deleted or its tensors are reallocated.
type Tensor struct {
	t        *C.TfLiteTensor
	readOnly bool
}

func (t *Tensor) Type() tflite.TensorType {
	return tflite.TensorType(C.TfLiteTensorType(t.t))
}

func (t *Tensor) Name() string {
	return C.GoString(C.TfLiteTensorName(t.t))
}

func (t *Tensor) NumDims() int {
	return int(C.TfLiteTensorNumDims(t.t))
}

func (t *Tensor) Dim(index int) int {
	return int(C.TfLiteTensorDim(t.t, C.int32_t(index)))
}

func (t *Tensor) Shape() []int {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	return shape
}

func (t *Tensor) ByteSize() int {
	return int(C.TfLiteTensorByteSize(t.t))
}

// CopyFrom fills the tensor from b, which must match ByteSize.
func (t *Tensor) CopyFrom(b []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if len(b) != t.ByteSize() {
		return fmt.Errorf("tflite: %s: got %d bytes, want %d", t.Name(), len(b), t.ByteSize())
	}
	if len(b) == 0 {
		return nil
	}
	return check("copy to "+t.Name(),
		C.TfLiteTensorCopyFromBuffer(t.t, unsafe.Pointer(&b[0]), C.size_t(len(b))))
}

// CopyTo reads the tensor into b, which must match ByteSize.
func (t *Tensor) CopyTo(b []byte) error {
	if len(b) != t.ByteSize() {
		return fmt.Errorf("tflite: %s: got %d bytes, want %d", t.Name(), len(b), t.ByteSize())
	}
	if len(b) == 0 {
		return nil
	}
	return check("copy from "+t.Name(),
		C.TfLiteTensorCopyToBuffer(t.t, unsafe.Pointer(&b[0]), C.size_t(len(b))))
}

// Float32s returns a copy of a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.Type() != tflite.Float32 {
		return nil, fmt.Errorf("tflite: %s is %v, not float32", t.Name(), t.Type())
	}
	n := t.ByteSize() / 4
	if n == 0 {
		return []float32{}, nil
	}
	out := make([]float32, n)
	if err := t.CopyTo(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), n*4)); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tensor) SetFloat32s(v []float32) error {
	if t.Type() != tflite.Float32 {
		return fmt.Errorf("tflite: %s is %v, not float32", t.Name(), t.Type())
	}
	if len(v) == 0 {
		return t.CopyFrom(nil)
	}
	return t.CopyFrom(unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4))
}
