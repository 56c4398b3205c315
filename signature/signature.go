/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

// Package signature binds the TensorFlow Lite signature runner C API.
//
// A signature is a named entry point of a model with its own named inputs and
// outputs. Inference should go through either the runners or the plain
// interpreter API, not both: they share the underlying tensors. Delegates are
// attached to the interpreter, never to a signature.
package signature

/*
#cgo LDFLAGS: -ltensorflowlite_c
#cgo linux LDFLAGS: -lm -ldl
#include <stdlib.h>
#include <tensorflow/lite/c/c_api.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/mattn/go-tflite"
)

// StatusError is a failed native call.
type StatusError struct {
	Op     string
	Status tflite.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tflite: %s failed with status %d", e.Op, int(e.Status))
}

var (
	ErrDeleted          = errors.New("tflite: use after delete")
	ErrUnknownSignature = errors.New("tflite: unknown signature")
	ErrUnknownTensor    = errors.New("tflite: unknown tensor")
)

func check(op string, status C.TfLiteStatus) error {
	if status != C.kTfLiteOk {
		return &StatusError{Op: op, Status: tflite.Status(status)}
	}
	return nil
}

// Model is a loaded flatbuffer. Its data must outlive every interpreter built
// from it, so the bytes are copied to C memory and released by Delete.
type Model struct {
	m    *C.TfLiteModel
	data unsafe.Pointer
}

func NewModel(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("tflite: empty model")
	}
	buf := C.CBytes(data)
	m := C.TfLiteModelCreate(buf, C.size_t(len(data)))
	if m == nil {
		C.free(buf)
		return nil, fmt.Errorf("tflite: cannot load model")
	}
	return &Model{m: m, data: buf}, nil
}

func NewModelFromFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewModel(data)
}

func (m *Model) Delete() {
	if m == nil || m.m == nil {
		return
	}
	C.TfLiteModelDelete(m.m)
	C.free(m.data)
	m.m, m.data = nil, nil
}

// Options configure a new Interpreter.
type Options struct {
	Threads   int
	Delegates []tflite.Delegater
}

// Interpreter owns the native interpreter and every Runner created from it.
type Interpreter struct {
	i       *C.TfLiteInterpreter
	runners []*Runner
}

func NewInterpreter(model *Model, opts Options) (*Interpreter, error) {
	if model == nil || model.m == nil {
		return nil, ErrDeleted
	}
	o := C.TfLiteInterpreterOptionsCreate()
	defer C.TfLiteInterpreterOptionsDelete(o)
	if opts.Threads > 0 {
		C.TfLiteInterpreterOptionsSetNumThreads(o, C.int32_t(opts.Threads))
	}
	for _, d := range opts.Delegates {
		C.TfLiteInterpreterOptionsAddDelegate(o, (*C.TfLiteDelegate)(d.Ptr()))
	}
	i := C.TfLiteInterpreterCreate(model.m, o)
	if i == nil {
		return nil, fmt.Errorf("tflite: cannot create interpreter")
	}
	return &Interpreter{i: i}, nil
}

// Delete releases the runners, then the interpreter.
func (in *Interpreter) Delete() {
	if in == nil || in.i == nil {
		return
	}
	for _, r := range in.runners {
		r.Delete()
	}
	in.runners = nil
	C.TfLiteInterpreterDelete(in.i)
	in.i = nil
}

func (in *Interpreter) SignatureCount() int {
	if in.i == nil {
		return 0
	}
	return int(C.TfLiteInterpreterGetSignatureCount(in.i))
}

func (in *Interpreter) SignatureKey(index int) string {
	if in.i == nil || index < 0 || index >= in.SignatureCount() {
		return ""
	}
	return C.GoString(C.TfLiteInterpreterGetSignatureKey(in.i, C.int32_t(index)))
}

// Signatures lists every signature key of the model.
func (in *Interpreter) Signatures() []string {
	keys := make([]string, in.SignatureCount())
	for i := range keys {
		keys[i] = in.SignatureKey(i)
	}
	return keys
}

// Runner returns the runner of the signature named key.
func (in *Interpreter) Runner(key string) (*Runner, error) {
	if in.i == nil {
		return nil, ErrDeleted
	}
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	r := C.TfLiteInterpreterGetSignatureRunner(in.i, ckey)
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignature, key)
	}
	runner := &Runner{r: r, key: key}
	in.runners = append(in.runners, runner)
	return runner, nil
}

// RunnerAt returns the runner of the signature at index.
func (in *Interpreter) RunnerAt(index int) (*Runner, error) {
	if index < 0 || index >= in.SignatureCount() {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownSignature, index)
	}
	return in.Runner(in.SignatureKey(index))
}

// Runner invokes one signature.
type Runner struct {
	r   *C.TfLiteSignatureRunner
	key string
}

func (r *Runner) Key() string { return r.key }

// Delete is safe to call more than once.
func (r *Runner) Delete() {
	if r.r == nil {
		return
	}
	C.TfLiteSignatureRunnerDelete(r.r)
	r.r = nil
}

func (r *Runner) InputCount() int {
	if r.r == nil {
		return 0
	}
	return int(C.TfLiteSignatureRunnerGetInputCount(r.r))
}

func (r *Runner) InputName(index int) string {
	if r.r == nil || index < 0 || index >= r.InputCount() {
		return ""
	}
	return C.GoString(C.TfLiteSignatureRunnerGetInputName(r.r, C.int32_t(index)))
}

func (r *Runner) OutputCount() int {
	if r.r == nil {
		return 0
	}
	return int(C.TfLiteSignatureRunnerGetOutputCount(r.r))
}

func (r *Runner) OutputName(index int) string {
	if r.r == nil || index < 0 || index >= r.OutputCount() {
		return ""
	}
	return C.GoString(C.TfLiteSignatureRunnerGetOutputName(r.r, C.int32_t(index)))
}

func (r *Runner) Inputs() []string {
	names := make([]string, r.InputCount())
	for i := range names {
		names[i] = r.InputName(i)
	}
	return names
}

func (r *Runner) Outputs() []string {
	names := make([]string, r.OutputCount())
	for i := range names {
		names[i] = r.OutputName(i)
	}
	return names
}

// ResizeInput changes the shape of an input. AllocateTensors must be called
// before the next Invoke.
func (r *Runner) ResizeInput(name string, dims []int) error {
	if r.r == nil {
		return ErrDeleted
	}
	if len(dims) == 0 {
		return fmt.Errorf("tflite: resize %q: empty shape", name)
	}
	cdims := make([]C.int, len(dims))
	for i, d := range dims {
		cdims[i] = C.int(d)
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return check("resize input "+name,
		C.TfLiteSignatureRunnerResizeInputTensor(r.r, cname, &cdims[0], C.int32_t(len(cdims))))
}

func (r *Runner) AllocateTensors() error {
	if r.r == nil {
		return ErrDeleted
	}
	return check("allocate tensors", C.TfLiteSignatureRunnerAllocateTensors(r.r))
}

func (r *Runner) Invoke() error {
	if r.r == nil {
		return ErrDeleted
	}
	return check("invoke "+r.key, C.TfLiteSignatureRunnerInvoke(r.r))
}

func (r *Runner) Input(name string) (*Tensor, error) {
	if r.r == nil {
		return nil, ErrDeleted
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	t := C.TfLiteSignatureRunnerGetInputTensor(r.r, cname)
	if t == nil {
		return nil, fmt.Errorf("%w: input %q", ErrUnknownTensor, name)
	}
	return &Tensor{t: t}, nil
}

// Output tensors are owned by the runner and only read.
func (r *Runner) Output(name string) (*Tensor, error) {
	if r.r == nil {
		return nil, ErrDeleted
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	t := C.TfLiteSignatureRunnerGetOutputTensor(r.r, cname)
	if t == nil {
		return nil, fmt.Errorf("%w: output %q", ErrUnknownTensor, name)
	}
	return &Tensor{t: (*C.TfLiteTensor)(unsafe.Pointer(t)), readOnly: true}, nil
}
