/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mattn/go-tflite"

	"github.com/mpromonet/gin-tflite-vision/config"
	"github.com/mpromonet/gin-tflite-vision/signature"
)

// TensorValue is a float32 tensor exchanged as JSON.
type TensorValue struct {
	Shape []int     `json:"shape,omitempty"`
	Data  []float32 `json:"data"`
}

type TensorInfo struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Type  string `json:"type"`
}

type SignatureInfo struct {
	Key     string       `json:"key"`
	Inputs  []TensorInfo `json:"inputs"`
	Outputs []TensorInfo `json:"outputs"`
}

// SignatureModel exposes the signatures of a model. Runners share the
// interpreter, so every call is serialized.
type SignatureModel struct {
	cfg      config.Model
	model    *signature.Model
	interp   *signature.Interpreter
	delegate tflite.Delegater
	logger   *slog.Logger

	mu      sync.Mutex
	runners map[string]*signature.Runner
}

func NewSignatureModel(cfg config.Model, logger *slog.Logger) (*SignatureModel, error) {
	logger = logger.With("model", cfg.Name)

	model, err := signature.NewModelFromFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	delegate, err := newDelegate(cfg.Delegate, cfg.Threads, logger)
	if err != nil {
		model.Delete()
		return nil, err
	}
	opts := signature.Options{Threads: cfg.Threads}
	if delegate != nil {
		opts.Delegates = append(opts.Delegates, delegate)
	}
	interp, err := signature.NewInterpreter(model, opts)
	if err != nil {
		if delegate != nil {
			delegate.Delete()
		}
		model.Delete()
		return nil, err
	}

	s := &SignatureModel{
		cfg:      cfg,
		model:    model,
		interp:   interp,
		delegate: delegate,
		logger:   logger,
		runners:  map[string]*signature.Runner{},
	}
	keys := interp.Signatures()
	if len(keys) == 0 {
		s.Close()
		return nil, fmt.Errorf("%s exports no signature", cfg.Path)
	}
	if cfg.Signature != "" && !slices.Contains(keys, cfg.Signature) {
		s.Close()
		return nil, fmt.Errorf("%w: %q not in %v", signature.ErrUnknownSignature, cfg.Signature, keys)
	}
	logger.Info("model loaded", "kind", cfg.Kind, "signatures", keys, "delegate", cfg.Delegate)
	return s, nil
}

func (s *SignatureModel) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interp == nil {
		return
	}
	// the interpreter deletes its runners first
	s.interp.Delete()
	s.interp = nil
	s.runners = nil
	if s.delegate != nil {
		s.delegate.Delete()
		s.delegate = nil
	}
	s.model.Delete()
}

func (s *SignatureModel) Config() config.Model { return s.cfg }

// runner returns the allocated runner of key; the configured default
// signature is used when key is empty. Callers hold s.mu.
func (s *SignatureModel) runner(key string) (*signature.Runner, error) {
	if s.interp == nil {
		return nil, ErrClosed
	}
	if key == "" {
		key = s.cfg.Signature
	}
	if key == "" {
		key = s.interp.SignatureKey(0)
	}
	if r, ok := s.runners[key]; ok {
		return r, nil
	}
	r, err := s.interp.Runner(key)
	if err != nil {
		return nil, err
	}
	if err := r.AllocateTensors(); err != nil {
		return nil, err
	}
	s.runners[key] = r
	return r, nil
}

func tensorInfo(t *signature.Tensor) TensorInfo {
	return TensorInfo{Name: t.Name(), Shape: t.Shape(), Type: fmt.Sprint(t.Type())}
}

// Signatures describes every signature with its current tensor shapes.
func (s *SignatureModel) Signatures() ([]SignatureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interp == nil {
		return nil, ErrClosed
	}

	var infos []SignatureInfo
	for _, key := range s.interp.Signatures() {
		r, err := s.runner(key)
		if err != nil {
			return nil, err
		}
		info := SignatureInfo{Key: key, Inputs: []TensorInfo{}, Outputs: []TensorInfo{}}
		for _, name := range r.Inputs() {
			t, err := r.Input(name)
			if err != nil {
				return nil, err
			}
			ti := tensorInfo(t)
			ti.Name = name
			info.Inputs = append(info.Inputs, ti)
		}
		for _, name := range r.Outputs() {
			t, err := r.Output(name)
			if err != nil {
				return nil, err
			}
			ti := tensorInfo(t)
			ti.Name = name
			info.Outputs = append(info.Outputs, ti)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Invoke feeds inputs to the signature key, resizing inputs whose shape
// differs, and returns every output. A failed native call aborts the request.
func (s *SignatureModel) Invoke(key string, inputs map[string]TensorValue) (map[string]TensorValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.runner(key)
	if err != nil {
		return nil, err
	}

	for name := range inputs {
		if !slices.Contains(r.Inputs(), name) {
			return nil, fmt.Errorf("%w: input %q", signature.ErrUnknownTensor, name)
		}
	}

	resized := false
	for name, v := range inputs {
		if len(v.Shape) == 0 {
			continue
		}
		t, err := r.Input(name)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(t.Shape(), v.Shape) {
			if err := r.ResizeInput(name, v.Shape); err != nil {
				return nil, err
			}
			resized = true
		}
	}
	if resized {
		if err := r.AllocateTensors(); err != nil {
			return nil, err
		}
	}

	for _, name := range r.Inputs() {
		v, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing input %q", signature.ErrUnknownTensor, name)
		}
		t, err := r.Input(name)
		if err != nil {
			return nil, err
		}
		if err := t.SetFloat32s(v.Data); err != nil {
			return nil, err
		}
	}

	if err := r.Invoke(); err != nil {
		return nil, err
	}

	outputs := map[string]TensorValue{}
	for _, name := range r.Outputs() {
		t, err := r.Output(name)
		if err != nil {
			return nil, err
		}
		data, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		outputs[name] = TensorValue{Shape: t.Shape(), Data: data}
	}
	s.logger.Debug("signature invoked", "signature", r.Key(), "outputs", len(outputs))
	return outputs, nil
}
