/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"cogentcore.org/core/math32"
	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/mattn/go-tflite/delegates/xnnpack"

	"github.com/mpromonet/gin-tflite-vision/config"
	"github.com/mpromonet/gin-tflite-vision/resize"
	"github.com/mpromonet/gin-tflite-vision/signature"
	"github.com/mpromonet/gin-tflite-vision/vision"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrWrongKind     = errors.New("operation not supported by this model")
	ErrClosed        = errors.New("model closed")
	ErrInference     = errors.New("inference failed")
)

// Timings of one inference request.
type Timings struct {
	Resize      time.Duration `json:"resize"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
}

// Result of running an image through a model. Items are in source pixels,
// keypoints normalized to the source image.
type Result struct {
	Items     []vision.Item     `json:"items,omitempty"`
	Keypoints []vision.Keypoint `json:"keypoints,omitempty"`
	Timings   Timings           `json:"timings"`
}

type request struct {
	ctx   context.Context
	img   image.Image
	opts  resize.Options
	score float32
	reply chan response
}

type response struct {
	result *Result
	err    error
}

// Model serves one interpreter. The interpreter and the resizer are only
// touched by the worker goroutine.
type Model struct {
	cfg      config.Model
	model    *tflite.Model
	interp   *tflite.Interpreter
	delegate tflite.Delegater
	labels   []string
	post     PostProcessing
	resizer  *resize.Resizer
	logger   *slog.Logger

	inputShape []int
	inputType  tflite.TensorType

	mu     sync.RWMutex
	closed bool
	jobs   chan request
	done   chan struct{}
}

func newDelegate(kind config.Delegate, threads int, logger *slog.Logger) (tflite.Delegater, error) {
	switch kind {
	case config.DelegateXNNPack:
		d := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(threads)})
		if d == nil {
			return nil, errors.New("cannot create xnnpack delegate")
		}
		return d, nil
	case config.DelegateEdgeTPU:
		devices, err := edgetpu.DeviceList()
		if err != nil {
			logger.Warn("could not get EdgeTPU devices", "err", err)
		}
		if len(devices) == 0 {
			logger.Warn("no edge TPU devices found, running on CPU")
			return nil, nil
		}
		d := edgetpu.New(devices[0])
		if d == nil {
			return nil, errors.New("cannot create edgetpu delegate")
		}
		return d, nil
	}
	return nil, nil
}

func NewModel(cfg config.Model, logger *slog.Logger) (*Model, error) {
	logger = logger.With("model", cfg.Name)

	m := &Model{
		cfg:     cfg,
		resizer: resize.NewResizer(),
		logger:  logger,
		jobs:    make(chan request),
		done:    make(chan struct{}),
	}
	switch cfg.Kind {
	case config.KindEfficientDet:
		m.post = EfficientDetPostProcessing{}
	case config.KindSSD:
		m.post = SsdPostProcessing{}
	case config.KindYolo:
		m.post = YoloPostProcessing{}
	case config.KindPoseNet:
	default:
		return nil, fmt.Errorf("%s: %w: kind %s", cfg.Name, ErrWrongKind, cfg.Kind)
	}

	if cfg.Labels != "" {
		labels, err := vision.LoadLabelsFile(cfg.Labels)
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		m.labels = labels
	}

	m.model = tflite.NewModelFromFile(cfg.Path)
	if m.model == nil {
		return nil, fmt.Errorf("cannot load model %s", cfg.Path)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	options.SetNumThread(cfg.Threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Error("tflite", "msg", msg)
	}, nil)

	delegate, err := newDelegate(cfg.Delegate, cfg.Threads, logger)
	if err != nil {
		m.model.Delete()
		return nil, err
	}
	if delegate != nil {
		options.AddDelegate(delegate)
		m.delegate = delegate
	}

	m.interp = tflite.NewInterpreter(m.model, options)
	if m.interp == nil {
		m.release()
		return nil, errors.New("cannot create interpreter")
	}
	if status := m.interp.AllocateTensors(); status != tflite.OK {
		m.release()
		return nil, &signature.StatusError{Op: "allocate tensors", Status: status}
	}

	input := m.interp.GetInputTensor(0)
	if input.NumDims() != 4 {
		m.release()
		return nil, fmt.Errorf("unexpected input shape %v", getTensorShape(input))
	}
	m.inputShape = getTensorShape(input)
	m.inputType = input.Type()
	logger.Info("model loaded", "kind", cfg.Kind, "input", m.inputShape,
		"type", input.Type(), "delegate", cfg.Delegate, "aspect", cfg.AspectMode)

	go m.modelWorker()
	return m, nil
}

func (m *Model) release() {
	if m.interp != nil {
		m.interp.Delete()
		m.interp = nil
	}
	if m.delegate != nil {
		m.delegate.Delete()
		m.delegate = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}

// Close stops the worker once pending requests are served, then frees the
// native resources.
func (m *Model) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()

	<-m.done
	m.release()
}

func (m *Model) Config() config.Model { return m.cfg }

func (m *Model) Labels() []string { return m.labels }

// Run resizes img into the model input following opts, invokes the model and
// decodes its outputs. A non-nil score overrides the configured threshold.
func (m *Model) Run(ctx context.Context, img image.Image, opts resize.Options, score *float32) (*Result, error) {
	req := request{ctx: ctx, img: img, opts: opts, score: m.threshold(score), reply: make(chan response, 1)}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case m.jobs <- req:
		m.mu.RUnlock()
	case <-ctx.Done():
		m.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// threshold resolves a per-request score against the configured one. An
// explicit zero keeps every candidate.
func (m *Model) threshold(score *float32) float32 {
	if score == nil {
		return m.cfg.Score
	}
	return *score
}

func (m *Model) modelWorker() {
	defer close(m.done)
	for req := range m.jobs {
		if err := req.ctx.Err(); err != nil {
			req.reply <- response{err: err}
			continue
		}
		result, err := m.safeProcess(req)
		req.reply <- response{result: result, err: err}
	}
}

// safeProcess turns a panic while decoding into an error for the request, so
// the worker keeps serving.
func (m *Model) safeProcess(req request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("inference panicked", "panic", r)
			result, err = nil, fmt.Errorf("%w: %v", ErrInference, r)
		}
	}()
	return m.process(req)
}

func (m *Model) process(req request) (*Result, error) {
	var timings Timings

	input := m.interp.GetInputTensor(0)
	opts := req.opts
	opts.Height = input.Dim(1)
	opts.Width = input.Dim(2)

	start := time.Now()
	resized, err := m.resizer.Resize(req.img, opts)
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	if err := fillInput(input, resized, m.normalizer()); err != nil {
		return nil, fmt.Errorf("fill input: %w", err)
	}
	timings.Resize = time.Since(start)

	start = time.Now()
	if status := m.interp.Invoke(); status != tflite.OK {
		return nil, &signature.StatusError{Op: "invoke", Status: status}
	}
	timings.Inference = time.Since(start)

	start = time.Now()
	bounds := req.img.Bounds()
	toTarget, err := resize.SourceToTarget(bounds, opts)
	if err != nil {
		return nil, err
	}
	toSource := toTarget.Inverse()

	result := &Result{}
	if m.post != nil {
		c, err := m.post.extractResult(m.interp, req.score, float32(opts.Width), float32(opts.Height))
		if err != nil {
			return nil, fmt.Errorf("postprocess: %w", err)
		}
		if m.post.suppress() {
			c = nonMaxSuppression(c, req.score, m.cfg.NMS)
		}
		result.Items = mapItems(c, toSource, bounds, m.labels)
	} else {
		keypoints, err := m.extractPose(float32(opts.Width), float32(opts.Height))
		if err != nil {
			return nil, fmt.Errorf("postprocess: %w", err)
		}
		result.Keypoints = mapKeypoints(keypoints, toSource, bounds, opts.Width, opts.Height)
	}
	timings.Postprocess = time.Since(start)
	result.Timings = timings

	m.logger.Debug("inference done", "resize", timings.Resize, "inference", timings.Inference,
		"postprocess", timings.Postprocess, "items", len(result.Items))
	return result, nil
}

// mapItems converts boxes in model input pixels to labelled items in source
// pixels, clipped to bounds.
func mapItems(c vision.Candidates, toSource math32.Matrix2, bounds image.Rectangle, labels []string) []vision.Item {
	items := make([]vision.Item, 0, c.Len())
	for i := range c.Boxes {
		items = append(items, vision.Item{
			Box:       resize.MapRect(toSource, c.Boxes[i]).Intersect(bounds),
			Score:     c.Scores[i],
			ClassID:   c.Classes[i],
			ClassName: vision.Label(labels, c.Classes[i]),
		})
	}
	return items
}

// mapKeypoints converts keypoints normalized to a width×height input into
// keypoints normalized to the source bounds.
func mapKeypoints(keypoints []vision.Keypoint, toSource math32.Matrix2, bounds image.Rectangle, width, height int) []vision.Keypoint {
	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	mapped := make([]vision.Keypoint, len(keypoints))
	for i, kp := range keypoints {
		p := toSource.MulVector2AsPoint(math32.Vec2(kp.X*float32(width), kp.Y*float32(height)))
		kp.X = (p.X - float32(bounds.Min.X)) / w
		kp.Y = (p.Y - float32(bounds.Min.Y)) / h
		mapped[i] = kp
	}
	return mapped
}

// normalizer maps a byte channel to the float range the model was trained on.
func (m *Model) normalizer() func(uint8) float32 {
	if m.cfg.Kind == config.KindPoseNet {
		return func(v uint8) float32 { return (float32(v) - 127.5) / 127.5 }
	}
	return func(v uint8) float32 { return float32(v) / 255 }
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Name       string            `json:"name"`
	Kind       config.Kind       `json:"kind"`
	Delegate   config.Delegate   `json:"delegate"`
	Aspect     resize.AspectMode `json:"aspect"`
	Input      []int             `json:"input,omitempty"`
	InputType  string            `json:"input_type,omitempty"`
	Labels     int               `json:"labels,omitempty"`
	Signatures []SignatureInfo   `json:"signatures,omitempty"`
}

func (m *Model) Info() ModelInfo {
	return ModelInfo{
		Name:      m.cfg.Name,
		Kind:      m.cfg.Kind,
		Delegate:  m.cfg.Delegate,
		Aspect:    m.cfg.AspectMode,
		Input:     m.inputShape,
		InputType: fmt.Sprint(m.inputType),
		Labels:    len(m.labels),
	}
}
