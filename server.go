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
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mpromonet/gin-tflite-vision/config"
	"github.com/mpromonet/gin-tflite-vision/resize"
	"github.com/mpromonet/gin-tflite-vision/signature"
	"github.com/mpromonet/gin-tflite-vision/vision"
)

const maxImageBytes = 10 << 20

var (
	errBadImage   = errors.New("invalid image")
	errBadRequest = errors.New("invalid request")
)

// ImageModel runs images through a detector or pose model.
type ImageModel interface {
	Run(ctx context.Context, img image.Image, opts resize.Options, score *float32) (*Result, error)
	Config() config.Model
}

// SignatureInvoker runs the named signatures of a model.
type SignatureInvoker interface {
	Signatures() ([]SignatureInfo, error)
	Invoke(key string, inputs map[string]TensorValue) (map[string]TensorValue, error)
}

type ModelSource interface {
	Model(name string) (ImageModel, error)
	Signature(name string) (SignatureInvoker, error)
	FirstDetector() (ImageModel, error)
	Infos() []ModelInfo
	Info(name string) (ModelInfo, error)
}

type Server struct {
	models ModelSource
	logger *slog.Logger
}

func NewServer(models ModelSource, logger *slog.Logger) *Server {
	return &Server{models: models, logger: logger}
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Router builds the gin engine. staticDir, when it exists, is served at /.
func (s *Server) Router(staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	if staticDir != "" {
		if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
			r.Use(static.Serve("/", static.LocalFile(staticDir, false)))
		} else {
			s.logger.Warn("static directory not found", "dir", staticDir)
		}
	}

	r.GET("/health", s.health)
	r.GET("/models", s.listModels)
	r.GET("/models/:name", s.getModel)
	r.POST("/models/:name/detect", s.detect)
	r.POST("/models/:name/pose", s.pose)
	r.GET("/models/:name/signatures", s.listSignatures)
	r.POST("/models/:name/signatures/:key", s.invokeSignature)
	r.POST("/runmodel", s.runModel)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"))
	}
}

// fail maps err to a status code and writes the error envelope.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	var se *signature.StatusError
	switch {
	case errors.Is(err, ErrModelNotFound), errors.Is(err, signature.ErrUnknownSignature):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrWrongKind):
		status, code = http.StatusBadRequest, "wrong_kind"
	case errors.Is(err, errBadImage):
		status, code = http.StatusBadRequest, "invalid_image"
	case errors.Is(err, errBadRequest), errors.Is(err, resize.ErrUnknownAspectMode),
		errors.Is(err, signature.ErrUnknownTensor):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.As(err, &se), errors.Is(err, ErrInference):
		code = "inference_failed"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err, "request_id", c.GetString("request_id"))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code,
		Message:   err.Error(),
		RequestID: c.GetString("request_id"),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.models.Infos())
}

func (s *Server) getModel(c *gin.Context) {
	info, err := s.models.Info(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// runQuery carries the per-request resize options.
type runQuery struct {
	Rotation       float32  `form:"rotation"`
	FlipX          bool     `form:"flipx"`
	FlipY          bool     `form:"flipy"`
	CameraRotation float32  `form:"camera_rotation"`
	Mirrored       bool     `form:"mirrored"`
	Aspect         string   `form:"aspect"`
	Score          *float32 `form:"score" binding:"omitempty,gte=0,lte=1"`
}

func (q runQuery) options(def resize.AspectMode) (resize.Options, error) {
	opts := resize.Options{
		Rotation: q.Rotation,
		FlipX:    q.FlipX,
		FlipY:    q.FlipY,
		Aspect:   def,
	}
	if q.Aspect != "" {
		mode, err := resize.ParseAspectMode(q.Aspect)
		if err != nil {
			return opts, err
		}
		opts.Aspect = mode
	}
	return opts.WithCamera(q.CameraRotation, q.Mirrored), nil
}

// readImage decodes the request body, or its "image" form file, honouring
// the EXIF orientation.
func readImage(c *gin.Context) (image.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)

	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadImage, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadImage, err)
		}
		defer f.Close()
		r = f
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadImage, err)
	}
	return img, nil
}

// imageRun is an image request once served by a model.
type imageRun struct {
	query  runQuery
	img    image.Image
	result *Result
}

// runImage runs the image of the request through m.
func (s *Server) runImage(c *gin.Context, m ImageModel) (imageRun, bool) {
	var run imageRun
	if err := c.ShouldBindQuery(&run.query); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return run, false
	}
	opts, err := run.query.options(m.Config().AspectMode)
	if err != nil {
		s.fail(c, err)
		return run, false
	}
	img, err := readImage(c)
	if err != nil {
		s.fail(c, err)
		return run, false
	}
	run.img = img
	s.logger.Debug("image received", "model", m.Config().Name, "size", img.Bounds().Size(),
		"request_id", c.GetString("request_id"))

	run.result, err = m.Run(c.Request.Context(), img, opts, run.query.Score)
	if err != nil {
		s.fail(c, err)
		return run, false
	}
	return run, true
}

type DetectResponse struct {
	RequestID string        `json:"request_id"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Items     []vision.Item `json:"items"`
	Timings   Timings       `json:"timings"`
}

func (s *Server) detect(c *gin.Context) {
	m, err := s.models.Model(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !m.Config().Kind.Detector() {
		s.fail(c, fmt.Errorf("%w: %s is a %s model", ErrWrongKind, m.Config().Name, m.Config().Kind))
		return
	}
	run, ok := s.runImage(c, m)
	if !ok {
		return
	}
	items := run.result.Items
	if items == nil {
		items = []vision.Item{}
	}
	c.JSON(http.StatusOK, DetectResponse{
		RequestID: c.GetString("request_id"),
		Width:     run.img.Bounds().Dx(),
		Height:    run.img.Bounds().Dy(),
		Items:     items,
		Timings:   run.result.Timings,
	})
}

type PoseResponse struct {
	RequestID   string            `json:"request_id"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Keypoints   []vision.Keypoint `json:"keypoints"`
	Bones       []vision.Bone     `json:"bones"`
	Connections [][2]vision.Part  `json:"connections"`
	Timings     Timings           `json:"timings"`
}

func (s *Server) pose(c *gin.Context) {
	m, err := s.models.Model(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if m.Config().Kind != config.KindPoseNet {
		s.fail(c, fmt.Errorf("%w: %s is a %s model", ErrWrongKind, m.Config().Name, m.Config().Kind))
		return
	}
	run, ok := s.runImage(c, m)
	if !ok {
		return
	}
	threshold := m.Config().Score
	if run.query.Score != nil {
		threshold = *run.query.Score
	}
	c.JSON(http.StatusOK, PoseResponse{
		RequestID:   c.GetString("request_id"),
		Width:       run.img.Bounds().Dx(),
		Height:      run.img.Bounds().Dy(),
		Keypoints:   run.result.Keypoints,
		Bones:       vision.Bones(run.result.Keypoints, threshold),
		Connections: vision.Connections,
		Timings:     run.result.Timings,
	})
}

// runModel serves the single-model endpoint: the body is an image,
// the answer a bare list of items.
func (s *Server) runModel(c *gin.Context) {
	m, err := s.models.FirstDetector()
	if err != nil {
		s.fail(c, err)
		return
	}
	run, ok := s.runImage(c, m)
	if !ok {
		return
	}
	items := run.result.Items
	if items == nil {
		items = []vision.Item{}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) listSignatures(c *gin.Context) {
	sm, err := s.models.Signature(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	infos, err := sm.Signatures()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

type InvokeRequest struct {
	Inputs map[string]TensorValue `json:"inputs" binding:"required"`
}

type InvokeResponse struct {
	RequestID string                 `json:"request_id"`
	Signature string                 `json:"signature"`
	Outputs   map[string]TensorValue `json:"outputs"`
}

func (s *Server) invokeSignature(c *gin.Context) {
	sm, err := s.models.Signature(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	key := c.Param("key")
	outputs, err := sm.Invoke(key, req.Inputs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, InvokeResponse{
		RequestID: c.GetString("request_id"),
		Signature: key,
		Outputs:   outputs,
	})
}
