/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

// Package config loads the server configuration: listen address, logging and
// the models to serve.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpromonet/gin-tflite-vision/resize"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen  = ":8080"
	DefaultThreads = 4
	DefaultScore   = 0.5
	DefaultNMS     = 0.4
)

// Kind selects how a model's outputs are decoded.
type Kind string

const (
	KindEfficientDet Kind = "efficientdet"
	KindSSD          Kind = "ssd"
	KindYolo         Kind = "yolo"
	KindPoseNet      Kind = "posenet"
	KindSignature    Kind = "signature"
)

// Detector reports whether the kind produces boxes.
func (k Kind) Detector() bool {
	return k == KindEfficientDet || k == KindSSD || k == KindYolo
}

func (k Kind) valid() bool {
	return k.Detector() || k == KindPoseNet || k == KindSignature
}

// Delegate names the native backend the interpreter offloads to.
type Delegate string

const (
	DelegateNone    Delegate = "none"
	DelegateXNNPack Delegate = "xnnpack"
	DelegateEdgeTPU Delegate = "edgetpu"
)

type Model struct {
	Name      string   `yaml:"name" toml:"name"`
	Kind      Kind     `yaml:"kind" toml:"kind"`
	Path      string   `yaml:"path" toml:"path"`
	Labels    string   `yaml:"labels" toml:"labels"`
	Delegate  Delegate `yaml:"delegate" toml:"delegate"`
	Threads   int      `yaml:"threads" toml:"threads"`
	Aspect    string   `yaml:"aspect" toml:"aspect"`
	Score     float32  `yaml:"score" toml:"score"`
	NMS       float32  `yaml:"nms" toml:"nms"`
	Signature string   `yaml:"signature" toml:"signature"`

	AspectMode resize.AspectMode `yaml:"-" toml:"-"`
}

type Config struct {
	Listen   string  `yaml:"listen" toml:"listen"`
	Static   string  `yaml:"static" toml:"static"`
	LogLevel string  `yaml:"log_level" toml:"log_level"`
	Threads  int     `yaml:"threads" toml:"threads"`
	Models   []Model `yaml:"models" toml:"models"`

	Level slog.Level `yaml:"-" toml:"-"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate fills defaults and checks every model.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.LogLevel != "" {
		if err := c.Level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if len(c.Models) == 0 {
		return errors.New("no models configured")
	}

	seen := map[string]bool{}
	var errs []error
	for i := range c.Models {
		m := &c.Models[i]
		if err := m.validate(c.Threads); err != nil {
			errs = append(errs, fmt.Errorf("model %d (%s): %w", i, m.Name, err))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("model %d: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
	}
	return errors.Join(errs...)
}

func (m *Model) validate(threads int) error {
	if m.Name == "" {
		return errors.New("missing name")
	}
	if m.Path == "" {
		return errors.New("missing path")
	}
	m.Kind = Kind(strings.ToLower(string(m.Kind)))
	if m.Kind == "" {
		m.Kind = KindEfficientDet
	}
	if !m.Kind.valid() {
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	switch m.Delegate = Delegate(strings.ToLower(string(m.Delegate))); m.Delegate {
	case "":
		m.Delegate = DelegateNone
	case DelegateNone, DelegateXNNPack, DelegateEdgeTPU:
	default:
		return fmt.Errorf("unknown delegate %q", m.Delegate)
	}
	if m.Threads <= 0 {
		m.Threads = threads
	}

	if m.Aspect == "" {
		// detectors letterbox, PoseNet crops to its square input
		m.Aspect = resize.Fit.String()
		if m.Kind == KindPoseNet {
			m.Aspect = resize.Fill.String()
		}
	}
	mode, err := resize.ParseAspectMode(m.Aspect)
	if err != nil {
		return err
	}
	m.AspectMode = mode

	if m.Score == 0 {
		m.Score = DefaultScore
	}
	if m.NMS == 0 {
		m.NMS = DefaultNMS
	}
	if m.Score < 0 || m.Score > 1 {
		return fmt.Errorf("score %v out of [0,1]", m.Score)
	}
	if m.NMS < 0 || m.NMS > 1 {
		return fmt.Errorf("nms %v out of [0,1]", m.NMS)
	}
	return nil
}

// Find returns the model called name.
func (c *Config) Find(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}
