/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"fmt"
	"log/slog"

	"github.com/mpromonet/gin-tflite-vision/config"
)

// Registry holds every configured model by name.
type Registry struct {
	models     map[string]*Model
	signatures map[string]*SignatureModel
	order      []string
}

func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		models:     map[string]*Model{},
		signatures: map[string]*SignatureModel{},
	}
	for _, mc := range cfg.Models {
		if mc.Kind == config.KindSignature {
			s, err := NewSignatureModel(mc, logger)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("model %s: %w", mc.Name, err)
			}
			r.signatures[mc.Name] = s
		} else {
			m, err := NewModel(mc, logger)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("model %s: %w", mc.Name, err)
			}
			r.models[mc.Name] = m
		}
		r.order = append(r.order, mc.Name)
	}
	return r, nil
}

func (r *Registry) Close() {
	for _, m := range r.models {
		m.Close()
	}
	for _, s := range r.signatures {
		s.Close()
	}
}

// Model returns the image model called name.
func (r *Registry) Model(name string) (ImageModel, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	if _, ok := r.signatures[name]; ok {
		return nil, fmt.Errorf("%w: %s only exposes signatures", ErrWrongKind, name)
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

func (r *Registry) Signature(name string) (SignatureInvoker, error) {
	if s, ok := r.signatures[name]; ok {
		return s, nil
	}
	if _, ok := r.models[name]; ok {
		return nil, fmt.Errorf("%w: %s has no signature runner", ErrWrongKind, name)
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// FirstDetector is the model behind the legacy /runmodel endpoint.
func (r *Registry) FirstDetector() (ImageModel, error) {
	for _, name := range r.order {
		if m, ok := r.models[name]; ok && m.cfg.Kind.Detector() {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: no detector configured", ErrModelNotFound)
}

// Infos lists the models in configuration order.
func (r *Registry) Infos() []ModelInfo {
	infos := make([]ModelInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.Info(name)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

func (r *Registry) Info(name string) (ModelInfo, error) {
	if m, ok := r.models[name]; ok {
		return m.Info(), nil
	}
	s, ok := r.signatures[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	sigs, err := s.Signatures()
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Name:       s.cfg.Name,
		Kind:       s.cfg.Kind,
		Delegate:   s.cfg.Delegate,
		Aspect:     s.cfg.AspectMode,
		Signatures: sigs,
	}, nil
}
