/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

// Package resize maps camera frames of any shape into the fixed-size input
// of a vision model: aspect correction, rotation and mirroring.
package resize

import (
	"errors"
	"fmt"
	"strings"

	"cogentcore.org/core/math32"
)

// AspectMode reconciles the width/height ratio of a source image with the
// ratio of the destination.
type AspectMode int

const (
	// None stretches the source over the destination.
	None AspectMode = iota
	// Fit letterboxes: the whole source stays visible.
	Fit
	// Fill crops: the destination is covered entirely.
	Fill
)

// ErrUnknownAspectMode is returned for an AspectMode value outside the
// declared constants. Seeing it means a caller built the mode by hand.
var ErrUnknownAspectMode = errors.New("unknown aspect mode")

var aspectNames = [...]string{None: "none", Fit: "fit", Fill: "fill"}

func (m AspectMode) String() string {
	if m < 0 || int(m) >= len(aspectNames) {
		return fmt.Sprintf("AspectMode(%d)", int(m))
	}
	return aspectNames[m]
}

// ParseAspectMode parses "none", "fit" or "fill" (any case). The empty string
// is None.
func ParseAspectMode(s string) (AspectMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for i, name := range aspectNames {
		if s == name {
			return AspectMode(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownAspectMode, s)
}

func (m AspectMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(aspectNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAspectMode, int(m))
	}
	return []byte(aspectNames[m]), nil
}

func (m *AspectMode) UnmarshalText(text []byte) error {
	v, err := ParseAspectMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UVRect returns how normalized texture coordinates are remapped when an
// image of srcAspect is drawn into a viewport of dstAspect: X and Y hold the
// scale, Z and W the offset. Both aspects are width/height and must be
// positive.
func UVRect(srcAspect, dstAspect float32, mode AspectMode) (math32.Vector4, error) {
	switch mode {
	case None:
		return math32.Vec4(1, 1, 0, 0), nil
	case Fit:
		if srcAspect > dstAspect {
			s := srcAspect / dstAspect
			return math32.Vec4(1, s, 0, (1-s)/2), nil
		}
		s := dstAspect / srcAspect
		return math32.Vec4(s, 1, (1-s)/2, 0), nil
	case Fill:
		if srcAspect > dstAspect {
			s := dstAspect / srcAspect
			return math32.Vec4(s, 1, (1-s)/2, 0), nil
		}
		s := srcAspect / dstAspect
		return math32.Vec4(1, s, 0, (1-s)/2), nil
	}
	return math32.Vector4{}, fmt.Errorf("%w: %d", ErrUnknownAspectMode, int(mode))
}
