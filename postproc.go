/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

package main

import (
	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"

	"github.com/mpromonet/gin-tflite-vision/vision"
)

// PostProcessing turns the output tensors of a detector into boxes in pixels
// of a width×height input.
type PostProcessing interface {
	extractResult(interp *tflite.Interpreter, scoreTh float32, width float32, height float32) (vision.Candidates, error)
	// suppress reports whether overlapping boxes still need NMS.
	suppress() bool
}

func nonMaxSuppression(c vision.Candidates, scoreTh float32, nmsTh float32) vision.Candidates {
	var kept vision.Candidates
	if c.Len() == 0 {
		return kept
	}
	indices := make([]int, c.Len())
	for i := range indices {
		indices[i] = -1
	}
	gocv.NMSBoxes(c.Boxes, c.Scores, scoreTh, nmsTh, indices)

	for _, idx := range indices {
		if idx >= 0 {
			kept.Add(c.Boxes[idx], c.Scores[idx], c.Classes[idx])
		}
	}
	return kept
}

func detectionsToCandidates(detections []vision.Detection, width, height float32) vision.Candidates {
	var c vision.Candidates
	for _, d := range detections {
		c.Add(d.Rect.Pixels(int(width), int(height)), d.Score, d.ClassID)
	}
	return c
}
