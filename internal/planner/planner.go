// Package planner computes a single-axis crop window for a frame.
package planner

import (
	"math"
	"slices"

	"github.com/andresmejia3/autoflip/internal/types"
)

// DefaultAspectRatio is used for labels that are not recognised.
const DefaultAspectRatio = "9:16"

// fallbackConfidence marks crops that were not guided by any detection.
const fallbackConfidence = 0.1

var aspectRatios = map[string]float64{
	"9:16": 9.0 / 16.0,
	"16:9": 16.0 / 9.0,
	"1:1":  1.0,
	"4:3":  4.0 / 3.0,
}

// AspectRatioLabels lists the supported target labels.
func AspectRatioLabels() []string {
	labels := make([]string, 0, len(aspectRatios))
	for l := range aspectRatios {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// IsValidAspectRatio reports whether label is one of the supported targets.
func IsValidAspectRatio(label string) bool {
	_, ok := aspectRatios[label]
	return ok
}

// TargetRatio returns width/height for label, defaulting to portrait 9:16.
func TargetRatio(label string) float64 {
	if r, ok := aspectRatios[label]; ok {
		return r
	}
	return aspectRatios[DefaultAspectRatio]
}

// Plan returns the crop for a frameWidth x frameHeight frame. Exactly one axis is
// reduced; the window is centered on the salient union box when there is one and
// on the frame otherwise.
func Plan(frameWidth, frameHeight int, salience types.FrameSalience, label string) types.CropRect {
	target := TargetRatio(label)
	current := float64(frameWidth) / float64(frameHeight)
	cropWidth, cropHeight := cropSize(frameWidth, frameHeight, target, current)

	if salience.Overall == nil {
		return types.CropRect{
			X:          (frameWidth - cropWidth) / 2,
			Y:          (frameHeight - cropHeight) / 2,
			Width:      cropWidth,
			Height:     cropHeight,
			Confidence: fallbackConfidence,
			Method:     types.MethodCenterCropFallback,
		}
	}

	box := salience.Overall.Normalized
	cx, cy := box.Center()

	var x, y int
	if target < current {
		x = clamp(int(math.Round(cx*float64(frameWidth)-float64(cropWidth)/2)), 0, frameWidth-cropWidth)
	} else {
		y = clamp(int(math.Round(cy*float64(frameHeight)-float64(cropHeight)/2)), 0, frameHeight-cropHeight)
	}

	return types.CropRect{
		X:           x,
		Y:           y,
		Width:       cropWidth,
		Height:      cropHeight,
		Confidence:  salience.Confidence,
		Method:      types.MethodAutoflipSalient,
		CenterX:     &cx,
		CenterY:     &cy,
		SalientBBox: box.Slice(),
	}
}

// cropSize keeps the full height when the target is narrower than the frame and
// the full width otherwise.
func cropSize(frameWidth, frameHeight int, target, current float64) (int, int) {
	if target < current {
		w := clamp(int(math.Round(float64(frameHeight)*target)), 1, frameWidth)
		return w, frameHeight
	}
	h := clamp(int(math.Round(float64(frameWidth)/target)), 1, frameHeight)
	return frameWidth, h
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
