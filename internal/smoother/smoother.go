// Package smoother interpolates crops between sampled frames.
package smoother

import (
	"github.com/andresmejia3/autoflip/internal/types"
)

// Smooth returns one crop per frame from the first to the last sampled frame.
// Crops between two samples are linearly interpolated and tagged
// MethodInterpolated; the last sample is appended with its own method.
// analyses must be ordered by frame index; a sample that does not advance the
// frame index is dropped so the earlier sample at that index wins.
func Smooth(analyses []types.FrameAnalysis, totalFrames int, fps float64) []types.SmoothedCrop {
	analyses = dedupe(analyses)
	if len(analyses) == 0 {
		return []types.SmoothedCrop{}
	}

	out := make([]types.SmoothedCrop, 0, expectedLen(analyses, totalFrames))
	for i := 0; i < len(analyses)-1; i++ {
		cur, next := analyses[i], analyses[i+1]
		span := next.FrameIndex - cur.FrameIndex
		for offset := 0; offset < span; offset++ {
			t := float64(offset) / float64(span)
			idx := cur.FrameIndex + offset
			out = append(out, types.SmoothedCrop{
				FrameIndex: idx,
				Timestamp:  timestamp(idx, fps),
				X:          lerpInt(cur.Crop.X, next.Crop.X, t),
				Y:          lerpInt(cur.Crop.Y, next.Crop.Y, t),
				Width:      lerpInt(cur.Crop.Width, next.Crop.Width, t),
				Height:     lerpInt(cur.Crop.Height, next.Crop.Height, t),
				Confidence: lerp(cur.Crop.Confidence, next.Crop.Confidence, t),
				Method:     types.MethodInterpolated,
			})
		}
	}

	last := analyses[len(analyses)-1]
	return append(out, types.SmoothedCrop{
		FrameIndex: last.FrameIndex,
		Timestamp:  last.Timestamp,
		X:          last.Crop.X,
		Y:          last.Crop.Y,
		Width:      last.Crop.Width,
		Height:     last.Crop.Height,
		Confidence: last.Crop.Confidence,
		Method:     last.Crop.Method,
	})
}

func dedupe(analyses []types.FrameAnalysis) []types.FrameAnalysis {
	kept := make([]types.FrameAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if n := len(kept); n > 0 && a.FrameIndex <= kept[n-1].FrameIndex {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// expectedLen is a capacity hint; totalFrames bounds it for bogus indices.
func expectedLen(analyses []types.FrameAnalysis, totalFrames int) int {
	n := analyses[len(analyses)-1].FrameIndex - analyses[0].FrameIndex + 1
	if totalFrames > 0 && n > totalFrames {
		n = totalFrames
	}
	return max(n, 1)
}

func timestamp(frame int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) / fps
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpInt truncates toward zero, which keeps interpolated windows inside the frame.
func lerpInt(a, b int, t float64) int {
	return int(lerp(float64(a), float64(b), t))
}
