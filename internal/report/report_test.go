package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analysis(frame, faces, poses int, conf float64, salient bool) types.FrameAnalysis {
	s := types.FrameSalience{
		Faces:      make([]types.SalientRegion, faces),
		Poses:      make([]types.SalientRegion, poses),
		Hands:      []types.SalientRegion{},
		Confidence: conf,
	}
	if salient {
		s.Overall = &types.OverallBBox{Normalized: types.BBox{W: 0.1, H: 0.1}, Absolute: []int{0, 0, 10, 10}}
	}
	return types.FrameAnalysis{FrameIndex: frame, Salience: s}
}

func TestStats(t *testing.T) {
	st := Stats([]types.FrameAnalysis{
		analysis(0, 2, 1, 0.9, true),
		analysis(10, 0, 0, 0, false),
		analysis(20, 1, 0, 0.6, true),
	})
	assert.Equal(t, 3, st.TotalFaces)
	assert.Equal(t, 1, st.TotalPoses)
	assert.Equal(t, 0, st.TotalHands)
	assert.Equal(t, 2, st.FramesWithSalientContent)
	assert.InDelta(t, 0.5, st.AverageConfidence, 1e-9)
}

func TestStats_Empty(t *testing.T) {
	assert.Equal(t, types.ProcessingStats{}, Stats(nil))
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "analysis.json")

	r := Build(Meta{
		InputPath:         "in.mp4",
		OutputPath:        out,
		TargetAspectRatio: "9:16",
		Width:             1920,
		Height:            1080,
		FrameCount:        300,
		FPS:               30,
		SampleRate:        30,
	}, []types.FrameAnalysis{analysis(0, 1, 0, 0.8, true)}, nil)

	require.NoError(t, Write(out, r))

	// Only the final file remains; the temp file was renamed.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{
		"input_path", "output_path", "target_aspect_ratio", "original_dimensions", "frame_count",
		"fps", "sample_rate", "frame_analyses", "smoothed_crops", "processing_stats",
	} {
		assert.Contains(t, doc, key)
	}
	assert.JSONEq(t, `[1920,1080]`, string(doc["original_dimensions"]))
	assert.JSONEq(t, `[]`, string(doc["smoothed_crops"]))

	back, err := Read(out)
	require.NoError(t, err)
	assert.Equal(t, 1, back.Stats.TotalFaces)
	require.NotNil(t, back.FrameAnalyses[0].Salience.Overall)
	assert.Equal(t, 0.1, back.FrameAnalyses[0].Salience.Overall.Normalized.W)
}

func TestWrite_MissingDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "analysis.json")
	err := Write(out, Build(Meta{}, nil, nil))
	assert.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
