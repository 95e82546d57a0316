// Package report assembles and writes the analysis artifact.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/autoflip/internal/types"
)

// Meta describes the run and the input video.
type Meta struct {
	InputPath         string
	OutputPath        string
	TargetAspectRatio string
	Width             int
	Height            int
	FrameCount        int
	FPS               float64
	SampleRate        int
}

// Build assembles the report from the sampled analyses and the smoothed crops.
func Build(meta Meta, analyses []types.FrameAnalysis, smoothed []types.SmoothedCrop) *types.AnalysisReport {
	if analyses == nil {
		analyses = []types.FrameAnalysis{}
	}
	if smoothed == nil {
		smoothed = []types.SmoothedCrop{}
	}
	return &types.AnalysisReport{
		InputPath:          meta.InputPath,
		OutputPath:         meta.OutputPath,
		TargetAspectRatio:  meta.TargetAspectRatio,
		OriginalDimensions: [2]int{meta.Width, meta.Height},
		FrameCount:         meta.FrameCount,
		FPS:                meta.FPS,
		SampleRate:         meta.SampleRate,
		FrameAnalyses:      analyses,
		SmoothedCrops:      smoothed,
		Stats:              Stats(analyses),
	}
}

// Stats aggregates detection counts and confidence over the sampled frames.
func Stats(analyses []types.FrameAnalysis) types.ProcessingStats {
	var st types.ProcessingStats
	if len(analyses) == 0 {
		return st
	}
	var sum float64
	for _, fa := range analyses {
		st.TotalFaces += len(fa.Salience.Faces)
		st.TotalPoses += len(fa.Salience.Poses)
		st.TotalHands += len(fa.Salience.Hands)
		sum += fa.Salience.Confidence
		if fa.Salience.Overall != nil {
			st.FramesWithSalientContent++
		}
	}
	st.AverageConfidence = sum / float64(len(analyses))
	return st
}

// Write serialises r as indented JSON to path. The file is written to a
// temporary sibling first so a failed run never leaves a partial document.
func Write(path string, r *types.AnalysisReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

// Read loads a report previously produced by Write.
func Read(path string) (*types.AnalysisReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r types.AnalysisReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
