package types

import (
	"encoding/json"
	"fmt"
)

// RegionKind identifies which detector produced a salient region.
type RegionKind string

const (
	KindFace RegionKind = "face"
	KindPose RegionKind = "pose"
	KindHand RegionKind = "hand"
)

// CropMethod records how a crop rectangle was obtained.
type CropMethod string

const (
	MethodAutoflipSalient    CropMethod = "autoflip_salient"
	MethodCenterCropFallback CropMethod = "center_crop_fallback"
	MethodInterpolated       CropMethod = "interpolated"
)

// Frame is a single decoded frame handed to the detector.
type Frame struct {
	Index  int
	Width  int
	Height int
	Data   []byte // JPEG encoded
}

// BBox is an axis-aligned box in normalized [0,1] coordinates.
type BBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// Slice returns the box as [x, y, w, h] (the report format).
func (b BBox) Slice() []float64 {
	return []float64{b.X, b.Y, b.W, b.H}
}

// MarshalJSON encodes the box as [x, y, w, h].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Slice())
}

// UnmarshalJSON decodes a box from [x, y, w, h].
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox: expected 4 values, got %d", len(v))
	}
	*b = BBox{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// Center returns the normalized center point of the box.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Absolute converts the box to pixel [x, y, w, h] for a frame of the given size.
func (b BBox) Absolute(width, height int) []int {
	return []int{
		int(b.X * float64(width)),
		int(b.Y * float64(height)),
		int(b.W * float64(width)),
		int(b.H * float64(height)),
	}
}

// Union returns the smallest box containing both a and b.
func Union(a, b BBox) BBox {
	minX, minY := min(a.X, b.X), min(a.Y, b.Y)
	maxX, maxY := max(a.X+a.W, b.X+b.W), max(a.Y+a.H, b.Y+b.H)
	return BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Landmark is a single normalized keypoint. Visibility is only reported for pose landmarks.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// SalientRegion is one area of a frame that should survive cropping.
type SalientRegion struct {
	Kind           RegionKind `json:"-"`
	HandType       string     `json:"type,omitempty"`
	BBox           []int      `json:"bbox"` // absolute [x, y, w, h]
	Confidence     float64    `json:"confidence"`
	NormalizedBBox BBox       `json:"normalized_bbox"`
	Landmarks      []Landmark `json:"landmarks,omitempty"`
}

// OverallBBox is the union of every region of a frame.
type OverallBBox struct {
	Normalized BBox  `json:"normalized"`
	Absolute   []int `json:"absolute"`
}

// FrameSalience aggregates the regions found in one sampled frame.
type FrameSalience struct {
	Faces      []SalientRegion `json:"faces"`
	Poses      []SalientRegion `json:"poses"`
	Hands      []SalientRegion `json:"hands"`
	Overall    *OverallBBox    `json:"overall_bbox"`
	Confidence float64         `json:"confidence"`
}

// Regions returns faces, poses and hands in that order.
func (s FrameSalience) Regions() []SalientRegion {
	all := make([]SalientRegion, 0, len(s.Faces)+len(s.Poses)+len(s.Hands))
	all = append(all, s.Faces...)
	all = append(all, s.Poses...)
	return append(all, s.Hands...)
}

// CropRect is a crop window in pixels.
type CropRect struct {
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Confidence float64    `json:"confidence"`
	Method     CropMethod `json:"method"`

	// Only set for MethodAutoflipSalient.
	CenterX     *float64  `json:"center_x,omitempty"`
	CenterY     *float64  `json:"center_y,omitempty"`
	SalientBBox []float64 `json:"salient_bbox,omitempty"`
}

// FrameAnalysis is the full result for one sampled frame.
type FrameAnalysis struct {
	FrameIndex int           `json:"frame_idx"`
	Timestamp  float64       `json:"timestamp"`
	Salience   FrameSalience `json:"salient_regions"`
	Crop       CropRect      `json:"crop_info"`
}

// SmoothedCrop is the crop applied to a single frame after interpolation.
type SmoothedCrop struct {
	FrameIndex int        `json:"frame_idx"`
	Timestamp  float64    `json:"timestamp"`
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Confidence float64    `json:"confidence"`
	Method     CropMethod `json:"method"`
}

// ProcessingStats summarises an analysis run.
type ProcessingStats struct {
	TotalFaces               int     `json:"total_faces_detected"`
	TotalPoses               int     `json:"total_poses_detected"`
	TotalHands               int     `json:"total_hands_detected"`
	AverageConfidence        float64 `json:"average_confidence"`
	FramesWithSalientContent int     `json:"frames_with_salient_content"`
}

// AnalysisReport is the JSON artifact written at the end of a run.
type AnalysisReport struct {
	InputPath          string          `json:"input_path"`
	OutputPath         string          `json:"output_path"`
	TargetAspectRatio  string          `json:"target_aspect_ratio"`
	OriginalDimensions [2]int          `json:"original_dimensions"`
	FrameCount         int             `json:"frame_count"`
	FPS                float64         `json:"fps"`
	SampleRate         int             `json:"sample_rate"`
	FrameAnalyses      []FrameAnalysis `json:"frame_analyses"`
	SmoothedCrops      []SmoothedCrop  `json:"smoothed_crops"`
	Stats              ProcessingStats `json:"processing_stats"`
}

// --- Detector process payloads ---

// FaceDetection is a face box reported by the detector process.
type FaceDetection struct {
	BBox  [4]float64 `json:"bbox"` // normalized [xmin, ymin, width, height]
	Score float64    `json:"score"`
}

// HandLandmarks holds the landmarks of one hand; Type is "left" or "right".
type HandLandmarks struct {
	Type      string     `json:"type"`
	Landmarks []Landmark `json:"landmarks"`
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}
