// Package detector turns raw face, pose and hand detections into salient regions.
package detector

import (
	"github.com/andresmejia3/autoflip/internal/types"
)

const (
	// Pose landmarks at or below this visibility are ignored.
	poseVisibilityThreshold = 0.5
	// Padding added around the pose box, as a fraction of the frame.
	posePadding = 0.1

	// The pose and hand detectors expose no box-level score.
	poseConfidence = 0.9
	handConfidence = 0.8
)

// Backend is the external detection capability. Each call runs one independent
// detector over the same frame; all coordinates are normalized to [0,1].
type Backend interface {
	DetectFaces(frame types.Frame) ([]types.FaceDetection, error)
	// EstimatePose returns the full body landmark set, or nil when no body was found.
	EstimatePose(frame types.Frame) ([]types.Landmark, error)
	EstimateHands(frame types.Frame) ([]types.HandLandmarks, error)
}

// Adapter reduces Backend output to a FrameSalience.
type Adapter struct {
	backend Backend
}

// New returns an Adapter delegating to backend.
func New(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// Analyze runs the three detectors over frame. A frame with no detections is
// not an error; the returned salience simply has no OverallBBox.
func (a *Adapter) Analyze(frame types.Frame) (types.FrameSalience, error) {
	faces, err := a.backend.DetectFaces(frame)
	if err != nil {
		return types.FrameSalience{}, err
	}
	pose, err := a.backend.EstimatePose(frame)
	if err != nil {
		return types.FrameSalience{}, err
	}
	hands, err := a.backend.EstimateHands(frame)
	if err != nil {
		return types.FrameSalience{}, err
	}
	return Reduce(frame.Width, frame.Height, faces, pose, hands), nil
}

// Reduce builds a FrameSalience from raw detections on a width x height frame.
func Reduce(width, height int, faces []types.FaceDetection, pose []types.Landmark, hands []types.HandLandmarks) types.FrameSalience {
	s := types.FrameSalience{
		Faces: []types.SalientRegion{},
		Poses: []types.SalientRegion{},
		Hands: []types.SalientRegion{},
	}

	for _, f := range faces {
		box := types.BBox{X: f.BBox[0], Y: f.BBox[1], W: f.BBox[2], H: f.BBox[3]}
		s.Faces = append(s.Faces, types.SalientRegion{
			Kind:           types.KindFace,
			BBox:           box.Absolute(width, height),
			Confidence:     f.Score,
			NormalizedBBox: box,
		})
	}

	if box, ok := poseBox(pose); ok {
		s.Poses = append(s.Poses, types.SalientRegion{
			Kind:           types.KindPose,
			BBox:           box.Absolute(width, height),
			Confidence:     poseConfidence,
			NormalizedBBox: box,
			Landmarks:      pose,
		})
	}

	for _, h := range hands {
		box, ok := landmarkBounds(h.Landmarks)
		if !ok {
			continue
		}
		s.Hands = append(s.Hands, types.SalientRegion{
			Kind:           types.KindHand,
			HandType:       h.Type,
			BBox:           box.Absolute(width, height),
			Confidence:     handConfidence,
			NormalizedBBox: box,
			Landmarks:      h.Landmarks,
		})
	}

	regions := s.Regions()
	if len(regions) == 0 {
		return s
	}

	overall := regions[0].NormalizedBBox
	var total float64
	for _, r := range regions {
		overall = types.Union(overall, r.NormalizedBBox)
		total += r.Confidence
	}
	s.Overall = &types.OverallBBox{
		Normalized: overall,
		Absolute:   overall.Absolute(width, height),
	}
	// Unweighted mean across kinds.
	s.Confidence = total / float64(len(regions))
	return s
}

// poseBox returns the padded bounds of the visible pose landmarks.
func poseBox(landmarks []types.Landmark) (types.BBox, bool) {
	visible := make([]types.Landmark, 0, len(landmarks))
	for _, lm := range landmarks {
		if lm.Visibility != nil && *lm.Visibility > poseVisibilityThreshold {
			visible = append(visible, lm)
		}
	}
	box, ok := landmarkBounds(visible)
	if !ok {
		return types.BBox{}, false
	}

	minX := max(0, box.X-posePadding)
	minY := max(0, box.Y-posePadding)
	maxX := min(1, box.X+box.W+posePadding)
	maxY := min(1, box.Y+box.H+posePadding)
	return types.BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

// landmarkBounds is the union bounding box of the landmarks' (x, y) coordinates.
func landmarkBounds(landmarks []types.Landmark) (types.BBox, bool) {
	if len(landmarks) == 0 {
		return types.BBox{}, false
	}
	minX, minY := landmarks[0].X, landmarks[0].Y
	maxX, maxY := minX, minY
	for _, lm := range landmarks[1:] {
		minX, maxX = min(minX, lm.X), max(maxX, lm.X)
		minY, maxY = min(minY, lm.Y), max(maxY, lm.Y)
	}
	return types.BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}
