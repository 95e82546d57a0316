package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/autoflip/internal/detector"
	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/andresmejia3/autoflip/internal/utils"
)

// fakeBackend returns one centred face on every frame listed in faceFrames.
type fakeBackend struct {
	faceFrames map[int]bool
	failOn     int
	calls      []int
}

func (f *fakeBackend) DetectFaces(frame types.Frame) ([]types.FaceDetection, error) {
	f.calls = append(f.calls, frame.Index)
	if frame.Index == f.failOn {
		return nil, errors.New("broken pipe")
	}
	if f.faceFrames[frame.Index] {
		return []types.FaceDetection{{BBox: [4]float64{0.4, 0.4, 0.2, 0.2}, Score: 0.95}}, nil
	}
	return nil, nil
}

func (f *fakeBackend) EstimatePose(types.Frame) ([]types.Landmark, error) { return nil, nil }

func (f *fakeBackend) EstimateHands(types.Frame) ([]types.HandLandmarks, error) { return nil, nil }

// mjpegStream concatenates n fake JPEG images.
func mjpegStream(n int) *bytes.Buffer {
	buf := new(bytes.Buffer)
	for i := 0; i < n; i++ {
		buf.Write(utils.JpegSOI)
		buf.Write([]byte{byte(i), 0x00, 0x01})
		buf.Write(utils.JpegEOI)
	}
	return buf
}

func TestSamplingInterval(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		sampleRate int
		want       int
	}{
		{"300 frames at 30", 300, 30, 10},
		{"fewer frames than samples", 10, 30, 1},
		{"unknown frame count", 0, 30, 1},
		{"floor division", 95, 30, 3},
		{"invalid rate", 100, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := samplingInterval(tt.total, tt.sampleRate); got != tt.want {
				t.Errorf("samplingInterval(%d, %d) = %d, want %d", tt.total, tt.sampleRate, got, tt.want)
			}
		})
	}
}

func TestAnalyzerRun(t *testing.T) {
	backend := &fakeBackend{faceFrames: map[int]bool{0: true}, failOn: -1}
	decoded := 0
	var sampled []int
	a := &analyzer{
		adapter:  detector.New(backend),
		width:    1920,
		height:   1080,
		fps:      30,
		interval: 3,
		aspect:   "9:16",
		onFrame:  func() { decoded++ },
		onSample: func(fa types.FrameAnalysis, frame []byte) error {
			sampled = append(sampled, fa.FrameIndex)
			if len(frame) == 0 {
				t.Errorf("Frame %d: empty image handed to callback", fa.FrameIndex)
			}
			return nil
		},
	}

	analyses, n, err := a.run(mjpegStream(10))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n != 10 || decoded != 10 {
		t.Errorf("Expected 10 decoded frames, got %d (callback %d)", n, decoded)
	}

	want := []int{0, 3, 6, 9}
	if len(analyses) != len(want) {
		t.Fatalf("Expected %d analyses, got %d", len(want), len(analyses))
	}
	for i, fa := range analyses {
		if fa.FrameIndex != want[i] || sampled[i] != want[i] || backend.calls[i] != want[i] {
			t.Errorf("Sample %d: expected frame %d, got %d", i, want[i], fa.FrameIndex)
		}
	}

	first := analyses[0]
	if first.Crop.Method != types.MethodAutoflipSalient {
		t.Errorf("Expected salient crop on frame 0, got %s", first.Crop.Method)
	}
	if first.Crop.X != 656 || first.Crop.Width != 608 || first.Crop.Height != 1080 {
		t.Errorf("Unexpected crop %+v", first.Crop)
	}
	if analyses[1].Crop.Method != types.MethodCenterCropFallback {
		t.Errorf("Expected fallback crop on frame 3, got %s", analyses[1].Crop.Method)
	}
	if analyses[3].Timestamp != 0.3 {
		t.Errorf("Expected timestamp 0.3 for frame 9, got %v", analyses[3].Timestamp)
	}
}

func TestAnalyzerRun_DetectorFailure(t *testing.T) {
	a := &analyzer{
		adapter:  detector.New(&fakeBackend{failOn: 2}),
		width:    640,
		height:   480,
		interval: 1,
		aspect:   "1:1",
	}

	_, _, err := a.run(mjpegStream(5))
	if !errors.Is(err, errDetector) {
		t.Fatalf("Expected detector failure, got %v", err)
	}
}

func TestAnalyzerRun_EmptyStream(t *testing.T) {
	a := &analyzer{
		adapter:  detector.New(&fakeBackend{failOn: -1}),
		width:    640,
		height:   480,
		interval: 1,
		aspect:   "1:1",
	}

	analyses, n, err := a.run(new(bytes.Buffer))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n != 0 || len(analyses) != 0 {
		t.Errorf("Expected nothing decoded, got %d frames and %d analyses", n, len(analyses))
	}
}

func TestValidateAnalyzeFlags(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	if err := os.WriteFile(video, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{InputPath: video, OutputPath: filepath.Join(dir, "out.json"), AspectRatio: "9:16", SampleRate: 30}, false},
		{"missing input", Options{InputPath: filepath.Join(dir, "nope.mp4"), OutputPath: "out.json", AspectRatio: "9:16", SampleRate: 30}, true},
		{"bad aspect", Options{InputPath: video, OutputPath: "out.json", AspectRatio: "3:2", SampleRate: 30}, true},
		{"zero sample rate", Options{InputPath: video, OutputPath: "out.json", AspectRatio: "1:1", SampleRate: 0}, true},
		{"output is input", Options{InputPath: video, OutputPath: video, AspectRatio: "1:1", SampleRate: 30}, true},
		{"debug dir created", Options{InputPath: video, OutputPath: "out.json", AspectRatio: "1:1", SampleRate: 5, DebugFrames: filepath.Join(dir, "debug")}, false},
		{"bad aspect with debug dir", Options{InputPath: video, OutputPath: "out.json", AspectRatio: "4:5", SampleRate: 5, DebugFrames: filepath.Join(dir, "rejected")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAnalyzeFlags(&tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAnalyzeFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "debug")); err != nil {
		t.Errorf("Expected debug directory to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rejected")); !os.IsNotExist(err) {
		t.Errorf("Expected no debug directory for rejected flags, got %v", err)
	}
}

func TestValidateAnalyzeFlags_MissingInputIsTyped(t *testing.T) {
	opts := Options{InputPath: "/definitely/not/here.mp4", OutputPath: "out.json", AspectRatio: "9:16", SampleRate: 30}
	if err := validateAnalyzeFlags(&opts); !errors.Is(err, utils.ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}
}

func TestFmtTime(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "00:00:00"},
		{59.9, "00:00:59"},
		{61, "00:01:01"},
		{3661, "01:01:01"},
	}

	for _, tt := range tests {
		if got := fmtTime(tt.input); got != tt.expected {
			t.Errorf("fmtTime(%v) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}
