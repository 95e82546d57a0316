package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrInputNotFound is returned when the input video path does not exist.
	ErrInputNotFound = errors.New("input file does not exist")
	// ErrUnopenableVideo is returned when ffprobe cannot read a video stream from the input.
	ErrUnopenableVideo = errors.New("could not open video file")
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// The process is killed when ctx is cancelled.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps the detector's logs if a SafeCommand is provided.
func ShowError(title string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 AUTOFLIP ERROR: %s\n", title)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nDETECTOR LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// ValidateInput checks that path names an existing regular file.
func ValidateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a video file: %s", path)
	}
	return nil
}

// --- 2. Video Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// VideoInfo is the stream metadata the analysis depends on.
type VideoInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 when neither the container nor a packet count could tell
}

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Tags          struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// ProbeVideo reads dimensions, frame rate and frame count of the first video stream.
// Any failure to read the stream is reported as ErrUnopenableVideo.
func ProbeVideo(ctx context.Context, ffprobe, path string) (VideoInfo, error) {
	if _, err := exec.LookPath(ffprobe); err != nil {
		return VideoInfo{}, fmt.Errorf("%s not found: %w", ffprobe, err)
	}

	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("%w: %v", ErrUnopenableVideo, err)
	}

	info, nbFrames, err := parseProbe(out)
	if err != nil {
		return VideoInfo{}, err
	}

	// Fast path: container metadata. Might be "N/A" for some containers.
	if count, err := strconv.Atoi(nbFrames); err == nil && count > 0 {
		info.FrameCount = count
	} else {
		info.FrameCount = CountFrames(ctx, ffprobe, path)
	}
	return info, nil
}

// parseProbe decodes the stream entry of an ffprobe JSON document. It returns the
// raw nb_frames value alongside, which may be empty or "N/A".
func parseProbe(out []byte) (VideoInfo, string, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return VideoInfo{}, "", fmt.Errorf("%w: ffprobe JSON parse error: %v", ErrUnopenableVideo, err)
	}
	if len(res.Streams) == 0 || res.Streams[0].Width <= 0 || res.Streams[0].Height <= 0 {
		return VideoInfo{}, "", fmt.Errorf("%w: no video stream", ErrUnopenableVideo)
	}

	s := res.Streams[0]
	rotation := 0.0
	if r, err := strconv.ParseFloat(s.Tags.Rotate, 64); err == nil {
		rotation = r
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}
	// ffmpeg auto-rotates while decoding, so report the displayed geometry.
	w, h := DisplaySize(s.Width, s.Height, rotation)
	info := VideoInfo{Width: w, Height: h}

	var err error
	if info.FPS, err = ParseFrameRate(s.AvgFrameRate); err != nil || info.FPS == 0 {
		info.FPS, _ = ParseFrameRate(s.RFrameRate)
	}
	return info, s.NbFrames, nil
}

// DisplaySize returns the frame size after applying a rotation in degrees.
// Quarter turns swap width and height.
func DisplaySize(width, height int, rotation float64) (int, int) {
	turns := int(math.Round(rotation/90)) % 4
	if turns%2 != 0 {
		return height, width
	}
	return width, height
}

// CountFrames counts video packets with ffprobe. It returns 0 if the count fails.
func CountFrames(ctx context.Context, ffprobe, path string) int {
	fmt.Fprintf(os.Stderr, "⏳ Metadata missing. Counting frames (this may take a moment)...\n")
	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)

	out, err := cmd.Output()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ffprobe failed: %v\n", err)
		return 0
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func ParseFrameRate(rate string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCmd creates a decoder that writes every frame as MJPEG to Stdout, in presentation order.
func NewFFmpegCmd(ctx context.Context, ffmpeg, inputPath string) *SafeCommand {
	// -vsync passthrough keeps one output image per decoded frame so indices line up with ffprobe
	return NewSafeCommand(ctx, ffmpeg, "-hide_banner", "-loglevel", "error", "-i", inputPath,
		"-map", "0:v:0", "-vsync", "passthrough", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
