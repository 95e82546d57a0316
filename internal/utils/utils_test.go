package utils

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	// Use bufio.Scanner with our custom Split function
	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	// Scan() should skip the first garbage bytes and find the JPEG
	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}

	// Verify the extracted token is exactly the JPEG
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// Scan() again should return false (EOF) because the trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestGenerateVideoID(t *testing.T) {
	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "video_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	// Write dummy content
	if _, err := tmp.Write([]byte("fake video content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := GenerateVideoID(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to generate ID: %v", err)
	}

	// Verify Determinism
	id2, _ := GenerateVideoID(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()

	id3, _ := GenerateVideoID(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30/1", 30, false},
		{"30000/1001", 30000.0 / 1001.0, false},
		{"25", 25, false},
		{"0/0", 0, false},
		{"N/A", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseFrameRate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrameRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateInput(t *testing.T) {
	tmp, err := os.CreateTemp("", "video*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())
	tmp.Close()

	if err := ValidateInput(tmp.Name()); err != nil {
		t.Errorf("Expected existing file to validate, got %v", err)
	}

	err = ValidateInput(filepath.Join(t.TempDir(), "nonexistent.mp4"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}

	if err := ValidateInput(t.TempDir()); err == nil {
		t.Error("Expected directory input to be rejected")
	}
}

func TestSplitJpeg_MultipleFrames(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0x10, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0x20, 0x21, 0xFF, 0xD9}
	stream := append(append([]byte{}, a...), b...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte{}, scanner.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Frames mismatch: %X %X", got[0], got[1])
	}
}

func TestDisplaySize(t *testing.T) {
	tests := []struct {
		rotation   float64
		wantWidth  int
		wantHeight int
	}{
		{0, 1920, 1080},
		{90, 1080, 1920},
		{-90, 1080, 1920},
		{180, 1920, 1080},
		{270, 1080, 1920},
		{-270, 1080, 1920},
		{360, 1920, 1080},
	}

	for _, tt := range tests {
		w, h := DisplaySize(1920, 1080, tt.rotation)
		if w != tt.wantWidth || h != tt.wantHeight {
			t.Errorf("DisplaySize(1920, 1080, %v) = %dx%d, want %dx%d", tt.rotation, w, h, tt.wantWidth, tt.wantHeight)
		}
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantWidth  int
		wantHeight int
		wantFrames string
	}{
		{
			name:      "landscape",
			json:      `{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"300"}]}`,
			wantWidth: 1920, wantHeight: 1080, wantFrames: "300",
		},
		{
			name:      "phone clip with display matrix",
			json:      `{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"90","side_data_list":[{"side_data_type":"Display Matrix","rotation":-90}]}]}`,
			wantWidth: 1080, wantHeight: 1920, wantFrames: "90",
		},
		{
			name:      "legacy rotate tag",
			json:      `{"streams":[{"width":1280,"height":720,"r_frame_rate":"25/1","tags":{"rotate":"270"}}]}`,
			wantWidth: 720, wantHeight: 1280, wantFrames: "",
		},
		{
			name:      "upside down",
			json:      `{"streams":[{"width":640,"height":480,"avg_frame_rate":"30/1","nb_frames":"N/A","tags":{"rotate":"180"}}]}`,
			wantWidth: 640, wantHeight: 480, wantFrames: "N/A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, frames, err := parseProbe([]byte(tt.json))
			if err != nil {
				t.Fatalf("parseProbe failed: %v", err)
			}
			if info.Width != tt.wantWidth || info.Height != tt.wantHeight {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantWidth, tt.wantHeight, info.Width, info.Height)
			}
			if frames != tt.wantFrames {
				t.Errorf("Expected nb_frames %q, got %q", tt.wantFrames, frames)
			}
			if info.FPS <= 0 {
				t.Errorf("Expected a frame rate, got %v", info.FPS)
			}
		})
	}
}

func TestParseProbe_NoVideoStream(t *testing.T) {
	for _, in := range []string{`{"streams":[]}`, `{"streams":[{"width":0,"height":0}]}`, `not json`} {
		if _, _, err := parseProbe([]byte(in)); !errors.Is(err, ErrUnopenableVideo) {
			t.Errorf("parseProbe(%s): expected ErrUnopenableVideo, got %v", in, err)
		}
	}
}
