// Package overlay draws salient regions and the planned crop onto sampled frames.
package overlay

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path/filepath"

	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/fogleman/gg"
)

const jpegQuality = 85

// Render decodes the JPEG frame and draws every salient region, the union box and the crop window.
func Render(frame []byte, fa types.FrameAnalysis) (*gg.Context, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", fa.FrameIndex, err)
	}
	dc := gg.NewContextForImage(img)
	w, h := float64(dc.Width()), float64(dc.Height())

	dc.SetLineWidth(2)
	drawRegions := func(regions []types.SalientRegion, r, g, b float64) {
		for _, reg := range regions {
			box := reg.NormalizedBBox
			dc.SetRGB(r, g, b)
			dc.DrawRectangle(box.X*w, box.Y*h, box.W*w, box.H*h)
			dc.Stroke()
		}
	}
	drawRegions(fa.Salience.Faces, 0, 1, 0)
	drawRegions(fa.Salience.Poses, 0, 0.6, 1)
	drawRegions(fa.Salience.Hands, 1, 0.8, 0)

	if o := fa.Salience.Overall; o != nil {
		dc.SetDash(6, 4)
		dc.SetRGB(1, 1, 1)
		dc.DrawRectangle(o.Normalized.X*w, o.Normalized.Y*h, o.Normalized.W*w, o.Normalized.H*h)
		dc.Stroke()
		dc.SetDash()
	}

	c := fa.Crop
	dc.SetLineWidth(4)
	dc.SetRGB(1, 0, 0)
	dc.DrawRectangle(float64(c.X), float64(c.Y), float64(c.Width), float64(c.Height))
	dc.Stroke()

	label := fmt.Sprintf("frame %d  %s  conf %.2f", fa.FrameIndex, c.Method, c.Confidence)
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, 0, float64(len(label))*7+12, 22)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, 6, 15)
	return dc, nil
}

// Save renders the overlay and writes it as dir/frame_<index>.jpg.
func Save(dir string, frame []byte, fa types.FrameAnalysis) (string, error) {
	dc, err := Render(frame, fa)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", fa.FrameIndex))
	if err := gg.SaveJPG(path, dc.Image(), jpegQuality); err != nil {
		return "", fmt.Errorf("failed to write overlay: %w", err)
	}
	return path, nil
}
