package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/autoflip/internal/detector"
	"github.com/andresmejia3/autoflip/internal/overlay"
	"github.com/andresmejia3/autoflip/internal/planner"
	"github.com/andresmejia3/autoflip/internal/report"
	"github.com/andresmejia3/autoflip/internal/smoother"
	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/andresmejia3/autoflip/internal/utils"
	"github.com/andresmejia3/autoflip/internal/worker"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const megabyte = 1024 * 1024

// runAnalyze orchestrates one analysis: probe, detector startup, FFmpeg streaming,
// per-sample planning, smoothing and the report write.
func runAnalyze(ctx context.Context, opts Options) error {
	// Create a cancellable context so FFmpeg and the detector are killed
	// immediately if this function returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateAnalyzeFlags(&opts); err != nil {
		utils.ShowError("Invalid arguments", err, nil)
		return err
	}

	if opts.Save {
		if err := connectDB(ctx); err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
	}

	info, err := utils.ProbeVideo(ctx, cfg.FFprobe, opts.InputPath)
	if err != nil {
		utils.ShowError("Could not open video file", err, nil)
		return err
	}
	interval := samplingInterval(info.FrameCount, opts.SampleRate)

	fmt.Println("Starting AutoFlip analysis...")
	fmt.Printf("Analyzing video: %dx%d, %d frames, %.2f fps\n", info.Width, info.Height, info.FrameCount, info.FPS)
	fmt.Printf("Sampling every %d frames for crop analysis\n", interval)
	logger.Info("analysis started",
		zap.String("input", opts.InputPath),
		zap.String("aspect_ratio", opts.AspectRatio),
		zap.Int("interval", interval),
	)

	w, err := worker.NewPythonWorker(ctx, worker.Config{
		Python:                 cfg.Python,
		Script:                 cfg.WorkerScript,
		MinDetectionConfidence: cfg.MinDetectionConfidence,
		ReadTimeout:            cfg.WorkerTimeout,
	}, logger)
	if err != nil {
		utils.ShowError("Detector startup failed", err, nil)
		return err
	}
	defer w.Close()

	ffmpeg := utils.NewFFmpegCmd(ctx, cfg.FFmpeg, opts.InputPath)
	ffmpegOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create FFmpeg stdout pipe", err, nil)
		return err
	}
	if err := ffmpeg.Start(); err != nil {
		utils.ShowError("Failed to start FFmpeg", err, nil)
		return err
	}
	// Reap FFmpeg on every return path; the context cancel above kills it first.
	ffmpegDone := false
	defer func() {
		if !ffmpegDone {
			ffmpegOut.Close()
			_ = ffmpeg.Wait()
		}
	}()

	barTotal := int64(info.FrameCount)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("🎬 Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	a := &analyzer{
		adapter:  detector.New(w),
		width:    info.Width,
		height:   info.Height,
		fps:      info.FPS,
		interval: interval,
		aspect:   opts.AspectRatio,
		onFrame:  func() { bar.Add(1) },
		onSample: func(fa types.FrameAnalysis, frame []byte) error {
			bar.Clear()
			fmt.Printf("Frame %d: %d faces, %d poses, confidence: %.2f\n",
				fa.FrameIndex, len(fa.Salience.Faces), len(fa.Salience.Poses), fa.Salience.Confidence)
			if opts.DebugFrames == "" {
				return nil
			}
			path, err := overlay.Save(opts.DebugFrames, frame, fa)
			if err != nil {
				// Debug output must never fail the analysis.
				logger.Warn("debug frame skipped", zap.Int("frame", fa.FrameIndex), zap.Error(err))
				return nil
			}
			logger.Debug("debug frame written", zap.String("path", path))
			return nil
		},
	}

	analyses, decoded, err := a.run(ffmpegOut)
	if err != nil {
		if errors.Is(err, errDetector) {
			utils.ShowError("Detector crashed", err, w.Cmd)
		} else {
			utils.ShowError("Frame decoding failed", err, ffmpeg)
		}
		return err
	}

	ffmpegDone = true
	if err := ffmpeg.Wait(); err != nil {
		// A decoder failure mid-stream aborts the run; no report is written.
		utils.ShowError("FFmpeg execution failed", err, ffmpeg)
		return err
	}
	bar.Finish()
	fmt.Println()

	frameCount := info.FrameCount
	if frameCount <= 0 {
		frameCount = decoded
	}

	smoothed := smoother.Smooth(analyses, frameCount, info.FPS)
	r := report.Build(report.Meta{
		InputPath:         opts.InputPath,
		OutputPath:        opts.OutputPath,
		TargetAspectRatio: opts.AspectRatio,
		Width:             info.Width,
		Height:            info.Height,
		FrameCount:        frameCount,
		FPS:               info.FPS,
		SampleRate:        opts.SampleRate,
	}, analyses, smoothed)

	if err := report.Write(opts.OutputPath, r); err != nil {
		utils.ShowError("Failed to save results", err, nil)
		return err
	}

	if opts.Save {
		id, err := saveReport(ctx, opts.InputPath, r)
		if err != nil {
			utils.ShowError("Failed to save analysis to database", err, nil)
			return err
		}
		fmt.Printf("Analysis saved to database with ID: %s\n", id)
	}

	logger.Info("analysis finished",
		zap.Int("decoded_frames", decoded),
		zap.Int("sampled_frames", len(analyses)),
		zap.Int("smoothed_crops", len(smoothed)),
	)
	fmt.Println("AutoFlip analysis completed successfully!")
	fmt.Printf("Results saved to: %s\n", opts.OutputPath)
	st := r.Stats
	fmt.Printf("Processing stats: faces=%d poses=%d hands=%d average_confidence=%.2f frames_with_salient_content=%d\n",
		st.TotalFaces, st.TotalPoses, st.TotalHands, st.AverageConfidence, st.FramesWithSalientContent)
	return nil
}

func saveReport(ctx context.Context, inputPath string, r *types.AnalysisReport) (string, error) {
	videoID, err := utils.GenerateVideoID(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to generate video ID: %w", err)
	}
	if err := DB.EnsureVideoMetadata(ctx, videoID, inputPath); err != nil {
		return "", fmt.Errorf("failed to register video metadata: %w", err)
	}
	return DB.SaveAnalysis(ctx, videoID, r)
}

// errDetector marks failures of the detector transport, as opposed to the decoder.
var errDetector = errors.New("detector failure")

// analyzer runs detection and crop planning on every interval-th frame of an MJPEG stream.
type analyzer struct {
	adapter  *detector.Adapter
	width    int
	height   int
	fps      float64
	interval int
	aspect   string

	onFrame  func()
	onSample func(fa types.FrameAnalysis, frame []byte) error
}

// run consumes the stream in presentation order and returns the sampled analyses
// and the number of decoded frames.
func (a *analyzer) run(r io.Reader) ([]types.FrameAnalysis, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	var analyses []types.FrameAnalysis
	idx := 0
	for ; scanner.Scan(); idx++ {
		if a.onFrame != nil {
			a.onFrame()
		}
		if idx%a.interval != 0 {
			continue
		}

		frame := types.Frame{Index: idx, Width: a.width, Height: a.height, Data: scanner.Bytes()}
		salience, err := a.adapter.Analyze(frame)
		if err != nil {
			return nil, idx, fmt.Errorf("%w: %w", errDetector, err)
		}

		fa := types.FrameAnalysis{
			FrameIndex: idx,
			Timestamp:  frameTimestamp(idx, a.fps),
			Salience:   salience,
			Crop:       planner.Plan(a.width, a.height, salience, a.aspect),
		}
		analyses = append(analyses, fa)
		logger.Debug("frame analyzed",
			zap.Int("frame", idx),
			zap.Int("regions", len(salience.Regions())),
			zap.String("method", string(fa.Crop.Method)),
		)

		if a.onSample != nil {
			if err := a.onSample(fa, frame.Data); err != nil {
				return nil, idx, err
			}
		}
	}

	// Check for scanner errors (e.g. token too long, unexpected EOF)
	if err := scanner.Err(); err != nil {
		return nil, idx, fmt.Errorf("frame scanner failed: %w", err)
	}
	return analyses, idx, nil
}

// samplingInterval picks every max(1, total/sampleRate)-th frame.
func samplingInterval(totalFrames, sampleRate int) int {
	if sampleRate < 1 {
		return 1
	}
	return max(1, totalFrames/sampleRate)
}

func frameTimestamp(frame int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) / fps
}

// validateAnalyzeFlags ensures all CLI arguments are valid before starting heavy processes.
func validateAnalyzeFlags(opts *Options) error {
	if err := utils.ValidateInput(opts.InputPath); err != nil {
		return err
	}
	if !planner.IsValidAspectRatio(opts.AspectRatio) {
		return fmt.Errorf("invalid aspect ratio %q: choose one of %v", opts.AspectRatio, planner.AspectRatioLabels())
	}
	if opts.SampleRate < 1 {
		return fmt.Errorf("invalid sample rate: must be >= 1, got %d", opts.SampleRate)
	}

	// Safety Check: never overwrite the input video with the report
	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(opts.OutputPath)
	if inAbs == outAbs {
		return fmt.Errorf("input and output paths must be different")
	}
	if opts.DebugFrames != "" {
		if err := os.MkdirAll(opts.DebugFrames, 0755); err != nil {
			return fmt.Errorf("failed to create debug frame directory: %w", err)
		}
	}
	return nil
}

func fmtTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
