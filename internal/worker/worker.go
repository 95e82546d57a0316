package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/andresmejia3/autoflip/internal/utils" // Using the SafeCommand wrapper
	"go.uber.org/zap"
)

// Op selects which detector the Python process runs on a frame.
type Op byte

const (
	OpFaces Op = 'F'
	OpPose  Op = 'P'
	OpHands Op = 'H'
)

func (o Op) String() string {
	switch o {
	case OpFaces:
		return "faces"
	case OpPose:
		return "pose"
	case OpHands:
		return "hands"
	}
	return "unknown"
}

const (
	statusOK    byte = 0
	statusError byte = 1
)

// ErrWorkerLogic is returned when the detector reports an error for a single frame.
// The process is still alive and can take the next request.
var ErrWorkerLogic = errors.New("python worker error")

// Config controls how the detector process is launched.
type Config struct {
	Python                 string
	Script                 string
	MinDetectionConfidence float64
	ReadTimeout            time.Duration
}

type PythonWorker struct {
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
	Logger      *zap.Logger
}

// NewPythonWorker starts the detector process. Results come back on a side-channel
// pipe (FD 3) so that library chatter on stdout cannot corrupt the protocol.
func NewPythonWorker(ctx context.Context, cfg Config, logger *zap.Logger) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--min-detection-confidence", strconv.FormatFloat(cfg.MinDetectionConfidence, 'f', -1, 64))

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("detector failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
		Logger:      logger,
	}, nil
}

// Request sends one frame for the given operation and returns the JSON payload.
//
// Protocol: request [Length][Op][JPEG]; response [Length][Status][Body], where Body is
// the JSON payload for status 0 and [MsgLen][Msg] for status 1.
func (w *PythonWorker) Request(op Op, frame []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(frame)+1)); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write([]byte{byte(op)}); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(frame); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import crash in the detector
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 {
		return nil, fmt.Errorf("empty response from detector")
	}
	body := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, err
	}

	switch body[0] {
	case statusOK:
		return body[1:], nil
	case statusError:
		if len(body) < 5 {
			return nil, fmt.Errorf("%w: truncated error message", ErrWorkerLogic)
		}
		msgLen := binary.BigEndian.Uint32(body[1:5])
		if int(msgLen) > len(body)-5 {
			msgLen = uint32(len(body) - 5)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorkerLogic, body[5:5+msgLen])
	default:
		return nil, fmt.Errorf("unknown detector status byte %d", body[0])
	}
}

// DetectFaces runs face detection on frame.
func (w *PythonWorker) DetectFaces(frame types.Frame) ([]types.FaceDetection, error) {
	return call[[]types.FaceDetection](w, OpFaces, frame)
}

// EstimatePose runs full body pose estimation on frame.
func (w *PythonWorker) EstimatePose(frame types.Frame) ([]types.Landmark, error) {
	return call[[]types.Landmark](w, OpPose, frame)
}

// EstimateHands runs hand landmark estimation on frame.
func (w *PythonWorker) EstimateHands(frame types.Frame) ([]types.HandLandmarks, error) {
	return call[[]types.HandLandmarks](w, OpHands, frame)
}

// call runs op and decodes the response. Errors the detector reports for the frame
// and malformed payloads are logged and yield the zero value; only transport
// failures are returned.
func call[T any](w *PythonWorker, op Op, frame types.Frame) (T, error) {
	var zero T
	start := time.Now()
	resp, err := w.Request(op, frame.Data)
	if errors.Is(err, ErrWorkerLogic) {
		w.logger().Warn("detector logic error", zap.Int("frame", frame.Index), zap.Stringer("op", op), zap.Error(err))
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("%s detection failed on frame %d: %w", op, frame.Index, err)
	}

	var out T
	if err := json.Unmarshal(resp, &out); err != nil {
		// Check if it's a Python error object (e.g. {"error": "..."})
		var errorResult types.ErrorResult
		if json.Unmarshal(resp, &errorResult) == nil && errorResult.Error != "" {
			w.logger().Warn("detector logic error", zap.Int("frame", frame.Index), zap.Stringer("op", op), zap.String("error", errorResult.Error))
		} else {
			w.logger().Warn("detector JSON malformed", zap.Int("frame", frame.Index), zap.Stringer("op", op), zap.Error(err))
		}
		return zero, nil
	}

	w.logger().Debug("detector call", zap.Int("frame", frame.Index), zap.Stringer("op", op), zap.Duration("took", time.Since(start)))
	return out, nil
}

func (w *PythonWorker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// Close shuts the detector down and waits for it to exit.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
