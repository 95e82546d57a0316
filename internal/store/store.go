package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/autoflip/internal/report"
	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when an analysis id does not exist.
var ErrNotFound = errors.New("analysis not found")

// Store manages the PostgreSQL connection holding saved analyses.
type Store struct {
	conn *pgx.Conn
}

// AnalysisSummary is one row of the analyses listing.
type AnalysisSummary struct {
	ID                string
	VideoPath         string
	TargetAspectRatio string
	Width             int
	Height            int
	FrameCount        int
	SampledFrames     int
	AverageConfidence float64
	CreatedAt         time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS analyses (
			id UUID PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			output_path TEXT NOT NULL,
			target_aspect_ratio TEXT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			frame_count INT NOT NULL,
			fps DOUBLE PRECISION NOT NULL,
			sample_rate INT NOT NULL,
			stats JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sampled_frames (
			analysis_id UUID NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			timestamp DOUBLE PRECISION NOT NULL,
			salience JSONB NOT NULL,
			crop JSONB NOT NULL,
			PRIMARY KEY (analysis_id, frame_index)
		);
		CREATE TABLE IF NOT EXISTS smoothed_crops (
			analysis_id UUID NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			timestamp DOUBLE PRECISION NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			method TEXT NOT NULL,
			PRIMARY KEY (analysis_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS analyses_video_id_idx ON analyses (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

// SaveAnalysis stores a complete report in one transaction and returns its id.
func (s *Store) SaveAnalysis(ctx context.Context, videoID string, r *types.AnalysisReport) (string, error) {
	id := uuid.New()
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return "", err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (id, video_id, output_path, target_aspect_ratio, width, height, frame_count, fps, sample_rate, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
	`, id, videoID, r.OutputPath, r.TargetAspectRatio, r.OriginalDimensions[0], r.OriginalDimensions[1],
		r.FrameCount, r.FPS, r.SampleRate, string(stats))
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis: %w", err)
	}

	batch := &pgx.Batch{}
	for _, fa := range r.FrameAnalyses {
		salience, err := json.Marshal(fa.Salience)
		if err != nil {
			return "", err
		}
		crop, err := json.Marshal(fa.Crop)
		if err != nil {
			return "", err
		}
		batch.Queue(`
			INSERT INTO sampled_frames (analysis_id, frame_index, timestamp, salience, crop)
			VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		`, id, fa.FrameIndex, fa.Timestamp, string(salience), string(crop))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("failed to insert sampled frames: %w", err)
		}
	}

	crops := r.SmoothedCrops
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"smoothed_crops"},
		[]string{"analysis_id", "frame_index", "timestamp", "x", "y", "width", "height", "confidence", "method"},
		pgx.CopyFromSlice(len(crops), func(i int) ([]any, error) {
			c := crops[i]
			return []any{id, c.FrameIndex, c.Timestamp, c.X, c.Y, c.Width, c.Height, c.Confidence, string(c.Method)}, nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to copy smoothed crops: %w", err)
	}

	return id.String(), tx.Commit(ctx)
}

// ListAnalyses returns all saved analyses, newest first.
func (s *Store) ListAnalyses(ctx context.Context) ([]AnalysisSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a.id::text, v.path, a.target_aspect_ratio, a.width, a.height, a.frame_count,
			(SELECT COUNT(*) FROM sampled_frames f WHERE f.analysis_id = a.id),
			COALESCE((a.stats->>'average_confidence')::float8, 0), a.created_at
		FROM analyses a JOIN video_metadata v ON v.id = a.video_id
		ORDER BY a.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisSummary
	for rows.Next() {
		var a AnalysisSummary
		if err := rows.Scan(&a.ID, &a.VideoPath, &a.TargetAspectRatio, &a.Width, &a.Height, &a.FrameCount,
			&a.SampledFrames, &a.AverageConfidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnalysis rebuilds a saved report.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*types.AnalysisReport, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis id %q: %w", id, err)
	}

	var (
		meta  report.Meta
		stats []byte
	)
	err = s.conn.QueryRow(ctx, `
		SELECT v.path, a.output_path, a.target_aspect_ratio, a.width, a.height, a.frame_count, a.fps, a.sample_rate, a.stats
		FROM analyses a JOIN video_metadata v ON v.id = a.video_id
		WHERE a.id = $1
	`, uid).Scan(&meta.InputPath, &meta.OutputPath, &meta.TargetAspectRatio, &meta.Width, &meta.Height,
		&meta.FrameCount, &meta.FPS, &meta.SampleRate, &stats)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, timestamp, salience, crop FROM sampled_frames
		WHERE analysis_id = $1 ORDER BY frame_index
	`, uid)
	if err != nil {
		return nil, err
	}
	var analyses []types.FrameAnalysis
	for rows.Next() {
		var (
			fa             types.FrameAnalysis
			salience, crop []byte
		)
		if err := rows.Scan(&fa.FrameIndex, &fa.Timestamp, &salience, &crop); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal(salience, &fa.Salience); err != nil {
			rows.Close()
			return nil, fmt.Errorf("frame %d: %w", fa.FrameIndex, err)
		}
		if err := json.Unmarshal(crop, &fa.Crop); err != nil {
			rows.Close()
			return nil, fmt.Errorf("frame %d: %w", fa.FrameIndex, err)
		}
		analyses = append(analyses, fa)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, `
		SELECT frame_index, timestamp, x, y, width, height, confidence, method FROM smoothed_crops
		WHERE analysis_id = $1 ORDER BY frame_index
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var smoothed []types.SmoothedCrop
	for rows.Next() {
		var (
			c      types.SmoothedCrop
			method string
		)
		if err := rows.Scan(&c.FrameIndex, &c.Timestamp, &c.X, &c.Y, &c.Width, &c.Height, &c.Confidence, &method); err != nil {
			return nil, err
		}
		c.Method = types.CropMethod(method)
		smoothed = append(smoothed, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r := report.Build(meta, analyses, smoothed)
	// Stats are recomputed by Build; prefer the stored values if they decode.
	_ = json.Unmarshal(stats, &r.Stats)
	return r, nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS smoothed_crops CASCADE;
		DROP TABLE IF EXISTS sampled_frames CASCADE;
		DROP TABLE IF EXISTS analyses CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
