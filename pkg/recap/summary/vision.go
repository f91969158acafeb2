// Package summary – vision.go runs the image-captioning side channel on a
// bounded worker pool. Each task copies the source image to a private
// temp path, re-encodes it, asks the vision collaborator for a caption
// and stores the result as a synthetic text record in the same session.
package summary

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register decoders for common chat image formats
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/image/draw"

	"github.com/jholhewres/recap/pkg/recap/store"
)

const (
	captionWorkers    = 5
	captionMaxPending = 20

	// maxImageDim bounds the longer image edge before encoding.
	maxImageDim = 2048

	// maxEncodedBytes is the upper bound for the re-encoded image; larger
	// results are dropped rather than sent upstream.
	maxEncodedBytes = 1 * 1024 * 1024
)

// captionPrefix marks synthetic records as derived image descriptions.
const captionPrefix = "[图片描述]"

// RecordUpserter persists synthetic caption records.
type RecordUpserter interface {
	Upsert(ctx context.Context, rec store.ChatRecord) error
}

// CaptionWorker is the bounded image-captioning pool. Submissions beyond
// the admission cap are dropped with a warning; this is the intended
// backpressure policy, not queueing.
type CaptionWorker struct {
	cfg       *Config
	captioner Captioner
	records   RecordUpserter
	pool      *ants.Pool
	pending   atomic.Int32
	logger    *slog.Logger
}

// NewCaptionWorker creates the captioning pool. Returns an error when
// the underlying pool cannot be created.
func NewCaptionWorker(cfg *Config, captioner Captioner, records RecordUpserter, logger *slog.Logger) (*CaptionWorker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(captionWorkers)
	if err != nil {
		return nil, fmt.Errorf("create caption worker pool: %w", err)
	}

	return &CaptionWorker{
		cfg:       cfg,
		captioner: captioner,
		records:   records,
		pool:      pool,
		logger:    logger.With("component", "vision"),
	}, nil
}

// Close releases the worker pool.
func (w *CaptionWorker) Close() {
	w.pool.Release()
}

// Submit enqueues a captioning task and returns immediately. The caller
// never blocks on the caption; completion is asynchronous relative to
// the triggering event.
func (w *CaptionWorker) Submit(ctx context.Context, sessionID string, messageID int64, user, imagePath string, createTime int64) {
	if w.pending.Load() >= captionMaxPending {
		w.logger.Warn("caption queue full, dropping request",
			"session", sessionID,
			"message_id", messageID,
		)
		return
	}

	w.pending.Add(1)
	task := func() {
		defer w.pending.Add(-1)
		if err := w.process(ctx, sessionID, messageID, user, imagePath, createTime); err != nil {
			w.logger.Error("image captioning failed",
				"session", sessionID,
				"message_id", messageID,
				"error", err,
			)
		}
	}

	go func() {
		if err := w.pool.Submit(task); err != nil {
			w.pending.Add(-1)
			w.logger.Warn("caption pool rejected task", "error", err)
		}
	}()
}

// process runs one captioning task end to end.
func (w *CaptionWorker) process(ctx context.Context, sessionID string, messageID int64, user, imagePath string, createTime int64) error {
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("image file missing: %w", err)
	}

	// Work on a private copy so a concurrently mutated original cannot
	// race with the read.
	tempPath := filepath.Join(os.TempDir(), "recap-"+uuid.NewString()+".img")
	if err := copyFile(imagePath, tempPath); err != nil {
		return fmt.Errorf("copy image to temp path: %w", err)
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("failed to remove temp image", "path", tempPath, "error", err)
		}
	}()

	encoded, err := resizeAndEncode(tempPath)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}

	caption, err := w.captioner.Caption(ctx, encoded, w.cfg.ImagePrompt, w.cfg.Multimodal.Model)
	if err != nil {
		return fmt.Errorf("vision completion: %w", err)
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return fmt.Errorf("vision completion returned empty caption")
	}

	rec := store.ChatRecord{
		SessionID: sessionID,
		MessageID: messageID,
		User:      user,
		Content:   captionPrefix + caption,
		Kind:      "text",
		Timestamp: createTime,
	}
	if err := w.records.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store caption record: %w", err)
	}

	w.logger.Info("image captioned",
		"session", sessionID,
		"message_id", messageID,
		"caption_len", len(caption),
	)
	return nil
}

// resizeAndEncode loads an image, scales it down to at most
// maxImageDim on the longer edge, re-encodes it as JPEG and returns the
// base64 payload. Results still above maxEncodedBytes are rejected.
func resizeAndEncode(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	src = scaleDown(src, maxImageDim)

	var buf strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := jpeg.Encode(enc, src, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	if buf.Len() > maxEncodedBytes*4/3 {
		return "", fmt.Errorf("image too large after re-encoding (%d bytes base64)", buf.Len())
	}

	return buf.String(), nil
}

// scaleDown resizes an image so its longer edge is at most maxDim,
// preserving the aspect ratio. Images already within bounds pass through.
func scaleDown(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// copyFile copies src to dst with restricted permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
