package summary

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/recap/pkg/recap/store"
)

// fakeCaptioner returns a fixed caption and records what it was sent.
type fakeCaptioner struct {
	mu      sync.Mutex
	caption string
	err     error
	prompts []string
	images  []string
}

func (f *fakeCaptioner) Caption(_ context.Context, imageB64, prompt, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imageB64)
	return f.caption, f.err
}

// fakeUpserter collects upserted records.
type fakeUpserter struct {
	mu      sync.Mutex
	records []store.ChatRecord
}

func (f *fakeUpserter) Upsert(_ context.Context, rec store.ChatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// writeTestImage writes a small PNG and returns its path.
func writeTestImage(t *testing.T, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return path
}

func newTestCaptionWorker(t *testing.T, captioner Captioner, records RecordUpserter) *CaptionWorker {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ImagePrompt = "描述这张图片"

	w, err := NewCaptionWorker(cfg, captioner, records, nil)
	if err != nil {
		t.Fatalf("NewCaptionWorker() failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestCaptionProcess(t *testing.T) {
	captioner := &fakeCaptioner{caption: "两个人在公园里下棋"}
	upserter := &fakeUpserter{}
	w := newTestCaptionWorker(t, captioner, upserter)

	path := writeTestImage(t, 16, 16)
	err := w.process(context.Background(), "花园爱好群", 77, "alice", path, 1_700_000_000)
	if err != nil {
		t.Fatalf("process() failed: %v", err)
	}

	if len(upserter.records) != 1 {
		t.Fatalf("got %d upserts, want 1", len(upserter.records))
	}
	rec := upserter.records[0]
	if rec.Content != "[图片描述]两个人在公园里下棋" {
		t.Errorf("Content = %q, want prefixed caption", rec.Content)
	}
	if rec.Kind != "text" {
		t.Errorf("Kind = %q, want synthetic text record", rec.Kind)
	}
	if rec.SessionID != "花园爱好群" || rec.MessageID != 77 || rec.Timestamp != 1_700_000_000 {
		t.Errorf("record identity mismatch: %+v", rec)
	}

	if len(captioner.prompts) != 1 || captioner.prompts[0] != "描述这张图片" {
		t.Errorf("prompts = %v, want configured image prompt", captioner.prompts)
	}
	if captioner.images[0] == "" {
		t.Error("empty base64 payload sent to captioner")
	}
}

func TestCaptionProcessFailures(t *testing.T) {
	t.Run("missing image file", func(t *testing.T) {
		upserter := &fakeUpserter{}
		w := newTestCaptionWorker(t, &fakeCaptioner{caption: "x"}, upserter)

		err := w.process(context.Background(), "G1", 1, "alice", "/nonexistent/photo.png", 1)
		if err == nil {
			t.Fatal("process() succeeded on a missing file")
		}
		if len(upserter.records) != 0 {
			t.Errorf("got %d upserts after failure, want 0", len(upserter.records))
		}
	})

	t.Run("empty caption is rejected", func(t *testing.T) {
		upserter := &fakeUpserter{}
		w := newTestCaptionWorker(t, &fakeCaptioner{caption: "  "}, upserter)

		err := w.process(context.Background(), "G1", 1, "alice", writeTestImage(t, 8, 8), 1)
		if err == nil || !strings.Contains(err.Error(), "empty caption") {
			t.Errorf("err = %v, want empty caption rejection", err)
		}
		if len(upserter.records) != 0 {
			t.Errorf("got %d upserts, want 0", len(upserter.records))
		}
	})

	t.Run("undecodable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "not-an-image.img")
		if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
			t.Fatal(err)
		}

		w := newTestCaptionWorker(t, &fakeCaptioner{caption: "x"}, &fakeUpserter{})
		if err := w.process(context.Background(), "G1", 1, "alice", path, 1); err == nil {
			t.Error("process() succeeded on a non-image file")
		}
	})
}

// tempImageArtifacts lists the worker's private temp copies currently
// on disk.
func tempImageArtifacts(t *testing.T) map[string]bool {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "recap-*.img"))
	if err != nil {
		t.Fatalf("scanning temp dir: %v", err)
	}
	set := make(map[string]bool, len(matches))
	for _, m := range matches {
		set[m] = true
	}
	return set
}

func TestCaptionTempFileCleanup(t *testing.T) {
	before := tempImageArtifacts(t)

	assertNoLeftovers := func(t *testing.T) {
		t.Helper()
		for path := range tempImageArtifacts(t) {
			if !before[path] {
				t.Errorf("temp copy %s left behind", path)
			}
		}
	}

	t.Run("after a successful caption", func(t *testing.T) {
		w := newTestCaptionWorker(t, &fakeCaptioner{caption: "一张照片"}, &fakeUpserter{})
		if err := w.process(context.Background(), "G1", 1, "alice", writeTestImage(t, 8, 8), 1); err != nil {
			t.Fatalf("process() failed: %v", err)
		}
		assertNoLeftovers(t)
	})

	t.Run("after a captioner failure", func(t *testing.T) {
		captioner := &fakeCaptioner{err: errors.New("vision down")}
		w := newTestCaptionWorker(t, captioner, &fakeUpserter{})
		if err := w.process(context.Background(), "G1", 2, "alice", writeTestImage(t, 8, 8), 1); err == nil {
			t.Fatal("process() succeeded despite captioner failure")
		}
		assertNoLeftovers(t)
	})

	t.Run("after an encode failure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.img")
		if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
			t.Fatal(err)
		}

		w := newTestCaptionWorker(t, &fakeCaptioner{caption: "x"}, &fakeUpserter{})
		if err := w.process(context.Background(), "G1", 3, "alice", path, 1); err == nil {
			t.Fatal("process() succeeded on an undecodable file")
		}
		assertNoLeftovers(t)
	})
}

func TestCaptionSubmitAsync(t *testing.T) {
	captioner := &fakeCaptioner{caption: "一张风景照"}
	upserter := &fakeUpserter{}
	w := newTestCaptionWorker(t, captioner, upserter)

	w.Submit(context.Background(), "G1", 5, "alice", writeTestImage(t, 8, 8), 42)

	// Submit returns immediately; poll for the asynchronous completion.
	// The pending counter is decremented after the record lands, so wait
	// for both.
	deadline := time.Now().Add(5 * time.Second)
	for {
		upserter.mu.Lock()
		stored := len(upserter.records) == 1
		upserter.mu.Unlock()
		if stored && w.pending.Load() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("caption task did not complete in time (stored=%v pending=%d)",
				stored, w.pending.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScaleDown(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"within bounds untouched", 640, 480, 640, 480},
		{"wide image scaled by width", 4096, 1024, 2048, 512},
		{"tall image scaled by height", 1024, 4096, 512, 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := scaleDown(src, maxImageDim)

			b := got.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("scaled to %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}
