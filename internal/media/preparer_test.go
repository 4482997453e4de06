package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"social-post-scheduler/internal/config"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func serveBytes(body []byte, contentType string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
}

func TestPrepareResizesAndArchivesLocally(t *testing.T) {
	srv := serveBytes(pngFixture(t, 40, 20), "image/png")
	defer srv.Close()

	tempDir := t.TempDir()
	p, err := NewPreparer(context.Background(), config.Config{
		MediaOutputDir:       tempDir,
		MediaDownloadTimeout: 2 * time.Second,
		MediaMaxBytes:        2 * 1024 * 1024,
		MediaMaxDimension:    10,
	})
	if err != nil {
		t.Fatalf("new preparer: %v", err)
	}

	asset, err := p.Prepare(context.Background(), "posts/p1/0", srv.URL)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if asset.Width != 10 || asset.Height != 5 {
		t.Fatalf("expected 10x5, got %dx%d", asset.Width, asset.Height)
	}
	if asset.MimeType != "image/png" {
		t.Fatalf("expected png, got %s", asset.MimeType)
	}

	outputPath := filepath.Join(tempDir, "posts", "p1", "0.png")
	if asset.Location != outputPath {
		t.Fatalf("expected location %s, got %s", outputPath, asset.Location)
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !bytes.Equal(data, asset.Data) {
		t.Fatalf("archived bytes differ from uploaded bytes")
	}
}

func TestPrepareKeepsSmallImageSize(t *testing.T) {
	srv := serveBytes(pngFixture(t, 8, 6), "image/png")
	defer srv.Close()

	p, err := NewPreparer(context.Background(), config.Config{MediaMaxDimension: 100})
	if err != nil {
		t.Fatalf("new preparer: %v", err)
	}
	asset, err := p.Prepare(context.Background(), "k", srv.URL)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if asset.Width != 8 || asset.Height != 6 {
		t.Fatalf("expected 8x6, got %dx%d", asset.Width, asset.Height)
	}
	if asset.Location != "" {
		t.Fatalf("archive disabled, got location %q", asset.Location)
	}
}

func TestPrepareRejectsOversizedDownload(t *testing.T) {
	srv := serveBytes(pngFixture(t, 40, 40), "image/png")
	defer srv.Close()

	p, err := NewPreparer(context.Background(), config.Config{MediaMaxBytes: 16})
	if err != nil {
		t.Fatalf("new preparer: %v", err)
	}
	if _, err := p.Prepare(context.Background(), "k", srv.URL); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestPrepareRejectsNonImage(t *testing.T) {
	srv := serveBytes([]byte("<html>nope</html>"), "text/html")
	defer srv.Close()

	p, _ := NewPreparer(context.Background(), config.Config{})
	if _, err := p.Prepare(context.Background(), "k", srv.URL); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPrepareArchivesToS3(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing"))

	var (
		mu      sync.Mutex
		gotPath string
		gotType string
	)
	s3srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer s3srv.Close()

	img := serveBytes(pngFixture(t, 4, 4), "image/png")
	defer img.Close()

	p, err := NewPreparer(context.Background(), config.Config{
		MediaS3Bucket:    "media-bucket",
		MediaS3Region:    "us-east-1",
		MediaS3Endpoint:  s3srv.URL,
		MediaS3PathStyle: true,
	})
	if err != nil {
		t.Fatalf("new preparer: %v", err)
	}
	asset, err := p.Prepare(context.Background(), "posts/p9/1", img.URL)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if asset.Location != "s3://media-bucket/posts/p9/1.png" {
		t.Fatalf("unexpected location %s", asset.Location)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/media-bucket/posts/p9/1.png" {
		t.Fatalf("unexpected object path %s", gotPath)
	}
	if gotType != "image/png" {
		t.Fatalf("unexpected content type %s", gotType)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"posts/p1/0":       "posts/p1/0",
		"/abs/key":         "abs/key",
		"../../etc/passwd": "etc/passwd",
		"./a/../b":         "b",
	}
	for in, want := range cases {
		if got := sanitizeKey(in); got != want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
