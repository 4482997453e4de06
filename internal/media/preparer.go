// Package media fetches post attachments and renders them within platform limits.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"social-post-scheduler/internal/config"
)

// Asset is an attachment ready for upload.
type Asset struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	// Location is where the rendition was archived, empty when archiving is off.
	Location string
}

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Preparer downloads, decodes, resizes and archives attachments.
type Preparer struct {
	httpClient   *http.Client
	maxBytes     int64
	maxDimension int
	archive      uploader
}

// NewPreparer chooses the archive (S3 when a bucket is configured, local disk
// otherwise).
func NewPreparer(ctx context.Context, cfg config.Config) (*Preparer, error) {
	timeout := cfg.MediaDownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	p := &Preparer{
		httpClient:   &http.Client{Timeout: timeout},
		maxBytes:     cfg.MediaMaxBytes,
		maxDimension: cfg.MediaMaxDimension,
	}
	if p.maxBytes == 0 {
		p.maxBytes = 15 * 1024 * 1024
	}
	if p.maxDimension == 0 {
		p.maxDimension = 2048
	}

	switch {
	case cfg.MediaS3Bucket != "":
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.archive = &s3Uploader{client: client, bucket: cfg.MediaS3Bucket}
	case cfg.MediaOutputDir != "":
		p.archive = &localUploader{baseDir: cfg.MediaOutputDir}
	}
	return p, nil
}

// Prepare turns one attachment URL into an uploadable asset. key names the
// archived rendition without extension, e.g. "posts/<id>/0".
func (p *Preparer) Prepare(ctx context.Context, key, url string) (Asset, error) {
	data, contentType, err := p.download(ctx, url)
	if err != nil {
		return Asset{}, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Asset{}, fmt.Errorf("decode image: %w", err)
	}

	outputFormat := chooseFormat(format, contentType)
	bounds := img.Bounds()
	resized := bounds.Dx() > p.maxDimension || bounds.Dy() > p.maxDimension
	if resized {
		img = imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)
	}

	// Animated GIFs keep their original bytes when they already fit.
	body := data
	if resized || outputFormat != imaging.GIF {
		buf := &bytes.Buffer{}
		if err := imaging.Encode(buf, img, outputFormat, imaging.JPEGQuality(85)); err != nil {
			return Asset{}, fmt.Errorf("encode image: %w", err)
		}
		body = buf.Bytes()
	}

	asset := Asset{
		Data:     body,
		MimeType: mimeForFormat(outputFormat),
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}
	if p.archive != nil {
		location, err := p.archive.Upload(ctx, sanitizeKey(key)+"."+formatExtension(outputFormat), body, asset.MimeType)
		if err != nil {
			return Asset{}, fmt.Errorf("archive: %w", err)
		}
		asset.Location = location
	}
	return asset, nil
}

func (p *Preparer) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, p.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, "", fmt.Errorf("media too large (>%d bytes)", p.maxBytes)
	}
	if len(body) == 0 {
		return nil, "", errors.New("media is empty")
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func chooseFormat(decodeFormat, contentType string) imaging.Format {
	switch strings.ToLower(decodeFormat) {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	case "jpeg":
		return imaging.JPEG
	}
	if strings.Contains(strings.ToLower(contentType), "png") {
		return imaging.PNG
	}
	return imaging.JPEG
}

func formatExtension(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "png"
	case imaging.GIF:
		return "gif"
	default:
		return "jpg"
	}
}

func mimeForFormat(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
