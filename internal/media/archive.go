package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"social-post-scheduler/internal/config"
)

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.MediaS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.MediaS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.MediaS3Endpoint)
		}
		o.UsePathStyle = cfg.MediaS3PathStyle
	}), nil
}

func sanitizeKey(key string) string {
	key = filepath.ToSlash(filepath.Clean(key))
	for strings.HasPrefix(key, "../") {
		key = strings.TrimPrefix(key, "../")
	}
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
