package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"icdeck/internal/kendra"
	"icdeck/internal/logging"
)

// CompletionMarker is the object written after every file of a batch.
const CompletionMarker = "_complete.txt"

const markerBody = "Folder upload is complete. Main operation can now proceed."

// UploadResult lists the keys written by UploadBatch, marker last.
type UploadResult struct {
	Prefix string
	Keys   []string
	Marker string
}

type Uploader struct {
	api      PutAPI
	bucket   string
	parallel int
	logger   *zap.Logger
}

func NewUploader(api PutAPI, bucket string, parallel int, logger *zap.Logger) *Uploader {
	if parallel < 1 {
		parallel = 1
	}
	return &Uploader{api: api, bucket: bucket, parallel: parallel, logger: logging.OrNop(logger)}
}

// UploadBatch uploads files under client_<name>/ and then writes the
// completion marker. The marker is only written when every file succeeded.
func (u *Uploader) UploadBatch(ctx context.Context, clientName string, files []string) (UploadResult, error) {
	if u.bucket == "" {
		return UploadResult{}, fmt.Errorf("upload bucket is not set")
	}
	if strings.TrimSpace(clientName) == "" || strings.Contains(clientName, "/") {
		return UploadResult{}, fmt.Errorf("invalid client name %q", clientName)
	}
	if len(files) == 0 {
		return UploadResult{}, fmt.Errorf("no files to upload for %s", clientName)
	}

	prefix, _ := kendra.ClientPrefix(clientName)
	res := UploadResult{Prefix: prefix, Keys: make([]string, len(files))}

	if _, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(prefix),
	}); err != nil {
		return res, fmt.Errorf("failed to create folder %s: %w", prefix, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.parallel)
	for i, file := range files {
		file := file
		key := prefix + filepath.Base(file)
		res.Keys[i] = key
		g.Go(func() error {
			return u.putFile(gctx, key, file)
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Marker = prefix + CompletionMarker
	if _, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(res.Marker),
		Body:   strings.NewReader(markerBody),
	}); err != nil {
		return res, fmt.Errorf("failed to write completion marker: %w", err)
	}
	u.logger.Info("client batch uploaded",
		zap.String("bucket", u.bucket),
		zap.String("prefix", prefix),
		zap.Int("files", len(files)))
	return res, nil
}

func (u *Uploader) putFile(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	if _, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", file, err)
	}
	u.logger.Debug("uploaded", zap.String("key", key))
	return nil
}
