// Package objectstore moves decks and client documents in and out of buckets.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"icdeck/internal/report"
)

// PutAPI is the subset of the S3 client used here.
type PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores decks in a bucket without replacing existing keys.
type S3Sink struct {
	api    PutAPI
	bucket string
}

func NewS3Sink(api PutAPI, bucket string) *S3Sink {
	return &S3Sink{api: api, bucket: bucket}
}

func (s *S3Sink) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if isConditionFailure(err) {
		return report.ErrExists
	}
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) Location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func isConditionFailure(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
