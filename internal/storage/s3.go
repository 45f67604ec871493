package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the part of *s3.Client the image store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps blobs under prefix in an S3 bucket.
type S3Storage struct {
	client  S3API
	bucket  string
	prefix  string
	newName func(ext string) string
}

func NewS3Storage(client S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		newName: utils.BlobName,
	}
}

func (s *S3Storage) key(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return path.Join(s.prefix, ref)
}

// Put uploads with If-None-Match: * so the bucket refuses to replace an
// existing key; a refused name is retried with a new one.
func (s *S3Storage) Put(ctx context.Context, data []byte, ext string) (string, error) {
	for range maxPutAttempts {
		name := s.newName(ext)

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(name)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(http.DetectContentType(data)),
			IfNoneMatch: aws.String("*"),
		})
		if err == nil {
			return name, nil
		}
		if !isConditionFailure(err) {
			return "", fmt.Errorf("%w: upload image: %v", types.ErrStorage, err)
		}
	}

	return "", fmt.Errorf("%w: no free image name after %d attempts", types.ErrStorage, maxPutAttempts)
}

func (s *S3Storage) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if isMissing(err) {
		return nil, fmt.Errorf("%w: %s", types.ErrImageNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %v", types.ErrStorage, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %v", types.ErrStorage, err)
	}

	return data, nil
}

func (s *S3Storage) Delete(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete image: %v", types.ErrStorage, err)
	}

	return nil
}

func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

func isMissing(err error) bool {
	if err == nil {
		return false
	}

	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}
