// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/utils"
)

// BlobStore holds document bytes. The engine only ever handles the returned
// reference.
type BlobStore interface {
	Put(ctx context.Context, content []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

var ErrBlobNotFound = errors.New("blob not found")

// NewBlobStore returns S3 storage when AWS credentials are configured and the
// local filesystem otherwise.
func NewBlobStore(cfg *config.Config) (BlobStore, error) {
	if cfg.AWS.AccessKeyID == "" {
		return NewFileBlobStore(cfg.Storage.LocalPath), nil
	}
	return NewS3BlobStore(cfg.AWS)
}

type S3BlobStore struct {
	s3Client *s3.S3
	bucket   string
}

func NewS3BlobStore(cfg config.AWSConfig) (*S3BlobStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3BlobStore{
		s3Client: s3.New(sess),
		bucket:   cfg.S3Bucket,
	}, nil
}

func (s *S3BlobStore) Put(ctx context.Context, content []byte, contentType string) (string, error) {
	key := generateBlobKey("documents")

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}

func (s *S3BlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// FileBlobStore keeps blobs under a local directory for development.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) *FileBlobStore {
	return &FileBlobStore{root: root}
}

func (s *FileBlobStore) Put(ctx context.Context, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := generateBlobKey("documents")
	path := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return key, nil
}

func (s *FileBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid blob reference %q", ref)
	}

	content, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return content, nil
}

func generateBlobKey(folder string) string {
	timestamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("%s/%s/%s", folder, timestamp, utils.NanoID(21))
}

// DetectDocumentType accepts PDF, JPEG and PNG uploads by signature.
func DetectDocumentType(buffer []byte) (string, bool) {
	switch {
	case len(buffer) >= 5 && string(buffer[0:5]) == "%PDF-":
		return "application/pdf", true
	case len(buffer) >= 3 && buffer[0] == 0xFF && buffer[1] == 0xD8 && buffer[2] == 0xFF:
		return "image/jpeg", true
	case len(buffer) >= 8 && buffer[0] == 0x89 && buffer[1] == 0x50 && buffer[2] == 0x4E && buffer[3] == 0x47:
		return "image/png", true
	}
	return "", false
}
