package artifacts

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	apperrors "github.com/inferloop/modelops/pkg/errors"
)

// S3Config holds configuration for the S3 artifact backend.
type S3Config struct {
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style" yaml:"force_path_style"`
	DisableSSL      bool   `json:"disable_ssl" yaml:"disable_ssl"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	MaxRetries      int    `json:"max_retries" yaml:"max_retries"`
	PartSize        int64  `json:"part_size" yaml:"part_size"`
}

// S3Store keeps artifacts in an S3 bucket under an optional key prefix.
type S3Store struct {
	config     *S3Config
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.Mutex
	closed     bool
}

// NewS3Store creates an S3 session and verifies bucket access.
func NewS3Store(ctx context.Context, config *S3Config, logger *logrus.Logger) (*S3Store, error) {
	if config == nil || config.Bucket == "" {
		return nil, apperrors.NewInvalidArgumentError(nil, apperrors.CodeMissingField, "s3 bucket is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	awsConfig := &aws.Config{
		Region:     aws.String(config.Region),
		MaxRetries: aws.Int(config.MaxRetries),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			config.SessionToken,
		)
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(config.ForcePathStyle)
	}
	if config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, apperrors.NewInternalError("create AWS session", err)
	}

	store := &S3Store{
		config:     config,
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
		logger:     logger,
	}
	if config.PartSize > 0 {
		store.uploader.PartSize = config.PartSize
	}

	if _, err := store.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(config.Bucket),
	}); err != nil {
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("access bucket %q", config.Bucket), err)
	}

	logger.WithFields(logrus.Fields{
		"region": config.Region,
		"bucket": config.Bucket,
	}).Info("Connected to S3 artifact store")

	return store, nil
}

func (s *S3Store) objectKey(key string) string {
	clean := path.Clean(key)
	clean = strings.TrimPrefix(clean, "/")
	if s.config.Prefix == "" {
		return clean
	}
	return path.Join(s.config.Prefix, clean)
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	objKey := s.objectKey(key)
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(objKey),
		Body:   r,
	})
	if err != nil {
		return "", apperrors.NewInternalError("s3 upload failed", err)
	}
	s.logger.WithField("key", objKey).Debug("Stored artifact")
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, objKey), nil
}

func (s *S3Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNoSuchKey(err) {
		return nil, apperrors.NewNotFoundError(apperrors.ErrArtifactNotFound, apperrors.CodeArtifactNotFound, key)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("s3 download failed", err)
	}
	return out.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNoSuchKey(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewInternalError("s3 head failed", err)
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return apperrors.NewInternalError("s3 delete failed", err)
	}
	return nil
}

func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true
	return nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
