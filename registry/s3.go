package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/medisync/recordcrypt/interfaces"
)

// S3Registry stores key records as JSON objects in an S3 bucket, one object
// per user under a configurable key prefix.
type S3Registry struct {
	client *s3.S3
	bucket string
	prefix string
	log    *slog.Logger
}

// S3Config holds connection settings for an S3-backed registry. AccessKey and
// SecretKey may be empty to use the ambient AWS credential chain. Endpoint is
// optional and enables S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// NewS3Registry creates an S3-backed registry.
func NewS3Registry(cfg S3Config, log *slog.Logger) (*S3Registry, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Registry{
		client: s3.New(sess),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

// Fetch returns the key record stored for the user.
func (r *S3Registry) Fetch(ctx context.Context, user interfaces.UserID) (*interfaces.KeyRecord, error) {
	start := time.Now()
	key := r.objectKey(user)

	output, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, interfaces.ErrKeyNotFound
		}
		r.log.Error("Failed to read from S3",
			slog.String("key", key),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	var record interfaces.KeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("stored key record is malformed: %w", err)
	}

	r.log.Debug("Fetched key record from S3",
		slog.String("user", user.String()),
		slog.Duration("duration", time.Since(start)))
	return &record, nil
}

// Store writes the key record for the user.
func (r *S3Registry) Store(ctx context.Context, user interfaces.UserID, record *interfaces.KeyRecord) error {
	start := time.Now()
	key := r.objectKey(user)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode key record: %w", err)
	}

	_, err = r.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		r.log.Error("Failed to write to S3",
			slog.String("key", key),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	r.log.Debug("Stored key record in S3",
		slog.String("user", user.String()),
		slog.String("fingerprint", record.Fingerprint),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Delete removes the user's key record.
func (r *S3Registry) Delete(ctx context.Context, user interfaces.UserID) error {
	if _, err := r.Fetch(ctx, user); err != nil {
		return err
	}

	key := r.objectKey(user)
	_, err := r.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	r.log.Debug("Deleted key record from S3", slog.String("user", user.String()))
	return nil
}

// Available checks that the bucket can be reached.
func (r *S3Registry) Available(ctx context.Context) bool {
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.client.HeadBucketWithContext(headCtx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	if err != nil {
		r.log.Debug("S3 bucket check failed",
			slog.String("bucket", r.bucket),
			"err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (r *S3Registry) Name() string {
	return fmt.Sprintf("s3-%s-%s", r.bucket, r.prefix)
}

func (r *S3Registry) objectKey(user interfaces.UserID) string {
	sum := sha256.Sum256([]byte(user))
	name := hex.EncodeToString(sum[:]) + ".json"
	if r.prefix == "" {
		return name
	}
	return r.prefix + "/" + name
}
