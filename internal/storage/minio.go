package storage

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const removalSecretMeta = "Removal-Secret"

// MinioStorage implements MediaStore using a MinIO (or any S3-compatible) backend.
// Objects are keyed by their remote id; the removal handle is "<id>.<secret>"
// with the secret kept in the object's user metadata.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	publicBase string
	maxFetch   int64
	log        *slog.Logger
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists with a public-read
// policy, and returns a ready-to-use MinioStorage.
func NewMinioStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool, log *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Info("storage: created bucket", "bucket", bucket)
	}

	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioStorage{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		maxFetch:   MaxObjectSize,
		log:        log,
	}, nil
}

// Upload stores data under a freshly generated alphanumeric key.
func (s *MinioStorage) Upload(ctx context.Context, data []byte, displayName string) (MediaObject, error) {
	remoteID := newAlphanumericID()
	secret := newAlphanumericID()

	_, err := s.client.PutObject(ctx, s.bucket, remoteID, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
		UserMetadata: map[string]string{
			removalSecretMeta: secret,
		},
	})
	if err != nil {
		return MediaObject{}, fmt.Errorf("%w: put object %q: %v", ErrUploadFailed, remoteID, err)
	}

	s.log.Info("storage: object uploaded", "remote_id", remoteID, "size", len(data))
	return MediaObject{
		RemoteID:      remoteID,
		DisplayName:   displayName,
		Link:          s.publicBase + "/" + remoteID,
		RemovalHandle: remoteID + "." + secret,
	}, nil
}

// ResolveRetrievalURL returns the browser-accessible URL for remoteID.
func (s *MinioStorage) ResolveRetrievalURL(remoteID string) (string, error) {
	if err := ValidateRemoteID(remoteID); err != nil {
		return "", err
	}
	return s.publicBase + "/" + remoteID, nil
}

// Fetch reads the object behind url through the S3 API, so the bucket does not
// need to be reachable from this process under its public address.
func (s *MinioStorage) Fetch(ctx context.Context, url string) (Content, error) {
	key, err := keyFromURL(s.publicBase, url)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Content{}, fmt.Errorf("%w: get object %q: %v", ErrFetchFailed, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Content{}, fmt.Errorf("%w: stat object %q: %v", ErrFetchFailed, key, err)
	}
	if info.Size > s.maxFetch {
		return Content{}, fmt.Errorf("%w: object %q is %d bytes", ErrFetchFailed, key, info.Size)
	}
	data, err := readLimited(obj, s.maxFetch)
	if err != nil {
		return Content{}, fmt.Errorf("%w: read object %q: %v", ErrFetchFailed, key, err)
	}
	return Content{Bytes: data, ContentType: info.ContentType}, nil
}

// Delete removes the object after checking the secret embedded in removalHandle.
func (s *MinioStorage) Delete(ctx context.Context, removalHandle string) error {
	key, secret, err := parseRemovalHandle(removalHandle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: stat object %q: %v", ErrDeleteFailed, key, err)
	}
	if subtle.ConstantTimeCompare([]byte(metaValue(info.UserMetadata, removalSecretMeta)), []byte(secret)) != 1 {
		return fmt.Errorf("%w: removal handle rejected for %q", ErrDeleteFailed, key)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove object %q: %v", ErrDeleteFailed, key, err)
	}
	s.log.Info("storage: object deleted", "remote_id", key)
	return nil
}

func newAlphanumericID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func parseRemovalHandle(handle string) (key, secret string, err error) {
	key, secret, ok := strings.Cut(handle, ".")
	if !ok || secret == "" {
		return "", "", fmt.Errorf("malformed removal handle")
	}
	if err := ValidateRemoteID(key); err != nil {
		return "", "", err
	}
	return key, secret, nil
}

func keyFromURL(publicBase, url string) (string, error) {
	key, ok := strings.CutPrefix(url, publicBase+"/")
	if !ok {
		return "", fmt.Errorf("url %q is outside %q", url, publicBase)
	}
	if err := ValidateRemoteID(key); err != nil {
		return "", err
	}
	return key, nil
}

// metaValue looks up user metadata case-insensitively; S3 providers differ in
// how they canonicalise x-amz-meta-* names.
func metaValue(meta map[string]string, name string) string {
	for k, v := range meta {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
