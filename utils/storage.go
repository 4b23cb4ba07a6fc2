// geochat/utils/storage.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LocalStorage implements models.StorageService on local disk.
type LocalStorage struct {
	Dir string
}

// NewLocalStorage ensures dir exists and returns a storage rooted at it.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create storage directory %s: %w", dir, err)
	}
	return &LocalStorage{Dir: dir}, nil
}

func (ls *LocalStorage) SaveFile(_ context.Context, filename string, data []byte, _ string) (string, error) {
	fullPath := filepath.Join(ls.Dir, filepath.Base(filename))
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", err
	}
	return fullPath, nil
}

func (ls *LocalStorage) DeleteFile(_ context.Context, path string) error {
	fullPath := filepath.Join(ls.Dir, filepath.Base(path))
	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// S3Storage implements models.StorageService for S3-compatible object storage.
type S3Storage struct {
	Client     *minio.Client
	BucketName string
	Prefix     string
}

func NewS3Storage(ctx context.Context, endpoint, accessKey, secretKey, bucket, region, prefix string, useSSL bool) (*S3Storage, error) {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		// Fall back to IAM role credentials when no static keys are configured.
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	return &S3Storage{
		Client:     minioClient,
		BucketName: bucket,
		Prefix:     strings.Trim(prefix, "/"),
	}, nil
}

func (s3 *S3Storage) objectKey(filename string) string {
	if s3.Prefix == "" {
		return filename
	}
	return s3.Prefix + "/" + filename
}

func (s3 *S3Storage) SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key := s3.objectKey(filename)
	_, err := s3.Client.PutObject(ctx, s3.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s3.BucketName, key), nil
}

func (s3 *S3Storage) DeleteFile(ctx context.Context, path string) error {
	key := strings.TrimPrefix(path, "s3://"+s3.BucketName+"/")
	return s3.Client.RemoveObject(ctx, s3.BucketName, key, minio.RemoveObjectOptions{})
}
