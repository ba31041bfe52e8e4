package audit

import (
	"bytes"
	"context"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// S3Uploader writes audit entries to an S3-compatible bucket
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// NewS3Uploader connects to endpoint with static credentials. A scheme in
// endpoint is accepted and stripped.
func NewS3Uploader(endpoint, region, accessKey, secretKey, bucket string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	secure := !strings.HasPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}
	return &S3Uploader{client: client, bucket: bucket}, nil
}

// Upload stores data under key
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return errors.Wrapf(err, "failed to upload %s", u.Location(key))
}

// Location formats key as an s3:// URL
func (u *S3Uploader) Location(key string) string {
	return "s3://" + u.bucket + "/" + key
}
