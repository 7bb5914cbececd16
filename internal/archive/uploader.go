package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader abstracts object storage so the service can be tested without a
// real bucket, the same narrow-interface seam the teacher draws around its
// external clients (e.g. telegraph's slackClient/session).
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// S3Uploader is the production Uploader, backed by an S3 bucket.
type S3Uploader struct {
	Client *s3.Client
	Bucket string
}

func (u *S3Uploader) Put(ctx context.Context, key string, body []byte) error {
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
