package writerbackends

import (
	"context"
	"fmt"
	"io"

	"jpg2png/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3WithCreds uploads content from an io.Reader to an S3 object
// and is fully self-contained, initializing its own client. The optional
// "endpoint" key targets S3-compatible stores (MinIO and friends).
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := checkRequired(accessInfo, Required(S3)...); err != nil {
		return err
	}
	creds := credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], "")
	key := objectKey(accessInfo)
	bucket := accessInfo["bucket"]

	s3Client := s3.New(s3.Options{
		Region:      accessInfo["region"],
		Credentials: creds,
	}, func(o *s3.Options) {
		if ep := accessInfo["endpoint"]; ep != "" {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(s3Client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}
