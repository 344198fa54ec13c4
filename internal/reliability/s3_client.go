// Package reliability provides database maintenance and off-site backup of registry snapshots.
package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures the S3-compatible bucket (AWS S3, Cloudflare R2, MinIO)
type S3Config struct {
	Bucket          string
	Endpoint        string // empty for AWS; account endpoint for R2 / MinIO
	Region          string // "auto" for R2
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether enough is configured to reach a bucket
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Key       string
	SizeBytes int64
}

// S3Client uploads, lists, downloads and deletes objects in one bucket
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewS3Client creates a client for cfg. Static credentials are used; a custom
// endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		log:      log.With().Str("client", "s3").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Upload stores body under key
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	c.log.Debug().Str("key", key).Msg("Object uploaded")
	return nil
}

// List returns every object whose key starts with prefix
func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	var out []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := ObjectInfo{Key: *obj.Key}
			if obj.Size != nil {
				info.SizeBytes = *obj.Size
			}
			out = append(out, info)
		}
	}

	return out, nil
}

// Download returns the content stored under key
func (c *S3Client) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored under key
func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
