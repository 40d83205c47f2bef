package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/manualforge/ragcore/internal/config"
	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

// S3Client is the tenant-scoped blob store. Every call validates that the
// key carries the caller's tenant prefix before touching the network.
type S3Client struct {
	client *s3.Client
	region string
	bucket string
	log    *logger.Logger
}

var _ core.ObjectStore = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfgv *cfg.Config, log *logger.Logger) (*S3Client, error) {
	if cfgv.AwsAccessKey == "" || cfgv.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfgv.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfgv.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}
	if log == nil {
		log = logger.NewNop()
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfgv.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfgv.AwsAccessKey, cfgv.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Client{
		client: s3.NewFromConfig(awsCfg),
		region: cfgv.AwsRegion,
		bucket: cfgv.BucketName,
		log:    log,
	}, nil
}

// Upload stores an object under the tenant-scoped key and returns its URL.
func (c *S3Client) Upload(ctx context.Context, tenantID int64, key string, data io.Reader, contentType string) (string, error) {
	if err := ValidateTenantKey(key, tenantID); err != nil {
		return "", err
	}
	uploader := manager.NewUploader(c.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
	return url, nil
}

func (c *S3Client) Download(ctx context.Context, tenantID int64, key string) ([]byte, error) {
	if err := ValidateTenantKey(key, tenantID); err != nil {
		return nil, err
	}
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// DownloadToFile streams the object into localPath. The caller owns the
// file's lifetime.
func (c *S3Client) DownloadToFile(ctx context.Context, tenantID int64, key, localPath string) error {
	if err := ValidateTenantKey(key, tenantID); err != nil {
		return err
	}
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	return nil
}

func (c *S3Client) Delete(ctx context.Context, tenantID int64, key string) error {
	if err := ValidateTenantKey(key, tenantID); err != nil {
		return err
	}
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}
