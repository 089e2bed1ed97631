package client

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cinevideo/api/internal/config"
)

// S3Publisher uploads artifacts to Cloudflare R2 or any S3-compatible bucket
type S3Publisher struct {
	s3Client     *s3.Client
	presigner    *s3.PresignClient
	bucketName   string
	publicURL    string
	prefix       string
	signedURLTTL time.Duration
}

// NewS3Publisher creates a new object storage publisher
func NewS3Publisher(ctx context.Context, cfg *config.R2Config) (*S3Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("object storage configuration incomplete")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("object storage needs r2.endpoint or r2.account_id")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
		}, nil
	})

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &S3Publisher{
		s3Client:     s3Client,
		presigner:    s3.NewPresignClient(s3Client),
		bucketName:   cfg.BucketName,
		publicURL:    cfg.PublicURL,
		prefix:       cfg.Prefix,
		signedURLTTL: ttl,
	}, nil
}

func (c *S3Publisher) Name() string { return "s3" }

// Publish uploads the file at localPath under prefix+key
func (c *S3Publisher) Publish(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	objectKey := path.Join(c.prefix, key)
	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to object storage: %w", err)
	}

	if c.publicURL != "" {
		return c.PublicURL(objectKey), nil
	}
	return c.SignedURL(ctx, objectKey)
}

// SignedURL generates a presigned URL for temporary access
func (c *S3Publisher) SignedURL(ctx context.Context, objectKey string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(c.signedURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}

// PublicURL returns the public CDN URL for an object key
func (c *S3Publisher) PublicURL(objectKey string) string {
	return fmt.Sprintf("%s/%s", c.publicURL, objectKey)
}
