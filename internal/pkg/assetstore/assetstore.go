package assetstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/env"
)

// Config holds the S3-compatible object storage settings for generated
// covers and their thumbnails.
type Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// LoadConfigFromEnv reads the asset store configuration.
func LoadConfigFromEnv() *Config {
	return &Config{
		Enabled:         env.GetEnv("S3_ENABLED", "false") == "true",
		Region:          env.GetEnv("S3_REGION", "auto"),
		Bucket:          env.GetEnv("S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("S3_PUBLIC_BASE_URL", ""), "/"),
	}
}

// Client wraps the S3 client with cover-asset specific functionality
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new asset store client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("asset store is disabled")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is not configured")
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// Path-style addressing for S3-compatible providers
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[AssetStore] Successfully initialized S3 client for bucket: %s", cfg.Bucket)
	return client, nil
}

func (c *Client) testConnection() error {
	_, err := c.s3Client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(c.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.config.Bucket, err)
	}
	return nil
}

// Upload stores an object under the given key and returns the storage key.
func (c *Client) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// PublicURL resolves a storage key to its public URL, if one is configured.
func (c *Client) PublicURL(key string) string {
	if c.config.PublicBaseURL == "" || key == "" {
		return ""
	}
	return c.config.PublicBaseURL + "/" + key
}
