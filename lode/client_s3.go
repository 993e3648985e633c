package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the ledger in an S3 bucket or an S3-compatible store
// such as MinIO or R2. Credentials come from the AWS default chain.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string // empty uses the default chain
	Endpoint     string // empty uses AWS
	UsePathStyle bool
}

// Validate checks that a bucket is set.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" (or a bare "bucket").
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// NewLodeS3Client creates a ledger client writing to S3.
func NewLodeS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeClient, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewLodeClientWithFactory(cfg, factory)
}

func newS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("load AWS config: %w", err), s3cfg.Bucket)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})
	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}

	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}
