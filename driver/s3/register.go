package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gobeaver/panefs"
)

// Scheme is the location scheme served by this package: s3://bucket/key.
const Scheme = "s3"

// Register adds the s3 scheme to r. The bucket is the location host; access
// keys in the location's user info override the configured ones.
func Register(r *panefs.Registry) {
	r.Register(Scheme, func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		if realm.Host == "" {
			return nil, fmt.Errorf("%w: s3 location needs a bucket", panefs.ErrInvalidName)
		}
		client, err := createS3Client(ctx, realm, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return New(client, realm.Host), nil
	})
}

// createS3Client creates an S3 client from config
func createS3Client(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
	)
	if err != nil {
		return nil, err
	}

	accessKey, secretKey := cfg.S3AccessKeyID, cfg.S3SecretAccessKey
	if realm.User != "" {
		accessKey, secretKey = realm.User, realm.Password
	}
	if accessKey != "" && secretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}
