package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
)

// putObjectAPI is the part of the S3 client the mirror uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies archived artifacts to an S3-compatible bucket, keyed by
// the path below the account root.
type S3Mirror struct {
	client putObjectAPI
	bucket string
}

func NewS3Mirror(ctx context.Context, cfg config.S3Config) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Mirror{client: client, bucket: cfg.Bucket}, nil
}

// Mirror uploads path and returns the s3:// location.
func (m *S3Mirror) Mirror(ctx context.Context, acc *models.Account, path string) (string, error) {
	key := MirrorKey(acc, path)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}

// MirrorKey is <reseller id>/<wholesaler id>/<measure>/<path below root>.
func MirrorKey(acc *models.Account, path string) string {
	rel, err := filepath.Rel(acc.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return fmt.Sprintf("%d/%d/%s/%s", acc.ResellerID, acc.WholesalerID,
		strings.ToLower(acc.Measure.String()), filepath.ToSlash(rel))
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return "application/zip"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
