package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Archiver uploads snapshots to an S3-compatible bucket (AWS or MinIO).
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	clock  common.Clock
}

func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, clock common.Clock) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.S3Bucket, prefix: cfg.S3Prefix, clock: clock}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, db *sql.DB, label string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "regifarm-archive-")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	name := snapshotName(label, a.clock)
	path := filepath.Join(tmpDir, name)
	if err := vacuumInto(ctx, db, path); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := a.prefix + name
	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}
