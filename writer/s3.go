// Package writer persists run artifacts beyond the workbooks: the parquet
// settlement archive and the optional S3 copies.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	appconfig "settleflow/config"
	"settleflow/logger"
)

// PutObjectAPI is the part of the S3 client the publisher uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads run artifacts under <prefix>/date=YYYY-MM-DD/.
type S3Publisher struct {
	client      PutObjectAPI
	bucket      string
	prefix      string
	concurrency int
	log         *logger.Entry
}

const defaultUploadConcurrency = 3

// NewS3Publisher builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS chain applies.
func NewS3Publisher(ctx context.Context, cfg appconfig.S3Config) (*S3Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 storage is disabled")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	p := NewS3PublisherWithClient(client, bucket, cfg.Prefix)
	if cfg.UploadConcurrency > 0 {
		p.concurrency = cfg.UploadConcurrency
	}
	p.log.WithFields(logger.Fields{
		"bucket":     bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 publisher initialized")
	return p, nil
}

// NewS3PublisherWithClient wraps an existing client.
func NewS3PublisherWithClient(client PutObjectAPI, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: defaultUploadConcurrency,
		log:         logger.GetLogger().WithComponent("s3_publisher"),
	}
}

// Publish uploads files concurrently and returns their object keys in the
// order of files. Empty names are skipped. Any failure cancels the uploads
// still pending and no keys are returned.
func (p *S3Publisher) Publish(ctx context.Context, runDate time.Time, files ...string) ([]string, error) {
	names := make([]string, 0, len(files))
	for _, file := range files {
		if file != "" {
			names = append(names, file)
		}
	}

	keys := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, file := range names {
		i, file := i, file
		g.Go(func() error {
			key, err := p.upload(gctx, runDate, file)
			if err != nil {
				return err
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *S3Publisher) upload(ctx context.Context, runDate time.Time, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}

	key := p.objectKey(runDate, filepath.Base(file))
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	p.log.WithFields(logger.Fields{"s3_key": key, "bytes": len(data)}).Info("artifact uploaded")
	return key, nil
}

func (p *S3Publisher) objectKey(runDate time.Time, name string) string {
	parts := []string{fmt.Sprintf("date=%s", runDate.Format("2006-01-02")), name}
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return path.Join(parts...)
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
