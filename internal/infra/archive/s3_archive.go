package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"live-session-service/internal/domain"
)

// Config holds the S3 bucket settings for session archives.
type Config struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the slice of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads a JSON summary of every finished session.
type S3Archive struct {
	client ObjectPutter
	cfg    Config
	logger *zap.Logger
}

// NewS3Archive builds an S3 client from static keys when given, the default credential chain otherwise.
func NewS3Archive(ctx context.Context, cfg Config, logger *zap.Logger) (*S3Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else {
		logger.Info("session archive using default aws credential chain", zap.String("bucket", cfg.Bucket))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3ArchiveWithClient(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

func NewS3ArchiveWithClient(client ObjectPutter, cfg Config, logger *zap.Logger) *S3Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Archive{client: client, cfg: cfg, logger: logger}
}

func (a *S3Archive) RecordSession(ctx context.Context, summary domain.SessionSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	key := a.Key(summary.Code, summary.EndedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("session archived", zap.String("session_code", summary.Code), zap.String("key", key))
	return nil
}

// Key returns {prefix}/{code}/{endedAt}.json.
func (a *S3Archive) Key(code string, endedAt time.Time) string {
	return path.Join(a.cfg.Prefix, code, endedAt.UTC().Format("20060102T150405Z")+".json")
}
