// Package backup copies checkpoint snapshots to S3 and back.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dd0wney/cluso-framegraph/pkg/config"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/metrics"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

// ErrNotFound is returned when a checkpoint object does not exist
var ErrNotFound = errors.New("checkpoint not found")

const seqMetadataKey = "framegraph-seq"

// Client is the subset of the S3 API the uploader calls
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// NewClient builds an S3 client from the backup section. Static keys are
// used when configured, otherwise the default AWS credential chain.
func NewClient(ctx context.Context, cfg config.BackupConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Uploader stores checkpoints under <prefix>checkpoint-<seq>.json plus a
// "latest" pointer object.
type Uploader struct {
	client  Client
	bucket  string
	prefix  string
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewUploader creates an uploader for bucket
func NewUploader(client Client, bucket, prefix string, logger logging.Logger, reg *metrics.Registry) *Uploader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Uploader{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		logger:  logger.With(logging.Component("backup")),
		metrics: reg,
	}
}

// Key returns the object key of the checkpoint taken at seq
func (u *Uploader) Key(seq uint64) string {
	return path.Join(u.prefix, fmt.Sprintf("checkpoint-%020d.json", seq))
}

func (u *Uploader) latestKey() string {
	return path.Join(u.prefix, "LATEST")
}

// Upload copies a written checkpoint to S3 and moves the latest pointer to it
func (u *Uploader) Upload(ctx context.Context, info txn.CheckpointInfo) (key string, err error) {
	start := time.Now()
	var size int64
	defer func() { u.metrics.RecordBackup(err, size) }()

	f, err := os.Open(info.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	key = u.Key(info.Seq)
	seq := strconv.FormatUint(info.Seq, 10)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String("application/json"),
		Metadata:      map[string]string{seqMetadataKey: seq},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.latestKey()),
		Body:        strings.NewReader(key),
		ContentType: aws.String("text/plain"),
		Metadata:    map[string]string{seqMetadataKey: seq},
	})
	if err != nil {
		return "", fmt.Errorf("failed to update latest checkpoint pointer: %w", err)
	}

	size = stat.Size()
	u.logger.Info("checkpoint uploaded",
		logging.String("bucket", u.bucket),
		logging.String("key", key),
		logging.Seq(info.Seq),
		logging.Int64("bytes", size),
		logging.Latency(time.Since(start)))
	return key, nil
}

// Latest returns the key of the most recently uploaded checkpoint
func (u *Uploader) Latest(ctx context.Context) (string, error) {
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.latestKey()),
	})
	if err != nil {
		return "", notFound(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, 1024))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Download writes the checkpoint stored under key to dest, replacing it atomically
func (u *Uploader) Download(ctx context.Context, key, dest string) (int64, error) {
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, notFound(err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".download-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, out.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	u.logger.Info("checkpoint downloaded", logging.String("key", key), logging.Path(dest), logging.Int64("bytes", n))
	return n, nil
}

// Exists reports whether a checkpoint for seq has been uploaded
func (u *Uploader) Exists(ctx context.Context, seq uint64) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.Key(seq)),
	})
	if err == nil {
		return true, nil
	}
	if err = notFound(err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func notFound(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
