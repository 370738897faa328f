package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the minimal key/value object API both checkpoint backends
// implement: put a blob at a key, get it back, list keys under a prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalObjectStore stores objects as files under a base directory, keys
// mapping directly to relative paths.
type LocalObjectStore struct {
	baseDir string
}

// NewLocalObjectStore returns a LocalObjectStore rooted at baseDir, creating
// it if necessary.
func NewLocalObjectStore(baseDir string) (*LocalObjectStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", baseDir, err)
	}
	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *LocalObjectStore) Put(ctx context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return os.Rename(tmp, p)
}

func (s *LocalObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	var out []string
	err := filepath.Walk(filepath.Dir(root), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

// S3Config configures the S3 object-store backend, including the multipart
// upload policy resolved in place of the spec's unspecified defaults.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // non-empty for S3-compatible stores (MinIO, Hetzner, ...)
	AccessKeyID     string
	SecretAccessKey string

	// MultipartThresholdBytes is carried for configuration but does not set
	// the multipart cut-over: the uploader switches from a single PutObject
	// to a multipart upload once an object exceeds MultipartPartSizeBytes.
	MultipartThresholdBytes int64
	// MultipartPartSizeBytes is the size of each multipart upload part.
	MultipartPartSizeBytes int64
	// MaxRetries, RetryBackoffBase and RetryBackoffCap are not applied by
	// NewS3ObjectStore; the S3 client keeps the SDK's own retry settings.
	MaxRetries             int
	RetryBackoffBase       time.Duration
	RetryBackoffCap        time.Duration
}

// DefaultS3Config returns the default upload settings: an 8 MiB multipart
// threshold and part size, and retry values of 3 retries with backoff from
// 200ms capped at 5s. Of these, only the part size reaches the uploader
// (see the S3Config field comments).
func DefaultS3Config() S3Config {
	return S3Config{
		MultipartThresholdBytes: 8 << 20,
		MultipartPartSizeBytes:  8 << 20,
		MaxRetries:              3,
		RetryBackoffBase:        200 * time.Millisecond,
		RetryBackoffCap:         5 * time.Second,
	}
}

// S3ObjectStore stores objects in an S3-compatible bucket under a prefix.
type S3ObjectStore struct {
	cfg      S3Config
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3ObjectStore builds an S3 client from cfg, using static credentials
// when provided and the default provider chain otherwise.
func NewS3ObjectStore(ctx context.Context, cfg S3Config) (*S3ObjectStore, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.MultipartPartSizeBytes > 0 {
			u.PartSize = cfg.MultipartPartSizeBytes
		}
		if cfg.MultipartThresholdBytes > 0 {
			u.LeavePartsOnError = false
		}
	})
	return &S3ObjectStore{cfg: cfg, client: client, uploader: uploader}, nil
}

func (s *S3ObjectStore) key(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

func (s *S3ObjectStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	full := s.key(prefix)
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix+"/"))
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	sort.Strings(out)
	return out, nil
}
