package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
)

type BucketCategory string

const (
	// BucketCategorySnapshot holds the raw repository snapshots pulled at intake.
	BucketCategorySnapshot BucketCategory = "snapshot"
	// BucketCategoryExport holds generated course bundles.
	BucketCategoryExport BucketCategory = "export"
)

type bucketConfig struct {
	name      string
	cdnDomain string
}

type BucketService interface {
	UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error
	DeleteFile(ctx context.Context, category BucketCategory, key string) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error
	GetPublicURL(category BucketCategory, key string) string
}

type bucketService struct {
	log            *logger.Logger
	storageClient  *storage.Client
	snapshotBucket bucketConfig
	exportBucket   bucketConfig
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	snapshotBucketName := os.Getenv("SNAPSHOT_GCS_BUCKET_NAME")
	exportBucketName := os.Getenv("EXPORT_GCS_BUCKET_NAME")
	if snapshotBucketName == "" {
		return nil, fmt.Errorf("missing env var SNAPSHOT_GCS_BUCKET_NAME")
	}
	if exportBucketName == "" {
		return nil, fmt.Errorf("missing env var EXPORT_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		snapshotBucket: bucketConfig{
			name:      snapshotBucketName,
			cdnDomain: os.Getenv("SNAPSHOT_CDN_DOMAIN"),
		},
		exportBucket: bucketConfig{
			name:      exportBucketName,
			cdnDomain: os.Getenv("EXPORT_CDN_DOMAIN"),
		},
	}, nil
}

func (bs *bucketService) getBucketConfig(category BucketCategory) (bucketConfig, error) {
	switch category {
	case BucketCategorySnapshot:
		return bs.snapshotBucket, nil
	case BucketCategoryExport:
		return bs.exportBucket, nil
	default:
		return bucketConfig{}, fmt.Errorf("unknown bucket category: %s", category)
	}
}

func (bs *bucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(cfg.name).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".md"), strings.HasSuffix(s, ".markdown"):
		return "text/markdown"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain"
	case strings.HasSuffix(s, ".tar.gz"), strings.HasSuffix(s, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(s, ".zip"):
		return "application/zip"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	default:
		return ""
	}
}

func (bs *bucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := bs.storageClient.Bucket(cfg.name).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, cfg.name, err)
	}
	return nil
}

func (bs *bucketService) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(cfg.name).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) DeletePrefix(ctx context.Context, category BucketCategory, prefix string) error {
	keys, err := bs.ListKeys(ctx, category, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := bs.DeleteFile(ctx, category, k); err != nil {
			bs.log.Warn("Failed to delete object during prefix cleanup", "key", k, "error", err.Error())
		}
	}
	return nil
}

func (bs *bucketService) GetPublicURL(category BucketCategory, key string) string {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return key
	}
	if cfg.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", cfg.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.name, key)
}

// Do NOT `defer cancel()` before returning the reader; the context must stay
// alive until the caller closes it.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	cfg, err := bs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)

	r, err := bs.storageClient.Bucket(cfg.name).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}

	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}
