// Package minio uploads exported summary tables to an S3-compatible
// object store so a run's output survives beyond its local file.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tessellabio/concentra/internal/config"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/prometheus"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// objectAPI is the slice of the minio client the store actually uses.
// It keeps tests free of a live endpoint.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// minioAPI adapts *minio.Client to objectAPI. The indirection exists only
// because PutObject takes an io.Reader on the real client.
type minioAPI struct {
	c *minio.Client
}

func (a minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return a.c.BucketExists(ctx, bucket)
}

func (a minioAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return a.c.MakeBucket(ctx, bucket, opts)
}

func (a minioAPI) PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.c.PutObject(ctx, bucket, object, reader, size, opts)
}

func (a minioAPI) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return a.c.StatObject(ctx, bucket, object, opts)
}

// ArtifactStore uploads exported tables keyed by run ID.
type ArtifactStore struct {
	api     objectAPI
	cfg     config.StorageConfig
	log     logging.Logger
	metrics *prometheus.PipelineMetrics
}

// NewArtifactStore dials the configured endpoint. It does not touch the
// bucket; that happens lazily on the first upload.
func NewArtifactStore(cfg config.StorageConfig, log logging.Logger, metrics *prometheus.PipelineMetrics) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArtifactFailed, "create object storage client")
	}
	return newArtifactStore(minioAPI{c: client}, cfg, log, metrics), nil
}

func newArtifactStore(api objectAPI, cfg config.StorageConfig, log logging.Logger, metrics *prometheus.PipelineMetrics) *ArtifactStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ArtifactStore{
		api:     api,
		cfg:     cfg,
		log:     log.Named("storage"),
		metrics: metrics,
	}
}

// ObjectName returns the object key for a run's exported table.
func (s *ArtifactStore) ObjectName(runID common.RunID, format string) string {
	name := fmt.Sprintf("%s.%s", runID, format)
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}

// Upload writes the exported table to the configured bucket and returns
// the object name. The bucket is created on first use.
func (s *ArtifactStore) Upload(ctx context.Context, runID common.RunID, format string, data []byte) (string, error) {
	object := s.ObjectName(runID, format)

	if err := s.ensureBucket(ctx); err != nil {
		s.countUpload("failure")
		return "", err
	}

	start := time.Now()
	_, err := s.api.PutObject(ctx, s.cfg.Bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(format),
	})
	if err != nil {
		s.countUpload("failure")
		return "", errors.Wrapf(err, errors.CodeArtifactFailed, "upload %s", object)
	}

	s.countUpload("success")
	s.log.Info("uploaded exported table",
		logging.String("bucket", s.cfg.Bucket),
		logging.String("object", object),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return object, nil
}

// Exists reports whether a run's artifact is already in the bucket.
func (s *ArtifactStore) Exists(ctx context.Context, runID common.RunID, format string) (bool, error) {
	object := s.ObjectName(runID, format)
	_, err := s.api.StatObject(ctx, s.cfg.Bucket, object, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.CodeArtifactFailed, "stat %s", object)
	}
	return true, nil
}

func (s *ArtifactStore) ensureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return errors.Wrapf(err, errors.CodeArtifactFailed, "check bucket %s", s.cfg.Bucket)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, errors.CodeArtifactFailed, "create bucket %s", s.cfg.Bucket)
	}
	s.log.Info("created artifact bucket", logging.String("bucket", s.cfg.Bucket))
	return nil
}

func (s *ArtifactStore) countUpload(status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ArtifactUploadTotal.WithLabelValues(status).Inc()
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	default:
		return "text/tab-separated-values"
	}
}
