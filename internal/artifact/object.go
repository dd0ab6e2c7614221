package artifact

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nucleus/tcga-import/pkg/meta"
)

// ObjectSinkConfig configures an ObjectSink.
type ObjectSinkConfig struct {
	Bucket string
	Prefix string
	// Parquet also uploads a long format parquet copy of genomic matrices.
	Parquet bool
	// UploadRate limits uploads per second; zero disables the limit.
	UploadRate  float64
	UploadBurst int
	// MaxRetries bounds retries of retryable store errors.
	MaxRetries uint64
}

// ObjectSink publishes through a LocalSink and uploads the results to an
// object store under <prefix>/<platform>/<basename>/dt=<version>/.
type ObjectSink struct {
	local   *LocalSink
	store   ObjectStore
	cfg     ObjectSinkConfig
	limiter *rate.Limiter
	logger  logrus.FieldLogger
	// newBackOff is replaced in tests.
	newBackOff func() backoff.BackOff
}

// NewObjectSink creates an object sink staging files through local.
func NewObjectSink(local *LocalSink, store ObjectStore, cfg ObjectSinkConfig, logger logrus.FieldLogger) *ObjectSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := rate.Inf
	if cfg.UploadRate > 0 {
		limit = rate.Limit(cfg.UploadRate)
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	return &ObjectSink{
		local:   local,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.UploadBurst),
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// Prepare makes sure the bucket exists.
func (s *ObjectSink) Prepare(ctx context.Context) error {
	return s.retry(ctx, func() error { return s.store.EnsureBucket(ctx, s.cfg.Bucket) })
}

// Publish stages the artifact locally, then uploads the file, its sidecar,
// the error log and the optional parquet copy.
func (s *ObjectSink) Publish(ctx context.Context, a Artifact) (*Published, error) {
	pub, err := s.local.Publish(ctx, a)
	if err != nil {
		return nil, err
	}
	dir := joinKey(s.cfg.Prefix, sanitizePath(a.Platform), a.Basename, "dt="+a.Version)

	files := []string{pub.Path, pub.Sidecar}
	if pub.ErrorLog != "" {
		files = append(files, pub.ErrorLog)
	}
	for _, path := range files {
		key := joinKey(dir, filepath.Base(path))
		if err := s.put(ctx, key, func() error { return s.store.PutFile(ctx, s.cfg.Bucket, key, path) }); err != nil {
			return nil, err
		}
		pub.Objects = append(pub.Objects, s.url(key))
	}

	if s.cfg.Parquet && meta.Annotations(meta.Clone(pub.Meta))["fileType"] == "genomicMatrix" {
		data, rows, err := MatrixToParquet(pub.Path)
		if err != nil {
			return nil, err
		}
		key := joinKey(dir, a.Name+".parquet")
		if err := s.put(ctx, key, func() error { return s.store.PutObject(ctx, s.cfg.Bucket, key, data) }); err != nil {
			return nil, err
		}
		pub.Objects = append(pub.Objects, s.url(key))
		s.logger.WithFields(logrus.Fields{"artifact": a.Name, "rows": rows}).Debug("parquet copy uploaded")
	}
	return pub, nil
}

func (s *ObjectSink) put(ctx context.Context, key string, op func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if err := s.retry(ctx, op); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.WithField("object", s.url(key)).Debug("object uploaded")
	return nil
}

// retry runs op until it succeeds, fails with a non retryable error or the
// retry budget is spent.
func (s *ObjectSink) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.cfg.MaxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		s.logger.WithError(err).WithField("wait", wait).Warn("retrying object store call")
	})
}

func (s *ObjectSink) url(key string) string {
	return fmt.Sprintf("minio://%s/%s", s.cfg.Bucket, key)
}
