package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/blade-inspector/internal/config"
)

// BlobStore persists raw/undistorted frame and keypoint-overlay snapshots
// under per-node, per-iteration keys. Generalized directly from the
// teacher's storage.MinIOStore (same client options, same bucket
// plumbing) — only the key scheme is domain-specific.
type BlobStore struct {
	client *minio.Client
	bucket string
}

func NewBlobStore(cfg config.MinIOConfig) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the snapshot bucket if it doesn't exist.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// FrameKey builds the object key for one node/iteration/kind frame, where
// kind is one of "raw_normal", "raw_sl", "undistorted", "delta".
func FrameKey(node string, iteration int, kind string) string {
	return fmt.Sprintf("%s/%08d/%s.png", node, iteration, kind)
}

// PutFrame uploads one encoded frame (already PNG/JPEG-encoded by the
// caller via gocv.IMEncode) under its iteration key.
func (s *BlobStore) PutFrame(ctx context.Context, node string, iteration int, kind string, encoded []byte) error {
	key := FrameKey(node, iteration, kind)
	reader := bytes.NewReader(encoded)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(encoded)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return fmt.Errorf("put frame %s: %w", key, err)
	}
	return nil
}

// GetFrame retrieves one encoded frame by its iteration key.
func (s *BlobStore) GetFrame(ctx context.Context, node string, iteration int, kind string) ([]byte, error) {
	key := FrameKey(node, iteration, kind)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", key, err)
	}
	return data, nil
}

// ListIterationFrames returns the object keys stored for one node,
// newest-key-ordering left to the caller (MinIO returns lexical order,
// which sorts correctly since FrameKey zero-pads the iteration).
func (s *BlobStore) ListIterationFrames(ctx context.Context, node string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    node + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list frames for %s: %w", node, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// PruneBefore deletes every object for node whose iteration number is
// below cutoff, keeping long missions from growing the bucket unbounded.
func (s *BlobStore) PruneBefore(ctx context.Context, node string, cutoff int) error {
	keys, err := s.ListIterationFrames(ctx, node)
	if err != nil {
		return err
	}

	var stale []string
	for _, k := range keys {
		var iteration int
		var kind string
		if _, err := fmt.Sscanf(k, node+"/%08d/%s", &iteration, &kind); err != nil {
			continue
		}
		if iteration < cutoff {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(stale))
	for _, key := range stale {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("prune frame %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *BlobStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// pingTimeout bounds how long a caller waits on a reachability check
// during startup before falling back to a noop store.
const pingTimeout = 5 * time.Second

// PingWithTimeout wraps Ping with pingTimeout, for use in main()'s
// best-effort startup connectivity check.
func (s *BlobStore) PingWithTimeout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.Ping(ctx)
}
