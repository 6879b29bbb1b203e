// Package minio provides a MinIO implementation of filestore.Store. The
// datasets tree lives in one bucket, keyed exactly like the local
// directory layout.
//
// Usage:
//
//	cfg := filestore.MinIOConfig("localhost:9000", "minioadmin", "minioadmin", "vtapi")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection and the bucket before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindConfig, "minio filestore: bucket not set")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Bucket returns the bucket holding the datasets tree.
func (d *Driver) Bucket() string { return d.bucket }

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable and the bucket exists.
func (d *Driver) Ping(ctx context.Context) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", d.bucket)
	}
	return nil
}

// Close is a no-op for MinIO: the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// List returns objects below opts.Prefix. Without Recursive, common
// prefixes come back as IsDir entries.
func (d *Driver) List(ctx context.Context, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	prefix, err := filestore.CleanKey(opts.Prefix)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		prefix += "/"
	}
	listOpts := miniogo.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: opts.Recursive,
	}

	// Stop the listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var results []filestore.ObjectInfo
	for obj := range d.client.ListObjects(ctx, d.bucket, listOpts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}

		isDir := strings.HasSuffix(obj.Key, "/")
		results = append(results, filestore.ObjectInfo{
			Key:          strings.TrimSuffix(obj.Key, "/"),
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
			IsDir:        isDir,
		})

		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}

// Open opens a streaming handle to the object at key.
// The caller MUST call Object.Close() after reading.
func (d *Driver) Open(ctx context.Context, key string) (filestore.Object, error) {
	k, err := filestore.CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := d.client.GetObject(ctx, d.bucket, k, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{
		ReadCloser: obj,
		info:       toInfo(k, stat),
	}, nil
}

// Stat returns metadata for the object at key without downloading its
// content.
func (d *Driver) Stat(ctx context.Context, key string) (*filestore.ObjectInfo, error) {
	k, err := filestore.CleanKey(key)
	if err != nil {
		return nil, err
	}
	stat, err := d.client.StatObject(ctx, d.bucket, k, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	info := toInfo(k, stat)
	return &info, nil
}

// --- internal types ---

func toInfo(key string, stat miniogo.ObjectInfo) filestore.ObjectInfo {
	return filestore.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return &o.info
}

var _ filestore.Store = (*Driver)(nil)
