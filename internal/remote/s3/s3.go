// Package s3 implements remote.Store on any S3-compatible endpoint via
// minio-go. Folders are modeled as zero-byte marker objects with a
// trailing slash, the usual object-store convention.
package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mediasync/internal/remote"
)

// Options configures the S3-backed store.
type Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Logger    *slog.Logger
}

// Store talks to one bucket on an S3-compatible endpoint.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New creates the store. The transport settings match what worked well for
// sustained large-object transfers.
func New(opts Options) (*Store, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: initialize client: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		bucket: opts.Bucket,
		logger: logger.With("component", "s3"),
	}, nil
}

// key converts an absolute slash path to an object key.
func key(p string) string {
	return strings.Trim(p, "/")
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// IsConnected probes the bucket with an authenticated existence check.
func (s *Store) IsConnected(ctx context.Context) bool {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil && ok
}

// GetMetadata returns the entry at path, treating both marker objects and
// non-empty prefixes as folders.
func (s *Store) GetMetadata(ctx context.Context, p string) (remote.Entry, error) {
	k := key(p)
	if k == "" {
		// Bucket root always exists.
		return remote.Entry{Path: "/", Name: "/", Kind: remote.KindFolder}, nil
	}

	info, err := s.client.StatObject(ctx, s.bucket, k, minio.StatObjectOptions{})
	if err == nil {
		return remote.Entry{
			Path:        "/" + k,
			Name:        path.Base(k),
			Kind:        remote.KindFile,
			Modified:    info.LastModified,
			Size:        info.Size,
			ContentHash: strings.Trim(info.ETag, `"`),
		}, nil
	}
	if !isNoSuchKey(err) {
		return remote.Entry{}, fmt.Errorf("s3: stat %s: %w", p, err)
	}

	// Not a file: a folder marker or any object under the prefix counts.
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:  k + "/",
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return remote.Entry{}, fmt.Errorf("s3: list %s: %w", p, obj.Err)
		}
		return remote.Entry{Path: "/" + k, Name: path.Base(k), Kind: remote.KindFolder}, nil
	}
	return remote.Entry{}, fmt.Errorf("s3: %s: %w", p, remote.ErrNotFound)
}

// ListFolder lists immediate children; prefixes become folder entries and
// marker objects are dropped.
func (s *Store) ListFolder(ctx context.Context, p string) ([]remote.Entry, error) {
	prefix := key(p)
	if prefix != "" {
		prefix += "/"
	}

	var entries []remote.Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", p, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" {
			continue // the folder's own marker
		}
		if strings.HasSuffix(name, "/") {
			entries = append(entries, remote.Entry{
				Path: "/" + strings.TrimSuffix(obj.Key, "/"),
				Name: strings.TrimSuffix(name, "/"),
				Kind: remote.KindFolder,
			})
			continue
		}
		entries = append(entries, remote.Entry{
			Path:        "/" + obj.Key,
			Name:        name,
			Kind:        remote.KindFile,
			Modified:    obj.LastModified,
			Size:        obj.Size,
			ContentHash: strings.Trim(obj.ETag, `"`),
		})
	}
	return entries, nil
}

// CreateFolder writes the folder's marker object.
func (s *Store) CreateFolder(ctx context.Context, p string) error {
	k := key(p)
	if k == "" {
		return nil
	}
	_, err := s.client.PutObject(ctx, s.bucket, k+"/", strings.NewReader(""), 0,
		minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("s3: create folder %s: %w", p, err)
	}
	return nil
}

// Upload transfers the local file, setting a content type for the common
// media extensions.
func (s *Store) Upload(ctx context.Context, localPath, remotePath string) error {
	opts := minio.PutObjectOptions{ContentType: contentTypeFor(remotePath)}
	_, err := s.client.FPutObject(ctx, s.bucket, key(remotePath), localPath, opts)
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", remotePath, err)
	}
	return nil
}

// Download streams the object to localPath.
func (s *Store) Download(ctx context.Context, remotePath, localPath string) error {
	err := s.client.FGetObject(ctx, s.bucket, key(remotePath), localPath,
		minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("s3: download %s: %w", remotePath, remote.ErrNotFound)
		}
		return fmt.Errorf("s3: download %s: %w", remotePath, err)
	}
	return nil
}

// Delete removes a file, or a folder together with everything under it.
func (s *Store) Delete(ctx context.Context, p string) error {
	entry, err := s.GetMetadata(ctx, p)
	if err != nil {
		return err
	}
	if entry.Kind == remote.KindFile {
		return s.client.RemoveObject(ctx, s.bucket, key(p), minio.RemoveObjectOptions{})
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    key(p) + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("s3: delete %s: %w", p, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("s3: delete %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Move copies then removes. When the destination name is taken, a numeric
// suffix is appended rather than overwriting.
func (s *Store) Move(ctx context.Context, fromPath, toPath string) error {
	dest := toPath
	for i := 1; ; i++ {
		if _, err := s.GetMetadata(ctx, dest); err != nil {
			break // free slot
		}
		ext := path.Ext(toPath)
		base := strings.TrimSuffix(toPath, ext)
		dest = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: key(dest)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key(fromPath)})
	if err != nil {
		return fmt.Errorf("s3: move %s: %w", fromPath, err)
	}
	return s.client.RemoveObject(ctx, s.bucket, key(fromPath), minio.RemoveObjectOptions{})
}

func contentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
