// Package s3store fetches model artifacts from S3 compatible object
// storage, the usual MLflow artifact root.
package s3store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

type Store struct {
	client *minio.Client
}

var _ ports.ArtifactStore = (*Store)(nil)

func New(cfg config.S3Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Supports(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// Fetch downloads every object under s3://bucket/prefix. Object keys are
// made relative to the prefix.
func (s *Store) Fetch(ctx context.Context, uri string, dst afero.Fs, destDir string) ([]ports.FetchedObject, error) {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	// Cancelling stops the lister goroutine when we bail out early.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ports.FetchedObject
	for obj := range s.client.ListObjects(listCtx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", uri, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || !underPrefix(prefix, obj.Key) {
			continue
		}
		rel := relKey(prefix, obj.Key)
		if err := s.download(ctx, bucket, obj.Key, dst, filepath.Join(destDir, filepath.FromSlash(rel))); err != nil {
			return nil, err
		}
		out = append(out, ports.FetchedObject{RelPath: rel, Size: obj.Size})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no objects under %s", domain.ErrArtifactNotFound, uri)
	}

	log.WithFields(log.Fields{"uri": uri, "objects": len(out)}).Debug("s3 artifact downloaded")
	return out, nil
}

func (s *Store) download(ctx context.Context, bucket, key string, dst afero.Fs, localPath string) error {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	if err := dst.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := dst.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, obj)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func splitURI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidArtifactReference, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/prefix, got %q", domain.ErrInvalidArtifactReference, uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// relKey makes key relative to prefix. A prefix naming a single object
// yields its basename.
func relKey(prefix, key string) string {
	if key == prefix {
		return path.Base(key)
	}
	p := strings.TrimSuffix(prefix, "/")
	if p == "" {
		return key
	}
	return strings.TrimPrefix(key, p+"/")
}

// underPrefix rejects sibling keys such as model10/x for prefix model1.
func underPrefix(prefix, key string) bool {
	p := strings.TrimSuffix(prefix, "/")
	return p == "" || key == prefix || strings.HasPrefix(key, p+"/")
}
