// Package filestore fetches model artifacts that already sit on a
// filesystem the service can read: plain paths and file:// URIs.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

type Store struct {
	src afero.Fs
}

var _ ports.ArtifactStore = (*Store)(nil)

func New(src afero.Fs) *Store {
	return &Store{src: src}
}

// Supports accepts file:// URIs and anything without a scheme.
func (s *Store) Supports(uri string) bool {
	if strings.HasPrefix(uri, "file://") {
		return true
	}
	return !strings.Contains(uri, "://") && !strings.Contains(uri, ":/")
}

// Fetch copies a single file or a whole directory tree. A single file lands
// under its basename.
func (s *Store) Fetch(ctx context.Context, uri string, dst afero.Fs, destDir string) ([]ports.FetchedObject, error) {
	root, err := localPath(uri)
	if err != nil {
		return nil, err
	}

	info, err := s.src.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, uri)
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		rel := filepath.Base(root)
		n, err := copyFile(ctx, s.src, root, dst, filepath.Join(destDir, rel))
		if err != nil {
			return nil, err
		}
		return []ports.FetchedObject{{RelPath: rel, Size: n}}, nil
	}

	var out []ports.FetchedObject
	err = afero.Walk(s.src, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if _, err := copyFile(ctx, s.src, p, dst, filepath.Join(destDir, rel)); err != nil {
			return err
		}
		out = append(out, ports.FetchedObject{RelPath: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrArtifactNotFound, uri)
	}
	return out, nil
}

func localPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return filepath.Clean(uri), nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArtifactReference, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", domain.ErrInvalidArtifactReference, u.Host)
	}
	return filepath.FromSlash(u.Path), nil
}

func copyFile(ctx context.Context, src afero.Fs, from string, dst afero.Fs, to string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	in, err := src.Open(from)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := dst.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return 0, err
	}
	out, err := dst.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", from, err)
	}
	return n, nil
}
