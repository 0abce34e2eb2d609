package mlflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

const artifactsScheme = "mlflow-artifacts:"

// ArtifactRepo downloads mlflow-artifacts:/ locations through the tracking
// server's artifact proxy.
type ArtifactRepo struct {
	c *Client
}

var _ ports.ArtifactStore = (*ArtifactRepo)(nil)

func NewArtifactRepo(c *Client) *ArtifactRepo {
	return &ArtifactRepo{c: c}
}

type listArtifactsResponse struct {
	Files []struct {
		Path     string `json:"path"`
		IsDir    bool   `json:"is_dir"`
		FileSize int64  `json:"file_size"`
	} `json:"files"`
}

func (r *ArtifactRepo) Supports(uri string) bool {
	return strings.HasPrefix(uri, artifactsScheme)
}

func (r *ArtifactRepo) Fetch(ctx context.Context, uri string, dst afero.Fs, destDir string) ([]ports.FetchedObject, error) {
	root, err := artifactPath(uri)
	if err != nil {
		return nil, err
	}

	var out []ports.FetchedObject
	if err := r.walk(ctx, root, "", func(rel string, size int64) error {
		if err := r.download(ctx, path.Join(root, rel), dst, filepath.Join(destDir, filepath.FromSlash(rel))); err != nil {
			return err
		}
		out = append(out, ports.FetchedObject{RelPath: rel, Size: size})
		return nil
	}); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no artifacts under %s", domain.ErrArtifactNotFound, uri)
	}
	return out, nil
}

func (r *ArtifactRepo) walk(ctx context.Context, root, rel string, fn func(rel string, size int64) error) error {
	q := url.Values{"path": {path.Join(root, rel)}}
	var listing listArtifactsResponse
	if err := r.c.do(ctx, http.MethodGet, "/api/2.0/mlflow-artifacts/artifacts?"+q.Encode(), nil, &listing); err != nil {
		return fmt.Errorf("list %s: %w", path.Join(root, rel), err)
	}

	for _, f := range listing.Files {
		child := path.Join(rel, path.Base(f.Path))
		if f.IsDir {
			if err := r.walk(ctx, root, child, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(child, f.FileSize); err != nil {
			return err
		}
	}
	return nil
}

func (r *ArtifactRepo) download(ctx context.Context, remotePath string, dst afero.Fs, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.c.baseURL+"/api/2.0/mlflow-artifacts/artifacts/"+escapePath(remotePath), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r.c.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.c.token)
	}

	resp, err := r.c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %w", remotePath, decodeError(resp))
	}

	if err := dst.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := dst.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}

	log.WithFields(log.Fields{"artifact": remotePath, "bytes": n}).Debug("artifact downloaded")
	return nil
}

// artifactPath strips the scheme and optional authority of an
// mlflow-artifacts URI.
func artifactPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArtifactReference, err)
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		p = strings.Trim(u.Opaque, "/")
	}
	if p == "" {
		return "", fmt.Errorf("%w: empty artifact path in %q", domain.ErrInvalidArtifactReference, uri)
	}
	return p, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
