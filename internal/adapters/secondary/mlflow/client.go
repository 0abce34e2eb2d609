// Package mlflow talks to an MLflow tracking server over its REST API.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"edge-deploy-service/internal/config"
	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ ports.TrackingStore = (*Client)(nil)

func NewClient(cfg config.TrackingConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

// MLflow API response structures
type downloadURIResponse struct {
	ArtifactURI string `json:"artifact_uri"`
}

type latestVersionsResponse struct {
	ModelVersions []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Source  string `json:"source"`
	} `json:"model_versions"`
}

type getRunResponse struct {
	Run struct {
		Info struct {
			RunID       string `json:"run_id"`
			ArtifactURI string `json:"artifact_uri"`
		} `json:"info"`
	} `json:"run"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// DownloadURI resolves a registered model version. "latest" is the highest
// version number across all stages.
func (c *Client) DownloadURI(ctx context.Context, name, version string) (string, error) {
	if version == domain.LatestVersion {
		latest, err := c.latestVersion(ctx, name)
		if err != nil {
			return "", err
		}
		version = latest
	}

	q := url.Values{"name": {name}, "version": {version}}
	var out downloadURIResponse
	if err := c.do(ctx, http.MethodGet, "/api/2.0/mlflow/model-versions/get-download-uri?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("get download uri for %s/%s: %w", name, version, err)
	}
	if out.ArtifactURI == "" {
		return "", fmt.Errorf("%w: %s/%s has no artifact location", domain.ErrArtifactNotFound, name, version)
	}
	return out.ArtifactURI, nil
}

func (c *Client) RunArtifactURI(ctx context.Context, runID, artifactPath string) (string, error) {
	q := url.Values{"run_id": {runID}}
	var out getRunResponse
	if err := c.do(ctx, http.MethodGet, "/api/2.0/mlflow/runs/get?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("get run %s: %w", runID, err)
	}
	base := strings.TrimRight(out.Run.Info.ArtifactURI, "/")
	if base == "" {
		return "", fmt.Errorf("%w: run %s has no artifact location", domain.ErrArtifactNotFound, runID)
	}
	if artifactPath == "" {
		return base, nil
	}
	return base + "/" + strings.Trim(artifactPath, "/"), nil
}

func (c *Client) latestVersion(ctx context.Context, name string) (string, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	var out latestVersionsResponse
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/registered-models/get-latest-versions", body, &out); err != nil {
		return "", fmt.Errorf("get latest versions of %s: %w", name, err)
	}

	best, bestNum := "", -1
	for _, mv := range out.ModelVersions {
		n, err := strconv.Atoi(mv.Version)
		if err != nil {
			continue
		}
		if n > bestNum {
			best, bestNum = mv.Version, n
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: registered model %s has no versions", domain.ErrArtifactNotFound, name)
	}
	return best, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.WithFields(log.Fields{
		"method": method,
		"path":   path,
	}).Debug("mlflow request")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mlflow request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode mlflow response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var apiErr apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &apiErr)

	if resp.StatusCode == http.StatusNotFound || apiErr.ErrorCode == "RESOURCE_DOES_NOT_EXIST" {
		return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, apiErr.Message)
	}
	if apiErr.Message != "" {
		return fmt.Errorf("mlflow returned %d (%s): %s", resp.StatusCode, apiErr.ErrorCode, apiErr.Message)
	}
	return fmt.Errorf("mlflow returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
