package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
	"edge-deploy-service/internal/testutil"
)

const (
	memTargetID = "mem://device.local"
	faceRoot    = "/work/face_recognition_files"
)

type deployFixture struct {
	svc      *DeployService
	target   *testutil.Target
	remote   afero.Fs
	local    afero.Fs
	tracking *testutil.MockTrackingStore
	store    *testutil.MockArtifactStore
}

func newDeployFixture(t *testing.T) *deployFixture {
	t.Helper()
	local := newLocalFs(t, map[string]string{
		faceRoot + "/face_features.pkl":       "features",
		faceRoot + "/face_database.json":      `{"alice": 1}`,
		faceRoot + "/client.py":               "print('client')\n",
		faceRoot + "/model_server.py":         "print('server')\n",
		faceRoot + "/Dockerfile.model-server": "FROM python:3.10\n",
		faceRoot + "/label_encoder.pkl":       "companion-encoder",
	})
	target, remote := testutil.NewMemTarget(remoteBase)

	tracking := new(testutil.MockTrackingStore)
	tracking.On("DownloadURI", mock.Anything, "face_recognition_model", "1").Return(modelURI, nil)

	store := &testutil.MockArtifactStore{Files: map[string]string{
		"model.pkl":         "random-forest",
		"label_encoder.pkl": "artifact-encoder",
	}}
	store.On("Supports", modelURI).Return(true)
	store.On("Fetch", mock.Anything, modelURI, local, mock.Anything).Return([]ports.FetchedObject{
		{RelPath: "label_encoder.pkl", Size: 16},
		{RelPath: "model.pkl", Size: 13},
	}, nil)

	targets := NewTargetRegistry()
	targets.Register("mem", target.Factory())

	svc := NewDeployService(
		targets,
		NewArtifactResolver(local, tracking, stagingRoot, store),
		NewDiscoverer(local, nil),
		NewPackageBuilder(local, stagingRoot),
		NewTransportManager(DefaultTransportOptions(), nil),
		NewDeploymentRegistry(),
		[]string{faceRoot},
	)
	return &deployFixture{svc: svc, target: target, remote: remote, local: local, tracking: tracking, store: store}
}

func (f *deployFixture) create(t *testing.T, name string) *domain.Deployment {
	t.Helper()
	dep, err := f.svc.Create(context.Background(), CreateRequest{
		Target:      memTargetID,
		Name:        name,
		ArtifactURI: "models:/face_recognition_model/1",
	})
	require.NoError(t, err)
	return dep
}

func TestDeployService_FaceRecognitionLifecycle(t *testing.T) {
	f := newDeployFixture(t)
	ctx := context.Background()

	first := f.create(t, "face_recognition_files")
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.Equal(t, remoteBase+"/face_recognition_files_v1/", first.RemotePath)

	dir := path.Join(remoteBase, "face_recognition_files_v1")
	for _, rel := range []string{
		"models/model.pkl",
		"models/label_encoder.pkl",
		"data/face_features.pkl",
		"data/face_database.json",
		"scripts/client.py",
		"scripts/model_server.py",
		"docker/Dockerfile.model-server",
		domain.ManifestFileName,
	} {
		assert.True(t, exists(t, f.remote, path.Join(dir, rel)), rel)
	}

	// The artifact's copy wins over the companion with the same bundle path.
	encoder, err := afero.ReadFile(f.remote, path.Join(dir, "models/label_encoder.pkl"))
	require.NoError(t, err)
	assert.Equal(t, "artifact-encoder", string(encoder))

	firstManifest, err := afero.ReadFile(f.remote, path.Join(dir, domain.ManifestFileName))
	require.NoError(t, err)
	firstModel, err := afero.ReadFile(f.remote, path.Join(dir, "models/model.pkl"))
	require.NoError(t, err)

	second := f.create(t, "face_recognition_files")
	assert.Equal(t, 2, second.Version)

	// Version 1 is untouched by the second create.
	afterManifest, err := afero.ReadFile(f.remote, path.Join(dir, domain.ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, firstManifest, afterManifest)
	afterModel, err := afero.ReadFile(f.remote, path.Join(dir, "models/model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, firstModel, afterModel)

	refs, err := f.svc.List(ctx, memTargetID)
	require.NoError(t, err)
	assert.Equal(t, []domain.DeploymentRef{
		{Name: "face_recognition_files", Version: 1},
		{Name: "face_recognition_files", Version: 2},
	}, refs)

	described, err := f.svc.Describe(ctx, memTargetID, "face_recognition_files", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, described.Version)
	assert.Equal(t, domain.StatusActive, described.Status)
	assert.Equal(t, "models:/face_recognition_model/1", described.ArtifactURI)
	assert.Len(t, described.Manifest.Files, 7)

	deleted, err := f.svc.Delete(ctx, memTargetID, "face_recognition_files", intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Version)

	refs, err = f.svc.List(ctx, memTargetID)
	require.NoError(t, err)
	assert.Equal(t, []domain.DeploymentRef{{Name: "face_recognition_files", Version: 2}}, refs)

	assert.True(t, stagingEmpty(t, f.local))
	assert.Equal(t, f.target.Connects(), f.target.Closes())
}

func TestDeployService_CreateFailureLeavesNothingLocally(t *testing.T) {
	f := newDeployFixture(t)
	f.target.FS = &testutil.FaultyRemote{RemoteFS: f.target.FS, FailWriteAt: 1, WriteErr: errors.New("broken pipe")}

	dep, err := f.svc.Create(context.Background(), CreateRequest{
		Target:      memTargetID,
		Name:        "faces",
		ArtifactURI: "models:/face_recognition_model/1",
	})
	require.Error(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, domain.StatusFailed, dep.Status)
	assert.True(t, stagingEmpty(t, f.local))
}

func TestDeployService_SearchRootsOverride(t *testing.T) {
	f := newDeployFixture(t)

	dep, err := f.svc.Create(context.Background(), CreateRequest{
		Target:      memTargetID,
		Name:        "bare",
		ArtifactURI: "models:/face_recognition_model/1",
		SearchRoots: []string{"/nowhere"},
	})
	require.NoError(t, err)
	assert.Len(t, dep.Manifest.Files, 2)
}

func TestDeployService_CreateValidation(t *testing.T) {
	f := newDeployFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateRequest{Target: memTargetID, Name: "bad name", ArtifactURI: "models:/m/1"})
	assert.True(t, errors.Is(err, domain.ErrInvalidDeploymentName))

	_, err = f.svc.Create(ctx, CreateRequest{Target: "ftp://device", Name: "faces", ArtifactURI: "models:/m/1"})
	assert.True(t, errors.Is(err, domain.ErrUnknownScheme))

	_, err = f.svc.Create(ctx, CreateRequest{Target: memTargetID, Name: "faces", ArtifactURI: "models:/only-name"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArtifactReference))

	assert.Zero(t, f.target.Connects())
}

func TestDeployService_Predict(t *testing.T) {
	f := newDeployFixture(t)

	_, err := f.svc.Predict(context.Background(), "faces", map[string]any{"x": 1})
	assert.True(t, errors.Is(err, domain.ErrPredictionUnsupported))
}

// healthFixture points the mem target at a local HTTP server.
func healthFixture(t *testing.T, handler http.HandlerFunc) (*DeployService, *httptest.Server, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	f := newDeployFixture(t)
	f.target.Desc.Host = u.Hostname()
	return f.svc, srv, port
}

func TestDeployService_HealthOK(t *testing.T) {
	svc, srv, port := healthFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	status, err := svc.Health(context.Background(), memTargetID, port)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, http.StatusOK, status.StatusCode)
	assert.Empty(t, status.Error)
}

func TestDeployService_HealthServerError(t *testing.T) {
	svc, srv, port := healthFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	status, err := svc.Health(context.Background(), memTargetID, port)
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, http.StatusInternalServerError, status.StatusCode)
}

func TestDeployService_HealthUnreachable(t *testing.T) {
	svc, srv, port := healthFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	status, err := svc.Health(context.Background(), memTargetID, port)
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Error)
}

func TestDeployService_HealthBadPort(t *testing.T) {
	f := newDeployFixture(t)

	_, err := f.svc.Health(context.Background(), memTargetID, 70000)
	assert.True(t, errors.Is(err, domain.ErrInvalidTarget))
}
