package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"edge-deploy-service/internal/core/domain"
	ports "edge-deploy-service/internal/core/ports/output"
)

// DeploymentRegistry answers questions about deployments by reading the
// target's base directory. There is no other store.
type DeploymentRegistry struct{}

func NewDeploymentRegistry() *DeploymentRegistry {
	return &DeploymentRegistry{}
}

// List returns every <name>_v<N> entry of the target, sorted by name and
// version. Entries not following the convention are skipped.
func (r *DeploymentRegistry) List(ctx context.Context, target ports.Target) (refs []domain.DeploymentRef, err error) {
	err = withRemote(ctx, target, func(remote ports.RemoteFS) error {
		refs, err = listRefs(ctx, remote, target.Descriptor().BaseDir)
		return err
	})
	return refs, err
}

// Describe loads one deployment. A nil version selects the highest one.
func (r *DeploymentRegistry) Describe(ctx context.Context, target ports.Target, name string, version *int) (dep *domain.Deployment, err error) {
	desc := target.Descriptor()
	err = withRemote(ctx, target, func(remote ports.RemoteFS) error {
		ref, err := resolveRef(ctx, remote, desc.BaseDir, name, version)
		if err != nil {
			return err
		}
		dep, err = describe(ctx, remote, desc, ref)
		return err
	})
	return dep, err
}

// Delete removes one deployment directory. A nil version selects the
// highest one. Only the remote directory is touched.
func (r *DeploymentRegistry) Delete(ctx context.Context, target ports.Target, name string, version *int) (ref *domain.DeploymentRef, err error) {
	desc := target.Descriptor()
	err = withRemote(ctx, target, func(remote ports.RemoteFS) error {
		resolved, err := resolveRef(ctx, remote, desc.BaseDir, name, version)
		if err != nil {
			return err
		}
		dir := path.Join(desc.BaseDir, resolved.DirName())
		if err := remote.RemoveAll(ctx, dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
		log.WithFields(log.Fields{
			"deployment": resolved.Name,
			"version":    resolved.Version,
			"target":     desc.String(),
		}).Info("deployment deleted")
		ref = &resolved
		return nil
	})
	return ref, err
}

func withRemote(ctx context.Context, target ports.Target, fn func(ports.RemoteFS) error) error {
	remote, err := target.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target.Descriptor().Host, err)
	}
	defer func() {
		if cerr := remote.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close target connection")
		}
	}()
	return fn(remote)
}

func listRefs(ctx context.Context, remote ports.RemoteFS, baseDir string) ([]domain.DeploymentRef, error) {
	entries, err := remote.ReadDir(ctx, baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", baseDir, err)
	}

	refs := make([]domain.DeploymentRef, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, version, ok := domain.ParseDirName(e.Name())
		if !ok {
			continue
		}
		refs = append(refs, domain.DeploymentRef{Name: name, Version: version})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].Version < refs[j].Version
	})
	return refs, nil
}

func resolveRef(ctx context.Context, remote ports.RemoteFS, baseDir, name string, version *int) (domain.DeploymentRef, error) {
	refs, err := listRefs(ctx, remote, baseDir)
	if err != nil {
		return domain.DeploymentRef{}, err
	}

	var found *domain.DeploymentRef
	for i := range refs {
		ref := refs[i]
		if ref.Name != name {
			continue
		}
		if version != nil {
			if ref.Version == *version {
				return ref, nil
			}
			continue
		}
		if found == nil || ref.Version > found.Version {
			found = &ref
		}
	}
	if found == nil {
		if version != nil {
			return domain.DeploymentRef{}, fmt.Errorf("%w: %s", domain.ErrDeploymentNotFound, domain.DirName(name, *version))
		}
		return domain.DeploymentRef{}, fmt.Errorf("%w: %s", domain.ErrDeploymentNotFound, name)
	}
	return *found, nil
}

// describe rebuilds a Deployment from the remote manifest. A deployment is
// Active only when the manifest is readable and every file it lists is
// present with the recorded size.
func describe(ctx context.Context, remote ports.RemoteFS, desc domain.Target, ref domain.DeploymentRef) (*domain.Deployment, error) {
	dir := path.Join(desc.BaseDir, ref.DirName())
	dep := &domain.Deployment{
		Name:       ref.Name,
		Version:    ref.Version,
		TargetHost: desc.Host,
		RemotePath: dir + "/",
		Status:     domain.StatusActive,
	}

	manifest, err := readManifest(ctx, remote, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			dep.Status = domain.StatusFailed
			dep.LastError = "manifest missing: transfer did not complete"
			return dep, nil
		}
		return nil, err
	}
	dep.Manifest = manifest
	dep.ArtifactURI = manifest.ArtifactURI
	dep.CreatedAt = manifest.CreatedAt
	dep.UpdatedAt = manifest.CreatedAt

	var problems []string
	for _, f := range manifest.Files {
		info, err := remote.Stat(ctx, path.Join(dir, f.RelPath))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				problems = append(problems, f.RelPath+": missing")
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", f.RelPath, err)
		}
		if info.Size() != f.Size {
			problems = append(problems, fmt.Sprintf("%s: %d bytes, expected %d", f.RelPath, info.Size(), f.Size))
		}
	}
	if len(problems) > 0 {
		dep.Status = domain.StatusFailed
		dep.LastError = strings.Join(problems, "; ")
	}
	return dep, nil
}

func readManifest(ctx context.Context, remote ports.RemoteFS, dir string) (*domain.FileManifest, error) {
	rc, err := remote.Open(ctx, path.Join(dir, domain.ManifestFileName))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var manifest domain.FileManifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest in %s: %w", dir, err)
	}
	return &manifest, nil
}
