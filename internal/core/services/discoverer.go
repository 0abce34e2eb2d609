package services

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"edge-deploy-service/internal/core/domain"
)

// CompanionFile is a recognized basename and the role it plays on the device.
type CompanionFile struct {
	Basename string
	Role     domain.FileRole
}

// DefaultCompanionFiles are the runtime files shipped next to the model.
var DefaultCompanionFiles = []CompanionFile{
	{Basename: "face_features.pkl", Role: domain.RoleMetadata},
	{Basename: "face_database.json", Role: domain.RoleMetadata},
	{Basename: "model_params.json", Role: domain.RoleMetadata},
	{Basename: "face_model_v2.pkl", Role: domain.RoleModel},
	{Basename: "label_encoder.pkl", Role: domain.RoleModel},
	{Basename: "random_forest_model.pkl", Role: domain.RoleModel},
	{Basename: "inference_server_rtsp.py", Role: domain.RoleScript},
	{Basename: "model_server.py", Role: domain.RoleScript},
	{Basename: "client.py", Role: domain.RoleScript},
	{Basename: "Dockerfile.inference-server", Role: domain.RoleContainerRecipe},
	{Basename: "Dockerfile.model-server", Role: domain.RoleContainerRecipe},
	{Basename: "model_server_requirements.txt", Role: domain.RoleContainerRecipe},
}

// Discoverer finds companion files in an ordered list of search roots. It
// only reads.
type Discoverer struct {
	fs    afero.Fs
	files []CompanionFile
}

func NewDiscoverer(fs afero.Fs, files []CompanionFile) *Discoverer {
	if len(files) == 0 {
		files = DefaultCompanionFiles
	}
	return &Discoverer{fs: fs, files: files}
}

// Discover returns one entry per recognized basename found in roots. The
// first root holding a basename wins; later roots are not consulted for it.
func (d *Discoverer) Discover(roots []string) ([]domain.ManifestEntry, error) {
	var entries []domain.ManifestEntry

	for _, cf := range d.files {
		entry, found, err := d.locate(cf, roots)
		if err != nil {
			return nil, err
		}
		if !found {
			log.WithField("file", cf.Basename).Info("companion file not found, skipping")
			continue
		}
		log.WithFields(log.Fields{
			"file":   cf.Basename,
			"source": entry.SourcePath,
			"role":   cf.Role,
		}).Info("found companion file")
		entries = append(entries, entry)
	}

	return entries, nil
}

func (d *Discoverer) locate(cf CompanionFile, roots []string) (domain.ManifestEntry, bool, error) {
	for _, root := range roots {
		candidate := filepath.Join(root, cf.Basename)
		info, err := d.fs.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return domain.ManifestEntry{}, false, fmt.Errorf("%w: stat %s: %v", domain.ErrIOFailure, candidate, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		return domain.ManifestEntry{
			RelPath:    path.Join(cf.Role.BundleDir(), cf.Basename),
			Size:       info.Size(),
			Role:       cf.Role,
			SourcePath: candidate,
		}, true, nil
	}
	return domain.ManifestEntry{}, false, nil
}
