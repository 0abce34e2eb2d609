package domain

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Value Objects
// ============================================================================

// DeploymentStatus is the lifecycle state of a deployment.
type DeploymentStatus string

const (
	StatusBuilding     DeploymentStatus = "Building"
	StatusTransferring DeploymentStatus = "Transferring"
	StatusActive       DeploymentStatus = "Active"
	StatusFailed       DeploymentStatus = "Failed"
)

var statusRank = map[DeploymentStatus]int{
	StatusBuilding:     0,
	StatusTransferring: 1,
	StatusActive:       2,
	StatusFailed:       2,
}

// IsTerminal reports whether no further transition is allowed.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusActive || s == StatusFailed
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateDeploymentName checks a caller supplied deployment name.
func ValidateDeploymentName(name string) error {
	if !namePattern.MatchString(name) || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidDeploymentName, name)
	}
	return nil
}

// DirName is the remote directory name of a deployment version.
func DirName(name string, version int) string {
	return name + "_v" + strconv.Itoa(version)
}

// ParseDirName splits "<name>_v<N>" on the last "_v". ok is false for
// entries that do not follow the convention.
func ParseDirName(dir string) (name string, version int, ok bool) {
	idx := strings.LastIndex(dir, "_v")
	if idx <= 0 || idx+2 >= len(dir) {
		return "", 0, false
	}
	digits := dir[idx+2:]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", 0, false
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return "", 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v < 1 {
		return "", 0, false
	}
	return dir[:idx], v, true
}

// DeploymentRef identifies one deployment version on a target.
type DeploymentRef struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

func (r DeploymentRef) DirName() string {
	return DirName(r.Name, r.Version)
}

// ============================================================================
// Entities
// ============================================================================

// Deployment is one versioned, named transfer of a bundle to a target.
type Deployment struct {
	Name        string           `json:"name"`
	Version     int              `json:"version"`
	TargetHost  string           `json:"target_host"`
	RemotePath  string           `json:"remote_path"`
	ArtifactURI string           `json:"artifact_uri,omitempty"`
	Manifest    *FileManifest    `json:"manifest,omitempty"`
	Status      DeploymentStatus `json:"status"`
	LastError   string           `json:"last_error,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewDeployment creates a deployment in the Building state.
func NewDeployment(name string, manifest *FileManifest) (*Deployment, error) {
	if err := ValidateDeploymentName(name); err != nil {
		return nil, err
	}
	now := time.Now()
	d := &Deployment{
		Name:      name,
		Manifest:  manifest,
		Status:    StatusBuilding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if manifest != nil {
		d.ArtifactURI = manifest.ArtifactURI
	}
	return d, nil
}

// Ref returns the (name, version) pair of the deployment.
func (d *Deployment) Ref() DeploymentRef {
	return DeploymentRef{Name: d.Name, Version: d.Version}
}

// Assign binds the deployment to an allocated remote slot.
func (d *Deployment) Assign(host, baseDir string, version int) {
	d.TargetHost = host
	d.Version = version
	d.RemotePath = path.Join(baseDir, DirName(d.Name, version)) + "/"
	d.UpdatedAt = time.Now()
}

func (d *Deployment) transition(to DeploymentStatus) error {
	if d.Status.IsTerminal() || statusRank[to] <= statusRank[d.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	return nil
}

// MarkTransferring moves a Building deployment to Transferring.
func (d *Deployment) MarkTransferring() error {
	return d.transition(StatusTransferring)
}

// MarkActive completes the deployment.
func (d *Deployment) MarkActive() error {
	return d.transition(StatusActive)
}

// MarkFailed records the failure. A deployment that already failed keeps
// its first error.
func (d *Deployment) MarkFailed(reason string) {
	if d.Status == StatusFailed {
		return
	}
	if d.Status == StatusActive {
		return
	}
	d.Status = StatusFailed
	d.LastError = reason
	d.UpdatedAt = time.Now()
}

// AddWarning records a non-fatal problem, e.g. a failed best-effort cleanup.
func (d *Deployment) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}
