package domain

import (
	"errors"
	"fmt"
)

// ============================================================================
// Target Errors
// ============================================================================

var (
	ErrUnknownScheme        = errors.New("no target implementation registered for scheme")
	ErrInvalidTarget        = errors.New("invalid target")
	ErrAuthenticationFailed = errors.New("authentication to target failed")
	ErrLocalPathNotAllowed  = errors.New("local paths are not allowed here")
)

// ============================================================================
// Artifact / Packaging Errors
// ============================================================================

var (
	ErrInvalidArtifactReference = errors.New("invalid artifact reference")
	ErrArtifactNotFound         = errors.New("artifact not found")
	ErrArtifactIncomplete       = errors.New("artifact incomplete after download")
	ErrEmptyBundle              = errors.New("bundle has no files")
	ErrIOFailure                = errors.New("local i/o failure")
)

// ============================================================================
// Deployment Errors
// ============================================================================

var (
	ErrInvalidDeploymentName      = errors.New("invalid deployment name")
	ErrVersionAllocationExhausted = errors.New("could not allocate a free deployment version")
	ErrTransferIntegrity          = errors.New("transferred files do not match manifest")
	ErrDeploymentNotFound         = errors.New("deployment not found")
	ErrInvalidStatusTransition    = errors.New("invalid deployment status transition")
	ErrPredictionUnsupported      = errors.New("prediction is not supported by the edge file transfer target")
)

// CleanupWarning carries a best-effort cleanup failure alongside the error
// that triggered the cleanup. errors.Is/As see the primary error only.
type CleanupWarning struct {
	Err     error
	Cleanup error
}

func (w *CleanupWarning) Error() string {
	return fmt.Sprintf("%v (warning: cleanup failed: %v)", w.Err, w.Cleanup)
}

func (w *CleanupWarning) Unwrap() error {
	return w.Err
}

// WithCleanupWarning attaches cleanupErr to err. It returns err unchanged
// when there was nothing to report.
func WithCleanupWarning(err, cleanupErr error) error {
	if err == nil || cleanupErr == nil {
		return err
	}
	return &CleanupWarning{Err: err, Cleanup: cleanupErr}
}
