package handlers

import (
	"context"
	"errors"
	"net/http"

	"edge-deploy-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func mapDomainError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrDeploymentNotFound),
		errors.Is(err, domain.ErrArtifactNotFound):
		return http.StatusNotFound, err.Error()

	// Conflict errors
	case errors.Is(err, domain.ErrVersionAllocationExhausted):
		return http.StatusConflict, err.Error()

	// Bad request / validation errors
	case errors.Is(err, domain.ErrUnknownScheme),
		errors.Is(err, domain.ErrInvalidTarget),
		errors.Is(err, domain.ErrInvalidArtifactReference),
		errors.Is(err, domain.ErrInvalidDeploymentName),
		errors.Is(err, domain.ErrEmptyBundle):
		return http.StatusBadRequest, err.Error()

	// Device or artifact store misbehaved
	case errors.Is(err, domain.ErrAuthenticationFailed),
		errors.Is(err, domain.ErrTransferIntegrity),
		errors.Is(err, domain.ErrArtifactIncomplete):
		return http.StatusBadGateway, err.Error()

	case errors.Is(err, domain.ErrLocalPathNotAllowed):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()

	case errors.Is(err, domain.ErrPredictionUnsupported):
		return http.StatusNotImplemented, err.Error()

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
