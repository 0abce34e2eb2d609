package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"edge-deploy-service/internal/core/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrDeploymentNotFound), http.StatusNotFound},
		{domain.ErrArtifactNotFound, http.StatusNotFound},
		{domain.ErrVersionAllocationExhausted, http.StatusConflict},
		{domain.ErrUnknownScheme, http.StatusBadRequest},
		{domain.ErrInvalidDeploymentName, http.StatusBadRequest},
		{domain.ErrAuthenticationFailed, http.StatusBadGateway},
		{domain.WithCleanupWarning(domain.ErrTransferIntegrity, errors.New("rm failed")), http.StatusBadGateway},
		{domain.ErrLocalPathNotAllowed, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{domain.ErrPredictionUnsupported, http.StatusNotImplemented},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}

	_, msg := statusFor(errors.New("secret detail"))
	assert.Equal(t, "internal server error", msg)
}
