package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"edge-deploy-service/internal/adapters/primary/http/dto"
	"edge-deploy-service/internal/core/domain"
	"edge-deploy-service/internal/core/services"
)

func (h *Handler) CreateDeployment(c *gin.Context) {
	var req dto.CreateDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.checkLocalAccess(req.Target, req.ArtifactURI, req.SearchRoots); err != nil {
		mapDomainError(c, err)
		return
	}

	dep, err := h.deploySvc.Create(c.Request.Context(), services.CreateRequest{
		Target:      req.Target,
		Name:        req.Name,
		ArtifactURI: req.ArtifactURI,
		SearchRoots: req.SearchRoots,
	})
	if err != nil {
		log.WithError(err).WithField("deployment", req.Name).Error("create deployment failed")
		status, msg := statusFor(err)
		body := gin.H{"error": msg}
		if dep != nil {
			body["deployment"] = dto.ToDeploymentResponse(dep)
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, dto.ToDeploymentResponse(dep))
}

func (h *Handler) ListDeployments(c *gin.Context) {
	target, ok := h.requireTarget(c)
	if !ok {
		return
	}

	refs, err := h.deploySvc.List(c.Request.Context(), target)
	if err != nil {
		log.WithError(err).Error("list deployments failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToListDeploymentsResponse(refs))
}

func (h *Handler) GetDeployment(c *gin.Context) {
	target, ok := h.requireTarget(c)
	if !ok {
		return
	}
	version, ok := optionalVersion(c)
	if !ok {
		return
	}

	dep, err := h.deploySvc.Describe(c.Request.Context(), target, c.Param("name"), version)
	if err != nil {
		log.WithError(err).Error("describe deployment failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDeploymentResponse(dep))
}

func (h *Handler) DeleteDeployment(c *gin.Context) {
	target, ok := h.requireTarget(c)
	if !ok {
		return
	}
	version, ok := optionalVersion(c)
	if !ok {
		return
	}

	ref, err := h.deploySvc.Delete(c.Request.Context(), target, c.Param("name"), version)
	if err != nil {
		log.WithError(err).Error("delete deployment failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDeploymentRefResponse(*ref))
}

func (h *Handler) Predict(c *gin.Context) {
	_, err := h.deploySvc.Predict(c.Request.Context(), c.Param("name"), nil)
	mapDomainError(c, err)
}

func (h *Handler) CheckHealth(c *gin.Context) {
	target, ok := h.requireTarget(c)
	if !ok {
		return
	}
	port, err := strconv.Atoi(c.DefaultQuery("port", "8000"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port"})
		return
	}

	status, err := h.deploySvc.Health(c.Request.Context(), target, port)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToHealthResponse(status))
}

func (h *Handler) requireTarget(c *gin.Context) (string, bool) {
	target := c.Query("target")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target query parameter is required"})
		return "", false
	}
	if err := h.checkLocalAccess(target, "", nil); err != nil {
		mapDomainError(c, err)
		return "", false
	}
	return target, true
}

// checkLocalAccess refuses anything that reads or removes paths on the
// server itself unless local paths were allowed. Malformed values pass
// through so the service reports them.
func (h *Handler) checkLocalAccess(target, artifactURI string, searchRoots []string) error {
	if h.allowLocalPaths {
		return nil
	}
	if ep, err := services.ParseEndpoint(target); err == nil && ep.Scheme == "file" {
		return fmt.Errorf("%w: file target %q", domain.ErrLocalPathNotAllowed, target)
	}
	if artifactURI != "" {
		if ref, err := domain.ParseArtifactReference(artifactURI); err == nil && ref.IsLocal() {
			return fmt.Errorf("%w: artifact %q", domain.ErrLocalPathNotAllowed, artifactURI)
		}
	}
	if len(searchRoots) > 0 {
		return fmt.Errorf("%w: search_roots", domain.ErrLocalPathNotAllowed)
	}
	return nil
}

func optionalVersion(c *gin.Context) (*int, bool) {
	raw := c.Query("version")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return nil, false
	}
	return &v, true
}
