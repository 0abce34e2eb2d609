package handlers

import (
	"edge-deploy-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	deploySvc       *services.DeployService
	allowLocalPaths bool
}

type Option func(*Handler)

// WithLocalPaths lets callers name file:// targets, local artifact paths
// and search roots. They are refused by default.
func WithLocalPaths(allow bool) Option {
	return func(h *Handler) { h.allowLocalPaths = allow }
}

func New(deploySvc *services.DeployService, opts ...Option) *Handler {
	h := &Handler{deploySvc: deploySvc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Deployments
	r.POST("/deployments", h.CreateDeployment)
	r.GET("/deployments", h.ListDeployments)
	r.GET("/deployments/:name", h.GetDeployment)
	r.DELETE("/deployments/:name", h.DeleteDeployment)
	r.POST("/deployments/:name/predict", h.Predict)

	// Device service health
	r.GET("/health", h.CheckHealth)
}
