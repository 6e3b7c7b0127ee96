package http

import "github.com/gin-gonic/gin"

// Register registers the advice routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/advice", h.Advise)
}
