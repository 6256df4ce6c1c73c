package public

import (
	"github.com/cs-store/internal/http/response"

	"github.com/gin-gonic/gin"
)

// Healthz 进程存活检查
func (h *Handler) Healthz(c *gin.Context) {
	response.OK(c)
}
