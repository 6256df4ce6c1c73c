package shared

import (
	"github.com/cs-store/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondErrorWithMsg(c, response.CodeUnauthorized, "unauthenticated", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			RespondErrorWithMsg(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			RespondErrorWithMsg(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondErrorWithMsg(c, response.CodeInternal, key+" has unexpected type", nil)
		return 0, false
	}
}
