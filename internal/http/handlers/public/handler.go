package public

import "github.com/cs-store/internal/provider"

// Handler 用户侧与网关回调接口处理器
type Handler struct {
	*provider.Container
}

// New 创建处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
