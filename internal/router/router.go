package router

import (
	"fmt"
	"strings"

	"github.com/cs-store/internal/cache"
	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/constants"
	publichandlers "github.com/cs-store/internal/http/handlers/public"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	intentRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_intent", redisPrefix),
		WindowSeconds: cfg.Security.IntentRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.IntentRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", publicHandler.Healthz)

	apiV1 := r.Group("/api/v1")
	{
		// 用户接口
		authorized := apiV1.Group("")
		authorized.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey))
		{
			authorized.POST("/payment-intents", RateLimitMiddleware(cache.Client(), intentRule, KeyByUserID), publicHandler.CreatePaymentIntent)
		}

		// 网关回调（不鉴权，由验签保证来源）
		apiV1.POST("/webhooks/:gateway", publicHandler.PaymentWebhook)
	}

	return r
}
