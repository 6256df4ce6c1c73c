package provider

import (
	"github.com/cs-store/internal/cache"
	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/payment/razorpay"
	"github.com/cs-store/internal/payment/stripe"
	"github.com/cs-store/internal/queue"
	"github.com/cs-store/internal/repository"
	"github.com/cs-store/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client
	Gateways    *payment.Registry

	// Repositories
	OrderRepo         repository.OrderRepository
	PaymentIntentRepo repository.PaymentIntentRepository
	LedgerRepo        repository.LedgerRepository
	WebhookInboxRepo  repository.WebhookInboxRepository

	// Services
	LedgerService        *service.LedgerService
	WebhookInboxService  *service.WebhookInboxService
	OrderFinalizer       *service.OrderFinalizer
	PaymentIntentService *service.PaymentIntentService
	WebhookProcessor     *service.WebhookProcessor
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := NewContainerWithDB(cfg, models.DB, BuildGatewayRegistry(&cfg.Payment))
	c.QueueClient = queueClient
	return c
}

// NewContainerWithDB 使用指定数据库与网关注册表装配仓库和服务
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, gateways *payment.Registry) *Container {
	if gateways == nil {
		gateways = payment.NewRegistry()
	}
	c := &Container{
		Config:   cfg,
		DB:       db,
		Gateways: gateways,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := c.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentIntentRepo = repository.NewPaymentIntentRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.WebhookInboxRepo = repository.NewWebhookInboxRepository(db)
}

func (c *Container) initServices() {
	c.LedgerService = service.NewLedgerService(c.LedgerRepo)
	c.WebhookInboxService = service.NewWebhookInboxService(c.WebhookInboxRepo)
	c.OrderFinalizer = service.NewOrderFinalizer(c.OrderRepo)
	c.PaymentIntentService = service.NewPaymentIntentService(c.OrderRepo, c.PaymentIntentRepo, c.Gateways, service.PaymentIntentOptions{
		DefaultGateway: c.Config.Payment.DefaultGateway,
		ExpireMinutes:  c.Config.Payment.IntentExpireMinutes,
		MaxAttempts:    c.Config.Payment.MaxAttempts,
	})
	c.WebhookProcessor = service.NewWebhookProcessor(
		c.DB,
		c.Gateways,
		c.PaymentIntentRepo,
		c.LedgerService,
		c.WebhookInboxService,
		c.OrderFinalizer,
	)
}

// BuildGatewayRegistry 按配置注册启用的支付网关；配置不完整的网关跳过并记录日志
func BuildGatewayRegistry(cfg *config.PaymentConfig) *payment.Registry {
	registry := payment.NewRegistry()
	if cfg == nil {
		return registry
	}
	if cfg.Razorpay.Enabled {
		adapter, err := razorpay.New(razorpay.Config{
			KeyID:          cfg.Razorpay.KeyID,
			KeySecret:      cfg.Razorpay.KeySecret,
			WebhookSecret:  cfg.Razorpay.WebhookSecret,
			APIBaseURL:     cfg.Razorpay.APIBaseURL,
			TimeoutSeconds: cfg.Razorpay.TimeoutSeconds,
		})
		if err != nil {
			logger.Warnw("provider_init_gateway_failed", "gateway", "razorpay", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Stripe.Enabled {
		adapter, err := stripe.New(stripe.Config{
			SecretKey:               cfg.Stripe.SecretKey,
			PublishableKey:          cfg.Stripe.PublishableKey,
			WebhookSecret:           cfg.Stripe.WebhookSecret,
			SuccessURL:              cfg.Stripe.SuccessURL,
			CancelURL:               cfg.Stripe.CancelURL,
			APIBaseURL:              cfg.Stripe.APIBaseURL,
			WebhookToleranceSeconds: cfg.Stripe.WebhookToleranceSeconds,
			PaymentMethodTypes:      cfg.Stripe.PaymentMethodTypes,
		})
		if err != nil {
			logger.Warnw("provider_init_gateway_failed", "gateway", "stripe", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	logger.Infow("provider_gateways_registered", "gateways", registry.Names())
	return registry
}
