package main

import (
	"flag"
	"time"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/router"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

func main() {
	var userID uint
	var count int
	var amount string
	var currency string
	flag.UintVar(&userID, "user", 1, "订单所属用户ID")
	flag.IntVar(&count, "count", 3, "生成的待支付订单数量")
	flag.StringVar(&amount, "amount", "500.00", "订单金额")
	flag.StringVar(&currency, "currency", "INR", "订单币种")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(models.DB); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	total, err := decimal.NewFromString(amount)
	if err != nil || !total.IsPositive() {
		stdLog.Fatalf("Invalid amount %q", amount)
	}

	// 添加待支付订单
	for i := 0; i < count; i++ {
		order := models.Order{
			UserID:      userID,
			Currency:    currency,
			TotalAmount: models.NewMoneyFromDecimal(total.Round(2)),
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create order: %v", err)
			continue
		}
		stdLog.Printf("Created order: id=%d user=%d amount=%s %s", order.ID, userID, order.TotalAmount.String(), currency)
	}

	// 本地调试用令牌
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, router.UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(cfg.UserJWT.SecretKey))
	if err != nil {
		stdLog.Fatalf("Failed to sign token: %v", err)
	}
	stdLog.Printf("Bearer token for user %d: %s", userID, signed)
}
