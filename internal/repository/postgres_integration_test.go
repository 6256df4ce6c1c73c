//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := models.OpenDB("postgres", dsn, gormlogger.Silent)
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.WebhookInboxEntry{},
		&models.LedgerEntry{},
		&models.PaymentIntent{},
		&models.Order{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresLedgerAppendConcurrentDedupe(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewLedgerRepository(db)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Append(&models.LedgerEntry{
				IntentID:       1,
				OrderID:        1,
				Gateway:        constants.GatewayRazorpay,
				EventType:      constants.LedgerEventCapture,
				Amount:         mustMoney(t, "500.00"),
				Currency:       "INR",
				GatewayEventID: "pay_pg",
				DedupeKey:      "razorpay:capture:pay_pg",
				OccurredAt:     time.Now(),
				RecordedAt:     time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent append returned errors: %v", errs)
	}
	if created != 1 {
		t.Fatalf("expected exactly one created ledger row, got %d", created)
	}
	entries, err := repo.ListByIntent(1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one ledger row, got %d err=%v", len(entries), err)
	}
}

func TestPostgresOrderMarkPaidInsideTransaction(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	orderRepo := NewOrderRepository(db)
	order := createTestOrder(t, orderRepo, 7, "120.50")

	var updated bool
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = orderRepo.WithTx(tx).MarkPaid(MarkOrderPaidInput{
			OrderID:          order.ID,
			GatewayOrderID:   "order_pg",
			GatewayPaymentID: "pay_pg",
			PaidAt:           time.Now(),
		})
		return err
	})
	if err != nil || !updated {
		t.Fatalf("expected mark paid in transaction: updated=%v err=%v", updated, err)
	}

	again, err := orderRepo.MarkPaid(MarkOrderPaidInput{OrderID: order.ID, GatewayOrderID: "order_pg", GatewayPaymentID: "pay_pg_2"})
	if err != nil || again {
		t.Fatalf("expected repeated mark paid to be a no-op: updated=%v err=%v", again, err)
	}
	got, err := orderRepo.GetByID(order.ID)
	if err != nil || got == nil {
		t.Fatalf("get order failed: %v", err)
	}
	if got.TotalAmount.String() != "120.50" || got.GatewayPaymentID != "pay_pg" {
		t.Fatalf("unexpected order after mark paid: %+v", got)
	}
}

func TestPostgresWebhookInboxClaimIsExclusive(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewWebhookInboxRepository(db)
	entry := &models.WebhookInboxEntry{
		Gateway:        constants.GatewayStripe,
		DedupeKey:      "stripe:capture:pi_pg",
		GatewayEventID: "pi_pg",
		EventType:      "CAPTURED",
		Status:         constants.InboxStatusProcessing,
		Attempts:       1,
		ReceivedAt:     time.Now(),
		RawHeaders:     models.JSON{"stripe-signature": "t=1,v1=abc"},
		BodyHash:       "hash",
		RawBody:        "{}",
	}
	if created, err := repo.Insert(entry); err != nil || !created {
		t.Fatalf("insert inbox entry failed: created=%v err=%v", created, err)
	}

	before := time.Now().Add(time.Minute)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimForRedrive(entry.ID, before)
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("expected exactly one claim, got %d", claims)
	}
	got, err := repo.GetByID(entry.ID)
	if err != nil || got == nil {
		t.Fatalf("get inbox entry failed: %v", err)
	}
	if got.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", got.Attempts)
	}
	if got.RawHeaders["stripe-signature"] != "t=1,v1=abc" {
		t.Fatalf("unexpected raw headers: %+v", got.RawHeaders)
	}
}
