package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/provider"
	"github.com/cs-store/internal/worker"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubService struct {
	name     string
	startErr error
	block    bool
	stopped  chan struct{}
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *stubService) Stop(ctx context.Context) error {
	close(s.stopped)
	return nil
}

func TestRunnerStopsAllServicesOnFailure(t *testing.T) {
	failing := &stubService{name: "failing", startErr: errors.New("boom"), stopped: make(chan struct{})}
	blocking := &stubService{name: "blocking", block: true, stopped: make(chan struct{})}

	err := NewRunner(failing, blocking).Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected start error, got %v", err)
	}
	for _, svc := range []*stubService{failing, blocking} {
		select {
		case <-svc.stopped:
		default:
			t.Fatalf("service %s was not stopped", svc.name)
		}
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	blocking := &stubService{name: "blocking", block: true, stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRunner(blocking).Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
}

func TestBuildServicesInlineSweeperWhenQueueDisabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:app_build_services_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{}
	container := provider.NewContainerWithDB(cfg, db, payment.NewRegistry())

	services, err := buildServices(cfg, container, ModeWorker)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("expected one service, got %d", len(services))
	}
	if _, ok := services[0].(*worker.Sweeper); !ok {
		t.Fatalf("expected inline sweeper, got %T", services[0])
	}

	if _, err := buildServices(cfg, container, "unknown"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
