package app

import (
	"errors"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/provider"
	"github.com/cs-store/internal/router"
	"github.com/cs-store/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)
	services, err := buildServices(cfg, container, mode)
	if err != nil {
		return nil, err
	}
	return NewRunner(services...), nil
}

func buildServices(cfg *config.Config, container *provider.Container, mode string) ([]Service, error) {
	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务：队列未启用时收件恢复扫描在进程内直接重放
	if mode == ModeAll || mode == ModeWorker {
		sweeper := worker.NewSweeper(cfg.Webhook, container.WebhookProcessor, container.QueueClient)
		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer, sweeper)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Infow("app_queue_disabled_inline_sweeper")
			services = append(services, sweeper)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return services, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
