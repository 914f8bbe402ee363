package main

import (
	"log/slog"

	cfgpkg "github.com/veranemoloko/model-fetcher/internal/config"
	"github.com/veranemoloko/model-fetcher/internal/provider"
	"github.com/veranemoloko/model-fetcher/internal/provider/huggingface"
	"github.com/veranemoloko/model-fetcher/internal/provider/modelscope"
	"github.com/veranemoloko/model-fetcher/internal/repository"
	svc "github.com/veranemoloko/model-fetcher/internal/service"
	"github.com/veranemoloko/model-fetcher/internal/worker"
)

func newProviders(cfg *cfgpkg.Config, logger *slog.Logger) *provider.Registry {
	client := provider.NewClient(provider.ClientOptions{
		Timeout:         cfg.RequestTimeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		RetryMaxBackoff: cfg.RetryMaxBackoff,
		UserAgent:       provider.DefaultClientOptions().UserAgent,
	})

	hubOptions := func(endpoint, token string) provider.HubOptions {
		return provider.HubOptions{
			Endpoint:         endpoint,
			Token:            token,
			ProbeConcurrency: cfg.ProbeConcurrency,
			ProgressInterval: cfg.ProgressInterval,
			Logger:           logger,
		}
	}

	providers := provider.NewRegistry()
	if cfg.HuggingFaceEnabled {
		providers.Register(huggingface.New(client, hubOptions(cfg.HuggingFaceEndpoint, cfg.HuggingFaceToken)))
	} else {
		providers.Disable(huggingface.Name)
	}
	if cfg.ModelScopeEnabled {
		providers.Register(modelscope.New(client, hubOptions(cfg.ModelScopeEndpoint, cfg.ModelScopeToken)))
	} else {
		providers.Disable(modelscope.Name)
	}

	logger.Info("providers configured", "availability", providers.Availability())
	return providers
}

func newTaskService(cfg *cfgpkg.Config, logger *slog.Logger) *svc.TaskService {
	providers := newProviders(cfg, logger)
	tasks := repository.NewTaskRegistry(logger)

	return svc.NewTaskService(
		tasks,
		providers,
		worker.NewSupervisor(tasks, cfg.MaxConcurrentJobs, logger),
		worker.NewRunner(tasks, providers, logger),
		cfg.DownloadDir,
		logger,
	)
}
