package cli

import (
	"context"
	"fmt"

	"github.com/wilson323/llmchat-sub005/application"
	domaincfg "github.com/wilson323/llmchat-sub005/domain/config"
	infracfg "github.com/wilson323/llmchat-sub005/infrastructure/config"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
)

// withEngine loads the configuration, brings up a manager, runs fn,
// and tears the manager down again. Without a config path the engine
// runs fully in memory, which is enough for ad-hoc inspection.
func (a *App) withEngine(ctx context.Context, configPath string, fn func(context.Context, *application.Manager) error) error {
	cfg, err := a.loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Log.Level != "" || cfg.Log.Format != "" {
		logging.Init(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	}

	manager, err := application.NewManagerFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		_ = manager.Destroy(context.WithoutCancel(ctx))
	}()

	return fn(ctx, manager)
}

func (a *App) loadConfig(configPath string) (*domaincfg.EngineConfig, error) {
	if configPath == "" {
		return &domaincfg.EngineConfig{
			Name: "sessioncache",
			Durable: domaincfg.DurableConfig{
				Backend:  "badger",
				InMemory: true,
			},
			Sync: domaincfg.SyncConfig{Enabled: false},
		}, nil
	}

	loader := infracfg.NewLoader()
	cfg, err := loader.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
