package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/assistant"
	"github.com/MarcusD9722/Nova/config"
	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/engine"
	"github.com/MarcusD9722/Nova/llm/anthropic"
	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/memory/audit"
	"github.com/MarcusD9722/Nova/memory/cache"
	"github.com/MarcusD9722/Nova/memory/store/chromem"
	"github.com/MarcusD9722/Nova/memory/store/sqlite"
	"github.com/MarcusD9722/Nova/staging"
	"github.com/MarcusD9722/Nova/tools"
)

var log = logging.For("nova")

// app holds the wired components. Close releases them in reverse order.
type app struct {
	cfg       *config.Config
	memory    *memory.Unifier
	router    *tools.Router
	assistant *assistant.Assistant

	closers []func() error
}

// openApp wires memory and tools. The assistant, engine and generator are
// only built when withAssistant is set.
func openApp(ctx context.Context, cfg *config.Config, withAssistant bool) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := sqlite.New(cfg.Memory.SQLitePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	embedder, closeEmbedder, err := newEmbedder(cfg.Memory)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeEmbedder)

	index, err := chromem.New(chromem.Config{Dir: cfg.Memory.IndexDir}, embedder)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index.Close)

	c, err := newCache(ctx, cfg.Memory.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)

	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.Audit.Kafka.Brokers) > 0 {
		publisher = audit.NewKafkaPublisher(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic)
		a.closers = append(a.closers, publisher.Close)
	}
	auditLog, err := audit.New(cfg.Memory.AuditDir, publisher)
	if err != nil {
		return nil, err
	}

	mc := *memory.DefaultConfig
	mc.SearchTTL = cfg.Memory.SearchTTL
	mc.RecordTTL = cfg.Memory.RecordTTL
	a.memory = memory.NewUnifier(store, index, c, auditLog, &mc)

	rebuilt, counts, err := a.memory.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		log.WithFields(logrus.Fields{
			"facts":  counts.Facts,
			"people": counts.People,
			"events": counts.Events,
		}).Info("semantic index rebuilt from store")
	}

	reg := tools.NewRegistry()
	providers := tools.NewProviders(tools.Credentials{
		OpenWeatherKey:   cfg.Providers.OpenWeatherKey,
		GoogleMapsKey:    cfg.Providers.GoogleMapsKey,
		DiscordToken:     cfg.Providers.DiscordToken,
		DiscordChannelID: cfg.Providers.DiscordChannelID,
	}, a.memory)
	workspace, err := tools.NewWorkspace(tools.WorkspaceConfig{
		Root:        cfg.Tools.Root,
		ProjectsDir: cfg.Tools.ProjectsDir,
		AllowShell:  cfg.Tools.AllowShell,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range append(providers.Tools(), workspace.Tools()...) {
		if t.Network && !cfg.Tools.AllowNetwork {
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	a.router = tools.NewRouter(reg, tools.WithRateLimit(cfg.Tools.Rate, cfg.Tools.Burst))

	if !withAssistant {
		ok = true
		return a, nil
	}

	exec := tools.ExecOptions{Timeout: cfg.Tools.Timeout, Retries: cfg.Tools.Retries}
	gen, err := newGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	var eng *engine.Engine
	if gen != nil {
		eng = engine.New(gen, a.router, engine.WithMaxSteps(cfg.Engine.MaxSteps), engine.WithExecOptions(exec))
	}
	a.assistant = assistant.New(a.memory, staging.NewMemoryStore(cfg.Assistant.PendingTTL), a.router, eng, gen, assistant.Config{
		SaveMode:      cfg.Assistant.SaveMode,
		UserEntity:    cfg.Assistant.UserEntity,
		EngineEnabled: cfg.Engine.Enabled,
		ToolOptions:   exec,
	})
	ok = true
	return a, nil
}

// newGenerator returns nil when no API key is configured.
func newGenerator(cfg config.LLMConfig) (core.Generator, error) {
	if cfg.APIKey == "" {
		log.Warn("no LLM API key configured, answers are limited to memory and tools")
		return nil, nil
	}
	gen, err := anthropic.New(anthropic.Config{APIKey: cfg.APIKey, Model: cfg.Model, MaxRetries: cfg.MaxRetries})
	if err != nil {
		return nil, err
	}
	return gen, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (memory.Cache, error) {
	switch cfg.Backend {
	case "", "local":
		return cache.NewLocal(cfg.MaxBytes)
	case "redis":
		return cache.NewRedis(ctx, cache.RedisConfig{URL: cfg.RedisURL, Addr: cfg.RedisAddr})
	}
	return nil, fmt.Errorf("%w: unknown cache backend %q", core.ErrConfiguration, cfg.Backend)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
