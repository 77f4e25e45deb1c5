package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotsetgreg/relay/pkg/actions"
	"github.com/dotsetgreg/relay/pkg/agent"
	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/config"
	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/memory"
	"github.com/dotsetgreg/relay/pkg/outbox"
	"github.com/dotsetgreg/relay/pkg/providers"
	"github.com/dotsetgreg/relay/pkg/ratelimit"
	"github.com/dotsetgreg/relay/pkg/run"
	"github.com/dotsetgreg/relay/pkg/thread"
)

// appRuntime is the assembled message pipeline shared by chat and gateway
// mode. Channels register themselves after they connect, everything else is
// wired up front.
type appRuntime struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      memory.Store
	dedup      *memory.Dedup
	router     *agent.Router
	emitter    *agent.Emitter
	loop       *agent.AgentLoop
	controller *run.Controller
}

func buildRuntime(cfg *config.Config) (*appRuntime, error) {
	logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.JSON)

	dbPath := cfg.MemoryDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	store, err := memory.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	dedup, err := memory.NewDedup(store, cfg.Memory.DedupCache)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init dedup cache: %w", err)
	}

	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry); err != nil {
		store.Close()
		return nil, err
	}
	if err := registry.Validate(actions.ActionReply, actions.ActionIgnore, actions.ActionNone); err != nil {
		store.Close()
		return nil, fmt.Errorf("action registry incomplete: %w", err)
	}

	model := providers.NewOpenAICompatModel(
		cfg.GetAPIBase(),
		cfg.Provider.APIKey,
		cfg.Agent.Model,
		cfg.Agent.MaxTokens,
	)

	var gate ratelimit.Gate = ratelimit.AllowAll{}
	if cfg.RateLimit.Enabled {
		gate = ratelimit.NewSenderLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.Burst,
			cfg.RateLimit.BlockFrom,
		)
	}

	agentID := identity.ForEntity("agent", cfg.Agent.Name)
	emitter := agent.NewEmitter(dedup, agentID)

	sink := run.LogSink{}
	router := agent.NewRouter(agent.RouterConfig{
		AgentID:  agentID,
		Dedup:    dedup,
		Gate:     gate,
		Composer: agent.NewComposer(store, agentID, cfg.Agent.Name, cfg.Memory.RecentLimit),
		Model:    model,
		Registry: registry,
		Emitter:  emitter,
		Sink:     sink,
	})

	controller := run.NewController(
		sink,
		time.Duration(cfg.Run.BudgetMinutes)*time.Minute,
		run.ParseTerminalPolicy(cfg.Run.TerminalPolicy),
	)

	messageBus := bus.NewMessageBus()

	return &appRuntime{
		cfg:        cfg,
		bus:        messageBus,
		store:      store,
		dedup:      dedup,
		router:     router,
		emitter:    emitter,
		loop:       agent.NewAgentLoop(messageBus, controller, router),
		controller: controller,
	}, nil
}

// attachChannel registers a connected platform with the pipeline: its self
// id for loop prevention, its delivery surface behind a fresh outbox queue,
// and optionally its parent fetcher and completion notifier.
func (rt *appRuntime) attachChannel(name, selfID string, sender agent.Sender, fetcher thread.ParentFetcher, notifier agent.Notifier) {
	rt.router.RegisterChannel(name, selfID, fetcher, notifier)

	backoff := outbox.BackoffPolicy{
		InitialMS: float64(rt.cfg.Outbox.BackoffInitialMS),
		MaxMS:     float64(rt.cfg.Outbox.BackoffMaxMS),
		Factor:    2,
		Jitter:    0.1,
	}
	queue := outbox.NewQueue(
		name,
		backoff,
		time.Duration(rt.cfg.Outbox.PacingMinMS)*time.Millisecond,
		time.Duration(rt.cfg.Outbox.PacingMaxMS)*time.Millisecond,
	)
	rt.emitter.RegisterClient(name, sender, queue)
}

func (rt *appRuntime) shutdown() {
	rt.emitter.Close()
	rt.bus.Close()
	if err := rt.store.Close(); err != nil {
		logger.WarnCF("main", "Error closing memory store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
