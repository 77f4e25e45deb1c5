package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dotsetgreg/relay/pkg/actions"
	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/memory"
	"github.com/dotsetgreg/relay/pkg/providers"
	"github.com/dotsetgreg/relay/pkg/ratelimit"
	"github.com/dotsetgreg/relay/pkg/run"
	"github.com/dotsetgreg/relay/pkg/thread"
)

// Router drives one inbound message through the pipeline: persist, gate,
// compose, decide, dispatch, emit. One Router serves all channels; the
// per-channel capabilities are registered at startup.
type Router struct {
	agentID  string
	dedup    *memory.Dedup
	gate     ratelimit.Gate
	composer *Composer
	model    providers.Model
	registry *actions.Registry
	emitter  *Emitter
	hooks    Hooks
	sink     run.EventSink

	mu        sync.RWMutex
	selfIDs   map[string]string // channel -> the agent's own platform sender id
	threads   map[string]*thread.Reconstructor
	notifiers map[string]Notifier
}

// Notifier is an optional per-channel capability. ProcessingDone fires once
// per inbound message when its run settles, whatever the outcome, so the
// adapter can clear presence state it raised on receipt. Silence is a normal
// outcome here and produces no delivery.
type Notifier interface {
	ProcessingDone(chatID string)
}

type RouterConfig struct {
	AgentID  string
	Dedup    *memory.Dedup
	Gate     ratelimit.Gate
	Composer *Composer
	Model    providers.Model
	Registry *actions.Registry
	Emitter  *Emitter
	Hooks    Hooks
	Sink     run.EventSink
}

func NewRouter(cfg RouterConfig) *Router {
	gate := cfg.Gate
	if gate == nil {
		gate = ratelimit.AllowAll{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = run.NopSink{}
	}
	return &Router{
		agentID:   cfg.AgentID,
		dedup:     cfg.Dedup,
		gate:      gate,
		composer:  cfg.Composer,
		model:     cfg.Model,
		registry:  cfg.Registry,
		emitter:   cfg.Emitter,
		hooks:     cfg.Hooks,
		sink:      sink,
		selfIDs:   make(map[string]string),
		threads:   make(map[string]*thread.Reconstructor),
		notifiers: make(map[string]Notifier),
	}
}

// RegisterChannel wires the per-channel capabilities: the agent's own sender
// id on that platform (to reject self-messages), optionally a parent fetcher
// for thread reconstruction, and optionally a completion notifier.
func (r *Router) RegisterChannel(channel, selfSenderID string, fetcher thread.ParentFetcher, notifier Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfIDs[channel] = selfSenderID
	if fetcher != nil {
		r.threads[channel] = thread.NewReconstructor(r.dedup, fetcher, r.agentID)
	}
	if notifier != nil {
		r.notifiers[channel] = notifier
	}
}

// Process handles one inbound message end to end. Transient and parse
// errors are absorbed close to their source; only structural ingestion
// failures come back as errors and abort this message's task.
func (r *Router) Process(ctx context.Context, runID string, msg bus.InboundMessage) error {
	if msg.MessageID == "" {
		return ErrMissingID
	}
	r.mu.RLock()
	selfID := r.selfIDs[msg.Channel]
	reconstructor := r.threads[msg.Channel]
	notifier := r.notifiers[msg.Channel]
	r.mu.RUnlock()
	if notifier != nil {
		defer notifier.ProcessingDone(msg.ChatID)
	}
	if selfID != "" && msg.SenderID == selfID {
		return ErrSelfMessage
	}

	// Persist the inbound message before anything else. Whatever happens
	// downstream, the audit record exists exactly once.
	inbound := memory.FromInbound(msg, r.agentID)
	if err := r.dedup.Store().EnsureConnection(ctx, inbound.SenderID, inbound.RoomID, msg.SenderName, msg.Channel); err != nil {
		return fmt.Errorf("ensure connection: %w", err)
	}
	created, err := r.dedup.EnsureMemory(ctx, inbound)
	if err != nil {
		return fmt.Errorf("persist inbound memory: %w", err)
	}
	if !created {
		logger.DebugCF("agent", "Duplicate delivery collapsed onto existing memory", map[string]interface{}{
			"memory_id": inbound.ID,
			"channel":   msg.Channel,
		})
	}

	if !r.gate.CanProcess(msg) {
		logger.InfoCF("agent", "Message dropped by rate limiter", map[string]interface{}{
			"run_id":    runID,
			"channel":   msg.Channel,
			"sender_id": msg.SenderID,
		})
		return run.ErrDropped
	}

	var chain []memory.Memory
	if msg.ReplyToID != "" && reconstructor != nil {
		chain = reconstructor.Reconstruct(ctx, msg)
	}

	prompt := r.composer.Compose(ctx, msg, inbound, chain, r.registry.Describe())

	allowed := r.hooks.allowDecision(ctx, inbound)
	r.sink.OnHookResult("pre_decision", runID, allowed)
	if !allowed {
		logger.InfoCF("agent", "Decision vetoed by hook", map[string]interface{}{"run_id": runID})
		return nil
	}

	decision, err := actions.RequestDecision(ctx, r.model, prompt)
	if err != nil {
		return err
	}
	decision.InReplyTo = inbound.ID

	allowed = r.hooks.allowDispatch(ctx, decision)
	r.sink.OnHookResult("pre_dispatch", runID, allowed)
	if !allowed {
		logger.InfoCF("agent", "Dispatch vetoed by hook", map[string]interface{}{"run_id": runID})
		return nil
	}

	emitted := 0
	emit := func(emitCtx context.Context, resp actions.Response) error {
		deliveries, err := r.emitter.Emit(emitCtx, msg, resp)
		if err != nil {
			return err
		}
		emitted += len(deliveries)
		return nil
	}

	var dispatchErrs []error
	req := actions.Request{Decision: *decision, Message: inbound, Thread: chain}
	for _, name := range decision.Actions {
		action, ok := r.registry.Get(actions.Name(name))
		if !ok {
			// Startup validation covers registered names; the model can
			// still invent one. Degrade to silence for it.
			logger.WarnCF("agent", "Decided action has no handler", map[string]interface{}{
				"run_id": runID,
				"action": name,
			})
			continue
		}
		if err := action.Handler(ctx, req, emit); err != nil {
			logger.ErrorCF("agent", "Action handler failed", map[string]interface{}{
				"run_id": runID,
				"action": name,
				"error":  err.Error(),
			})
			dispatchErrs = append(dispatchErrs, fmt.Errorf("action %s: %w", name, err))
		}
	}

	logger.InfoCF("agent", "Message evaluated", map[string]interface{}{
		"run_id":    runID,
		"memory_id": inbound.ID,
		"actions":   decision.Actions,
		"responses": emitted,
	})
	return errors.Join(dispatchErrs...)
}
