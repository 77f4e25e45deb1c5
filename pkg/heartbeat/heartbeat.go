// Package heartbeat periodically wakes the agent with a synthetic inbound
// message so it can act without anyone talking to it.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/config"
	"github.com/dotsetgreg/relay/pkg/logger"
)

const checkInterval = time.Minute

// SenderID marks heartbeat-originated messages in storage.
const SenderID = "heartbeat"

type Service struct {
	bus      *bus.MessageBus
	cfg      config.HeartbeatConfig
	gron     *gronx.Gronx
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg config.HeartbeatConfig, messageBus *bus.MessageBus) *Service {
	return &Service{
		bus:      messageBus,
		cfg:      cfg,
		gron:     gronx.New(),
		interval: checkInterval,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		logger.InfoC("heartbeat", "Heartbeat disabled")
		return nil
	}
	if !s.gron.IsValid(s.cfg.Schedule) {
		return fmt.Errorf("invalid heartbeat schedule %q", s.cfg.Schedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)

	logger.InfoCF("heartbeat", "Heartbeat started", map[string]interface{}{
		"schedule": s.cfg.Schedule,
		"channel":  s.cfg.Channel,
	})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.cfg.Schedule, now)
			if err != nil {
				logger.ErrorCF("heartbeat", "Schedule check failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if due {
				s.fire(now)
			}
		}
	}
}

func (s *Service) fire(now time.Time) {
	logger.DebugC("heartbeat", "Heartbeat due, publishing wake-up")
	s.bus.PublishInbound(bus.InboundMessage{
		Channel:    s.cfg.Channel,
		SenderID:   SenderID,
		SenderName: "Heartbeat",
		ChatID:     s.cfg.ChatID,
		MessageID:  uuid.NewString(),
		Content:    s.cfg.Prompt,
		ReceivedAt: now,
	})
}
