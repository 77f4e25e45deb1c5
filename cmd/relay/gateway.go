package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dotsetgreg/relay/pkg/channels"
	"github.com/dotsetgreg/relay/pkg/config"
	"github.com/dotsetgreg/relay/pkg/heartbeat"
)

func gatewayCmd(cfg *config.Config) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	channelManager, err := channels.NewManager(cfg, rt.bus)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	// Self ids and delivery surfaces are only known once the adapters are
	// connected, so pipeline registration happens after StartAll.
	if ch, ok := channelManager.GetChannel("discord"); ok {
		if discord, ok := ch.(*channels.DiscordChannel); ok {
			rt.attachChannel("discord", discord.SelfID(), discord, discord, discord)
		}
	}

	heartbeatService := heartbeat.NewService(cfg.Heartbeat, rt.bus)
	if err := heartbeatService.Start(); err != nil {
		channelManager.StopAll(ctx)
		return fmt.Errorf("start heartbeat: %w", err)
	}

	go rt.loop.Run(ctx)

	enabled := channelManager.GetEnabledChannels()
	fmt.Printf("Channels enabled: %s\n", strings.Join(enabled, ", "))
	fmt.Println("Gateway running. Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	heartbeatService.Stop()
	channelManager.StopAll(ctx)
	fmt.Println("Gateway stopped")
	return nil
}
