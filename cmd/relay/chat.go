package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/channels"
	"github.com/dotsetgreg/relay/pkg/config"
)

const replyWait = 90 * time.Second

// notifyingCLI wraps the CLI channel so the REPL knows when a reply has
// landed and can reprompt.
type notifyingCLI struct {
	*channels.CLIChannel
	delivered chan struct{}
}

func (n *notifyingCLI) Deliver(ctx context.Context, chatID, content, replyToID string) ([]bus.DeliveryResult, error) {
	results, err := n.CLIChannel.Deliver(ctx, chatID, content, replyToID)
	if err == nil && len(results) > 0 {
		select {
		case n.delivered <- struct{}{}:
		default:
		}
	}
	return results, err
}

func chatCmd(cfg *config.Config, message string) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	cli := &notifyingCLI{
		CLIChannel: channels.NewCLIChannel(rt.bus, os.Stdout),
		delivered:  make(chan struct{}, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cli.Start(ctx); err != nil {
		return err
	}
	rt.attachChannel("cli", cli.SelfID(), cli, nil, nil)

	loopDone := make(chan struct{})
	go func() {
		rt.loop.Run(ctx)
		close(loopDone)
	}()

	if message != "" {
		cli.Submit(message)
		waitForReply(cli.delivered)
	} else {
		fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
		interactiveMode(cli)
	}

	cancel()
	<-loopDone
	return nil
}

func waitForReply(delivered <-chan struct{}) {
	select {
	case <-delivered:
	case <-time.After(replyWait):
		fmt.Println("(no reply)")
	}
}

func interactiveMode(cli *notifyingCLI) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".relay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		cli.Submit(input)
		waitForReply(cli.delivered)
	}
}
