package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/relay/pkg/config"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "relay",
		Short: "Cross-platform agent pipeline with deduplicating memory and serialized delivery",
		Long: strings.TrimSpace(`relay connects an LLM agent to chat platforms.

Every platform message is deduplicated into a canonical memory record, reply
threads are reconstructed from parent pointers, and outbound sends go through
per-client serialized queues with retry and pacing.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.relay config and workspace",
		Long:    "Create default configuration and workspace directories for a new relay installation.",
		Example: "  relay onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard()
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		message string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent locally (no platform connection)",
		Long:  "Run an interactive local session or send a one-shot message through the full pipeline.",
		Example: strings.Join([]string{
			"  relay chat",
			"  relay chat --message \"what did I miss today?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepareConfig(debug, false)
			if err != nil {
				return err
			}
			return chatCmd(cfg, message)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot prompt to send to the agent")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the Discord gateway",
		Long:    "Start channel adapters, the deduplicating memory pipeline, and the heartbeat service.",
		Example: "  relay gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepareConfig(debug, true)
			if err != nil {
				return err
			}
			return gatewayCmd(cfg)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  relay status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  relay version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func prepareConfig(debug, requireDiscord bool) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := validateRuntimeConfig(cfg, requireDiscord); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateRuntimeConfig(cfg *config.Config, requireDiscord bool) error {
	configPath := getConfigPath()
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return fmt.Errorf("provider.api_key is required in %s or RELAY_PROVIDER_API_KEY", configPath)
	}
	if requireDiscord && strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
		return fmt.Errorf("channels.discord.token is required in %s or RELAY_CHANNELS_DISCORD_TOKEN", configPath)
	}
	return nil
}

func onboard() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("  2. (Gateway mode) Add your Discord bot token to channels.discord.token")
	fmt.Println("  3. Chat locally: relay chat -m \"Hello!\"")
	fmt.Println("  4. Run gateway: relay gateway")
	fmt.Println("  5. Check readiness: relay status")
	return nil
}

func statusCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "ok")
	} else {
		fmt.Println("Config:", configPath, "missing")
	}

	workspace := cfg.WorkspacePath()
	if _, err := os.Stat(workspace); err == nil {
		fmt.Println("Workspace:", workspace, "ok")
	} else {
		fmt.Println("Workspace:", workspace, "missing")
	}
	if _, err := os.Stat(cfg.MemoryDBPath()); err == nil {
		fmt.Println("Memory DB:", cfg.MemoryDBPath(), "ok")
	} else {
		fmt.Println("Memory DB:", cfg.MemoryDBPath(), "not initialized")
	}

	fmt.Printf("Model: %s\n", cfg.Agent.Model)

	ready := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "not set"
	}
	apiReady := strings.TrimSpace(cfg.Provider.APIKey) != ""
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""

	fmt.Println("Provider API key:", ready(apiReady))
	fmt.Println("Discord token:", ready(discordReady))
	fmt.Println("Chat ready:", ready(apiReady))
	fmt.Println("Gateway ready:", ready(apiReady && discordReady))

	return nil
}
