// PicoChat - chat bot bridge built on PicoClaw
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/sipeed/picochat/pkg/agent"
	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/channels"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/cron"
	"github.com/sipeed/picochat/pkg/gateway"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/providers"
	"github.com/sipeed/picochat/pkg/session"
)

const version = "0.1.0"
const logo = "💬"

const consoleSender = "console"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	loadEnvFiles()

	command := os.Args[1]

	switch command {
	case "onboard":
		onboard()
	case "gateway":
		gatewayCmd()
	case "console":
		consoleCmd()
	case "status":
		statusCmd()
	case "cron":
		cronCmd()
	case "version", "--version", "-v":
		fmt.Printf("%s picochat v%s\n", logo, version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s picochat - chat bot bridge v%s\n\n", logo, version)
	fmt.Println("Usage: picochat <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard     Write the default configuration")
	fmt.Println("  gateway     Connect the configured channels and serve messages")
	fmt.Println("  console     Talk to the bot from the terminal")
	fmt.Println("  status      Show picochat status")
	fmt.Println("  cron        Manage scheduled jobs")
	fmt.Println("  version     Show version information")
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picochat", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

// loadEnvFiles reads ~/.picochat/.env then ./.env. Variables already in the
// process environment win.
func loadEnvFiles() {
	paths := []string{
		filepath.Join(filepath.Dir(getConfigPath()), ".env"),
		".env",
	}
	for _, path := range paths {
		if err := loadEnvFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
}

func applyDebugFlag(args []string) {
	for _, arg := range args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
			return
		}
	}
}

func setupLogging(cfg *config.Config) {
	if level, ok := logger.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(level)
	}
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(config.ExpandHome(cfg.Log.File)); err != nil {
			fmt.Printf("Warning: file logging disabled: %v\n", err)
		}
	}
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s picochat is ready!\n", logo)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your OpenAI API key to", configPath)
	fmt.Println("     (or set OPENAI_API_KEY in", filepath.Join(filepath.Dir(configPath), ".env")+")")
	fmt.Println("  2. Set bot.admin to your own contact name")
	fmt.Println("  3. Try it: picochat console")
	fmt.Println("  4. Go live: picochat gateway")
}

// app holds the components shared by gateway and console.
type app struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	sessions  *session.SessionManager
	agentLoop *agent.AgentLoop
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	store, err := session.OpenStore(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}
	sessions := session.NewSessionManager(store)

	msgBus := bus.NewMessageBus()
	agentLoop := agent.NewAgentLoop(cfg, msgBus, provider, sessions)

	startupInfo := agentLoop.GetStartupInfo()
	logger.InfoCF("agent", "Agent initialized", map[string]interface{}{
		"tools":         startupInfo["tools"].(map[string]interface{})["names"],
		"admin_enabled": startupInfo["admin_enabled"],
		"conversations": startupInfo["conversations"],
	})

	return &app{
		cfg:       cfg,
		bus:       msgBus,
		sessions:  sessions,
		agentLoop: agentLoop,
	}, nil
}

func gatewayCmd() {
	a, err := newApp()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	applyDebugFlag(os.Args[2:])
	defer a.sessions.Close()

	channelManager, err := channels.NewManager(a.cfg, a.bus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	} else {
		fmt.Println("⚠ Warning: No channels enabled")
	}

	var cronService *cron.CronService
	if a.cfg.Cron.Enabled {
		cronService = cron.NewCronService(a.cfg.CronStorePath(), cron.NewJobHandler(
			channelManager,
			a.agentLoop,
			a.sessions,
			a.cfg.CompletionTimeout()+30*time.Second,
		))
	}

	var statusServer *gateway.Server
	if a.cfg.Gateway.Enabled {
		sections := map[string]gateway.StatusFunc{
			"channels": channelManager.GetStatus,
			"agent":    a.agentLoop.GetStartupInfo,
		}
		if cronService != nil {
			sections["cron"] = cronService.Status
		}
		statusServer = gateway.NewServer(a.cfg.Gateway.Host, a.cfg.Gateway.Port, sections)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cronService != nil {
		if err := cronService.Start(); err != nil {
			fmt.Printf("Error starting cron service: %v\n", err)
		} else {
			fmt.Println("✓ Cron service started")
		}
	}

	if statusServer != nil {
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.ErrorCF("gateway", "Status server failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
		fmt.Printf("✓ Status server on %s:%d\n", a.cfg.Gateway.Host, a.cfg.Gateway.Port)
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	go a.agentLoop.Run(ctx)

	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if statusServer != nil {
		statusServer.Stop(shutdownCtx)
	}
	if cronService != nil {
		cronService.Stop()
	}
	a.agentLoop.Stop()
	channelManager.StopAll(shutdownCtx)
	logger.Sync()
	fmt.Println("✓ Gateway stopped")
}

func consoleCmd() {
	a, err := newApp()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	applyDebugFlag(os.Args[2:])
	defer a.sessions.Close()

	fmt.Printf("%s Console mode, you are %q (Ctrl+C to exit)\n\n", logo, consoleSender)
	interactiveMode(a.agentLoop)
}

func interactiveMode(agentLoop *agent.AgentLoop) {
	prompt := fmt.Sprintf("%s You: ", logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".picochat_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(agentLoop)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleConsoleLine(agentLoop, line) {
			return
		}
	}
}

func simpleInteractiveMode(agentLoop *agent.AgentLoop) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleConsoleLine(agentLoop, line) {
			return
		}
	}
}

// handleConsoleLine returns false when the user asked to leave.
func handleConsoleLine(agentLoop *agent.AgentLoop, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Println("Goodbye!")
		return false
	}

	replies, err := agentLoop.ProcessDirect(context.Background(), input, consoleSender)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	if len(replies) == 0 && err == nil {
		fmt.Println("(no reply)")
		return true
	}
	for _, reply := range replies {
		fmt.Printf("\n%s %s\n\n", logo, formatReply(reply))
	}
	return true
}

func formatReply(msg bus.OutboundMessage) string {
	parts := make([]string, 0, 2)
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	if att := msg.Attachment; att != nil {
		parts = append(parts, fmt.Sprintf("[image %s] %s", att.Name, att.URL))
	}
	return strings.Join(parts, "\n")
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s picochat Status\n\n", logo)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}

	fmt.Printf("Model: %s\n", cfg.Providers.OpenAI.Model)
	fmt.Println("OpenAI API key:", mark(cfg.GetAPIKey() != ""))
	if base := cfg.GetAPIBase(); base != "" {
		fmt.Println("API base:", base)
	}
	fmt.Println("Admin:", mark(cfg.Bot.Admin != ""))
	fmt.Println("Session backend:", cfg.Session.Backend)

	cc := cfg.Channels
	enabled := map[string]bool{
		"wechat":   cc.WeChat.Enabled,
		"onebot":   cc.OneBot.Enabled,
		"telegram": cc.Telegram.Enabled,
		"discord":  cc.Discord.Enabled,
		"qq":       cc.QQ.Enabled,
		"dingtalk": cc.DingTalk.Enabled,
		"feishu":   cc.Feishu.Enabled,
	}
	fmt.Println("\nChannels:")
	for _, name := range []string{"wechat", "onebot", "telegram", "discord", "qq", "dingtalk", "feishu"} {
		state := "disabled"
		if enabled[name] {
			state = "enabled"
		}
		fmt.Printf("  %-9s %s\n", name, state)
	}

	if cfg.Cron.Enabled {
		jobs := cron.NewCronService(cfg.CronStorePath(), nil).ListJobs(true)
		fmt.Printf("\nCron: %d job(s) in %s\n", len(jobs), cfg.CronStorePath())
	}
}
