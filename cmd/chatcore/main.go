package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/client"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/config"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/logging"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/models"
	"github.com/swapnilaswale123456/KnowledgeHubAI-sub000/transport"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	chatbotID := flag.String("chatbot", "", "chatbot id (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *chatbotID != "" {
		cfg.Client.ChatbotID = *chatbotID
	}
	if cfg.Client.ChatbotID == "" {
		fmt.Fprintln(os.Stderr, "a chatbot id is required (-chatbot or config)")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c := client.New(client.Options{
		Transport: transport.Options{
			Host:              cfg.Client.Host,
			Secure:            cfg.Client.Secure,
			Environment:       cfg.Client.Environment,
			DevPort:           cfg.Client.DevPort,
			ChatbotID:         cfg.Client.ChatbotID,
			UserID:            cfg.Client.UserID,
			SessionID:         cfg.Client.SessionID,
			ConnectTimeout:    cfg.Client.ConnectTimeout,
			HeartbeatInterval: cfg.Client.HeartbeatInterval,
			BackoffInitial:    cfg.Client.Backoff.InitialDelay,
			BackoffMax:        cfg.Client.Backoff.MaxDelay,
			BackoffFactor:     cfg.Client.Backoff.Factor,
			MaxAttempts:       cfg.Client.Backoff.MaxAttempts,
		},
		HistoryURL: cfg.Client.HistoryURL,
		Logger:     log,
	})

	c.OnActiveMessage(func(msg models.Message) {
		if msg.Sender == models.SenderBot {
			fmt.Printf("bot> %s\n", msg.Content)
		}
	})
	c.AddStateHandler(func(connected bool) {
		if connected {
			fmt.Println("[connected]")
		} else {
			fmt.Println("[reconnecting...]")
		}
	})

	if cfg.Client.HistoryURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.LoadHistory(ctx); err != nil {
			log.Warn("could not load history", zap.Error(err))
		}
		cancel()
	}

	c.Connect()
	defer c.Disconnect()

	fmt.Println("type a message, or /new, /list, /switch <session-id>, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/new":
			conv := c.StartNewConversation()
			fmt.Printf("started %s\n", conv.SessionID)
		case line == "/list":
			for _, conv := range c.Conversations() {
				fmt.Printf("%s  %s\n", conv.SessionID, conv.Preview)
			}
		case strings.HasPrefix(line, "/switch "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/switch "))
			c.UpdateSessionID(id)
			if conv, ok := c.ActiveConversation(); ok {
				for _, msg := range conv.Messages {
					fmt.Printf("%s> %s\n", msg.Sender, msg.Content)
				}
			}
		default:
			if !c.SendMessage(line) {
				fmt.Println("[not connected, message not sent]")
			}
		}
	}
}
