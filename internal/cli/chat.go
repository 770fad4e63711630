// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   nanochat chat                     Start chat with the selected model
//   nanochat chat --model gpt-romo    Use a specific model
//   nanochat chat --conversation ID   Continue an existing conversation
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new                Start a new conversation
//   /model [id]         Show or switch model
//   /models             List visible models
//   /conversations      List recent conversations
//   /switch <id>        Switch to another conversation
//   /regen              Regenerate the last reply
//   /search <mode>      Set web search mode (off, auto, force)
//   /history            Show messages in this conversation
//   /quit, /q           Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat-go/internal/config"
	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/model"
	"github.com/nanochat/nanochat-go/internal/session"
)

var (
	chatFlagModel        string
	chatFlagConversation string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatFlagModel, "model", "m", "", "model id to chat with")
	chatCmd.Flags().StringVar(&chatFlagConversation, "conversation", "", "continue an existing conversation id")
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		// Fallback to temp directory if config dir unavailable
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "chat_history")

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}

	cli.LoadHistory()

	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}

	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// replyPrinter implements session.Notifier by printing finished assistant
// replies to stdout.
type replyPrinter struct{}

func (replyPrinter) MessageReceived(conv model.Conversation, msg model.Message) {
	fmt.Println()
	if msg.Reasoning != "" {
		fmt.Printf("[reasoning] %s\n\n", msg.Reasoning)
	}
	fmt.Println(msg.Content)
}

// chatSession holds the state for an interactive chat session.
type chatSession struct {
	app        *App
	controller *session.Controller
	input      *ChatCLI

	conversationID string
	webSearch      model.WebSearchMode

	startTime time.Time
	sends     int
}

// runChat handles the "chat" command.
func runChat(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	// Hot-reload the config file while the REPL runs: a rewrite swaps the
	// gateway credentials without restarting the session. The --base-url
	// flag keeps precedence over the file.
	app.Manager.OnChange(func(cfg *config.Config) {
		baseURL := cfg.Server.BaseURL
		if flagBaseURL != "" {
			baseURL = flagBaseURL
		}
		app.Gateway.UpdateCredentials(baseURL, cfg.Server.APIKey)
	})
	if err := app.Manager.Watch(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("config watch unavailable")
	}

	// Load the model catalog; a stale fetch is tolerated when cached models
	// exist.
	status, err := app.Catalog.Load(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to load model catalog: %w", err)
	}
	if status.FetchErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: model catalog refresh failed, using cached models: %v\n", status.FetchErr)
	}

	if chatFlagModel != "" {
		if err := app.Catalog.Select(chatFlagModel); err != nil {
			return err
		}
	}
	if app.Catalog.Selected() == "" {
		return fmt.Errorf("no visible models available; run 'nanochat models list'")
	}

	opts := session.Options{
		PollInterval:             app.Config.PollInterval(),
		PollDeadline:             app.Config.PollDeadline(),
		ConversationRefreshEvery: app.Config.Generation.ConversationRefreshEvery,
	}
	controller := session.New(app.Gateway, replyPrinter{}, opts, app.Logger)

	s := &chatSession{
		app:            app,
		controller:     controller,
		input:          NewChatCLI(),
		conversationID: chatFlagConversation,
		webSearch:      model.WebSearchMode(app.Config.Generation.WebSearchMode),
		startTime:      time.Now(),
	}
	defer s.input.Close()

	s.printWelcome()

	// Main REPL loop using liner for input history.
	for {
		input, err := s.input.ReadInput("nanochat> ")
		if err != nil {
			// Ctrl+C at the prompt or EOF (Ctrl+D) exits gracefully.
			fmt.Println()
			s.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := s.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			}
			if !shouldContinue {
				s.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			s.printExitSummary()
			return nil
		}

		if err := s.sendMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// sendMessage submits a user message and waits for the generated reply.
// Ctrl+C during generation cancels the wait without exiting the REPL.
func (s *chatSession) sendMessage(text string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelID := s.app.Catalog.Selected()
	provider, err := s.app.Catalog.ProviderFor(ctx, modelID)
	if err != nil {
		// Provider restore is best-effort; fall back to backend default.
		provider = ""
	}

	req := model.GenerationRequest{
		Text:           text,
		ModelID:        modelID,
		ConversationID: s.conversationID,
		WebSearchMode:  s.webSearch,
		Provider:       provider,
	}

	start := time.Now()
	result, err := s.controller.Send(ctx, req)
	if err != nil {
		return err
	}

	s.conversationID = result.ConversationID
	s.sends++

	fmt.Println()
	s.printReplyStats(result, time.Since(start))
	return nil
}

// printReplyStats shows a brief line after each reply.
func (s *chatSession) printReplyStats(result *session.Result, elapsed time.Duration) {
	parts := []string{elapsed.Round(time.Millisecond).String()}
	if result.Message.Model != "" {
		parts = append(parts, result.Message.Model)
	}
	if result.Conversation.Cost > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", result.Conversation.Cost))
	}
	fmt.Fprintf(os.Stderr, "[%s]\n", strings.Join(parts, " | "))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (s *chatSession) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
		return true, nil

	case "/new":
		s.conversationID = ""
		s.controller.SwitchConversation("")
		fmt.Println("[New conversation]")
		return true, nil

	case "/model", "/m":
		return s.handleModelCommand(args)

	case "/models":
		s.printModels()
		return true, nil

	case "/conversations":
		return true, s.printConversations()

	case "/switch":
		if len(args) == 0 {
			return true, fmt.Errorf("usage: /switch <conversation-id>")
		}
		s.conversationID = args[0]
		s.controller.SwitchConversation(args[0])
		fmt.Printf("[Switched to conversation %s]\n", args[0])
		return true, nil

	case "/regen":
		return true, s.regenerate()

	case "/search":
		return s.handleSearchCommand(args)

	case "/history":
		s.printHistory()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand handles the /model command.
func (s *chatSession) handleModelCommand(args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("[Model] Current model: %s\n", s.app.Catalog.Selected())
		return true, nil
	}

	if err := s.app.Catalog.Select(args[0]); err != nil {
		return true, err
	}
	fmt.Printf("[OK] Switched to model: %s\n", args[0])
	return true, nil
}

// handleSearchCommand handles the /search command.
func (s *chatSession) handleSearchCommand(args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("[Search] Web search mode: %s\n", s.webSearch)
		return true, nil
	}

	switch strings.ToLower(args[0]) {
	case "off":
		s.webSearch = model.WebSearchOff
	case "auto":
		s.webSearch = model.WebSearchAuto
	case "force":
		s.webSearch = model.WebSearchForce
	default:
		return true, fmt.Errorf("invalid search mode %q, must be off, auto, or force", args[0])
	}
	fmt.Printf("[OK] Web search mode: %s\n", s.webSearch)
	return true, nil
}

// regenerate re-sends the last user turn for a fresh reply.
func (s *chatSession) regenerate() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result, err := s.controller.Regenerate(ctx)
	if err != nil {
		return err
	}

	s.conversationID = result.ConversationID
	s.sends++

	fmt.Println()
	s.printReplyStats(result, time.Since(start))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func (s *chatSession) printWelcome() {
	fmt.Println()
	fmt.Println("nanochat interactive chat")
	fmt.Println(strings.Repeat("─", 30))
	fmt.Printf("Model:  %s\n", s.app.Catalog.Selected())
	fmt.Printf("Server: %s\n", s.app.Config.Server.BaseURL)
	if s.conversationID != "" {
		fmt.Printf("Conversation: %s\n", s.conversationID)
	}
	fmt.Println()
	fmt.Println("Type your message and press Enter. Commands: /help, /quit")
	fmt.Println()
}

// printHelp prints available commands.
func (s *chatSession) printHelp() {
	fmt.Println()
	fmt.Println("Available Commands")
	fmt.Println(strings.Repeat("─", 20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new", "Start a new conversation"},
		{"/model [id]", "Show or switch model"},
		{"/models", "List visible models"},
		{"/conversations", "List recent conversations"},
		{"/switch <id>", "Switch to another conversation"},
		{"/regen", "Regenerate the last reply"},
		{"/search <mode>", "Set web search mode (off, auto, force)"},
		{"/history", "Show messages in this conversation"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %-18s %s\n", c.cmd, c.desc)
	}

	fmt.Println()
	fmt.Println("Tip: Ctrl+C cancels the current generation, Ctrl+D exits")
	fmt.Println()
}

// printModels lists the visible models grouped by provider.
func (s *chatSession) printModels() {
	selected := s.app.Catalog.Selected()

	fmt.Println()
	for _, group := range s.app.Catalog.Groups() {
		fmt.Printf("%s\n", group.Provider)
		for _, m := range group.Models {
			marker := "  "
			if m.ModelID == selected {
				marker = "* "
			}
			fmt.Printf("  %s%s (%s)\n", marker, m.Name(), m.ModelID)
		}
	}
	fmt.Println()
}

// printConversations lists recent conversations from the controller's last
// snapshot, refreshing from the backend when the snapshot is empty.
func (s *chatSession) printConversations() error {
	convs := s.controller.Conversations()
	if len(convs) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		fetched, err := s.app.Gateway.ListConversations(ctx, gateway.ConversationListOptions{})
		if err != nil {
			return err
		}
		convs = fetched
	}

	if len(convs) == 0 {
		fmt.Println("[No conversations]")
		return nil
	}

	fmt.Println()
	for _, conv := range convs {
		marker := "  "
		if conv.ID == s.conversationID {
			marker = "* "
		}
		pin := ""
		if conv.Pinned {
			pin = " [pinned]"
		}
		fmt.Printf("%s%s  %s%s\n", marker, conv.ID, conv.DisplayTitle(), pin)
	}
	fmt.Println()
	return nil
}

// printHistory prints the messages of the active conversation.
func (s *chatSession) printHistory() {
	msgs := s.controller.Messages()
	if len(msgs) == 0 {
		fmt.Println("[No messages yet]")
		return
	}

	fmt.Println()
	for i, msg := range msgs {
		role := "You"
		if msg.Role == model.RoleAssistant {
			role = "AI"
		}
		fmt.Printf("  %d. %s: %s\n", i+1, role, msg.Preview(100))
	}
	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func (s *chatSession) printExitSummary() {
	if s.sends == 0 {
		fmt.Println("Goodbye!")
		return
	}

	elapsed := time.Since(s.startTime).Round(time.Second)

	fmt.Println()
	fmt.Println("Session Summary")
	fmt.Println(strings.Repeat("─", 15))
	fmt.Printf("  Messages: %d\n", s.sends)
	fmt.Printf("  Duration: %s\n", elapsed)
	if s.conversationID != "" {
		fmt.Printf("  Conversation: %s\n", s.conversationID)
	}
	fmt.Println()
	fmt.Println("Goodbye!")
}
