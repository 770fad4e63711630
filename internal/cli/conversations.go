// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Conversation management commands.
//
// Command tree:
//   conversations list [--search Q] [--project ID]
//   conversations show <id>
//   conversations new [title]
//   conversations rename <id> <title>
//   conversations pin <id>
//   conversations branch <id> <message-id>
//   conversations delete <id> [--yes]
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/model"
	"github.com/nanochat/nanochat-go/internal/util"
)

var (
	convFlagSearch  string
	convFlagProject string
	convFlagYes     bool
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations on the backend",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a new conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConversationsNew,
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE:  runConversationsRename,
}

var conversationsPinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Toggle a conversation's pinned state",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsPin,
}

var conversationsBranchCmd = &cobra.Command{
	Use:   "branch <id> <message-id>",
	Short: "Branch a conversation from a message",
	Args:  cobra.ExactArgs(2),
	RunE:  runConversationsBranch,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsListCmd.Flags().StringVar(&convFlagSearch, "search", "", "filter by title")
	conversationsListCmd.Flags().StringVar(&convFlagProject, "project", "", "filter by project id")
	conversationsDeleteCmd.Flags().BoolVarP(&convFlagYes, "yes", "y", false, "skip confirmation")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsPinCmd)
	conversationsCmd.AddCommand(conversationsBranchCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

// commandContext returns a context with the standard request timeout.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	convs, err := app.Gateway.ListConversations(ctx, gateway.ConversationListOptions{
		ProjectID: convFlagProject,
		Search:    convFlagSearch,
	})
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	sort.Slice(convs, func(i, j int) bool {
		return model.SortKey(&convs[i], &convs[j])
	})

	fmt.Printf("%-38s %-40s %s\n", "ID", "TITLE", "UPDATED")
	fmt.Println(strings.Repeat("─", 90))
	for i := range convs {
		conv := &convs[i]
		title := util.TruncateRunes(conv.DisplayTitle(), 38)
		if conv.Pinned {
			title = "* " + title
		}
		fmt.Printf("%-38s %-40s %s\n", conv.ID, title, formatTimestamp(conv.UpdatedAt))
	}
	fmt.Printf("\n%d conversation(s)\n", len(convs))
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	msgs, err := app.Gateway.ListMessages(ctx, args[0])
	if err != nil {
		return err
	}

	if len(msgs) == 0 {
		fmt.Println("No messages in this conversation.")
		return nil
	}

	for i := range msgs {
		msg := &msgs[i]
		role := "You"
		if msg.Role == model.RoleAssistant {
			role = "AI"
			if msg.Model != "" {
				role = msg.Model
			}
		}
		fmt.Printf("[%s]\n%s\n\n", role, msg.Content)
	}
	return nil
}

func runConversationsNew(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	title := ""
	if len(args) > 0 {
		title = args[0]
	}

	conv, err := app.Gateway.CreateConversation(ctx, title, "")
	if err != nil {
		return err
	}

	fmt.Printf("Created conversation %s (%s)\n", conv.ID, conv.DisplayTitle())
	return nil
}

func runConversationsRename(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := app.Gateway.UpdateConversationTitle(ctx, args[0], args[1]); err != nil {
		return err
	}

	fmt.Printf("Renamed conversation %s\n", args[0])
	return nil
}

func runConversationsPin(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := app.Gateway.ToggleConversationPin(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("Toggled pin on conversation %s\n", args[0])
	return nil
}

func runConversationsBranch(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	conv, err := app.Gateway.BranchConversation(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Branched into conversation %s (%s)\n", conv.ID, conv.DisplayTitle())
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if !convFlagYes {
		fmt.Printf("Delete conversation %s? [y/N]: ", args[0])
		var answer string
		fmt.Fscanln(os.Stdin, &answer)
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := app.Gateway.DeleteConversation(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("Deleted conversation %s\n", args[0])
	return nil
}

// formatTimestamp renders a server timestamp for table output.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
