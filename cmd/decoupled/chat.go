package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

var chatReset bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the knowledge base",
	Long: `Starts an interactive conversation. The conversation is saved between
sessions; use --reset (or type /reset) to start over. Ctrl-C while a reply is
pending cancels that turn; exit or Ctrl-D leaves.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatReset, "reset", false, "discard the saved conversation before starting")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if !application.ChatService.Configured() {
		return interfaces.ErrCompletionUnavailable
	}

	session := &chatSession{
		chat:        application.ChatService,
		store:       application.ConversationStore,
		out:         cmd.OutOrStdout(),
		interactive: stdinIsTerminal(),
		logger:      logger,
	}
	return session.run(ctx, os.Stdin, chatReset)
}

// chatSession is one REPL over a persisted conversation
type chatSession struct {
	chat        interfaces.ChatService
	store       interfaces.ConversationStore
	out         io.Writer
	interactive bool
	logger      arbor.ILogger
}

func (s *chatSession) run(ctx context.Context, in io.Reader, reset bool) error {
	if reset {
		if err := s.store.Clear(ctx); err != nil {
			return err
		}
	}

	snapshot := s.store.Load(ctx)
	if s.interactive {
		fmt.Fprintln(s.out, titleStyle.Render("Ask about the knowledge base. Type exit to leave, /reset to start over."))
		if n := len(snapshot.Messages); n > 0 {
			fmt.Fprintln(s.out, mutedStyle.Render(fmt.Sprintf("Resuming conversation with %d message(s).", n)))
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		if s.interactive {
			fmt.Fprint(s.out, promptStyle.Render("you> "))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			if err := s.store.Clear(ctx); err != nil {
				return err
			}
			snapshot = models.NewConversationSnapshot()
			fmt.Fprintln(s.out, mutedStyle.Render("Conversation cleared."))
			continue
		}

		s.turn(ctx, snapshot, line)
	}
}

// turn sends one question. Ctrl-C during the request cancels it and nothing is recorded.
func (s *chatSession) turn(ctx context.Context, snapshot *models.ConversationSnapshot, question string) {
	history := append(snapshot.History(), models.ChatMessage{Role: models.RoleUser, Content: question})

	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	reply, err := s.chat.Chat(turnCtx, history)
	cancelled := turnCtx.Err() != nil && ctx.Err() == nil
	stop()

	if err != nil {
		if cancelled || errors.Is(err, context.Canceled) {
			fmt.Fprintln(s.out, mutedStyle.Render("Cancelled."))
			return
		}
		s.logger.Warn().Err(err).Msg("Chat turn failed")
		fmt.Fprintln(s.out, errorStyle.Render("Chat failed: "+userMessage(err)))
		return
	}

	now := time.Now()
	exchange := []models.ConversationMessage{
		{Role: models.RoleUser, Content: question, CreatedAt: now},
		{Role: models.RoleAssistant, Content: reply.Message, Sources: reply.Sources, CreatedAt: now},
	}
	snapshot.Messages = append(snapshot.Messages, exchange...)
	snapshot.AddSources(reply.Sources)
	if err := s.store.Append(ctx, exchange...); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save conversation")
	}

	fmt.Fprintln(s.out, formatReply(reply))
}

// formatReply renders the answer followed by its sources
func formatReply(reply *models.ChatReply) string {
	var b strings.Builder
	b.WriteString(reply.Message)
	b.WriteString("\n")

	if len(reply.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Sources:"))
		b.WriteString("\n")
		for _, source := range reply.Sources {
			line := "  - " + source.Title
			if source.Slug != "" {
				line += " " + mutedStyle.Render(source.Slug)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// userMessage explains a failed turn without internal detail
func userMessage(err error) string {
	switch {
	case interfaces.IsConfigurationMissing(err):
		return "a required service is not configured"
	case errors.Is(err, interfaces.ErrIndexNotFound):
		return "the search index has not been built yet, run the indexer first"
	case errors.Is(err, interfaces.ErrUpstreamUnavailable):
		return "an upstream service is unavailable, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	default:
		return "please try again"
	}
}
