// File: cmd/chat.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/agent"
	"github.com/xkilldash9x/vibepilot/internal/api"
	"github.com/xkilldash9x/vibepilot/internal/observability"
)

const chatHelp = `Type a message to give the agent a goal or an extra instruction.
Commands:
  /start                      resume the agent
  /pause                      pause after the current step
  /stop                       stop the agent
  /confirm                    run the action waiting for confirmation
  /cancel                     discard the action waiting for confirmation
  /new [platform]             start a new chat
  /project <platform> <goal>  plan a project and start it paused
  /list                       list sessions
  /select <id>                switch to another session
  /delete <id>                delete a session
  /summary                    summarize recent activity
  /status                     show the active session
  /help                       show this help
  /quit                       leave the chat`

func newChatCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			p := cfg.Agent().DefaultPlatform
			if platform != "" {
				p = platform
			}
			defaultPlatform, err := schemas.ParsePlatform(p)
			if err != nil {
				return err
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close(context.Background())

			repl := newChatREPL(comps.Controller, cmd.OutOrStdout(), defaultPlatform, logger)
			return repl.Run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "platform for new chats (Firebase, Replit or Vercel)")
	return cmd
}

// chatREPL is the terminal front end of the controller.
type chatREPL struct {
	agent    api.Agent
	platform schemas.Platform
	logger   *zap.Logger

	mu  sync.Mutex
	out io.Writer
}

func newChatREPL(a api.Agent, out io.Writer, platform schemas.Platform, logger *zap.Logger) *chatREPL {
	return &chatREPL{agent: a, out: out, platform: platform, logger: logger.Named("chat")}
}

// Run reads lines from in until /quit, EOF or ctx is done. Controller
// events for the active session are printed as they arrive.
func (r *chatREPL) Run(ctx context.Context, in io.Reader) error {
	events, unsubscribe := r.agent.Events().Subscribe(
		agent.EventLogAppended,
		agent.EventConfirmationRequested,
		agent.EventStatusChanged,
	)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			r.printEvent(ev)
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	r.printf("VibePilot %s. Type /help for commands.\n", Version)
	r.printStatus()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			quit, err := r.handle(ctx, line)
			if err != nil {
				r.printf("Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (r *chatREPL) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		id, err := r.activeID()
		if err != nil {
			return false, err
		}
		return false, r.agent.SendMessage(ctx, id, line)
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.printf("%s\n", chatHelp)
		return false, nil
	case "/start", "/pause", "/stop", "/cancel":
		id, err := r.activeID()
		if err != nil {
			return false, err
		}
		return false, r.control(command, id)
	case "/confirm":
		id, err := r.activeID()
		if err != nil {
			return false, err
		}
		return false, r.agent.Confirm(ctx, id)
	case "/new":
		platform := r.platform
		if rest != "" {
			p, err := schemas.ParsePlatform(rest)
			if err != nil {
				return false, err
			}
			platform = p
		}
		sess, err := r.agent.NewChat(platform)
		if err != nil {
			return false, err
		}
		r.printf("Started chat %s on %s.\n", sess.ID, sess.Platform)
		return false, nil
	case "/project":
		name, goal, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(goal) == "" {
			return false, errors.New("usage: /project <platform> <goal>")
		}
		platform, err := schemas.ParsePlatform(name)
		if err != nil {
			return false, err
		}
		sess, err := r.agent.CreateProject("", goal, platform)
		if err != nil {
			return false, err
		}
		r.printf("Planning project %q (%s).\n", sess.Name, sess.ID)
		return false, nil
	case "/list":
		r.printSessions()
		return false, nil
	case "/select":
		if rest == "" {
			return false, errors.New("usage: /select <id>")
		}
		if err := r.agent.Select(rest); err != nil {
			return false, err
		}
		r.printStatus()
		return false, nil
	case "/delete":
		if rest == "" {
			return false, errors.New("usage: /delete <id>")
		}
		active, err := r.agent.Delete(rest)
		if err != nil {
			return false, err
		}
		r.printf("Deleted %s. Active session is now %s.\n", rest, active)
		return false, nil
	case "/summary":
		id, err := r.activeID()
		if err != nil {
			return false, err
		}
		summary, err := r.agent.Summarize(ctx, id)
		if err != nil {
			return false, err
		}
		r.printf("Summary: %s\n", summary)
		return false, nil
	case "/status":
		r.printStatus()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s, type /help", command)
	}
}

func (r *chatREPL) control(command, id string) error {
	switch command {
	case "/start":
		return r.agent.Start(id)
	case "/pause":
		return r.agent.Pause(id)
	case "/stop":
		return r.agent.Stop(id)
	default:
		return r.agent.Cancel(id)
	}
}

func (r *chatREPL) activeID() (string, error) {
	id := r.agent.ActiveID()
	if id == "" {
		return "", errors.New("no active session, use /new")
	}
	return id, nil
}

func (r *chatREPL) printEvent(ev agent.Event) {
	if ev.SessionID != r.agent.ActiveID() {
		return
	}
	switch p := ev.Payload.(type) {
	case schemas.LogEntry:
		if p.Type == schemas.LogUser || p.Type == schemas.LogConfirmation {
			return
		}
		r.printf("%s", agent.FormatLogs([]schemas.LogEntry{p}))
		if p.Details != nil && p.Details.Reasoning != "" {
			r.printf("    reasoning: %s\n", p.Details.Reasoning)
		}
	case agent.ConfirmationView:
		r.printf("[%s] CONFIRM: %s\n", p.CreatedAt.Format(time.TimeOnly), p.Message)
		if p.Reasoning != "" {
			r.printf("    reasoning: %s\n", p.Reasoning)
		}
		r.printf("    Type /confirm to run it or /cancel to skip it.\n")
	case agent.StatusPayload:
		r.printf("Status: %s\n", stepLabel(p.Status, p.CurrentStep, p.TotalSteps))
	default:
		r.logger.Debug("Ignoring event.", zap.String("event_type", string(ev.Type)))
	}
}

func (r *chatREPL) printStatus() {
	id := r.agent.ActiveID()
	if id == "" {
		r.printf("No active session. Use /new to start one.\n")
		return
	}
	sess, err := r.agent.Session(id)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	name := sess.Name
	if name == "" {
		name = "(unnamed)"
	}
	r.printf("Session %s %q on %s: %s\n", sess.ID, name, sess.Platform, stepLabel(sess.Status, sess.CurrentStep, sess.TotalSteps))
	if view, ok := r.agent.Pending(id); ok {
		r.printf("Waiting for confirmation: %s\n", view.Message)
	}
}

func (r *chatREPL) printSessions() {
	active := r.agent.ActiveID()
	now := time.Now()
	for _, sess := range r.agent.Sessions() {
		marker := " "
		if sess.ID == active {
			marker = "*"
		}
		r.printf("%s %s  %-10s %-9s %-10s %s  %s\n", marker, sess.ID, sess.Status, sess.Platform,
			relativeTime(now, sess.LastUpdated), sess.Name, goalPreview(sess.Goal))
	}
}

func (r *chatREPL) printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, a...)
}
