package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/term-chat/internal/chat"
	"github.com/samsaffron/term-chat/internal/input"
	"github.com/samsaffron/term-chat/internal/llm"
	"github.com/samsaffron/term-chat/internal/signal"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var chatNoTools bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the model.

Files referenced as @path (or @path:10-20) are attached to the message.

Slash commands:
  /help          - Show help
  /clear         - Clear conversation
  /tools on|off  - Enable or disable local tools
  /models        - Show the fallback order
  /exit          - Exit chat

Ctrl+C cancels a reply in progress; pressed while idle it exits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoTools, "no-tools", false, "Start with local tools disabled")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chatNoTools {
		cfg.Tools.Enabled = false
	}
	applyDefaultSystemPrompt(cfg)

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	client, err := chat.New(cfg, logger)
	if err != nil {
		return err
	}

	stopSignals := signal.Handle(signal.Handlers{
		Interrupt: func() bool {
			if client.Busy() {
				client.Cancel()
				return true
			}
			return false
		},
		Terminate: func() {
			_ = client.Cleanup()
			flush()
			os.Exit(130)
		},
	})
	defer stopSignals()
	defer client.Cleanup()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	r := newREPL(client, cmd.InOrStdin(), cmd.OutOrStdout(), cwd, logger)
	return r.run(context.Background())
}

// repl is the line-oriented chat loop.
type repl struct {
	client  *chat.Client
	in      *bufio.Scanner
	out     io.Writer
	styles  *ui.Styles
	render  *ui.Renderer
	baseDir string
	logger  *zap.Logger

	history []llm.Message
}

func newREPL(client *chat.Client, in io.Reader, out io.Writer, baseDir string, logger *zap.Logger) *repl {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	styles := ui.NewStyles(out)
	return &repl{
		client:  client,
		in:      scanner,
		out:     out,
		styles:  styles,
		render:  ui.NewRenderer(out, styles, terminalWidth()),
		baseDir: baseDir,
		logger:  logger,
	}
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s %s · tools %s · /help for commands\n",
		r.styles.Title.Render("term-chat"),
		r.styles.Highlighted.Render(r.client.PrimaryModel()),
		r.styles.FormatEnabled(r.client.ToolsEnabled()))

	for {
		fmt.Fprint(r.out, r.styles.Prompt.Render("> "))
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.turn(ctx, line)
	}
}

// command handles a slash command and reports whether the REPL should exit.
func (r *repl) command(line string) bool {
	fields := strings.Fields(line)
	cmd, ok := lookupCommand(fields[0])
	if !ok {
		msg := "Unknown command: " + fields[0]
		if suggestions := suggestCommands(fields[0]); len(suggestions) > 0 {
			msg += " (did you mean /" + suggestions[0].Name + "?)"
		}
		fmt.Fprintln(r.out, r.styles.Error.Render(msg))
		return false
	}

	switch cmd.Name {
	case "exit":
		return true
	case "clear":
		r.history = nil
		fmt.Fprintln(r.out, r.styles.Muted.Render("Conversation cleared."))
	case "tools":
		if len(fields) == 2 && (fields[1] == "on" || fields[1] == "off") {
			r.client.SetToolsEnabled(fields[1] == "on")
		} else if len(fields) != 1 {
			fmt.Fprintln(r.out, r.styles.Error.Render("Usage: "+cmd.Usage))
			return false
		}
		fmt.Fprintf(r.out, "Tools %s\n", r.styles.FormatEnabled(r.client.ToolsEnabled()))
	case "models":
		printModels(r.out, r.styles, r.client.Models())
	case "help":
		for _, c := range AllCommands() {
			fmt.Fprintf(r.out, "  %-14s %s\n", c.Usage, r.styles.Muted.Render(c.Description))
		}
		fmt.Fprintln(r.out, r.styles.Muted.Render("Attach files with @path or @path:start-end."))
		fmt.Fprintln(r.out, r.styles.Muted.Render(fmt.Sprintf("Tools run for at most %d iterations per reply.", r.client.MaxIterations())))
	}
	return false
}

// turn sends one user message and renders the reply. Errors are rendered in
// place of the reply and the conversation stays usable.
func (r *repl) turn(ctx context.Context, line string) {
	prompt, files, err := input.ExpandReferences(line, r.baseDir)
	if err != nil {
		r.render.Error(err)
		return
	}
	for _, f := range files {
		r.logger.Debug("attached file", zap.String("path", f.Path), zap.Int("bytes", len(f.Content)))
	}

	session := r.client.Submit(ctx, append(r.history, llm.UserText(prompt)))
	defer session.Close()

	var reply strings.Builder
	for {
		ev, err := session.Recv()
		if errors.Is(err, io.EOF) {
			r.render.Finish()
			r.history = session.History()
			return
		}
		if err != nil {
			r.render.Error(err)
			r.history = session.History()
			if errors.Is(err, llm.ErrCancelled) {
				r.history = append(r.history, llm.AssistantText(strings.TrimSpace(reply.String()+" "+ui.CancelledMarker)))
			}
			return
		}
		if ev.Type == llm.EventTextDelta {
			reply.WriteString(ev.Text)
		}
		r.render.Event(ev)
	}
}

func printModels(out io.Writer, styles *ui.Styles, models []string) {
	for i, m := range models {
		name := m
		if i == 0 {
			name = styles.Highlighted.Render(m)
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, name)
	}
}

// terminalWidth returns the stdout width, or 0 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
