package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/term-chat/internal/chat"
	"github.com/samsaffron/term-chat/internal/input"
	"github.com/samsaffron/term-chat/internal/llm"
	"github.com/samsaffron/term-chat/internal/prompt"
	"github.com/samsaffron/term-chat/internal/signal"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	askNoTools       bool
	askSystemMessage string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the answer",
	Long: `Ask the model a question and stream the answer to stdout.

Files referenced as @path (or @path:10-20 for a line range) are attached to
the prompt. Piped stdin is attached as well.

Examples:
  term-chat ask "What is the capital of France?"
  term-chat ask "Explain @main.go"
  term-chat ask "Summarize @docs/notes.md:1-40"
  term-chat ask --no-tools "How do I reverse a string in Go?"
  cat error.log | term-chat ask "What went wrong?"`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoTools, "no-tools", false, "Do not let the model call local tools")
	askCmd.Flags().StringVar(&askSystemMessage, "system-message", "", "System message for this question")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	stdin, err := input.ReadStdin()
	if err != nil {
		return err
	}
	userPrompt, err := buildAskPrompt(strings.Join(args, " "), stdin)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if askNoTools {
		cfg.Tools.Enabled = false
	}
	if askSystemMessage != "" {
		cfg.SystemPrompt = askSystemMessage
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
	defer client.Cleanup()

	return streamAnswer(ctx, client, userPrompt, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildAskPrompt joins the question with referenced files and piped input.
func buildAskPrompt(question, stdin string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" && strings.TrimSpace(stdin) == "" {
		return "", errors.New("a question is required (as arguments or on stdin)")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	expanded, _, err := input.ExpandReferences(question, cwd)
	if err != nil {
		return "", err
	}
	return prompt.AskUserPrompt(expanded, stdin), nil
}

// streamAnswer writes the answer text to out and tool activity to status.
func streamAnswer(ctx context.Context, client *chat.Client, userPrompt string, out, status io.Writer) error {
	session := client.Submit(ctx, []llm.Message{llm.UserText(userPrompt)})
	defer session.Close()

	progress := ui.NewRenderer(status, ui.NewStyles(status), terminalWidth())
	endsWithNewline := true
	for {
		ev, err := session.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !endsWithNewline {
				fmt.Fprintln(out)
			}
			return err
		}
		if ev.Type != llm.EventTextDelta {
			progress.Event(ev)
			continue
		}
		fmt.Fprint(out, ev.Text)
		endsWithNewline = strings.HasSuffix(ev.Text, "\n")
	}
	if !endsWithNewline {
		fmt.Fprintln(out)
	}
	return nil
}
