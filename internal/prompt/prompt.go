package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samsaffron/term-chat/internal/input"
)

// Environment describes the machine the local tools act on.
type Environment struct {
	OS    string
	Arch  string
	Shell string
	Cwd   string
}

// CurrentEnvironment returns the Environment of this process.
func CurrentEnvironment() Environment {
	cwd, _ := os.Getwd()
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "sh"
	}
	return Environment{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		Shell: filepath.Base(shell),
		Cwd:   cwd,
	}
}

// SystemPrompt returns the default system prompt for a chat session.
func SystemPrompt(env Environment, customContext string) string {
	base := fmt.Sprintf(`You are a helpful assistant running in the user's terminal.

Context:
- Operating System: %s
- Architecture: %s
- Shell: %s
- Current Directory: %s`, env.OS, env.Arch, env.Shell, env.Cwd)

	if customContext != "" {
		base += fmt.Sprintf(`
- User Context: %s`, customContext)
	}

	base += `

Rules:
1. Answer concisely and use Markdown only where it helps.
2. When tools are offered, use listFiles, readFile, writeFile and executeShell to inspect or change the workspace instead of guessing.
3. Relative paths are resolved against the current directory.
4. Never run destructive commands (rm -rf, force pushes, disk formatting) unless the user asked for exactly that.`

	return base
}

// AskUserPrompt appends piped stdin to a question.
func AskUserPrompt(question, stdin string) string {
	question = strings.TrimSpace(question)
	piped := input.FormatFilesXML(nil, stdin)
	switch {
	case piped == "":
		return question
	case question == "":
		return piped
	default:
		return question + "\n\n" + piped
	}
}
