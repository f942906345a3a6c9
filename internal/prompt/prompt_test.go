package prompt

import (
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	env := Environment{OS: "linux", Arch: "amd64", Shell: "zsh", Cwd: "/work"}

	result := SystemPrompt(env, "")
	for _, want := range []string{"Operating System: linux", "Shell: zsh", "Current Directory: /work", "executeShell"} {
		if !strings.Contains(result, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(result, "User Context") {
		t.Error("empty custom context should be omitted")
	}

	result = SystemPrompt(env, "prefers Go")
	if !strings.Contains(result, "- User Context: prefers Go") {
		t.Error("missing custom context")
	}
}

func TestCurrentEnvironment(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/fish")
	env := CurrentEnvironment()
	if env.Shell != "fish" {
		t.Errorf("shell = %q, want fish", env.Shell)
	}
	if env.OS == "" || env.Cwd == "" {
		t.Errorf("incomplete environment: %+v", env)
	}
}

func TestAskUserPrompt(t *testing.T) {
	tests := []struct {
		name     string
		question string
		stdin    string
		want     string
	}{
		{"question only", " What is Go? ", "", "What is Go?"},
		{"stdin only", "", "log line", "<<<<< STDIN >>>>>\nlog line\n<<<<< END STDIN >>>>>"},
		{"both", "What broke?", "panic: boom\n", "What broke?\n\n<<<<< STDIN >>>>>\npanic: boom\n<<<<< END STDIN >>>>>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AskUserPrompt(tt.question, tt.stdin); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
