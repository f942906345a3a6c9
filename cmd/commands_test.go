package cmd

import (
	"testing"
)

func TestLookupCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"/exit", "exit", true},
		{"/quit", "exit", true},
		{"/Q", "exit", true},
		{"/c", "clear", true},
		{"tools", "tools", true},
		{"/?", "help", true},
		{"/nope", "", false},
	}
	for _, tt := range tests {
		cmd, ok := lookupCommand(tt.input)
		if ok != tt.ok || cmd.Name != tt.want {
			t.Errorf("lookupCommand(%q) = %q, %v; want %q, %v", tt.input, cmd.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestSuggestCommands(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/clr", "clear"},
		{"/modls", "models"},
		{"/tol", "tools"},
	}
	for _, tt := range tests {
		got := suggestCommands(tt.input)
		if len(got) == 0 || got[0].Name != tt.want {
			t.Errorf("suggestCommands(%q) = %v, want %q first", tt.input, got, tt.want)
		}
	}
	if got := suggestCommands("/zzz"); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}
