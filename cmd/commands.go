package cmd

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Command is a REPL slash command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
}

// AllCommands returns the slash commands in help order.
func AllCommands() []Command {
	return []Command{
		{Name: "help", Aliases: []string{"h", "?"}, Usage: "/help", Description: "Show help"},
		{Name: "clear", Aliases: []string{"c"}, Usage: "/clear", Description: "Clear conversation"},
		{Name: "tools", Aliases: []string{"t"}, Usage: "/tools on|off", Description: "Enable or disable local tools"},
		{Name: "models", Aliases: []string{"m"}, Usage: "/models", Description: "Show the fallback order"},
		{Name: "exit", Aliases: []string{"quit", "q"}, Usage: "/exit", Description: "Exit chat"},
	}
}

// CommandSource implements fuzzy.Source over command names.
type CommandSource []Command

func (s CommandSource) String(i int) string {
	return s[i].Name
}

func (s CommandSource) Len() int {
	return len(s)
}

// lookupCommand resolves an exact name or alias, with or without the slash.
func lookupCommand(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	for _, cmd := range AllCommands() {
		if cmd.Name == name {
			return cmd, true
		}
		for _, alias := range cmd.Aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return Command{}, false
}

// suggestCommands returns the commands a mistyped name most likely meant,
// best match first.
func suggestCommands(name string) []Command {
	query := strings.ToLower(strings.TrimPrefix(name, "/"))
	if query == "" {
		return nil
	}
	commands := AllCommands()
	var result []Command
	for _, match := range fuzzy.FindFrom(query, CommandSource(commands)) {
		result = append(result, commands[match.Index])
	}

	// If no fuzzy matches, also check if query is prefix of any command
	if len(result) == 0 {
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.Name, query) {
				result = append(result, cmd)
			}
		}
	}
	return result
}
