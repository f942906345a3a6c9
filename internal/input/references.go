// Package input expands `@path` file references in user prompts before they
// are sent to the model.
package input

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FileContent represents content read from a referenced file.
type FileContent struct {
	Path    string // Path as written in the prompt, with its line range if any
	Content string
}

// refPattern matches `@path` or `@path:start-end` at the start of the text or
// after whitespace.
var refPattern = regexp.MustCompile(`(^|\s)@([^\s@]+)`)

var rangePattern = regexp.MustCompile(`^(.+?):(\d*)-(\d*)$`)

// ExpandReferences rewrites every `@path` in text that names a readable
// regular file: the `@` is dropped from the prompt and the file content is
// appended in a delimited block. Tokens that do not name a file (mentions,
// email-like text) are left untouched. Relative paths resolve against baseDir.
func ExpandReferences(text, baseDir string) (string, []FileContent, error) {
	var files []FileContent
	seen := make(map[string]bool)
	var firstErr error

	expanded := refPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := refPattern.FindStringSubmatch(match)
		lead, token := sub[1], sub[2]

		ref, trailing, ok := resolveReference(token, baseDir)
		if !ok {
			return match
		}
		if !seen[ref.display] {
			content, err := ref.read()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return match
			}
			seen[ref.display] = true
			files = append(files, FileContent{Path: ref.display, Content: content})
		}
		return lead + ref.display + trailing
	})
	if firstErr != nil {
		return text, nil, firstErr
	}
	if len(files) == 0 {
		return text, nil, nil
	}
	return expanded + "\n\n" + FormatFilesXML(files, ""), files, nil
}

type reference struct {
	display string
	path    string
	start   int // 1-indexed, 0 means from the beginning
	end     int // 1-indexed, 0 means to the end
}

// resolveReference finds the file a token names. Trailing sentence
// punctuation is peeled off until a file matches.
func resolveReference(token, baseDir string) (reference, string, bool) {
	trailing := ""
	for token != "" {
		if ref, ok := parseReference(token, baseDir); ok {
			return ref, trailing, true
		}
		last := token[len(token)-1]
		if !strings.ContainsRune(".,;:!?)]}'\"", rune(last)) {
			break
		}
		trailing = string(last) + trailing
		token = token[:len(token)-1]
	}
	return reference{}, "", false
}

func parseReference(token, baseDir string) (reference, bool) {
	ref := reference{display: token, path: token}
	if m := rangePattern.FindStringSubmatch(token); m != nil {
		ref.path = m[1]
		ref.start, _ = strconv.Atoi(m[2])
		ref.end, _ = strconv.Atoi(m[3])
	}
	ref.path = expandPath(ref.path)
	if !filepath.IsAbs(ref.path) {
		ref.path = filepath.Join(baseDir, ref.path)
	}
	info, err := os.Stat(ref.path)
	if err != nil || !info.Mode().IsRegular() {
		return reference{}, false
	}
	return ref, true
}

func (r reference) read() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return "", fmt.Errorf("cannot read %s: permission denied", r.display)
		}
		return "", fmt.Errorf("failed to read %q: %w", r.display, err)
	}
	content := string(data)
	if r.start > 0 || r.end > 0 {
		content = ExtractLines(content, r.start, r.end)
	}
	return content, nil
}

// ExtractLines extracts lines from content based on start and end line numbers.
// Line numbers are 1-indexed. 0 for start means from beginning, 0 for end means to end.
func ExtractLines(content string, startLine, endLine int) string {
	lines := strings.Split(content, "\n")

	start := 0
	if startLine > 0 {
		start = startLine - 1
	}
	end := len(lines)
	if endLine > 0 && endLine < end {
		end = endLine
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// FormatFilesXML formats file contents with prompt-safe delimiters.
func FormatFilesXML(files []FileContent, stdin string) string {
	if len(files) == 0 && stdin == "" {
		return ""
	}

	var sb strings.Builder

	for _, f := range files {
		sb.WriteString("<<<<< FILE: ")
		sb.WriteString(f.Path)
		sb.WriteString(" >>>>>\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("<<<<< END FILE >>>>>\n")
	}

	if stdin != "" {
		sb.WriteString("<<<<< STDIN >>>>>\n")
		sb.WriteString(stdin)
		if !strings.HasSuffix(stdin, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("<<<<< END STDIN >>>>>\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
