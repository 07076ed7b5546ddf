package command

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/shlex"
)

// parseCommandName extracts the command from text such as "/name@bot args".
func parseCommandName(text string) (string, bool) {
	name, _ := splitCommand(text)
	if name == "" {
		return "", false
	}
	return name, true
}

// splitCommand splits "/name@bot rest" into "name" and "rest". rest keeps
// its inner whitespace and newlines; only the single separator after the
// command token is removed.
func splitCommand(text string) (string, string) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	token, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		token = text[:i]
		_, size := utf8.DecodeRuneInString(text[i:])
		rest = text[i+size:]
	}

	name := strings.TrimPrefix(token, "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return name, rest
}

// tokenize splits input the way a POSIX shell would, honouring quotes and
// escapes. Malformed quoting falls back to whitespace splitting.
func tokenize(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	tokens, err := shlex.Split(input)
	if err != nil {
		return strings.Fields(input)
	}
	return tokens
}
