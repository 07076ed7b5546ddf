package sandbox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"

	"github.com/jkaninda/mlinzi/internal/command"
)

// ErrSandboxInternal marks an evaluation failure that carries no snippet
// frame, i.e. a fault in the sandbox rather than in the operator's code.
// It wraps command.ErrInternal so the dispatcher treats it as a bug.
var ErrSandboxInternal = fmt.Errorf("sandbox: %w", command.ErrInternal)

// SnippetSource is the file name the interpreter assigns to evaluated code.
const SnippetSource = interp.DefaultSourceName

// errorBanner prefixes the report of a failed snippet.
const errorBanner = "⚠️ Error executing snippet\n\n"

// Frame is one source position reported by the interpreter.
type Frame struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (f Frame) String() string {
	pos := f.File + ":" + strconv.Itoa(f.Line) + ":" + strconv.Itoa(f.Column)
	if f.Message == "" || strings.HasPrefix(f.Message, "panic") {
		return pos
	}
	return pos + ": " + f.Message
}

// RuntimeError is a snippet failure with the frames that belong to the
// snippet.
type RuntimeError struct {
	// Cause is the panic value or the first line of the error.
	Cause  string
	Frames []Frame
}

func (e *RuntimeError) Error() string {
	return e.Trace()
}

// Trace renders the cause followed by one frame per line.
func (e *RuntimeError) Trace() string {
	var b strings.Builder
	if e.Cause != "" {
		b.WriteString(e.Cause)
		b.WriteByte('\n')
	}
	for _, f := range e.Frames {
		b.WriteString("  ")
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// framePattern matches "file.go:line:col: message", the bare
// "file.go:line:col" form, and "line:col: message", which is how the
// interpreter reports positions in evaluated source.
var framePattern = regexp.MustCompile(`(?m)^[ \t]*(?:(\S+\.go):)?(\d+):(\d+)(?::[ \t]?(.*))?$`)

// parseFrames extracts every position-bearing line from text.
func parseFrames(text string) []Frame {
	var frames []Frame
	for _, m := range framePattern.FindAllStringSubmatch(text, -1) {
		file, message := m[1], strings.TrimSpace(m[4])
		if file == "" && message == "" {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		col, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		frames = append(frames, Frame{
			File:    file,
			Line:    line,
			Column:  col,
			Message: message,
		})
	}
	return frames
}

// isFrameLine reports whether line is an interpreter position report.
func isFrameLine(line string) bool {
	return len(parseFrames(line)) > 0
}

// inSnippet maps interpreter positions onto the snippet as the operator
// wrote it: a missing file name means the evaluated source, and columns on
// the first line include the offset of the interpreter's wrapper.
func inSnippet(frames []Frame, offset int) []Frame {
	for i := range frames {
		f := &frames[i]
		if f.File == "" {
			f.File = SnippetSource
		}
		if f.File == SnippetSource && f.Line == 1 && f.Column > offset {
			f.Column -= offset
		}
	}
	return frames
}

// snippetFrames keeps the frames whose source is the evaluated snippet,
// preserving order and dropping exact repeats.
func snippetFrames(frames []Frame) []Frame {
	var out []Frame
	seen := make(map[Frame]bool)
	for _, f := range frames {
		if f.File != SnippetSource || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// reduce turns a raw evaluation failure into a RuntimeError, or into
// ErrSandboxInternal when none of the collected frames is the snippet's.
func reduce(cause string, frames []Frame, raw error) error {
	kept := snippetFrames(frames)
	if len(kept) == 0 {
		return fmt.Errorf("%w: %v", ErrSandboxInternal, raw)
	}
	return &RuntimeError{Cause: cause, Frames: kept}
}
