package sandbox

import (
	"strings"
	"time"

	"github.com/jkaninda/mlinzi/internal/timeutil"
)

const noOutput = "[no output]"

// Result is the transient outcome of one shell or evaluate run.
type Result struct {
	// Prefix precedes the report, e.g. the snippet error banner.
	Prefix string
	// Input is the command line or code as shown under "In".
	Input string
	// Body is the rendered "Out" section including its trailing spacing.
	Body string
	// Elapsed is measured with the monotonic clock.
	Elapsed time.Duration
}

// Report renders r for the chat.
func (r *Result) Report() string {
	var b strings.Builder
	b.WriteString(r.Prefix)
	b.WriteString("**In:**\n```")
	b.WriteString(r.Input)
	b.WriteString("```\n\n**Out:**\n")
	b.WriteString(r.Body)
	b.WriteString("Time: ")
	b.WriteString(timeutil.FormatDuration(r.Elapsed))
	return b.String()
}

// codeBlock fences out, substituting a placeholder when it is empty.
func codeBlock(out string) string {
	if out == "" {
		out = noOutput
	}
	return "```" + out + "```"
}
