package telegram

import (
	"strings"
)

const fence = "```"

// escapeHTML escapes characters that are special in Telegram's HTML parse mode.
func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// markdownToTelegramHTML converts the Markdown subset used by command
// replies to Telegram HTML. Fences may open and close mid-line, as in
// "**In:**\n```ls```"; their content is preformatted verbatim. Outside
// fences it handles inline code, bold, italics, links and headers. All
// other text is HTML-escaped.
func markdownToTelegramHTML(text string) string {
	var out strings.Builder
	out.Grow(len(text) + 32)

	for {
		start := strings.Index(text, fence)
		if start < 0 {
			out.WriteString(formatText(text))
			break
		}
		out.WriteString(formatText(text[:start]))

		rest := text[start+len(fence):]
		end := strings.Index(rest, fence)
		if end < 0 {
			// Unclosed fence: the remainder is code.
			end = len(rest)
		}
		out.WriteString("<pre>")
		out.WriteString(escapeHTML(strings.TrimPrefix(rest[:end], "\n")))
		out.WriteString("</pre>")

		if end == len(rest) {
			break
		}
		text = rest[end+len(fence):]
	}
	return out.String()
}

// formatText formats text that contains no code fence.
func formatText(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = formatLine(line)
	}
	return strings.Join(lines, "\n")
}

// formatLine converts a single line of Markdown to HTML.
func formatLine(line string) string {
	// Headers → bold.
	if len(line) > 0 && line[0] == '#' {
		if spaceIdx := strings.IndexByte(line, ' '); spaceIdx > 0 && spaceIdx <= 6 {
			if strings.Count(line[:spaceIdx], "#") == spaceIdx {
				return "<b>" + formatInline(strings.TrimSpace(line[spaceIdx+1:])) + "</b>"
			}
		}
	}
	return formatInline(line)
}

// formatInline converts inline Markdown to HTML, left to right. Backtick
// spans take priority over emphasis.
func formatInline(line string) string {
	var out strings.Builder
	out.Grow(len(line) + 16)
	i := 0

	for i < len(line) {
		rest := line[i:]

		switch {
		case rest[0] == '`':
			if end := strings.IndexByte(rest[1:], '`'); end >= 0 {
				out.WriteString("<code>" + escapeHTML(rest[1:1+end]) + "</code>")
				i += end + 2
				continue
			}

		case strings.HasPrefix(rest, "**"):
			if end := strings.Index(rest[2:], "**"); end > 0 {
				out.WriteString("<b>" + formatInline(rest[2:2+end]) + "</b>")
				i += end + 4
				continue
			}

		case strings.HasPrefix(rest, "__"):
			if end := strings.Index(rest[2:], "__"); end > 0 {
				out.WriteString("<i>" + formatInline(rest[2:2+end]) + "</i>")
				i += end + 4
				continue
			}

		case rest[0] == '*' && len(rest) > 1 && rest[1] != ' ':
			if end := strings.IndexByte(rest[1:], '*'); end > 0 && rest[end] != ' ' {
				out.WriteString("<i>" + escapeHTML(rest[1:1+end]) + "</i>")
				i += end + 2
				continue
			}

		case rest[0] == '[':
			if label, url, n, ok := parseLink(rest); ok {
				out.WriteString(`<a href="` + escapeHTML(url) + `">` + escapeHTML(label) + "</a>")
				i += n
				continue
			}
		}

		out.WriteString(escapeHTML(rest[:1]))
		i++
	}
	return out.String()
}

// parseLink parses "[label](url)" at the start of s and returns the number
// of bytes consumed.
func parseLink(s string) (label, url string, n int, ok bool) {
	closeLabel := strings.Index(s, "](")
	if closeLabel < 1 || strings.ContainsAny(s[1:closeLabel], "[]\n") {
		return "", "", 0, false
	}
	closeURL := strings.IndexByte(s[closeLabel+2:], ')')
	if closeURL < 1 {
		return "", "", 0, false
	}
	url = s[closeLabel+2 : closeLabel+2+closeURL]
	if strings.ContainsAny(url, " \n") {
		return "", "", 0, false
	}
	return s[1:closeLabel], url, closeLabel + 2 + closeURL + 1, true
}

// splitMessage splits text into chunks of at most maxLen bytes, preferring
// paragraph, then line, then word boundaries. A chunk that ends inside a
// code fence is closed and the fence is reopened in the next chunk.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	// Room for the closing fence appended to a chunk that ends in code.
	limit := maxLen - len(fence)

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}

		candidate := remaining[:limit]
		splitAt := -1
		if idx := strings.LastIndex(candidate, "\n\n"); idx > 0 {
			splitAt = idx + 1
		} else if idx := strings.LastIndex(candidate, "\n"); idx > 0 {
			splitAt = idx + 1
		} else if idx := strings.LastIndex(candidate, " "); idx > 0 {
			splitAt = idx + 1
		} else {
			splitAt = runeBoundary(remaining, limit)
		}

		chunk := remaining[:splitAt]
		remaining = remaining[splitAt:]

		if strings.Count(chunk, fence)%2 == 1 {
			chunk += fence
			remaining = fence + remaining
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// runeBoundary backs off from n to the start of a UTF-8 sequence.
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	if n == 0 {
		return 1
	}
	return n
}
