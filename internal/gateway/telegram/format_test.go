package telegram

import (
	"strings"
	"testing"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "inline fence",
			in:   "**In:**\n```ls -la```\n\n**Out:**\n```a <b>\n```\nTime: 3 ms",
			want: "<b>In:</b>\n<pre>ls -la</pre>\n\n<b>Out:</b>\n<pre>a &lt;b&gt;\n</pre>\nTime: 3 ms",
		},
		{
			name: "fence content is not a language tag",
			in:   "```echo hi```",
			want: "<pre>echo hi</pre>",
		},
		{
			name: "italic with inline code",
			in:   "__The__ `git` __command is required for self-updating.__",
			want: "<i>The</i> <code>git</code> <i>command is required for self-updating.</i>",
		},
		{
			name: "link",
			in:   "❌ [neofetch](https://github.com/dylanaraps/neofetch) must be installed",
			want: `❌ <a href="https://github.com/dylanaraps/neofetch">neofetch</a> must be installed`,
		},
		{
			name: "header and escaping",
			in:   "# Status\n1 < 2 & 3",
			want: "<b>Status</b>\n1 &lt; 2 &amp; 3",
		},
		{
			name: "unclosed fence",
			in:   "out:\n```\npartial",
			want: "out:\n<pre>partial</pre>",
		},
		{
			name: "lone markers stay literal",
			in:   "2 * 3 and [x] and **",
			want: "2 * 3 and [x] and **",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markdownToTelegramHTML(tt.in); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestSplitMessage_Short(t *testing.T) {
	if got := splitMessage("hello", 100); len(got) != 1 || got[0] != "hello" {
		t.Errorf("splitMessage = %q", got)
	}
}

func TestSplitMessage_ReopensFence(t *testing.T) {
	body := strings.Repeat("line of output\n", 40)
	text := "**Out:**\n```" + body + "```\nTime: 1 sec"

	chunks := splitMessage(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d is %d bytes", i, len(c))
		}
		if strings.Count(c, fence)%2 != 0 {
			t.Errorf("chunk %d has an unbalanced fence: %q", i, c)
		}
	}
	joined := strings.Join(chunks, "")
	if strings.Count(joined, "line of output") != 40 {
		t.Error("content lost while splitting")
	}
}

func TestSplitMessage_MultibyteHardCut(t *testing.T) {
	text := strings.Repeat("é", 300)
	for _, c := range splitMessage(text, 101) {
		if !utf8Valid(c) {
			t.Fatalf("chunk split inside a rune: %q", c)
		}
	}
}

func utf8Valid(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
