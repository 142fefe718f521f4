package report

import (
	"regexp"
	"strings"
	"time"
)

// Section is one titled block of a deck.
type Section struct {
	Title string
	Text  string
}

var numberedLine = regexp.MustCompile(`^\d+\.\s`)

// Clean removes a wrapping code fence, bold markers and any model preamble
// before the first numbered item. Text without "1." is kept whole.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```markdown")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	text = strings.ReplaceAll(text, "**", "")
	if i := strings.Index(text, "1."); i >= 0 {
		text = text[i:]
	}
	return strings.TrimSpace(text)
}

// Render formats a deck as Markdown. Numbered top-level items become
// third-level headings; every other line is kept as written.
func Render(clientID string, generatedAt time.Time, secs []Section) []byte {
	var b strings.Builder
	b.WriteString("# Investment Committee Deck: ")
	b.WriteString(clientID)
	b.WriteString("\n\n_Generated ")
	b.WriteString(generatedAt.UTC().Format(time.RFC3339))
	b.WriteString("_\n")

	for _, sec := range secs {
		b.WriteString("\n## ")
		b.WriteString(sec.Title)
		b.WriteString("\n\n")
		for _, line := range strings.Split(Clean(sec.Text), "\n") {
			line = strings.TrimRight(line, " \t\r")
			if numberedLine.MatchString(line) {
				b.WriteString("### ")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return []byte(b.String())
}
