package ui

import (
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	log "github.com/sirupsen/logrus"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

const codeBar = "┃"

// renderMarkdown renders assistant text for a terminal of the given width.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = preprocessLinks(content)

	// URLs stay plain text so fixMarkdownLinks can color them
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(width-4, 0)
	doc := p.Parse([]byte(content))
	rendered := gomarkdown.Render(doc, r)

	return postProcessMarkdown(string(rendered), width)
}

// renderMarkdownCmd renders off the update loop; long replies take a while.
func renderMarkdownCmd(id, content string, width int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		rendered := renderMarkdown(content, width)
		log.WithFields(log.Fields{
			"descriptor": id,
			"chars":      len(content),
			"elapsed":    time.Since(start),
		}).Debug("markdown rendered")
		return markdownRenderedMsg{ID: id, Width: width, Rendered: rendered}
	}
}

func postProcessMarkdown(rendered string, width int) string {
	rendered = fixInlineCode(rendered)
	rendered = fixMarkdownLinks(rendered)
	rendered = frameCodeBlocks(rendered, width)
	return strings.TrimRight(rendered, "\n")
}

// preprocessLinks strips [text](url) down to the url.
func preprocessLinks(content string) string {
	return mdLinkRegex.ReplaceAllString(content, "$2")
}

// fixInlineCode swaps the renderer's blue-background inline code for red text.
func fixInlineCode(s string) string {
	return inlineCodeRegex.ReplaceAllString(s, "\x1b[31m$1\x1b[0m")
}

func fixMarkdownLinks(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeBar) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the renderer's ┃ gutter with horizontal rules
// above and below each code block.
func frameCodeBlocks(s string, width int) string {
	darkGray := "\x1b[90m"
	reset := "\x1b[0m"
	lineLen := width - 4
	if lineLen < 10 {
		lineLen = 10
	}

	var result []string
	inCodeBlock := false
	closeBlock := func() {
		result = append(result, "", darkGray+strings.Repeat("━", lineLen)+reset, "")
		inCodeBlock = false
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, codeBar) {
			if !inCodeBlock {
				inCodeBlock = true
				label := "[code]"
				leftLen := (lineLen - len(label)) / 2
				rightLen := lineLen - len(label) - leftLen
				result = append(result, "",
					darkGray+strings.Repeat("━", leftLen)+reset+label+darkGray+strings.Repeat("━", rightLen)+reset,
					"")
			}
			result = append(result, stripCodeBlockPrefix(line))
			continue
		}
		if inCodeBlock {
			closeBlock()
		}
		result = append(result, line)
	}
	if inCodeBlock {
		closeBlock()
	}

	return strings.Join(result, "\n")
}

func stripCodeBlockPrefix(line string) string {
	idx := strings.Index(line, codeBar)
	if idx < 0 {
		return line
	}
	after := idx + len(codeBar)
	if after < len(line) && line[after] == ' ' {
		after++
	}
	return line[after:]
}

// wordWrapWithIndent wraps text to maxWidth, indenting continuation lines to
// line up under the first word after prefix.
func wordWrapWithIndent(text string, prefix string, maxWidth int) string {
	prefixLen := len(stripANSI(prefix))
	availableWidth := maxWidth - prefixLen
	if availableWidth <= 0 {
		return prefix + text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return prefix
	}

	var result, line strings.Builder
	indent := strings.Repeat(" ", prefixLen)
	first := true
	flush := func() {
		if first {
			result.WriteString(prefix)
			first = false
		} else {
			result.WriteString("\n")
			result.WriteString(indent)
		}
		result.WriteString(line.String())
		line.Reset()
	}

	for _, word := range words {
		n := line.Len()
		if n > 0 {
			n++
		}
		if n+len(word) > availableWidth && line.Len() > 0 {
			flush()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		flush()
	}
	return result.String()
}

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
