package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"horizon/storage"
)

// sessionPicker lists saved chats. Typing filters them fuzzily by title.
type sessionPicker struct {
	chats    []storage.ChatSummary
	filter   string
	selected int
}

func newSessionPicker(chats []storage.ChatSummary) *sessionPicker {
	return &sessionPicker{chats: chats}
}

func (p *sessionPicker) visible() []storage.ChatSummary {
	return storage.FilterChats(p.chats, p.filter)
}

func (p *sessionPicker) move(delta int) {
	n := len(p.visible())
	if n == 0 {
		p.selected = 0
		return
	}
	p.selected = (p.selected + delta + n) % n
}

func (a AppView) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := a.picker

	switch msg.Type {
	case tea.KeyEsc:
		a.picker = nil
		return a, nil
	case tea.KeyCtrlC:
		return a, tea.Quit
	case tea.KeyUp, tea.KeyCtrlK:
		p.move(-1)
		return a, nil
	case tea.KeyDown, tea.KeyCtrlJ:
		p.move(1)
		return a, nil
	case tea.KeyBackspace:
		if p.filter != "" {
			r := []rune(p.filter)
			p.filter = string(r[:len(r)-1])
			p.selected = 0
		}
		return a, nil
	case tea.KeyEnter:
		chats := p.visible()
		if len(chats) == 0 || a.busy {
			return a, nil
		}
		a.picker = nil
		return a, resumeChatCmd(a.opts.Store, chats[p.selected].ID)
	case tea.KeyRunes, tea.KeySpace:
		if len(msg.Runes) > 0 {
			p.filter += string(msg.Runes)
		} else {
			p.filter += " "
		}
		p.selected = 0
		return a, nil
	}
	return a, nil
}

func (p *sessionPicker) View(width, height int) string {
	modalWidth := min(width-10, 110)
	if modalWidth < 30 {
		modalWidth = 30
	}
	maxLines := max(height-10, 3)

	title := lipgloss.NewStyle().
		Bold(true).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render("Saved Chats")

	chats := p.visible()
	var header string
	switch {
	case p.filter != "":
		header = fmt.Sprintf("filter: %s  (%d of %d)", p.filter, len(chats), len(p.chats))
	default:
		header = fmt.Sprintf("%d chats", len(p.chats))
	}
	headerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(header)

	var lines []string
	if len(chats) == 0 {
		empty := "No saved chats yet. Start chatting to create one!"
		if p.filter != "" {
			empty = "No matches found"
		}
		lines = append(lines, lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true).
			Align(lipgloss.Center).
			Width(modalWidth).
			Render(empty))
	}

	start := 0
	if p.selected >= maxLines {
		start = p.selected - maxLines + 1
	}
	for i := start; i < len(chats) && i < start+maxLines; i++ {
		c := chats[i]
		meta := fmt.Sprintf("%d msgs  %s", c.MessageCount, formatTimeAgo(c.UpdatedAt))
		name := runewidth.Truncate(c.Title, modalWidth-runewidth.StringWidth(meta)-6, "…")
		gap := max(modalWidth-4-runewidth.StringWidth(name)-runewidth.StringWidth(meta), 1)

		line := name + strings.Repeat(" ", gap) + DimStyle.Render(meta)
		if i == p.selected {
			line = SelectedStyle.Render("▶ ") + SelectedStyle.Render(name) + strings.Repeat(" ", gap) + DimStyle.Render(meta)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	footer := FormatFooter("↑/↓", "Navigate", "Enter", "Open", "Type", "Filter", "Esc", "Close")

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		headerSection,
		strings.Join(lines, "\n"),
		"",
		HelpStyle.Render(footer),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
	return fmt.Sprintf("%dmo ago", int(d.Hours()/24/30))
}
