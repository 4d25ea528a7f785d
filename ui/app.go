// Package ui is the terminal chat client: a bubbletea program that streams
// turns from the dispatcher and draws the descriptors derived from the
// conversation log.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"horizon/conversation"
	"horizon/dispatch"
	"horizon/display"
	"horizon/model"
	"horizon/storage"
	"horizon/tools"
)

// Options wires the terminal client to the rest of the application.
type Options struct {
	Store      *conversation.Store
	Dispatcher *dispatch.Dispatcher
	// Persist backs the session picker. Nil disables it.
	Persist storage.ChatStore
	// UserID is the local identity. Empty means anonymous: nothing is saved.
	UserID string
	// ChatID resumes an existing chat. Empty starts a new one.
	ChatID string
	// EventBuffer bounds the events queued between the turn and the screen.
	EventBuffer int
}

type renderedText struct {
	width int
	text  string
}

type AppView struct {
	opts   Options
	chatID string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	// The in-flight turn. partial is only ever shown, never stored.
	busy     bool
	state    dispatch.State
	partial  string
	skeleton *display.Descriptor
	cancel   context.CancelFunc
	events   <-chan tea.Msg

	rendered  map[string]renderedText
	rendering map[string]bool

	status  string
	errText string
	picker  *sessionPicker
}

func NewAppView(opts Options) AppView {
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 1
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about properties, events or inquiries..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Enter sends, Alt+Enter adds a line
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	chatID := opts.ChatID
	if chatID == "" {
		chatID = model.NewID()
	}

	return AppView{
		opts:      opts,
		chatID:    chatID,
		viewport:  viewport.New(80, 20),
		textarea:  ta,
		spinner:   sp,
		rendered:  make(map[string]renderedText),
		rendering: make(map[string]bool),
	}
}

// ChatID is the chat currently on screen.
func (a AppView) ChatID() string {
	return a.chatID
}

func (a AppView) Init() tea.Cmd {
	if a.opts.ChatID != "" {
		return tea.Batch(textarea.Blink, resumeChatCmd(a.opts.Store, a.chatID))
	}
	return textarea.Blink
}

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Reserve space for the textarea (3 lines), status and footer
		a.viewport.Width = a.width
		a.viewport.Height = max(a.height-6, 3)
		a.textarea.SetWidth(a.width)
		a.ready = true
		cmd := a.refresh(true)
		return a, cmd

	case tea.KeyMsg:
		if a.picker != nil {
			return a.updatePicker(msg)
		}
		return a.handleKey(msg)

	case spinner.TickMsg:
		if !a.busy {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case turnEventMsg:
		a.applyEvent(msg.Event)
		cmd := a.refresh(true)
		return a, tea.Batch(cmd, waitForTurn(a.events))

	case turnDoneMsg:
		a.finishTurn(msg)
		cmd := a.refresh(true)
		return a, cmd

	case markdownRenderedMsg:
		delete(a.rendering, msg.ID)
		if msg.Width == a.width {
			a.rendered[msg.ID] = renderedText{width: msg.Width, text: msg.Rendered}
		}
		cmd := a.refresh(false)
		return a, cmd

	case chatsListedMsg:
		if msg.Err != nil {
			log.WithError(msg.Err).Error("listing chats failed")
			a.errText = "Could not load saved chats."
			cmd := a.refresh(false)
			return a, cmd
		}
		a.picker = newSessionPicker(msg.Chats)
		return a, nil

	case chatResumedMsg:
		if msg.Err != nil {
			log.WithError(msg.Err).WithField("chat_id", msg.ChatID).Error("resuming chat failed")
			a.errText = "Could not open that chat."
			cmd := a.refresh(false)
			return a, cmd
		}
		a.switchChat(msg.ChatID)
		a.status = "Resumed " + storage.ChatPath(msg.ChatID)
		cmd := a.refresh(true)
		return a, cmd

	case clipboardMsg:
		if msg.Err != nil {
			a.errText = "Copy failed: " + msg.Err.Error()
		} else {
			a.status = "Copied last reply"
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit

	case "esc":
		if a.busy && a.cancel != nil {
			a.cancel()
			a.status = "Cancelling..."
		}
		return a, nil

	case "enter":
		input := strings.TrimSpace(a.textarea.Value())
		if input == "" || a.busy {
			return a, nil
		}
		a.textarea.Reset()
		a.errText = ""
		a.status = ""
		return a.handleInput(input)

	case "ctrl+y":
		reply, ok := a.lastReply()
		if !ok {
			return a, nil
		}
		return a, copyCmd(reply)

	case "ctrl+n":
		if a.busy {
			return a, nil
		}
		a.switchChat(model.NewID())
		cmd := a.refresh(true)
		return a, cmd

	case "ctrl+o":
		cmd := a.openPicker()
		return a, cmd

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

// handleInput runs slash commands or starts a chat turn.
func (a AppView) handleInput(input string) (tea.Model, tea.Cmd) {
	switch input {
	case "/confirm":
		form, ok := a.pendingInquiry()
		if !ok {
			a.errText = "There is no inquiry waiting for confirmation."
			cmd := a.refresh(false)
			return a, cmd
		}
		userID := form.UserID
		if userID == "" {
			userID = a.opts.UserID
		}
		dispatcher := a.opts.Dispatcher
		cmd := a.startTurn(func(ctx context.Context, h *conversation.Handle, observe dispatch.Observer) (display.Descriptor, error) {
			return dispatcher.ConfirmInquiry(ctx, h, form.PropertyID, userID, observe)
		})
		return a, cmd
	case "/new":
		a.switchChat(model.NewID())
		cmd := a.refresh(true)
		return a, cmd
	case "/sessions":
		cmd := a.openPicker()
		return a, cmd
	}

	dispatcher := a.opts.Dispatcher
	cmd := a.startTurn(func(ctx context.Context, h *conversation.Handle, observe dispatch.Observer) (display.Descriptor, error) {
		return dispatcher.Submit(ctx, h, input, observe)
	})
	return a, cmd
}

func (a *AppView) switchChat(chatID string) {
	a.chatID = chatID
	a.rendered = make(map[string]renderedText)
	a.rendering = make(map[string]bool)
	a.errText = ""
}

func (a *AppView) openPicker() tea.Cmd {
	if a.opts.Persist == nil || a.opts.UserID == "" {
		a.errText = "Saved chats need a user_id in the config."
		return a.refresh(false)
	}
	return listChatsCmd(a.opts.Persist, a.opts.UserID)
}

func (a *AppView) applyEvent(e dispatch.Event) {
	switch e.Type {
	case dispatch.EventState:
		a.state = e.State
		if e.State == dispatch.StreamingText {
			a.skeleton = nil
		}
	case dispatch.EventDelta:
		a.partial += e.Delta
	case dispatch.EventSkeleton:
		a.skeleton = e.Descriptor
	}
}

func (a *AppView) finishTurn(msg turnDoneMsg) {
	if a.cancel != nil {
		a.cancel()
	}
	a.busy = false
	a.cancel = nil
	a.events = nil
	a.partial = ""
	a.skeleton = nil
	a.state = dispatch.Idle

	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, context.Canceled):
		a.status = "Cancelled"
	case msg.Descriptor.Kind == display.KindError:
		a.errText = msg.Descriptor.Text
	default:
		a.errText = msg.Err.Error()
	}
	if msg.Err != nil {
		log.WithError(msg.Err).WithField("chat_id", a.chatID).Warn("turn ended with error")
	}
}

// descriptors derives what is on screen from the current log.
func (a AppView) descriptors() []display.Descriptor {
	conv, ok := a.opts.Store.Snapshot(a.chatID)
	if !ok {
		return nil
	}
	return display.Derive(conv)
}

// pendingInquiry is the latest inquiry form still waiting for the user.
func (a AppView) pendingInquiry() (tools.InquiryFormResult, bool) {
	descs := a.descriptors()
	for i := len(descs) - 1; i >= 0; i-- {
		d := descs[i]
		if d.Kind == display.KindInquiryForm && d.Inquiry != nil {
			if d.Inquiry.Status == tools.InquiryStatusRequiresAction {
				return *d.Inquiry, true
			}
			return tools.InquiryFormResult{}, false
		}
	}
	return tools.InquiryFormResult{}, false
}

func (a AppView) lastReply() (string, bool) {
	descs := a.descriptors()
	for i := len(descs) - 1; i >= 0; i-- {
		if descs[i].Kind != display.KindUser {
			return descs[i].Text, true
		}
	}
	return "", false
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{Err: clipboard.WriteAll(text)}
	}
}

// refresh redraws the transcript and queues markdown renders for assistant
// text not yet rendered at the current width.
func (a *AppView) refresh(gotoBottom bool) tea.Cmd {
	if !a.ready {
		return nil
	}

	var cmds []tea.Cmd
	var b strings.Builder

	descs := a.descriptors()
	if len(descs) == 0 && !a.busy {
		b.WriteString(welcomeText(a.width))
		b.WriteString("\n\n")
	}

	for _, d := range descs {
		switch d.Kind {
		case display.KindUser:
			b.WriteString(formatUserMessage("You", d.Text))
		case display.KindAssistant:
			b.WriteString(AssistantStyle.Bold(true).Render("Assistant"))
			b.WriteString("\n")
			r, ok := a.rendered[d.ID]
			if ok && r.width == a.width {
				b.WriteString(r.text)
			} else {
				b.WriteString(wordWrapWithIndent(d.Text, "", a.width-4))
				if !a.rendering[d.ID] {
					a.rendering[d.ID] = true
					cmds = append(cmds, renderMarkdownCmd(d.ID, d.Text, a.width))
				}
			}
			b.WriteString("\n\n")
		default:
			b.WriteString(renderCard(d, a.width))
			b.WriteString("\n\n")
		}
	}

	if a.busy {
		switch {
		case a.partial != "":
			b.WriteString(AssistantStyle.Bold(true).Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(wordWrapWithIndent(a.partial+"▋", "", a.width-4))
			b.WriteString("\n\n")
		case a.skeleton != nil:
			b.WriteString(renderCard(*a.skeleton, a.width))
			b.WriteString("\n\n")
		}
	}

	if a.errText != "" {
		b.WriteString(ErrorStyle.Render("✗ " + a.errText))
		b.WriteString("\n")
	}

	a.viewport.SetContent(b.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
	return tea.Batch(cmds...)
}

func formatUserMessage(role, content string) string {
	bar := UserStyle.Render("┃")

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s\n", bar, UserStyle.Render(role)))
	for _, line := range strings.Split(content, "\n") {
		result.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}
	result.WriteString("\n")
	return result.String()
}

func (a AppView) statusLine() string {
	if a.busy {
		var label string
		switch a.state {
		case dispatch.StreamingText:
			label = "Typing..."
		case dispatch.ExecutingTool:
			label = "Working..."
		default:
			label = "Thinking..."
		}
		return a.spinner.View() + " " + StatusStyle.Render(label)
	}
	return StatusStyle.Render(a.status)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.picker != nil {
		return a.picker.View(a.width, a.height)
	}

	footer := FormatFooter("Enter", "Send", "Esc", "Cancel", "Ctrl+Y", "Copy", "Ctrl+O", "Chats", "Ctrl+N", "New", "Ctrl+C", "Quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		a.viewport.View(),
		a.statusLine(),
		a.textarea.View(),
		HelpStyle.Render(footer),
	)
}
