package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore"
)

// ChatPort is the TUI-facing subset of the chat session.
type ChatPort interface {
	Init(ctx context.Context) (service.IndexInfo, error)
	Answer(ctx context.Context, query string) service.Result
}

type initDoneMsg struct {
	info service.IndexInfo
	err  error
}

type answerMsg struct {
	query  string
	result service.Result
}

type exchange struct {
	user      string
	assistant string
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	session  ChatPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	info        service.IndexInfo
	initialized bool
	exchanges   []exchange
	last        service.Result
	lastQuery   string
	showSources bool
	cursor      int
	pending     bool
	status      string
	ready       bool
}

// New creates a new TUI model bound to a chat session.
func New(ctx context.Context, session ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		pending:  true,
		status:   "Opening the document index...",
	}
}

// Init starts the cursor blink, the spinner and the index initialization.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.initCmd())
}

func (m Model) initCmd() tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		info, err := session.Init(ctx)
		return initDoneMsg{info: info, err: err}
	}
}

func (m Model) answerCmd(q string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		return answerMsg{query: q, result: session.Answer(ctx, q)}
	}
}

// Update handles key, window and session events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // title + digest
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case initDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.status = describe(service.KindUnavailable, msg.err)
			return m, nil
		}
		m.initialized = true
		m.info = msg.info
		m.status = fmt.Sprintf("Ready. %d chunks indexed.", msg.info.Chunks)
		return m, nil

	case answerMsg:
		m.pending = false
		if !msg.result.OK() {
			m.status = describe(msg.result.Kind, msg.result.Err)
			if m.input.Value() == "" {
				m.input.SetValue(msg.query)
				m.input.CursorEnd()
			}
			return m, nil
		}
		m.initialized = true
		m.exchanges = append(m.exchanges, exchange{user: msg.query, assistant: msg.result.Answer})
		m.last = msg.result
		m.lastQuery = msg.query
		m.cursor = 0
		m.showSources = false
		m.status = fmt.Sprintf("Answered from %d sources. Tab shows them.", len(msg.result.Sources))
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.pending {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.pending = true
			m.input.Reset()
			m.status = "Thinking..."
			return m, tea.Batch(m.answerCmd(q), m.spinner.Tick)
		case "tab":
			if len(m.last.Sources) > 0 {
				m.showSources = !m.showSources
				m.refresh()
			}
			return m, nil
		case "down":
			if m.showSources && len(m.last.Sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.last.Sources)
				m.refresh()
				return m, nil
			}
		case "up":
			if m.showSources && len(m.last.Sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.last.Sources)) % len(m.last.Sources)
				m.refresh()
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, conversation or sources, input and status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "ragchat"
	if m.initialized {
		title += fmt.Sprintf("  ·  %d chunks", m.info.Chunks)
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	digest := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MaxHeight(1).Render(m.info.Meta.Digest)
	body := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	status = statusStyle.Render(status)
	return header + "\n" + digest + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if m.showSources {
		m.viewport.SetContent(m.renderCurrentSource())
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	if len(m.exchanges) == 0 {
		return "No questions yet."
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for i, e := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Width(width).Render("You: " + e.user))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render("Bot: " + e.assistant))
	}
	return b.String()
}

func (m Model) renderCurrentSource() string {
	if len(m.last.Sources) == 0 {
		return "No sources."
	}
	r := m.last.Sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s", m.cursor+1, len(m.last.Sources), sourceLabel(r.Chunk))
	title += fmt.Sprintf("  score=%.3f", r.Score)
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	return title + "\n\n" + lipgloss.NewStyle().Width(max(10, m.viewport.Width-2)).Render(body)
}

func sourceLabel(c domain.Chunk) string {
	label := filepath.Base(c.Source)
	if c.Page > 0 {
		label += fmt.Sprintf(" p.%d", c.Page)
	}
	return label
}

// describe turns a failed result into the message shown to the user.
func describe(kind service.ErrorKind, err error) string {
	switch kind {
	case service.KindInvalidInput:
		return "Please type a question."
	case service.KindUnavailable:
		switch {
		case errors.Is(err, vectorstore.ErrIndexNotFound):
			return "No document index found. Run `ragchat ingest` first."
		case errors.Is(err, domain.ErrEmbeddingModelMismatch):
			return "The index was built with a different embedding model. Run `ragchat ingest --reset`."
		default:
			return "The document index is unavailable. See chat.log for details."
		}
	case service.KindRetrieval:
		return "Could not search the documents. Please try again."
	case service.KindGeneration:
		return "Sorry, I could not get an answer right now. Please try again."
	case service.KindTranscript:
		return "The answer could not be saved and was discarded. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
