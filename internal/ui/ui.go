// Package ui is the live terminal view of a keying session.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/morse"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages sent into the program by the keying session
type SymbolMsg struct{ Symbol string }
type CodeMsg struct{ Letter, Sequence string }
type KeyStateMsg struct{ Down bool }
type StatusMsg struct{ Text string }

const maxText = 4096

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	keyDownStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	keyUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

// Model is the bubbletea model for the live view.
type Model struct {
	source  string
	timing  keyer.Timing
	keyDown bool
	pending string
	text    string
	last    CodeMsg
	letters int
	unknown int
	status  string
	width   int
}

// New returns a model showing the given thresholds and key source name.
func New(t keyer.Timing, source string) Model {
	return Model{source: source, timing: t}
}

// NewProgram starts the view on the alternate screen.
func NewProgram(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// Bind forwards the keyer's observers into send, usually (*tea.Program).Send.
func Bind(k *keyer.Keyer, send func(tea.Msg)) {
	k.OnSymbol(func(symbol string) { send(SymbolMsg{Symbol: symbol}) })
	k.OnCode(func(letter, sequence string) { send(CodeMsg{Letter: letter, Sequence: sequence}) })
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case KeyStateMsg:
		m.keyDown = msg.Down

	case SymbolMsg:
		switch msg.Symbol {
		case string(rune(morse.Dot)), string(rune(morse.Dash)):
			m.pending += msg.Symbol
		default:
			// letter or word boundary
			m.pending = ""
		}

	case CodeMsg:
		m = m.appendCode(msg)

	case StatusMsg:
		m.status = msg.Text
	}
	return m, nil
}

func (m Model) appendCode(msg CodeMsg) Model {
	switch {
	case msg.Letter == " ":
		if m.text != "" && !strings.HasSuffix(m.text, " ") {
			m.text += " "
		}
		return m
	case msg.Sequence == "":
		// flush with nothing keyed
		return m
	case msg.Letter == string(morse.Unknown):
		m.unknown++
	}
	m.letters++
	m.last = msg
	m.text += msg.Letter
	if len(m.text) > maxText {
		m.text = m.text[len(m.text)-maxText:]
	}
	return m
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("cwkeyer") + dimStyle.Render(" ("+m.source+")") + "\n\n")

	if m.keyDown {
		b.WriteString(keyDownStyle.Render("● KEY DOWN"))
	} else {
		b.WriteString(keyUpStyle.Render("○ key up"))
	}
	b.WriteString("  " + pendingStyle.Render(m.pending) + "\n\n")

	width := m.width - 4
	if width < 20 {
		width = 60
	}
	body := m.renderText(width)
	if body == "" {
		body = dimStyle.Render("waiting for keying...")
	}
	b.WriteString(panelStyle.Width(width).Render(body) + "\n")

	if m.last.Sequence != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("last: %s  %s", m.last.Letter, m.last.Sequence)) + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("letters: %d  unknown: %d", m.letters, m.unknown)) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("dot <= %s  dash < %s  letter gap > %s  word gap > %s",
		ms(m.timing.MaxDot), ms(m.timing.MaxDash), ms(m.timing.MaxSymbolGap), ms(m.timing.MaxLetterGap))) + "\n")

	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("q to quit"))
	return b.String()
}

// renderText shows the tail of the decoded text that fits in a few lines.
func (m Model) renderText(width int) string {
	text := m.text
	if limit := width * 6; len(text) > limit {
		text = text[len(text)-limit:]
	}

	var b strings.Builder
	for _, r := range text {
		s := string(r)
		if r == morse.Unknown {
			b.WriteString(unknownStyle.Render(s))
		} else {
			b.WriteString(textStyle.Render(s))
		}
	}
	return b.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Text returns the decoded text shown so far
func (m Model) Text() string {
	return m.text
}

// Pending returns the symbols keyed for the letter in progress
func (m Model) Pending() string {
	return m.pending
}
