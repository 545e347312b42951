package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"utter/palette"
)

// TUI message types
type controlEnabledMsg struct{ Enabled bool }
type recordingMsg struct{ Recording bool }
type textMsg struct{ Text string }
type colorMsg struct{ Color palette.Color }
type alertMsg struct{ Title, Message string }
type copiedMsg struct{ Err error }
type tickMsg time.Time

const (
	swatchCols = 44
	swatchRows = 15
)

type tuiInfo struct {
	provider string
	language string
	device   string
	binding  string
}

type tuiAlert struct {
	title   string
	message string
}

type tuiModel struct {
	info          tuiInfo
	enabled       bool
	recording     bool
	text          string
	color         palette.Color
	alert         *tuiAlert
	copied        bool
	copyErr       error
	frame         int
	width, height int
	toggle        func()
}

// tui is the terminal front end. View calls are forwarded to the Bubble
// Tea program, which applies them on its own goroutine.
type tui struct {
	program *tea.Program

	mu       sync.Mutex
	onToggle func()
}

func newTUI(info tuiInfo) *tui {
	t := &tui{}
	m := tuiModel{info: info, color: palette.Initial, toggle: t.fireToggle}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	return t
}

func (t *tui) OnToggle(fn func()) {
	t.mu.Lock()
	t.onToggle = fn
	t.mu.Unlock()
}

func (t *tui) fireToggle() {
	t.mu.Lock()
	fn := t.onToggle
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *tui) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.program.Quit()
	}()
	_, err := t.program.Run()
	return err
}

func (t *tui) SetControlEnabled(enabled bool) { t.program.Send(controlEnabledMsg{enabled}) }
func (t *tui) SetRecording(recording bool)    { t.program.Send(recordingMsg{recording}) }
func (t *tui) SetText(text string)            { t.program.Send(textMsg{text}) }
func (t *tui) SetColor(c palette.Color)       { t.program.Send(colorMsg{c}) }
func (t *tui) Alert(title, message string)    { t.program.Send(alertMsg{title, message}) }

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case controlEnabledMsg:
		m.enabled = msg.Enabled

	case recordingMsg:
		m.recording = msg.Recording

	case textMsg:
		m.text = msg.Text
		m.copied = false

	case colorMsg:
		m.color = msg.Color

	case alertMsg:
		m.alert = &tuiAlert{title: msg.Title, message: msg.Message}

	case copiedMsg:
		m.copied = msg.Err == nil
		m.copyErr = msg.Err
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	// The alert is modal: only its OK action is accepted.
	if m.alert != nil {
		if key == "enter" {
			m.alert = nil
		}
		return m, nil
	}

	switch key {
	case " ", "enter":
		if !m.enabled || m.toggle == nil {
			return m, nil
		}
		// Toggle posts to the controller, which may be waiting on Send.
		toggle := m.toggle
		return m, func() tea.Msg {
			toggle()
			return nil
		}
	case "c":
		if m.text == "" {
			return m, nil
		}
		text := m.text
		return m, func() tea.Msg {
			return copiedMsg{Err: clipboard.WriteAll(text)}
		}
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	copiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	buttonIdle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("241")).Padding(0, 2)
	buttonRec   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("196")).Bold(true).Padding(0, 2)
	buttonOff   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Background(lipgloss.Color("236")).Padding(0, 2)
	alertBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("196")).Padding(1, 3)
	alertTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okButton    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("24")).Padding(0, 2)
)

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.alert != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderAlert())
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		renderSwatch(m.color, m.recording, m.frame),
		"",
		m.renderButton(),
		"",
		m.renderInfo(),
	)

	rightWidth := m.width - swatchCols - 3
	if rightWidth < 20 {
		rightWidth = 20
	}
	right := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(2).
		Render(m.renderText(rightWidth - 2))

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// renderSwatch draws the colour panel with a border that is red while
// recording and gray otherwise.
func renderSwatch(c palette.Color, recording bool, frame int) string {
	border := lipgloss.Color("244")
	if recording {
		border = lipgloss.Color("196")
		if math.Sin(float64(frame)*0.15) < -0.5 {
			border = lipgloss.Color("124")
		}
	}
	return lipgloss.NewStyle().
		Background(c.Term).
		Width(swatchCols).
		Height(swatchRows).
		Border(lipgloss.ThickBorder()).
		BorderForeground(border).
		Render("")
}

func (m tuiModel) renderButton() string {
	switch {
	case !m.enabled:
		return buttonOff.Render("○ Record")
	case m.recording:
		return buttonRec.Render("● Stop")
	default:
		return buttonIdle.Render("○ Record")
	}
}

func (m tuiModel) renderInfo() string {
	var lines []string
	if m.color.Name != "" {
		lines = append(lines, dimStyle.Render("colour: "+m.color.Name))
	}
	mode := m.info.provider
	if m.info.language != "" {
		mode += " | " + m.info.language
	}
	if mode != "" {
		lines = append(lines, dimStyle.Render("["+mode+"]"))
	}
	if m.info.device != "" {
		lines = append(lines, dimStyle.Render(m.info.device))
	}
	lines = append(lines, "")
	help := boldHelp.Render("space") + helpStyle.Render(" record  ") +
		boldHelp.Render("c") + helpStyle.Render(" copy  ") +
		boldHelp.Render("q") + helpStyle.Render(" quit")
	lines = append(lines, help)
	if m.info.binding != "" {
		lines = append(lines, boldHelp.Render(m.info.binding)+helpStyle.Render(" from anywhere"))
	}
	lines = append(lines, helpStyle.Render("utter "+version))
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderText(width int) string {
	if width < 10 {
		width = 10
	}
	if m.text == "" {
		if m.enabled {
			return dimStyle.Render("Say a colour: " + strings.Join(palette.Names(), ", "))
		}
		return dimStyle.Render("Waiting for authorization")
	}

	var b strings.Builder
	style := textStyle
	if !m.enabled {
		style = dimStyle
	}
	lines := wrapText(m.text, width)
	for i, line := range lines {
		b.WriteString(style.Render(line))
		if i == len(lines)-1 && m.copied {
			b.WriteString(" " + copiedStyle.Render("[✓ copied]"))
		}
		b.WriteString("\n")
	}
	if m.copyErr != nil {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("copy failed: %v", m.copyErr)))
	}
	return b.String()
}

func (m tuiModel) renderAlert() string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		alertTitle.Render(m.alert.title),
		"",
		lipgloss.NewStyle().Width(48).Align(lipgloss.Center).Render(m.alert.message),
		"",
		okButton.Render("OK"),
	)
	return alertBox.Render(body)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
