package main

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xdraw "golang.org/x/image/draw"

	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/runtime"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/serial"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	previewCols   = 96
	serialHeight  = 8
	logLines      = 4
	stickStep     = 32
	statusRefresh = 100 * time.Millisecond
)

type keyMap struct {
	Disabled   key.Binding
	Autonomous key.Binding
	OpControl  key.Binding
	Connect    key.Binding
	LeftStick  key.Binding
	RightStick key.Binding
	Center     key.Binding
	Buttons    key.Binding
	Input      key.Binding
	Help       key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Disabled:   key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "disabled")),
	Autonomous: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "autonomous")),
	OpControl:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "driver")),
	Connect:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "field control")),
	LeftStick:  key.NewBinding(key.WithKeys("w", "a", "s", "d"), key.WithHelp("wasd", "left stick")),
	RightStick: key.NewBinding(key.WithKeys("i", "j", "k", "l"), key.WithHelp("ijkl", "right stick")),
	Center:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "center")),
	Buttons:    key.NewBinding(key.WithKeys("z", "x", "n", "m"), key.WithHelp("zxnm", "A B X Y")),
	Input:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "serial input")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Autonomous, k.OpControl, k.Connect, k.Input, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Disabled, k.Autonomous, k.OpControl, k.Connect},
		{k.LeftStick, k.RightStick, k.Center, k.Buttons},
		{k.Input, k.Help, k.Quit},
	}
}

// stick maps movement keys to an axis and direction.
var stick = map[string]struct {
	axis controller.Axis
	dir  int32
}{
	"w": {controller.LeftY, 1}, "s": {controller.LeftY, -1},
	"a": {controller.LeftX, -1}, "d": {controller.LeftX, 1},
	"i": {controller.RightY, 1}, "k": {controller.RightY, -1},
	"j": {controller.RightX, -1}, "l": {controller.RightX, 1},
}

var buttonKeys = map[string]controller.Button{
	"z": controller.ButtonA,
	"x": controller.ButtonB,
	"n": controller.ButtonX,
	"m": controller.ButtonY,
}

type (
	serialMsg     []serial.Output
	frameMsg      display.Frame
	phaseMsg      competition.Phase
	terminatedMsg struct{ err error }
	refreshMsg    time.Time
)

// tui is the interactive frontend. Terminals report key presses but not
// releases, so sticks move in steps and buttons toggle.
type tui struct {
	path  string
	pub   *controller.Publisher
	logs  *logBuffer
	relay *relay[tea.Msg]
}

func newTUI(path string, pub *controller.Publisher, logs *logBuffer) *tui {
	return &tui{path: path, pub: pub, logs: logs, relay: newRelay[tea.Msg](256)}
}

func (u *tui) observer() scheduler.Observer {
	return scheduler.Funcs{
		Phase:  func(p competition.Phase) { u.relay.send(phaseMsg(p)) },
		Serial: func(out []serial.Output) { u.relay.send(serialMsg(out)) },
		Frame:  func(f display.Frame) { u.relay.offer(frameMsg(f)) },
		Terminate: func(err error) {
			u.relay.send(terminatedMsg{err})
			u.relay.close()
		},
	}
}

// run shows the TUI until the user quits or ctx is cancelled. Quitting
// terminates the guest.
func (u *tui) run(ctx context.Context, sim *runtime.Simulator) error {
	p := tea.NewProgram(newTUIModel(u, sim), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		for msg := range u.relay.ch {
			p.Send(msg)
		}
	}()
	_, err := p.Run()
	sim.Terminate()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type tuiModel struct {
	sim     *runtime.Simulator
	pub     *controller.Publisher
	logs    *logBuffer
	path    string
	help    help.Model
	serial  viewport.Model
	input   textinput.Model
	text    strings.Builder
	preview string
	status  scheduler.Status
	pad     controller.Snapshot
	logTail []string
	logSeq  uint64
	err     error
	exitErr error
	done    bool
	width   int
}

func newTUIModel(u *tui, sim *runtime.Simulator) *tuiModel {
	ti := textinput.New()
	ti.Prompt = "serial> "
	ti.Placeholder = "text sent to the program"
	ti.Width = 60

	return &tuiModel{
		sim:    sim,
		pub:    u.pub,
		logs:   u.logs,
		path:   u.path,
		help:   help.New(),
		serial: viewport.New(previewCols, serialHeight),
		input:  ti,
		status: sim.Scheduler().Status(),
		width:  previewCols,
	}
}

func refresh() tea.Cmd {
	return tea.Tick(statusRefresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refresh())
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.serial.Width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)

	case serialMsg:
		for _, o := range msg {
			if o.Channel == serial.Stdio {
				m.text.Write(o.Data)
			}
		}
		m.serial.SetContent(m.text.String())
		m.serial.GotoBottom()

	case frameMsg:
		m.preview = renderPreview(display.Frame(msg), min(m.width, previewCols))

	case phaseMsg:
		m.status.Phase = competition.Phase(msg)

	case terminatedMsg:
		m.done = true
		m.exitErr = msg.err
		m.status = m.sim.Scheduler().Status()

	case refreshMsg:
		m.status = m.sim.Scheduler().Status()
		if m.logs != nil {
			if lines, seq := m.logs.Snapshot(); seq != m.logSeq {
				m.logSeq = seq
				m.logTail = lines[max(0, len(lines)-logLines):]
			}
		}
		return m, refresh()
	}
	return m, nil
}

func (m *tuiModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "tab":
		m.input.Blur()
		return m, nil
	case "enter":
		m.sim.Scheduler().FeedSerial(serial.Stdio, []byte(m.input.Value()+"\n"))
		m.input.SetValue("")
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sched := m.sim.Scheduler()
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Input):
		return m, m.input.Focus()
	case key.Matches(msg, keys.Connect):
		sched.SetConnected(!m.status.Connected)
		m.err = nil
	case key.Matches(msg, keys.Disabled):
		m.err = sched.RequestPhase(competition.Disabled)
	case key.Matches(msg, keys.Autonomous):
		m.err = sched.RequestPhase(competition.Autonomous)
	case key.Matches(msg, keys.OpControl):
		m.err = sched.RequestPhase(competition.OpControl)
	case key.Matches(msg, keys.LeftStick, keys.RightStick):
		s := stick[msg.String()]
		m.setPad(m.pad.WithAxis(s.axis, m.pad.Axes[s.axis]+s.dir*stickStep))
	case key.Matches(msg, keys.Center):
		pad := m.pad
		pad.Axes = [controller.NumAxes]int32{}
		m.setPad(pad)
	case key.Matches(msg, keys.Buttons):
		b := buttonKeys[msg.String()]
		m.setPad(m.pad.WithButton(b, !m.pad.Pressed(b)))
	}
	return m, nil
}

func (m *tuiModel) setPad(s controller.Snapshot) {
	s.Connected = true
	m.pad = s
	m.err = m.pub.Publish(controller.Master, s)
}

func (m *tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("brainsim"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("\n\n")

	if m.preview != "" {
		b.WriteString(m.preview)
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("pad  L(%4d,%4d)  R(%4d,%4d)  buttons %s",
		m.pad.Axes[controller.LeftX], m.pad.Axes[controller.LeftY],
		m.pad.Axes[controller.RightX], m.pad.Axes[controller.RightY], m.pad.Buttons)))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("serial"))
	b.WriteString("\n")
	b.WriteString(m.serial.View())
	b.WriteString("\n")
	if m.input.Focused() {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(m.exitLine())
		b.WriteString("\n")
	}
	for _, line := range m.logTail {
		b.WriteString(logStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *tuiModel) statusLine() string {
	field := "disconnected"
	if m.status.Connected {
		field = "connected"
	}
	return fmt.Sprintf("%s %s  %s %s  %s %s  %s %d",
		labelStyle.Render("phase"), phaseStyle.Render(m.status.Phase.String()),
		labelStyle.Render("field"), field,
		labelStyle.Render("clock"), display.Clock(m.status.Elapsed),
		labelStyle.Render("ticks"), m.status.Ticks)
}

func (m *tuiModel) exitLine() string {
	code := errors.ExitCode(m.exitErr)
	if m.exitErr == nil {
		return phaseStyle.Render("program exited. Press q to quit.")
	}
	return errorStyle.Render(fmt.Sprintf("program stopped (exit %d): %v. Press q to quit.", code, m.exitErr))
}

// renderPreview draws f with half-block characters, two pixel rows per
// line.
func renderPreview(f display.Frame, cols int) string {
	if cols <= 0 || !f.Valid() {
		return ""
	}
	src := f.Image(true)
	rows := cols * display.Height / display.Width / 2
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var b strings.Builder
	for y := 0; y < rows*2; y += 2 {
		for x := 0; x < cols; x++ {
			top, bottom := dst.RGBAAt(x, y), dst.RGBAAt(x, y+1)
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexColor(top.R, top.G, top.B))).
				Background(lipgloss.Color(hexColor(bottom.R, bottom.G, bottom.B))).
				Render("▀"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func hexColor(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
