// SPDX-License-Identifier: MIT

// Package tui is the terminal monitor that runs beside the pipeline.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F56"))
)

// Key bindings for the monitor.
var (
	quitKey = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKey   = key.NewBinding(key.WithKeys("+", "="))
	downKey = key.NewBinding(key.WithKeys("-", "_"))
)

// levels are the bar glyphs from empty to full.
var levels = []rune(" ▁▂▃▄▅▆▇█")

// FrameSource is the publisher, read with the monitor's own cursor.
type FrameSource interface {
	Capacity() int
	TryReadInto(dst []byte, last uint64) (n int, seq uint64, ok bool)
}

// Averaging is the depth control of the analysis processor.
type Averaging interface {
	AverageDepth() int
	MaxAverageDepth() int
	SetAverageDepth(k int) error
}

// Options wires the monitor to the running pipeline.
type Options struct {
	Frames    FrameSource
	Averaging Averaging
	Viewers   func() int // may be nil
	Interval  time.Duration
	DepthStep int // change per keypress, 10 when zero
}

type tickMsg time.Time

// MonitorModel is the Bubble Tea model for the live spectrum view.
type MonitorModel struct {
	opts     Options
	viewport viewport.Model
	ready    bool
	err      error

	buf     []byte
	frame   []byte
	last    uint64
	frames  uint64
	skipped uint64
	lo, hi  byte
}

// NewMonitorModel creates a monitor model.
func NewMonitorModel(opts Options) MonitorModel {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.DepthStep <= 0 {
		opts.DepthStep = 10
	}
	return MonitorModel{
		opts: opts,
		buf:  make([]byte, opts.Frames.Capacity()),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts polling.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles polls, resizes and keys.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.renderSpectrum())

	case tickMsg:
		m = m.poll()
		if m.ready {
			m.viewport.SetContent(m.renderSpectrum())
		}
		cmds = append(cmds, m.tick())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, upKey):
			m.err = m.changeDepth(m.opts.DepthStep)
		case key.Matches(msg, downKey):
			m.err = m.changeDepth(-m.opts.DepthStep)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// poll takes the latest frame if it is new.
func (m MonitorModel) poll() MonitorModel {
	n, seq, ok := m.opts.Frames.TryReadInto(m.buf, m.last)
	if !ok {
		return m
	}
	if m.last != 0 && seq > m.last+1 {
		m.skipped += seq - m.last - 1
	}
	m.last = seq
	m.frames++
	m.frame = append(m.frame[:0], m.buf[:n]...)
	m.lo, m.hi = 255, 0
	for _, v := range m.frame {
		m.lo = min(m.lo, v)
		m.hi = max(m.hi, v)
	}
	return m
}

// changeDepth moves the averaging depth by delta, clamped to the valid range.
func (m MonitorModel) changeDepth(delta int) error {
	a := m.opts.Averaging
	k := min(max(a.AverageDepth()+delta, 0), a.MaxAverageDepth())
	return a.SetAverageDepth(k)
}

// View renders the UI.
func (m MonitorModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Spectrum Monitor")
	viewers := 0
	if m.opts.Viewers != nil {
		viewers = m.opts.Viewers()
	}
	status := infoStyle.Render(fmt.Sprintf("seq %d • frames %d • skipped %d • min %d max %d • viewers %d • avg %d/%d",
		m.last, m.frames, m.skipped, m.lo, m.hi, viewers,
		m.opts.Averaging.AverageDepth(), m.opts.Averaging.MaxAverageDepth()))
	help := infoStyle.Render("+/-: Averaging depth • q: Quit")
	if m.err != nil {
		help = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, status, m.viewport.View(), help)
}

// renderSpectrum draws the frame as columns of bar glyphs sized to the
// viewport. Each column shows the peak of the bins it covers.
func (m MonitorModel) renderSpectrum() string {
	if len(m.frame) == 0 {
		return "Waiting for frames..."
	}
	width, height := m.viewport.Width, m.viewport.Height
	if width <= 0 || height <= 0 {
		return ""
	}
	cols := columnPeaks(m.frame, width)

	steps := len(levels) - 1
	var sb strings.Builder
	for row := height - 1; row >= 0; row-- {
		line := make([]rune, len(cols))
		for i, v := range cols {
			// Eighths of a cell filled above the bottom of this row.
			fill := int(v)*height*steps/255 - row*steps
			line[i] = levels[min(max(fill, 0), steps)]
		}
		sb.WriteString(highlightStyle.Render(string(line)))
		if row > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// columnPeaks reduces frame to width values, each the maximum of its span.
func columnPeaks(frame []byte, width int) []byte {
	if width > len(frame) {
		width = len(frame)
	}
	cols := make([]byte, width)
	for i := range cols {
		start := i * len(frame) / width
		end := (i + 1) * len(frame) / width
		for _, v := range frame[start:end] {
			cols[i] = max(cols[i], v)
		}
	}
	return cols
}

// Run shows the monitor until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(
		NewMonitorModel(opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
