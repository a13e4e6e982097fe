// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/philcrump/limesdr-fft/internal/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAveraging struct{ depth, max int }

func (f *fakeAveraging) AverageDepth() int    { return f.depth }
func (f *fakeAveraging) MaxAverageDepth() int { return f.max }
func (f *fakeAveraging) SetAverageDepth(k int) error {
	if k < 0 || k > f.max {
		return fmt.Errorf("depth %d out of range", k)
	}
	f.depth = k
	return nil
}

func newTestModel(t *testing.T) (MonitorModel, *publish.Publisher, *fakeAveraging) {
	t.Helper()
	pub := publish.New(8)
	avg := &fakeAveraging{depth: 20, max: 25}
	m := NewMonitorModel(Options{
		Frames:    pub,
		Averaging: avg,
		Viewers:   func() int { return 2 },
		Interval:  time.Millisecond,
	})
	model, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 16})
	return model.(MonitorModel), pub, avg
}

func update(t *testing.T, m MonitorModel, msg tea.Msg) (MonitorModel, tea.Cmd) {
	t.Helper()
	model, cmd := m.Update(msg)
	return model.(MonitorModel), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitorPoll(t *testing.T) {
	m, pub, _ := newTestModel(t)
	assert.Contains(t, m.View(), "Waiting for frames")

	pub.Publish([]byte{0, 10, 255, 40, 0, 0, 0, 0})
	m, cmd := update(t, m, tickMsg(time.Now()))
	require.NotNil(t, cmd, "polling continues")
	assert.Equal(t, uint64(1), m.last)
	assert.Equal(t, byte(0), m.lo)
	assert.Equal(t, byte(255), m.hi)

	pub.Publish(make([]byte, 8))
	pub.Publish(make([]byte, 8))
	pub.Publish(make([]byte, 8))
	m, _ = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, uint64(4), m.last)
	assert.Equal(t, uint64(2), m.frames)
	assert.Equal(t, uint64(2), m.skipped)

	view := m.View()
	assert.Contains(t, view, "seq 4")
	assert.Contains(t, view, "viewers 2")
}

func TestMonitorDepthKeys(t *testing.T) {
	m, _, avg := newTestModel(t)

	m, _ = update(t, m, runes("+"))
	assert.Equal(t, 25, avg.depth, "clamped to max")
	assert.NoError(t, m.err)

	m, _ = update(t, m, runes("-"))
	assert.Equal(t, 15, avg.depth)

	avg.depth = 5
	m, _ = update(t, m, runes("-"))
	assert.Equal(t, 0, avg.depth, "clamped to zero")
	assert.Contains(t, m.View(), "avg 0/25")
}

func TestMonitorQuit(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestRenderSpectrum(t *testing.T) {
	m, pub, _ := newTestModel(t)
	pub.Publish([]byte{255, 255, 0, 0, 0, 0, 0, 0})
	m, _ = update(t, m, tickMsg(time.Now()))

	out := m.renderSpectrum()
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, m.viewport.Height)
	assert.Contains(t, lines[0], "█", "full-scale bins reach the top row")
}

func TestColumnPeaks(t *testing.T) {
	assert.Equal(t, []byte{9, 7}, columnPeaks([]byte{1, 9, 7, 3}, 2))
	assert.Equal(t, []byte{1, 2}, columnPeaks([]byte{1, 2}, 10))
}
