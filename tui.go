package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kiosk/speech"
)

const (
	viewSeconds = 5.0
	waveRows    = 9 // odd so the baseline sits in the middle
	minCols     = 20
)

var (
	speechStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	silenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	frameStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

type viewModel struct {
	analyzer *speech.Analyzer
	interval time.Duration
	latest   *speech.Tick
	width    int
}

func tuiTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m viewModel) Init() tea.Cmd { return tuiTick(m.interval) }

func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		if t, _ := m.analyzer.Tick(); t != nil {
			m.latest = t
		}
		return m, tuiTick(m.interval)
	}
	return m, nil
}

func (m viewModel) View() string {
	cols := max(m.width-4, minCols)
	var b strings.Builder
	b.WriteString(titleStyle.Render("Speech activity"))
	b.WriteString("\n\n")
	if m.latest == nil {
		b.WriteString(helpStyle.Render("waiting for audio..."))
	} else {
		cfg := m.analyzer.Config()
		b.WriteString(renderWave(waveColumns(m.latest.Amps, cfg.Threshold, cfg.SampleRate, cols), waveRows))
		b.WriteString("\n")
		b.WriteString(statsStyle.Render(formatReport(m.latest.Stats)))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("q quit"))
	return frameStyle.Render(b.String())
}

// column is one rendered slice of the waveform.
type column struct {
	peak   float64
	speech bool
}

// waveColumns buckets the last viewSeconds of amps into cols columns. Fewer
// columns are returned while the window is still filling.
func waveColumns(amps []float64, threshold float64, sampleRate, cols int) []column {
	if n := int(viewSeconds * float64(sampleRate)); len(amps) > n {
		amps = amps[len(amps)-n:]
	}
	if len(amps) == 0 || cols <= 0 {
		return nil
	}
	per := max(int(viewSeconds*float64(sampleRate))/cols, 1)
	mask := speech.IsSpeech(amps, threshold)
	out := make([]column, 0, cols)
	for start := 0; start < len(amps) && len(out) < cols; start += per {
		end := min(start+per, len(amps))
		var c column
		for i := start; i < end; i++ {
			c.peak = max(c.peak, math.Abs(amps[i]))
			c.speech = c.speech || mask[i]
		}
		out = append(out, c)
	}
	return out
}

// renderWave draws columns as bars mirrored around a middle baseline.
func renderWave(cols []column, rows int) string {
	half := rows / 2
	var b strings.Builder
	for r := 0; r < rows; r++ {
		dist := r - half
		if dist < 0 {
			dist = -dist
		}
		var run strings.Builder
		runSpeech := false
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if runSpeech {
				b.WriteString(speechStyle.Render(run.String()))
			} else {
				b.WriteString(silenceStyle.Render(run.String()))
			}
			run.Reset()
		}
		for _, c := range cols {
			if c.speech != runSpeech {
				flush()
				runSpeech = c.speech
			}
			height := int(math.Ceil(math.Min(c.peak, 1) * float64(half)))
			switch {
			case dist == 0:
				run.WriteRune('─')
			case dist <= height:
				run.WriteRune('█')
			default:
				run.WriteByte(' ')
			}
		}
		flush()
		if r < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// runTUI shows the live view until the user quits or ctx ends.
func runTUI(ctx context.Context, a *speech.Analyzer, interval time.Duration) error {
	m := viewModel{analyzer: a, interval: interval}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("live view: %w", err)
	}
	return nil
}
