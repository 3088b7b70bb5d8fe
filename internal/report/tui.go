package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"aircraft-mon/internal/config"
	"aircraft-mon/internal/pipeline"
	"aircraft-mon/internal/sink"
	"aircraft-mon/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// readingMsg carries the latest reading of a sensor.
type readingMsg struct {
	telemetry.Reading
	accepted bool
}

// reportMsg carries a metrics snapshot.
type reportMsg struct{ pipeline.Snapshot }

const maxLogLines = 500

// TUI renders pipeline activity using a bubbletea program. It implements
// pipeline.Observer and pipeline.Reporter.
type TUI struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUI starts a bubbletea program and returns a TUI.
func NewTUI(cfg *config.PipelineConfig) *TUI {
	t := &TUI{done: make(chan struct{})}
	t.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	t.program = p
	go func() {
		_, _ = p.Run()
		close(t.done)
		// Quitting the UI stops the pipeline like Ctrl-C would.
		if t.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return t
}

func (t *TUI) OnReading(r telemetry.Reading, accepted bool) {
	t.program.Send(readingMsg{Reading: r, accepted: accepted})
}

func (t *TUI) OnAggregate(a telemetry.AggregateReading) {
	t.program.Send(logMsg{line: fmt.Sprintf("%s[%s]%s %sFOG%s sensor=%s temp=%.2f hum=%.2f aq=%.2f n=%d",
		colorGray, a.Timestamp.Format(time.RFC3339), colorReset,
		colorCyan, colorReset,
		a.SensorID, a.Temperature, a.Humidity, a.AirQuality, a.Count)})
}

func (t *TUI) OnDispatch(a telemetry.AggregateReading, latency time.Duration, err error) {
	var line string
	switch {
	case err == nil:
		line = fmt.Sprintf("%sCLOUD%s sent sensor=%s latency=%.2fms", colorGreen, colorReset, a.SensorID, float64(latency)/float64(time.Millisecond))
	case sink.IsRateLimited(err):
		line = fmt.Sprintf("%sCLOUD%s throttled sensor=%s, consider increasing SENSOR_INTERVAL", colorRed, colorReset, a.SensorID)
	default:
		line = fmt.Sprintf("%sCLOUD%s failed sensor=%s err=%v", colorRed, colorReset, a.SensorID, err)
	}
	t.program.Send(logMsg{line: line})
}

func (t *TUI) OnReport(s pipeline.Snapshot) {
	t.program.Send(reportMsg{s})
}

// Report implements pipeline.Reporter; snapshots already arrive via OnReport.
func (t *TUI) Report(pipeline.Snapshot) {}

// Close shuts down the TUI program and waits for cleanup.
func (t *TUI) Close() error {
	t.sendSignal.Store(false)
	if t.program != nil {
		t.program.Send(tea.Quit())
	}
	if t.done != nil {
		<-t.done
	}
	return nil
}

type sensorState struct {
	reading  telemetry.Reading
	accepted bool
}

type tuiModel struct {
	cfg        *config.PipelineConfig
	table      table.Model
	vp         viewport.Model
	logs       []string
	sensors    map[string]sensorState
	stats      pipeline.Snapshot
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(cfg *config.PipelineConfig) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 10},
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 10},
	}
	rows := []table.Row{
		{"Sensor Interval", cfg.SensorInterval.String(), "BLE Latency", cfg.BLELatency.String()},
		{"Filter Threshold", fmt.Sprintf("%.1f", cfg.FilterThreshold), "Alert Threshold", fmt.Sprintf("%.1f", cfg.AlertThreshold)},
		{"Aggregation Window", fmt.Sprintf("%d", cfg.AggregationWindow), "Window Mode", cfg.WindowMode},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		sensors:    make(map[string]sensorState),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			m.refreshViewport()
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case readingMsg:
		m.sensors[msg.SensorID] = sensorState{reading: msg.Reading, accepted: msg.accepted}
		m.updateViewportHeight()
	case reportMsg:
		m.stats = msg.Snapshot
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderSensors()) +
		lipgloss.Height(m.renderStats()) + lipgloss.Height(m.renderBottom()) + 4
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.table.View(),
		divider,
		m.renderSensors(),
		m.renderStats(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func (m tuiModel) renderSensors() string {
	if len(m.sensors) == 0 {
		return "Sensors: waiting for readings"
	}
	ids := make([]string, 0, len(m.sensors))
	for id := range m.sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		st := m.sensors[id]
		color, verdict := colorRed, "discarded"
		if st.accepted {
			color, verdict = colorGreen, "filtered"
		}
		fmt.Fprintf(&b, "%-10s temp=%7.2f hum=%6.2f aq=%6.2f %s%s%s\n",
			id, st.reading.Temperature, st.reading.Humidity, st.reading.AirQuality, color, verdict, colorReset)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) renderStats() string {
	s := m.stats
	latency := "n/a"
	if s.HasLatency() {
		latency = fmt.Sprintf("%.2f ms", s.AvgLatencyMs)
	}
	style := lipgloss.NewStyle().Bold(true)
	return fmt.Sprintf("%s processed=%d filtered=%d sent=%d latency=%s filtering=%.2f%% aggregation=%.2f%%",
		style.Render("Metrics"), s.Processed, s.Filtered, s.Sent, latency,
		s.FilteringRatio*100, s.AggregationReduction*100)
}

func (m tuiModel) renderBottom() string {
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("9")
	if m.autoscroll {
		scrollColor = lipgloss.Color("10")
	}
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	return fmt.Sprintf("%s wrap (w)  %s autoscroll (s)  q quit", wrapIndicator, scrollIndicator)
}
