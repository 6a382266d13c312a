package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/raphaelgruber/enrichr/internal/service"
)

const pollInterval = 200 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers reading the batch snapshot
type tickMsg time.Time

// batchDoneMsg carries the orchestrator result
type batchDoneMsg struct {
	rows []models.ResultRow
	err  error
}

// progressModel is the bubbletea model for batch progress.
type progressModel struct {
	batch     *service.Batch
	snap      service.BatchSnapshot
	cancel    context.CancelFunc
	progress  progress.Model
	theme     Theme
	done      bool
	canceling bool
	err       error
}

// newProgressModel creates a new progress model.
func newProgressModel(batch *service.Batch, cancel context.CancelFunc) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		batch:    batch,
		snap:     batch.Snapshot(),
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// In-flight entities finish or abort; the batch reports back via batchDoneMsg.
			if !m.canceling {
				m.canceling = true
				m.cancel()
			}
			return m, nil
		}

	case tickMsg:
		m.snap = m.batch.Snapshot()
		return m, tickCmd()

	case batchDoneMsg:
		m.snap = m.batch.Snapshot()
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	var pct float64
	if m.snap.Total > 0 {
		pct = float64(m.snap.Completed) / float64(m.snap.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d entities", m.snap.Completed, m.snap.Total)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", status, progressBar, counts)
	if stages := stageSummary(m.snap.States); stages != "" {
		fmt.Fprintf(&b, "  %s\n", stages)
	}
	if m.snap.Failed > 0 {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("  %d failed", m.snap.Failed)) + "\n")
	}

	if m.canceling {
		b.WriteString(m.theme.hintStyle().Render("Canceling, waiting for in-flight entities...") + "\n")
	} else {
		b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to cancel (finished rows are kept)") + "\n")
	}
	return b.String()
}

// stageSummary counts in-flight entities per stage, e.g. "fetching 2 · answering 1".
func stageSummary(states []service.EntityState) string {
	order := []models.Stage{models.StageFetching, models.StageIndexing, models.StageAnswering}
	counts := make(map[models.Stage]int, len(order))
	for _, s := range states {
		if s.Status == "" {
			counts[s.Stage]++
		}
	}

	var parts []string
	for _, st := range order {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", st, counts[st]))
		}
	}
	return strings.Join(parts, " · ")
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	s := m.snap
	ok := s.Completed - s.Failed - s.Canceled

	var b strings.Builder
	switch {
	case s.Status == service.BatchStatusCanceled:
		b.WriteString(m.theme.errorStyle().Render("✗ Canceled") + "\n\n")
	case m.err != nil:
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("✗ Batch failed: %s", m.err)) + "\n\n")
	default:
		b.WriteString(m.theme.completedStyle().Render("✓ Completed") + "\n\n")
	}

	fmt.Fprintf(&b, "  Answered: %d\n", ok)
	if s.Failed > 0 {
		fmt.Fprintf(&b, "  Failed:   %d\n", s.Failed)
	}
	if s.Canceled > 0 {
		fmt.Fprintf(&b, "  Canceled: %d\n", s.Canceled)
	}
	if s.CompletedAt != nil {
		fmt.Fprintf(&b, "  Duration: %s\n", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunBatchProgress executes batch while drawing a progress bar on stderr.
// Ctrl+C cancels the batch; the rows collected so far are still returned.
func RunBatchProgress(ctx context.Context, orch *service.Orchestrator, batch *service.Batch, tmpl models.PromptTemplate) ([]models.ResultRow, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(batch, cancel), tea.WithOutput(os.Stderr))

	done := make(chan batchDoneMsg, 1)
	go func() {
		rows, err := orch.Execute(ctx, batch, tmpl)
		msg := batchDoneMsg{rows: rows, err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		slog.Warn("progress UI error, waiting for batch without it", "error", err)
	}

	result := <-done
	return result.rows, result.err
}
