package ui

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"phasegate/internal/types"
)

// FetchStatus loads the current snapshot for the watched feature.
type FetchStatus func() (*types.FeatureStatusView, error)

// watch messages
type (
	refreshMsg struct {
		view *types.FeatureStatusView
		err  error
	}
	dbChangedMsg struct{}
)

// debounce window for bursts of database writes (SQLite touches the
// journal alongside the main file).
const watchDebounce = 200 * time.Millisecond

// WatchModel is the live status view. It refreshes whenever the
// database file changes on disk.
type WatchModel struct {
	fetch   FetchStatus
	watcher *fsnotify.Watcher
	dbBase  string

	table   table.Model
	feature types.Feature
	err     error
	updated time.Time
	styles  Styles

	width  int
	height int
}

// NewWatchModel builds the model and starts watching the directory that
// holds the database file.
func NewWatchModel(fetch FetchStatus, dbPath string) (*WatchModel, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch database directory: %w", err)
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Phase", Width: 14},
			{Title: "State", Width: 22},
			{Title: "Iterations", Width: 10},
			{Title: "Latest verdict", Width: 24},
			{Title: "Handoffs", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return &WatchModel{
		fetch:   fetch,
		watcher: watcher,
		dbBase:  filepath.Base(dbPath),
		table:   t,
		styles:  DefaultStyles(),
	}, nil
}

// Init triggers the first load and the first watch cycle.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.waitForChange())
}

// refresh loads a fresh snapshot off the update loop.
func (m *WatchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		view, err := m.fetch()
		return refreshMsg{view: view, err: err}
	}
}

// waitForChange blocks on the next relevant filesystem event.
func (m *WatchModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				// The write may land on the db file or its journal.
				if strings.HasPrefix(filepath.Base(ev.Name), m.dbBase) {
					time.Sleep(watchDebounce)
					drain(m.watcher.Events)
					return dbChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// drain empties queued events accumulated during the debounce window.
func drain(ch <-chan fsnotify.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Update handles messages.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.watcher.Close()
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case dbChangedMsg:
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case refreshMsg:
		m.err = msg.err
		m.updated = time.Now()
		if msg.view != nil {
			m.feature = msg.view.Feature
			m.table.SetRows(phaseRows(msg.view.Phases, m.styles))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func phaseRows(phases []types.PhaseStatus, styles Styles) []table.Row {
	rows := make([]table.Row, 0, len(phases))
	for _, p := range phases {
		verdict := "-"
		if len(p.LatestVerdicts) > 0 {
			parts := make([]string, len(p.LatestVerdicts))
			for i, v := range p.LatestVerdicts {
				parts[i] = fmt.Sprintf("%s:%s", v.Signoff, v.Outcome)
			}
			verdict = strings.Join(parts, " ")
		}
		handoffs := "-"
		if n := len(p.VisibleHandoffs); n > 0 {
			handoffs = strconv.Itoa(n)
		}
		rows = append(rows, table.Row{
			string(p.Role),
			styles.RenderState(p.State),
			strconv.Itoa(p.Iterations),
			verdict,
			handoffs,
		})
	}
	return rows
}

// View renders the live status screen.
func (m *WatchModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render(fmt.Sprintf("%s (%s)", m.feature.ID, m.feature.Status)))
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		sb.WriteString("\n\n")
	}
	sb.WriteString(m.table.View())
	sb.WriteString("\n")
	footer := "q quit · r refresh"
	if !m.updated.IsZero() {
		footer += " · updated " + m.updated.Format("15:04:05")
	}
	sb.WriteString(m.styles.Footer.Render(footer))
	return sb.String()
}

// RunWatch opens the live view and blocks until the user quits.
func RunWatch(fetch FetchStatus, dbPath string) error {
	model, err := NewWatchModel(fetch, dbPath)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
