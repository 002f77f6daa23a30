package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"triage/internal/report"
	"triage/internal/triage/styles"
)

type viewMode int

const (
	viewReport viewMode = iota
	viewPasses
)

type passItem struct {
	index int
	pass  report.PassResult
}

func (i passItem) FilterValue() string { return i.pass.Name + " " + i.pass.Title }

type passDelegate struct{}

func (d passDelegate) Height() int                               { return 1 }
func (d passDelegate) Spacing() int                              { return 0 }
func (d passDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d passDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(passItem)
	if !ok {
		return
	}

	indicator := " "
	nameStyle := styles.Dim
	if index == m.Index() {
		indicator = ">"
		nameStyle = styles.PassName
	}

	status := fmt.Sprintf("%d", i.pass.Total)
	if i.pass.Absent {
		status = "verified absent"
	}
	fmt.Fprintf(w, " %s  %s  %s  %s",
		indicator,
		nameStyle.Render(fmt.Sprintf("%-13s", i.pass.Name)),
		i.pass.Title,
		styles.Category.Render(status))
}

type model struct {
	ctx       context.Context
	viewport  viewport.Model
	passList  list.Model
	spinner   spinner.Model
	mode      viewMode
	path      string
	passNames []string
	opts      options
	doc       *report.Document
	err       error
	loading   bool
	focus     int // index of the pass shown alone, -1 for the whole report
	width     int
	height    int
}

type analysisMsg struct {
	doc *report.Document
	err error
}

func NewModel(ctx context.Context, path string, passNames []string, opts options) model {
	if ctx == nil {
		ctx = context.Background()
	}
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	passList := list.New([]list.Item{}, passDelegate{}, 80, 24)
	passList.SetShowStatusBar(false)
	passList.SetFilteringEnabled(true)
	passList.Title = "Passes"
	passList.Styles.Title = styles.Title.MarginLeft(2)
	passList.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	m := model{
		ctx:       ctx,
		viewport:  vp,
		passList:  passList,
		spinner:   s,
		mode:      viewReport,
		path:      path,
		passNames: passNames,
		opts:      opts,
		loading:   true,
		focus:     -1,
		width:     80,
		height:    24,
	}
	m.updateContent()
	return m
}

func analyzeCmd(ctx context.Context, path string, names []string, opts options) tea.Cmd {
	return func() tea.Msg {
		doc, err := analyze(ctx, path, names, opts)
		return analysisMsg{doc: doc, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		analyzeCmd(m.ctx, m.path, m.passNames, m.opts),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case analysisMsg:
		m.loading = false
		m.doc = msg.doc
		m.err = msg.err
		m.updatePassList()
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.passList.SetWidth(msg.Width)
			m.passList.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		if m.mode == viewPasses && m.passList.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.mode = viewReport
			m.focus = -1
			m.updateContent()
			return m, nil
		case "p":
			if m.doc != nil {
				m.mode = viewPasses
			}
			return m, nil
		case "tab":
			if m.doc != nil {
				if m.mode == viewReport {
					m.mode = viewPasses
				} else {
					m.mode = viewReport
				}
			}
			return m, nil
		case "enter":
			if m.mode == viewPasses {
				if item, ok := m.passList.SelectedItem().(passItem); ok {
					m.focus = item.index
					m.mode = viewReport
					m.updateContent()
					m.viewport.GotoTop()
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewPasses:
		m.passList, cmd = m.passList.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewPasses:
		content = m.passList.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch {
	case m.doc == nil:
		menu = " Q: quit "
	case m.mode == viewPasses:
		menu = " Enter: show pass • /: filter • R: full report • Tab: cycle • Q: quit "
	default:
		menu = " P: passes • R: full report • Tab: cycle • Q: quit "
	}
	return content + "\n" + styles.MenuBar.Width(m.width).Render(menu)
}

func (m *model) updatePassList() {
	if m.doc == nil {
		return
	}
	items := make([]list.Item, 0, len(m.doc.Passes))
	for i, p := range m.doc.Passes {
		items = append(items, passItem{index: i, pass: p})
	}
	m.passList.SetItems(items)
}

func (m *model) updateContent() {
	var md string
	switch {
	case m.err != nil:
		md = fmt.Sprintf("# Triage: %s\n\n**error:** %s\n", filepath.Base(m.path), m.err)
	case m.doc == nil:
		md = fmt.Sprintf("# Triage: %s\n\n%s Scanning...\n", filepath.Base(m.path), m.spinner.View())
	case m.focus >= 0 && m.focus < len(m.doc.Passes):
		p := m.doc.Passes[m.focus]
		md = report.Markdown(&report.Document{File: m.doc.File, Passes: []report.PassResult{p}, Total: p.Total})
	default:
		md = report.Markdown(m.doc)
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	rendered := renderMarkdown(md, width, m.opts.noColor)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}
