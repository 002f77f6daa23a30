package passes

import (
	"log/slog"

	"triage/internal/analysis"
)

// TablePass is an analysis.Pass driven entirely by a pattern table.
type TablePass struct {
	table *Table

	stringFilter analysis.SectionFilter
	stringCats   []analysis.Category
	symbolCats   []analysis.Category
	structures   []structureScan

	maxResults int // > 0 overrides every category cap
}

type structureScan struct {
	layout analysis.Layout
	filter analysis.SectionFilter
}

// NewTablePass builds a pass from a validated table.
func NewTablePass(t *Table) (*TablePass, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	p := &TablePass{table: t}
	p.stringFilter, _ = SectionPreset(t.Strings.Sections)
	for _, c := range t.Categories {
		cat := c.category()
		if c.scansStrings() {
			p.stringCats = append(p.stringCats, cat)
		}
		if c.scansSymbols() {
			p.symbolCats = append(p.symbolCats, cat)
		}
	}
	for _, s := range t.Structures {
		filter, _ := SectionPreset(s.Sections)
		layout := layouts[s.Layout](s)
		if err := layout.Check(); err != nil {
			return nil, err
		}
		p.structures = append(p.structures, structureScan{layout: layout, filter: filter})
	}
	return p, nil
}

// Name returns the pass name used on the command line.
func (p *TablePass) Name() string { return p.table.Name }

// Title returns the report heading of the pass.
func (p *TablePass) Title() string {
	if p.table.Title == "" {
		return p.table.Name
	}
	return p.table.Title
}

// Description returns the one-line summary of the pass.
func (p *TablePass) Description() string { return p.table.Description }

// Table returns the table the pass was built from.
func (p *TablePass) Table() *Table { return p.table }

// Categories returns every category of the pass in declared order.
func (p *TablePass) Categories() []analysis.Category {
	out := make([]analysis.Category, 0, len(p.table.Categories))
	for _, c := range p.table.Categories {
		out = append(out, p.capped(c.category()))
	}
	return out
}

// WithMaxResults returns a copy of the pass whose categories are all capped
// at n. n <= 0 keeps the table caps.
func (p *TablePass) WithMaxResults(n int) *TablePass {
	cp := *p
	cp.maxResults = n
	return &cp
}

func (p *TablePass) capped(c analysis.Category) analysis.Category {
	if p.maxResults > 0 {
		c.MaxResults = p.maxResults
	}
	return c
}

func (p *TablePass) cappedAll(cats []analysis.Category) []analysis.Category {
	out := make([]analysis.Category, len(cats))
	for i, c := range cats {
		out[i] = p.capped(c)
	}
	return out
}

// Run scans src with every category and structure layout of the table.
func (p *TablePass) Run(src analysis.ByteSource) (*analysis.Report, error) {
	r := &analysis.Report{Pass: p.Name(), Title: p.Title()}

	if len(p.stringCats) > 0 {
		r.Strings = analysis.ScanStrings(src, analysis.StringScan{
			Sections:   p.stringFilter,
			Categories: p.cappedAll(p.stringCats),
			Extract: analysis.ExtractOptions{
				MinLength:       p.table.Strings.MinLength,
				MaxLength:       p.table.Strings.MaxLength,
				AllowWhitespace: p.table.Strings.Whitespace,
			},
			Exclusive:  p.table.Strings.Exclusive,
			MaxResults: p.maxResults,
		})
	}

	if len(p.symbolCats) > 0 {
		r.Symbols = analysis.ScanSymbols(src, analysis.SymbolScan{
			Categories: p.cappedAll(p.symbolCats),
			Stride:     p.table.Symbols.Stride,
			Exclusive:  p.table.Symbols.Exclusive,
			Demangle:   p.table.Symbols.Demangle,
			MaxResults: p.maxResults,
		})
	}

	for _, s := range p.structures {
		found, err := analysis.RecoverAll(src, s.filter, s.layout)
		if err != nil {
			return nil, err
		}
		r.Structures = append(r.Structures, found...)
	}

	slog.Debug("Pass finished", "pass", p.Name(), "findings", r.Total(), "structures", len(r.Structures))
	if r.Strings != nil {
		slog.Debug("String scan", "pass", p.Name(),
			"sections", r.Strings.Stats.Sections,
			"bytes", r.Strings.Stats.BytesWalked,
			"candidates", r.Strings.Stats.Candidates,
			"stopped_early", r.Strings.Stats.StoppedEarly)
	}
	return r, nil
}
