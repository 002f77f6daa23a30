package passes

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"triage/internal/analysis"
)

// ErrInvalidTable is returned for a pattern table that cannot be used.
var ErrInvalidTable = errors.New("invalid pattern table")

// Where a category's patterns are matched.
const (
	ScanStrings = "strings"
	ScanSymbols = "symbols"
	ScanBoth    = "both"
)

// Table is the YAML form of one pass.
type Table struct {
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Strings    StringsConfig    `yaml:"strings" json:"strings"`
	Symbols    SymbolsConfig    `yaml:"symbols" json:"symbols"`
	Categories []CategoryTable  `yaml:"categories" json:"categories"`
	Structures []StructureTable `yaml:"structures,omitempty" json:"structures,omitempty"`
}

// StringsConfig controls the string scan of a pass.
type StringsConfig struct {
	Sections   string `yaml:"sections" json:"sections" jsonschema:"enum=strings,enum=const,enum=strings+const,enum=all"`
	MinLength  int    `yaml:"min_length" json:"min_length,omitempty"`
	MaxLength  int    `yaml:"max_length" json:"max_length,omitempty"`
	Whitespace bool   `yaml:"whitespace" json:"whitespace,omitempty"`
	Exclusive  bool   `yaml:"exclusive" json:"exclusive,omitempty"`
}

// SymbolsConfig controls the symbol scan of a pass.
type SymbolsConfig struct {
	Stride    uint64 `yaml:"stride" json:"stride,omitempty"`
	Demangle  bool   `yaml:"demangle" json:"demangle,omitempty"`
	Exclusive bool   `yaml:"exclusive" json:"exclusive,omitempty"`
}

// CategoryTable is one category of a pass.
type CategoryTable struct {
	ID         string     `yaml:"id" json:"id"`
	Title      string     `yaml:"title" json:"title"`
	Scan       string     `yaml:"scan,omitempty" json:"scan,omitempty" jsonschema:"enum=strings,enum=symbols,enum=both"`
	MaxResults int        `yaml:"max_results,omitempty" json:"max_results,omitempty"`
	FoldCase   bool       `yaml:"fold_case,omitempty" json:"fold_case,omitempty"`
	Patterns   []string   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Matcher    string     `yaml:"matcher,omitempty" json:"matcher,omitempty" jsonschema:"enum=ipv4"`
	Types      *TypeTable `yaml:"types,omitempty" json:"types,omitempty"`
}

// TypeTable is the YAML form of analysis.TypeRules.
type TypeTable struct {
	Fallback string          `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Rules    []TypeRuleTable `yaml:"rules" json:"rules"`
}

// TypeRuleTable maps a secondary substring to a type label.
type TypeRuleTable struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Label   string `yaml:"label" json:"label"`
}

// StructureTable enables a structure recovery scan.
type StructureTable struct {
	Layout      string `yaml:"layout" json:"layout" jsonschema:"enum=mig_subsystem"`
	Sections    string `yaml:"sections" json:"sections"`
	MaxStartID  uint64 `yaml:"max_start_id,omitempty" json:"max_start_id,omitempty"`
	MaxRoutines uint64 `yaml:"max_routines,omitempty" json:"max_routines,omitempty"`
}

// ParseTable decodes and validates one YAML table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks a table for problems that would make its pass meaningless.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTable)
	}
	if len(t.Categories) == 0 && len(t.Structures) == 0 {
		return fmt.Errorf("%w: %s: no categories or structures", ErrInvalidTable, t.Name)
	}
	if _, err := SectionPreset(t.Strings.Sections); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTable, t.Name, err)
	}

	ids := make(map[string]bool, len(t.Categories))
	for _, c := range t.Categories {
		if c.ID == "" {
			return fmt.Errorf("%w: %s: category without id", ErrInvalidTable, t.Name)
		}
		if ids[c.ID] {
			return fmt.Errorf("%w: %s: duplicate category %s", ErrInvalidTable, t.Name, c.ID)
		}
		ids[c.ID] = true

		switch c.Scan {
		case "", ScanStrings, ScanSymbols, ScanBoth:
		default:
			return fmt.Errorf("%w: %s.%s: unknown scan %q", ErrInvalidTable, t.Name, c.ID, c.Scan)
		}
		if c.Matcher != "" {
			if _, ok := matchers[c.Matcher]; !ok {
				return fmt.Errorf("%w: %s.%s: unknown matcher %q", ErrInvalidTable, t.Name, c.ID, c.Matcher)
			}
		} else if len(c.Patterns) == 0 {
			return fmt.Errorf("%w: %s.%s: no patterns", ErrInvalidTable, t.Name, c.ID)
		}
		for _, p := range c.Patterns {
			if p == "" {
				return fmt.Errorf("%w: %s.%s: empty pattern", ErrInvalidTable, t.Name, c.ID)
			}
		}
	}

	for _, s := range t.Structures {
		if _, ok := layouts[s.Layout]; !ok {
			return fmt.Errorf("%w: %s: unknown layout %q", ErrInvalidTable, t.Name, s.Layout)
		}
		if _, err := SectionPreset(s.Sections); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTable, t.Name, err)
		}
	}
	return nil
}

// layouts builds the structure layouts a table may name.
var layouts = map[string]func(StructureTable) analysis.Layout{
	"mig_subsystem": func(s StructureTable) analysis.Layout {
		limits := analysis.DefaultMIGLimits()
		if s.MaxStartID > 0 {
			limits.MaxStartID = s.MaxStartID
		}
		if s.MaxRoutines > 0 {
			limits.MaxRoutines = s.MaxRoutines
		}
		return analysis.MIGSubsystemLayout(limits)
	},
}

// matchers are the non-literal matchers a category may name.
var matchers = map[string]analysis.Matcher{
	"ipv4": analysis.IPv4Matcher{},
}

func (c CategoryTable) category() analysis.Category {
	cat := analysis.Category{
		ID:         analysis.CategoryID(c.ID),
		Title:      c.Title,
		Patterns:   analysis.PatternSet{Patterns: append([]string(nil), c.Patterns...), FoldCase: c.FoldCase},
		Matcher:    matchers[c.Matcher],
		MaxResults: c.MaxResults,
	}
	if c.Types != nil {
		rules := &analysis.TypeRules{Fallback: c.Types.Fallback}
		for _, r := range c.Types.Rules {
			rules.Rules = append(rules.Rules, analysis.TypeRule{Pattern: r.Pattern, Label: r.Label})
		}
		cat.Types = rules
	}
	return cat
}

func (c CategoryTable) scansStrings() bool {
	return c.Scan == "" || c.Scan == ScanStrings || c.Scan == ScanBoth
}

func (c CategoryTable) scansSymbols() bool {
	return c.Scan == ScanSymbols || c.Scan == ScanBoth
}
