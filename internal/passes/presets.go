package passes

import (
	"fmt"
	"sort"

	"triage/internal/analysis"
)

// Section presets usable from a table's "sections" key.
const (
	PresetStrings      = "strings"
	PresetConst        = "const"
	PresetStringsConst = "strings+const"
	PresetAll          = "all"
)

var (
	stringSections = analysis.AnyFilter(
		analysis.ContainsFilter("string"),
		analysis.NameFilter(".rodata"),
	)
	constSections = analysis.NameFilter("__const", ".rodata", ".data.rel.ro")

	presets = map[string]analysis.SectionFilter{
		PresetStrings:      stringSections,
		PresetConst:        constSections,
		PresetStringsConst: analysis.AnyFilter(stringSections, constSections),
		PresetAll:          analysis.AllSections,
	}
)

// SectionPreset returns the filter for a preset name. Every preset also
// accepts the single section of a raw image, which has no section names to
// select by. An empty name selects PresetStrings.
func SectionPreset(name string) (analysis.SectionFilter, error) {
	if name == "" {
		name = PresetStrings
	}
	f, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown section preset %q", name)
	}
	return func(s analysis.Section) bool {
		return s.Name == analysis.RawSection || f(s)
	}, nil
}

// PresetNames lists the known section presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
