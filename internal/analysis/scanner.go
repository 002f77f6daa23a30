package analysis

import "strings"

// SectionFilter selects the sections a scan walks.
type SectionFilter func(Section) bool

// AllSections accepts every section.
func AllSections(Section) bool { return true }

// ContainsFilter accepts sections whose name contains any of subs.
func ContainsFilter(subs ...string) SectionFilter {
	return func(s Section) bool {
		for _, sub := range subs {
			if sub != "" && strings.Contains(s.Name, sub) {
				return true
			}
		}
		return false
	}
}

// NameFilter accepts sections whose name equals one of names.
func NameFilter(names ...string) SectionFilter {
	return func(s Section) bool {
		for _, n := range names {
			if s.Name == n {
				return true
			}
		}
		return false
	}
}

// AnyFilter accepts a section accepted by at least one of filters.
func AnyFilter(filters ...SectionFilter) SectionFilter {
	return func(s Section) bool {
		for _, f := range filters {
			if f != nil && f(s) {
				return true
			}
		}
		return false
	}
}

// StringScan configures ScanStrings.
type StringScan struct {
	Sections   SectionFilter // nil walks every section
	Categories []Category
	Extract    ExtractOptions
	Exclusive  bool // a string lands in the first matching category only
	MaxResults int  // cap for categories without one
}

// ScanStrings walks the selected sections in source order, extracts printable
// strings and classifies each against every category.
//
// The walk stops as soon as every category is full. A section shorter than the
// minimum string length is never read.
func ScanStrings(src ByteSource, cfg StringScan) *ResultSet {
	rs := NewResultSet(cfg.Categories, cfg.MaxResults)
	if len(rs.order) == 0 {
		return rs
	}

	extract := cfg.Extract.withDefaults()
	filter := cfg.Sections
	if filter == nil {
		filter = AllSections
	}

	for _, seg := range src.Segments() {
		for _, sec := range seg.Sections {
			if rs.AllFull() {
				rs.Stats.StoppedEarly = true
				return rs
			}
			if !filter(sec) {
				continue
			}
			scanSection(src, sec, extract, cfg, rs)
		}
	}
	rs.Stats.StoppedEarly = rs.AllFull()
	return rs
}

func scanSection(src ByteSource, sec Section, extract ExtractOptions, cfg StringScan, rs *ResultSet) {
	rs.Stats.addSection(sec)
	walkSection(src, sec, extract, func(addr uint64, text string) bool {
		rs.Stats.Candidates++
		rs.record(cfg.Categories, cfg.Exclusive, addr, text, []string{text})
		return !rs.AllFull()
	})
}

// walkSection calls fn for every string in sec until fn returns false.
func walkSection(src ByteSource, sec Section, extract ExtractOptions, fn func(addr uint64, text string) bool) {
	probe := uint64(extract.MinLength)
	if sec.Size() <= probe {
		return
	}
	limit := sec.End - probe

	for addr := sec.Start; addr < limit; {
		text, ok := ExtractString(src, addr, sec.End, extract)
		if !ok {
			addr++
			continue
		}
		if !fn(addr, text) {
			return
		}
		addr += uint64(len(text)) + 1
	}
}

// WalkStrings extracts every string of the sections accepted by filter, in
// source order, without classifying them. It stops when fn returns false.
func WalkStrings(src ByteSource, filter SectionFilter, opts ExtractOptions, fn func(sec Section, addr uint64, text string) bool) {
	if filter == nil {
		filter = AllSections
	}
	opts = opts.withDefaults()
	for _, seg := range src.Segments() {
		for _, sec := range seg.Sections {
			if !filter(sec) {
				continue
			}
			stopped := false
			walkSection(src, sec, opts, func(addr uint64, text string) bool {
				if !fn(sec, addr, text) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}
	}
}
