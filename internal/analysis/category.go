package analysis

// CategoryID names a bucket of matches sharing a security theme.
type CategoryID string

// Category is one detection category of a pass.
type Category struct {
	ID         CategoryID
	Title      string
	Patterns   PatternSet
	Matcher    Matcher    // optional, tried after Patterns
	Types      *TypeRules // optional type inference
	MaxResults int        // <= 0 means the scan default
}

// classify tests every form of a candidate against c and returns the matched
// pattern and the form that matched it.
func (c Category) classify(forms []string) (pattern, form string, ok bool) {
	for _, f := range forms {
		if p, hit := c.Patterns.Match(f); hit {
			return p, f, true
		}
		if c.Matcher != nil {
			if p, hit := c.Matcher.Match(f); hit {
				return p, f, true
			}
		}
	}
	return "", "", false
}

// Match is one classified string or symbol.
type Match struct {
	Address  uint64
	Text     string
	Category CategoryID
	Type     string // empty when the category has no type rules
	Pattern  string // the pattern that selected the match
}

// ScanStats describes the work done by a single scan.
type ScanStats struct {
	Sections     []string // "segment.section" names that were walked
	BytesWalked  uint64
	Candidates   int  // strings or symbol names extracted
	StoppedEarly bool // every category reached its cap before the walk ended
}

func (s *ScanStats) addSection(sec Section) {
	s.Sections = append(s.Sections, sec.FullName())
	s.BytesWalked += sec.Size()
}

// ResultSet accumulates matches per category, each capped independently.
// Once a category is full further matches are dropped, not sampled.
type ResultSet struct {
	order   []CategoryID
	titles  map[CategoryID]string
	caps    map[CategoryID]int
	matches map[CategoryID][]Match
	dropped map[CategoryID]int
	seen    map[CategoryID]map[uint64]struct{}

	Stats ScanStats
}

// NewResultSet prepares an empty result set for categories. defaultCap applies
// to categories without their own cap; <= 0 selects DefaultMaxResults.
func NewResultSet(categories []Category, defaultCap int) *ResultSet {
	if defaultCap <= 0 {
		defaultCap = DefaultMaxResults
	}
	rs := &ResultSet{
		titles:  make(map[CategoryID]string, len(categories)),
		caps:    make(map[CategoryID]int, len(categories)),
		matches: make(map[CategoryID][]Match, len(categories)),
		dropped: make(map[CategoryID]int),
		seen:    make(map[CategoryID]map[uint64]struct{}, len(categories)),
	}
	for _, c := range categories {
		if _, dup := rs.caps[c.ID]; dup {
			continue
		}
		limit := c.MaxResults
		if limit <= 0 {
			limit = defaultCap
		}
		rs.order = append(rs.order, c.ID)
		rs.titles[c.ID] = c.Title
		rs.caps[c.ID] = limit
		rs.seen[c.ID] = make(map[uint64]struct{})
	}
	return rs
}

// Add records m unless its category is unknown or full, or the address was
// already recorded for that category.
func (rs *ResultSet) Add(m Match) bool {
	limit, known := rs.caps[m.Category]
	if !known {
		return false
	}
	if _, dup := rs.seen[m.Category][m.Address]; dup {
		return false
	}
	if len(rs.matches[m.Category]) >= limit {
		rs.dropped[m.Category]++
		return false
	}
	rs.seen[m.Category][m.Address] = struct{}{}
	rs.matches[m.Category] = append(rs.matches[m.Category], m)
	return true
}

// Categories returns the category ids in declared order.
func (rs *ResultSet) Categories() []CategoryID {
	return append([]CategoryID(nil), rs.order...)
}

// Title returns the human readable title of a category.
func (rs *ResultSet) Title(id CategoryID) string {
	if t := rs.titles[id]; t != "" {
		return t
	}
	return string(id)
}

// Matches returns the recorded matches of a category in scan order.
func (rs *ResultSet) Matches(id CategoryID) []Match {
	return rs.matches[id]
}

// Count returns the number of matches recorded for a category.
func (rs *ResultSet) Count(id CategoryID) int {
	return len(rs.matches[id])
}

// Cap returns the cap of a category.
func (rs *ResultSet) Cap(id CategoryID) int {
	return rs.caps[id]
}

// Full reports whether a category reached its cap.
func (rs *ResultSet) Full(id CategoryID) bool {
	limit, ok := rs.caps[id]
	return ok && len(rs.matches[id]) >= limit
}

// AllFull reports whether every category reached its cap.
func (rs *ResultSet) AllFull() bool {
	for _, id := range rs.order {
		if !rs.Full(id) {
			return false
		}
	}
	return true
}

// Truncated reports whether matches were dropped because the category was full.
func (rs *ResultSet) Truncated(id CategoryID) bool {
	return rs.dropped[id] > 0
}

// Total returns the number of matches over all categories.
func (rs *ResultSet) Total() int {
	n := 0
	for _, id := range rs.order {
		n += len(rs.matches[id])
	}
	return n
}

// record classifies one candidate into rs. With exclusive set only the first
// matching category, in declared order, receives it.
func (rs *ResultSet) record(categories []Category, exclusive bool, addr uint64, text string, forms []string) {
	for _, c := range categories {
		pattern, form, ok := c.classify(forms)
		if !ok {
			continue
		}
		m := Match{Address: addr, Text: text, Category: c.ID, Pattern: pattern}
		if c.Types != nil {
			m.Type, _ = c.Types.Infer(form)
		}
		rs.Add(m)
		if exclusive {
			return
		}
	}
}
