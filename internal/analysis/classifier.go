package analysis

import (
	"net"
	"strings"
)

// PatternSet is an ordered list of literal substrings defining one category.
type PatternSet struct {
	Patterns []string
	FoldCase bool // compare case-insensitively (credential keywords)
}

// Match returns the first pattern, in declared order, that is a substring of text.
func (ps PatternSet) Match(text string) (string, bool) {
	if ps.FoldCase {
		text = strings.ToLower(text)
	}
	for _, p := range ps.Patterns {
		if p == "" {
			continue
		}
		needle := p
		if ps.FoldCase {
			needle = strings.ToLower(p)
		}
		if strings.Contains(text, needle) {
			return p, true
		}
	}
	return "", false
}

// Contains reports whether any pattern of the set is a substring of text.
func (ps PatternSet) Contains(text string) bool {
	_, ok := ps.Match(text)
	return ok
}

// Matcher selects strings that literal patterns cannot describe. Match returns
// the matched fragment of text.
type Matcher interface {
	Match(text string) (string, bool)
}

// IPv4Matcher matches strings embedding a dotted-quad IPv4 address.
type IPv4Matcher struct{}

// Match returns the first dotted quad of text that parses as an IPv4 address.
// Runs of digits and dots longer than an address, such as version strings
// like 1.2.3.4.5, are not split.
func (IPv4Matcher) Match(text string) (string, bool) {
	for i := 0; i < len(text); {
		if !isIPv4Byte(text[i]) {
			i++
			continue
		}
		j := i
		for j < len(text) && isIPv4Byte(text[j]) {
			j++
		}
		run := strings.Trim(text[i:j], ".")
		i = j
		if strings.Count(run, ".") != 3 {
			continue
		}
		if ip := net.ParseIP(run); ip != nil && ip.To4() != nil {
			return run, true
		}
	}
	return "", false
}

func isIPv4Byte(b byte) bool {
	return b == '.' || (b >= '0' && b <= '9')
}

// TypeRule maps a secondary substring to a type label.
type TypeRule struct {
	Pattern string
	Label   string
}

// TypeRules infers a finer-grained type for a matched string.
//
// Rules are checked in declared order and the first hit wins, so vendor
// specific patterns must come before generic ones ("VMware" before "ware").
type TypeRules struct {
	Rules    []TypeRule
	Fallback string
}

// Infer returns the label of the first rule whose pattern is a substring of
// text, or the fallback label. ok is false only when nothing matched and no
// fallback is configured.
func (tr TypeRules) Infer(text string) (string, bool) {
	for _, r := range tr.Rules {
		if r.Pattern != "" && strings.Contains(text, r.Pattern) {
			return r.Label, true
		}
	}
	if tr.Fallback != "" {
		return tr.Fallback, true
	}
	return "", false
}
