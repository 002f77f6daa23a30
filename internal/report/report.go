// Package report turns pass reports into a document that can be rendered as
// text, markdown or JSON.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"triage/internal/analysis"
)

// Scan kinds a category summary can come from.
const (
	ScanStrings = "strings"
	ScanSymbols = "symbols"
)

// Document is the complete result of triaging one file.
type Document struct {
	File        FileInfo     `json:"file"`
	Passes      []PassResult `json:"passes"`
	Total       int          `json:"total" jsonschema:"description=Findings over all passes"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// FileInfo identifies the scanned file.
type FileInfo struct {
	Path   string `json:"path"`
	Format string `json:"format" jsonschema:"enum=ELF,enum=Mach-O,enum=raw"`
	Arch   string `json:"arch,omitempty"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Name       string            `json:"name"`
	Title      string            `json:"title"`
	Total      int               `json:"total"`
	Absent     bool              `json:"verified_absent" jsonschema:"description=The pass ran and found nothing"`
	Categories []CategoryResult  `json:"categories"`
	Structures []StructureResult `json:"structures,omitempty"`
	Stats      Stats             `json:"stats"`
}

// CategoryResult holds the matches of one category from one scan.
type CategoryResult struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Scan      string  `json:"scan" jsonschema:"enum=strings,enum=symbols"`
	Count     int     `json:"count"`
	Cap       int     `json:"cap"`
	Full      bool    `json:"full"`
	Truncated bool    `json:"truncated" jsonschema:"description=Matches were dropped after the cap was reached"`
	Absent    bool    `json:"verified_absent" jsonschema:"description=The category was scanned and matched nothing"`
	Matches   []Entry `json:"matches"`
}

// Entry is one match.
type Entry struct {
	Address string `json:"address"`
	Text    string `json:"text"`
	Type    string `json:"type,omitempty"`
	Pattern string `json:"pattern"`
}

// StructureResult is one recovered structure candidate.
type StructureResult struct {
	Address     string            `json:"address"`
	Layout      string            `json:"layout"`
	Section     string            `json:"section"`
	Description string            `json:"description"`
	Fields      map[string]uint64 `json:"fields"`
}

// Stats describes the work behind a pass result.
type Stats struct {
	Sections     []string `json:"sections"`
	BytesWalked  uint64   `json:"bytes_walked"`
	Strings      int      `json:"strings"`
	Symbols      int      `json:"symbols"`
	StoppedEarly bool     `json:"stopped_early"`
}

// Status returns the marker shown next to a category: "truncated" when matches
// were dropped, "cap reached" when the scan stopped at the cap, otherwise "".
func (c CategoryResult) Status() string {
	switch {
	case c.Truncated:
		return "truncated"
	case c.Full:
		return "cap reached"
	}
	return ""
}

// New builds a document from the reports of a pass chain run.
func New(file FileInfo, reports []*analysis.Report) *Document {
	doc := &Document{
		File:        file,
		Passes:      make([]PassResult, 0, len(reports)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, r := range reports {
		pr := newPassResult(r)
		doc.Total += pr.Total
		doc.Passes = append(doc.Passes, pr)
	}
	return doc
}

func newPassResult(r *analysis.Report) PassResult {
	pr := PassResult{
		Name:   r.Pass,
		Title:  r.Title,
		Total:  r.Total(),
		Absent: r.Empty(),
	}
	if r.Strings != nil {
		pr.Categories = append(pr.Categories, categories(r.Strings, ScanStrings)...)
		pr.Stats.Sections = r.Strings.Stats.Sections
		pr.Stats.BytesWalked = r.Strings.Stats.BytesWalked
		pr.Stats.Strings = r.Strings.Stats.Candidates
		pr.Stats.StoppedEarly = r.Strings.Stats.StoppedEarly
	}
	if r.Symbols != nil {
		pr.Categories = append(pr.Categories, categories(r.Symbols, ScanSymbols)...)
		pr.Stats.Symbols = r.Symbols.Stats.Candidates
	}
	for _, c := range r.Structures {
		fields := make(map[string]uint64, len(c.Values))
		for k, v := range c.Values {
			fields[k] = v
		}
		pr.Structures = append(pr.Structures, StructureResult{
			Address:     hexAddr(c.Address),
			Layout:      c.Layout,
			Section:     c.Section,
			Description: c.Description,
			Fields:      fields,
		})
	}
	return pr
}

func categories(rs *analysis.ResultSet, scan string) []CategoryResult {
	ids := rs.Categories()
	out := make([]CategoryResult, 0, len(ids))
	for _, id := range ids {
		matches := rs.Matches(id)
		cr := CategoryResult{
			ID:        string(id),
			Title:     rs.Title(id),
			Scan:      scan,
			Count:     len(matches),
			Cap:       rs.Cap(id),
			Full:      rs.Full(id),
			Truncated: rs.Truncated(id),
			Absent:    len(matches) == 0,
			Matches:   make([]Entry, 0, len(matches)),
		}
		for _, m := range matches {
			cr.Matches = append(cr.Matches, Entry{
				Address: hexAddr(m.Address),
				Text:    m.Text,
				Type:    m.Type,
				Pattern: m.Pattern,
			})
		}
		out = append(out, cr)
	}
	return out
}

func hexAddr(a uint64) string {
	return fmt.Sprintf("%#x", a)
}

// NewFileInfo stats and hashes the file at path.
func NewFileInfo(path, format, arch string) (FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileInfo{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return FileInfo{
		Path:   path,
		Format: format,
		Arch:   arch,
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
