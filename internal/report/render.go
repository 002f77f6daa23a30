package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/invopop/jsonschema"
)

// Format selects an output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a --format value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, markdown or json)", s)
}

// FormatForPath guesses a format from an output file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".md", ".markdown":
		return FormatMarkdown
	}
	return FormatText
}

// Render writes doc to w in the given format.
func Render(w io.Writer, doc *Document, f Format) error {
	var out []byte
	switch f {
	case FormatJSON:
		b, err := JSON(doc)
		if err != nil {
			return err
		}
		out = append(b, '\n')
	case FormatMarkdown:
		out = []byte(Markdown(doc))
	default:
		out = []byte(Text(doc))
	}
	_, err := w.Write(out)
	return err
}

// WriteFile renders doc into path, creating parent directories as needed.
func WriteFile(path string, doc *Document, f Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Render(fh, doc, f); err != nil {
		fh.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return fh.Close()
}

// JSON encodes doc as indented JSON.
func JSON(doc *Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// Schema returns the JSON schema of Document.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Document{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}

func fileLine(fi FileInfo) string {
	parts := []string{fi.Format}
	if fi.Arch != "" {
		parts = append(parts, fi.Arch)
	}
	if fi.Size > 0 {
		parts = append(parts, humanize.IBytes(uint64(fi.Size)))
	}
	return strings.Join(parts, ", ")
}

func countLabel(c CategoryResult) string {
	s := fmt.Sprintf("%d/%d", c.Count, c.Cap)
	if st := c.Status(); st != "" {
		s += ", " + st
	}
	return s
}

func absentLine(p PassResult) string {
	s := "verified absent"
	if n := len(p.Stats.Sections); n > 0 {
		s += fmt.Sprintf(": %d section(s), %s scanned", n, humanize.IBytes(p.Stats.BytesWalked))
	}
	return s
}

// absentCategories returns the ids of the categories of p that matched
// nothing in any of their scans.
func absentCategories(p PassResult) map[string]bool {
	found := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		if !c.Absent {
			found[c.ID] = true
		}
	}
	absent := make(map[string]bool)
	for _, c := range p.Categories {
		if c.Absent && !found[c.ID] {
			absent[c.ID] = true
		}
	}
	return absent
}

// categoryLines calls emit for every category worth printing: each one with
// matches, and the first entry of each verified absent category.
func categoryLines(p PassResult, emit func(c CategoryResult)) {
	absent := absentCategories(p)
	for _, c := range p.Categories {
		if c.Absent {
			if !absent[c.ID] {
				continue
			}
			delete(absent, c.ID)
		}
		emit(c)
	}
}

func absentCategoryLine(c CategoryResult) string {
	return fmt.Sprintf("%s (%d/%d): verified absent", c.Title, c.Count, c.Cap)
}

// Markdown renders doc as markdown.
func Markdown(doc *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage: %s\n\n", filepath.Base(doc.File.Path))
	fmt.Fprintf(&b, "`%s` (%s)\n\n", doc.File.Path, fileLine(doc.File))
	if doc.File.SHA256 != "" {
		fmt.Fprintf(&b, "sha256 `%s`\n\n", doc.File.SHA256)
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| pass | findings | status |\n|---|---:|---|\n")
	for _, p := range doc.Passes {
		status := ""
		if p.Absent {
			status = "verified absent"
		} else if p.Stats.StoppedEarly {
			status = "stopped at caps"
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", p.Title, p.Total, status)
	}
	fmt.Fprintf(&b, "\n**%d** finding(s) in %d pass(es)\n", doc.Total, len(doc.Passes))

	for _, p := range doc.Passes {
		fmt.Fprintf(&b, "\n## %s\n\n", p.Title)
		if p.Absent {
			fmt.Fprintf(&b, "_%s_\n", absentLine(p))
			continue
		}
		categoryLines(p, func(c CategoryResult) {
			if c.Absent {
				fmt.Fprintf(&b, "_%s_\n\n", absentCategoryLine(c))
				return
			}
			fmt.Fprintf(&b, "### %s (%s)\n\n", c.Title, countLabel(c))
			for _, m := range c.Matches {
				fmt.Fprintf(&b, "- `%s` %s", m.Address, mdEscape(m.Text))
				if m.Type != "" {
					fmt.Fprintf(&b, " *%s*", m.Type)
				}
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		})
		if len(p.Structures) > 0 {
			fmt.Fprintf(&b, "### Structures (%d)\n\n", len(p.Structures))
			for _, s := range p.Structures {
				fmt.Fprintf(&b, "- `%s` %s in %s\n", s.Address, s.Description, s.Section)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var mdReplacer = strings.NewReplacer(
	"\\", "\\\\", "`", "\\`", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]", "<", "&lt;", "|", "\\|",
)

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

// Text renders doc as plain text.
func Text(doc *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file:   %s (%s)\n", doc.File.Path, fileLine(doc.File))
	if doc.File.SHA256 != "" {
		fmt.Fprintf(&b, "sha256: %s\n", doc.File.SHA256)
	}
	fmt.Fprintf(&b, "total:  %d\n", doc.Total)

	for _, p := range doc.Passes {
		fmt.Fprintf(&b, "\n[%s] %s: %d\n", p.Name, p.Title, p.Total)
		if p.Absent {
			fmt.Fprintf(&b, "  %s\n", absentLine(p))
			continue
		}
		categoryLines(p, func(c CategoryResult) {
			if c.Absent {
				fmt.Fprintf(&b, "  %s\n", absentCategoryLine(c))
				return
			}
			fmt.Fprintf(&b, "  %s (%s)\n", c.Title, countLabel(c))
			for _, m := range c.Matches {
				fmt.Fprintf(&b, "    %-18s %s", m.Address, m.Text)
				if m.Type != "" {
					fmt.Fprintf(&b, "  [%s]", m.Type)
				}
				b.WriteByte('\n')
			}
		})
		for _, s := range p.Structures {
			fmt.Fprintf(&b, "  %-18s %s\n", s.Address, s.Description)
		}
	}
	return b.String()
}
