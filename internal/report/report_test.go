package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/internal/analysis"
)

func sampleReports() []*analysis.Report {
	cats := []analysis.Category{
		{ID: "url", Title: "URLs", MaxResults: 2},
		{ID: "ip", Title: "IP addresses"},
	}
	strs := analysis.NewResultSet(cats, 0)
	strs.Add(analysis.Match{Address: 0x1000, Text: "http://a.example/x", Category: "url", Type: "http", Pattern: "http://"})
	strs.Add(analysis.Match{Address: 0x1020, Text: "http://b.example/*", Category: "url", Pattern: "http://"})
	strs.Add(analysis.Match{Address: 0x1040, Text: "http://c.example", Category: "url", Pattern: "http://"})
	strs.Stats.Sections = []string{"__TEXT.__cstring"}
	strs.Stats.BytesWalked = 4096
	strs.Stats.Candidates = 3

	network := &analysis.Report{Pass: "network", Title: "Network activity", Strings: strs}

	empty := analysis.NewResultSet([]analysis.Category{{ID: "debugger", Title: "Debugger checks"}}, 0)
	empty.Stats.Sections = []string{"__TEXT.__cstring", "__TEXT.__const"}
	empty.Stats.BytesWalked = 2048
	anti := &analysis.Report{Pass: "antianalysis", Title: "Anti-analysis", Strings: empty}

	mig := &analysis.Report{
		Pass:  "machipc",
		Title: "Mach IPC",
		Structures: []analysis.Candidate{{
			Record: analysis.Record{
				Address: 0x4000,
				Layout:  "mig_subsystem",
				Values:  map[string]uint64{"start": 0xc80, "end": 0xc84},
			},
			Section:     "__DATA_CONST.__const",
			Description: "mach_port: msg ids 3200-3203",
		}},
	}
	return []*analysis.Report{network, anti, mig}
}

func sampleDoc() *Document {
	return New(FileInfo{Path: "/tmp/sample", Format: "Mach-O", Arch: "arm64", Size: 1 << 20}, sampleReports())
}

func TestNew(t *testing.T) {
	doc := sampleDoc()
	if doc.Total != 3 {
		t.Errorf("Total = %d, want 3", doc.Total)
	}
	if len(doc.Passes) != 3 {
		t.Fatalf("len(Passes) = %d, want 3", len(doc.Passes))
	}

	net := doc.Passes[0]
	if net.Absent {
		t.Errorf("network pass marked absent")
	}
	url := net.Categories[0]
	if url.Count != 2 || url.Cap != 2 || !url.Full || !url.Truncated {
		t.Errorf("url category = %+v", url)
	}
	if url.Matches[0].Address != "0x1000" || url.Matches[0].Type != "http" {
		t.Errorf("first match = %+v", url.Matches[0])
	}
	if ip := net.Categories[1]; ip.Count != 0 || !ip.Absent || ip.Cap != analysis.DefaultMaxResults || ip.Status() != "" {
		t.Errorf("ip category = %+v", ip)
	}

	if !doc.Passes[1].Absent {
		t.Errorf("antianalysis pass should be verified absent")
	}
	if s := doc.Passes[2].Structures; len(s) != 1 || s[0].Fields["start"] != 0xc80 {
		t.Errorf("structures = %+v", s)
	}
}

func TestCategoryStatus(t *testing.T) {
	testCases := []struct {
		name string
		c    CategoryResult
		want string
	}{
		{"open", CategoryResult{Count: 1, Cap: 5}, ""},
		{"full", CategoryResult{Count: 5, Cap: 5, Full: true}, "cap reached"},
		{"dropped", CategoryResult{Count: 5, Cap: 5, Full: true, Truncated: true}, "truncated"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.Status(); got != tc.want {
				t.Errorf("Status() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleDoc())
	for _, want := range []string{
		"# Triage: sample",
		"| Network activity | 2 |",
		"### URLs (2/2, truncated)",
		"_IP addresses (0/50): verified absent_",
		"- `0x1000` http://a.example/x *http*",
		`http://b.example/\*`,
		"_verified absent: 2 section(s), 2.0 KiB scanned_",
		"### Structures (1)",
		"mach_port: msg ids 3200-3203 in __DATA_CONST.__const",
		"Mach-O, arm64, 1.0 MiB",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Index(md, "IP addresses") < strings.Index(md, "### URLs") {
		t.Errorf("absent category rendered before the category with findings")
	}
}

func TestAbsentCategoryAcrossScans(t *testing.T) {
	p := PassResult{Categories: []CategoryResult{
		{ID: "tls", Title: "TLS / SSL", Scan: ScanStrings, Cap: 50, Absent: true},
		{ID: "objc", Title: "Foundation", Scan: ScanStrings, Count: 1, Cap: 50, Matches: []Entry{{Address: "0x10", Text: "NSURLSession"}}},
		{ID: "tls", Title: "TLS / SSL", Scan: ScanSymbols, Cap: 50, Absent: true},
		{ID: "objc", Title: "Foundation", Scan: ScanSymbols, Cap: 50, Absent: true},
	}}
	doc := &Document{Passes: []PassResult{p}, Total: 1}

	for name, out := range map[string]string{"markdown": Markdown(doc), "text": Text(doc)} {
		t.Run(name, func(t *testing.T) {
			if n := strings.Count(out, "TLS / SSL (0/50): verified absent"); n != 1 {
				t.Errorf("tls absent line rendered %d times\n%s", n, out)
			}
			if strings.Contains(out, "Foundation (0/50)") {
				t.Errorf("category with findings in another scan rendered as absent\n%s", out)
			}
		})
	}
}

func TestText(t *testing.T) {
	txt := Text(sampleDoc())
	for _, want := range []string{
		"[network] Network activity: 2",
		"  URLs (2/2, truncated)",
		"  IP addresses (0/50): verified absent",
		"[antianalysis] Anti-analysis: 0",
		"verified absent",
		"[http]",
	} {
		if !strings.Contains(txt, want) {
			t.Errorf("text missing %q\n%s", want, txt)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	b, err := JSON(sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	var got Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Total != 3 || got.Passes[1].Absent != true || got.Passes[0].Categories[0].Truncated != true {
		t.Errorf("decoded document = %+v", got)
	}
	if !bytes.Contains(b, []byte(`"verified_absent": true`)) {
		t.Errorf("JSON missing verified_absent field")
	}
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"MD", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"yaml", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
	if FormatForPath("out/r.json") != FormatJSON || FormatForPath("r.md") != FormatMarkdown || FormatForPath("r.log") != FormatText {
		t.Errorf("FormatForPath mismatch")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	if err := WriteFile(path, sampleDoc(), FormatJSON); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(b) {
		t.Errorf("written report is not valid JSON")
	}
}

func TestNewFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := NewFileInfo(path, "raw", "")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size != 3 {
		t.Errorf("Size = %d, want 3", fi.Size)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if fi.SHA256 != want {
		t.Errorf("SHA256 = %s, want %s", fi.SHA256, want)
	}
	if _, err := NewFileInfo(filepath.Join(t.TempDir(), "missing"), "raw", ""); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestSchema(t *testing.T) {
	b, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"verified_absent", "matches", "sha256"} {
		if !bytes.Contains(b, []byte(want)) {
			t.Errorf("schema missing %q", want)
		}
	}
}
