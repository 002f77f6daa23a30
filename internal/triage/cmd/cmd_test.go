package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/internal/analysis"
	"triage/internal/loader"
	"triage/internal/report"
)

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleBinary(t *testing.T) string {
	blob := []byte("\x00\x00https://c2.example/beacon\x00\x7fjunk\x00ptrace\x00VMware Tools\x00")
	return writeFile(t, "sample.bin", blob)
}

func TestScanJSON(t *testing.T) {
	path := sampleBinary(t)
	out, err := runCommand(t, "scan", "-q", "--type", "raw", "--format", "json", "--output", "", path, "network", "antianalysis")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	var doc report.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	if doc.File.Format != "raw" {
		t.Errorf("format = %q, want raw", doc.File.Format)
	}
	if len(doc.Passes) != 2 || doc.Passes[0].Name != "network" || doc.Passes[1].Name != "antianalysis" {
		t.Fatalf("passes = %+v", doc.Passes)
	}

	found := false
	for _, c := range doc.Passes[0].Categories {
		for _, m := range c.Matches {
			if m.Text == "https://c2.example/beacon" && m.Type == "HTTPS" && m.Address == "0x2" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("URL not reported by the network pass: %+v", doc.Passes[0].Categories)
	}
	if doc.Passes[1].Absent || doc.Passes[1].Total == 0 {
		t.Errorf("antianalysis pass found nothing: %+v", doc.Passes[1])
	}
}

func TestScanText(t *testing.T) {
	path := sampleBinary(t)
	out, err := runCommand(t, "scan", "-q", "--type", "raw", "--format", "text", "--output", "", path, "rootkit")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "[rootkit]") || !strings.Contains(out, "verified absent") {
		t.Errorf("unexpected text report:\n%s", out)
	}
}

func TestScanWritesFile(t *testing.T) {
	path := sampleBinary(t)
	dest := filepath.Join(t.TempDir(), "out", "report.md")
	if _, err := runCommand(t, "scan", "-q", "--type", "raw", "--format", "markdown", "--output", dest, path, "network"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "# Triage: sample.bin") {
		t.Errorf("unexpected markdown report:\n%s", b)
	}
}

func TestScanErrors(t *testing.T) {
	path := sampleBinary(t)
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown pass", []string{"scan", "-q", "--type", "raw", "--format", "text", "--output", "", path, "nope"}},
		{"unknown format", []string{"scan", "-q", "--type", "raw", "--format", "yaml", "--output", "", path}},
		{"undetected binary", []string{"scan", "-q", "--type", "auto", "--format", "text", "--output", "", path}},
		{"missing file", []string{"scan", "-q", "--type", "raw", "--format", "text", "--output", "", filepath.Join(t.TempDir(), "missing")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := runCommand(t, tc.args...); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestPassesCommand(t *testing.T) {
	out, err := runCommand(t, "passes", "--verbose=false")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"network", "machipc", "net_urls", "net_ips", "mig_subsystem"} {
		if !strings.Contains(out, want) {
			t.Errorf("passes output missing %q", want)
		}
	}
}

func TestDebugFlagLeavesEnvironment(t *testing.T) {
	t.Setenv("TRIAGE_LOG_LEVEL", "info")
	t.Cleanup(func() { rootCmd.PersistentFlags().Set("debug", "false") })

	if _, err := runCommand(t, "passes", "--debug", "--verbose=false"); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("TRIAGE_LOG_LEVEL"); got != "info" {
		t.Errorf("TRIAGE_LOG_LEVEL = %q after --debug, want info", got)
	}
}

func TestStringsCommand(t *testing.T) {
	path := sampleBinary(t)
	out, err := runCommand(t, "strings", "--type", "raw", "--sections", "strings", "--min-length", "4", "--section=false", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`0x2: "https://c2.example/beacon"`, `"ptrace"`, `"VMware Tools"`} {
		if !strings.Contains(out, want) {
			t.Errorf("strings output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\\x7f") {
		t.Errorf("non-printable byte reported:\n%s", out)
	}
}

func TestMigCommand(t *testing.T) {
	buf := make([]byte, 256)
	rec := buf[64:]
	binary.LittleEndian.PutUint64(rec[0:], 0xfffffff007000000)
	binary.LittleEndian.PutUint32(rec[8:], 0xc80)
	binary.LittleEndian.PutUint32(rec[12:], 0xc84)
	binary.LittleEndian.PutUint32(rec[16:], 0x100)
	binary.LittleEndian.PutUint64(rec[32:], 0xfffffff007001000)
	path := writeFile(t, "mig.bin", buf)

	out, err := runCommand(t, "mig", "--type", "raw", "--sections", "const", "--json", path)
	if err != nil {
		t.Fatal(err)
	}
	var subs []analysis.MIGSubsystem
	if err := json.Unmarshal([]byte(out), &subs); err != nil {
		t.Fatalf("bad JSON: %v\n%s", err, out)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subsystems, want 1: %+v", len(subs), subs)
	}
	if s := subs[0]; s.Address != 64 || s.Name != "mach_port" || s.MsgCount != 4 || s.MaxSize != 0x100 {
		t.Errorf("subsystem = %+v", s)
	}
}

func TestSchemaFor(t *testing.T) {
	testCases := []struct {
		which   string
		want    string
		wantErr bool
	}{
		{"config", "max_results", false},
		{"report", "verified_absent", false},
		{"table", "max_results", false},
		{"bogus", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.which, func(t *testing.T) {
			b, err := schemaFor(tc.which)
			if (err != nil) != tc.wantErr {
				t.Fatalf("schemaFor(%q) error = %v", tc.which, err)
			}
			if !tc.wantErr && !json.Valid(b) {
				t.Errorf("schema is not valid JSON")
			}
			if !bytes.Contains(b, []byte(tc.want)) {
				t.Errorf("schema missing %q", tc.want)
			}
		})
	}
}

func TestLogsCommand(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "triage-20240101-000000-debug.log")
	newer := filepath.Join(dir, "triage-20250101-000000-debug.log")
	os.WriteFile(older, []byte("old run\n"), 0o644)
	os.WriteFile(newer, []byte("new run\n"), 0o644)

	out, err := runCommand(t, "logs", "--follow=false", "--dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	if out != "new run\n" {
		t.Errorf("logs printed %q, want the newest file", out)
	}

	if _, err := runCommand(t, "logs", "--follow=false", "--dir", t.TempDir()); err == nil {
		t.Errorf("expected error for an empty log dir")
	}
}

func TestModelLifecycle(t *testing.T) {
	path := sampleBinary(t)
	opts := options{noColor: true}
	opts.open.Format = loader.FormatRaw

	m := NewModel(t.Context(), path, []string{"network"}, opts)
	if !m.loading || m.doc != nil {
		t.Fatalf("new model should be loading")
	}

	doc, err := analyze(t.Context(), path, []string{"network"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	next, _ := m.Update(analysisMsg{doc: doc})
	m = next.(model)
	if m.loading || m.doc == nil {
		t.Fatalf("model did not take the analysis result")
	}
	if got := len(m.passList.Items()); got != 1 {
		t.Errorf("pass list has %d items, want 1", got)
	}
	if !strings.Contains(m.View(), "P: passes") {
		t.Errorf("menu missing after load:\n%s", m.View())
	}
}
