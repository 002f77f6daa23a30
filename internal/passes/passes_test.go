package passes

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"triage/internal/analysis"
	"triage/internal/rawimg"
)

func builtin(t *testing.T) *Registry {
	t.Helper()
	reg, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	return reg
}

func TestBuiltinTables(t *testing.T) {
	reg := builtin(t)
	if !reflect.DeepEqual(reg.Names(), builtinOrder) {
		t.Fatalf("Names() = %v, want %v", reg.Names(), builtinOrder)
	}

	for _, p := range reg.All() {
		t.Run(p.Name(), func(t *testing.T) {
			if p.Title() == p.Name() || p.Description() == "" {
				t.Error("built-in passes need a title and description")
			}
			for _, c := range p.Categories() {
				if c.MaxResults < 40 || c.MaxResults > 200 {
					t.Errorf("%s: cap %d outside 40..200", c.ID, c.MaxResults)
				}
				if c.Title == "" {
					t.Errorf("%s: missing title", c.ID)
				}
			}
		})
	}
}

func TestLookup(t *testing.T) {
	reg := builtin(t)

	p, err := reg.Lookup(" MachIPC ")
	if err != nil || p.Name() != "machipc" {
		t.Errorf("Lookup(MachIPC) = %v, %v", p, err)
	}
	if _, err := reg.Lookup("nope"); !errors.Is(err, ErrUnknownPass) {
		t.Errorf("Lookup(nope) err = %v, want ErrUnknownPass", err)
	}
}

func TestSelect(t *testing.T) {
	reg := builtin(t)

	all, err := reg.Select(nil, 0)
	if err != nil || len(all) != len(builtinOrder) {
		t.Fatalf("Select(nil) = %d passes, %v", len(all), err)
	}

	some, err := reg.Select([]string{"xpc", "c2", "xpc"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(some) != 2 || some[0].Name() != "xpc" || some[1].Name() != "c2" {
		t.Fatalf("Select = %v", some)
	}
	for _, c := range some[0].(*TablePass).Categories() {
		if c.MaxResults != 3 {
			t.Errorf("%s cap = %d, want override 3", c.ID, c.MaxResults)
		}
	}
	// The registry's own pass keeps its table caps.
	orig, _ := reg.Lookup("xpc")
	if orig.Categories()[0].MaxResults == 3 {
		t.Error("WithMaxResults must not modify the registered pass")
	}

	if _, err := reg.Select([]string{"bogus"}, 0); !errors.Is(err, ErrUnknownPass) {
		t.Errorf("Select(bogus) err = %v", err)
	}
}

func TestAntiAnalysisPass(t *testing.T) {
	p, err := builtin(t).Lookup("antianalysis")
	if err != nil {
		t.Fatal(err)
	}
	im := rawimg.New([]byte("\x00\x00ptrace\x00VMware Tools\x00frida-server\x00"), rawimg.WithBase(0x4000))

	r, err := p.Run(im)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Pass != "antianalysis" || r.Strings == nil || r.Symbols == nil {
		t.Fatalf("report = %+v", r)
	}

	ptrace := r.Strings.Matches("antidebug_ptrace")
	if len(ptrace) != 1 || ptrace[0].Address != 0x4002 {
		t.Errorf("ptrace matches = %+v", ptrace)
	}
	vm := r.Strings.Matches("vm_detection")
	if len(vm) != 1 || vm[0].Type != "VMware" {
		t.Errorf("vm matches = %+v", vm)
	}
	tools := r.Strings.Matches("analysis_tools")
	if len(tools) != 1 || tools[0].Type != "Instrumentation" {
		t.Errorf("tool matches = %+v", tools)
	}
	if r.Counts()["sandbox_detection"] != 0 {
		t.Error("sandbox_detection should be empty")
	}
}

func TestNetworkPassFindsIPv4(t *testing.T) {
	p, err := builtin(t).Lookup("network")
	if err != nil {
		t.Fatal(err)
	}
	im := rawimg.New([]byte("https://evil.example/beacon\x00connect to 185.220.101.4\x00"), rawimg.WithBase(0x1000))

	r, err := p.Run(im)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	testCases := []struct {
		category analysis.CategoryID
		addr     uint64
		text     string
		pattern  string
	}{
		{"net_urls", 0x1000, "https://evil.example/beacon", "https://"},
		{"net_ips", 0x101c, "connect to 185.220.101.4", "185.220.101.4"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.category), func(t *testing.T) {
			got := r.Strings.Matches(tc.category)
			if len(got) != 1 {
				t.Fatalf("matches = %+v", got)
			}
			if got[0].Address != tc.addr || got[0].Text != tc.text || got[0].Pattern != tc.pattern {
				t.Errorf("match = %+v", got[0])
			}
		})
	}
}

func TestRunLogsThroughDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p, err := builtin(t).Lookup("network")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(rawimg.New([]byte("\x00https://a.example\x00"))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Pass finished", "pass=network", "findings=1", "String scan"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q\n%s", want, out)
		}
	}
}

func TestMachIPCPassRecoversSubsystem(t *testing.T) {
	buf := make([]byte, 256)
	binary.LittleEndian.PutUint32(buf[72:], 0xD48) // task
	binary.LittleEndian.PutUint32(buf[76:], 0xD48+45)
	binary.LittleEndian.PutUint32(buf[80:], 4096)

	p, err := builtin(t).Lookup("machipc")
	if err != nil {
		t.Fatal(err)
	}
	r, err := p.Run(rawimg.New(buf))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Structures) != 1 {
		t.Fatalf("structures = %+v", r.Structures)
	}
	sub := analysis.NewMIGSubsystem(r.Structures[0].Record)
	if sub.Address != 64 || sub.Name != "task" || sub.MsgCount != 45 {
		t.Errorf("subsystem = %+v", sub)
	}
}

func TestSectionPresets(t *testing.T) {
	raw := analysis.Section{Name: analysis.RawSection}
	cstring := analysis.Section{Segment: "__TEXT", Name: "__cstring"}
	konst := analysis.Section{Segment: "__DATA_CONST", Name: "__const"}
	relro := analysis.Section{Name: ".data.rel.ro"}
	text := analysis.Section{Segment: "__TEXT", Name: "__text"}

	testCases := []struct {
		preset string
		sec    analysis.Section
		want   bool
	}{
		{PresetStrings, cstring, true},
		{PresetStrings, konst, false},
		{PresetStrings, raw, true},
		{"", cstring, true},
		{PresetConst, konst, true},
		{PresetConst, relro, true},
		{PresetConst, cstring, false},
		{PresetConst, raw, true},
		{PresetStringsConst, cstring, true},
		{PresetStringsConst, text, false},
		{PresetAll, text, true},
	}
	for _, tc := range testCases {
		f, err := SectionPreset(tc.preset)
		if err != nil {
			t.Fatalf("SectionPreset(%q): %v", tc.preset, err)
		}
		if got := f(tc.sec); got != tc.want {
			t.Errorf("%s(%s) = %v, want %v", tc.preset, tc.sec.FullName(), got, tc.want)
		}
	}

	if _, err := SectionPreset("everything"); err == nil {
		t.Error("unknown preset accepted")
	}
	if len(PresetNames()) != 4 {
		t.Errorf("PresetNames() = %v", PresetNames())
	}
}

func TestParseTableErrors(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "name: [unterminated"},
		{"no name", "categories: [{id: a, patterns: [x]}]"},
		{"nothing to scan", "name: empty"},
		{"unknown preset", "name: t\nstrings: {sections: text}\ncategories: [{id: a, patterns: [x]}]"},
		{"duplicate category", "name: t\ncategories: [{id: a, patterns: [x]}, {id: a, patterns: [y]}]"},
		{"no patterns", "name: t\ncategories: [{id: a}]"},
		{"unknown matcher", "name: t\ncategories: [{id: a, matcher: ipv6}]"},
		{"empty pattern", "name: t\ncategories: [{id: a, patterns: ['']}]"},
		{"bad scan", "name: t\ncategories: [{id: a, scan: bytes, patterns: [x]}]"},
		{"unknown layout", "name: t\nstructures: [{layout: vtable, sections: const}]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTable([]byte(tc.yaml)); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("ParseTable err = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestLoadFSOverride(t *testing.T) {
	fsys := fstest.MapFS{
		"xpc.yaml": {Data: []byte(`
name: xpc
title: Custom XPC
categories:
  - id: custom
    title: Custom
    patterns: [com.example.helper]
`)},
		"extra.yml": {Data: []byte(`
name: extra
categories:
  - id: marker
    scan: symbols
    patterns: [_marker]
`)},
		"README.md": {Data: []byte("ignored")},
	}

	reg, err := WithDir(fsys)
	if err != nil {
		t.Fatalf("WithDir: %v", err)
	}
	names := reg.Names()
	if len(names) != len(builtinOrder)+1 || names[len(names)-1] != "extra" {
		t.Errorf("Names() = %v", names)
	}
	xpc, _ := reg.Lookup("xpc")
	if xpc.Title() != "Custom XPC" {
		t.Errorf("xpc not overridden: %q", xpc.Title())
	}

	extra, _ := reg.Lookup("extra")
	im := rawimg.New(make([]byte, 16), rawimg.WithSymbols(map[uint64]string{8: "_marker_fn"}))
	r, err := extra.Run(im)
	if err != nil {
		t.Fatal(err)
	}
	if r.Strings != nil || r.Symbols.Count("marker") != 1 {
		t.Errorf("report = %+v", r)
	}

	dup := fstest.MapFS{
		"a.yaml": {Data: []byte("name: same\ncategories: [{id: a, patterns: [x]}]")},
		"b.yaml": {Data: []byte("name: same\ncategories: [{id: b, patterns: [y]}]")},
	}
	if _, err := LoadFS(dup); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("duplicate pass names err = %v", err)
	}
}
