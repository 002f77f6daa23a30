package machox

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/go-macho"

	"triage/internal/analysis"
)

const (
	textBase   = 0x100000000
	cstringOff = 0x100
	symtabOff  = 0x200
)

// buildMachO assembles a minimal arm64 executable with one __TEXT,__cstring
// section holding cstrings and one defined symbol at the section start.
func buildMachO(t *testing.T, cstrings []byte) []byte {
	t.Helper()
	if len(cstrings) > symtabOff-cstringOff {
		t.Fatal("cstring payload too large")
	}
	le := binary.LittleEndian
	strtab := []byte("\x00_ptrace_check\x00")
	fileSize := symtabOff + 16 + len(strtab)

	var b bytes.Buffer
	w := func(v any) { binary.Write(&b, le, v) }
	name16 := func(s string) (out [16]byte) { copy(out[:], s); return }

	// mach_header_64
	w(uint32(0xfeedfacf))
	w(uint32(0x0100000c)) // CPU_TYPE_ARM64
	w(uint32(0))
	w(uint32(2)) // MH_EXECUTE
	w(uint32(2)) // ncmds
	w(uint32(72 + 80 + 24))
	w(uint32(0))
	w(uint32(0))

	// LC_SEGMENT_64 __TEXT with one section
	w(uint32(0x19))
	w(uint32(72 + 80))
	w(name16("__TEXT"))
	w(uint64(textBase))
	w(uint64(0x1000))
	w(uint64(0))
	w(uint64(fileSize))
	w(uint32(5))
	w(uint32(5))
	w(uint32(1))
	w(uint32(0))

	// section_64 __cstring
	w(name16("__cstring"))
	w(name16("__TEXT"))
	w(uint64(textBase + cstringOff))
	w(uint64(len(cstrings)))
	w(uint32(cstringOff))
	w(uint32(0))
	w(uint32(0))
	w(uint32(0))
	w(uint32(2)) // S_CSTRING_LITERALS
	w(uint32(0))
	w(uint32(0))
	w(uint32(0))

	// LC_SYMTAB
	w(uint32(0x2))
	w(uint32(24))
	w(uint32(symtabOff))
	w(uint32(1))
	w(uint32(symtabOff + 16))
	w(uint32(len(strtab)))

	out := make([]byte, fileSize)
	copy(out, b.Bytes())
	copy(out[cstringOff:], cstrings)

	// nlist_64
	le.PutUint32(out[symtabOff:], 1) // n_strx
	out[symtabOff+4] = 0x0f          // N_SECT | N_EXT
	out[symtabOff+5] = 1             // n_sect
	le.PutUint64(out[symtabOff+8:], textBase+cstringOff)
	copy(out[symtabOff+16:], strtab)
	return out
}

func TestImage(t *testing.T) {
	payload := []byte("hello\x00ptrace\x00")
	m, err := macho.NewFile(bytes.NewReader(buildMachO(t, payload)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	im := NewImage(m)
	defer im.Close()

	segs := im.Segments()
	if len(segs) != 1 || segs[0].Name != "__TEXT" || len(segs[0].Sections) != 1 {
		t.Fatalf("segments = %+v", segs)
	}
	sec := segs[0].Sections[0]
	if sec.Name != "__cstring" || sec.Start != textBase+cstringOff || sec.Size() != uint64(len(payload)) {
		t.Errorf("section = %+v", sec)
	}

	got, ok := analysis.ExtractString(im, sec.Start+6, sec.End, analysis.ExtractOptions{})
	if !ok || got != "ptrace" {
		t.Errorf("ExtractString = %q, %v", got, ok)
	}
	if im.ByteAt(textBase) != 0 {
		t.Error("address outside sections should read zero")
	}

	if name, ok := im.SymbolNameAt(sec.Start); !ok || name != "_ptrace_check" {
		t.Errorf("SymbolNameAt = %q, %v", name, ok)
	}
	if im.Arch() == "" || im.Format() != "Mach-O" {
		t.Errorf("arch/format = %q/%q", im.Arch(), im.Format())
	}
}

func TestOpenThin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thin")
	if err := os.WriteFile(path, buildMachO(t, []byte("sysctl\x00")), 0o644); err != nil {
		t.Fatal(err)
	}

	im, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()
	if im.Path != path || len(analysis.Sections(im)) != 1 {
		t.Errorf("image = %+v", im)
	}

	arches, err := Arches(path)
	if err != nil || len(arches) != 1 {
		t.Errorf("Arches = %v, %v", arches, err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("not a mach-o at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, ""); err == nil {
		t.Error("expected an error")
	}
}
