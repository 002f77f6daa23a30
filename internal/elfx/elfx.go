// Package elfx opens ELF binaries and exposes their allocated sections and
// symbols to the scanners, mapping virtual addresses to file offsets.
package elfx

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"triage/internal/analysis"
)

type Image struct {
	Path  string
	File  *elf.File
	All   []byte
	Loads []Seg

	sections []Section
	segments []analysis.Segment
	symbols  map[uint64]string
	mapped   bool
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

func Open(path string) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() == 0 {
		of.Close()
		return nil, fmt.Errorf("open elf: %s is empty", path)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im, err := NewImage(all)
	if err != nil {
		syscall.Munmap(all)
		of.Close()
		return nil, err
	}
	im.Path = path
	im.mapped = true
	im.f = of
	return im, nil
}

// NewImage parses an ELF image held in memory.
func NewImage(data []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	im := &Image{File: f, All: data}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		im.sections = append(im.sections, Section{s.Name, s.Addr, s.Offset, s.Size})
	}

	im.groupSections()
	im.loadSymbols()
	return im, nil
}

// groupSections builds the segment view: every allocated section that lies
// entirely inside the file-backed part of a PT_LOAD is listed under it. A
// binary without usable section headers exposes each PT_LOAD as one raw
// section instead.
func (im *Image) groupSections() {
	for i, l := range im.Loads {
		seg := analysis.Segment{Name: fmt.Sprintf("LOAD%d[%s]", i, permString(l.Flags))}
		for _, s := range im.sections {
			if s.VA >= l.Vaddr && s.VA+s.Size <= l.Vaddr+l.Filesz {
				seg.Sections = append(seg.Sections, analysis.Section{
					Segment: seg.Name,
					Name:    s.Name,
					Start:   s.VA,
					End:     s.VA + s.Size,
				})
			}
		}
		if len(seg.Sections) > 0 {
			sort.Slice(seg.Sections, func(a, b int) bool { return seg.Sections[a].Start < seg.Sections[b].Start })
			im.segments = append(im.segments, seg)
		}
	}

	if len(im.segments) > 0 {
		return
	}
	for i, l := range im.Loads {
		if l.Filesz == 0 || l.Off+l.Filesz > uint64(len(im.All)) {
			continue
		}
		name := fmt.Sprintf("LOAD%d[%s]", i, permString(l.Flags))
		im.segments = append(im.segments, analysis.Segment{
			Name: name,
			Sections: []analysis.Section{{
				Segment: name,
				Name:    analysis.RawSection,
				Start:   l.Vaddr,
				End:     l.Vaddr + l.Filesz,
			}},
		})
	}
}

func permString(f elf.ProgFlag) string {
	b := []byte("---")
	if f&elf.PF_R != 0 {
		b[0] = 'r'
	}
	if f&elf.PF_W != 0 {
		b[1] = 'w'
	}
	if f&elf.PF_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// loadSymbols indexes defined .dynsym and .symtab symbols by address. The
// first name seen for an address wins.
func (im *Image) loadSymbols() {
	im.symbols = make(map[uint64]string)

	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" || sym.Section == elf.SHN_UNDEF {
				continue
			}
			switch elf.ST_TYPE(sym.Info) {
			case elf.STT_SECTION, elf.STT_FILE:
				continue
			}
			name := strings.TrimSuffix(sym.Name, "@plt")
			if _, ok := im.symbols[sym.Value]; !ok {
				im.symbols[sym.Value] = name
			}
		}
	}

	// Missing tables are normal for stripped binaries.
	if dynsyms, err := im.File.DynamicSymbols(); err == nil {
		add(dynsyms)
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms)
	}
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil && im.mapped {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Format names the container format.
func (im *Image) Format() string { return "ELF" }

// Arch names the machine the image targets.
func (im *Image) Arch() string {
	if im.File == nil {
		return ""
	}
	return strings.TrimPrefix(im.File.Machine.String(), "EM_")
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// ByteAt reads one byte at a virtual address, zero when unmapped.
func (im *Image) ByteAt(va uint64) byte {
	off, ok := im.VA2Off(va)
	if !ok || off >= uint64(len(im.All)) {
		return 0
	}
	return im.All[off]
}

// Segments returns the PT_LOAD segments with their sections.
func (im *Image) Segments() []analysis.Segment {
	return im.segments
}

// SymbolNameAt returns the symbol defined at va.
func (im *Image) SymbolNameAt(va uint64) (string, bool) {
	name, ok := im.symbols[va]
	return name, ok
}
