// Package machox exposes thin and universal Mach-O binaries to the scanners.
package machox

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"

	"triage/internal/analysis"
)

// ErrArchNotFound is returned when a universal binary lacks the requested slice.
var ErrArchNotFound = errors.New("architecture not found in universal binary")

type Image struct {
	Path string
	File *macho.File

	fat      *macho.FatFile
	sections []*types.Section // file-backed sections in load order
	segments []analysis.Segment
	data     [][]byte // lazily loaded section contents, parallel to sections
	loaded   []bool
	last     int
	symbols  map[uint64]string
}

// Open opens a Mach-O file. For a universal binary arch selects the slice by
// name ("arm64", "x86_64", ...); an empty arch picks the first slice.
func Open(path, arch string) (*Image, error) {
	fat, err := macho.OpenFat(path)
	if err != nil {
		if !errors.Is(err, macho.ErrNotFat) {
			return nil, fmt.Errorf("open universal mach-o: %w", err)
		}
		m, err := macho.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open mach-o: %w", err)
		}
		im := NewImage(m)
		im.Path = path
		return im, nil
	}

	var m *macho.File
	var names []string
	for _, fa := range fat.Arches {
		name := archName(fa.File)
		names = append(names, name)
		if m == nil && (arch == "" || strings.EqualFold(name, arch) || strings.EqualFold(fa.CPU.String(), arch)) {
			m = fa.File
		}
	}
	if m == nil {
		fat.Close()
		return nil, fmt.Errorf("%w: %s (have %s)", ErrArchNotFound, arch, strings.Join(names, ", "))
	}

	im := NewImage(m)
	im.Path = path
	im.fat = fat
	return im, nil
}

// Arches lists the slices of a universal binary, or the single architecture
// of a thin one.
func Arches(path string) ([]string, error) {
	fat, err := macho.OpenFat(path)
	if err != nil {
		if !errors.Is(err, macho.ErrNotFat) {
			return nil, err
		}
		m, err := macho.Open(path)
		if err != nil {
			return nil, err
		}
		defer m.Close()
		return []string{archName(m)}, nil
	}
	defer fat.Close()

	var out []string
	for _, fa := range fat.Arches {
		out = append(out, archName(fa.File))
	}
	return out, nil
}

func archName(m *macho.File) string {
	return strings.ToLower(m.SubCPU.String(m.CPU))
}

// NewImage indexes the sections and symbols of an open Mach-O file.
// Zero-fill sections have no file contents and are left out.
func NewImage(m *macho.File) *Image {
	im := &Image{File: m, symbols: make(map[uint64]string)}

	bySeg := make(map[string]int)
	for _, sec := range m.Sections {
		if sec.Size == 0 || sec.Offset == 0 {
			continue
		}
		im.sections = append(im.sections, sec)

		idx, ok := bySeg[sec.Seg]
		if !ok {
			idx = len(im.segments)
			bySeg[sec.Seg] = idx
			im.segments = append(im.segments, analysis.Segment{Name: sec.Seg})
		}
		im.segments[idx].Sections = append(im.segments[idx].Sections, analysis.Section{
			Segment: sec.Seg,
			Name:    sec.Name,
			Start:   sec.Addr,
			End:     sec.Addr + sec.Size,
		})
	}
	for i := range im.segments {
		secs := im.segments[i].Sections
		sort.SliceStable(secs, func(a, b int) bool { return secs[a].Start < secs[b].Start })
	}
	im.data = make([][]byte, len(im.sections))
	im.loaded = make([]bool, len(im.sections))

	// Imported stubs carry no address in the symtab, so only symbols defined
	// in a section can be resolved.
	if m.Symtab != nil {
		for _, sym := range m.Symtab.Syms {
			if sym.Value == 0 || sym.Sect == 0 || sym.Name == "" {
				continue
			}
			if _, ok := im.symbols[sym.Value]; !ok {
				im.symbols[sym.Value] = sym.Name
			}
		}
	}
	return im
}

// Close closes the file, or the whole universal binary it came from.
func (im *Image) Close() error {
	if im.fat != nil {
		return im.fat.Close()
	}
	if im.File != nil {
		return im.File.Close()
	}
	return nil
}

func (im *Image) Format() string {
	if im.fat != nil {
		return "Mach-O (universal)"
	}
	return "Mach-O"
}

func (im *Image) Arch() string { return archName(im.File) }

// ByteAt reads one byte at a virtual address, zero outside file-backed sections.
func (im *Image) ByteAt(addr uint64) byte {
	i := im.sectionIndex(addr)
	if i < 0 {
		return 0
	}
	if !im.loaded[i] {
		// An unreadable section reads as zeros.
		im.data[i], _ = im.sections[i].Data()
		im.loaded[i] = true
	}
	off := addr - im.sections[i].Addr
	if off >= uint64(len(im.data[i])) {
		return 0
	}
	return im.data[i][off]
}

func (im *Image) sectionIndex(addr uint64) int {
	if im.last < len(im.sections) {
		if s := im.sections[im.last]; addr >= s.Addr && addr < s.Addr+s.Size {
			return im.last
		}
	}
	for i, s := range im.sections {
		if addr >= s.Addr && addr < s.Addr+s.Size {
			im.last = i
			return i
		}
	}
	return -1
}

// Segments returns the segments with their file-backed sections.
func (im *Image) Segments() []analysis.Segment {
	return im.segments
}

// SymbolNameAt returns the symbol defined at addr.
func (im *Image) SymbolNameAt(addr uint64) (string, bool) {
	name, ok := im.symbols[addr]
	return name, ok
}
