// Package loader detects the container format of a binary and opens it as a
// scannable image.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"triage/internal/analysis"
	"triage/internal/elfx"
	"triage/internal/machox"
	"triage/internal/rawimg"
)

// ErrUnknownFormat is returned when auto-detection does not recognise a file.
var ErrUnknownFormat = errors.New("unknown binary format")

// Format represents the type of binary file
type Format int

const (
	// FormatUnknown indicates an unknown or unsupported binary format
	FormatUnknown Format = iota
	// FormatELF indicates an ELF binary
	FormatELF
	// FormatMachO indicates a thin Mach-O binary
	FormatMachO
	// FormatUniversal indicates a universal (fat) Mach-O binary
	FormatUniversal
	// FormatRaw indicates a flat byte image with no section table
	FormatRaw
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatMachO:
		return "Mach-O"
	case FormatUniversal:
		return "Mach-O (universal)"
	case FormatRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseFormat maps a --format flag value to a Format. "auto" and "" yield
// FormatUnknown, meaning detect.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatUnknown, nil
	case "elf":
		return FormatELF, nil
	case "macho", "mach-o":
		return FormatMachO, nil
	case "raw":
		return FormatRaw, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q (want auto, elf, macho or raw)", ErrUnknownFormat, s)
}

// Image is a scannable binary image that must be closed after use.
type Image interface {
	analysis.ByteSource
	Format() string
	Arch() string
	Close() error
}

// DetectBytes identifies a format from the first bytes of a file.
func DetectBytes(b []byte) Format {
	if len(b) < 4 {
		return FormatUnknown
	}
	if string(b[:4]) == "\x7fELF" {
		return FormatELF
	}
	switch binary.BigEndian.Uint32(b) {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe:
		return FormatMachO
	case 0xcafebabe, 0xcafebabf:
		// Java class files share 0xcafebabe; their next word is a version
		// number far above any plausible slice count.
		if len(b) >= 8 && binary.BigEndian.Uint32(b[4:]) >= 0x30 {
			return FormatUnknown
		}
		return FormatUniversal
	case 0xbebafeca:
		return FormatUniversal
	}
	return FormatUnknown
}

// Detect reads the header of path and identifies its format.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, fmt.Errorf("read header: %w", err)
	}
	return DetectBytes(head[:n]), nil
}

// Options controls Open.
type Options struct {
	Format Format // FormatUnknown detects
	Arch   string // slice of a universal binary
	Base   uint64 // load address of a raw image
}

// Open opens path as an image. An unrecognised file is an error unless raw
// is requested explicitly.
func Open(path string, opts Options) (Image, error) {
	format := opts.Format
	if format == FormatUnknown {
		detected, err := Detect(path)
		if err != nil {
			return nil, err
		}
		if detected == FormatUnknown {
			return nil, fmt.Errorf("%w: %s (use raw format to scan it as a flat image)", ErrUnknownFormat, path)
		}
		format = detected
	}

	var (
		im  Image
		err error
	)
	switch format {
	case FormatELF:
		var e *elfx.Image
		if e, err = elfx.Open(path); err == nil {
			im = e
		}
	case FormatMachO, FormatUniversal:
		var m *machox.Image
		if m, err = machox.Open(path, opts.Arch); err == nil {
			im = m
		}
	case FormatRaw:
		var r *rawimg.Image
		if r, err = rawimg.Open(path, rawimg.WithBase(opts.Base)); err == nil {
			im = r
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return im, nil
}
