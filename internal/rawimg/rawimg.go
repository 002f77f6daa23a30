// Package rawimg exposes a flat byte buffer, such as a firmware blob or a
// memory dump, as a single-section binary image.
package rawimg

import (
	"fmt"
	"os"

	"triage/internal/analysis"
)

// SegmentName is the segment holding the single raw section.
const SegmentName = "RAW"

// Image is an in-memory image mapped at Base.
type Image struct {
	Path    string
	Base    uint64
	data    []byte
	symbols map[uint64]string
}

// Option configures an Image.
type Option func(*Image)

// WithBase maps the image at base instead of zero.
func WithBase(base uint64) Option {
	return func(im *Image) { im.Base = base }
}

// WithSymbols attaches an address to name table.
func WithSymbols(syms map[uint64]string) Option {
	return func(im *Image) {
		for addr, name := range syms {
			im.symbols[addr] = name
		}
	}
}

// New wraps data. The slice is not copied and must not change while scanned.
func New(data []byte, opts ...Option) *Image {
	im := &Image{data: data, symbols: make(map[uint64]string)}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Open reads a whole file into a raw image.
func Open(path string, opts ...Option) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raw image: %w", err)
	}
	im := New(data, opts...)
	im.Path = path
	return im, nil
}

// Close releases nothing; it exists so every image type closes the same way.
func (im *Image) Close() error { return nil }

func (im *Image) Format() string { return "raw" }
func (im *Image) Arch() string   { return "" }

// Len returns the image size in bytes.
func (im *Image) Len() int { return len(im.data) }

// ByteAt returns the byte at addr, zero outside the image.
func (im *Image) ByteAt(addr uint64) byte {
	if addr < im.Base || addr-im.Base >= uint64(len(im.data)) {
		return 0
	}
	return im.data[addr-im.Base]
}

// Segments returns one segment with one section covering the whole buffer,
// or nothing for an empty buffer.
func (im *Image) Segments() []analysis.Segment {
	if len(im.data) == 0 {
		return nil
	}
	return []analysis.Segment{{
		Name: SegmentName,
		Sections: []analysis.Section{{
			Segment: SegmentName,
			Name:    analysis.RawSection,
			Start:   im.Base,
			End:     im.Base + uint64(len(im.data)),
		}},
	}}
}

func (im *Image) SymbolNameAt(addr uint64) (string, bool) {
	name, ok := im.symbols[addr]
	return name, ok
}
