package analysis

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned for a structure layout that cannot be decoded.
var ErrInvalidLayout = errors.New("invalid structure layout")

// Field is one fixed-width integer field of a record layout.
type Field struct {
	Name   string
	Offset int // byte offset from the record start
	Width  int // 1, 2, 4 or 8
}

// Layout describes a fixed-size record recovered from raw bytes without
// symbols or type information.
type Layout struct {
	Name   string
	Size   int // bytes that must be readable from the record start
	Stride int // scan step, DefaultStructStride when zero
	Order  binary.ByteOrder
	Fields []Field

	// Validate decides whether decoded values are plausible. Nil accepts all.
	Validate func(Record) bool
	// Derive adds computed values to an accepted record.
	Derive func(*Record)
	// Describe renders an accepted record for humans.
	Describe func(Record) string
}

// Check reports whether the layout is decodable.
func (l Layout) Check() error {
	if l.Size <= 0 {
		return fmt.Errorf("%w: %s: size %d", ErrInvalidLayout, l.Name, l.Size)
	}
	if l.Stride < 0 {
		return fmt.Errorf("%w: %s: stride %d", ErrInvalidLayout, l.Name, l.Stride)
	}
	if l.Order == nil {
		return fmt.Errorf("%w: %s: no byte order", ErrInvalidLayout, l.Name)
	}
	if len(l.Fields) == 0 {
		return fmt.Errorf("%w: %s: no fields", ErrInvalidLayout, l.Name)
	}
	names := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		switch f.Width {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("%w: %s.%s: width %d", ErrInvalidLayout, l.Name, f.Name, f.Width)
		}
		if f.Offset < 0 || f.Offset+f.Width > l.Size {
			return fmt.Errorf("%w: %s.%s: offset %d outside record", ErrInvalidLayout, l.Name, f.Name, f.Offset)
		}
		if names[f.Name] {
			return fmt.Errorf("%w: %s.%s: duplicate field", ErrInvalidLayout, l.Name, f.Name)
		}
		names[f.Name] = true
	}
	return nil
}

func (l Layout) stride() uint64 {
	if l.Stride == 0 {
		return DefaultStructStride
	}
	return uint64(l.Stride)
}

// Record holds the decoded field values of one candidate.
type Record struct {
	Address uint64
	Layout  string
	Values  map[string]uint64
}

// Value returns a decoded or derived field value, zero when absent.
func (r Record) Value(name string) uint64 {
	return r.Values[name]
}

// Decode reinterprets the bytes at addr as one record. It is an unverified
// parse: ok only means the window fits before limit and Validate accepted the
// values, not that a real record lives there.
func (l Layout) Decode(src ByteSource, addr, limit uint64) (rec Record, ok bool) {
	if limit < addr || limit-addr < uint64(l.Size) {
		return Record{}, false
	}

	rec = Record{
		Address: addr,
		Layout:  l.Name,
		Values:  make(map[string]uint64, len(l.Fields)),
	}
	var buf [8]byte
	for _, f := range l.Fields {
		for i := 0; i < f.Width; i++ {
			buf[i] = src.ByteAt(addr + uint64(f.Offset+i))
		}
		rec.Values[f.Name] = decodeUint(l.Order, buf[:f.Width])
	}

	if l.Validate != nil && !l.Validate(rec) {
		return Record{}, false
	}
	if l.Derive != nil {
		l.Derive(&rec)
	}
	return rec, true
}

func decodeUint(order binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

// Candidate is an accepted record plus its rendering.
type Candidate struct {
	Record
	Section     string
	Description string
}

// RecoverStructures walks sec at the layout stride and returns every window
// the layout accepts. Overlapping candidates are not deduplicated, so a real
// record and a spurious hit a few bytes later may both be reported.
func RecoverStructures(src ByteSource, sec Section, layout Layout) ([]Candidate, error) {
	if err := layout.Check(); err != nil {
		return nil, err
	}

	size := uint64(layout.Size)
	stride := layout.stride()
	if sec.Size() < size {
		return nil, nil
	}

	var out []Candidate
	last := sec.End - size
	for addr := sec.Start; addr <= last; addr += stride {
		if rec, ok := layout.Decode(src, addr, sec.End); ok {
			c := Candidate{Record: rec, Section: sec.FullName()}
			if layout.Describe != nil {
				c.Description = layout.Describe(rec)
			}
			out = append(out, c)
		}
		if last-addr < stride {
			break
		}
	}
	return out, nil
}

// RecoverAll runs RecoverStructures over every section accepted by filter.
func RecoverAll(src ByteSource, filter SectionFilter, layout Layout) ([]Candidate, error) {
	if filter == nil {
		filter = AllSections
	}
	var out []Candidate
	for _, sec := range Sections(src) {
		if !filter(sec) {
			continue
		}
		found, err := RecoverStructures(src, sec, layout)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}
