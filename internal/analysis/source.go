package analysis

// Section is a read-only view of one section of a binary image.
// Addresses are virtual; End is exclusive.
type Section struct {
	Segment string
	Name    string
	Start   uint64
	End     uint64
}

// Size returns the section length in bytes.
func (s Section) Size() uint64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// FullName returns "segment.section", or the bare name without a segment.
func (s Section) FullName() string {
	if s.Segment == "" {
		return s.Name
	}
	return s.Segment + "." + s.Name
}

// Contains reports whether addr lies inside the section.
func (s Section) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// RawSection names the single section of an image without a section table.
const RawSection = "raw"

// Segment groups sections of a binary image.
type Segment struct {
	Name     string
	Sections []Section
}

// ByteSource is the host binary image the scanners read from.
//
// ByteAt must be total for every address inside a section reported by
// Segments; the scanners never read outside those ranges.
type ByteSource interface {
	ByteAt(addr uint64) byte
	Segments() []Segment
	SymbolNameAt(addr uint64) (string, bool)
}

// Sections flattens the segments of src in source order.
func Sections(src ByteSource) []Section {
	var out []Section
	for _, seg := range src.Segments() {
		out = append(out, seg.Sections...)
	}
	return out
}
