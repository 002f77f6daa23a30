package analysis

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
)

// SymbolScan configures ScanSymbols.
type SymbolScan struct {
	Categories []Category
	Stride     uint64 // address stride, DefaultSymbolStride when zero
	Exclusive  bool
	Demangle   bool // also match the demangled form of C++ names
	MaxResults int
}

// ScanSymbols asks the host for the symbol bound to every stride-aligned
// address of every section and classifies the names it gets back.
// Match.Text always carries the raw symbol name.
func ScanSymbols(src ByteSource, cfg SymbolScan) *ResultSet {
	rs := NewResultSet(cfg.Categories, cfg.MaxResults)
	if len(rs.order) == 0 {
		return rs
	}

	stride := cfg.Stride
	if stride == 0 {
		stride = DefaultSymbolStride
	}

	var dm *demangler
	if cfg.Demangle {
		dm = newDemangler(demangleCacheSize)
	}

	for _, seg := range src.Segments() {
		for _, sec := range seg.Sections {
			rs.Stats.addSection(sec)
			for addr := sec.Start; addr < sec.End; addr += stride {
				name, ok := src.SymbolNameAt(addr)
				if ok && name != "" {
					rs.Stats.Candidates++
					forms := []string{name}
					if dm != nil {
						if d := dm.demangle(name); d != name {
							forms = append(forms, d)
						}
					}
					rs.record(cfg.Categories, cfg.Exclusive, addr, name, forms)
					if rs.AllFull() {
						rs.Stats.StoppedEarly = true
						return rs
					}
				}
				if addr+stride < addr {
					break
				}
			}
		}
	}
	return rs
}

// demangler memoises demangled names for the lifetime of one scan.
type demangler struct {
	cache *lru.Cache[string, string]
}

func newDemangler(size int) *demangler {
	c, err := lru.New[string, string](size)
	if err != nil {
		return &demangler{}
	}
	return &demangler{cache: c}
}

// demangle returns the demangled form of name, or name itself.
func (d *demangler) demangle(name string) string {
	if d.cache != nil {
		if v, ok := d.cache.Get(name); ok {
			return v
		}
	}

	// Mach-O prefixes C++ names with an extra underscore.
	mangled := name
	if strings.HasPrefix(mangled, "__Z") {
		mangled = mangled[1:]
	}
	out := demangle.Filter(mangled, demangle.NoClones)
	if out == mangled {
		out = name
	}

	if d.cache != nil {
		d.cache.Add(name, out)
	}
	return out
}
