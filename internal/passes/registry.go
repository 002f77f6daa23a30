package passes

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"triage/internal/analysis"
)

// ErrUnknownPass is returned when a pass name is not registered.
var ErrUnknownPass = errors.New("unknown pass")

//go:embed tables/*.yaml
var builtinTables embed.FS

// Canonical run order of the built-in passes.
var builtinOrder = []string{
	"antianalysis",
	"c2",
	"fileops",
	"injection",
	"keychain",
	"machipc",
	"network",
	"persistence",
	"privesc",
	"rootkit",
	"syscalls",
	"xpc",
}

var loadBuiltin = sync.OnceValues(func() ([]*TablePass, error) {
	sub, err := fs.Sub(builtinTables, "tables")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
})

// LoadFS builds a pass from every *.yaml / *.yml file at the root of fsys.
// Passes named in the built-in order come first, the rest sorted by name.
func LoadFS(fsys fs.FS) ([]*TablePass, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var out []*TablePass
	seen := make(map[string]string)
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, err
		}
		t, err := ParseTable(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if prev, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: pass %s defined in %s and %s", ErrInvalidTable, t.Name, prev, e.Name())
		}
		seen[t.Name] = e.Name()

		p, err := NewTablePass(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, p)
	}

	rank := make(map[string]int, len(builtinOrder))
	for i, n := range builtinOrder {
		rank[n] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].Name()]
		rj, jok := rank[out[j].Name()]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i].Name() < out[j].Name()
		}
	})
	return out, nil
}

// Registry resolves pass names.
type Registry struct {
	passes []*TablePass
	byName map[string]*TablePass
}

// NewRegistry indexes passes by name. Later passes replace earlier ones with
// the same name, so user tables can override built-ins.
func NewRegistry(passes ...*TablePass) *Registry {
	r := &Registry{byName: make(map[string]*TablePass, len(passes))}
	for _, p := range passes {
		key := strings.ToLower(p.Name())
		if _, dup := r.byName[key]; dup {
			for i := range r.passes {
				if strings.ToLower(r.passes[i].Name()) == key {
					r.passes[i] = p
				}
			}
		} else {
			r.passes = append(r.passes, p)
		}
		r.byName[key] = p
	}
	return r
}

// Builtin returns a registry of the embedded passes.
func Builtin() (*Registry, error) {
	passes, err := loadBuiltin()
	if err != nil {
		return nil, err
	}
	return NewRegistry(passes...), nil
}

// WithDir returns a registry of the built-in passes extended, or overridden,
// by the tables in dir.
func WithDir(fsys fs.FS) (*Registry, error) {
	builtin, err := loadBuiltin()
	if err != nil {
		return nil, err
	}
	extra, err := LoadFS(fsys)
	if err != nil {
		return nil, err
	}
	return NewRegistry(append(append([]*TablePass(nil), builtin...), extra...)...), nil
}

// All returns every pass in run order.
func (r *Registry) All() []*TablePass {
	return append([]*TablePass(nil), r.passes...)
}

// Names returns the pass names in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.passes))
	for i, p := range r.passes {
		names[i] = p.Name()
	}
	return names
}

// Lookup returns the pass called name.
func (r *Registry) Lookup(name string) (*TablePass, error) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPass, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Select resolves names to passes, all passes when names is empty, with every
// cap overridden by maxResults when it is positive. Duplicate names run once.
func (r *Registry) Select(names []string, maxResults int) ([]analysis.Pass, error) {
	chosen := r.passes
	if len(names) > 0 {
		chosen = nil
		picked := make(map[string]bool)
		for _, n := range names {
			p, err := r.Lookup(n)
			if err != nil {
				return nil, err
			}
			if picked[p.Name()] {
				continue
			}
			picked[p.Name()] = true
			chosen = append(chosen, p)
		}
	}

	out := make([]analysis.Pass, len(chosen))
	for i, p := range chosen {
		out[i] = p.WithMaxResults(maxResults)
	}
	return out, nil
}
