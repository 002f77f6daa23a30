package analysis

import (
	"context"
	"fmt"
)

// Pass is one security-focused analysis over a binary image.
type Pass interface {
	Name() string
	Title() string
	Run(src ByteSource) (*Report, error)
}

// Report holds everything a single pass found.
type Report struct {
	Pass       string
	Title      string
	Strings    *ResultSet  // nil when the pass has no string categories
	Symbols    *ResultSet  // nil when the pass has no symbol categories
	Structures []Candidate // recovered structure candidates
}

// Total returns the number of findings across strings, symbols and structures.
func (r *Report) Total() int {
	n := len(r.Structures)
	if r.Strings != nil {
		n += r.Strings.Total()
	}
	if r.Symbols != nil {
		n += r.Symbols.Total()
	}
	return n
}

// Counts returns per-category match counts. A category used by both the
// string and the symbol scan reports the sum.
func (r *Report) Counts() map[CategoryID]int {
	out := make(map[CategoryID]int)
	for _, rs := range []*ResultSet{r.Strings, r.Symbols} {
		if rs == nil {
			continue
		}
		for _, id := range rs.Categories() {
			out[id] += rs.Count(id)
		}
	}
	return out
}

// Empty reports whether the pass ran and found nothing.
func (r *Report) Empty() bool {
	return r.Total() == 0
}

// PassChain runs passes in sequence. Each pass owns its result sets, so
// nothing is shared between them.
type PassChain struct {
	passes []Pass
}

// NewPassChain creates a new pass chain
func NewPassChain(passes ...Pass) *PassChain {
	return &PassChain{passes: passes}
}

// Passes returns the passes in run order.
func (pc *PassChain) Passes() []Pass {
	return append([]Pass(nil), pc.passes...)
}

// Run runs every pass against src. ctx is checked between passes only; a
// running pass is never interrupted.
func (pc *PassChain) Run(ctx context.Context, src ByteSource) ([]*Report, error) {
	reports := make([]*Report, 0, len(pc.passes))
	for _, p := range pc.passes {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := p.Run(src)
		if err != nil {
			return reports, fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
