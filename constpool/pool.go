package constpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Unknown is the index reported for a constant that has not been assigned
// one yet.
const Unknown = -1

// ErrFrozen is returned when interning into a pool whose indices are final.
var ErrFrozen = errors.New("constant pool is frozen")

// Resolver answers index queries for embedded constants. Index returns
// Unknown until the resolver's own assignment phase is complete.
// Implementations must be safe for concurrent use.
type Resolver interface {
	Index(c Constant) int
}

// Entry is one interned constant with its assigned index.
type Entry struct {
	Constant Constant
	Index    int
}

// Pool collects constants from any number of units, then assigns each
// kind's entries dense indices in sorted order. Intern and Freeze may be
// called concurrently with each other; after Freeze the pool is read-only.
type Pool struct {
	mu      sync.RWMutex
	entries map[Constant]int
	frozen  bool
	counts  [kindCount]int
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[Constant]int)}
}

// Intern adds c and, for member references, its defining type.
func (p *Pool) Intern(c Constant) error {
	if c.Kind >= kindCount {
		return fmt.Errorf("intern %v: invalid kind", c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		if _, ok := p.entries[c]; ok {
			return nil
		}
		return fmt.Errorf("intern %v: %w", c, ErrFrozen)
	}

	p.entries[c] = Unknown
	if def, ok := c.DefiningType(); ok {
		p.entries[def] = Unknown
	}
	return nil
}

// InternAll interns every constant in cs.
func (p *Pool) InternAll(cs []Constant) error {
	for _, c := range cs {
		if err := p.Intern(c); err != nil {
			return err
		}
	}
	return nil
}

// Freeze assigns final indices. Calling it again is a no-op.
func (p *Pool) Freeze() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return
	}

	var byKind [kindCount][]Constant
	for c := range p.entries {
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}
	for k, cs := range byKind {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Key() < cs[j].Key() })
		for i, c := range cs {
			p.entries[c] = i
		}
		p.counts[k] = len(cs)
	}
	p.frozen = true
}

// Frozen reports whether indices have been assigned.
func (p *Pool) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Index returns the final index of c, or Unknown if c was never interned or
// the pool is not frozen yet.
func (p *Pool) Index(c Constant) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.frozen {
		return Unknown
	}
	if idx, ok := p.entries[c]; ok {
		return idx
	}
	return Unknown
}

// Count returns how many constants of kind k are interned.
func (p *Pool) Count(k Kind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.frozen {
		return p.counts[k]
	}
	n := 0
	for c := range p.entries {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Len returns the total number of interned constants.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Entries returns every interned constant ordered by kind, then index
// (or key, before freezing).
func (p *Pool) Entries() []Entry {
	p.mu.RLock()
	out := make([]Entry, 0, len(p.entries))
	for c, idx := range p.entries {
		out = append(out, Entry{Constant: c, Index: idx})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Constant.Kind != b.Constant.Kind {
			return a.Constant.Kind < b.Constant.Kind
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Constant.Key() < b.Constant.Key()
	})
	return out
}

// restore rebuilds a frozen pool from saved entries.
func restore(entries []Entry) (*Pool, error) {
	p := New()
	seen := make(map[Kind]map[int]bool)
	for _, e := range entries {
		if e.Constant.Kind >= kindCount {
			return nil, fmt.Errorf("restore %v: invalid kind", e.Constant)
		}
		if e.Index < 0 {
			return nil, fmt.Errorf("restore %v: negative index %d", e.Constant, e.Index)
		}
		if seen[e.Constant.Kind] == nil {
			seen[e.Constant.Kind] = make(map[int]bool)
		}
		if seen[e.Constant.Kind][e.Index] {
			return nil, fmt.Errorf("restore %v: duplicate %s index %d", e.Constant, e.Constant.Kind, e.Index)
		}
		seen[e.Constant.Kind][e.Index] = true
		p.entries[e.Constant] = e.Index
		p.counts[e.Constant.Kind]++
	}
	p.frozen = true
	return p, nil
}
