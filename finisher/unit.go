package finisher

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/pkg/bytecode"
)

var log = commonlog.GetLogger("dexasm.finisher")

// Handle names an arena slot. Handles stay valid for the life of the unit;
// a CodeAddress is identified by its handle alone.
type Handle int

// NoHandle is the target of a non-branch instruction.
const NoHandle Handle = -1

// Options bound the finisher's fixed-point loops.
type Options struct {
	MaxReservePasses int
	MaxFixupPasses   int
}

// DefaultOptions returns the standard iteration caps.
func DefaultOptions() Options {
	return Options{
		MaxReservePasses: 64,
		MaxFixupPasses:   1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxReservePasses <= 0 {
		o.MaxReservePasses = d.MaxReservePasses
	}
	if o.MaxFixupPasses <= 0 {
		o.MaxFixupPasses = d.MaxFixupPasses
	}
	return o
}

// Stats describes what finishing did to a unit.
type Stats struct {
	Name          string
	Entries       int // buffer entries, markers included
	CodeUnits     int
	Reserved      int
	Expanded      int
	ReservePasses int
	FixupPasses   int
	Widened       int // gotos moved to a wider form
	Reversed      int // conditionals rewritten around a goto
	IndexWidened  int // instructions widened after index resolution
}

// Unit is the instruction buffer of one method body. Instructions live in
// an arena; order lists the handles in program order. Replacing an
// instruction overwrites its slot and inserting appends a slot and splices
// order, so handles never move.
type Unit struct {
	Name string

	catalog  *bytecode.Catalog
	opts     Options
	regCount int

	arena []Insn
	order []Handle
	// placed[h] is set once address marker h is in order.
	placed map[Handle]bool

	reserved     int
	finished     bool
	hasPositions bool
	stats        Stats
}

// NewUnit creates an empty unit whose instructions use registers
// [0, regCount).
func NewUnit(cat *bytecode.Catalog, regCount int, opts Options) *Unit {
	if cat == nil {
		cat = bytecode.Default()
	}
	return &Unit{
		catalog:  cat,
		opts:     opts.withDefaults(),
		regCount: regCount,
		placed:   make(map[Handle]bool),
	}
}

// RegisterCount returns the frame size: the unreserved count plus any
// reservation made by Finish.
func (u *Unit) RegisterCount() int {
	return u.regCount + u.reserved
}

// Reserved returns how many low registers Finish reserved.
func (u *Unit) Reserved() int {
	return u.reserved
}

// Len returns the number of buffer entries, markers included.
func (u *Unit) Len() int {
	return len(u.order)
}

// At returns a copy of the i-th buffer entry.
func (u *Unit) At(i int) Insn {
	return u.arena[u.order[i]].clone()
}

// Stats returns what the last Finish did.
func (u *Unit) Stats() Stats {
	return u.stats
}

// HasAnyPositionInfo reports whether any instruction carries a source line.
func (u *Unit) HasAnyPositionInfo() bool {
	return u.hasPositions
}

func (u *Unit) alloc(in Insn) Handle {
	u.arena = append(u.arena, in)
	return Handle(len(u.arena) - 1)
}

// NewAddress allocates a CodeAddress marker that branches may target before
// it is placed.
func (u *Unit) NewAddress() Handle {
	return u.alloc(Insn{kind: kindAddress, Target: NoHandle, index: -1, classIndex: -1})
}

// Place appends the address marker h to the buffer.
func (u *Unit) Place(h Handle) error {
	return u.PlaceAt(len(u.order), h)
}

// PlaceAt inserts the address marker h at buffer position at.
func (u *Unit) PlaceAt(at int, h Handle) error {
	if u.finished {
		return ErrAlreadyFinished
	}
	if h < 0 || int(h) >= len(u.arena) || u.arena[h].kind != kindAddress {
		return fmt.Errorf("%w: handle %d is not a code address", ErrMalformed, h)
	}
	if u.placed[h] {
		return fmt.Errorf("%w: code address %d placed twice", ErrMalformed, h)
	}
	if at < 0 || at > len(u.order) {
		return fmt.Errorf("%w: insert position %d out of range", ErrMalformed, at)
	}
	u.placed[h] = true
	u.splice(at, h)
	return nil
}

// Add appends an instruction and returns its handle.
func (u *Unit) Add(in Insn) (Handle, error) {
	return u.Insert(len(u.order), in)
}

// Insert places an instruction at buffer position at.
func (u *Unit) Insert(at int, in Insn) (Handle, error) {
	if u.finished {
		return NoHandle, ErrAlreadyFinished
	}
	if at < 0 || at > len(u.order) {
		return NoHandle, fmt.Errorf("%w: insert position %d out of range", ErrMalformed, at)
	}
	in = in.clone()
	in.kind = kindInsn
	in.index = -1
	in.classIndex = -1
	in.form = bytecode.FormNone
	in.desc = nil
	if !in.Family.IsBranch() {
		in.Target = NoHandle
	}
	if in.Line > 0 {
		u.hasPositions = true
	}
	h := u.alloc(in)
	u.splice(at, h)
	return h, nil
}

func (u *Unit) splice(at int, hs ...Handle) {
	u.order = append(u.order, hs...)
	copy(u.order[at+len(hs):], u.order[at:])
	copy(u.order[at:], hs)
}

// ReverseBranch reverses the sense of the conditional branch which
// entries back from the end (0 is the last entry) and retargets it at
// newTarget.
func (u *Unit) ReverseBranch(which int, newTarget Handle) error {
	if u.finished {
		return ErrAlreadyFinished
	}
	i := len(u.order) - which - 1
	if which < 0 || i < 0 {
		return fmt.Errorf("%w: too few instructions", ErrMalformed)
	}
	in := &u.arena[u.order[i]]
	opp, ok := in.Family.Opposite()
	if in.kind != kindInsn || !ok {
		return fmt.Errorf("%w: non-reversible instruction %s", ErrMalformed, in)
	}
	if newTarget < 0 || int(newTarget) >= len(u.arena) || u.arena[newTarget].kind != kindAddress {
		return fmt.Errorf("%w: handle %d is not a code address", ErrMalformed, newTarget)
	}
	in.Family = opp
	in.Target = newTarget
	return nil
}

// Constants returns the distinct embedded constants in order of first use,
// for the pool's interning phase.
func (u *Unit) Constants() []constpool.Constant {
	seen := make(map[constpool.Constant]bool)
	var out []constpool.Constant
	for _, h := range u.order {
		in := &u.arena[h]
		if in.kind == kindInsn && in.HasConst && !seen[in.Const] {
			seen[in.Const] = true
			out = append(out, in.Const)
		}
	}
	return out
}

// AssignIndices asks r for the index of every distinct embedded constant
// and, for member references, of the defining type. Constants r does not
// know yet keep their pending index.
func (u *Unit) AssignIndices(r constpool.Resolver) {
	c := newIndexCache(r)
	for _, h := range u.order {
		in := &u.arena[h]
		if in.kind != kindInsn || !in.HasConst {
			continue
		}
		assignIndices(in, c)
	}
}

// indexCache asks its resolver once per distinct constant.
type indexCache struct {
	r    constpool.Resolver
	seen map[constpool.Constant]int
}

func newIndexCache(r constpool.Resolver) *indexCache {
	return &indexCache{r: r, seen: make(map[constpool.Constant]int)}
}

func (c *indexCache) Index(k constpool.Constant) int {
	if idx, ok := c.seen[k]; ok {
		return idx
	}
	idx := c.r.Index(k)
	c.seen[k] = idx
	return idx
}

func assignIndices(in *Insn, r constpool.Resolver) {
	if idx := r.Index(in.Const); idx >= 0 {
		in.index = idx
	}
	if def, ok := in.Const.DefiningType(); ok {
		if idx := r.Index(def); idx >= 0 {
			in.classIndex = idx
		}
	}
}

// Clone returns an independent copy of an unfinished unit.
func (u *Unit) Clone() *Unit {
	c := *u
	c.arena = make([]Insn, len(u.arena))
	for i := range u.arena {
		c.arena[i] = u.arena[i].clone()
	}
	c.order = append([]Handle(nil), u.order...)
	c.placed = make(map[Handle]bool, len(u.placed))
	for h, v := range u.placed {
		c.placed[h] = v
	}
	return &c
}

func (u *Unit) hasResult(in *Insn) bool {
	d, ok := u.catalog.Natural(in.Family)
	return ok && d.HasResult
}

// positions returns the buffer index of every placed address marker.
func (u *Unit) positions() map[Handle]int {
	pos := make(map[Handle]int)
	for i, h := range u.order {
		if u.arena[h].kind == kindAddress {
			pos[h] = i
		}
	}
	return pos
}
