package finisher

import (
	"fmt"
	"strings"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// Finish runs the whole pipeline once: form selection, register
// reservation, expansion, address assignment with branch fixup, and pool
// index resolution. r resolves indices still pending after AssignIndices;
// it may be nil when every index is already known. The unit cannot be
// edited or finished again afterwards.
func (u *Unit) Finish(r constpool.Resolver) (*InsnList, error) {
	if u.finished {
		return nil, ErrAlreadyFinished
	}
	u.finished = true
	u.stats = Stats{Name: u.Name}

	forms, err := u.validate()
	if err != nil {
		return nil, err
	}
	if err := u.reserveRegisters(forms); err != nil {
		return nil, err
	}
	if err := u.massage(forms); err != nil {
		return nil, err
	}
	if err := u.assignAddressesAndFixBranches(); err != nil {
		return nil, err
	}
	if err := u.resolveIndices(r); err != nil {
		return nil, err
	}

	list := u.output()
	u.stats.Entries = len(u.order)
	u.stats.CodeUnits = list.CodeUnits
	u.stats.Reserved = u.reserved
	log.Infof("%s: finished %d entries into %d code units (%d reserved registers)",
		u.Name, u.stats.Entries, list.CodeUnits, u.reserved)
	return list, nil
}

// resolveIndices fills in pending pool indices. An index wider than its
// instruction's form forces a wider form, which moves addresses, so branch
// fixup runs again.
func (u *Unit) resolveIndices(r constpool.Resolver) error {
	var cache *indexCache
	if r != nil {
		cache = newIndexCache(r)
	}
	widened := 0
	for _, h := range u.order {
		in := &u.arena[h]
		if in.kind != kindInsn || !in.HasConst {
			continue
		}
		if in.index < 0 && cache != nil {
			assignIndices(in, cache)
		}
		if in.index < 0 {
			return fmt.Errorf("%w: %v has no pool index", ErrMalformed, in.Const)
		}

		op := in.operands(0, false)
		if in.form.Fits(&op) {
			continue
		}
		f := u.findForm(in, in.form, &op)
		if f == bytecode.FormNone {
			return fmt.Errorf("%w: %s: index %d", ErrIndexTooLarge, in, in.index)
		}
		u.setForm(in, f)
		widened++
	}

	if widened == 0 {
		return nil
	}
	u.stats.IndexWidened = widened
	log.Debugf("%s: %d instructions widened for their pool index", u.Name, widened)
	return u.assignAddressesAndFixBranches()
}

// Entry is one addressed, form-resolved element of a finished unit.
type Entry struct {
	Address int

	// Desc is nil for code address markers.
	Desc *bytecode.Descriptor

	Regs       []bytecode.Reg
	Literal    int64
	Index      int
	ClassIndex int
	Offset     int
	HasConst   bool
	Const      constpool.Constant
	Line       int
}

// IsAddress reports whether the entry is a code address marker.
func (e *Entry) IsAddress() bool {
	return e.Desc == nil
}

func (e *Entry) operands() bytecode.Operands {
	op := bytecode.Operands{Regs: e.Regs, Index: -1}
	switch {
	case e.Desc.Form.IsBranch():
		op.Kind = bytecode.KindBranch
		op.Offset = e.Offset
		op.HasOffset = true
	case e.HasConst:
		op.Kind = bytecode.KindIndex
		op.Index = e.Index
	case e.Desc.Form == bytecode.Form10x:
	default:
		if formHasLiteral(e.Desc.Form) {
			op.Kind = bytecode.KindLiteral
			op.Literal = e.Literal
		}
	}
	return op
}

func formHasLiteral(f bytecode.Form) bool {
	switch f {
	case bytecode.Form11n, bytecode.Form21s, bytecode.Form21h, bytecode.Form22b,
		bytecode.Form22s, bytecode.Form31i, bytecode.Form51l:
		return true
	}
	return false
}

func (e *Entry) String() string {
	if e.IsAddress() {
		return fmt.Sprintf("%04x: :L%04x", e.Address, e.Address)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04x: %s", e.Address, e.Desc.Name)
	for i, r := range e.Regs {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "v%d", r.Num)
	}
	switch {
	case e.Desc.Form.IsBranch():
		fmt.Fprintf(&sb, ", :L%04x", e.Address+e.Offset)
	case e.HasConst:
		fmt.Fprintf(&sb, ", %v@%d", e.Const, e.Index)
	case formHasLiteral(e.Desc.Form):
		fmt.Fprintf(&sb, ", #%d", e.Literal)
	}
	return sb.String()
}

// InsnList is the immutable result of finishing a unit.
type InsnList struct {
	Name          string
	Entries       []Entry
	RegisterCount int
	Reserved      int
	CodeUnits     int
}

func (u *Unit) output() *InsnList {
	l := &InsnList{
		Name:          u.Name,
		RegisterCount: u.regCount + u.reserved,
		Reserved:      u.reserved,
	}

	var emit func(in *Insn)
	emit = func(in *Insn) {
		switch in.kind {
		case kindAddress:
			l.Entries = append(l.Entries, Entry{Address: in.address, Index: -1, ClassIndex: -1})
			return
		case kindPrefix:
			addr := in.address
			for i := range in.moves {
				mv := in.moves[i]
				mv.address = addr
				emit(&mv)
				addr += mv.size()
			}
			return
		}

		e := Entry{
			Address:    in.address,
			Desc:       in.desc,
			Literal:    in.Literal,
			Index:      in.index,
			ClassIndex: in.classIndex,
			HasConst:   in.HasConst,
			Const:      in.Const,
			Line:       in.Line,
		}
		op := in.operands(0, false)
		e.Regs = op.Regs
		if in.isBranch() {
			e.Offset = u.branchOffset(in)
		}
		l.Entries = append(l.Entries, e)
	}

	for _, h := range u.order {
		emit(&u.arena[h])
	}
	if n := len(u.order); n > 0 {
		last := &u.arena[u.order[n-1]]
		l.CodeUnits = last.address + last.size()
	}
	return l
}

// Len returns the number of entries, markers included.
func (l *InsnList) Len() int {
	return len(l.Entries)
}

// Instructions returns the entries that are real instructions.
func (l *InsnList) Instructions() []Entry {
	out := make([]Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		if !e.IsAddress() {
			out = append(out, e)
		}
	}
	return out
}

// Encode serializes the list into a chunk of code units. A position entry
// is recorded wherever the source line changes.
func (l *InsnList) Encode() (*bytecode.Chunk, error) {
	if l.RegisterCount > 0xFFFF || l.Reserved > l.RegisterCount {
		return nil, fmt.Errorf("%w: frame of %d registers (%d reserved) does not fit the chunk header",
			ErrMalformed, l.RegisterCount, l.Reserved)
	}
	c := bytecode.NewChunk()
	c.RegisterCount = uint16(l.RegisterCount)
	c.ReservedCount = uint16(l.Reserved)
	if l.Reserved > 0 {
		c.Flags |= bytecode.ChunkFlagExpanded
	}
	if l.CodeUnits > cap(c.Code) {
		c.Code = make([]uint16, 0, l.CodeUnits)
	}

	lastLine := 0
	for i := range l.Entries {
		e := &l.Entries[i]
		if e.IsAddress() {
			continue
		}
		if e.Address != len(c.Code) {
			return nil, fmt.Errorf("%s at %04x: encoder is at %04x", e.Desc.Name, e.Address, len(c.Code))
		}
		if e.Line > 0 && e.Line != lastLine {
			c.AddPosition(uint32(e.Address), uint32(e.Line))
			lastLine = e.Line
		}

		op := e.operands()
		var err error
		c.Code, err = bytecode.Encode(c.Code, e.Desc, &op)
		if err != nil {
			return nil, fmt.Errorf("at %04x: %w", e.Address, err)
		}
	}
	return c, nil
}

// String returns a listing with one entry per line.
func (l *InsnList) String() string {
	var sb strings.Builder
	for i := range l.Entries {
		sb.WriteString(l.Entries[i].String())
		sb.WriteString("\n")
	}
	return sb.String()
}
