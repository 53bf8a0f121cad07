package finisher

import (
	"fmt"
	"strings"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// RegType is what a register holds. It decides the register's category and
// which move family shuttles it.
type RegType uint8

const (
	TypeInt  RegType = iota // 32-bit primitive
	TypeWide                // 64-bit primitive, occupies two slots
	TypeRef                 // object reference
)

// Reg is one register operand.
type Reg struct {
	Num  int
	Type RegType
}

// R returns a single-slot primitive register.
func R(n int) Reg { return Reg{Num: n} }

// W returns a wide register occupying n and n+1.
func W(n int) Reg { return Reg{Num: n, Type: TypeWide} }

// Ref returns an object register.
func Ref(n int) Reg { return Reg{Num: n, Type: TypeRef} }

// Category returns the number of slots the register occupies.
func (r Reg) Category() int {
	if r.Type == TypeWide {
		return 2
	}
	return 1
}

func (r Reg) String() string {
	if r.Type == TypeWide {
		return fmt.Sprintf("v%d:v%d", r.Num, r.Num+1)
	}
	return fmt.Sprintf("v%d", r.Num)
}

func (r Reg) withNum(n int) Reg {
	r.Num = n
	return r
}

type entryKind uint8

const (
	kindInsn    entryKind = iota
	kindAddress           // zero-size branch target
	kindPrefix            // moves shuttling sources into reserved registers
)

// Insn is one abstract instruction. The register list starts with the
// result register when the family produces one. Build instructions with Op,
// OpLit, OpConst and OpBranch.
type Insn struct {
	Family bytecode.Family
	Regs   []Reg

	HasLiteral bool
	Literal    int64

	HasConst bool
	Const    constpool.Constant

	// Target names the CodeAddress a branch jumps to.
	Target Handle

	// Line is the source line, 0 when unknown. Diagnostics only.
	Line int

	kind       entryKind
	index      int // pool index of Const, -1 until assigned
	classIndex int // pool index of Const's defining type, -1 if none
	form       bytecode.Form
	desc       *bytecode.Descriptor
	address    int
	moves      []Insn
}

// Op returns a register-only instruction.
func Op(fam bytecode.Family, regs ...Reg) Insn {
	return Insn{Family: fam, Regs: regs, Target: NoHandle}
}

// OpLit returns an instruction carrying an immediate.
func OpLit(fam bytecode.Family, lit int64, regs ...Reg) Insn {
	in := Op(fam, regs...)
	in.HasLiteral = true
	in.Literal = lit
	return in
}

// OpConst returns an instruction referencing a pool constant.
func OpConst(fam bytecode.Family, c constpool.Constant, regs ...Reg) Insn {
	in := Op(fam, regs...)
	in.HasConst = true
	in.Const = c
	return in
}

// OpBranch returns a branch to the CodeAddress target.
func OpBranch(fam bytecode.Family, target Handle, regs ...Reg) Insn {
	in := Op(fam, regs...)
	in.Target = target
	return in
}

// At returns a copy of the instruction tagged with a source line.
func (in Insn) At(line int) Insn {
	in.Line = line
	return in
}

// Index returns the assigned pool index, or -1.
func (in *Insn) Index() int { return in.index }

// ClassIndex returns the assigned index of a member's defining type, or -1.
func (in *Insn) ClassIndex() int { return in.classIndex }

// IsAddress reports whether the entry is a CodeAddress marker.
func (in *Insn) IsAddress() bool { return in.kind == kindAddress }

func (in *Insn) isBranch() bool {
	return in.kind == kindInsn && in.Family.IsBranch()
}

func (in *Insn) clone() Insn {
	out := *in
	out.Regs = append([]Reg(nil), in.Regs...)
	if in.moves != nil {
		out.moves = make([]Insn, len(in.moves))
		for i := range in.moves {
			out.moves[i] = in.moves[i].clone()
		}
	}
	return out
}

// size returns the encoded size in code units under the current form.
func (in *Insn) size() int {
	switch in.kind {
	case kindAddress:
		return 0
	case kindPrefix:
		n := 0
		for i := range in.moves {
			n += in.moves[i].size()
		}
		return n
	}
	return in.form.Size()
}

// operands builds the encoder's view of the instruction. offset is only
// used when hasOffset is set.
func (in *Insn) operands(offset int, hasOffset bool) bytecode.Operands {
	op := bytecode.Operands{Index: -1}
	switch {
	case in.Family.IsBranch():
		op.Kind = bytecode.KindBranch
		op.Offset = offset
		op.HasOffset = hasOffset
	case in.HasConst:
		op.Kind = bytecode.KindIndex
		op.Index = in.index
	case in.HasLiteral:
		op.Kind = bytecode.KindLiteral
		op.Literal = in.Literal
	}
	op.Regs = make([]bytecode.Reg, len(in.Regs))
	for i, r := range in.Regs {
		op.Regs[i] = bytecode.Reg{Num: r.Num, Wide: r.Type == TypeWide}
	}
	return op
}

// shift renumbers every register up by delta.
func (in *Insn) shift(delta int) {
	for i := range in.Regs {
		in.Regs[i].Num += delta
	}
	for i := range in.moves {
		in.moves[i].shift(delta)
	}
}

// maxReg returns the highest register slot the instruction touches, or -1.
func (in *Insn) maxReg() int {
	hi := -1
	for _, r := range in.Regs {
		if top := r.Num + r.Category() - 1; top > hi {
			hi = top
		}
	}
	for i := range in.moves {
		if top := in.moves[i].maxReg(); top > hi {
			hi = top
		}
	}
	return hi
}

// minimumRegisters returns how many reserved registers expanding the
// instruction needs: room for all sources side by side, or for the result.
func (in *Insn) minimumRegisters(hasResult bool) int {
	result, sources := 0, 0
	for i, r := range in.Regs {
		if hasResult && i == 0 {
			result = r.Category()
			continue
		}
		sources += r.Category()
	}
	return max(result, sources)
}

func (in *Insn) String() string {
	switch in.kind {
	case kindAddress:
		return fmt.Sprintf("%04x: <address>", in.address)
	case kindPrefix:
		parts := make([]string, len(in.moves))
		for i := range in.moves {
			parts[i] = in.moves[i].String()
		}
		return strings.Join(parts, "; ")
	}

	var sb strings.Builder
	if in.desc != nil {
		sb.WriteString(in.desc.Name)
	} else {
		sb.WriteString(in.Family.String())
	}
	for i, r := range in.Regs {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	switch {
	case in.HasConst:
		fmt.Fprintf(&sb, ", %v", in.Const)
	case in.HasLiteral:
		fmt.Fprintf(&sb, ", #%d", in.Literal)
	case in.Family.IsBranch():
		fmt.Fprintf(&sb, ", @%d", in.Target)
	}
	return sb.String()
}
