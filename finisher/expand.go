package finisher

import (
	"fmt"

	"github.com/chazu/dexasm/pkg/bytecode"
)

// massage gives every instruction its final opcode. Without a reservation
// this is an in-place substitution; with one, instructions that fit no form
// are rewritten as prefix, body, suffix.
func (u *Unit) massage(forms []bytecode.Form) error {
	if u.reserved == 0 {
		for i, h := range u.order {
			in := &u.arena[h]
			if in.kind == kindAddress {
				continue
			}
			if forms[i] == bytecode.FormNone {
				return u.unencodable(in)
			}
			u.setForm(in, forms[i])
		}
		return nil
	}
	return u.expand(forms)
}

func (u *Unit) setForm(in *Insn, f bytecode.Form) {
	in.form = f
	in.desc = u.catalog.Lookup(in.Family, f)
}

// expand rebuilds the buffer, replacing each instruction marked FormNone
// with up to three entries. The body keeps the original arena slot.
func (u *Unit) expand(forms []bytecode.Form) error {
	order := make([]Handle, 0, len(u.order)*2)
	expanded := 0

	for i, h := range u.order {
		in := &u.arena[h]
		if in.kind == kindAddress {
			order = append(order, h)
			continue
		}
		if forms[i] != bytecode.FormNone {
			u.setForm(in, forms[i])
			order = append(order, h)
			continue
		}

		hasResult := u.hasResult(in)
		prefix := u.highRegisterPrefix(in, hasResult)
		suffix := u.highRegisterSuffix(in, hasResult)

		body := in.clone()
		body.Regs = sequentialRegisters(in.Regs, hasResult)
		nat, _ := u.naturalForm(body.Family)
		op := body.operands(0, false)
		f := u.findForm(&body, nat, &op)
		if f == bytecode.FormNone {
			return u.unencodable(&body)
		}
		u.setForm(&body, f)
		u.arena[h] = body

		if prefix != nil {
			order = append(order, u.alloc(*prefix))
		}
		order = append(order, h)
		if suffix != nil {
			order = append(order, u.alloc(*suffix))
		}
		expanded++
	}

	log.Debugf("%s: expanded %d instructions into reserved registers", u.Name, expanded)
	u.stats.Expanded = expanded
	u.order = order
	return nil
}

// unencodable reports an instruction no form can hold. When the pool index
// is what doesn't fit, that is ErrIndexTooLarge.
func (u *Unit) unencodable(in *Insn) error {
	nat, _ := u.naturalForm(in.Family)
	if in.HasConst && in.index >= 0 {
		op := in.operands(0, false)
		op.Index = -1
		if u.findForm(in, nat, &op) != bytecode.FormNone {
			return fmt.Errorf("%w: %s: index %d", ErrIndexTooLarge, in, in.index)
		}
	}
	return fmt.Errorf("%w: no form of %s holds %s", ErrMalformed, in.Family, in)
}

// sequentialRegisters renumbers regs to start at v0 and run contiguously.
// With a result, the result and the first source share v0.
func sequentialRegisters(regs []Reg, hasResult bool) []Reg {
	out := make([]Reg, len(regs))
	next := 0
	for i, r := range regs {
		out[i] = r.withNum(next)
		if hasResult && i == 0 {
			continue
		}
		next += r.Category()
	}
	return out
}

// highRegisterPrefix moves every source into the reserved registers, in
// order from v0. It returns nil when there are no sources.
func (u *Unit) highRegisterPrefix(in *Insn, hasResult bool) *Insn {
	sources := in.Regs
	if hasResult {
		sources = sources[1:]
	}
	if len(sources) == 0 {
		return nil
	}

	p := &Insn{kind: kindPrefix, Target: NoHandle, Line: in.Line, index: -1, classIndex: -1}
	next := 0
	for _, src := range sources {
		p.moves = append(p.moves, u.makeMove(src.withNum(next), src, in.Line))
		next += src.Category()
	}
	return p
}

// highRegisterSuffix moves the result from v0 back to its real register.
func (u *Unit) highRegisterSuffix(in *Insn, hasResult bool) *Insn {
	if !hasResult || len(in.Regs) == 0 {
		return nil
	}
	dst := in.Regs[0]
	mv := u.makeMove(dst, dst.withNum(0), in.Line)
	return &mv
}

// makeMove returns the narrowest move of the right type from src to dst.
func (u *Unit) makeMove(dst, src Reg, line int) Insn {
	fam := bytecode.FamilyMove
	switch src.Type {
	case TypeWide:
		fam = bytecode.FamilyMoveWide
	case TypeRef:
		fam = bytecode.FamilyMoveObject
	}
	mv := Insn{
		Family:     fam,
		Regs:       []Reg{dst, src},
		Target:     NoHandle,
		Line:       line,
		index:      -1,
		classIndex: -1,
	}
	nat, _ := u.naturalForm(fam)
	op := mv.operands(0, false)
	u.setForm(&mv, u.findForm(&mv, nat, &op))
	return mv
}
