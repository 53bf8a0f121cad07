package finisher

import (
	"fmt"

	"github.com/chazu/dexasm/pkg/bytecode"
)

// findForm returns the narrowest form at or above guess that fits the
// instruction and that the family actually has an opcode for, or FormNone.
// A FormNone guess stays FormNone: the instruction is already known to
// need expansion.
func (u *Unit) findForm(in *Insn, guess bytecode.Form, op *bytecode.Operands) bytecode.Form {
	if guess == bytecode.FormNone {
		return guess
	}
	if guess.Fits(op) && u.catalog.Lookup(in.Family, guess) != nil {
		return guess
	}
	for f := guess.NextUp(); f != bytecode.FormNone; f = f.NextUp() {
		if f.Fits(op) && u.catalog.Lookup(in.Family, f) != nil {
			return f
		}
	}
	return bytecode.FormNone
}

// naturalForm is the family's narrowest catalog form.
func (u *Unit) naturalForm(fam bytecode.Family) (bytecode.Form, bool) {
	d, ok := u.catalog.Natural(fam)
	if !ok {
		return bytecode.FormNone, false
	}
	return d.Form, true
}

// validate checks the producer's contract and returns the initial form
// guess for each buffer entry.
func (u *Unit) validate() ([]bytecode.Form, error) {
	forms := make([]bytecode.Form, len(u.order))
	seen := make(map[Handle]bool)

	for i, h := range u.order {
		in := &u.arena[h]
		if in.kind == kindAddress {
			if seen[h] {
				return nil, fmt.Errorf("%w: code address %d appears twice", ErrMalformed, h)
			}
			seen[h] = true
			continue
		}

		nat, ok := u.naturalForm(in.Family)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d: family %s has no opcodes", ErrMalformed, i, in.Family)
		}
		forms[i] = nat

		for _, r := range in.Regs {
			if r.Num < 0 || r.Num+r.Category() > u.regCount {
				return nil, fmt.Errorf("%w: entry %d (%s): register %s outside frame of %d",
					ErrMalformed, i, in, r, u.regCount)
			}
		}

		if in.isBranch() {
			t := in.Target
			if t < 0 || int(t) >= len(u.arena) || u.arena[t].kind != kindAddress || !u.placed[t] {
				return nil, fmt.Errorf("%w: entry %d (%s): branch target %d is not a placed code address",
					ErrMalformed, i, in, t)
			}
		}
	}
	return forms, nil
}

// reserveRegisters grows the reservation until every instruction either
// fits a form or is marked for expansion with enough low registers to
// expand into. Each growth renumbers every instruction, which can make
// further instructions stop fitting, so this runs to a fixed point.
func (u *Unit) reserveRegisters(forms []bytecode.Form) error {
	for pass := 1; ; pass++ {
		if pass > u.opts.MaxReservePasses {
			return fmt.Errorf("%w: register reservation still growing after %d passes",
				ErrNoConvergence, u.opts.MaxReservePasses)
		}
		u.stats.ReservePasses = pass

		want := u.calculateReserved(forms)
		if want <= u.reserved {
			break
		}

		delta := want - u.reserved
		log.Debugf("%s: reserving %d registers (was %d)", u.Name, want, u.reserved)
		for _, h := range u.order {
			if in := &u.arena[h]; in.kind != kindAddress {
				in.shift(delta)
			}
		}
		u.reserved = want
	}

	if top := u.regCount + u.reserved; top > 0xFFFF {
		return fmt.Errorf("%w: frame of %d registers exceeds 65535", ErrMalformed, top)
	}
	return nil
}

// calculateReserved runs form selection over every instruction at its
// current numbering, updating forms, and returns the reservation needed
// by the instructions that fit nothing.
func (u *Unit) calculateReserved(forms []bytecode.Form) int {
	want := u.reserved
	for i, h := range u.order {
		in := &u.arena[h]
		if in.kind == kindAddress {
			continue
		}
		op := in.operands(0, false)
		f := u.findForm(in, forms[i], &op)
		if f == forms[i] {
			continue
		}
		if f == bytecode.FormNone {
			want = max(want, in.minimumRegisters(u.hasResult(in)))
		}
		forms[i] = f
	}
	return want
}
