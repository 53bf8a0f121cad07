package finisher

import (
	"fmt"

	"github.com/chazu/dexasm/pkg/bytecode"
)

// assignAddressesAndFixBranches alternates address assignment with branch
// fixup until a full pass rewrites nothing.
func (u *Unit) assignAddressesAndFixBranches() error {
	for pass := 1; ; pass++ {
		if pass > u.opts.MaxFixupPasses {
			return fmt.Errorf("%w: branches still changing after %d passes",
				ErrNoConvergence, u.opts.MaxFixupPasses)
		}
		u.stats.FixupPasses++

		size := u.assignAddresses()
		fixed, err := u.fixBranches()
		if err != nil {
			return err
		}
		log.Debugf("%s: fixup pass %d: %d code units, %d branches rewritten", u.Name, pass, size, fixed)
		if fixed == 0 {
			return nil
		}
	}
}

// assignAddresses numbers every entry with the running code size and
// returns the total.
func (u *Unit) assignAddresses() int {
	addr := 0
	for _, h := range u.order {
		in := &u.arena[h]
		in.address = addr
		addr += in.size()
	}
	return addr
}

// branchOffset returns the displacement from a branch to its target.
func (u *Unit) branchOffset(in *Insn) int {
	return u.arena[in.Target].address - in.address
}

// fixBranches rewrites every branch whose displacement its form cannot
// hold. A goto moves to a wider form. A conditional has its test reversed
// to jump over a new goto to the original target:
//
//	if-eq v0, v1, far      if-ne v0, v1, next
//	                  =>   goto far
//	                       next:
//
// It returns how many branches were rewritten.
func (u *Unit) fixBranches() (int, error) {
	fixed := 0
	for i := 0; i < len(u.order); i++ {
		h := u.order[i]
		in := &u.arena[h]
		if !in.isBranch() {
			continue
		}

		op := in.operands(u.branchOffset(in), true)
		if in.form.Fits(&op) {
			continue
		}

		if in.Family == bytecode.FamilyGoto {
			f := u.findForm(in, in.form, &op)
			if f == bytecode.FormNone {
				return fixed, fmt.Errorf("%w: goto at %04x cannot reach %+d code units",
					ErrUnitTooLarge, in.address, op.Offset)
			}
			u.setForm(in, f)
			u.stats.Widened++
			fixed++
			continue
		}

		opp, ok := in.Family.Opposite()
		if !ok {
			return fixed, fmt.Errorf("%w: %s cannot be reversed", ErrMalformed, in)
		}
		if u.catalog.Lookup(opp, in.form) == nil {
			return fixed, fmt.Errorf("%w: no %s in form %s to reverse %s", ErrMalformed, opp, in.form, in)
		}

		next := u.alloc(Insn{kind: kindAddress, Target: NoHandle, index: -1, classIndex: -1})
		jump := Op(bytecode.FamilyGoto)
		jump.Target = in.Target
		jump.Line = in.Line
		jump.index, jump.classIndex = -1, -1
		nat, _ := u.naturalForm(bytecode.FamilyGoto)
		u.setForm(&jump, nat)
		jh := u.alloc(jump)

		// alloc may have moved the arena
		in = &u.arena[h]
		in.Family = opp
		in.Target = next
		in.desc = u.catalog.Lookup(opp, in.form)

		u.placed[next] = true
		u.splice(i+1, jh, next)
		i += 2

		u.stats.Reversed++
		fixed++
	}
	return fixed, nil
}
