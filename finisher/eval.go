package finisher

import (
	"fmt"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// Eval interprets the unit's abstract instructions without encoding them.
// It works before and after Finish; after, the frame includes the reserved
// registers and expansion moves are executed like any other instruction.
// Comparing Eval on an unfinished clone with the VM on the encoded output
// checks that finishing preserved the unit's meaning.
//
// Pool indices come from the instructions when assigned and from r
// otherwise. maxSteps <= 0 means bytecode.DefaultMaxSteps.
func (u *Unit) Eval(r constpool.Resolver, env bytecode.Environment, args []uint32, maxSteps int) ([]uint32, error) {
	if maxSteps <= 0 {
		maxSteps = bytecode.DefaultMaxSteps
	}
	m, err := bytecode.NewMachine(u.regCount+u.reserved, env, args)
	if err != nil {
		return nil, err
	}
	pos := u.positions()

	steps := 0
	step := func(in *Insn) (bytecode.Outcome, error) {
		steps++
		if steps > maxSteps {
			return 0, fmt.Errorf("%w: %d", bytecode.ErrStepLimit, maxSteps)
		}
		index := -1
		if in.HasConst {
			index = in.index
			if index < 0 && r != nil {
				index = r.Index(in.Const)
			}
			if index < 0 {
				return 0, fmt.Errorf("%w: %v has no pool index", ErrMalformed, in.Const)
			}
		}
		out, err := m.Step(in.Family, stepRegs(in), in.Literal, index)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", in, err)
		}
		return out, nil
	}

	for i := 0; i < len(u.order); {
		in := &u.arena[u.order[i]]
		switch in.kind {
		case kindAddress:
			i++
			continue
		case kindPrefix:
			for j := range in.moves {
				if _, err := step(&in.moves[j]); err != nil {
					return nil, err
				}
			}
			i++
			continue
		}

		out, err := step(in)
		if err != nil {
			return nil, err
		}
		switch out {
		case bytecode.OutcomeReturn:
			return m.Returned, nil
		case bytecode.OutcomeJump:
			p, ok := pos[in.Target]
			if !ok {
				return nil, fmt.Errorf("%w: %s jumps to an unplaced address", ErrMalformed, in)
			}
			i = p
		default:
			i++
		}
	}
	return nil, bytecode.ErrFellOffEnd
}

// stepRegs lists the registers the way the decoder reports them: one per
// slot for invokes, one per operand otherwise.
func stepRegs(in *Insn) []int {
	if in.Family == bytecode.FamilyInvokeStatic {
		regs := make([]bytecode.Reg, len(in.Regs))
		for i, r := range in.Regs {
			regs[i] = bytecode.Reg{Num: r.Num, Wide: r.Type == TypeWide}
		}
		return bytecode.WordRegs(regs)
	}
	out := make([]int, len(in.Regs))
	for i, r := range in.Regs {
		out[i] = r.Num
	}
	return out
}
