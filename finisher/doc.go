// Package finisher turns a list of abstract register instructions into
// encodable code.
//
// An abstract instruction names its operation by family, uses registers of
// any width and branches to symbolic code addresses. Finishing chooses the
// narrowest form for each instruction, reserves low registers and rewrites
// instructions whose operands no form can hold, then assigns addresses and
// repairs branches whose displacement no longer fits. Each of these steps
// can undo the assumptions of the others, so both the reservation and the
// branch fixup run to a fixed point.
//
// A Unit is built once, finished once:
//
//	u := finisher.NewUnit(nil, 301, finisher.Options{})
//	u.Add(finisher.Op(bytecode.FamilyAddInt, finisher.R(0), finisher.R(1), finisher.R(300)))
//	u.Add(finisher.Op(bytecode.FamilyReturn, finisher.R(0)))
//	list, err := u.Finish(pool)
//	chunk, err := list.Encode()
package finisher
