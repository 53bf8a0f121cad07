package bytecode

import (
	"errors"
	"fmt"
)

// Environment is the outside world an executing unit talks to: static and
// instance fields and other methods. Pool indices name fields and methods.
type Environment interface {
	// Invoke calls the method at pool index method with the argument words
	// and returns the result words (none, one, or two for a wide result).
	Invoke(method int, args []uint32) ([]uint32, error)

	// GetField reads a field; obj is 0 for static fields.
	GetField(obj uint32, field int) uint32

	// SetField writes a field; obj is 0 for static fields.
	SetField(obj uint32, field int, v uint32)
}

// Outcome says where control goes after one step.
type Outcome uint8

const (
	OutcomeNext   Outcome = iota // fall through
	OutcomeJump                  // branch taken
	OutcomeReturn                // unit returned; see Machine.Returned
)

var (
	ErrDivideByZero   = errors.New("integer divide by zero")
	ErrBadRegister    = errors.New("register out of range")
	ErrUnknownFamily  = errors.New("no semantics for family")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrFellOffEnd     = errors.New("execution fell off the end of the code")
	ErrNoResultToMove = errors.New("move-result without a preceding invoke result")
)

// Machine is the register state shared by the encoded-code VM and the
// abstract-instruction evaluator. Both drive it through Step so the two
// interpreters agree on what every family means.
type Machine struct {
	Regs     []uint32
	Env      Environment
	Returned []uint32

	result    []uint32
	hasResult bool
}

// NewMachine creates a machine with regCount zeroed registers. The
// arguments occupy the highest-numbered registers.
func NewMachine(regCount int, env Environment, args []uint32) (*Machine, error) {
	if len(args) > regCount {
		return nil, fmt.Errorf("%d argument words do not fit %d registers", len(args), regCount)
	}
	m := &Machine{Regs: make([]uint32, regCount), Env: env}
	copy(m.Regs[regCount-len(args):], args)
	return m, nil
}

func (m *Machine) get(r int) (uint32, error) {
	if r < 0 || r >= len(m.Regs) {
		return 0, fmt.Errorf("%w: v%d (frame has %d)", ErrBadRegister, r, len(m.Regs))
	}
	return m.Regs[r], nil
}

func (m *Machine) set(r int, v uint32) error {
	if r < 0 || r >= len(m.Regs) {
		return fmt.Errorf("%w: v%d (frame has %d)", ErrBadRegister, r, len(m.Regs))
	}
	m.Regs[r] = v
	return nil
}

// Wide values keep the low word in r and the high word in r+1.
func (m *Machine) getWide(r int) (int64, error) {
	lo, err := m.get(r)
	if err != nil {
		return 0, err
	}
	hi, err := m.get(r + 1)
	if err != nil {
		return 0, err
	}
	return int64(uint64(lo) | uint64(hi)<<32), nil
}

func (m *Machine) setWide(r int, v int64) error {
	if err := m.set(r, uint32(v)); err != nil {
		return err
	}
	return m.set(r+1, uint32(uint64(v)>>32))
}

// Step executes one instruction of the given family. regs lists the
// operand registers with the result register first; register-list
// families pass one entry per slot. literal and index are only read by
// families that carry them.
func (m *Machine) Step(fam Family, regs []int, literal int64, index int) (Outcome, error) {
	reg := func(i int) int {
		if i < len(regs) {
			return regs[i]
		}
		return -1
	}

	switch fam {
	case FamilyNop:
		return OutcomeNext, nil

	case FamilyMove, FamilyMoveObject:
		v, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.set(reg(0), v)

	case FamilyMoveWide:
		v, err := m.getWide(reg(1))
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.setWide(reg(0), v)

	case FamilyMoveResult, FamilyMoveResultObject, FamilyMoveResultWide:
		want := 1
		if fam == FamilyMoveResultWide {
			want = 2
		}
		if !m.hasResult || len(m.result) < want {
			return 0, ErrNoResultToMove
		}
		for i := 0; i < want; i++ {
			if err := m.set(reg(0)+i, m.result[i]); err != nil {
				return 0, err
			}
		}
		m.hasResult = false
		return OutcomeNext, nil

	case FamilyReturnVoid:
		m.Returned = nil
		return OutcomeReturn, nil

	case FamilyReturn, FamilyReturnObject:
		v, err := m.get(reg(0))
		if err != nil {
			return 0, err
		}
		m.Returned = []uint32{v}
		return OutcomeReturn, nil

	case FamilyReturnWide:
		v, err := m.getWide(reg(0))
		if err != nil {
			return 0, err
		}
		m.Returned = []uint32{uint32(v), uint32(uint64(v) >> 32)}
		return OutcomeReturn, nil

	case FamilyConst:
		return OutcomeNext, m.set(reg(0), uint32(int32(literal)))

	case FamilyConstWide:
		return OutcomeNext, m.setWide(reg(0), literal)

	case FamilyConstString, FamilyConstClass:
		return OutcomeNext, m.set(reg(0), uint32(index))

	case FamilyGoto:
		return OutcomeJump, nil

	case FamilyCmpLong:
		a, err := m.getWide(reg(1))
		if err != nil {
			return 0, err
		}
		b, err := m.getWide(reg(2))
		if err != nil {
			return 0, err
		}
		var c int32
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
		return OutcomeNext, m.set(reg(0), uint32(c))

	case FamilyIfEq, FamilyIfNe, FamilyIfLt, FamilyIfGe, FamilyIfGt, FamilyIfLe:
		a, err := m.get(reg(0))
		if err != nil {
			return 0, err
		}
		b, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		return branchOutcome(compare(fam, int32(a), int32(b))), nil

	case FamilyIfEqz, FamilyIfNez, FamilyIfLtz, FamilyIfGez, FamilyIfGtz, FamilyIfLez:
		a, err := m.get(reg(0))
		if err != nil {
			return 0, err
		}
		return branchOutcome(compare(fam, int32(a), 0)), nil

	case FamilyIget:
		obj, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.set(reg(0), m.Env.GetField(obj, index))

	case FamilyIput:
		v, err := m.get(reg(0))
		if err != nil {
			return 0, err
		}
		obj, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		m.Env.SetField(obj, index, v)
		return OutcomeNext, nil

	case FamilySget:
		return OutcomeNext, m.set(reg(0), m.Env.GetField(0, index))

	case FamilySput:
		v, err := m.get(reg(0))
		if err != nil {
			return 0, err
		}
		m.Env.SetField(0, index, v)
		return OutcomeNext, nil

	case FamilyInvokeStatic:
		args := make([]uint32, len(regs))
		for i, r := range regs {
			v, err := m.get(r)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		res, err := m.Env.Invoke(index, args)
		if err != nil {
			return 0, fmt.Errorf("invoke method@%d: %w", index, err)
		}
		m.result = res
		m.hasResult = len(res) > 0
		return OutcomeNext, nil

	case FamilyNegInt:
		v, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.set(reg(0), uint32(-int32(v)))

	case FamilyRsubInt:
		v, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.set(reg(0), uint32(int32(literal)-int32(v)))

	case FamilyAddInt, FamilySubInt, FamilyMulInt, FamilyDivInt,
		FamilyRemInt, FamilyAndInt, FamilyOrInt, FamilyXorInt:
		a, err := m.get(reg(1))
		if err != nil {
			return 0, err
		}
		var b int32
		if len(regs) == 2 {
			b = int32(literal)
		} else {
			v, err := m.get(reg(2))
			if err != nil {
				return 0, err
			}
			b = int32(v)
		}
		r, err := intOp(fam, int32(a), b)
		if err != nil {
			return 0, err
		}
		return OutcomeNext, m.set(reg(0), uint32(r))

	case FamilyAddLong, FamilySubLong:
		a, err := m.getWide(reg(1))
		if err != nil {
			return 0, err
		}
		b, err := m.getWide(reg(2))
		if err != nil {
			return 0, err
		}
		if fam == FamilyAddLong {
			return OutcomeNext, m.setWide(reg(0), a+b)
		}
		return OutcomeNext, m.setWide(reg(0), a-b)
	}

	return 0, fmt.Errorf("%w: %s", ErrUnknownFamily, fam)
}

func branchOutcome(taken bool) Outcome {
	if taken {
		return OutcomeJump
	}
	return OutcomeNext
}

func compare(fam Family, a, b int32) bool {
	switch fam {
	case FamilyIfEq, FamilyIfEqz:
		return a == b
	case FamilyIfNe, FamilyIfNez:
		return a != b
	case FamilyIfLt, FamilyIfLtz:
		return a < b
	case FamilyIfGe, FamilyIfGez:
		return a >= b
	case FamilyIfGt, FamilyIfGtz:
		return a > b
	case FamilyIfLe, FamilyIfLez:
		return a <= b
	}
	return false
}

func intOp(fam Family, a, b int32) (int32, error) {
	switch fam {
	case FamilyAddInt:
		return a + b, nil
	case FamilySubInt:
		return a - b, nil
	case FamilyMulInt:
		return a * b, nil
	case FamilyDivInt:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case FamilyRemInt:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	case FamilyAndInt:
		return a & b, nil
	case FamilyOrInt:
		return a | b, nil
	case FamilyXorInt:
		return a ^ b, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFamily, fam)
}
