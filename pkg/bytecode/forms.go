package bytecode

import "fmt"

// Form identifies one wire-level instruction layout. Forms are named after
// their shape: the first digit is the size in 16-bit code units, the second
// the number of register fields, and the letter the kind of the trailing
// payload (x none, n nibble literal, s/b/i/l literals, h high-order literal,
// t branch offset, c pool index, rc register range).
//
// Forms are declared in order of increasing width. NextUp walks that order,
// which is the total ordering used to pessimize a choice that does not fit.
type Form uint8

const (
	FormNone Form = iota // sentinel: no simple form fits

	Form10x // op
	Form12x // op vA, vB
	Form11n // op vA, #+B
	Form11x // op vAA
	Form10t // op +AA
	Form20t // op +AAAA
	Form22x // op vAA, vBBBB
	Form21t // op vAA, +BBBB
	Form21s // op vAA, #+BBBB
	Form21h // op vAA, #+BBBB0000[00000000]
	Form21c // op vAA, kind@BBBB
	Form23x // op vAA, vBB, vCC
	Form22b // op vAA, vBB, #+CC
	Form22t // op vA, vB, +CCCC
	Form22s // op vA, vB, #+CCCC
	Form22c // op vA, vB, kind@CCCC
	Form30t // op +AAAAAAAA
	Form32x // op vAAAA, vBBBB
	Form31i // op vAA, #+BBBBBBBB
	Form31c // op vAA, kind@BBBBBBBB
	Form35c // op {vC, vD, vE, vF, vG}, kind@BBBB
	Form3rc // op {vCCCC .. vNNNN}, kind@BBBB
	Form51l // op vAA, #+BBBBBBBBBBBBBBBB

	formCount
)

// formInfo holds per-form metadata.
type formInfo struct {
	name string
	size int // code units
}

var formInfoTable = [formCount]formInfo{
	FormNone: {"none", 0},
	Form10x:  {"10x", 1},
	Form12x:  {"12x", 1},
	Form11n:  {"11n", 1},
	Form11x:  {"11x", 1},
	Form10t:  {"10t", 1},
	Form20t:  {"20t", 2},
	Form22x:  {"22x", 2},
	Form21t:  {"21t", 2},
	Form21s:  {"21s", 2},
	Form21h:  {"21h", 2},
	Form21c:  {"21c", 2},
	Form23x:  {"23x", 2},
	Form22b:  {"22b", 2},
	Form22t:  {"22t", 2},
	Form22s:  {"22s", 2},
	Form22c:  {"22c", 2},
	Form30t:  {"30t", 3},
	Form32x:  {"32x", 3},
	Form31i:  {"31i", 3},
	Form31c:  {"31c", 3},
	Form35c:  {"35c", 3},
	Form3rc:  {"3rc", 3},
	Form51l:  {"51l", 5},
}

// String returns the conventional form name, e.g. "23x".
func (f Form) String() string {
	if f >= formCount {
		return fmt.Sprintf("Form(%d)", uint8(f))
	}
	return formInfoTable[f].name
}

// Size returns the encoded size of the form in code units.
func (f Form) Size() int {
	if f >= formCount {
		return 0
	}
	return formInfoTable[f].size
}

// NextUp returns the next wider form, or FormNone past the widest.
func (f Form) NextUp() Form {
	if f == FormNone || f+1 >= formCount {
		return FormNone
	}
	return f + 1
}

// AllForms returns every real form in width order.
func AllForms() []Form {
	forms := make([]Form, 0, formCount-1)
	for f := Form10x; f < formCount; f++ {
		forms = append(forms, f)
	}
	return forms
}

// IsBranch reports whether the form carries a branch offset.
func (f Form) IsBranch() bool {
	switch f {
	case Form10t, Form20t, Form30t, Form21t, Form22t:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Operand view
// ---------------------------------------------------------------------------

// OperandKind classifies the non-register payload an instruction carries.
type OperandKind uint8

const (
	KindPlain   OperandKind = iota // registers only
	KindLiteral                    // registers plus an immediate
	KindIndex                      // registers plus a constant pool index
	KindBranch                     // registers plus a branch displacement
)

func (k OperandKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindLiteral:
		return "literal"
	case KindIndex:
		return "index"
	case KindBranch:
		return "branch"
	default:
		return fmt.Sprintf("OperandKind(%d)", uint8(k))
	}
}

// Reg is one register operand as the encoder sees it.
type Reg struct {
	Num  int
	Wide bool // occupies Num and Num+1
}

// Category returns the number of register slots the operand occupies.
func (r Reg) Category() int {
	if r.Wide {
		return 2
	}
	return 1
}

// Operands is the encoder's view of an instruction: everything a form needs
// to decide whether it can represent the instruction.
type Operands struct {
	Kind    OperandKind
	Regs    []Reg
	Literal int64
	Index   int // -1 while the pool index is not yet known

	// Offset is the branch displacement in code units, relative to the
	// branch's own address. Only meaningful when HasOffset is set; before
	// addresses are assigned every branch is assumed to fit.
	Offset    int
	HasOffset bool
}

// Fits reports whether the form can represent the operands.
func (f Form) Fits(op *Operands) bool {
	regs := op.Regs
	switch f {
	case Form10x:
		return op.Kind == KindPlain && len(regs) == 0

	case Form12x:
		if op.Kind != KindPlain {
			return false
		}
		switch len(regs) {
		case 2:
			return isNibble(regs[0].Num) && isNibble(regs[1].Num)
		case 3:
			// two-address variant: the result doubles as the first source
			return regs[0].Num == regs[1].Num &&
				isNibble(regs[1].Num) && isNibble(regs[2].Num)
		}
		return false

	case Form11n:
		return op.Kind == KindLiteral && len(regs) == 1 &&
			isNibble(regs[0].Num) && fitsSigned(op.Literal, 4)

	case Form11x:
		return op.Kind == KindPlain && len(regs) == 1 && isByte(regs[0].Num)

	case Form10t:
		return op.Kind == KindBranch && len(regs) == 0 && branchFits(op, 8)

	case Form20t:
		return op.Kind == KindBranch && len(regs) == 0 && branchFits(op, 16)

	case Form22x:
		return op.Kind == KindPlain && len(regs) == 2 &&
			isByte(regs[0].Num) && isUnit(regs[1].Num)

	case Form21t:
		return op.Kind == KindBranch && len(regs) == 1 &&
			isByte(regs[0].Num) && branchFits(op, 16)

	case Form21s:
		return op.Kind == KindLiteral && len(regs) == 1 &&
			isByte(regs[0].Num) && fitsSigned(op.Literal, 16)

	case Form21h:
		if op.Kind != KindLiteral || len(regs) != 1 || !isByte(regs[0].Num) {
			return false
		}
		if regs[0].Wide {
			return op.Literal&0x0000FFFFFFFFFFFF == 0
		}
		return op.Literal&0xFFFF == 0 && fitsSigned(op.Literal, 32)

	case Form21c:
		return op.Kind == KindIndex && len(regs) == 1 &&
			isByte(regs[0].Num) && indexFits(op, 0xFFFF)

	case Form23x:
		return op.Kind == KindPlain && len(regs) == 3 &&
			isByte(regs[0].Num) && isByte(regs[1].Num) && isByte(regs[2].Num)

	case Form22b:
		return op.Kind == KindLiteral && len(regs) == 2 &&
			isByte(regs[0].Num) && isByte(regs[1].Num) && fitsSigned(op.Literal, 8)

	case Form22t:
		return op.Kind == KindBranch && len(regs) == 2 &&
			isNibble(regs[0].Num) && isNibble(regs[1].Num) && branchFits(op, 16)

	case Form22s:
		return op.Kind == KindLiteral && len(regs) == 2 &&
			isNibble(regs[0].Num) && isNibble(regs[1].Num) && fitsSigned(op.Literal, 16)

	case Form22c:
		return op.Kind == KindIndex && len(regs) == 2 &&
			isNibble(regs[0].Num) && isNibble(regs[1].Num) && indexFits(op, 0xFFFF)

	case Form30t:
		return op.Kind == KindBranch && len(regs) == 0 &&
			(!op.HasOffset || fitsSigned(int64(op.Offset), 32))

	case Form32x:
		return op.Kind == KindPlain && len(regs) == 2 &&
			isUnit(regs[0].Num) && isUnit(regs[1].Num)

	case Form31i:
		return op.Kind == KindLiteral && len(regs) == 1 &&
			isByte(regs[0].Num) && fitsSigned(op.Literal, 32)

	case Form31c:
		return op.Kind == KindIndex && len(regs) == 1 &&
			isByte(regs[0].Num) && indexFits(op, 0xFFFFFFFF)

	case Form35c:
		if op.Kind != KindIndex || !indexFits(op, 0xFFFF) {
			return false
		}
		words := 0
		for _, r := range regs {
			if r.Num < 0 || !isNibble(r.Num+r.Category()-1) {
				return false
			}
			words += r.Category()
		}
		return words <= 5

	case Form3rc:
		if op.Kind != KindIndex || !indexFits(op, 0xFFFF) {
			return false
		}
		if len(regs) == 0 {
			return true
		}
		next := regs[0].Num
		for _, r := range regs {
			if r.Num != next {
				return false
			}
			next += r.Category()
		}
		words := next - regs[0].Num
		return isUnit(regs[0].Num) && words <= 255 && next-1 <= 0xFFFF

	case Form51l:
		return op.Kind == KindLiteral && len(regs) == 1 && isByte(regs[0].Num)
	}
	return false
}

// WordRegs expands the register list into the individual slots a
// register-list form (35c, 3rc) encodes: a wide operand contributes two.
func WordRegs(regs []Reg) []int {
	words := make([]int, 0, len(regs)+2)
	for _, r := range regs {
		words = append(words, r.Num)
		if r.Wide {
			words = append(words, r.Num+1)
		}
	}
	return words
}

func isNibble(n int) bool { return n >= 0 && n < 1<<4 }
func isByte(n int) bool   { return n >= 0 && n < 1<<8 }
func isUnit(n int) bool   { return n >= 0 && n < 1<<16 }

func fitsSigned(v int64, bits uint) bool {
	lim := int64(1) << (bits - 1)
	return v >= -lim && v < lim
}

func indexFits(op *Operands, max int) bool {
	return op.Index < 0 || op.Index <= max
}

// branchFits applies the zero-offset rule: only the 32-bit form may branch
// to itself.
func branchFits(op *Operands, bits uint) bool {
	if !op.HasOffset {
		return true
	}
	return op.Offset != 0 && fitsSigned(int64(op.Offset), bits)
}
