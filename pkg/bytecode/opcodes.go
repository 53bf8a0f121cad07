package bytecode

import "fmt"

// Opcode is the numeric value stored in the low byte of an instruction's
// first code unit.
type Opcode uint8

// Family is the register-width-independent identity of an operation. Its
// value is the opcode of the family's canonical member, so every opcode
// belongs to exactly one family but a family may span several opcodes
// that differ only in form.
type Family uint8

// Families. Values match the canonical opcode of each family.
const (
	FamilyNop              Family = 0x00
	FamilyMove             Family = 0x01
	FamilyMoveWide         Family = 0x04
	FamilyMoveObject       Family = 0x07
	FamilyMoveResult       Family = 0x0A
	FamilyMoveResultWide   Family = 0x0B
	FamilyMoveResultObject Family = 0x0C
	FamilyReturnVoid       Family = 0x0E
	FamilyReturn           Family = 0x0F
	FamilyReturnWide       Family = 0x10
	FamilyReturnObject     Family = 0x11
	FamilyConst            Family = 0x14
	FamilyConstWide        Family = 0x18
	FamilyConstString      Family = 0x1A
	FamilyConstClass       Family = 0x1C
	FamilyGoto             Family = 0x28
	FamilyCmpLong          Family = 0x31
	FamilyIfEq             Family = 0x32
	FamilyIfNe             Family = 0x33
	FamilyIfLt             Family = 0x34
	FamilyIfGe             Family = 0x35
	FamilyIfGt             Family = 0x36
	FamilyIfLe             Family = 0x37
	FamilyIfEqz            Family = 0x38
	FamilyIfNez            Family = 0x39
	FamilyIfLtz            Family = 0x3A
	FamilyIfGez            Family = 0x3B
	FamilyIfGtz            Family = 0x3C
	FamilyIfLez            Family = 0x3D
	FamilyIget             Family = 0x52
	FamilyIput             Family = 0x59
	FamilySget             Family = 0x60
	FamilySput             Family = 0x67
	FamilyInvokeStatic     Family = 0x71
	FamilyNegInt           Family = 0x7B
	FamilyAddInt           Family = 0x90
	FamilySubInt           Family = 0x91
	FamilyMulInt           Family = 0x92
	FamilyDivInt           Family = 0x93
	FamilyRemInt           Family = 0x94
	FamilyAndInt           Family = 0x95
	FamilyOrInt            Family = 0x96
	FamilyXorInt           Family = 0x97
	FamilyAddLong          Family = 0x9B
	FamilySubLong          Family = 0x9C
	FamilyRsubInt          Family = 0xD1
)

var familyNames = map[Family]string{
	FamilyNop:              "nop",
	FamilyMove:             "move",
	FamilyMoveWide:         "move-wide",
	FamilyMoveObject:       "move-object",
	FamilyMoveResult:       "move-result",
	FamilyMoveResultWide:   "move-result-wide",
	FamilyMoveResultObject: "move-result-object",
	FamilyReturnVoid:       "return-void",
	FamilyReturn:           "return",
	FamilyReturnWide:       "return-wide",
	FamilyReturnObject:     "return-object",
	FamilyConst:            "const",
	FamilyConstWide:        "const-wide",
	FamilyConstString:      "const-string",
	FamilyConstClass:       "const-class",
	FamilyGoto:             "goto",
	FamilyCmpLong:          "cmp-long",
	FamilyIfEq:             "if-eq",
	FamilyIfNe:             "if-ne",
	FamilyIfLt:             "if-lt",
	FamilyIfGe:             "if-ge",
	FamilyIfGt:             "if-gt",
	FamilyIfLe:             "if-le",
	FamilyIfEqz:            "if-eqz",
	FamilyIfNez:            "if-nez",
	FamilyIfLtz:            "if-ltz",
	FamilyIfGez:            "if-gez",
	FamilyIfGtz:            "if-gtz",
	FamilyIfLez:            "if-lez",
	FamilyIget:             "iget",
	FamilyIput:             "iput",
	FamilySget:             "sget",
	FamilySput:             "sput",
	FamilyInvokeStatic:     "invoke-static",
	FamilyNegInt:           "neg-int",
	FamilyAddInt:           "add-int",
	FamilySubInt:           "sub-int",
	FamilyMulInt:           "mul-int",
	FamilyDivInt:           "div-int",
	FamilyRemInt:           "rem-int",
	FamilyAndInt:           "and-int",
	FamilyOrInt:            "or-int",
	FamilyXorInt:           "xor-int",
	FamilyAddLong:          "add-long",
	FamilySubLong:          "sub-long",
	FamilyRsubInt:          "rsub-int",
}

// String returns the family's canonical name.
func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(0x%02X)", uint8(f))
}

// FamilyByName returns the family with the given canonical name.
func FamilyByName(name string) (Family, bool) {
	for f, n := range familyNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// opposites pairs each conditional branch family with its logical negation.
// Every conditional family in the instruction set is listed; there are no
// floating-point branches (float compares produce an int via cmpl/cmpg).
var opposites = map[Family]Family{
	FamilyIfEq:  FamilyIfNe,
	FamilyIfNe:  FamilyIfEq,
	FamilyIfLt:  FamilyIfGe,
	FamilyIfGe:  FamilyIfLt,
	FamilyIfGt:  FamilyIfLe,
	FamilyIfLe:  FamilyIfGt,
	FamilyIfEqz: FamilyIfNez,
	FamilyIfNez: FamilyIfEqz,
	FamilyIfLtz: FamilyIfGez,
	FamilyIfGez: FamilyIfLtz,
	FamilyIfGtz: FamilyIfLez,
	FamilyIfLez: FamilyIfGtz,
}

// Opposite returns the family testing the negated condition. The second
// result is false for families that are not reversible conditionals.
func (f Family) Opposite() (Family, bool) {
	o, ok := opposites[f]
	return o, ok
}

// IsConditional reports whether f is a conditional branch family.
func (f Family) IsConditional() bool {
	_, ok := opposites[f]
	return ok
}

// IsBranch reports whether instructions of this family carry a target.
func (f Family) IsBranch() bool {
	return f == FamilyGoto || f.IsConditional()
}

// Descriptor is one concrete opcode: a family realized in a specific form.
type Descriptor struct {
	Opcode    Opcode
	Family    Family
	Form      Form
	HasResult bool   // first register operand is written
	Name      string // mnemonic, e.g. "add-int/lit8"

	// TwoAddr marks 12x encodings of three-register families, where the
	// result register doubles as the first source.
	TwoAddr bool
}

// String returns the descriptor's mnemonic.
func (d *Descriptor) String() string {
	return d.Name
}

// Size returns the encoded size of the descriptor's form in code units.
func (d *Descriptor) Size() int {
	return d.Form.Size()
}

// standardDescriptors is the instruction set shipped with the assembler.
var standardDescriptors = []Descriptor{
	{0x00, FamilyNop, Form10x, false, "nop", false},

	{0x01, FamilyMove, Form12x, true, "move", false},
	{0x02, FamilyMove, Form22x, true, "move/from16", false},
	{0x03, FamilyMove, Form32x, true, "move/16", false},
	{0x04, FamilyMoveWide, Form12x, true, "move-wide", false},
	{0x05, FamilyMoveWide, Form22x, true, "move-wide/from16", false},
	{0x06, FamilyMoveWide, Form32x, true, "move-wide/16", false},
	{0x07, FamilyMoveObject, Form12x, true, "move-object", false},
	{0x08, FamilyMoveObject, Form22x, true, "move-object/from16", false},
	{0x09, FamilyMoveObject, Form32x, true, "move-object/16", false},
	{0x0A, FamilyMoveResult, Form11x, true, "move-result", false},
	{0x0B, FamilyMoveResultWide, Form11x, true, "move-result-wide", false},
	{0x0C, FamilyMoveResultObject, Form11x, true, "move-result-object", false},

	{0x0E, FamilyReturnVoid, Form10x, false, "return-void", false},
	{0x0F, FamilyReturn, Form11x, false, "return", false},
	{0x10, FamilyReturnWide, Form11x, false, "return-wide", false},
	{0x11, FamilyReturnObject, Form11x, false, "return-object", false},

	{0x12, FamilyConst, Form11n, true, "const/4", false},
	{0x13, FamilyConst, Form21s, true, "const/16", false},
	{0x14, FamilyConst, Form31i, true, "const", false},
	{0x15, FamilyConst, Form21h, true, "const/high16", false},
	{0x16, FamilyConstWide, Form21s, true, "const-wide/16", false},
	{0x17, FamilyConstWide, Form31i, true, "const-wide/32", false},
	{0x18, FamilyConstWide, Form51l, true, "const-wide", false},
	{0x19, FamilyConstWide, Form21h, true, "const-wide/high16", false},
	{0x1A, FamilyConstString, Form21c, true, "const-string", false},
	{0x1B, FamilyConstString, Form31c, true, "const-string/jumbo", false},
	{0x1C, FamilyConstClass, Form21c, true, "const-class", false},

	{0x28, FamilyGoto, Form10t, false, "goto", false},
	{0x29, FamilyGoto, Form20t, false, "goto/16", false},
	{0x2A, FamilyGoto, Form30t, false, "goto/32", false},

	{0x31, FamilyCmpLong, Form23x, true, "cmp-long", false},

	{0x32, FamilyIfEq, Form22t, false, "if-eq", false},
	{0x33, FamilyIfNe, Form22t, false, "if-ne", false},
	{0x34, FamilyIfLt, Form22t, false, "if-lt", false},
	{0x35, FamilyIfGe, Form22t, false, "if-ge", false},
	{0x36, FamilyIfGt, Form22t, false, "if-gt", false},
	{0x37, FamilyIfLe, Form22t, false, "if-le", false},
	{0x38, FamilyIfEqz, Form21t, false, "if-eqz", false},
	{0x39, FamilyIfNez, Form21t, false, "if-nez", false},
	{0x3A, FamilyIfLtz, Form21t, false, "if-ltz", false},
	{0x3B, FamilyIfGez, Form21t, false, "if-gez", false},
	{0x3C, FamilyIfGtz, Form21t, false, "if-gtz", false},
	{0x3D, FamilyIfLez, Form21t, false, "if-lez", false},

	{0x52, FamilyIget, Form22c, true, "iget", false},
	{0x59, FamilyIput, Form22c, false, "iput", false},
	{0x60, FamilySget, Form21c, true, "sget", false},
	{0x67, FamilySput, Form21c, false, "sput", false},

	{0x71, FamilyInvokeStatic, Form35c, false, "invoke-static", false},
	{0x77, FamilyInvokeStatic, Form3rc, false, "invoke-static/range", false},

	{0x7B, FamilyNegInt, Form12x, true, "neg-int", false},

	{0x90, FamilyAddInt, Form23x, true, "add-int", false},
	{0x91, FamilySubInt, Form23x, true, "sub-int", false},
	{0x92, FamilyMulInt, Form23x, true, "mul-int", false},
	{0x93, FamilyDivInt, Form23x, true, "div-int", false},
	{0x94, FamilyRemInt, Form23x, true, "rem-int", false},
	{0x95, FamilyAndInt, Form23x, true, "and-int", false},
	{0x96, FamilyOrInt, Form23x, true, "or-int", false},
	{0x97, FamilyXorInt, Form23x, true, "xor-int", false},
	{0x9B, FamilyAddLong, Form23x, true, "add-long", false},
	{0x9C, FamilySubLong, Form23x, true, "sub-long", false},

	{0xB0, FamilyAddInt, Form12x, true, "add-int/2addr", true},
	{0xB1, FamilySubInt, Form12x, true, "sub-int/2addr", true},
	{0xB2, FamilyMulInt, Form12x, true, "mul-int/2addr", true},
	{0xB3, FamilyDivInt, Form12x, true, "div-int/2addr", true},
	{0xB4, FamilyRemInt, Form12x, true, "rem-int/2addr", true},
	{0xB5, FamilyAndInt, Form12x, true, "and-int/2addr", true},
	{0xB6, FamilyOrInt, Form12x, true, "or-int/2addr", true},
	{0xB7, FamilyXorInt, Form12x, true, "xor-int/2addr", true},
	{0xBB, FamilyAddLong, Form12x, true, "add-long/2addr", true},
	{0xBC, FamilySubLong, Form12x, true, "sub-long/2addr", true},

	{0xD0, FamilyAddInt, Form22s, true, "add-int/lit16", false},
	{0xD1, FamilyRsubInt, Form22s, true, "rsub-int", false},
	{0xD2, FamilyMulInt, Form22s, true, "mul-int/lit16", false},
	{0xD3, FamilyDivInt, Form22s, true, "div-int/lit16", false},
	{0xD4, FamilyRemInt, Form22s, true, "rem-int/lit16", false},
	{0xD5, FamilyAndInt, Form22s, true, "and-int/lit16", false},
	{0xD6, FamilyOrInt, Form22s, true, "or-int/lit16", false},
	{0xD7, FamilyXorInt, Form22s, true, "xor-int/lit16", false},
	{0xD8, FamilyAddInt, Form22b, true, "add-int/lit8", false},
	{0xD9, FamilyRsubInt, Form22b, true, "rsub-int/lit8", false},
	{0xDA, FamilyMulInt, Form22b, true, "mul-int/lit8", false},
	{0xDB, FamilyDivInt, Form22b, true, "div-int/lit8", false},
	{0xDC, FamilyRemInt, Form22b, true, "rem-int/lit8", false},
	{0xDD, FamilyAndInt, Form22b, true, "and-int/lit8", false},
	{0xDE, FamilyOrInt, Form22b, true, "or-int/lit8", false},
	{0xDF, FamilyXorInt, Form22b, true, "xor-int/lit8", false},
}

// StandardDescriptors returns a copy of the built-in instruction set.
func StandardDescriptors() []Descriptor {
	out := make([]Descriptor, len(standardDescriptors))
	copy(out, standardDescriptors)
	return out
}
