package bytecode

import "testing"

func TestFormSizes(t *testing.T) {
	tests := []struct {
		form Form
		want int
	}{
		{Form10x, 1},
		{Form12x, 1},
		{Form10t, 1},
		{Form20t, 2},
		{Form23x, 2},
		{Form22c, 2},
		{Form30t, 3},
		{Form32x, 3},
		{Form35c, 3},
		{Form3rc, 3},
		{Form51l, 5},
		{FormNone, 0},
	}

	for _, tt := range tests {
		if got := tt.form.Size(); got != tt.want {
			t.Errorf("%s.Size() = %d, want %d", tt.form, got, tt.want)
		}
	}
}

func TestNextUpNeverShrinks(t *testing.T) {
	for _, f := range AllForms() {
		next := f.NextUp()
		if next == FormNone {
			if f != Form51l {
				t.Errorf("%s.NextUp() = none before the widest form", f)
			}
			continue
		}
		if next.Size() < f.Size() {
			t.Errorf("%s (%d units) steps up to smaller %s (%d units)", f, f.Size(), next, next.Size())
		}
	}
	if FormNone.NextUp() != FormNone {
		t.Error("FormNone.NextUp() should stay FormNone")
	}
}

func TestFormString(t *testing.T) {
	if got := Form22x.String(); got != "22x" {
		t.Errorf("Form22x.String() = %q", got)
	}
	if got := Form(200).String(); got != "Form(200)" {
		t.Errorf("Form(200).String() = %q", got)
	}
}

func regs(nums ...int) []Reg {
	out := make([]Reg, len(nums))
	for i, n := range nums {
		out[i] = Reg{Num: n}
	}
	return out
}

func TestFits(t *testing.T) {
	wide := func(n int) Reg { return Reg{Num: n, Wide: true} }

	tests := []struct {
		name string
		form Form
		op   Operands
		want bool
	}{
		{"12x nibbles", Form12x, Operands{Regs: regs(1, 15)}, true},
		{"12x wide register", Form12x, Operands{Regs: regs(16, 2)}, false},
		{"12x two-address", Form12x, Operands{Regs: regs(3, 3, 4)}, true},
		{"12x three distinct", Form12x, Operands{Regs: regs(3, 4, 5)}, false},
		{"12x literal", Form12x, Operands{Kind: KindLiteral, Regs: regs(1, 2)}, false},

		{"11n min", Form11n, Operands{Kind: KindLiteral, Regs: regs(1), Literal: -8}, true},
		{"11n too big", Form11n, Operands{Kind: KindLiteral, Regs: regs(1), Literal: 8}, false},

		{"22x", Form22x, Operands{Regs: regs(255, 65535)}, true},
		{"22x dest too wide", Form22x, Operands{Regs: regs(256, 1)}, false},
		{"32x", Form32x, Operands{Regs: regs(65535, 65535)}, true},
		{"32x beyond units", Form32x, Operands{Regs: regs(65536, 0)}, false},

		{"23x bytes", Form23x, Operands{Regs: regs(0, 255, 1)}, true},
		{"23x v256", Form23x, Operands{Regs: regs(0, 256, 1)}, false},

		{"21h int", Form21h, Operands{Kind: KindLiteral, Regs: regs(0), Literal: 0x10000}, true},
		{"21h int low bits", Form21h, Operands{Kind: KindLiteral, Regs: regs(0), Literal: 0x10001}, false},
		{"21h int too big", Form21h, Operands{Kind: KindLiteral, Regs: regs(0), Literal: 1 << 48}, false},
		{"21h wide", Form21h, Operands{Kind: KindLiteral, Regs: []Reg{wide(0)}, Literal: 1 << 48}, true},
		{"21h wide low bits", Form21h, Operands{Kind: KindLiteral, Regs: []Reg{wide(0)}, Literal: 1<<48 | 1}, false},

		{"10t unassigned", Form10t, Operands{Kind: KindBranch}, true},
		{"10t max", Form10t, Operands{Kind: KindBranch, Offset: 127, HasOffset: true}, true},
		{"10t overflow", Form10t, Operands{Kind: KindBranch, Offset: 128, HasOffset: true}, false},
		{"10t min", Form10t, Operands{Kind: KindBranch, Offset: -128, HasOffset: true}, true},
		{"10t self", Form10t, Operands{Kind: KindBranch, Offset: 0, HasOffset: true}, false},
		{"20t self", Form20t, Operands{Kind: KindBranch, Offset: 0, HasOffset: true}, false},
		{"30t self", Form30t, Operands{Kind: KindBranch, Offset: 0, HasOffset: true}, true},
		{"22t far", Form22t, Operands{Kind: KindBranch, Regs: regs(1, 2), Offset: -70000, HasOffset: true}, false},

		{"21c unknown index", Form21c, Operands{Kind: KindIndex, Regs: regs(0), Index: -1}, true},
		{"21c index too big", Form21c, Operands{Kind: KindIndex, Regs: regs(0), Index: 0x10000}, false},
		{"31c jumbo index", Form31c, Operands{Kind: KindIndex, Regs: regs(0), Index: 0x10000}, true},

		{"35c five", Form35c, Operands{Kind: KindIndex, Regs: regs(1, 2, 3, 4, 5)}, true},
		{"35c six", Form35c, Operands{Kind: KindIndex, Regs: regs(1, 2, 3, 4, 5, 6)}, false},
		{"35c three wide", Form35c, Operands{Kind: KindIndex, Regs: []Reg{wide(0), wide(2), wide(4)}}, false},
		{"35c wide straddles", Form35c, Operands{Kind: KindIndex, Regs: []Reg{wide(15)}}, false},
		{"3rc sequential", Form3rc, Operands{Kind: KindIndex, Regs: regs(20, 21, 22)}, true},
		{"3rc gap", Form3rc, Operands{Kind: KindIndex, Regs: regs(20, 22)}, false},
		{"3rc wide sequential", Form3rc, Operands{Kind: KindIndex, Regs: []Reg{wide(20), {Num: 22}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.form.Fits(&tt.op); got != tt.want {
				t.Errorf("%s.Fits(%+v) = %v, want %v", tt.form, tt.op, got, tt.want)
			}
		})
	}
}

func TestWordRegs(t *testing.T) {
	got := WordRegs([]Reg{{Num: 1}, {Num: 2, Wide: true}, {Num: 9}})
	want := []int{1, 2, 3, 9}
	if len(got) != len(want) {
		t.Fatalf("WordRegs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("WordRegs = %v, want %v", got, want)
		}
	}
}
