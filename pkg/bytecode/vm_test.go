package bytecode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type asm struct {
	name string
	op   Operands
}

func assemble(t *testing.T, regCount uint16, insns ...asm) *Chunk {
	t.Helper()
	c := NewChunk()
	c.RegisterCount = regCount
	for _, in := range insns {
		var err error
		c.Code, err = Encode(c.Code, mustDesc(t, in.name), &in.op)
		if err != nil {
			t.Fatalf("assemble %s: %v", in.name, err)
		}
	}
	return c
}

func lit(r int, v int64, more ...int) Operands {
	return Operands{Kind: KindLiteral, Regs: regs(append([]int{r}, more...)...), Literal: v}
}

func branch(off int, rs ...int) Operands {
	return Operands{Kind: KindBranch, Regs: regs(rs...), Offset: off, HasOffset: true}
}

func TestVMSumLoop(t *testing.T) {
	// v0 = sum, v3 = n (argument); loop head at 1, exit at 7
	c := assemble(t, 4,
		asm{"const/4", lit(0, 0)},
		asm{"if-eqz", branch(6, 3)},
		asm{"add-int/2addr", Operands{Regs: regs(0, 0, 3)}},
		asm{"add-int/lit8", Operands{Kind: KindLiteral, Regs: regs(3, 3), Literal: -1}},
		asm{"goto", branch(-5)},
		asm{"return", Operands{Regs: regs(0)}},
	)

	vm := NewVM(nil)
	got, err := vm.Execute(c, NewMapEnv(), []uint32{10})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]uint32{55}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	// const, ten trips of four, then the taken if-eqz and the return
	if vm.Steps != 1+4*10+2 {
		t.Errorf("Steps = %d", vm.Steps)
	}
}

func TestVMWideArithmetic(t *testing.T) {
	w := func(n int) Reg { return Reg{Num: n, Wide: true} }
	c := assemble(t, 4,
		asm{"const-wide", Operands{Kind: KindLiteral, Regs: []Reg{w(0)}, Literal: 1 << 40}},
		asm{"const-wide/16", Operands{Kind: KindLiteral, Regs: []Reg{w(2)}, Literal: 5}},
		asm{"add-long", Operands{Regs: []Reg{w(0), w(0), w(2)}}},
		asm{"return-wide", Operands{Regs: []Reg{w(0)}}},
	)

	got, err := NewVM(nil).Execute(c, NewMapEnv(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]uint32{5, 256}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestVMInvokeAndFields(t *testing.T) {
	c := assemble(t, 3,
		asm{"const/16", lit(0, 300)},
		asm{"const/4", lit(1, 7)},
		asm{"sput", Operands{Kind: KindIndex, Regs: regs(1), Index: 4}},
		asm{"invoke-static", Operands{Kind: KindIndex, Regs: regs(0, 1), Index: 3}},
		asm{"move-result", Operands{Regs: regs(2)}},
		asm{"return", Operands{Regs: regs(2)}},
	)

	env := NewMapEnv()
	env.Methods[3] = func(args []uint32) []uint32 { return []uint32{args[0] * args[1]} }

	got, err := NewVM(nil).Execute(c, env, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]uint32{2100}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Call{{Method: 3, Args: []uint32{300, 7}}}, env.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0.4=7"}, env.FieldDump()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestVMErrors(t *testing.T) {
	tests := []struct {
		name  string
		chunk func(t *testing.T) *Chunk
		want  error
	}{
		{
			name: "divide by zero",
			chunk: func(t *testing.T) *Chunk {
				return assemble(t, 2,
					asm{"const/4", lit(0, 0)},
					asm{"div-int/2addr", Operands{Regs: regs(1, 1, 0)}},
					asm{"return-void", Operands{}},
				)
			},
			want: ErrDivideByZero,
		},
		{
			name: "self loop",
			chunk: func(t *testing.T) *Chunk {
				return assemble(t, 1, asm{"goto/32", branch(0)})
			},
			want: ErrStepLimit,
		},
		{
			name: "fall off the end",
			chunk: func(t *testing.T) *Chunk {
				return assemble(t, 1, asm{"nop", Operands{}})
			},
			want: ErrFellOffEnd,
		},
		{
			name: "register outside frame",
			chunk: func(t *testing.T) *Chunk {
				return assemble(t, 1, asm{"return", Operands{Regs: regs(5)}})
			},
			want: ErrBadRegister,
		},
		{
			name: "move-result without invoke",
			chunk: func(t *testing.T) *Chunk {
				return assemble(t, 1, asm{"move-result", Operands{Regs: regs(0)}})
			},
			want: ErrNoResultToMove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := NewVM(nil)
			vm.MaxSteps = 100
			_, err := vm.Execute(tt.chunk(t), NewMapEnv(), nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewMachineArgumentsTakeHighRegisters(t *testing.T) {
	m, err := NewMachine(5, NewMapEnv(), []uint32{8, 9})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 0, 0, 8, 9}, m.Regs); diff != "" {
		t.Errorf("registers mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewMachine(1, NewMapEnv(), []uint32{1, 2}); err == nil {
		t.Error("too many arguments should fail")
	}
}
