package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustDesc(t *testing.T, name string) *Descriptor {
	t.Helper()
	d, ok := Default().ByName(name)
	if !ok {
		t.Fatalf("no descriptor %q", name)
	}
	return d
}

func TestEncodeUnits(t *testing.T) {
	tests := []struct {
		name  string
		op    Operands
		units []uint16

		// expected decode
		regs    []int
		literal int64
		index   int
		offset  int
	}{
		{
			name:  "add-int",
			op:    Operands{Regs: regs(1, 2, 3)},
			units: []uint16{0x0190, 0x0302},
			regs:  []int{1, 2, 3}, index: -1,
		},
		{
			name:  "add-int/2addr",
			op:    Operands{Regs: regs(1, 1, 2)},
			units: []uint16{0x21B0},
			regs:  []int{1, 1, 2}, index: -1,
		},
		{
			name:  "const/4",
			op:    Operands{Kind: KindLiteral, Regs: regs(1), Literal: -1},
			units: []uint16{0xF112},
			regs:  []int{1}, literal: -1, index: -1,
		},
		{
			name:  "move/from16",
			op:    Operands{Regs: regs(1, 302)},
			units: []uint16{0x0102, 302},
			regs:  []int{1, 302}, index: -1,
		},
		{
			name:  "goto",
			op:    Operands{Kind: KindBranch, Offset: -3, HasOffset: true},
			units: []uint16{0xFD28},
			offset: -3, index: -1,
		},
		{
			name:  "goto/32",
			op:    Operands{Kind: KindBranch, Offset: -70002, HasOffset: true},
			units: []uint16{0x002A, 0xEE8E, 0xFFFE},
			offset: -70002, index: -1,
		},
		{
			name:  "if-ne",
			op:    Operands{Kind: KindBranch, Regs: regs(1, 2), Offset: 5, HasOffset: true},
			units: []uint16{0x2133, 5},
			regs:  []int{1, 2}, offset: 5, index: -1,
		},
		{
			name:  "const-wide/high16",
			op:    Operands{Kind: KindLiteral, Regs: []Reg{{Num: 0, Wide: true}}, Literal: 0x1234 << 48},
			units: []uint16{0x0019, 0x1234},
			regs:  []int{0}, literal: 0x1234 << 48, index: -1,
		},
		{
			name:  "const/high16",
			op:    Operands{Kind: KindLiteral, Regs: regs(7), Literal: -65536},
			units: []uint16{0x0715, 0xFFFF},
			regs:  []int{7}, literal: -65536, index: -1,
		},
		{
			name:  "const-string",
			op:    Operands{Kind: KindIndex, Regs: regs(3), Index: 42},
			units: []uint16{0x031A, 42},
			regs:  []int{3}, index: 42,
		},
		{
			name:  "invoke-static",
			op:    Operands{Kind: KindIndex, Regs: regs(1, 2), Index: 7},
			units: []uint16{0x2071, 7, 0x0021},
			regs:  []int{1, 2}, index: 7,
		},
		{
			name:  "invoke-static/range",
			op:    Operands{Kind: KindIndex, Regs: []Reg{{Num: 300, Wide: true}, {Num: 302}}, Index: 9},
			units: []uint16{0x0377, 9, 300},
			regs:  []int{300, 301, 302}, index: 9,
		},
		{
			name:  "const-wide",
			op:    Operands{Kind: KindLiteral, Regs: []Reg{{Num: 4, Wide: true}}, Literal: -2},
			units: []uint16{0x0418, 0xFFFE, 0xFFFF, 0xFFFF, 0xFFFF},
			regs:  []int{4}, literal: -2, index: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDesc(t, tt.name)
			got, err := Encode(nil, d, &tt.op)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if diff := cmp.Diff(tt.units, got); diff != "" {
				t.Fatalf("units mismatch (-want +got):\n%s", diff)
			}
			if len(got) != d.Size() {
				t.Errorf("encoded %d units, form %s says %d", len(got), d.Form, d.Size())
			}

			dec, err := Decode(Default(), got, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if dec.Desc != d {
				t.Errorf("decoded %s, want %s", dec.Desc.Name, d.Name)
			}
			if diff := cmp.Diff(tt.regs, dec.Regs); diff != "" {
				t.Errorf("regs mismatch (-want +got):\n%s", diff)
			}
			if dec.Literal != tt.literal || dec.Index != tt.index || dec.Offset != tt.offset {
				t.Errorf("decoded literal=%d index=%d offset=%d, want %d %d %d",
					dec.Literal, dec.Index, dec.Offset, tt.literal, tt.index, tt.offset)
			}
		})
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		desc string
		op   Operands
		want string
	}{
		{"does not fit", "add-int", Operands{Regs: regs(1, 2, 300)}, "do not fit"},
		{"no offset", "goto", Operands{Kind: KindBranch}, "offset not assigned"},
		{"no index", "const-string", Operands{Kind: KindIndex, Regs: regs(0), Index: -1}, "index not assigned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(nil, mustDesc(t, tt.desc), &tt.op)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	cat := Default()
	if _, err := Decode(cat, []uint16{0x0190}, 0); err == nil {
		t.Error("truncated add-int should fail")
	}
	if _, err := Decode(cat, []uint16{0x00FF}, 0); err == nil {
		t.Error("unknown opcode should fail")
	}
	if _, err := Decode(cat, []uint16{0x0000}, 1); err == nil {
		t.Error("pc past the end should fail")
	}
	if _, err := Decode(cat, []uint16{0x6071, 0, 0}, 0); err == nil {
		t.Error("35c with six registers should fail")
	}
}
