package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func disasmChunk() *Chunk {
	c := NewChunk()
	c.RegisterCount = 4
	c.Code = append(c.Code,
		0x0190, 0x0302, // add-int v1, v2, v3
		0x21B0,         // add-int/2addr v1, v2
		0xF012,         // const/4 v0, #-1
		0x0038, 0xFFFC, // if-eqz v0, -4
		0x000F, // return v0
	)
	return c
}

func TestDisassembleToLines(t *testing.T) {
	want := []string{
		"0000  add-int v1, v2, v3",
		"0002  add-int/2addr v1, v2",
		"0003  const/4 v0, #-1",
		"0004  if-eqz v0, -4 (-> 0000)",
		"0006  return v0",
	}
	if diff := cmp.Diff(want, disasmChunk().DisassembleToLines()); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestDisassembleHeader(t *testing.T) {
	c := disasmChunk()
	c.AddPosition(3, 42)
	out := c.DisassembleWithName(Default(), "loop")

	for _, want := range []string{
		"; === loop ===",
		"[POSITIONS]",
		"; Registers: 4 (0 reserved)",
		"; Code units: 7",
		"; line 42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleInstructionForms(t *testing.T) {
	cat := Default()
	tests := []struct {
		code []uint16
		want string
	}{
		{[]uint16{0x2071, 7, 0x0021}, "invoke-static {v1, v2}, @7"},
		{[]uint16{0x0377, 9, 300}, "invoke-static/range {v300 .. v302}, @9"},
		{[]uint16{0x031A, 42}, "const-string v3, @42"},
		{[]uint16{0x0000}, "nop"},
		{[]uint16{0x00FF}, ".unit 0x00FF"},
	}

	for _, tt := range tests {
		got, _ := DisassembleInstruction(cat, tt.code, 0)
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("DisassembleInstruction(% x) = %q, want prefix %q", tt.code, got, tt.want)
		}
	}
}

func TestInstructionCount(t *testing.T) {
	if n := disasmChunk().InstructionCount(); n != 5 {
		t.Errorf("InstructionCount() = %d, want 5", n)
	}
}
