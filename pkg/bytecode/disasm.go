package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk using the
// standard catalog.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName(Default(), "")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (c *Chunk) DisassembleWithName(cat *Catalog, name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; dex unit code v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&ChunkFlagPositions != 0 {
		sb.WriteString(" [POSITIONS]")
	}
	if c.Flags&ChunkFlagExpanded != 0 {
		sb.WriteString(" [EXPANDED]")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("; Registers: %d (%d reserved)\n", c.RegisterCount, c.ReservedCount))
	sb.WriteString(fmt.Sprintf("; Code units: %d\n", len(c.Code)))
	sb.WriteString("\n")

	// Code section
	sb.WriteString("; Code:\n")
	for _, line := range c.disassembleLines(cat) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (c *Chunk) DisassembleToLines() []string {
	return c.disassembleLines(Default())
}

func (c *Chunk) disassembleLines(cat *Catalog) []string {
	var lines []string
	pc := 0
	for pc < len(c.Code) {
		text, size := DisassembleInstruction(cat, c.Code, pc)
		if c.Flags&ChunkFlagPositions != 0 {
			if line := c.LineAt(uint32(pc)); line > 0 {
				text = fmt.Sprintf("%-30s ; line %d", text, line)
			}
		}
		lines = append(lines, fmt.Sprintf("%04X  %s", pc, text))
		if size == 0 {
			break
		}
		pc += size
	}
	return lines
}

// DisassembleInstruction formats the instruction at code[pc] and returns the
// text and the instruction size in code units. Undecodable units are shown
// as raw data one unit at a time.
func DisassembleInstruction(cat *Catalog, code []uint16, pc int) (string, int) {
	if pc >= len(code) {
		return "<end of code>", 0
	}
	dec, err := Decode(cat, code, pc)
	if err != nil {
		return fmt.Sprintf(".unit 0x%04X ; %v", code[pc], err), 1
	}
	return formatDecoded(dec, pc), dec.Size
}

func formatDecoded(dec Decoded, pc int) string {
	d := dec.Desc
	regs := dec.Regs
	if d.TwoAddr && len(regs) == 3 {
		regs = regs[1:]
	}

	var ops []string
	switch d.Form {
	case Form35c:
		ops = append(ops, "{"+joinRegs(regs)+"}")
	case Form3rc:
		if len(regs) == 0 {
			ops = append(ops, "{}")
		} else {
			ops = append(ops, fmt.Sprintf("{v%d .. v%d}", regs[0], regs[len(regs)-1]))
		}
	default:
		for _, r := range regs {
			ops = append(ops, fmt.Sprintf("v%d", r))
		}
	}

	switch {
	case d.Form.IsBranch():
		ops = append(ops, fmt.Sprintf("%+d (-> %04X)", dec.Offset, pc+dec.Offset))
	case dec.Index >= 0:
		ops = append(ops, fmt.Sprintf("@%d", dec.Index))
	case formHasLiteral(d.Form):
		ops = append(ops, fmt.Sprintf("#%d", dec.Literal))
	}

	if len(ops) == 0 {
		return d.Name
	}
	return d.Name + " " + strings.Join(ops, ", ")
}

func joinRegs(regs []int) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = fmt.Sprintf("v%d", r)
	}
	return strings.Join(parts, ", ")
}

func formHasLiteral(f Form) bool {
	switch f {
	case Form11n, Form21s, Form21h, Form22b, Form22s, Form31i, Form51l:
		return true
	}
	return false
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This decodes all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	cat := Default()
	count := 0
	pc := 0
	for pc < len(c.Code) {
		d, err := cat.Get(Opcode(c.Code[pc] & 0xFF))
		if err != nil {
			pc++
		} else {
			pc += d.Size()
		}
		count++
	}
	return count
}
