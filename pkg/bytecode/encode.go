package bytecode

import "fmt"

// Encode appends the code units of one instruction to dst. The operands
// must already fit the descriptor's form; a branch must carry its final
// offset and an index operand its final pool index.
func Encode(dst []uint16, d *Descriptor, op *Operands) ([]uint16, error) {
	if !d.Form.Fits(op) {
		return dst, fmt.Errorf("%s: operands do not fit form %s", d.Name, d.Form)
	}
	if d.Form.IsBranch() && !op.HasOffset {
		return dst, fmt.Errorf("%s: branch offset not assigned", d.Name)
	}
	if op.Kind == KindIndex && op.Index < 0 {
		return dst, fmt.Errorf("%s: pool index not assigned", d.Name)
	}

	opc := uint16(d.Opcode)
	regs := op.Regs
	reg := func(i int) uint16 { return uint16(regs[i].Num) }

	switch d.Form {
	case Form10x:
		return append(dst, opc), nil

	case Form12x:
		b := reg(1)
		if len(regs) == 3 {
			b = reg(2)
		}
		return append(dst, opc|reg(0)<<8|b<<12), nil

	case Form11n:
		return append(dst, opc|reg(0)<<8|uint16(op.Literal&0xF)<<12), nil

	case Form11x:
		return append(dst, opc|reg(0)<<8), nil

	case Form10t:
		return append(dst, opc|uint16(uint8(int8(op.Offset)))<<8), nil

	case Form20t:
		return append(dst, opc, uint16(int16(op.Offset))), nil

	case Form22x:
		return append(dst, opc|reg(0)<<8, reg(1)), nil

	case Form21t:
		return append(dst, opc|reg(0)<<8, uint16(int16(op.Offset))), nil

	case Form21s:
		return append(dst, opc|reg(0)<<8, uint16(int16(op.Literal))), nil

	case Form21h:
		shift := 16
		if regs[0].Wide {
			shift = 48
		}
		return append(dst, opc|reg(0)<<8, uint16(op.Literal>>shift)), nil

	case Form21c:
		return append(dst, opc|reg(0)<<8, uint16(op.Index)), nil

	case Form23x:
		return append(dst, opc|reg(0)<<8, reg(1)|reg(2)<<8), nil

	case Form22b:
		return append(dst, opc|reg(0)<<8, reg(1)|uint16(uint8(int8(op.Literal)))<<8), nil

	case Form22t:
		return append(dst, opc|reg(0)<<8|reg(1)<<12, uint16(int16(op.Offset))), nil

	case Form22s:
		return append(dst, opc|reg(0)<<8|reg(1)<<12, uint16(int16(op.Literal))), nil

	case Form22c:
		return append(dst, opc|reg(0)<<8|reg(1)<<12, uint16(op.Index)), nil

	case Form30t:
		v := uint32(int32(op.Offset))
		return append(dst, opc, uint16(v), uint16(v>>16)), nil

	case Form32x:
		return append(dst, opc, reg(0), reg(1)), nil

	case Form31i:
		v := uint32(int32(op.Literal))
		return append(dst, opc|reg(0)<<8, uint16(v), uint16(v>>16)), nil

	case Form31c:
		v := uint32(op.Index)
		return append(dst, opc|reg(0)<<8, uint16(v), uint16(v>>16)), nil

	case Form35c:
		words := WordRegs(regs)
		var nib [5]uint16
		for i, w := range words {
			nib[i] = uint16(w)
		}
		return append(dst,
			opc|nib[4]<<8|uint16(len(words))<<12,
			uint16(op.Index),
			nib[0]|nib[1]<<4|nib[2]<<8|nib[3]<<12), nil

	case Form3rc:
		words := WordRegs(regs)
		first := uint16(0)
		if len(words) > 0 {
			first = uint16(words[0])
		}
		return append(dst, opc|uint16(len(words))<<8, uint16(op.Index), first), nil

	case Form51l:
		v := uint64(op.Literal)
		return append(dst, opc|reg(0)<<8,
			uint16(v), uint16(v>>16), uint16(v>>32), uint16(v>>48)), nil
	}

	return dst, fmt.Errorf("%s: cannot encode form %s", d.Name, d.Form)
}

// Decoded is one instruction read back from a code array.
type Decoded struct {
	Desc *Descriptor

	// Regs holds the register numbers as encoded. Two-address forms are
	// widened back to three registers and register-list forms list every
	// slot individually.
	Regs    []int
	Literal int64
	Index   int
	Offset  int
	Size    int
}

// Decode reads the instruction starting at code[pc].
func Decode(c *Catalog, code []uint16, pc int) (Decoded, error) {
	if pc < 0 || pc >= len(code) {
		return Decoded{}, fmt.Errorf("pc %d out of range", pc)
	}
	u := code[pc]
	d, err := c.Get(Opcode(u & 0xFF))
	if err != nil {
		return Decoded{}, fmt.Errorf("at %04x: %w", pc, err)
	}
	size := d.Form.Size()
	if pc+size > len(code) {
		return Decoded{}, fmt.Errorf("at %04x: %s truncated", pc, d.Name)
	}

	hi := int(u >> 8)
	a4 := hi & 0xF
	b4 := hi >> 4
	unit := func(i int) uint16 { return code[pc+i] }
	word32 := func(i int) uint32 { return uint32(unit(i)) | uint32(unit(i+1))<<16 }

	dec := Decoded{Desc: d, Index: -1, Size: size}

	switch d.Form {
	case Form10x:
	case Form12x:
		if d.TwoAddr {
			dec.Regs = []int{a4, a4, b4}
		} else {
			dec.Regs = []int{a4, b4}
		}
	case Form11n:
		dec.Regs = []int{a4}
		dec.Literal = int64(int8(uint8(b4)<<4) >> 4)
	case Form11x:
		dec.Regs = []int{hi}
	case Form10t:
		dec.Offset = int(int8(uint8(hi)))
	case Form20t:
		dec.Offset = int(int16(unit(1)))
	case Form22x:
		dec.Regs = []int{hi, int(unit(1))}
	case Form21t:
		dec.Regs = []int{hi}
		dec.Offset = int(int16(unit(1)))
	case Form21s:
		dec.Regs = []int{hi}
		dec.Literal = int64(int16(unit(1)))
	case Form21h:
		dec.Regs = []int{hi}
		shift := 16
		if d.Family == FamilyConstWide {
			shift = 48
		}
		dec.Literal = int64(int16(unit(1))) << shift
	case Form21c:
		dec.Regs = []int{hi}
		dec.Index = int(unit(1))
	case Form23x:
		dec.Regs = []int{hi, int(unit(1) & 0xFF), int(unit(1) >> 8)}
	case Form22b:
		dec.Regs = []int{hi, int(unit(1) & 0xFF)}
		dec.Literal = int64(int8(uint8(unit(1) >> 8)))
	case Form22t:
		dec.Regs = []int{a4, b4}
		dec.Offset = int(int16(unit(1)))
	case Form22s:
		dec.Regs = []int{a4, b4}
		dec.Literal = int64(int16(unit(1)))
	case Form22c:
		dec.Regs = []int{a4, b4}
		dec.Index = int(unit(1))
	case Form30t:
		dec.Offset = int(int32(word32(1)))
	case Form32x:
		dec.Regs = []int{int(unit(1)), int(unit(2))}
	case Form31i:
		dec.Regs = []int{hi}
		dec.Literal = int64(int32(word32(1)))
	case Form31c:
		dec.Regs = []int{hi}
		dec.Index = int(word32(1))
	case Form35c:
		count := b4
		if count > 5 {
			return Decoded{}, fmt.Errorf("at %04x: %s: bad register count %d", pc, d.Name, count)
		}
		w := unit(2)
		all := []int{int(w & 0xF), int(w >> 4 & 0xF), int(w >> 8 & 0xF), int(w >> 12), a4}
		dec.Regs = all[:count]
		dec.Index = int(unit(1))
	case Form3rc:
		first := int(unit(2))
		dec.Regs = make([]int, hi)
		for i := range dec.Regs {
			dec.Regs[i] = first + i
		}
		dec.Index = int(unit(1))
	case Form51l:
		dec.Regs = []int{hi}
		dec.Literal = int64(uint64(unit(1)) | uint64(unit(2))<<16 |
			uint64(unit(3))<<32 | uint64(unit(4))<<48)
	}

	return dec, nil
}
