// Package bytecode defines the register instruction set that finished code
// units are encoded in, along with the tools to read it back.
//
// Code is a sequence of 16-bit code units. Every instruction has one of a
// fixed set of forms, and the form bounds how wide its register fields,
// literals, pool indices and branch offsets may be:
//
//   - Form: the wire layout (10x, 12x, 22x, 23x, 35c, 3rc, ...). Forms are
//     ordered by width; NextUp steps to the next wider one.
//
//   - Family: the operation independent of encoding (add-int). A family is
//     realized by one or more opcodes that differ only in form, for example
//     add-int/2addr (12x), add-int/lit8 (22b) and add-int (23x).
//
//   - Catalog: the immutable opcode table. Lookup maps (family, form) to the
//     descriptor realizing it; Natural gives the family's narrowest form.
//
//   - Chunk: one finished unit (code units, frame size, position table).
//     Chunks serialize to the "DXUC" binary format or to canonical CBOR.
//
//   - VM: a reference interpreter for finished chunks. It shares Machine
//     with the finisher's abstract evaluator so both agree on semantics.
//
// # Encoding
//
// The opcode lives in the low byte of the first unit. Register fields are
// nibbles (vA, vB), bytes (vAA) or whole units (vAAAA). Branch offsets are
// signed and count code units from the branch instruction itself; a branch
// to itself is only expressible in 30t.
//
// # Example
//
//	cat := bytecode.Default()
//	d := cat.Lookup(bytecode.FamilyAddInt, bytecode.Form23x)
//	code, err := bytecode.Encode(nil, d, &bytecode.Operands{
//	    Regs: []bytecode.Reg{{Num: 0}, {Num: 1}, {Num: 2}},
//	})
package bytecode
