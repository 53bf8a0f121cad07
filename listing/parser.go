package listing

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/finisher"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Parser: builds finisher units from a listing
// ---------------------------------------------------------------------------

// A listing holds one or more units:
//
//	.unit Counter.sum
//	.registers 4
//	    const v0, 0
//	:head
//	    if-eqz v3, :exit
//	    add-int v0, v0, v3
//	    add-int/lit8 v3, v3, -1
//	    goto :head
//	:exit
//	    return v0
//
// Mnemonics are family names or opcode names; an opcode name only selects
// the family, the finisher picks the form. Constants are written as
// "text", type LFoo;, field LFoo;->x:I or method LFoo;->m(I)V. Registers
// take their type from the family; v2:wide and v2:ref override it.

// ParseError collects every error found in a listing.
type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0], len(e.Errors)-1)
}

// Parser parses a listing into finisher units.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string

	catalog *bytecode.Catalog
	opts    finisher.Options

	units    []*finisher.Unit
	cur      *finisher.Unit
	curName  string
	implicit bool
	line     int
	labels   map[string]finisher.Handle
	defined  map[string]bool
	usedAt   map[string]Position
}

// NewParser creates a new parser for the given input.
func NewParser(input string, cat *bytecode.Catalog, opts finisher.Options) *Parser {
	if cat == nil {
		cat = bytecode.Default()
	}
	p := &Parser{
		lexer:   NewLexer(input),
		catalog: cat,
		opts:    opts,
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole listing. A listing without a .unit directive holds
// a single unit called name.
func Parse(input, name string, cat *bytecode.Catalog, opts finisher.Options) ([]*finisher.Unit, error) {
	p := NewParser(input, cat, opts)
	units := p.ParseUnits(name)
	if errs := p.Errors(); len(errs) > 0 {
		return nil, &ParseError{Errors: errs}
	}
	return units, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) atLineEnd() bool {
	return p.curTokenIs(TokenNewline) || p.curTokenIs(TokenEOF)
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// skipLine discards the rest of the current line after an error.
func (p *Parser) skipLine() {
	for !p.atLineEnd() {
		p.nextToken()
	}
}

// ParseUnits parses every unit in the input.
func (p *Parser) ParseUnits(name string) []*finisher.Unit {
	p.startUnit(name)
	p.implicit = true
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenNewline:
		case TokenDirective:
			p.parseDirective()
		case TokenLabel:
			p.parseLabel()
		case TokenWord:
			p.parseInstruction()
		case TokenError:
			p.errorf("%s", p.curToken.Literal)
			p.skipLine()
		default:
			p.errorf("unexpected %s at start of line", p.curToken)
			p.skipLine()
		}
		if !p.atLineEnd() {
			p.errorf("unexpected %s after statement", p.curToken)
			p.skipLine()
		}
		p.nextToken()
	}
	p.endUnit()
	return p.units
}

func (p *Parser) startUnit(name string) {
	p.cur = nil
	p.curName = name
	p.line = 0
	p.labels = make(map[string]finisher.Handle)
	p.defined = make(map[string]bool)
	p.usedAt = make(map[string]Position)
}

// endUnit closes the current unit. The implicit unit before the first
// .unit directive may stay empty.
func (p *Parser) endUnit() {
	u := p.cur
	if u == nil {
		if !p.implicit {
			p.errorf("unit %s has no .registers directive", p.curName)
		}
		return
	}
	for _, name := range slices.Sorted(maps.Keys(p.usedAt)) {
		if !p.defined[name] {
			p.errors = append(p.errors, fmt.Sprintf("line %d: undefined label :%s", p.usedAt[name].Line, name))
		}
	}
	p.units = append(p.units, u)
}

func (p *Parser) parseDirective() {
	dir := p.curToken.Literal
	p.nextToken()

	switch dir {
	case "unit":
		if !p.curTokenIs(TokenWord) {
			p.errorf(".unit needs a name")
			p.skipLine()
			return
		}
		name := p.curToken.Literal
		p.nextToken()
		p.endUnit()
		p.implicit = false
		p.startUnit(name)

	case "registers":
		n, ok := p.parseInteger()
		if !ok {
			return
		}
		if p.cur != nil {
			p.errorf(".registers given twice for %s", p.curName)
			return
		}
		if n < 0 || n > 0xFFFF {
			p.errorf("register count %d out of range", n)
			return
		}
		p.cur = finisher.NewUnit(p.catalog, int(n), p.opts)
		p.cur.Name = p.curName

	case "line":
		n, ok := p.parseInteger()
		if !ok {
			return
		}
		p.line = int(n)

	default:
		p.errorf("unknown directive .%s", dir)
		p.skipLine()
	}
}

func (p *Parser) parseInteger() (int64, bool) {
	if !p.curTokenIs(TokenInteger) {
		p.errorf("expected integer, got %s", p.curToken)
		p.skipLine()
		return 0, false
	}
	n, err := strconv.ParseInt(p.curToken.Literal, 0, 64)
	if err != nil {
		p.errorf("bad integer %q", p.curToken.Literal)
		p.skipLine()
		return 0, false
	}
	p.nextToken()
	return n, true
}

func (p *Parser) requireUnit() bool {
	if p.cur == nil {
		p.errorf(".registers must come before the first instruction of %s", p.curName)
		p.skipLine()
		return false
	}
	return true
}

// label returns the code address for a label, creating it on first use.
func (p *Parser) label(name string) finisher.Handle {
	if h, ok := p.labels[name]; ok {
		return h
	}
	h := p.cur.NewAddress()
	p.labels[name] = h
	return h
}

func (p *Parser) parseLabel() {
	name := p.curToken.Literal
	if !p.requireUnit() {
		return
	}
	if p.defined[name] {
		p.errorf("label :%s defined twice", name)
		p.nextToken()
		return
	}
	p.defined[name] = true
	if err := p.cur.Place(p.label(name)); err != nil {
		p.errorf("%v", err)
	}
	p.nextToken()
}

// operand is one parsed instruction operand.
type operand struct {
	regs    []finisher.Reg
	literal *int64
	cst     *constpool.Constant
	label   string
}

func (p *Parser) parseInstruction() {
	mnemonic := p.curToken.Literal
	if !p.requireUnit() {
		return
	}
	fam, ok := p.family(mnemonic)
	if !ok {
		p.errorf("unknown instruction %q", mnemonic)
		p.skipLine()
		return
	}
	p.nextToken()

	var ops []operand
	for !p.atLineEnd() {
		op, ok := p.parseOperand()
		if !ok {
			p.skipLine()
			return
		}
		ops = append(ops, op)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}

	in, ok := p.build(fam, ops)
	if !ok {
		return
	}
	if p.line > 0 {
		in = in.At(p.line)
	}
	if _, err := p.cur.Add(in); err != nil {
		p.errorf("%v", err)
	}
}

// family resolves a family name or an opcode name.
func (p *Parser) family(name string) (bytecode.Family, bool) {
	if fam, ok := bytecode.FamilyByName(name); ok {
		return fam, true
	}
	if d, ok := p.catalog.ByName(name); ok {
		return d.Family, true
	}
	return 0, false
}

func (p *Parser) parseOperand() (operand, bool) {
	tok := p.curToken
	switch tok.Type {
	case TokenRegister:
		r, ok := p.parseRegister()
		return operand{regs: []finisher.Reg{r}}, ok

	case TokenLBrace:
		return p.parseRegisterList()

	case TokenInteger:
		n, ok := p.parseInteger()
		return operand{literal: &n}, ok

	case TokenString:
		p.nextToken()
		c := constpool.String(tok.Literal)
		return operand{cst: &c}, true

	case TokenLabel:
		p.nextToken()
		return operand{label: tok.Literal}, true

	case TokenWord:
		return p.parseConstant()
	}
	p.errorf("unexpected %s in operands", tok)
	return operand{}, false
}

// parseRegister reads vN with an optional :wide or :ref suffix.
func (p *Parser) parseRegister() (finisher.Reg, bool) {
	lit := p.curToken.Literal
	num, typ, hasType := strings.Cut(lit[1:], ":")
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 || n > 0xFFFF {
		p.errorf("bad register %q", lit)
		return finisher.Reg{}, false
	}
	r := finisher.R(n)
	if hasType {
		switch typ {
		case "wide":
			r = finisher.W(n)
		case "ref":
			r = finisher.Ref(n)
		case "int":
		default:
			p.errorf("bad register type %q", typ)
			return finisher.Reg{}, false
		}
	}
	p.nextToken()
	return r, true
}

// parseRegisterList reads {v0, v1} or {v0 .. v3}.
func (p *Parser) parseRegisterList() (operand, bool) {
	p.nextToken() // consume {
	var op operand
	if p.curTokenIs(TokenRBrace) {
		p.nextToken()
		return op, true
	}

	first, ok := p.parseRegister()
	if !ok {
		return op, false
	}
	if p.curTokenIs(TokenRange) {
		p.nextToken()
		if !p.curTokenIs(TokenRegister) {
			p.errorf("expected register after .., got %s", p.curToken)
			return op, false
		}
		last, ok := p.parseRegister()
		if !ok {
			return op, false
		}
		if last.Num < first.Num {
			p.errorf("empty register range v%d .. v%d", first.Num, last.Num)
			return op, false
		}
		for n := first.Num; n <= last.Num; n++ {
			op.regs = append(op.regs, finisher.R(n))
		}
		return op, p.expect(TokenRBrace)
	}

	op.regs = append(op.regs, first)
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		r, ok := p.parseRegister()
		if !ok {
			return op, false
		}
		op.regs = append(op.regs, r)
	}
	return op, p.expect(TokenRBrace)
}

// parseConstant reads "type D", "field D->n:T" or "method D->n(P)R".
func (p *Parser) parseConstant() (operand, bool) {
	kind := p.curToken.Literal
	p.nextToken()
	if !p.curTokenIs(TokenWord) {
		p.errorf("expected descriptor after %s, got %s", kind, p.curToken)
		return operand{}, false
	}
	desc := p.curToken.Literal
	p.nextToken()

	var c constpool.Constant
	switch kind {
	case "type":
		c = constpool.Type(desc)
	case "field":
		definer, rest, ok := strings.Cut(desc, "->")
		name, typ, ok2 := strings.Cut(rest, ":")
		if !ok || !ok2 || definer == "" || name == "" || typ == "" {
			p.errorf("bad field reference %q", desc)
			return operand{}, false
		}
		c = constpool.Field(definer, name, typ)
	case "method":
		definer, rest, ok := strings.Cut(desc, "->")
		paren := strings.IndexByte(rest, '(')
		if !ok || paren <= 0 || definer == "" {
			p.errorf("bad method reference %q", desc)
			return operand{}, false
		}
		c = constpool.Method(definer, rest[:paren], rest[paren:])
	default:
		p.errorf("unknown constant kind %q", kind)
		return operand{}, false
	}
	return operand{cst: &c}, true
}

// build turns parsed operands into an instruction.
func (p *Parser) build(fam bytecode.Family, ops []operand) (finisher.Insn, bool) {
	var (
		regs    []finisher.Reg
		literal *int64
		cst     *constpool.Constant
		label   string
	)
	for _, op := range ops {
		switch {
		case op.literal != nil:
			if literal != nil {
				p.errorf("%s takes at most one literal", fam)
				return finisher.Insn{}, false
			}
			literal = op.literal
		case op.cst != nil:
			if cst != nil {
				p.errorf("%s takes at most one constant", fam)
				return finisher.Insn{}, false
			}
			cst = op.cst
		case op.label != "":
			if label != "" {
				p.errorf("%s takes at most one label", fam)
				return finisher.Insn{}, false
			}
			label = op.label
		default:
			regs = append(regs, op.regs...)
		}
	}
	regs = inferTypes(fam, regs)

	switch {
	case fam.IsBranch():
		if label == "" {
			p.errorf("%s needs a target label", fam)
			return finisher.Insn{}, false
		}
		if literal != nil || cst != nil {
			p.errorf("%s takes only registers and a label", fam)
			return finisher.Insn{}, false
		}
		if _, seen := p.usedAt[label]; !seen {
			p.usedAt[label] = p.curToken.Pos
		}
		return finisher.OpBranch(fam, p.label(label), regs...), true
	case label != "":
		p.errorf("%s is not a branch", fam)
		return finisher.Insn{}, false
	case cst != nil && literal != nil:
		p.errorf("%s cannot take both a literal and a constant", fam)
		return finisher.Insn{}, false
	case cst != nil:
		return finisher.OpConst(fam, *cst, regs...), true
	case literal != nil:
		return finisher.OpLit(fam, *literal, regs...), true
	}
	return finisher.Op(fam, regs...), true
}

// registerTypes gives the register types a family implies, by position.
var registerTypes = map[bytecode.Family][]finisher.RegType{
	bytecode.FamilyMoveWide:         {finisher.TypeWide, finisher.TypeWide},
	bytecode.FamilyMoveObject:       {finisher.TypeRef, finisher.TypeRef},
	bytecode.FamilyMoveResultWide:   {finisher.TypeWide},
	bytecode.FamilyMoveResultObject: {finisher.TypeRef},
	bytecode.FamilyReturnWide:       {finisher.TypeWide},
	bytecode.FamilyReturnObject:     {finisher.TypeRef},
	bytecode.FamilyConstWide:        {finisher.TypeWide},
	bytecode.FamilyConstString:      {finisher.TypeRef},
	bytecode.FamilyConstClass:       {finisher.TypeRef},
	bytecode.FamilyCmpLong:          {finisher.TypeInt, finisher.TypeWide, finisher.TypeWide},
	bytecode.FamilyIget:             {finisher.TypeInt, finisher.TypeRef},
	bytecode.FamilyIput:             {finisher.TypeInt, finisher.TypeRef},
	bytecode.FamilyAddLong:          {finisher.TypeWide, finisher.TypeWide, finisher.TypeWide},
	bytecode.FamilySubLong:          {finisher.TypeWide, finisher.TypeWide, finisher.TypeWide},
}

// inferTypes applies the family's implied types to untyped registers.
func inferTypes(fam bytecode.Family, regs []finisher.Reg) []finisher.Reg {
	types := registerTypes[fam]
	for i := range regs {
		if i < len(types) && regs[i].Type == finisher.TypeInt {
			regs[i].Type = types[i]
		}
	}
	return regs
}
