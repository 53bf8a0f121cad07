package listing

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the listing lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	// Operands
	TokenRegister // v0, v12:wide, v3:ref
	TokenInteger  // 42, -3, 0x10
	TokenString   // "hello"
	TokenLabel    // :loop
	TokenWord     // mnemonics, constant kinds, type descriptors

	// Directives
	TokenDirective // .registers, .unit, .line

	// Delimiters
	TokenComma  // ,
	TokenLBrace // {
	TokenRBrace // }
	TokenRange  // ..
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenNewline:   "NEWLINE",
	TokenRegister:  "REGISTER",
	TokenInteger:   "INTEGER",
	TokenString:    "STRING",
	TokenLabel:     "LABEL",
	TokenWord:      "WORD",
	TokenDirective: "DIRECTIVE",
	TokenComma:     ",",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenRange:     "..",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in the listing.
type Position struct {
	Line   int // 1-based
	Column int // 1-based
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
