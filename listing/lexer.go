package listing

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for instruction listings
// ---------------------------------------------------------------------------

// Lexer tokenizes a listing. Newlines are tokens: a listing has one
// instruction or directive per line.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpaceAndComments()

	pos := l.position()

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: pos}

	case '\n':
		l.readChar()
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

	case ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case '{':
		l.readChar()
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}

	case '}':
		l.readChar()
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}

	case '"':
		return l.readString(pos)
	}

	return l.readWord(pos)
}

// skipSpaceAndComments skips blanks and '#' comments, stopping at newlines.
func (l *Lexer) skipSpaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch != '#' {
			return
		}
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
	}
}

func isWordChar(ch rune) bool {
	switch ch {
	case 0, ' ', '\t', '\r', '\n', ',', '{', '}', '"', '#':
		return false
	}
	return true
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// readWord reads a run of word characters and classifies it.
func (l *Lexer) readWord(pos Position) Token {
	var sb strings.Builder
	for isWordChar(l.ch) {
		// "v0..v3" splits around the range operator
		if l.ch == '.' && l.peekChar() == '.' && sb.Len() > 0 {
			break
		}
		sb.WriteRune(l.ch)
		l.readChar()
		if sb.String() == ".." {
			break
		}
	}
	word := sb.String()

	switch {
	case word == "..":
		return Token{Type: TokenRange, Literal: word, Pos: pos}
	case strings.HasPrefix(word, ".") && len(word) > 1:
		return Token{Type: TokenDirective, Literal: word[1:], Pos: pos}
	case strings.HasPrefix(word, ":") && len(word) > 1:
		return Token{Type: TokenLabel, Literal: word[1:], Pos: pos}
	case len(word) > 1 && word[0] == 'v' && isDigit(rune(word[1])):
		return Token{Type: TokenRegister, Literal: word, Pos: pos}
	case len(word) > 0 && (isDigit(rune(word[0])) || (word[0] == '-' && len(word) > 1 && isDigit(rune(word[1])))):
		return Token{Type: TokenInteger, Literal: word, Pos: pos}
	case word == "":
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: "unexpected character: " + string(ch), Pos: pos}
	}
	return Token{Type: TokenWord, Literal: word, Pos: pos}
}

// readString reads a double-quoted string with Go escapes.
func (l *Lexer) readString(pos Position) Token {
	start := l.pos
	l.readChar() // consume opening "
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	l.readChar() // consume closing "

	s, err := strconv.Unquote(l.input[start:l.pos])
	if err != nil {
		return Token{Type: TokenError, Literal: "bad string literal: " + err.Error(), Pos: pos}
	}
	return Token{Type: TokenString, Literal: s, Pos: pos}
}
