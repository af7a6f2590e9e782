// Mgmt
// Copyright (C) James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package parser

import (
	"math"
	"strings"
	"unicode"

	"github.com/purpleidea/causality/lang/ast"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokQuote
	tokInt
	tokStr
	tokBool
	tokNil
	tokSymbol
)

func (obj tokenKind) String() string {
	switch obj {
	case tokEOF:
		return "end of input"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokQuote:
		return "'"
	case tokInt:
		return "integer"
	case tokStr:
		return "string"
	case tokBool:
		return "boolean"
	case tokNil:
		return "nil"
	case tokSymbol:
		return "symbol"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string // raw source text, or the unescaped contents of a string
	ival int64
	bval bool
	pos  ast.Pos
}

// lexer turns the source into tokens. It never stops on a bad token, it
// records the error and keeps going so that the parser can report more than
// one problem per run.
type lexer struct {
	src      []rune
	i        int
	row      int
	col      int
	filename string

	errs []*ParseError
}

func newLexer(filename, src string) *lexer {
	return &lexer{
		src:      []rune(src),
		row:      1,
		col:      1,
		filename: filename,
	}
}

func (obj *lexer) pos() ast.Pos {
	return ast.Pos{Filename: obj.filename, Row: obj.row, Col: obj.col}
}

func (obj *lexer) peek() (rune, bool) {
	if obj.i >= len(obj.src) {
		return 0, false
	}
	return obj.src[obj.i], true
}

func (obj *lexer) advance() rune {
	r := obj.src[obj.i]
	obj.i++
	if r == '\n' {
		obj.row++
		obj.col = 1
	} else {
		obj.col++
	}
	return r
}

func (obj *lexer) error(err error, str, expected string, pos ast.Pos) {
	obj.errs = append(obj.errs, &ParseError{
		Err:      err,
		Str:      str,
		Expected: expected,
		Row:      pos.Row,
		Col:      pos.Col,
		Filename: pos.Filename,
	})
}

// skip discards whitespace and comments.
func (obj *lexer) skip() {
	for {
		r, ok := obj.peek()
		if !ok {
			return
		}
		switch {
		case unicode.IsSpace(r):
			obj.advance()
		case r == ';':
			for {
				r, ok := obj.peek()
				if !ok || r == '\n' {
					break
				}
				obj.advance()
			}
		default:
			return
		}
	}
}

func isSymbolRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune("+-*/=<>!?_&.:%#", r)
}

func (obj *lexer) next() token {
	obj.skip()
	pos := obj.pos()
	r, ok := obj.peek()
	if !ok {
		return token{kind: tokEOF, pos: pos}
	}

	switch r {
	case '(':
		obj.advance()
		return token{kind: tokLParen, text: "(", pos: pos}
	case ')':
		obj.advance()
		return token{kind: tokRParen, text: ")", pos: pos}
	case '\'':
		obj.advance()
		return token{kind: tokQuote, text: "'", pos: pos}
	case '"':
		return obj.str(pos)
	}

	if !isSymbolRune(r) {
		obj.advance()
		obj.error(ErrLexerUnrecognized, string(r), "", pos)
		return obj.next()
	}

	start := obj.i
	for {
		r, ok := obj.peek()
		if !ok || !isSymbolRune(r) {
			break
		}
		obj.advance()
	}
	text := string(obj.src[start:obj.i])

	switch text {
	case "true", "#t":
		return token{kind: tokBool, text: text, bval: true, pos: pos}
	case "false", "#f":
		return token{kind: tokBool, text: text, bval: false, pos: pos}
	case "nil":
		return token{kind: tokNil, text: text, pos: pos}
	}

	if isInt(text) {
		i, ok := parseInt(text)
		if !ok {
			obj.error(ErrLexerIntegerOverflow, text, "", pos)
		}
		return token{kind: tokInt, text: text, ival: i, pos: pos}
	}

	return token{kind: tokSymbol, text: text, pos: pos}
}

func (obj *lexer) str(pos ast.Pos) token {
	obj.advance() // opening quote
	var b strings.Builder
	raw := []rune{'"'}
	for {
		r, ok := obj.peek()
		if !ok {
			obj.error(ErrLexerStringUnterminated, string(raw), `"`, pos)
			return token{kind: tokStr, text: b.String(), pos: pos}
		}
		escPos := obj.pos()
		obj.advance()
		raw = append(raw, r)
		if r == '"' {
			return token{kind: tokStr, text: b.String(), pos: pos}
		}
		if r != '\\' {
			b.WriteRune(r)
			continue
		}

		e, ok := obj.peek()
		if !ok {
			continue // reported as unterminated on the next loop
		}
		obj.advance()
		raw = append(raw, e)
		switch e {
		case 'n':
			b.WriteRune('\n')
		case 't':
			b.WriteRune('\t')
		case 'r':
			b.WriteRune('\r')
		case '\\':
			b.WriteRune('\\')
		case '"':
			b.WriteRune('"')
		default:
			obj.error(ErrLexerStringBadEscaping, `\`+string(e), `one of \n \t \r \\ \"`, escPos)
		}
	}
}

func isInt(text string) bool {
	s := strings.TrimPrefix(text, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseInt(text string) (int64, bool) {
	neg := strings.HasPrefix(text, "-")
	s := strings.TrimPrefix(text, "-")
	var u uint64
	for _, r := range s {
		d := uint64(r - '0')
		if u > (math.MaxUint64-d)/10 {
			return 0, false
		}
		u = u*10 + d
	}
	if neg {
		if u > uint64(math.MaxInt64)+1 {
			return 0, false
		}
		return -int64(u), true // wraps correctly for the minimum
	}
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}
