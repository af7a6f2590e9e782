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

// Package parser turns source text into a content addressed syntax tree. The
// surface syntax is a small s-expression language. Sugar such as let and
// letrec is removed here, so the tree only holds the core expression variants.
package parser

import (
	"fmt"
	"io"
	"sort"

	"github.com/purpleidea/causality/lang/ast"
	"github.com/purpleidea/causality/lang/funcs"
	"github.com/purpleidea/causality/lang/types"
	"github.com/purpleidea/causality/util"
	"github.com/purpleidea/causality/util/errwrap"
)

// These constants represent the different possible lexer/parser errors.
const (
	ErrLexerUnrecognized       = util.Error("unrecognized")
	ErrLexerStringBadEscaping  = util.Error("string: bad escaping")
	ErrLexerStringUnterminated = util.Error("string: unterminated")
	ErrLexerIntegerOverflow    = util.Error("integer: overflow")
	ErrParseUnexpected         = util.Error("unexpected token")
	ErrParseUnbalanced         = util.Error("unbalanced parenthesis")
	ErrParseForm               = util.Error("malformed form")
	ErrParseArity              = util.Error("wrong number of arguments")
	ErrParseReserved           = util.Error("reserved name")
	ErrParseDuplicate          = util.Error("duplicate name")
	ErrParseType               = util.Error("malformed type")
	ErrParseEmpty              = util.Error("empty program")
	ErrParseMultiple           = util.Error("more than one top-level expression")
)

// keywords are the forms which the parser removes.
var keywords = map[string]struct{}{
	"lambda":  {},
	"let":     {},
	"letrec":  {},
	"dynamic": {},
	"unit":    {},
}

// ParseError is a permanent failure error to notify about borkage. The Err is
// one of the constants in this package.
type ParseError struct {
	Err      error
	Str      string // the offending text
	Expected string // what would have been accepted here, if known
	Row      int    // this is one-indexed (the first line is 1)
	Col      int    // this is one-indexed (the first char is 1)

	// Filename is the file that this error occurred in. If this is unknown,
	// then it will be empty.
	Filename string
}

// Error displays this error with all the relevant state information.
func (e *ParseError) Error() string {
	s := fmt.Sprintf("%s: `%s` @%d:%d", e.Err, e.Str, e.Row, e.Col)
	if e.Filename != "" {
		s = e.Filename + ": " + s
	}
	if e.Expected != "" {
		s += fmt.Sprintf(", expected %s", e.Expected)
	}
	return s
}

// Unwrap returns the error constant, so that errors.Is can match on it.
func (e *ParseError) Unwrap() error { return e.Err }

// LexParse reads all of the input and parses it.
func LexParse(filename string, input io.Reader) (*ast.Program, error) {
	b, err := io.ReadAll(input)
	if err != nil {
		return nil, errwrap.Wrapf(err, "can't read input")
	}
	return ParseInto(ast.NewArena(), filename, string(b))
}

// Parse parses the source into a new arena.
func Parse(src string) (*ast.Program, error) {
	return ParseInto(ast.NewArena(), "", src)
}

// ParseInto parses the source into an existing arena. This is useful when more
// than one program should share nodes. If there were any errors, all of them
// are returned together, sorted by position.
func ParseInto(arena *ast.Arena, filename, src string) (*ast.Program, error) {
	obj := &parser{
		lex:   newLexer(filename, src),
		arena: arena,
		pos:   make(map[ast.ID]ast.Pos),
	}

	forms := obj.readAll()
	var root ast.ID
	if len(forms) == 0 {
		obj.error(ErrParseEmpty, "", "an expression", ast.Pos{Filename: filename, Row: 1, Col: 1})
	}
	for i, s := range forms {
		if i == 1 {
			obj.error(ErrParseMultiple, s.text(), "end of input", s.tok.pos)
		}
		id, ok := obj.expr(s) // convert the extras too, to find more errors
		if ok && i == 0 {
			root = id
		}
	}

	if err := obj.err(); err != nil {
		return nil, err
	}
	return &ast.Program{
		Arena: arena,
		Root:  root,
		Pos:   obj.pos,
	}, nil
}

// ParseType parses a type annotation such as (resource int).
func ParseType(src string) (*types.Type, error) {
	obj := &parser{
		lex:   newLexer("", src),
		arena: ast.NewArena(),
		pos:   make(map[ast.ID]ast.Pos),
	}
	forms := obj.readAll()
	if len(forms) != 1 {
		obj.error(ErrParseType, src, "a single type", ast.Pos{Row: 1, Col: 1})
	}
	var typ *types.Type
	if len(forms) > 0 {
		typ, _ = obj.typ(forms[0])
	}
	if err := obj.err(); err != nil {
		return nil, err
	}
	return typ, nil
}

// sexp is the raw tree read from the tokens, before it's given any meaning.
type sexp struct {
	tok    token // the atom, or the opening paren of a list
	list   []*sexp
	isList bool
	quoted bool // 'sym
}

func (obj *sexp) text() string {
	if obj.isList {
		return "("
	}
	if obj.quoted {
		return "'" + obj.tok.text
	}
	return obj.tok.text
}

// symbol returns the name if this is an unquoted symbol.
func (obj *sexp) symbol() (string, bool) {
	if obj.isList || obj.quoted || obj.tok.kind != tokSymbol {
		return "", false
	}
	return obj.tok.text, true
}

type parser struct {
	lex   *lexer
	back  *token
	arena *ast.Arena
	pos   map[ast.ID]ast.Pos

	errs []*ParseError
}

func (obj *parser) next() token {
	if t := obj.back; t != nil {
		obj.back = nil
		return *t
	}
	return obj.lex.next()
}

func (obj *parser) error(err error, str, expected string, pos ast.Pos) {
	obj.errs = append(obj.errs, &ParseError{
		Err:      err,
		Str:      str,
		Expected: expected,
		Row:      pos.Row,
		Col:      pos.Col,
		Filename: pos.Filename,
	})
}

// err combines the lexer and parser errors.
func (obj *parser) err() error {
	all := append([]*ParseError{}, obj.lex.errs...)
	all = append(all, obj.errs...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Row != all[j].Row {
			return all[i].Row < all[j].Row
		}
		return all[i].Col < all[j].Col
	})
	var reterr error
	for _, e := range all {
		reterr = errwrap.Append(reterr, e)
	}
	return reterr
}

func (obj *parser) add(id ast.ID, pos ast.Pos) ast.ID {
	if _, exists := obj.pos[id]; !exists {
		obj.pos[id] = pos
	}
	return id
}

func (obj *parser) readAll() []*sexp {
	out := []*sexp{}
	for {
		tok := obj.next()
		switch tok.kind {
		case tokEOF:
			return out
		case tokRParen:
			obj.error(ErrParseUnbalanced, ")", "", tok.pos)
			continue
		}
		if s := obj.read(tok); s != nil {
			out = append(out, s)
		}
	}
}

func (obj *parser) read(tok token) *sexp {
	switch tok.kind {
	case tokLParen:
		s := &sexp{tok: tok, isList: true}
		for {
			t := obj.next()
			switch t.kind {
			case tokRParen:
				return s
			case tokEOF:
				obj.error(ErrParseUnbalanced, "(", "`)`", tok.pos)
				return s
			}
			if x := obj.read(t); x != nil {
				s.list = append(s.list, x)
			}
		}

	case tokQuote:
		t := obj.next()
		if t.kind != tokSymbol {
			obj.error(ErrParseUnexpected, t.text, "a symbol after the quote", t.pos)
			obj.back = &t // let the enclosing form see it
			return nil
		}
		return &sexp{tok: t, quoted: true}
	}

	return &sexp{tok: tok}
}

// expr converts the sexp into an expression. It returns false if there was an
// error, which will have already been recorded.
func (obj *parser) expr(s *sexp) (ast.ID, bool) {
	pos := s.tok.pos
	if !s.isList {
		switch {
		case s.quoted:
			return obj.add(obj.arena.Symbol(s.tok.text), pos), true
		case s.tok.kind == tokInt:
			return obj.add(obj.arena.Int(s.tok.ival), pos), true
		case s.tok.kind == tokStr:
			return obj.add(obj.arena.Atom(&types.StrValue{V: s.tok.text}), pos), true
		case s.tok.kind == tokBool:
			return obj.add(obj.arena.Atom(&types.BoolValue{V: s.tok.bval}), pos), true
		case s.tok.kind == tokNil:
			return obj.add(obj.arena.Atom(&types.UnitValue{}), pos), true
		}

		name := s.tok.text
		if _, exists := keywords[name]; exists {
			obj.error(ErrParseUnexpected, name, "an expression", pos)
			return "", false
		}
		if funcs.IsCombinator(name) {
			return obj.add(obj.arena.Combinator(name), pos), true
		}
		return obj.add(obj.arena.Var(name), pos), true
	}

	if len(s.list) == 0 {
		obj.error(ErrParseForm, "()", "an expression", pos)
		return "", false
	}

	if name, ok := s.list[0].symbol(); ok {
		if _, exists := keywords[name]; exists {
			return obj.keyword(name, s)
		}
		if b, exists := funcs.Lookup(name); exists {
			return obj.combinator(b, s)
		}
	}

	ids, ok := obj.exprs(s.list)
	if !ok {
		return "", false
	}
	return obj.add(obj.arena.Apply(ids[0], ids[1:]...), pos), true
}

// exprs converts every element, even after an error.
func (obj *parser) exprs(list []*sexp) ([]ast.ID, bool) {
	ids := []ast.ID{}
	ok := true
	for _, x := range list {
		id, good := obj.expr(x)
		ok = ok && good
		ids = append(ids, id)
	}
	return ids, ok
}

// binder checks that a name can be bound by a lambda or a let.
func (obj *parser) binder(s *sexp, seen map[string]struct{}) (string, bool) {
	name, ok := s.symbol()
	if !ok {
		obj.error(ErrParseForm, s.text(), "a name", s.tok.pos)
		return "", false
	}
	if _, exists := keywords[name]; exists || funcs.IsCombinator(name) {
		obj.error(ErrParseReserved, name, "a name which is not reserved", s.tok.pos)
		return "", false
	}
	if seen != nil {
		if _, exists := seen[name]; exists {
			obj.error(ErrParseDuplicate, name, "distinct names", s.tok.pos)
			return "", false
		}
		seen[name] = struct{}{}
	}
	return name, true
}

// lambda converts the parts of (lambda (params...) body).
func (obj *parser) lambda(s *sexp) ([]*ast.Param, ast.ID, bool) {
	if len(s.list) != 3 || !s.list[1].isList {
		obj.error(ErrParseForm, "lambda", "(lambda (params...) body)", s.tok.pos)
		return nil, "", false
	}
	ok := true
	params := []*ast.Param{}
	seen := make(map[string]struct{})
	for _, p := range s.list[1].list {
		if !p.isList {
			name, good := obj.binder(p, seen)
			ok = ok && good
			params = append(params, &ast.Param{Name: name})
			continue
		}
		if len(p.list) != 2 {
			obj.error(ErrParseForm, p.text(), "(name type)", p.tok.pos)
			ok = false
			continue
		}
		name, good := obj.binder(p.list[0], seen)
		typ, goodType := obj.typ(p.list[1])
		ok = ok && good && goodType
		params = append(params, &ast.Param{Name: name, Type: typ})
	}
	body, good := obj.expr(s.list[2])
	return params, body, ok && good
}

func (obj *parser) keyword(name string, s *sexp) (ast.ID, bool) {
	pos := s.tok.pos
	switch name {
	case "lambda":
		params, body, ok := obj.lambda(s)
		if !ok {
			return "", false
		}
		return obj.add(obj.arena.Add(&ast.Expr{Kind: ast.KindLambda, Params: params, Body: body}), pos), true

	case "unit":
		if len(s.list) != 1 {
			obj.error(ErrParseArity, name, "(unit)", pos)
			return "", false
		}
		return obj.add(obj.arena.Atom(&types.UnitValue{}), pos), true

	case "dynamic":
		if len(s.list) != 3 || s.list[1].isList || s.list[1].tok.kind != tokInt || s.list[1].tok.ival <= 0 {
			obj.error(ErrParseForm, name, "(dynamic steps body) with positive steps", pos)
			return "", false
		}
		body, ok := obj.expr(s.list[2])
		if !ok {
			return "", false
		}
		return obj.add(obj.arena.Dynamic(s.list[1].tok.ival, body), pos), true

	case "let", "letrec":
		return obj.let(name == "letrec", s)
	}

	panic(fmt.Sprintf("unhandled keyword: %s", name))
}

// let removes (let ((x e) ...) body) by turning each binding into a lambda that
// is applied immediately. The bindings are sequential, so each one can see the
// ones before it. For letrec, each value must be a lambda, and it is wrapped in
// fix so that it can see itself.
func (obj *parser) let(rec bool, s *sexp) (ast.ID, bool) {
	pos := s.tok.pos
	if len(s.list) != 3 || !s.list[1].isList {
		obj.error(ErrParseForm, s.list[0].tok.text, "(let ((name value)...) body)", pos)
		return "", false
	}

	type binding struct {
		name string
		val  ast.ID
		pos  ast.Pos
	}
	ok := true
	bindings := []binding{}
	for _, b := range s.list[1].list {
		if !b.isList || len(b.list) != 2 {
			obj.error(ErrParseForm, b.text(), "(name value)", b.tok.pos)
			ok = false
			continue
		}
		name, good := obj.binder(b.list[0], nil)
		ok = ok && good
		if !rec {
			val, good := obj.expr(b.list[1])
			ok = ok && good
			bindings = append(bindings, binding{name, val, b.tok.pos})
			continue
		}

		// letrec: (name (lambda (params...) body))
		lam := b.list[1]
		if !lam.isList || len(lam.list) == 0 {
			obj.error(ErrParseForm, lam.text(), "a lambda", lam.tok.pos)
			ok = false
			continue
		}
		if head, _ := lam.list[0].symbol(); head != "lambda" {
			obj.error(ErrParseForm, lam.text(), "a lambda", lam.tok.pos)
			ok = false
			continue
		}
		params, body, good := obj.lambda(lam)
		ok = ok && good
		if !good {
			continue
		}
		for _, p := range params {
			if p.Name == name {
				obj.error(ErrParseDuplicate, name, "a parameter which doesn't shadow the function", lam.tok.pos)
				ok = false
			}
		}
		self := append([]*ast.Param{{Name: name}}, params...)
		inner := obj.add(obj.arena.Add(&ast.Expr{Kind: ast.KindLambda, Params: self, Body: body}), lam.tok.pos)
		val := obj.add(obj.arena.Call(funcs.Fix, inner), lam.tok.pos)
		bindings = append(bindings, binding{name, val, b.tok.pos})
	}

	body, good := obj.expr(s.list[2])
	if !ok || !good {
		return "", false
	}

	for i := len(bindings) - 1; i >= 0; i-- {
		b := bindings[i]
		lam := obj.add(obj.arena.Lambda([]string{b.name}, body), b.pos)
		body = obj.add(obj.arena.Apply(lam, b.val), b.pos)
	}
	obj.pos[body] = pos // the outermost application is the whole let
	return body, true
}

func (obj *parser) combinator(b *funcs.Builtin, s *sexp) (ast.ID, bool) {
	pos := s.tok.pos
	args := s.list[1:]
	name := b.Name

	// quoted requires the arg at index i to be a quoted symbol.
	quoted := func(i int) bool {
		if !args[i].quoted {
			obj.error(ErrParseForm, args[i].text(), "a quoted symbol", args[i].tok.pos)
			return false
		}
		return true
	}

	switch name {
	case funcs.LetTensor: // (let-tensor e l r body)
		if len(args) != 4 {
			obj.error(ErrParseArity, name, "(let-tensor value left right body)", pos)
			return "", false
		}
		seen := make(map[string]struct{})
		l, ok1 := obj.binder(args[1], seen)
		r, ok2 := obj.binder(args[2], seen)
		ids, ok3 := obj.exprs([]*sexp{args[0], args[3]})
		if !ok1 || !ok2 || !ok3 {
			return "", false
		}
		lam := obj.add(obj.arena.Lambda([]string{l, r}, ids[1]), args[1].tok.pos)
		return obj.add(obj.arena.Call(name, ids[0], lam), pos), true

	case funcs.Case: // (case e l lbody r rbody)
		if len(args) != 5 {
			obj.error(ErrParseArity, name, "(case value left lbody right rbody)", pos)
			return "", false
		}
		l, ok1 := obj.binder(args[1], nil)
		r, ok2 := obj.binder(args[3], nil)
		ids, ok3 := obj.exprs([]*sexp{args[0], args[2], args[4]})
		if !ok1 || !ok2 || !ok3 {
			return "", false
		}
		left := obj.add(obj.arena.Lambda([]string{l}, ids[1]), args[1].tok.pos)
		right := obj.add(obj.arena.Lambda([]string{r}, ids[2]), args[3].tok.pos)
		return obj.add(obj.arena.Call(name, ids[0], left, right), pos), true

	case funcs.Record: // (record (field value)...)
		ok := true
		ids := []ast.ID{}
		seen := make(map[string]struct{})
		for _, f := range args {
			if !f.isList || len(f.list) != 2 {
				obj.error(ErrParseForm, f.text(), "(field value)", f.tok.pos)
				ok = false
				continue
			}
			field, good := f.list[0].symbol()
			if !good {
				obj.error(ErrParseForm, f.list[0].text(), "a field name", f.list[0].tok.pos)
				ok = false
				continue
			}
			if _, exists := seen[field]; exists {
				obj.error(ErrParseDuplicate, field, "distinct fields", f.list[0].tok.pos)
				ok = false
				continue
			}
			seen[field] = struct{}{}
			val, good := obj.expr(f.list[1])
			ok = ok && good
			ids = append(ids, obj.add(obj.arena.Symbol(field), f.list[0].tok.pos), val)
		}
		if !ok {
			return "", false
		}
		return obj.add(obj.arena.Call(name, ids...), pos), true
	}

	if b.Arity >= 0 && len(args) != b.Arity {
		obj.error(ErrParseArity, name, fmt.Sprintf("%d arguments", b.Arity), pos)
		obj.exprs(args) // look for more errors inside
		return "", false
	}

	switch name {
	case funcs.Get:
		if !quoted(1) {
			return "", false
		}
	case funcs.Set:
		if !quoted(1) {
			return "", false
		}
	case funcs.Define:
		if !quoted(0) {
			return "", false
		}
	}

	ids, ok := obj.exprs(args)
	if !ok {
		return "", false
	}
	return obj.add(obj.arena.Call(name, ids...), pos), true
}

// typ converts a type annotation.
func (obj *parser) typ(s *sexp) (*types.Type, bool) {
	if !s.isList {
		name, _ := s.symbol()
		switch name {
		case "unit":
			return types.TypeUnit, true
		case "bool":
			return types.TypeBool, true
		case "int":
			return types.TypeInt, true
		case "str":
			return types.TypeStr, true
		case "symbol":
			return types.TypeSymbol, true
		}
		obj.error(ErrParseType, s.text(), "a type", s.tok.pos)
		return nil, false
	}

	if len(s.list) == 0 {
		obj.error(ErrParseType, "()", "a type", s.tok.pos)
		return nil, false
	}
	head, _ := s.list[0].symbol()
	args := s.list[1:]

	many := func() ([]*types.Type, bool) {
		out := []*types.Type{}
		ok := true
		for _, a := range args {
			t, good := obj.typ(a)
			ok = ok && good
			out = append(out, t)
		}
		return out, ok
	}
	arity := func(n int) bool {
		if len(args) != n {
			obj.error(ErrParseType, head, fmt.Sprintf("%d type arguments", n), s.tok.pos)
			return false
		}
		return true
	}

	switch head {
	case "resource", "list":
		if !arity(1) {
			return nil, false
		}
		ts, ok := many()
		if !ok {
			return nil, false
		}
		if head == "list" {
			return types.NewList(ts[0]), true
		}
		return types.NewResource(ts[0]), true

	case "*", "+":
		if !arity(2) {
			return nil, false
		}
		ts, ok := many()
		if !ok {
			return nil, false
		}
		if head == "*" {
			return types.NewProduct(ts[0], ts[1]), true
		}
		return types.NewSum(ts[0], ts[1]), true

	case "-o":
		if len(args) == 0 {
			obj.error(ErrParseType, head, "a result type", s.tok.pos)
			return nil, false
		}
		ts, ok := many()
		if !ok {
			return nil, false
		}
		return types.NewFunc(ts[len(ts)-1], ts[:len(ts)-1]...), true

	case "record":
		fields := make(map[string]*types.Type)
		var tail *types.Type
		ok := true
		for i, f := range args {
			if name, isSym := f.symbol(); isSym && name == "&" && i == len(args)-1 {
				tail = types.NewUni()
				continue
			}
			if !f.isList || len(f.list) != 2 {
				obj.error(ErrParseType, f.text(), "(field type)", f.tok.pos)
				ok = false
				continue
			}
			field, isSym := f.list[0].symbol()
			if !isSym {
				obj.error(ErrParseType, f.list[0].text(), "a field name", f.list[0].tok.pos)
				ok = false
				continue
			}
			if _, exists := fields[field]; exists {
				obj.error(ErrParseDuplicate, field, "distinct fields", f.list[0].tok.pos)
				ok = false
				continue
			}
			t, good := obj.typ(f.list[1])
			ok = ok && good
			fields[field] = t
		}
		if !ok {
			return nil, false
		}
		return types.NewRecord(fields, tail), true
	}

	obj.error(ErrParseType, s.list[0].text(), "a type constructor", s.tok.pos)
	return nil, false
}
