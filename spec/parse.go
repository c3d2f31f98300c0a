package spec

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"math"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// ParseError is a configuration error found while parsing a specification.
type ParseError struct {
	Pos token.Position
	Msg string
}

func (e *ParseError) Error() string {
	if !e.Pos.IsValid() {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

type item struct {
	pos token.Pos
	tok token.Token
	lit string
}

func (it item) text() string {
	if it.lit != "" {
		return it.lit
	}
	return it.tok.String()
}

type parser struct {
	src   string
	file  *token.File
	items []item
	next  int
	spec  TestSpecification
}

// Parse parses a list of clauses into a TestSpecification.
func Parse(src string) (TestSpecification, error) {
	p := &parser{src: src}
	if err := p.scan(); err != nil {
		return TestSpecification{}, err
	}
	for !p.atEOF() {
		if err := p.parseClause(); err != nil {
			return TestSpecification{}, err
		}
		if p.atEOF() {
			break
		}
		if it := p.advance(); it.tok != token.COMMA {
			return TestSpecification{}, p.errorf(it.pos, "expected ',' between clauses, found %q", it.text())
		}
	}
	return p.spec, nil
}

// MustParse is like Parse but panics on error. It is meant for package-level declarations.
func MustParse(src string) TestSpecification {
	s, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return s
}

func (p *parser) scan() error {
	fset := token.NewFileSet()
	p.file = fset.AddFile("", fset.Base(), len(p.src))
	var errs scanner.ErrorList
	var s scanner.Scanner
	s.Init(p.file, []byte(p.src), errs.Add, 0)
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		// automatically inserted at line ends; clauses may span lines
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		p.items = append(p.items, item{pos: pos, tok: tok, lit: lit})
	}
	if len(errs) > 0 {
		return &ParseError{Pos: errs[0].Pos, Msg: errs[0].Msg}
	}
	return nil
}

func (p *parser) atEOF() bool {
	return p.next >= len(p.items)
}

func (p *parser) peek() item {
	if p.atEOF() {
		return item{pos: token.Pos(p.file.Base() + len(p.src)), tok: token.EOF}
	}
	return p.items[p.next]
}

func (p *parser) advance() item {
	it := p.peek()
	if !p.atEOF() {
		p.next++
	}
	return it
}

func (p *parser) errorf(pos token.Pos, format string, args ...interface{}) error {
	var position token.Position
	if pos.IsValid() {
		position = p.file.Position(pos)
	}
	return &ParseError{Pos: position, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) offset(pos token.Pos) int {
	return p.file.Offset(pos)
}

func (p *parser) parseClause() error {
	key := p.advance()
	if key.tok != token.IDENT {
		return p.errorf(key.pos, "unexpected token %q, expected one of %s, %s, %s, %s",
			key.text(), KeyContainers, KeyTeardown, KeySetup, KeyRouter)
	}
	switch key.lit {
	case KeyContainers:
		return p.parseContainers(key)
	case KeyTeardown:
		return p.parseHook(key, &p.spec.Teardown)
	case KeySetup:
		return p.parseHook(key, &p.spec.Setup)
	case KeyRouter:
		return p.parseHook(key, &p.spec.Router)
	default:
		return p.errorf(key.pos, "unexpected token %q, expected one of %s, %s, %s, %s",
			key.lit, KeyContainers, KeyTeardown, KeySetup, KeyRouter)
	}
}

func duplicateHookMessage(key string) string {
	if key == KeyRouter {
		return "router is already defined"
	}
	return fmt.Sprintf("cannot overwrite an existing %s function", key)
}

func (p *parser) parseHook(key item, dest **HookRef) error {
	if *dest != nil {
		return p.errorf(key.pos, "%s", duplicateHookMessage(key.lit))
	}
	if p.peek().tok != token.ASSIGN {
		*dest = &HookRef{Name: key.lit, Implicit: true}
		return nil
	}
	p.advance()

	start, end, ok := p.collectValue()
	if !ok {
		return p.errorf(p.peek().pos, "expected a literal string or valid path to a function for a %s function", key.lit)
	}
	name, err := parseHookExpr(p.src[start:end], key.lit)
	if err != nil {
		return p.errorf(p.file.Pos(start), "%s", err)
	}
	*dest = &HookRef{Name: name}
	return nil
}

// collectValue consumes tokens up to the next top-level comma and returns the source range
// they cover.
func (p *parser) collectValue() (start, end int, ok bool) {
	depth := 0
	for !p.atEOF() {
		it := p.peek()
		switch it.tok {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
		case token.COMMA:
			if depth == 0 {
				return start, end, ok
			}
		}
		p.advance()
		if !ok {
			start, ok = p.offset(it.pos), true
		}
		end = p.offset(it.pos) + len(it.text())
	}
	return start, end, ok
}

func (p *parser) parseContainers(key item) error {
	if p.spec.Containers != nil {
		return p.errorf(key.pos, "containers are already defined")
	}
	if it := p.advance(); it.tok != token.ASSIGN {
		return p.errorf(it.pos, "expected '=' after %s, found %q", KeyContainers, it.text())
	}
	open := p.advance()
	if open.tok != token.LBRACK {
		return p.errorf(open.pos, "expected '[' to start the %s list, found %q", KeyContainers, open.text())
	}
	depth := 1
	var closing item
	for depth > 0 {
		if p.atEOF() {
			return p.errorf(open.pos, "unterminated %s list", KeyContainers)
		}
		it := p.advance()
		switch it.tok {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
		}
		closing = it
	}
	inner := p.src[p.offset(open.pos)+1 : p.offset(closing.pos)]

	providers, err := parseElements(inner)
	if err != nil {
		return p.errorf(open.pos, "%s", err)
	}
	p.spec.Containers = providers
	return nil
}

func parseElements(src string) ([]ContainerProvider, error) {
	providers := []ContainerProvider{}
	if strings.TrimSpace(src) == "" {
		return providers, nil
	}
	// Reuse Go's call syntax for the element list so that trailing commas and nested calls
	// behave exactly as in Go source. A newline before the closing paren would end the call
	// with an inserted semicolon, so trailing space is dropped.
	expr, err := goparser.ParseExpr("_(" + strings.TrimRightFunc(src, unicode.IsSpace) + ")")
	if err != nil {
		return nil, fmt.Errorf("malformed %s list: %w", KeyContainers, err)
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return nil, fmt.Errorf("malformed %s list", KeyContainers)
	}
	for _, arg := range call.Args {
		provider, err := providerFromExpr(arg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

// ParseElement parses a single containers element.
func ParseElement(src string) (ContainerProvider, error) {
	expr, err := goparser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("malformed %s element %q: %w", KeyContainers, src, err)
	}
	return providerFromExpr(expr)
}

func providerFromExpr(expr ast.Expr) (ContainerProvider, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind == token.STRING {
			name, err := unquoteName(e.Value)
			if err != nil {
				return nil, err
			}
			return NamedReference{Name: name}, nil
		}
	case *ast.Ident, *ast.SelectorExpr:
		if name, ok := pathOf(e); ok {
			return NamedReference{Name: name}, nil
		}
	case *ast.CallExpr:
		fn, ok := pathOf(e.Fun)
		if !ok || e.Ellipsis.IsValid() {
			break
		}
		args := make([]ldvalue.Value, 0, len(e.Args))
		for _, a := range e.Args {
			v, err := literalValue(a)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", types.ExprString(e), err)
			}
			args = append(args, v)
		}
		return InlineCall{Func: fn, Args: args, Source: types.ExprString(e)}, nil
	}
	return nil, fmt.Errorf("expected a literal string, a path to a function, or a call expression: %s",
		types.ExprString(expr))
}

func parseHookExpr(src, key string) (string, error) {
	expr, err := goparser.ParseExpr(src)
	if err == nil {
		switch e := expr.(type) {
		case *ast.BasicLit:
			if e.Kind == token.STRING {
				return unquoteName(e.Value)
			}
		case *ast.Ident, *ast.SelectorExpr:
			if name, ok := pathOf(e); ok {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("expected a literal string or valid path to a function for a %s function", key)
}

// pathOf flattens an identifier or a chain of selectors into a dotted path.
func pathOf(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name, e.Name != "_"
	case *ast.SelectorExpr:
		prefix, ok := pathOf(e.X)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Sel.Name, true
	}
	return "", false
}

func unquoteName(lit string) (string, error) {
	s, err := strconv.Unquote(lit)
	if err != nil {
		return "", err
	}
	if !isPath(s) {
		return "", fmt.Errorf("%s is not a valid function name", lit)
	}
	return s, nil
}

func isPath(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if !token.IsIdentifier(part) {
			return false
		}
	}
	return true
}

func literalValue(expr ast.Expr) (ldvalue.Value, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return basicLitValue(e.Kind, e.Value, false)
	case *ast.UnaryExpr:
		if lit, ok := e.X.(*ast.BasicLit); ok && (e.Op == token.SUB || e.Op == token.ADD) &&
			(lit.Kind == token.INT || lit.Kind == token.FLOAT) {
			return basicLitValue(lit.Kind, lit.Value, e.Op == token.SUB)
		}
	case *ast.Ident:
		switch e.Name {
		case "true":
			return ldvalue.Bool(true), nil
		case "false":
			return ldvalue.Bool(false), nil
		case "nil":
			return ldvalue.Null(), nil
		}
	case *ast.ParenExpr:
		return literalValue(e.X)
	}
	return ldvalue.Null(), fmt.Errorf("unsupported argument %s, only literals are allowed", types.ExprString(expr))
}

func basicLitValue(kind token.Token, lit string, negate bool) (ldvalue.Value, error) {
	switch kind {
	case token.STRING, token.CHAR:
		if kind == token.CHAR {
			r, _, _, err := strconv.UnquoteChar(lit[1:len(lit)-1], '\'')
			if err != nil {
				return ldvalue.Null(), err
			}
			return ldvalue.String(string(r)), nil
		}
		s, err := strconv.Unquote(lit)
		if err != nil {
			return ldvalue.Null(), err
		}
		return ldvalue.String(s), nil
	case token.INT:
		n, err := strconv.ParseInt(strings.ReplaceAll(lit, "_", ""), 0, 64)
		if err != nil {
			return ldvalue.Null(), fmt.Errorf("invalid integer %s: %w", lit, err)
		}
		if negate {
			n = -n
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return ldvalue.Int(int(n)), nil
		}
		return ldvalue.Float64(float64(n)), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64)
		if err != nil {
			return ldvalue.Null(), fmt.Errorf("invalid number %s: %w", lit, err)
		}
		if negate {
			f = -f
		}
		return ldvalue.Float64(f), nil
	}
	return ldvalue.Null(), fmt.Errorf("unsupported literal %s", lit)
}
