package ddbtest

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// tokens

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkIdent
	tkName
	tkValue
	tkPunct
)

type token struct {
	kind tokenKind
	text string
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func tokenize(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r':
			i++
		case ch == '#' || ch == ':':
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			kind := tkName
			if ch == ':' {
				kind = tkValue
			}
			out = append(out, token{kind: kind, text: s[i:j]})
			i = j
		case isIdentChar(ch):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			out = append(out, token{kind: tkIdent, text: s[i:j]})
			i = j
		case ch == '<' && i+1 < len(s) && (s[i+1] == '>' || s[i+1] == '='):
			out = append(out, token{kind: tkPunct, text: s[i : i+2]})
			i += 2
		case ch == '>' && i+1 < len(s) && s[i+1] == '=':
			out = append(out, token{kind: tkPunct, text: ">="})
			i += 2
		case strings.IndexByte("(),+-=<>", ch) >= 0:
			out = append(out, token{kind: tkPunct, text: string(ch)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", ch, i)
		}
	}
	return append(out, token{kind: tkEOF}), nil
}

// parser

type parser struct {
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func newParser(expr string, names map[string]string, values map[string]types.AttributeValue) (*parser, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, names: names, values: values}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return token{kind: tkEOF}
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) punct(text string) bool {
	if t := p.peek(); t.kind == tkPunct && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.punct(text) {
		return fmt.Errorf("expected %q, got %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) keyword(kw string) bool {
	if t := p.peek(); t.kind == tkIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) done() error {
	if t := p.peek(); t.kind != tkEOF {
		return fmt.Errorf("unexpected token %q", t.text)
	}
	return nil
}

func (p *parser) path() (string, error) {
	t := p.next()
	switch t.kind {
	case tkName:
		name, ok := p.names[t.text]
		if !ok {
			return "", fmt.Errorf("undefined attribute name %s", t.text)
		}
		return name, nil
	case tkIdent:
		return t.text, nil
	}
	return "", fmt.Errorf("expected attribute path, got %q", t.text)
}

func (p *parser) value() (types.AttributeValue, error) {
	t := p.next()
	if t.kind != tkValue {
		return nil, fmt.Errorf("expected value placeholder, got %q", t.text)
	}
	v, ok := p.values[t.text]
	if !ok {
		return nil, fmt.Errorf("undefined attribute value %s", t.text)
	}
	return v, nil
}

// conditions

type predicate func(it item) bool

type operand func(it item) (types.AttributeValue, bool)

// compileCondition parses a condition, key condition or filter expression.
func compileCondition(expr string, names map[string]string, values map[string]types.AttributeValue) (predicate, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, err
	}
	pred, err := p.or()
	if err != nil {
		return nil, err
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	return pred, nil
}

func (p *parser) or() (predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(it item) bool { return l(it) || right(it) }
	}
	return left, nil
}

func (p *parser) and() (predicate, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(it item) bool { return l(it) && right(it) }
	}
	return left, nil
}

func (p *parser) not() (predicate, error) {
	if p.keyword("NOT") {
		inner, err := p.not()
		if err != nil {
			return nil, err
		}
		return func(it item) bool { return !inner(it) }, nil
	}
	return p.primary()
}

func (p *parser) primary() (predicate, error) {
	if p.punct("(") {
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		return inner, p.expect(")")
	}

	if t := p.peek(); t.kind == tkIdent && p.peekAt(1).text == "(" {
		switch strings.ToLower(t.text) {
		case "attribute_exists", "attribute_not_exists":
			p.next()
			p.next()
			name, err := p.path()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			want := strings.EqualFold(t.text, "attribute_exists")
			return func(it item) bool {
				_, ok := it[name]
				return ok == want
			}, nil
		case "begins_with", "contains":
			p.next()
			p.next()
			left, err := p.operand()
			if err != nil {
				return nil, err
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
			right, err := p.operand()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			fn := beginsWith
			if strings.EqualFold(t.text, "contains") {
				fn = contains
			}
			return func(it item) bool {
				a, okA := left(it)
				b, okB := right(it)
				return okA && okB && fn(a, b)
			}, nil
		}
	}

	left, err := p.operand()
	if err != nil {
		return nil, err
	}

	if p.keyword("BETWEEN") {
		lo, err := p.operand()
		if err != nil {
			return nil, err
		}
		if !p.keyword("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN")
		}
		hi, err := p.operand()
		if err != nil {
			return nil, err
		}
		return func(it item) bool {
			v, ok := left(it)
			l, okL := lo(it)
			h, okH := hi(it)
			if !ok || !okL || !okH {
				return false
			}
			c1, ok1 := compare(v, l)
			c2, ok2 := compare(v, h)
			return ok1 && ok2 && c1 >= 0 && c2 <= 0
		}, nil
	}

	if p.keyword("IN") {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		var list []operand
		for {
			o, err := p.operand()
			if err != nil {
				return nil, err
			}
			list = append(list, o)
			if !p.punct(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(it item) bool {
			v, ok := left(it)
			if !ok {
				return false
			}
			for _, o := range list {
				if w, ok := o(it); ok && equal(v, w) {
					return true
				}
			}
			return false
		}, nil
	}

	op := p.next()
	if op.kind != tkPunct {
		return nil, fmt.Errorf("expected comparator, got %q", op.text)
	}
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	switch op.text {
	case "=", "<>":
		negate := op.text == "<>"
		return func(it item) bool {
			a, okA := left(it)
			b, okB := right(it)
			if !okA || !okB {
				return negate
			}
			return equal(a, b) != negate
		}, nil
	case "<", "<=", ">", ">=":
		return func(it item) bool {
			a, okA := left(it)
			b, okB := right(it)
			if !okA || !okB {
				return false
			}
			c, ok := compare(a, b)
			if !ok {
				return false
			}
			switch op.text {
			case "<":
				return c < 0
			case "<=":
				return c <= 0
			case ">":
				return c > 0
			default:
				return c >= 0
			}
		}, nil
	}
	return nil, fmt.Errorf("unknown comparator %q", op.text)
}

func (p *parser) operand() (operand, error) {
	t := p.peek()
	if t.kind == tkValue {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		return func(item) (types.AttributeValue, bool) { return v, true }, nil
	}
	if t.kind == tkIdent && strings.EqualFold(t.text, "size") && p.peekAt(1).text == "(" {
		p.next()
		p.next()
		name, err := p.path()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(it item) (types.AttributeValue, bool) {
			n, ok := size(it[name])
			if !ok {
				return nil, false
			}
			return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}, true
		}, nil
	}
	name, err := p.path()
	if err != nil {
		return nil, err
	}
	return func(it item) (types.AttributeValue, bool) {
		v, ok := it[name]
		return v, ok
	}, nil
}

// updates

// action applies one clause of an update. Right hand sides read old; the
// result is written to cur.
type action func(old, cur item) error

func compileUpdate(expr string, names map[string]string, values map[string]types.AttributeValue) ([]action, []string, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, nil, err
	}
	var (
		actions []action
		touched []string
	)
	for p.peek().kind != tkEOF {
		clause := p.next()
		if clause.kind != tkIdent {
			return nil, nil, fmt.Errorf("expected update clause, got %q", clause.text)
		}
		mode := strings.ToUpper(clause.text)
		for {
			name, err := p.path()
			if err != nil {
				return nil, nil, err
			}
			touched = append(touched, name)

			var act action
			switch mode {
			case "SET":
				if err := p.expect("="); err != nil {
					return nil, nil, err
				}
				rhs, err := p.setValue()
				if err != nil {
					return nil, nil, err
				}
				act = func(old, cur item) error {
					v, err := rhs(old)
					if err != nil {
						return err
					}
					cur[name] = v
					return nil
				}
			case "REMOVE":
				act = func(_, cur item) error {
					delete(cur, name)
					return nil
				}
			case "ADD", "DELETE":
				v, err := p.value()
				if err != nil {
					return nil, nil, err
				}
				add := mode == "ADD"
				act = func(old, cur item) error {
					res, err := addOrDelete(old[name], v, add)
					if err != nil {
						return err
					}
					if res == nil {
						delete(cur, name)
					} else {
						cur[name] = res
					}
					return nil
				}
			default:
				return nil, nil, fmt.Errorf("unknown update clause %q", clause.text)
			}
			actions = append(actions, act)

			if !p.punct(",") {
				break
			}
		}
	}
	return actions, touched, nil
}

type setOperand func(old item) (types.AttributeValue, error)

func (p *parser) setValue() (setOperand, error) {
	left, err := p.setOperand()
	if err != nil {
		return nil, err
	}
	for {
		var sign float64
		switch {
		case p.punct("+"):
			sign = 1
		case p.punct("-"):
			sign = -1
		default:
			return left, nil
		}
		right, err := p.setOperand()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(old item) (types.AttributeValue, error) {
			a, err := l(old)
			if err != nil {
				return nil, err
			}
			b, err := right(old)
			if err != nil {
				return nil, err
			}
			x, okA := number(a)
			y, okB := number(b)
			if !okA || !okB {
				return nil, fmt.Errorf("an operand in the update expression has an incorrect data type")
			}
			return &types.AttributeValueMemberN{Value: formatNumber(x + sign*y)}, nil
		}
	}
}

func (p *parser) setOperand() (setOperand, error) {
	t := p.peek()
	if t.kind == tkValue {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		return func(item) (types.AttributeValue, error) { return v, nil }, nil
	}
	if t.kind == tkIdent && p.peekAt(1).text == "(" {
		switch strings.ToLower(t.text) {
		case "if_not_exists":
			p.next()
			p.next()
			name, err := p.path()
			if err != nil {
				return nil, err
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
			fallback, err := p.setValue()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return func(old item) (types.AttributeValue, error) {
				if v, ok := old[name]; ok {
					return v, nil
				}
				return fallback(old)
			}, nil
		case "list_append":
			p.next()
			p.next()
			first, err := p.setValue()
			if err != nil {
				return nil, err
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
			second, err := p.setValue()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return func(old item) (types.AttributeValue, error) {
				a, err := first(old)
				if err != nil {
					return nil, err
				}
				b, err := second(old)
				if err != nil {
					return nil, err
				}
				la, okA := a.(*types.AttributeValueMemberL)
				lb, okB := b.(*types.AttributeValueMemberL)
				if !okA || !okB {
					return nil, fmt.Errorf("list_append requires list operands")
				}
				out := append(append([]types.AttributeValue{}, la.Value...), lb.Value...)
				return &types.AttributeValueMemberL{Value: out}, nil
			}, nil
		}
	}
	name, err := p.path()
	if err != nil {
		return nil, err
	}
	return func(old item) (types.AttributeValue, error) {
		v, ok := old[name]
		if !ok {
			return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item: %s", name)
		}
		return v, nil
	}, nil
}

func addOrDelete(current, delta types.AttributeValue, add bool) (types.AttributeValue, error) {
	switch d := delta.(type) {
	case *types.AttributeValueMemberN:
		if !add {
			return nil, fmt.Errorf("DELETE is only supported on sets")
		}
		y, _ := number(d)
		x := 0.0
		if current != nil {
			var ok bool
			if x, ok = number(current); !ok {
				return nil, fmt.Errorf("an operand in the update expression has an incorrect data type")
			}
		}
		return &types.AttributeValueMemberN{Value: formatNumber(x + y)}, nil
	case *types.AttributeValueMemberSS:
		var have []string
		if cur, ok := current.(*types.AttributeValueMemberSS); ok {
			have = cur.Value
		} else if current != nil {
			return nil, fmt.Errorf("an operand in the update expression has an incorrect data type")
		}
		out := mergeStrings(have, d.Value, add)
		if len(out) == 0 {
			return nil, nil
		}
		return &types.AttributeValueMemberSS{Value: out}, nil
	}
	return nil, fmt.Errorf("unsupported operand type %T for ADD/DELETE", delta)
}

func mergeStrings(have, delta []string, add bool) []string {
	set := make(map[string]struct{}, len(have)+len(delta))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range delta {
		if add {
			set[s] = struct{}{}
		} else {
			delete(set, s)
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// values

func number(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	return f, err == nil
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		if y, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(x.Value, y.Value), true
		}
	case *types.AttributeValueMemberN:
		fx, okX := number(x)
		fy, okY := number(b)
		if okX && okY {
			switch {
			case fx < fy:
				return -1, true
			case fx > fy:
				return 1, true
			}
			return 0, true
		}
	case *types.AttributeValueMemberB:
		if y, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(x.Value, y.Value), true
		}
	}
	return 0, false
}

func equal(a, b types.AttributeValue) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func beginsWith(a, b types.AttributeValue) bool {
	x, okA := a.(*types.AttributeValueMemberS)
	y, okB := b.(*types.AttributeValueMemberS)
	return okA && okB && strings.HasPrefix(x.Value, y.Value)
}

func contains(a, b types.AttributeValue) bool {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		y, ok := b.(*types.AttributeValueMemberS)
		return ok && strings.Contains(x.Value, y.Value)
	case *types.AttributeValueMemberSS:
		y, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, s := range x.Value {
			if s == y.Value {
				return true
			}
		}
	case *types.AttributeValueMemberL:
		for _, el := range x.Value {
			if equal(el, b) {
				return true
			}
		}
	}
	return false
}

func size(v types.AttributeValue) (int, bool) {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return len(x.Value), true
	case *types.AttributeValueMemberB:
		return len(x.Value), true
	case *types.AttributeValueMemberSS:
		return len(x.Value), true
	case *types.AttributeValueMemberNS:
		return len(x.Value), true
	case *types.AttributeValueMemberL:
		return len(x.Value), true
	case *types.AttributeValueMemberM:
		return len(x.Value), true
	}
	return 0, false
}
