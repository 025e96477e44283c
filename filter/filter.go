// Package filter parses the triplet-based filter expression grammar used
// by the search and delete_bulk operations into an Expr tree, and compiles
// an Expr tree into a dialect-specific SQL fragment plus positional
// arguments.
//
// An expression is a JSON-friendly nested list, the same shape the HTTP
// layer accepts in a search request body:
//
//	[]any{[]any{"active", "=", true}}
//	[]any{[]any{"active", "=", true}, "or", []any{[]any{"role", "=", "admin"}, []any{"verified", "=", true}}}
//	[]any{[]any{"not", []any{[]any{"active", "=", true}}}}
//
// Consecutive triplets/groups with no explicit "and"/"or" between them are
// joined with AND, matching the semantics of the original domain-filter
// language this grammar was translated from.
package filter

import (
	"fmt"
	"strings"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
)

// Op is one of the comparison operators a Triplet may use.
type Op string

const (
	Eq           Op = "="
	Ne           Op = "!="
	Gt           Op = ">"
	Lt           Op = "<"
	Ge           Op = ">="
	Le           Op = "<="
	Like         Op = "like"
	ILike        Op = "ilike"
	EqLike       Op = "=like"
	EqILike      Op = "=ilike"
	NotLike      Op = "not like"
	NotILike     Op = "not ilike"
	In           Op = "in"
	NotIn        Op = "not in"
	IsNull       Op = "is null"
	IsNotNull    Op = "is not null"
	Between      Op = "between"
	NotBetween   Op = "not between"
)

// Expr is a node in a parsed filter tree: a Triplet, a Not, or a Group.
type Expr interface {
	isExpr()
}

// Triplet is a single "field op value" condition.
type Triplet struct {
	Field string
	Op    Op
	Value any
}

func (Triplet) isExpr() {}

// Not negates the wrapped expression.
type Not struct {
	Expr Expr
}

func (Not) isExpr() {}

// logic is "and" or "or", the join operator between consecutive members of
// a Group.
type logic string

const (
	andLogic logic = "AND"
	orLogic  logic = "OR"
)

// member pairs a parsed sub-expression with the logic operator that
// precedes it (andLogic for the first member).
type member struct {
	logic logic
	expr  Expr
}

// Group is a parenthesizable sequence of expressions joined by AND/OR.
type Group struct {
	members []member
}

func (*Group) isExpr() {}

// Parse converts a raw nested-list filter expression into an Expr tree.
func Parse(raw any) (Expr, error) {
	return parse(raw)
}

func parse(raw any) (Expr, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, dotorm.NewFilterError(fmt.Sprint(raw), "expected a list")
	}

	// ("not", expr)
	if len(list) == 2 {
		if kw, ok := list[0].(string); ok && kw == "not" {
			inner, err := parse(list[1])
			if err != nil {
				return nil, err
			}
			return Not{Expr: inner}, nil
		}
	}

	// ("field", "op", value)
	if isTriplet(list) {
		return parseTriplet(list)
	}

	return parseGroup(list)
}

func isTriplet(list []any) bool {
	if len(list) != 3 {
		return false
	}
	_, ok := list[0].(string)
	if !ok {
		return false
	}
	// An operator string at index 1 disambiguates a triplet from a
	// three-member group of bare sub-expressions.
	_, ok = list[1].(string)
	return ok
}

func parseTriplet(list []any) (Expr, error) {
	field, _ := list[0].(string)
	opStr, _ := list[1].(string)
	op := Op(opStr)
	if !validOp(op) {
		return nil, dotorm.NewFilterError(opStr, "unsupported operator")
	}
	return Triplet{Field: field, Op: op, Value: list[2]}, nil
}

func validOp(op Op) bool {
	switch op {
	case Eq, Ne, Gt, Lt, Ge, Le, Like, ILike, EqLike, EqILike, NotLike, NotILike,
		In, NotIn, IsNull, IsNotNull, Between, NotBetween:
		return true
	default:
		return false
	}
}

func parseGroup(list []any) (Expr, error) {
	g := &Group{}
	pendingLogic := andLogic
	haveExpr := false

	for i, item := range list {
		switch v := item.(type) {
		case string:
			switch v {
			case "and", "AND":
				pendingLogic = andLogic
			case "or", "OR":
				pendingLogic = orLogic
			default:
				return nil, dotorm.NewFilterError(v, fmt.Sprintf("invalid filter element at position %d", i))
			}
		case []any:
			inner, err := parse(v)
			if err != nil {
				return nil, err
			}
			l := andLogic
			if haveExpr {
				l = pendingLogic
			}
			g.members = append(g.members, member{logic: l, expr: inner})
			haveExpr = true
			pendingLogic = andLogic
		default:
			return nil, dotorm.NewFilterError(fmt.Sprint(item), fmt.Sprintf("invalid filter element at position %d", i))
		}
	}
	return g, nil
}

// Compile renders expr into a WHERE-clause fragment (without the WHERE
// keyword) and its positional arguments, using d's identifier escaping and
// placeholder style.
func Compile(d dialect.Dialect, expr Expr) (string, []any, error) {
	c := &compiler{dialect: d, paramIndex: 1}
	clause, err := c.compile(expr)
	if err != nil {
		return "", nil, err
	}
	return clause, c.args, nil
}

type compiler struct {
	dialect    dialect.Dialect
	args       []any
	paramIndex int
}

func (c *compiler) placeholder() string {
	p := c.dialect.MakePlaceholder(c.paramIndex)
	c.paramIndex++
	return p
}

func (c *compiler) compile(expr Expr) (string, error) {
	switch e := expr.(type) {
	case Triplet:
		return c.compileTriplet(e)
	case Not:
		inner, err := c.compile(e.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case *Group:
		return c.compileGroup(e)
	default:
		return "", dotorm.NewInvariantError(fmt.Sprintf("filter: unknown expr type %T", expr))
	}
}

func (c *compiler) compileTriplet(t Triplet) (string, error) {
	field := c.dialect.EscapeIdentifier(t.Field)

	switch t.Op {
	case In, NotIn:
		values, ok := toSlice(t.Value)
		if !ok {
			return "", dotorm.NewFilterError(string(t.Op), "requires a list value")
		}
		if len(values) == 0 {
			// An empty IN-list matches nothing; an empty NOT IN matches
			// everything. Short-circuit rather than emit invalid SQL.
			if t.Op == In {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = c.placeholder()
			c.args = append(c.args, v)
		}
		verb := "IN"
		if t.Op == NotIn {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", field, verb, join(placeholders, ", ")), nil

	case Like, ILike, EqLike, EqILike, NotLike, NotILike:
		value := fmt.Sprint(t.Value)
		if t.Op == Like || t.Op == ILike || t.Op == NotLike || t.Op == NotILike {
			value = "%" + value + "%"
		}
		ph := c.placeholder()
		isCaseInsensitive := t.Op == ILike || t.Op == EqILike || t.Op == NotILike
		if isCaseInsensitive && !c.dialect.SupportsILike() {
			// MySQL/Clickhouse have no ILIKE operator; fold both sides
			// through LOWER instead, matching the Postgres-only native
			// case-insensitive comparison behavior.
			c.args = append(c.args, strings.ToLower(value))
			verb := "LIKE"
			if t.Op == NotILike {
				verb = "NOT LIKE"
			}
			return fmt.Sprintf("LOWER(%s) %s %s", field, verb, ph), nil
		}
		c.args = append(c.args, value)
		return fmt.Sprintf("%s %s %s", field, likeVerb(t.Op), ph), nil

	case Eq, Ne, Gt, Lt, Ge, Le:
		if t.Value == nil {
			switch t.Op {
			case Eq:
				return field + " IS NULL", nil
			case Ne:
				return field + " IS NOT NULL", nil
			default:
				return "", dotorm.NewFilterError(string(t.Op), "cannot be used with a nil value")
			}
		}
		ph := c.placeholder()
		c.args = append(c.args, t.Value)
		return fmt.Sprintf("%s %s %s", field, t.Op, ph), nil

	case IsNull:
		return field + " IS NULL", nil
	case IsNotNull:
		return field + " IS NOT NULL", nil

	case Between, NotBetween:
		values, ok := toSlice(t.Value)
		if !ok || len(values) != 2 {
			return "", dotorm.NewFilterError(string(t.Op), "requires a two-element list")
		}
		verb := "BETWEEN"
		if t.Op == NotBetween {
			verb = "NOT BETWEEN"
		}
		lo, hi := c.placeholder(), c.placeholder()
		c.args = append(c.args, values[0], values[1])
		return fmt.Sprintf("%s %s %s AND %s", field, verb, lo, hi), nil

	default:
		return "", dotorm.NewFilterError(string(t.Op), "unsupported operator")
	}
}

func likeVerb(op Op) string {
	switch op {
	case Like:
		return "LIKE"
	case ILike:
		return "ILIKE"
	case EqLike:
		return "LIKE"
	case EqILike:
		return "ILIKE"
	case NotLike:
		return "NOT LIKE"
	case NotILike:
		return "NOT ILIKE"
	}
	return ""
}

func (c *compiler) compileGroup(g *Group) (string, error) {
	var sb []string
	for i, m := range g.members {
		if i > 0 {
			sb = append(sb, string(m.logic))
		}
		clause, err := c.compile(m.expr)
		if err != nil {
			return "", err
		}
		if _, isTriplet := m.expr.(Triplet); !isTriplet {
			clause = "(" + clause + ")"
		}
		sb = append(sb, clause)
	}
	return join(sb, " "), nil
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	default:
		return nil, false
	}
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
