package overdue

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"
)

var (
	ErrEmptyPolicy      = errors.New("overdue policy is empty")
	ErrNonBooleanPolicy = errors.New("policy did not evaluate to boolean")
)

// Policy decides whether a lent loan is overdue. Expressions see the parameters
// hoursPastDue, daysPastDue, loanDays, lenderId, borrowerId and bookId.
type Policy struct {
	source string
	expr   *govaluate.EvaluableExpression
	fixed  *bool
}

// ParsePolicy compiles an expression. "true" and "false" are accepted as literals.
func ParsePolicy(source string) (*Policy, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, ErrEmptyPolicy
	}
	switch strings.ToLower(src) {
	case "true", "false":
		v := strings.EqualFold(src, "true")
		return &Policy{source: src, fixed: &v}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, err
	}
	return &Policy{source: src, expr: expr}, nil
}

func (p *Policy) String() string {
	return p.source
}

// Evaluate runs the expression against params.
func (p *Policy) Evaluate(params map[string]interface{}) (bool, error) {
	if p.fixed != nil {
		return *p.fixed, nil
	}
	result, err := p.expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, ErrNonBooleanPolicy
	}
	return v, nil
}
