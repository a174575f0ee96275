// Package policy holds configurable stock rules. The low-stock buffer is
// an inferred policy choice, not a stated business rule, so it is
// expressed as a CEL predicate instead of a hard constant.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// DefaultLowStockRule flags stock inside a 20% buffer above the requirement.
const DefaultLowStockRule = "available < required * 1.2"

// StockRule is a compiled low-stock predicate over two variables:
// available and required (both doubles). It is evaluated only for stock
// that already covers the requirement; shortage is classified separately.
type StockRule struct {
	expr    string
	program cel.Program
}

// NewStockRule compiles a CEL expression into a stock rule.
func NewStockRule(expr string) (*StockRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("available", cel.DoubleType),
		cel.Variable("required", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile stock rule %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("stock rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build stock rule program: %w", err)
	}

	return &StockRule{expr: expr, program: program}, nil
}

// MustStockRule compiles a rule, panicking on error. For constants and tests.
func MustStockRule(expr string) *StockRule {
	r, err := NewStockRule(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultStockRule returns the compiled default buffer rule.
func DefaultStockRule() *StockRule {
	return MustStockRule(DefaultLowStockRule)
}

// Expr returns the source expression.
func (r *StockRule) Expr() string { return r.expr }

// IsLowStock evaluates the predicate.
func (r *StockRule) IsLowStock(available, required float64) (bool, error) {
	out, _, err := r.program.Eval(map[string]any{
		"available": available,
		"required":  required,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate stock rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("stock rule returned %T, want bool", out.Value())
	}
	return result, nil
}
