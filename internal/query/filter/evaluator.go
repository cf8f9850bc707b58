// Package filter evaluates predicate trees against rows with SQL
// three-valued logic.
package filter

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/internal/query/data"
)

// Truth is a three-valued logic result.
type Truth int

const (
	False Truth = iota
	True
	Unknown
)

func (t Truth) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	}
	return "UNKNOWN"
}

// Not negates t; Unknown stays Unknown.
func (t Truth) Not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

func truthOf(b bool) Truth {
	if b {
		return True
	}
	return False
}

// DefaultLikeCacheSize is the number of compiled LIKE patterns retained.
const DefaultLikeCacheSize = 256

// Evaluator evaluates FilterItems. It is safe for concurrent use.
type Evaluator struct {
	logger *zap.Logger
	likes  *lru.Cache[string, *regexp.Regexp]
}

// Option configures an Evaluator.
type Option func(*evaluatorOptions)

type evaluatorOptions struct {
	logger        *zap.Logger
	likeCacheSize int
}

// WithLogger sets the logger used for per-row evaluation errors.
func WithLogger(logger *zap.Logger) Option {
	return func(o *evaluatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLikeCacheSize sets the LIKE pattern cache capacity.
func WithLikeCacheSize(n int) Option {
	return func(o *evaluatorOptions) {
		if n > 0 {
			o.likeCacheSize = n
		}
	}
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	o := evaluatorOptions{
		logger:        zap.NewNop(),
		likeCacheSize: DefaultLikeCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, *regexp.Regexp](o.likeCacheSize)
	if err != nil {
		panic(fmt.Sprintf("filter: like cache: %v", err))
	}
	return &Evaluator{logger: o.logger, likes: cache}
}

// Accept reports whether f is True for row. Unknown rejects.
func (e *Evaluator) Accept(f *ast.FilterItem, row data.Row) bool {
	return e.Eval(f, row) == True
}

// AcceptAll reports whether every filter accepts row, as for a WHERE list.
func (e *Evaluator) AcceptAll(filters []*ast.FilterItem, row data.Row) bool {
	for _, f := range filters {
		if !e.Accept(f, row) {
			return false
		}
	}
	return true
}

// Eval evaluates f against row.
func (e *Evaluator) Eval(f *ast.FilterItem, row data.Row) Truth {
	var t Truth
	if f.IsComposite() {
		t = e.evalComposite(f, row)
	} else {
		t = e.evalLeaf(f, row)
	}
	if f.Negated {
		return t.Not()
	}
	return t
}

func (e *Evaluator) evalComposite(f *ast.FilterItem, row data.Row) Truth {
	switch f.Logic {
	case ast.LogicalAnd:
		result := True
		for _, c := range f.Children {
			switch e.Eval(c, row) {
			case False:
				return False
			case Unknown:
				result = Unknown
			}
		}
		return result
	case ast.LogicalOr:
		result := False
		for _, c := range f.Children {
			switch e.Eval(c, row) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result
	}
	return Unknown
}

func (e *Evaluator) evalLeaf(f *ast.FilterItem, row data.Row) Truth {
	value, err := row.ValueOf(f.Item)
	if err != nil {
		e.rowError(f, err)
		return Unknown
	}

	switch f.Operator {
	case ast.OpIsNull:
		return truthOf(value == nil)
	case ast.OpIsNotNull:
		return truthOf(value != nil)
	}

	operand := f.Operand
	if item, ok := f.OperandItem(); ok {
		operand, err = row.ValueOf(item)
		if err != nil {
			e.rowError(f, err)
			return Unknown
		}
	}

	if value == nil {
		return Unknown
	}

	switch f.Operator {
	case ast.OpEquals:
		if operand == nil {
			return Unknown
		}
		return truthOf(compare.Equal(value, operand))

	case ast.OpDifferentFrom:
		if operand == nil {
			return Unknown
		}
		return truthOf(!compare.Equal(value, operand))

	case ast.OpGreaterThan, ast.OpGreaterThanOrEqual, ast.OpLessThan, ast.OpLessThanOrEqual:
		if operand == nil {
			return Unknown
		}
		c, err := compare.Compare(value, operand)
		if err != nil {
			e.rowError(f, err)
			return Unknown
		}
		return truthOf(ordered(f.Operator, c))

	case ast.OpIn:
		return in(value, operand)
	case ast.OpNotIn:
		return in(value, operand).Not()

	case ast.OpLike:
		return e.like(f, value, operand)
	case ast.OpNotLike:
		return e.like(f, value, operand).Not()
	}

	e.rowError(f, fmt.Errorf("filter: unsupported operator %s", f.Operator))
	return Unknown
}

func ordered(op ast.OperatorType, c int) bool {
	switch op {
	case ast.OpGreaterThan:
		return c > 0
	case ast.OpGreaterThanOrEqual:
		return c >= 0
	case ast.OpLessThan:
		return c < 0
	case ast.OpLessThanOrEqual:
		return c <= 0
	}
	return false
}

// in tests membership. A null member that fails to match makes the result
// Unknown, as in SQL.
func in(value, operand interface{}) Truth {
	list, ok := operand.([]interface{})
	if !ok {
		list = []interface{}{operand}
	}
	result := False
	for _, candidate := range list {
		if candidate == nil {
			result = Unknown
			continue
		}
		if compare.Equal(value, candidate) {
			return True
		}
	}
	return result
}

func (e *Evaluator) like(f *ast.FilterItem, value, operand interface{}) Truth {
	if operand == nil {
		return Unknown
	}
	re, err := e.likePattern(compare.ToString(operand))
	if err != nil {
		e.rowError(f, err)
		return Unknown
	}
	return truthOf(re.MatchString(compare.ToString(value)))
}

func (e *Evaluator) likePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.likes.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(LikeToRegex(pattern))
	if err != nil {
		return nil, fmt.Errorf("filter: invalid LIKE pattern %q: %w", pattern, err)
	}
	e.likes.Add(pattern, re)
	return re, nil
}

func (e *Evaluator) rowError(f *ast.FilterItem, err error) {
	e.logger.Debug("predicate evaluation failed, treating row as non-match",
		zap.String("predicate", f.String()),
		zap.Error(err))
}
