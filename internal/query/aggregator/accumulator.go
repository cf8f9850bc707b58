// Package aggregator computes per-group aggregate functions and orders
// result rows.
package aggregator

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/pkg/types"
)

// Builder accumulates the values of one aggregate function over one group.
// NULL values are ignored by every function except COUNT(*), which counts
// rows. Result finalizes the builder; later calls return the same value.
type Builder interface {
	Add(value interface{})
	Result() interface{}
}

// NewBuilder creates a builder for fn over values of the given input type.
// countAll selects COUNT(*) semantics.
func NewBuilder(fn ast.FunctionType, input types.ColumnType, countAll bool) (Builder, error) {
	var acc accumulator
	switch fn {
	case ast.FuncCount:
		acc = &countAcc{all: countAll}
	case ast.FuncSum:
		acc = &sumAcc{num: newNumberSum(input)}
	case ast.FuncAvg:
		acc = &avgAcc{num: newNumberSum(input)}
	case ast.FuncMin:
		acc = &extremumAcc{sign: -1}
	case ast.FuncMax:
		acc = &extremumAcc{sign: 1}
	case ast.FuncFirst:
		acc = &firstAcc{}
	case ast.FuncLast:
		acc = &lastAcc{}
	case ast.FuncRandom:
		acc = &randomAcc{}
	case ast.FuncMedian:
		acc = &medianAcc{integer: input.IsInteger()}
	default:
		return nil, fmt.Errorf("aggregator: %s is not an aggregate function", fn)
	}
	return &memoized{acc: acc}, nil
}

type accumulator interface {
	add(value interface{})
	result() interface{}
}

// memoized finalizes its accumulator exactly once.
type memoized struct {
	acc   accumulator
	done  bool
	value interface{}
}

func (m *memoized) Add(value interface{}) {
	if m.done {
		return
	}
	m.acc.add(value)
}

func (m *memoized) Result() interface{} {
	if !m.done {
		m.value = m.acc.result()
		m.done = true
		m.acc = nil
	}
	return m.value
}

type countAcc struct {
	all bool
	n   int64
}

func (c *countAcc) add(value interface{}) {
	if value != nil || c.all {
		c.n++
	}
}

func (c *countAcc) result() interface{} { return c.n }

// numberSum is a running sum that starts in the category of the declared
// input type and widens when a value does not fit: int64 to float64 for a
// fractional value, int64 to decimal on overflow, and never away from
// decimal.
type numberSum struct {
	mode  sumMode
	isSet bool
	i     int64
	f     float64
	d     decimal.Decimal
	count int64
}

type sumMode int

const (
	sumInt sumMode = iota
	sumFloat
	sumDecimal
)

func newNumberSum(input types.ColumnType) *numberSum {
	switch {
	case input.IsDecimal():
		return &numberSum{mode: sumDecimal}
	case input.IsInteger():
		return &numberSum{mode: sumInt}
	}
	return &numberSum{mode: sumFloat}
}

func (s *numberSum) add(value interface{}) {
	if value == nil {
		return
	}
	switch s.mode {
	case sumDecimal:
		d, ok := compare.ToDecimal(value)
		if !ok {
			return // non-numeric values are skipped
		}
		s.d = s.d.Add(d)
	case sumInt:
		if i, ok := compare.ToInt64Exact(value); ok {
			sum := s.i + i
			if (s.i >= 0) == (i >= 0) && (sum >= 0) != (s.i >= 0) {
				s.mode = sumDecimal
				s.d = decimal.NewFromInt(s.i).Add(decimal.NewFromInt(i))
				break
			}
			s.i = sum
			break
		}
		f, ok := compare.ToFloat64(value)
		if !ok {
			return
		}
		s.mode = sumFloat
		s.f = float64(s.i) + f
	case sumFloat:
		f, ok := compare.ToFloat64(value)
		if !ok {
			return
		}
		s.f += f
	}
	s.isSet = true
	s.count++
}

func (s *numberSum) sum() interface{} {
	if !s.isSet {
		return nil
	}
	switch s.mode {
	case sumDecimal:
		return s.d
	case sumInt:
		return s.i
	}
	return s.f
}

func (s *numberSum) avg() interface{} {
	if !s.isSet || s.count == 0 {
		return nil
	}
	switch s.mode {
	case sumDecimal:
		return s.d.Div(decimal.NewFromInt(s.count))
	case sumInt:
		return float64(s.i) / float64(s.count)
	}
	return s.f / float64(s.count)
}

type sumAcc struct{ num *numberSum }

func (s *sumAcc) add(value interface{}) { s.num.add(value) }
func (s *sumAcc) result() interface{}   { return s.num.sum() }

type avgAcc struct{ num *numberSum }

func (a *avgAcc) add(value interface{}) { a.num.add(value) }
func (a *avgAcc) result() interface{}   { return a.num.avg() }

// extremumAcc tracks MIN (sign -1) or MAX (sign 1).
type extremumAcc struct {
	sign  int
	value interface{}
}

func (e *extremumAcc) add(value interface{}) {
	if value == nil {
		return
	}
	if e.value == nil || compare.Order(value, e.value)*e.sign > 0 {
		e.value = value
	}
}

func (e *extremumAcc) result() interface{} { return e.value }

type firstAcc struct{ value interface{} }

func (f *firstAcc) add(value interface{}) {
	if f.value == nil {
		f.value = value
	}
}

func (f *firstAcc) result() interface{} { return f.value }

type lastAcc struct{ value interface{} }

func (l *lastAcc) add(value interface{}) {
	if value != nil {
		l.value = value
	}
}

func (l *lastAcc) result() interface{} { return l.value }

// randomAcc keeps a uniform sample of one non-null value (reservoir of size 1).
type randomAcc struct {
	seen  int
	value interface{}
}

func (r *randomAcc) add(value interface{}) {
	if value == nil {
		return
	}
	r.seen++
	if rand.Intn(r.seen) == 0 {
		r.value = value
	}
}

func (r *randomAcc) result() interface{} { return r.value }

// medianAcc needs the full value set, so it collects values and reduces them
// once at finalize time. Over integer input the median is a float64.
type medianAcc struct {
	values  []interface{}
	integer bool
}

func (m *medianAcc) add(value interface{}) {
	if value != nil {
		m.values = append(m.values, value)
	}
}

func (m *medianAcc) result() interface{} {
	n := len(m.values)
	if n == 0 {
		return nil
	}
	sort.SliceStable(m.values, func(i, j int) bool {
		return compare.Order(m.values[i], m.values[j]) < 0
	})
	if n%2 == 1 {
		mid := m.values[n/2]
		if m.integer {
			if f, ok := compare.ToFloat64(mid); ok {
				return f
			}
		}
		return mid
	}
	lo, hi := m.values[n/2-1], m.values[n/2]
	if dl, ok := lo.(decimal.Decimal); ok {
		if dh, ok := compare.ToDecimal(hi); ok {
			return dl.Add(dh).Div(decimal.NewFromInt(2))
		}
	}
	if compare.IsNumber(lo) && compare.IsNumber(hi) {
		fl, _ := compare.ToFloat64(lo)
		fh, _ := compare.ToFloat64(hi)
		return (fl + fh) / 2
	}
	return lo
}
